package store

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"tokenlease/pkg/ledger"
	"tokenlease/pkg/registry"
	"tokenlease/pkg/tokens"
)

var ErrReadOnly = errors.New("write attempted in a read-only view")

type memState struct {
	records   map[int64]tokens.Record
	holders   map[int64]tokens.Address
	approvals map[int64]tokens.Address
	accounts  map[tokens.Address]ledger.Account
	lastID    int64
}

// MemoryStore keeps everything in process. Units of work are serialized by a
// single lock and buffer their writes in an overlay that is merged on commit.
type MemoryStore struct {
	mu    sync.RWMutex
	state memState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: memState{
			records:   make(map[int64]tokens.Record),
			holders:   make(map[int64]tokens.Address),
			approvals: make(map[int64]tokens.Address),
			accounts:  make(map[tokens.Address]ledger.Account),
		},
	}
}

func (s *MemoryStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newMemTx(&s.state, false)
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(newMemTx(&s.state, true))
}

type memTx struct {
	base     *memState
	readOnly bool

	records   map[int64]tokens.Record
	holders   map[int64]tokens.Address
	approvals map[int64]tokens.Address
	accounts  map[tokens.Address]ledger.Account
	lastID    int64
}

func newMemTx(base *memState, readOnly bool) *memTx {
	return &memTx{
		base:      base,
		readOnly:  readOnly,
		records:   make(map[int64]tokens.Record),
		holders:   make(map[int64]tokens.Address),
		approvals: make(map[int64]tokens.Address),
		accounts:  make(map[tokens.Address]ledger.Account),
		lastID:    base.lastID,
	}
}

func (tx *memTx) commit() {
	for id, r := range tx.records {
		tx.base.records[id] = r
	}
	for id, h := range tx.holders {
		tx.base.holders[id] = h
	}
	for id, a := range tx.approvals {
		tx.base.approvals[id] = a
	}
	for addr, acct := range tx.accounts {
		tx.base.accounts[addr] = acct
	}
	tx.base.lastID = tx.lastID
}

func (tx *memTx) Records() tokens.RecordRepository { return memRecords{tx} }
func (tx *memTx) Registry() registry.Registry      { return memRegistry{tx} }
func (tx *memTx) Ledger() ledger.Ledger            { return memLedger{tx} }

func (tx *memTx) record(id int64) (tokens.Record, bool) {
	if r, ok := tx.records[id]; ok {
		return r.Clone(), true
	}
	r, ok := tx.base.records[id]
	return r.Clone(), ok
}

func (tx *memTx) holder(id int64) (tokens.Address, bool) {
	if h, ok := tx.holders[id]; ok {
		return h, true
	}
	h, ok := tx.base.holders[id]
	return h, ok
}

func (tx *memTx) approval(id int64) tokens.Address {
	if a, ok := tx.approvals[id]; ok {
		return a
	}
	return tx.base.approvals[id]
}

func (tx *memTx) account(addr tokens.Address) (ledger.Account, bool) {
	if a, ok := tx.accounts[addr]; ok {
		return a, true
	}
	a, ok := tx.base.accounts[addr]
	return a, ok
}

func (tx *memTx) recordIDs() []int64 {
	seen := make(map[int64]struct{}, len(tx.base.records)+len(tx.records))
	ids := make([]int64, 0, len(tx.base.records)+len(tx.records))
	for id := range tx.base.records {
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for id := range tx.records {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type memRecords struct{ tx *memTx }

func (m memRecords) Get(ctx context.Context, id int64) (tokens.Record, error) {
	r, ok := m.tx.record(id)
	if !ok {
		return tokens.Record{}, tokens.ErrNotFound
	}
	return r, nil
}

func (m memRecords) Create(ctx context.Context, r tokens.Record) error {
	if m.tx.readOnly {
		return ErrReadOnly
	}
	if _, ok := m.tx.record(r.ID); ok {
		return errors.New("record already exists")
	}
	m.tx.records[r.ID] = r.Clone()
	return nil
}

func (m memRecords) Put(ctx context.Context, r tokens.Record) error {
	if m.tx.readOnly {
		return ErrReadOnly
	}
	if _, ok := m.tx.record(r.ID); !ok {
		return tokens.ErrNotFound
	}
	m.tx.records[r.ID] = r.Clone()
	return nil
}

func (m memRecords) List(ctx context.Context, filter tokens.Filter, limit, offset int) ([]tokens.Record, int64, error) {
	matched := make([]tokens.Record, 0)
	for _, id := range m.tx.recordIDs() {
		r, _ := m.tx.record(id)
		if filter.Owner != nil && r.Owner != *filter.Owner {
			continue
		}
		if filter.State != nil && r.State != *filter.State {
			continue
		}
		matched = append(matched, r)
	}

	total := int64(len(matched))
	if offset >= len(matched) {
		return []tokens.Record{}, total, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

func (m memRecords) ListForSale(ctx context.Context) ([]tokens.Record, error) {
	out := make([]tokens.Record, 0)
	for _, id := range m.tx.recordIDs() {
		r, _ := m.tx.record(id)
		if r.State == tokens.StateListedForSale {
			out = append(out, r)
		}
	}
	return out, nil
}

type memRegistry struct{ tx *memTx }

func (m memRegistry) Mint(ctx context.Context, owner tokens.Address) (int64, error) {
	if m.tx.readOnly {
		return 0, ErrReadOnly
	}
	m.tx.lastID++
	id := m.tx.lastID
	m.tx.holders[id] = owner
	m.tx.approvals[id] = ""
	return id, nil
}

func (m memRegistry) OwnerOf(ctx context.Context, id int64) (tokens.Address, error) {
	h, ok := m.tx.holder(id)
	if !ok {
		return "", registry.ErrUnknownToken
	}
	return h, nil
}

func (m memRegistry) Exists(ctx context.Context, id int64) (bool, error) {
	_, ok := m.tx.holder(id)
	return ok, nil
}

func (m memRegistry) Transfer(ctx context.Context, from, to tokens.Address, id int64) error {
	if m.tx.readOnly {
		return ErrReadOnly
	}
	h, ok := m.tx.holder(id)
	if !ok {
		return registry.ErrUnknownToken
	}
	if h != from {
		return registry.ErrNotHolder
	}
	m.tx.holders[id] = to
	m.tx.approvals[id] = ""
	return nil
}

func (m memRegistry) Approve(ctx context.Context, id int64, spender tokens.Address) error {
	if m.tx.readOnly {
		return ErrReadOnly
	}
	if _, ok := m.tx.holder(id); !ok {
		return registry.ErrUnknownToken
	}
	m.tx.approvals[id] = spender
	return nil
}

func (m memRegistry) GetApproved(ctx context.Context, id int64) (tokens.Address, error) {
	if _, ok := m.tx.holder(id); !ok {
		return "", registry.ErrUnknownToken
	}
	return m.tx.approval(id), nil
}

type memLedger struct{ tx *memTx }

func (m memLedger) Open(ctx context.Context, addr tokens.Address, acceptsPayments bool) error {
	if m.tx.readOnly {
		return ErrReadOnly
	}
	if _, ok := m.tx.account(addr); ok {
		return ledger.ErrAccountExists
	}
	m.tx.accounts[addr] = ledger.Account{Address: addr, AcceptsPayments: acceptsPayments}
	return nil
}

func (m memLedger) Account(ctx context.Context, addr tokens.Address) (ledger.Account, error) {
	a, ok := m.tx.account(addr)
	if !ok {
		return ledger.Account{}, ledger.ErrUnknownAccount
	}
	return a, nil
}

func (m memLedger) SetAcceptsPayments(ctx context.Context, addr tokens.Address, accepts bool) error {
	if m.tx.readOnly {
		return ErrReadOnly
	}
	a, ok := m.tx.account(addr)
	if !ok {
		return ledger.ErrUnknownAccount
	}
	a.AcceptsPayments = accepts
	m.tx.accounts[addr] = a
	return nil
}

func (m memLedger) Credit(ctx context.Context, addr tokens.Address, amount int64) error {
	if m.tx.readOnly {
		return ErrReadOnly
	}
	if amount < 0 {
		return ledger.ErrInvalidAmount
	}
	a, ok := m.tx.account(addr)
	if !ok {
		return ledger.ErrUnknownAccount
	}
	if a.Balance > math.MaxInt64-amount {
		return ledger.ErrBalanceOverflow
	}
	a.Balance += amount
	m.tx.accounts[addr] = a
	return nil
}

func (m memLedger) Debit(ctx context.Context, addr tokens.Address, amount int64) error {
	if m.tx.readOnly {
		return ErrReadOnly
	}
	if amount < 0 {
		return ledger.ErrInvalidAmount
	}
	a, ok := m.tx.account(addr)
	if !ok {
		return ledger.ErrUnknownAccount
	}
	if a.Balance < amount {
		return ledger.ErrInsufficientFunds
	}
	a.Balance -= amount
	m.tx.accounts[addr] = a
	return nil
}
