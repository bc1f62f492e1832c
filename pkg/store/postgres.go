package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tokenlease/pkg/ledger"
	"tokenlease/pkg/registry"
	"tokenlease/pkg/tokens"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore runs each unit of work in one database transaction. Token rows
// are read FOR UPDATE inside Atomic, which serializes operations per token.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Atomic(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(&pgTx{q: tx, lock: true}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return fn(&pgTx{q: s.pool})
}

type pgTx struct {
	q    querier
	lock bool
}

func (tx *pgTx) Records() tokens.RecordRepository { return pgRecords{tx} }
func (tx *pgTx) Registry() registry.Registry      { return pgRegistry{tx} }
func (tx *pgTx) Ledger() ledger.Ledger            { return pgLedger{tx} }

const recordColumns = `id, owner, price, metadata, state, sold, renter, rented_at, rent_duration_ns, minted_at`

type pgRecords struct{ tx *pgTx }

func scanRecord(row pgx.Row) (tokens.Record, error) {
	var (
		r          tokens.Record
		state      string
		renter     *string
		rentedAt   *time.Time
		durationNS int64
	)
	if err := row.Scan(&r.ID, &r.Owner, &r.Price, &r.Metadata, &state, &r.Sold, &renter, &rentedAt, &durationNS, &r.MintedAt); err != nil {
		return tokens.Record{}, err
	}
	r.State = tokens.State(state)
	if r.State == tokens.StateRented && renter != nil && rentedAt != nil {
		r.Lease = &tokens.Lease{
			Renter:   tokens.Address(*renter),
			RentedAt: rentedAt.UTC(),
			Duration: time.Duration(durationNS),
		}
	}
	return r, nil
}

func leaseColumns(r tokens.Record) (*string, *time.Time, int64) {
	if r.Lease == nil {
		return nil, nil, 0
	}
	renter := string(r.Lease.Renter)
	rentedAt := r.Lease.RentedAt
	return &renter, &rentedAt, int64(r.Lease.Duration)
}

func (p pgRecords) Get(ctx context.Context, id int64) (tokens.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM tokens WHERE id = $1`
	if p.tx.lock {
		query += ` FOR UPDATE`
	}

	r, err := scanRecord(p.tx.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tokens.Record{}, tokens.ErrNotFound
		}
		return tokens.Record{}, err
	}
	return r, nil
}

func (p pgRecords) Create(ctx context.Context, r tokens.Record) error {
	renter, rentedAt, duration := leaseColumns(r)
	query := `INSERT INTO tokens (id, owner, price, metadata, state, sold, renter, rented_at, rent_duration_ns, minted_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := p.tx.q.Exec(ctx, query, r.ID, string(r.Owner), r.Price, r.Metadata, string(r.State), r.Sold, renter, rentedAt, duration, r.MintedAt)
	return err
}

func (p pgRecords) Put(ctx context.Context, r tokens.Record) error {
	renter, rentedAt, duration := leaseColumns(r)
	query := `UPDATE tokens
              SET owner = $2, price = $3, metadata = $4, state = $5, sold = $6, renter = $7, rented_at = $8, rent_duration_ns = $9
              WHERE id = $1`
	cmd, err := p.tx.q.Exec(ctx, query, r.ID, string(r.Owner), r.Price, r.Metadata, string(r.State), r.Sold, renter, rentedAt, duration)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return tokens.ErrNotFound
	}
	return nil
}

func (p pgRecords) List(ctx context.Context, filter tokens.Filter, limit, offset int) ([]tokens.Record, int64, error) {
	whereClauses := []string{"TRUE"}
	args := []any{}
	argPos := 1

	if filter.Owner != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("owner = $%d", argPos))
		args = append(args, string(*filter.Owner))
		argPos++
	}
	if filter.State != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("state = $%d", argPos))
		args = append(args, string(*filter.State))
		argPos++
	}

	whereSQL := "WHERE " + strings.Join(whereClauses, " AND ")

	var total int64
	if err := p.tx.q.QueryRow(ctx, "SELECT COUNT(*) FROM tokens "+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM tokens %s ORDER BY id LIMIT $%d OFFSET $%d`, recordColumns, whereSQL, argPos, argPos+1)
	args = append(args, limit, offset)

	records, err := p.collect(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (p pgRecords) ListForSale(ctx context.Context) ([]tokens.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM tokens WHERE state = $1 ORDER BY id`
	return p.collect(ctx, query, string(tokens.StateListedForSale))
}

func (p pgRecords) collect(ctx context.Context, query string, args ...any) ([]tokens.Record, error) {
	rows, err := p.tx.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]tokens.Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type pgRegistry struct{ tx *pgTx }

func (p pgRegistry) Mint(ctx context.Context, owner tokens.Address) (int64, error) {
	var id int64
	err := p.tx.q.QueryRow(ctx, `INSERT INTO registry (holder) VALUES ($1) RETURNING id`, string(owner)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("mint: %w", err)
	}
	return id, nil
}

func (p pgRegistry) OwnerOf(ctx context.Context, id int64) (tokens.Address, error) {
	var holder string
	if err := p.tx.q.QueryRow(ctx, `SELECT holder FROM registry WHERE id = $1`, id).Scan(&holder); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", registry.ErrUnknownToken
		}
		return "", err
	}
	return tokens.Address(holder), nil
}

func (p pgRegistry) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := p.tx.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM registry WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (p pgRegistry) Transfer(ctx context.Context, from, to tokens.Address, id int64) error {
	cmd, err := p.tx.q.Exec(ctx, `UPDATE registry SET holder = $3, approved = '' WHERE id = $1 AND holder = $2`, id, string(from), string(to))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return p.missing(ctx, id, registry.ErrNotHolder)
	}
	return nil
}

func (p pgRegistry) Approve(ctx context.Context, id int64, spender tokens.Address) error {
	cmd, err := p.tx.q.Exec(ctx, `UPDATE registry SET approved = $2 WHERE id = $1`, id, string(spender))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return registry.ErrUnknownToken
	}
	return nil
}

func (p pgRegistry) GetApproved(ctx context.Context, id int64) (tokens.Address, error) {
	var approved string
	if err := p.tx.q.QueryRow(ctx, `SELECT approved FROM registry WHERE id = $1`, id).Scan(&approved); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", registry.ErrUnknownToken
		}
		return "", err
	}
	return tokens.Address(approved), nil
}

// missing tells an unknown token apart from a failed guard on an existing one.
func (p pgRegistry) missing(ctx context.Context, id int64, otherwise error) error {
	exists, err := p.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return registry.ErrUnknownToken
	}
	return otherwise
}

type pgLedger struct{ tx *pgTx }

func (p pgLedger) Open(ctx context.Context, addr tokens.Address, acceptsPayments bool) error {
	cmd, err := p.tx.q.Exec(ctx, `INSERT INTO balances (address, amount, accepts_payments) VALUES ($1, 0, $2) ON CONFLICT (address) DO NOTHING`, string(addr), acceptsPayments)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ledger.ErrAccountExists
	}
	return nil
}

func (p pgLedger) Account(ctx context.Context, addr tokens.Address) (ledger.Account, error) {
	query := `SELECT address, amount, accepts_payments FROM balances WHERE address = $1`
	if p.tx.lock {
		query += ` FOR UPDATE`
	}

	var a ledger.Account
	if err := p.tx.q.QueryRow(ctx, query, string(addr)).Scan(&a.Address, &a.Balance, &a.AcceptsPayments); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Account{}, ledger.ErrUnknownAccount
		}
		return ledger.Account{}, err
	}
	return a, nil
}

func (p pgLedger) SetAcceptsPayments(ctx context.Context, addr tokens.Address, accepts bool) error {
	cmd, err := p.tx.q.Exec(ctx, `UPDATE balances SET accepts_payments = $2 WHERE address = $1`, string(addr), accepts)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ledger.ErrUnknownAccount
	}
	return nil
}

func (p pgLedger) Credit(ctx context.Context, addr tokens.Address, amount int64) error {
	if amount < 0 {
		return ledger.ErrInvalidAmount
	}
	cmd, err := p.tx.q.Exec(ctx, `UPDATE balances SET amount = amount + $2 WHERE address = $1`, string(addr), amount)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "22003" {
			return ledger.ErrBalanceOverflow
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ledger.ErrUnknownAccount
	}
	return nil
}

func (p pgLedger) Debit(ctx context.Context, addr tokens.Address, amount int64) error {
	if amount < 0 {
		return ledger.ErrInvalidAmount
	}
	cmd, err := p.tx.q.Exec(ctx, `UPDATE balances SET amount = amount - $2 WHERE address = $1 AND amount >= $2`, string(addr), amount)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := p.Account(ctx, addr); err != nil {
			return err
		}
		return ledger.ErrInsufficientFunds
	}
	return nil
}
