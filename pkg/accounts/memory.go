package accounts

import (
	"context"
	"sync"

	"tokenlease/pkg/tokens"
)

type memoryAccount struct {
	account Account
	hash    string
}

// MemoryAccountRepository backs the in-process store backend.
type MemoryAccountRepository struct {
	mu        sync.RWMutex
	clock     tokens.Clock
	lastID    int64
	byAddress map[tokens.Address]*memoryAccount
	byEmail   map[string]*memoryAccount
}

func NewMemoryAccountRepository(clock tokens.Clock) *MemoryAccountRepository {
	return &MemoryAccountRepository{
		clock:     clock,
		byAddress: make(map[tokens.Address]*memoryAccount),
		byEmail:   make(map[string]*memoryAccount),
	}
}

func (r *MemoryAccountRepository) CreateAccount(ctx context.Context, a Account, passwordHash string) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[a.Email]; ok {
		return Account{}, ErrEmailTaken
	}
	if _, ok := r.byAddress[a.Address]; ok {
		return Account{}, ErrEmailTaken
	}

	r.lastID++
	a.ID = r.lastID
	a.CreatedAt = r.clock.Now()
	entry := &memoryAccount{account: a, hash: passwordHash}
	r.byAddress[a.Address] = entry
	r.byEmail[a.Email] = entry
	return a, nil
}

func (r *MemoryAccountRepository) GetAccountByAddress(ctx context.Context, addr tokens.Address) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.byAddress[addr]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return entry.account, nil
}

func (r *MemoryAccountRepository) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	a, _, err := r.GetAccountAuthByEmail(ctx, email)
	return a, err
}

func (r *MemoryAccountRepository) GetAccountAuthByEmail(ctx context.Context, email string) (Account, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.byEmail[email]
	if !ok {
		return Account{}, "", ErrAccountNotFound
	}
	return entry.account, entry.hash, nil
}
