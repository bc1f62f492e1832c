package accounts

import (
	"errors"
	"time"

	"tokenlease/pkg/tokens"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrEmailTaken         = errors.New("account exists with that email")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("name, email and password are required")
	ErrNotAdmin           = errors.New("admin capability required")
	ErrInvalidDeposit     = errors.New("deposit amount must be positive")
)

type Account struct {
	ID        int64          `json:"id"`
	Address   tokens.Address `json:"address"`
	Name      string         `json:"name"`
	Email     string         `json:"email"`
	IsAdmin   bool           `json:"is_admin"`
	CreatedAt time.Time      `json:"created_at"`
}

// Profile is an account together with its ledger state.
type Profile struct {
	Account
	Balance         int64 `json:"balance"`
	AcceptsPayments bool  `json:"accepts_payments"`
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Account   Account   `json:"account"`
}

// AdminCapability authorizes privileged ledger calls. Only AccountService
// hands out a usable one; the zero value authorizes nothing.
type AdminCapability struct {
	holder tokens.Address
}

func (c AdminCapability) Holder() tokens.Address {
	return c.holder
}

func (c AdminCapability) valid() bool {
	return c.holder != ""
}
