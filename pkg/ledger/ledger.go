// Package ledger keeps the account balances payments settle against.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"tokenlease/pkg/tokens"
)

var (
	ErrUnknownAccount    = errors.New("ledger account not found")
	ErrAccountExists     = errors.New("ledger account already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrPaymentRejected   = errors.New("recipient does not accept payments")
	ErrInvalidAmount     = errors.New("amount must not be negative")
	ErrBalanceOverflow   = errors.New("balance would overflow")
)

type Account struct {
	Address         tokens.Address `json:"address"`
	Balance         int64          `json:"balance"`
	AcceptsPayments bool           `json:"accepts_payments"`
}

type Ledger interface {
	Open(ctx context.Context, addr tokens.Address, acceptsPayments bool) error
	Account(ctx context.Context, addr tokens.Address) (Account, error)
	SetAcceptsPayments(ctx context.Context, addr tokens.Address, accepts bool) error
	Credit(ctx context.Context, addr tokens.Address, amount int64) error
	Debit(ctx context.Context, addr tokens.Address, amount int64) error
}

// Pay moves amount from one account to another. The recipient must accept
// payments. A zero amount moves nothing.
func Pay(ctx context.Context, l Ledger, from, to tokens.Address, amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	if amount == 0 {
		return nil
	}

	recipient, err := l.Account(ctx, to)
	if err != nil {
		return fmt.Errorf("recipient %s: %w", to, err)
	}
	if !recipient.AcceptsPayments {
		return ErrPaymentRejected
	}

	if err := l.Debit(ctx, from, amount); err != nil {
		return fmt.Errorf("debit %s: %w", from, err)
	}
	if err := l.Credit(ctx, to, amount); err != nil {
		return fmt.Errorf("credit %s: %w", to, err)
	}
	return nil
}

// Settle runs Pay and marks any failure as a settlement failure so the
// surrounding unit of work is rolled back.
func Settle(ctx context.Context, l Ledger, from, to tokens.Address, amount int64) error {
	if err := Pay(ctx, l, from, to, amount); err != nil {
		return fmt.Errorf("%w: %w", tokens.ErrSettlementFailed, err)
	}
	return nil
}
