// Package registry declares the raw asset-registry primitives: id assignment,
// custody bookkeeping and approvals. None of them authorize a caller; every
// caller-facing custody change goes through package custody first.
package registry

import (
	"context"
	"errors"

	"tokenlease/pkg/tokens"
)

var (
	ErrUnknownToken = errors.New("token not minted")
	ErrNotHolder    = errors.New("sender does not hold the token")
)

type Registry interface {
	// Mint assigns the next sequential id and records owner as its holder.
	Mint(ctx context.Context, owner tokens.Address) (int64, error)
	OwnerOf(ctx context.Context, id int64) (tokens.Address, error)
	Exists(ctx context.Context, id int64) (bool, error)
	// Transfer moves custody and clears any approval.
	Transfer(ctx context.Context, from, to tokens.Address, id int64) error
	// Approve sets the single approved spender; an empty address clears it.
	Approve(ctx context.Context, id int64, spender tokens.Address) error
	GetApproved(ctx context.Context, id int64) (tokens.Address, error)
}
