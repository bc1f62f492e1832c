// Package store groups token records, registry custody and ledger balances
// behind one unit of work so that a state transition and its settlement commit
// together or not at all.
package store

import (
	"context"

	"tokenlease/pkg/ledger"
	"tokenlease/pkg/registry"
	"tokenlease/pkg/tokens"
)

// Tx is the view of all three stores inside one unit of work.
type Tx interface {
	Records() tokens.RecordRepository
	Registry() registry.Registry
	Ledger() ledger.Ledger
}

type Store interface {
	// Atomic runs fn with exclusive access to the tokens it touches. Writes are
	// committed only if fn returns nil.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn read-only.
	View(ctx context.Context, fn func(tx Tx) error) error
}
