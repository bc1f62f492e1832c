// Package custody guards every change of raw custody recorded by the asset
// registry. A renter holds a token without any right to move or re-approve it.
package custody

import (
	"context"
	"errors"
	"fmt"

	"tokenlease/pkg/registry"
	"tokenlease/pkg/store"
	"tokenlease/pkg/tokens"
)

// Guard decides whether actor may move or approve the token behind a record.
type Guard struct{}

func NewGuard() *Guard {
	return &Guard{}
}

// Authorize permits the record's owner, or the system while it is the
// temporary custodian: it holds the token (sale listing) or holds the
// standing approval (rent listing and active rental).
func (g *Guard) Authorize(ctx context.Context, tx store.Tx, actor tokens.Address, rec tokens.Record) error {
	if actor == "" {
		return tokens.ErrCustodyDenied
	}
	if actor != tokens.SystemAccount {
		if actor == rec.Owner {
			return nil
		}
		return tokens.ErrCustodyDenied
	}

	holder, err := tx.Registry().OwnerOf(ctx, rec.ID)
	if err != nil {
		return registryErr(err)
	}
	if holder == tokens.SystemAccount {
		return nil
	}

	approved, err := tx.Registry().GetApproved(ctx, rec.ID)
	if err != nil {
		return registryErr(err)
	}
	if approved == tokens.SystemAccount {
		return nil
	}
	return tokens.ErrCustodyDenied
}

// Move transfers raw custody from whoever holds the token to to.
func (g *Guard) Move(ctx context.Context, tx store.Tx, actor tokens.Address, rec tokens.Record, to tokens.Address) error {
	if err := g.Authorize(ctx, tx, actor, rec); err != nil {
		return err
	}

	holder, err := tx.Registry().OwnerOf(ctx, rec.ID)
	if err != nil {
		return registryErr(err)
	}
	if err := tx.Registry().Transfer(ctx, holder, to, rec.ID); err != nil {
		return registryErr(err)
	}
	return nil
}

// Approve sets the approved spender; an empty spender clears it.
func (g *Guard) Approve(ctx context.Context, tx store.Tx, actor tokens.Address, rec tokens.Record, spender tokens.Address) error {
	if err := g.Authorize(ctx, tx, actor, rec); err != nil {
		return err
	}
	if err := tx.Registry().Approve(ctx, rec.ID, spender); err != nil {
		return registryErr(err)
	}
	return nil
}

// GrantStanding gives the system the standing approval over rec on the
// owner's behalf.
func (g *Guard) GrantStanding(ctx context.Context, tx store.Tx, rec tokens.Record) error {
	return g.Approve(ctx, tx, rec.Owner, rec, tokens.SystemAccount)
}

// RevokeStanding clears the system's standing approval if it holds one.
func (g *Guard) RevokeStanding(ctx context.Context, tx store.Tx, rec tokens.Record) error {
	approved, err := tx.Registry().GetApproved(ctx, rec.ID)
	if err != nil {
		return registryErr(err)
	}
	if approved != tokens.SystemAccount {
		return nil
	}
	return g.Approve(ctx, tx, rec.Owner, rec, "")
}

func registryErr(err error) error {
	if errors.Is(err, registry.ErrUnknownToken) {
		return fmt.Errorf("%w: %w", tokens.ErrNotFound, err)
	}
	return fmt.Errorf("registry: %w", err)
}
