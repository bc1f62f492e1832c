package store_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"tokenlease/pkg/ledger"
	"tokenlease/pkg/registry"
	"tokenlease/pkg/store"
	"tokenlease/pkg/testhelpers"
	"tokenlease/pkg/tokens"
)

const (
	alice = tokens.Address("alice")
	bob   = tokens.Address("bob")
)

func TestMemoryStore_AtomicRollsBackOnError(t *testing.T) {
	st := store.NewMemoryStore()
	testhelpers.OpenAccount(t, st, alice, 100)
	testhelpers.OpenAccount(t, st, bob, 0)
	id := testhelpers.SeedToken(t, st, alice, 50, true)

	boom := errors.New("boom")
	err := st.Atomic(context.Background(), func(tx store.Tx) error {
		ctx := context.Background()
		if err := tx.Registry().Transfer(ctx, alice, bob, id); err != nil {
			return err
		}
		if err := ledger.Pay(ctx, tx.Ledger(), alice, bob, 40); err != nil {
			return err
		}
		if _, err := tx.Registry().Mint(ctx, bob); err != nil {
			return err
		}
		return boom
	})

	require.ErrorIs(t, err, boom)
	require.Equal(t, alice, testhelpers.Holder(t, st, id))
	require.Equal(t, int64(100), testhelpers.Balance(t, st, alice))
	require.Equal(t, int64(0), testhelpers.Balance(t, st, bob))

	// the id consumed by the failed unit of work is handed out again
	next := testhelpers.SeedToken(t, st, bob, 50, true)
	require.Equal(t, id+1, next)
}

func TestMemoryStore_AtomicSeesOwnWrites(t *testing.T) {
	st := store.NewMemoryStore()
	id := testhelpers.SeedToken(t, st, alice, 50, true)

	err := st.Atomic(context.Background(), func(tx store.Tx) error {
		ctx := context.Background()
		r, err := tx.Records().Get(ctx, id)
		require.NoError(t, err)
		r.Price = 75
		require.NoError(t, tx.Records().Put(ctx, r))

		again, err := tx.Records().Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, int64(75), again.Price)
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, int64(75), testhelpers.Record(t, st, id).Price)
}

func TestMemoryStore_ViewIsReadOnly(t *testing.T) {
	st := store.NewMemoryStore()
	id := testhelpers.SeedToken(t, st, alice, 50, true)

	err := st.View(context.Background(), func(tx store.Tx) error {
		return tx.Registry().Transfer(context.Background(), alice, bob, id)
	})
	require.ErrorIs(t, err, store.ErrReadOnly)

	err = st.View(context.Background(), func(tx store.Tx) error {
		_, err := tx.Registry().Mint(context.Background(), alice)
		return err
	})
	require.ErrorIs(t, err, store.ErrReadOnly)
}

func TestMemoryStore_RecordsAreCopies(t *testing.T) {
	st := store.NewMemoryStore()
	id := testhelpers.SeedToken(t, st, alice, 50, true)

	err := st.Atomic(context.Background(), func(tx store.Tx) error {
		ctx := context.Background()
		r, err := tx.Records().Get(ctx, id)
		if err != nil {
			return err
		}
		r.State = tokens.StateRented
		r.Lease = &tokens.Lease{Renter: bob, Duration: tokens.OneDay}
		return tx.Records().Put(ctx, r)
	})
	require.NoError(t, err)

	rec := testhelpers.Record(t, st, id)
	rec.Lease.Renter = "mallory"
	require.Equal(t, bob, testhelpers.Record(t, st, id).Lease.Renter)
}

func TestMemoryStore_ListPagingAndFilters(t *testing.T) {
	st := store.NewMemoryStore()
	for i := 0; i < 4; i++ {
		testhelpers.SeedToken(t, st, alice, 10, true)
	}
	testhelpers.SeedToken(t, st, bob, 10, true)

	err := st.View(context.Background(), func(tx store.Tx) error {
		ctx := context.Background()

		page, total, err := tx.Records().List(ctx, tokens.Filter{}, 2, 2)
		require.NoError(t, err)
		require.Equal(t, int64(5), total)
		require.Len(t, page, 2)
		require.Equal(t, int64(3), page[0].ID)
		require.Equal(t, int64(4), page[1].ID)

		beyond, total, err := tx.Records().List(ctx, tokens.Filter{}, 10, 50)
		require.NoError(t, err)
		require.Equal(t, int64(5), total)
		require.Empty(t, beyond)

		owner := bob
		byOwner, total, err := tx.Records().List(ctx, tokens.Filter{Owner: &owner}, 10, 0)
		require.NoError(t, err)
		require.Equal(t, int64(1), total)
		require.Equal(t, bob, byOwner[0].Owner)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_RegistryAndLedgerErrors(t *testing.T) {
	st := store.NewMemoryStore()
	id := testhelpers.SeedToken(t, st, alice, 50, true)
	testhelpers.OpenAccount(t, st, alice, 10)

	err := st.Atomic(context.Background(), func(tx store.Tx) error {
		ctx := context.Background()

		require.ErrorIs(t, tx.Registry().Transfer(ctx, bob, alice, id), registry.ErrNotHolder)
		require.ErrorIs(t, tx.Registry().Transfer(ctx, alice, bob, 999), registry.ErrUnknownToken)
		_, err := tx.Registry().OwnerOf(ctx, 999)
		require.ErrorIs(t, err, registry.ErrUnknownToken)

		require.ErrorIs(t, tx.Ledger().Open(ctx, alice, true), ledger.ErrAccountExists)
		require.ErrorIs(t, tx.Ledger().Debit(ctx, alice, 11), ledger.ErrInsufficientFunds)
		require.ErrorIs(t, tx.Ledger().Credit(ctx, bob, 1), ledger.ErrUnknownAccount)
		require.ErrorIs(t, tx.Records().Put(ctx, tokens.Record{ID: 999}), tokens.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_CreditOverflow(t *testing.T) {
	st := store.NewMemoryStore()
	testhelpers.OpenAccount(t, st, alice, math.MaxInt64-10)

	err := st.Atomic(context.Background(), func(tx store.Tx) error {
		return tx.Ledger().Credit(context.Background(), alice, 11)
	})
	require.ErrorIs(t, err, ledger.ErrBalanceOverflow)
	require.Equal(t, int64(math.MaxInt64-10), testhelpers.Balance(t, st, alice))

	require.NoError(t, st.Atomic(context.Background(), func(tx store.Tx) error {
		return tx.Ledger().Credit(context.Background(), alice, 10)
	}))
	require.Equal(t, int64(math.MaxInt64), testhelpers.Balance(t, st, alice))
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	st := store.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := st.Atomic(ctx, func(tx store.Tx) error {
		called = true
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}
