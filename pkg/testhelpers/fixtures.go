package testhelpers

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tokenlease/pkg/store"
	"tokenlease/pkg/tokens"
)

// SchemaPath locates pkg/db/schema.sql independent of the test's working
// directory.
func SchemaPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "db", "schema.sql")
}

// Clock is a settable tokens.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// OpenAccount opens a ledger account holding balance that accepts payments.
func OpenAccount(t *testing.T, st store.Store, addr tokens.Address, balance int64) {
	t.Helper()

	err := st.Atomic(context.Background(), func(tx store.Tx) error {
		if err := tx.Ledger().Open(context.Background(), addr, true); err != nil {
			return err
		}
		return tx.Ledger().Credit(context.Background(), addr, balance)
	})
	require.NoError(t, err)
}

// SeedToken mints an idle token straight into the store, bypassing the
// service layer, and returns its id.
func SeedToken(t *testing.T, st store.Store, owner tokens.Address, price int64, sold bool) int64 {
	t.Helper()

	ctx := context.Background()
	var id int64
	err := st.Atomic(ctx, func(tx store.Tx) error {
		var err error
		id, err = tx.Registry().Mint(ctx, owner)
		if err != nil {
			return err
		}
		return tx.Records().Create(ctx, tokens.Record{
			ID:       id,
			Owner:    owner,
			Price:    price,
			Metadata: fmt.Sprintf("ipfs://seed-%d", nextSuffix()),
			Sold:     sold,
			State:    tokens.StateIdle,
			MintedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	})
	require.NoError(t, err)
	return id
}

func Record(t *testing.T, st store.Store, id int64) tokens.Record {
	t.Helper()

	var rec tokens.Record
	err := st.View(context.Background(), func(tx store.Tx) error {
		var err error
		rec, err = tx.Records().Get(context.Background(), id)
		return err
	})
	require.NoError(t, err)
	return rec
}

func Holder(t *testing.T, st store.Store, id int64) tokens.Address {
	t.Helper()

	var holder tokens.Address
	err := st.View(context.Background(), func(tx store.Tx) error {
		var err error
		holder, err = tx.Registry().OwnerOf(context.Background(), id)
		return err
	})
	require.NoError(t, err)
	return holder
}

func Approved(t *testing.T, st store.Store, id int64) tokens.Address {
	t.Helper()

	var approved tokens.Address
	err := st.View(context.Background(), func(tx store.Tx) error {
		var err error
		approved, err = tx.Registry().GetApproved(context.Background(), id)
		return err
	})
	require.NoError(t, err)
	return approved
}

func Balance(t *testing.T, st store.Store, addr tokens.Address) int64 {
	t.Helper()

	var balance int64
	err := st.View(context.Background(), func(tx store.Tx) error {
		acct, err := tx.Ledger().Account(context.Background(), addr)
		balance = acct.Balance
		return err
	})
	require.NoError(t, err)
	return balance
}

// RequireInvariants checks that raw custody agrees with the record state and
// that lease fields are present exactly while rented.
func RequireInvariants(t *testing.T, st store.Store, id int64) {
	t.Helper()

	rec := Record(t, st, id)
	require.True(t, rec.State.Valid(), "state %q", rec.State)
	require.Equal(t, rec.Custodian(), Holder(t, st, id), "custody for state %s", rec.State)
	require.Greater(t, rec.Price, int64(0))

	if rec.State == tokens.StateRented {
		require.NotNil(t, rec.Lease)
		require.NotEmpty(t, rec.Lease.Renter)
		require.False(t, rec.Lease.RentedAt.IsZero())
		require.NotZero(t, rec.Lease.Duration)
		require.NotEqual(t, rec.Owner, rec.Lease.Renter)
	} else {
		require.Nil(t, rec.Lease)
	}
}
