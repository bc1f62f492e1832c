package rental

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tokenlease/pkg/custody"
	"tokenlease/pkg/events"
	"tokenlease/pkg/ledger"
	"tokenlease/pkg/market"
	"tokenlease/pkg/store"
	"tokenlease/pkg/testhelpers"
	"tokenlease/pkg/tokens"
)

const (
	owner  = tokens.Address("owner")
	renter = tokens.Address("renter")
	other  = tokens.Address("other")
)

type rentalFixture struct {
	svc    RentalService
	market market.MarketService
	store  *store.MemoryStore
	clock  *testhelpers.Clock
	events *events.Recorder
}

func newRentalFixture(t *testing.T) rentalFixture {
	t.Helper()
	st := store.NewMemoryStore()
	clock := testhelpers.NewClock()
	rec := &events.Recorder{}
	guard := custody.NewGuard()
	for _, a := range []tokens.Address{owner, renter, other} {
		testhelpers.OpenAccount(t, st, a, 1000)
	}
	return rentalFixture{
		svc:    NewRentalService(st, guard, tokens.SoldPolicyStrict, rec, clock, zap.NewNop()),
		market: market.NewMarketService(st, guard, tokens.SoldPolicyStrict, rec, clock, zap.NewNop()),
		store:  st,
		clock:  clock,
		events: rec,
	}
}

func (f rentalFixture) listed(t *testing.T, price int64) int64 {
	t.Helper()
	id := testhelpers.SeedToken(t, f.store, owner, price, true)
	_, err := f.svc.ListForRent(context.Background(), owner, id)
	require.NoError(t, err)
	return id
}

func TestCost(t *testing.T) {
	tests := []struct {
		name     string
		price    int64
		duration time.Duration
		want     int64
	}{
		{"1000 for 3 days", 1000, 3 * tokens.OneDay, 30},
		{"150 for 3 days", 150, 3 * tokens.OneDay, 3},
		{"price below 100", 99, 10 * tokens.OneDay, 0},
		{"partial day truncates", 1000, 3*tokens.OneDay + 20*time.Hour, 30},
		{"under one day", 1000, 12 * time.Hour, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Cost(tt.price, tt.duration))
		})
	}
}

func TestGetRentPrice(t *testing.T) {
	f := newRentalFixture(t)
	id := testhelpers.SeedToken(t, f.store, owner, 1000, true)

	q, err := f.svc.GetRentPrice(context.Background(), id, 3*tokens.OneDay)
	require.NoError(t, err)
	require.Equal(t, Quote{TokenID: id, DurationSeconds: 3 * 86400, Days: 3, Price: 30}, q)

	_, err = f.svc.GetRentPrice(context.Background(), 404, tokens.OneDay)
	require.ErrorIs(t, err, tokens.ErrNotFound)

	_, err = f.svc.GetRentPrice(context.Background(), id, -time.Hour)
	require.ErrorIs(t, err, tokens.ErrDurationOutOfRange)
}

func TestListForRent_KeepsCustody(t *testing.T) {
	f := newRentalFixture(t)
	id := testhelpers.SeedToken(t, f.store, owner, 1000, true)

	token, err := f.svc.ListForRent(context.Background(), owner, id)

	require.NoError(t, err)
	require.True(t, token.AvailableForRent)
	require.False(t, token.CustodyHeldByRegistry)
	require.Equal(t, owner, testhelpers.Holder(t, f.store, id))
	require.Equal(t, tokens.SystemAccount, testhelpers.Approved(t, f.store, id))
	testhelpers.RequireInvariants(t, f.store, id)
}

func TestListForRent_Rejections(t *testing.T) {
	f := newRentalFixture(t)
	id := f.listed(t, 1000)

	_, err := f.svc.ListForRent(context.Background(), other, id)
	require.ErrorIs(t, err, tokens.ErrNotOwner)

	_, err = f.svc.ListForRent(context.Background(), owner, id)
	require.ErrorIs(t, err, tokens.ErrNotListable)

	_, err = f.market.ListForSale(context.Background(), owner, id)
	require.ErrorIs(t, err, tokens.ErrNotListable)
}

func TestRent_Success(t *testing.T) {
	f := newRentalFixture(t)
	id := f.listed(t, 1000)

	token, err := f.svc.Rent(context.Background(), renter, id, 3*tokens.OneDay, 30)

	require.NoError(t, err)
	require.Equal(t, tokens.StateRented, token.State)
	require.Equal(t, owner, token.Owner)
	require.NotNil(t, token.Renter)
	require.Equal(t, renter, *token.Renter)
	require.Equal(t, int64(3*86400), token.RentDurationSeconds)
	require.Equal(t, f.clock.Now(), *token.RentedAt)

	require.Equal(t, renter, testhelpers.Holder(t, f.store, id))
	require.Equal(t, tokens.SystemAccount, testhelpers.Approved(t, f.store, id))
	require.Equal(t, int64(1030), testhelpers.Balance(t, f.store, owner))
	require.Equal(t, int64(970), testhelpers.Balance(t, f.store, renter))
	testhelpers.RequireInvariants(t, f.store, id)

	published := f.events.Events()
	last := published[len(published)-1]
	require.Equal(t, events.KindRented, last.Kind)
	require.Equal(t, renter, last.Actor)
	require.Equal(t, owner, last.Counterparty)
	require.Equal(t, int64(30), last.Amount)
}

func TestRent_DurationBounds(t *testing.T) {
	f := newRentalFixture(t)

	tests := []struct {
		name     string
		duration time.Duration
		wantErr  error
	}{
		{"twelve hours", 12 * time.Hour, tokens.ErrDurationOutOfRange},
		{"one hundred and one days", 101 * tokens.OneDay, tokens.ErrDurationOutOfRange},
		{"one day", tokens.OneDay, nil},
		{"one hundred days", 100 * tokens.OneDay, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := f.listed(t, 500)
			_, err := f.svc.Rent(context.Background(), renter, id, tt.duration, Cost(500, tt.duration))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Equal(t, tokens.StateListedForRent, testhelpers.Record(t, f.store, id).State)
			} else {
				require.NoError(t, err)
			}
			testhelpers.RequireInvariants(t, f.store, id)
		})
	}
}

func TestRent_CheckOrder(t *testing.T) {
	f := newRentalFixture(t)
	idle := testhelpers.SeedToken(t, f.store, owner, 1000, true)
	id := f.listed(t, 1000)

	// availability before duration
	_, err := f.svc.Rent(context.Background(), renter, idle, time.Hour, 0)
	require.ErrorIs(t, err, tokens.ErrNotAvailable)

	// duration before self-rent
	_, err = f.svc.Rent(context.Background(), owner, id, time.Hour, 0)
	require.ErrorIs(t, err, tokens.ErrDurationOutOfRange)

	// self-rent before amount
	_, err = f.svc.Rent(context.Background(), owner, id, tokens.OneDay, 0)
	require.ErrorIs(t, err, tokens.ErrSelfRent)

	_, err = f.svc.Rent(context.Background(), renter, 404, tokens.OneDay, 10)
	require.ErrorIs(t, err, tokens.ErrNotFound)
}

func TestRent_ExactPaymentOnly(t *testing.T) {
	f := newRentalFixture(t)
	id := f.listed(t, 1000)

	for _, payment := range []int64{29, 31} {
		_, err := f.svc.Rent(context.Background(), renter, id, 3*tokens.OneDay, payment)
		require.ErrorIs(t, err, tokens.ErrWrongAmount)
	}

	_, err := f.svc.Rent(context.Background(), renter, id, 3*tokens.OneDay, 30)
	require.NoError(t, err)

	_, err = f.svc.Rent(context.Background(), other, id, 3*tokens.OneDay, 30)
	require.ErrorIs(t, err, tokens.ErrNotAvailable)
}

func TestRent_SettlementFailureRollsBack(t *testing.T) {
	f := newRentalFixture(t)
	id := f.listed(t, 1000)
	require.NoError(t, f.store.Atomic(context.Background(), func(tx store.Tx) error {
		return tx.Ledger().SetAcceptsPayments(context.Background(), owner, false)
	}))
	before := len(f.events.Events())

	_, err := f.svc.Rent(context.Background(), renter, id, 3*tokens.OneDay, 30)

	require.ErrorIs(t, err, tokens.ErrSettlementFailed)
	require.ErrorIs(t, err, ledger.ErrPaymentRejected)

	rec := testhelpers.Record(t, f.store, id)
	require.Equal(t, tokens.StateListedForRent, rec.State)
	require.Nil(t, rec.Lease)
	require.Equal(t, owner, testhelpers.Holder(t, f.store, id))
	require.Equal(t, tokens.SystemAccount, testhelpers.Approved(t, f.store, id))
	require.Equal(t, int64(1000), testhelpers.Balance(t, f.store, owner))
	require.Equal(t, int64(1000), testhelpers.Balance(t, f.store, renter))
	require.Len(t, f.events.Events(), before)
}

func TestRetrieve_AfterExpiry(t *testing.T) {
	f := newRentalFixture(t)
	id := f.listed(t, 1000)
	_, err := f.svc.Rent(context.Background(), renter, id, 3*tokens.OneDay, 30)
	require.NoError(t, err)

	_, err = f.svc.Retrieve(context.Background(), owner, id)
	require.ErrorIs(t, err, tokens.ErrRentNotExpired)

	f.clock.Advance(3*tokens.OneDay - time.Second)
	_, err = f.svc.Retrieve(context.Background(), owner, id)
	require.ErrorIs(t, err, tokens.ErrRentNotExpired)

	f.clock.Advance(time.Second)
	token, err := f.svc.Retrieve(context.Background(), owner, id)

	require.NoError(t, err)
	require.Equal(t, tokens.StateIdle, token.State)
	require.Nil(t, token.Renter)
	require.Equal(t, owner, testhelpers.Holder(t, f.store, id))
	require.Equal(t, tokens.Address(""), testhelpers.Approved(t, f.store, id))
	testhelpers.RequireInvariants(t, f.store, id)

	require.Equal(t, []events.Kind{events.KindListedForRent, events.KindRented, events.KindRetrieved}, f.events.Kinds())

	// the token is listable again
	_, err = f.market.ListForSale(context.Background(), owner, id)
	require.NoError(t, err)
}

func TestRetrieve_Rejections(t *testing.T) {
	f := newRentalFixture(t)
	id := f.listed(t, 1000)

	_, err := f.svc.Retrieve(context.Background(), owner, id)
	require.ErrorIs(t, err, tokens.ErrNotRented)

	_, err = f.svc.Rent(context.Background(), renter, id, tokens.OneDay, 10)
	require.NoError(t, err)
	f.clock.Advance(2 * tokens.OneDay)

	_, err = f.svc.Retrieve(context.Background(), renter, id)
	require.ErrorIs(t, err, tokens.ErrNotOwner)

	_, err = f.svc.Retrieve(context.Background(), other, id)
	require.ErrorIs(t, err, tokens.ErrNotOwner)
	testhelpers.RequireInvariants(t, f.store, id)
}

func TestRenter_CannotEscapeLease(t *testing.T) {
	f := newRentalFixture(t)
	custodySvc := custody.NewCustodyService(f.store, custody.NewGuard(), f.events, f.clock, zap.NewNop())
	id := f.listed(t, 1000)
	_, err := f.svc.Rent(context.Background(), renter, id, tokens.OneDay, 10)
	require.NoError(t, err)

	_, err = f.market.ListForSale(context.Background(), renter, id)
	require.ErrorIs(t, err, tokens.ErrNotOwner)

	_, err = f.svc.ListForRent(context.Background(), renter, id)
	require.ErrorIs(t, err, tokens.ErrNotOwner)

	_, err = f.market.Unlist(context.Background(), owner, id)
	require.ErrorIs(t, err, tokens.ErrNotListed)

	_, err = custodySvc.Transfer(context.Background(), renter, id, other, false)
	require.ErrorIs(t, err, tokens.ErrCustodyDenied)

	_, err = custodySvc.Approve(context.Background(), renter, id, other)
	require.ErrorIs(t, err, tokens.ErrCustodyDenied)

	rec := testhelpers.Record(t, f.store, id)
	require.Equal(t, owner, rec.Owner)
	require.Equal(t, renter, testhelpers.Holder(t, f.store, id))
	testhelpers.RequireInvariants(t, f.store, id)
}

func TestUnlist_RentListingRevokesStandingApproval(t *testing.T) {
	f := newRentalFixture(t)
	id := f.listed(t, 1000)

	token, err := f.market.Unlist(context.Background(), owner, id)

	require.NoError(t, err)
	require.Equal(t, tokens.StateIdle, token.State)
	require.Equal(t, tokens.Address(""), testhelpers.Approved(t, f.store, id))
	testhelpers.RequireInvariants(t, f.store, id)

	_, err = f.svc.Rent(context.Background(), renter, id, tokens.OneDay, 10)
	require.ErrorIs(t, err, tokens.ErrNotAvailable)
}
