package market

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tokenlease/pkg/custody"
	"tokenlease/pkg/events"
	"tokenlease/pkg/ledger"
	"tokenlease/pkg/store"
	"tokenlease/pkg/testhelpers"
	"tokenlease/pkg/tokens"
)

const (
	alice = tokens.Address("alice")
	bob   = tokens.Address("bob")
	carol = tokens.Address("carol")
)

func newTestMarket(t *testing.T, policy tokens.SoldPolicy) (MarketService, *store.MemoryStore, *events.Recorder) {
	t.Helper()
	st := store.NewMemoryStore()
	rec := &events.Recorder{}
	svc := NewMarketService(st, custody.NewGuard(), policy, rec, testhelpers.NewClock(), zap.NewNop())
	for _, a := range []tokens.Address{alice, bob, carol} {
		testhelpers.OpenAccount(t, st, a, 1000)
	}
	return svc, st, rec
}

func TestListForSale_MovesCustodyToSystem(t *testing.T) {
	svc, st, rec := newTestMarket(t, tokens.SoldPolicyStrict)
	id := testhelpers.SeedToken(t, st, alice, 100, true)

	token, err := svc.ListForSale(context.Background(), alice, id)

	require.NoError(t, err)
	require.True(t, token.ListedForSale)
	require.True(t, token.CustodyHeldByRegistry)
	require.False(t, token.Sold)
	require.Equal(t, alice, token.Owner)
	require.Equal(t, tokens.SystemAccount, testhelpers.Holder(t, st, id))
	testhelpers.RequireInvariants(t, st, id)
	require.Equal(t, []events.Kind{events.KindListedForSale}, rec.Kinds())
}

func TestListForSale_Rejections(t *testing.T) {
	svc, st, _ := newTestMarket(t, tokens.SoldPolicyStrict)
	id := testhelpers.SeedToken(t, st, alice, 100, true)

	_, err := svc.ListForSale(context.Background(), bob, id)
	require.ErrorIs(t, err, tokens.ErrNotOwner)

	_, err = svc.ListForSale(context.Background(), alice, 404)
	require.ErrorIs(t, err, tokens.ErrNotFound)

	_, err = svc.ListForSale(context.Background(), alice, id)
	require.NoError(t, err)

	_, err = svc.ListForSale(context.Background(), alice, id)
	require.ErrorIs(t, err, tokens.ErrNotListable)
	testhelpers.RequireInvariants(t, st, id)
}

func TestListForSale_StrictPolicyRequiresSoldFlag(t *testing.T) {
	svc, st, _ := newTestMarket(t, tokens.SoldPolicyStrict)
	id := testhelpers.SeedToken(t, st, alice, 100, false)

	_, err := svc.ListForSale(context.Background(), alice, id)
	require.ErrorIs(t, err, tokens.ErrNotListable)

	lenient, st2, _ := newTestMarket(t, tokens.SoldPolicyLenient)
	id2 := testhelpers.SeedToken(t, st2, alice, 100, false)

	_, err = lenient.ListForSale(context.Background(), alice, id2)
	require.NoError(t, err)
}

func TestUnlist_SaleReturnsCustody(t *testing.T) {
	svc, st, rec := newTestMarket(t, tokens.SoldPolicyStrict)
	id := testhelpers.SeedToken(t, st, alice, 100, true)
	_, err := svc.ListForSale(context.Background(), alice, id)
	require.NoError(t, err)

	token, err := svc.Unlist(context.Background(), alice, id)

	require.NoError(t, err)
	require.Equal(t, tokens.StateIdle, token.State)
	require.True(t, token.Sold)
	require.Equal(t, alice, testhelpers.Holder(t, st, id))
	testhelpers.RequireInvariants(t, st, id)
	require.Equal(t, []events.Kind{events.KindListedForSale, events.KindUnlisted}, rec.Kinds())

	// relisting works again after an unlist
	_, err = svc.ListForSale(context.Background(), alice, id)
	require.NoError(t, err)
}

func TestUnlist_Rejections(t *testing.T) {
	svc, st, _ := newTestMarket(t, tokens.SoldPolicyStrict)
	id := testhelpers.SeedToken(t, st, alice, 100, true)

	_, err := svc.Unlist(context.Background(), alice, id)
	require.ErrorIs(t, err, tokens.ErrNotListed)

	_, err = svc.ListForSale(context.Background(), alice, id)
	require.NoError(t, err)

	_, err = svc.Unlist(context.Background(), bob, id)
	require.ErrorIs(t, err, tokens.ErrNotOwner)
}

func TestBuy_Success(t *testing.T) {
	svc, st, rec := newTestMarket(t, tokens.SoldPolicyStrict)
	id := testhelpers.SeedToken(t, st, alice, 100, true)
	_, err := svc.ListForSale(context.Background(), alice, id)
	require.NoError(t, err)

	token, err := svc.Buy(context.Background(), bob, id, 100)

	require.NoError(t, err)
	require.Equal(t, bob, token.Owner)
	require.True(t, token.Sold)
	require.False(t, token.ListedForSale)
	require.Equal(t, bob, testhelpers.Holder(t, st, id))
	require.Equal(t, int64(1100), testhelpers.Balance(t, st, alice))
	require.Equal(t, int64(900), testhelpers.Balance(t, st, bob))
	testhelpers.RequireInvariants(t, st, id)

	published := rec.Events()
	require.Len(t, published, 2)
	require.Equal(t, bob, published[1].Actor)
	require.Equal(t, alice, published[1].Counterparty)
	require.Equal(t, int64(100), published[1].Amount)
}

func TestBuy_ExactPaymentOnly(t *testing.T) {
	svc, st, _ := newTestMarket(t, tokens.SoldPolicyStrict)
	id := testhelpers.SeedToken(t, st, alice, 100, true)
	_, err := svc.ListForSale(context.Background(), alice, id)
	require.NoError(t, err)

	for _, payment := range []int64{99, 101, 0} {
		_, err := svc.Buy(context.Background(), bob, id, payment)
		require.ErrorIs(t, err, tokens.ErrWrongAmount, "payment %d", payment)
	}
	require.Equal(t, tokens.StateListedForSale, testhelpers.Record(t, st, id).State)

	_, err = svc.Buy(context.Background(), bob, id, 100)
	require.NoError(t, err)
}

func TestBuy_Rejections(t *testing.T) {
	svc, st, _ := newTestMarket(t, tokens.SoldPolicyStrict)
	id := testhelpers.SeedToken(t, st, alice, 100, true)

	_, err := svc.Buy(context.Background(), bob, id, 100)
	require.ErrorIs(t, err, tokens.ErrNotListed)

	_, err = svc.ListForSale(context.Background(), alice, id)
	require.NoError(t, err)

	_, err = svc.Buy(context.Background(), alice, id, 100)
	require.ErrorIs(t, err, tokens.ErrAlreadyOwner)

	_, err = svc.Buy(context.Background(), bob, 404, 100)
	require.ErrorIs(t, err, tokens.ErrNotFound)
}

func TestBuy_SettlementFailureRollsBack(t *testing.T) {
	svc, st, rec := newTestMarket(t, tokens.SoldPolicyStrict)
	id := testhelpers.SeedToken(t, st, alice, 100, true)
	_, err := svc.ListForSale(context.Background(), alice, id)
	require.NoError(t, err)

	require.NoError(t, st.Atomic(context.Background(), func(tx store.Tx) error {
		return tx.Ledger().SetAcceptsPayments(context.Background(), alice, false)
	}))

	_, err = svc.Buy(context.Background(), bob, id, 100)

	require.ErrorIs(t, err, tokens.ErrSettlementFailed)
	require.ErrorIs(t, err, ledger.ErrPaymentRejected)

	r := testhelpers.Record(t, st, id)
	require.Equal(t, alice, r.Owner)
	require.Equal(t, tokens.StateListedForSale, r.State)
	require.False(t, r.Sold)
	require.Equal(t, tokens.SystemAccount, testhelpers.Holder(t, st, id))
	require.Equal(t, int64(1000), testhelpers.Balance(t, st, alice))
	require.Equal(t, int64(1000), testhelpers.Balance(t, st, bob))
	require.Equal(t, []events.Kind{events.KindListedForSale}, rec.Kinds())
}

func TestBuy_InsufficientFunds(t *testing.T) {
	svc, st, _ := newTestMarket(t, tokens.SoldPolicyStrict)
	id := testhelpers.SeedToken(t, st, alice, 5000, true)
	_, err := svc.ListForSale(context.Background(), alice, id)
	require.NoError(t, err)

	_, err = svc.Buy(context.Background(), bob, id, 5000)

	require.ErrorIs(t, err, tokens.ErrSettlementFailed)
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	testhelpers.RequireInvariants(t, st, id)
}

func TestBuy_RelistRotation(t *testing.T) {
	svc, st, _ := newTestMarket(t, tokens.SoldPolicyStrict)
	id := testhelpers.SeedToken(t, st, alice, 100, true)
	ctx := context.Background()

	_, err := svc.ListForSale(ctx, alice, id)
	require.NoError(t, err)
	_, err = svc.Buy(ctx, bob, id, 100)
	require.NoError(t, err)
	testhelpers.RequireInvariants(t, st, id)

	_, err = svc.ListForSale(ctx, alice, id)
	require.ErrorIs(t, err, tokens.ErrNotOwner)

	_, err = svc.ListForSale(ctx, bob, id)
	require.NoError(t, err)
	testhelpers.RequireInvariants(t, st, id)

	token, err := svc.Buy(ctx, carol, id, 100)
	require.NoError(t, err)
	require.Equal(t, carol, token.Owner)
	testhelpers.RequireInvariants(t, st, id)

	require.Equal(t, int64(1100), testhelpers.Balance(t, st, alice))
	require.Equal(t, int64(1000), testhelpers.Balance(t, st, bob))
	require.Equal(t, int64(900), testhelpers.Balance(t, st, carol))
}
