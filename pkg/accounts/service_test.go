package accounts

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tokenlease/pkg/auth"
	"tokenlease/pkg/events"
	"tokenlease/pkg/ledger"
	"tokenlease/pkg/store"
	"tokenlease/pkg/testhelpers"
	"tokenlease/pkg/tokens"
)

type mockAccountRepository struct {
	mock.Mock
}

func (m *mockAccountRepository) CreateAccount(ctx context.Context, a Account, passwordHash string) (Account, error) {
	args := m.Called(ctx, a, passwordHash)
	acct, _ := args.Get(0).(Account)
	return acct, args.Error(1)
}

func (m *mockAccountRepository) GetAccountByAddress(ctx context.Context, addr tokens.Address) (Account, error) {
	args := m.Called(ctx, addr)
	acct, _ := args.Get(0).(Account)
	return acct, args.Error(1)
}

func (m *mockAccountRepository) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	args := m.Called(ctx, email)
	acct, _ := args.Get(0).(Account)
	return acct, args.Error(1)
}

func (m *mockAccountRepository) GetAccountAuthByEmail(ctx context.Context, email string) (Account, string, error) {
	args := m.Called(ctx, email)
	acct, _ := args.Get(0).(Account)
	return acct, args.String(1), args.Error(2)
}

const adminEmail = "admin@example.com"

type accountFixture struct {
	svc    AccountService
	repo   AccountRepository
	store  *store.MemoryStore
	issuer *auth.Issuer
	events *events.Recorder
}

func newAccountFixture(t *testing.T) accountFixture {
	t.Helper()
	clock := testhelpers.NewClock()
	st := store.NewMemoryStore()
	issuer := auth.NewIssuer("test-secret", time.Hour)
	rec := &events.Recorder{}
	repo := NewMemoryAccountRepository(clock)
	svc := NewAccountService(repo, st, issuer, adminEmail, rec, clock, zap.NewNop())
	return accountFixture{svc: svc, repo: repo, store: st, issuer: issuer, events: rec}
}

func (f accountFixture) register(t *testing.T, name, email string) Account {
	t.Helper()
	a, err := f.svc.Register(context.Background(), RegisterInput{Name: name, Email: email, Password: "password123"})
	require.NoError(t, err)
	return a
}

func TestRegister_OpensLedgerAccount(t *testing.T) {
	f := newAccountFixture(t)

	a := f.register(t, "Alice", "  Alice@Example.com ")

	require.NotEmpty(t, a.Address)
	require.Equal(t, "alice@example.com", a.Email)
	require.False(t, a.IsAdmin)

	p, err := f.svc.Profile(context.Background(), a.Address)
	require.NoError(t, err)
	require.Zero(t, p.Balance)
	require.True(t, p.AcceptsPayments)
}

func TestRegister_AdminByEmail(t *testing.T) {
	f := newAccountFixture(t)

	a := f.register(t, "Root", "ADMIN@example.com")

	require.True(t, a.IsAdmin)
}

func TestRegister_Rejections(t *testing.T) {
	f := newAccountFixture(t)
	f.register(t, "Alice", "alice@example.com")

	_, err := f.svc.Register(context.Background(), RegisterInput{Name: "Again", Email: "ALICE@example.com", Password: "x"})
	require.ErrorIs(t, err, ErrEmailTaken)

	_, err = f.svc.Register(context.Background(), RegisterInput{Name: "", Email: "bob@example.com", Password: "x"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Register(context.Background(), RegisterInput{Name: "Bob", Email: "not-an-email", Password: "x"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegister_RepositoryFailure(t *testing.T) {
	repo := new(mockAccountRepository)
	svc := NewAccountService(repo, store.NewMemoryStore(), auth.NewIssuer("s", time.Hour), "", events.Nop{}, testhelpers.NewClock(), zap.NewNop())

	boom := errors.New("db down")
	repo.On("GetAccountByEmail", mock.Anything, "carol@example.com").Return(Account{}, ErrAccountNotFound)
	repo.On("CreateAccount", mock.Anything, mock.MatchedBy(func(a Account) bool { return a.Email == "carol@example.com" }), mock.Anything).
		Return(Account{}, boom)

	_, err := svc.Register(context.Background(), RegisterInput{Name: "Carol", Email: "carol@example.com", Password: "pw"})

	require.ErrorIs(t, err, boom)
	repo.AssertExpectations(t)
}

func TestLogin(t *testing.T) {
	f := newAccountFixture(t)
	a := f.register(t, "Alice", "alice@example.com")

	session, err := f.svc.Login(context.Background(), "ALICE@example.com", "password123")
	require.NoError(t, err)
	require.Equal(t, a.Address, session.Account.Address)

	claims, err := f.issuer.Parse(session.Token)
	require.NoError(t, err)
	require.Equal(t, string(a.Address), claims.Subject)

	_, err = f.svc.Login(context.Background(), "alice@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(context.Background(), "nobody@example.com", "password123")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSetAcceptsPayments(t *testing.T) {
	f := newAccountFixture(t)
	a := f.register(t, "Alice", "alice@example.com")

	p, err := f.svc.SetAcceptsPayments(context.Background(), a.Address, false)
	require.NoError(t, err)
	require.False(t, p.AcceptsPayments)

	err = f.store.Atomic(context.Background(), func(tx store.Tx) error {
		return ledger.Pay(context.Background(), tx.Ledger(), tokens.SystemAccount, a.Address, 1)
	})
	require.ErrorIs(t, err, ledger.ErrPaymentRejected)
	require.Equal(t, []events.Kind{events.KindPaymentsToggle}, f.events.Kinds())

	_, err = f.svc.SetAcceptsPayments(context.Background(), "ghost", true)
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestDeposit_RequiresAdminCapability(t *testing.T) {
	f := newAccountFixture(t)
	admin := f.register(t, "Root", adminEmail)
	alice := f.register(t, "Alice", "alice@example.com")

	_, err := f.svc.AdminCapability(context.Background(), alice.Address)
	require.ErrorIs(t, err, ErrNotAdmin)

	_, err = f.svc.Deposit(context.Background(), AdminCapability{}, alice.Address, 100)
	require.ErrorIs(t, err, ErrNotAdmin)

	capability, err := f.svc.AdminCapability(context.Background(), admin.Address)
	require.NoError(t, err)
	require.Equal(t, admin.Address, capability.Holder())

	acct, err := f.svc.Deposit(context.Background(), capability, alice.Address, 100)
	require.NoError(t, err)
	require.Equal(t, int64(100), acct.Balance)
	require.Equal(t, int64(100), testhelpers.Balance(t, f.store, alice.Address))

	_, err = f.svc.Deposit(context.Background(), capability, alice.Address, 0)
	require.ErrorIs(t, err, ErrInvalidDeposit)

	_, err = f.svc.Deposit(context.Background(), capability, "ghost", 5)
	require.ErrorIs(t, err, ledger.ErrUnknownAccount)

	deposits := make([]events.Event, 0, 1)
	for _, e := range f.events.Events() {
		if e.Kind == events.KindDeposited {
			deposits = append(deposits, e)
		}
	}
	require.Len(t, deposits, 1)
	require.Equal(t, admin.Address, deposits[0].Actor)
	require.Equal(t, alice.Address, deposits[0].Counterparty)
	require.Equal(t, int64(100), deposits[0].Amount)
}

func TestDeposit_BalanceOverflow(t *testing.T) {
	f := newAccountFixture(t)
	admin := f.register(t, "Root", adminEmail)
	alice := f.register(t, "Alice", "alice@example.com")
	capability, err := f.svc.AdminCapability(context.Background(), admin.Address)
	require.NoError(t, err)

	_, err = f.svc.Deposit(context.Background(), capability, alice.Address, math.MaxInt64)
	require.NoError(t, err)

	_, err = f.svc.Deposit(context.Background(), capability, alice.Address, 1)
	require.ErrorIs(t, err, ledger.ErrBalanceOverflow)
	require.Equal(t, int64(math.MaxInt64), testhelpers.Balance(t, f.store, alice.Address))
}

func TestDirectory_EmailFor(t *testing.T) {
	f := newAccountFixture(t)
	a := f.register(t, "Alice", "alice@example.com")
	dir := NewDirectory(f.repo)

	email, err := dir.EmailFor(context.Background(), a.Address)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", email)

	_, err = dir.EmailFor(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrAccountNotFound)
}
