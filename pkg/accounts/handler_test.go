package accounts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tokenlease/pkg/auth"
	"tokenlease/pkg/ledger"
	"tokenlease/pkg/response"
	"tokenlease/pkg/tokens"
)

type mockAccountService struct {
	mock.Mock
}

func (m *mockAccountService) Register(ctx context.Context, input RegisterInput) (Account, error) {
	args := m.Called(ctx, input)
	a, _ := args.Get(0).(Account)
	return a, args.Error(1)
}

func (m *mockAccountService) Login(ctx context.Context, email, password string) (Session, error) {
	args := m.Called(ctx, email, password)
	s, _ := args.Get(0).(Session)
	return s, args.Error(1)
}

func (m *mockAccountService) Profile(ctx context.Context, addr tokens.Address) (Profile, error) {
	args := m.Called(ctx, addr)
	p, _ := args.Get(0).(Profile)
	return p, args.Error(1)
}

func (m *mockAccountService) SetAcceptsPayments(ctx context.Context, caller tokens.Address, accepts bool) (Profile, error) {
	args := m.Called(ctx, caller, accepts)
	p, _ := args.Get(0).(Profile)
	return p, args.Error(1)
}

func (m *mockAccountService) AdminCapability(ctx context.Context, caller tokens.Address) (AdminCapability, error) {
	args := m.Called(ctx, caller)
	c, _ := args.Get(0).(AdminCapability)
	return c, args.Error(1)
}

func (m *mockAccountService) Deposit(ctx context.Context, capability AdminCapability, to tokens.Address, amount int64) (ledger.Account, error) {
	args := m.Called(ctx, capability, to, amount)
	a, _ := args.Get(0).(ledger.Account)
	return a, args.Error(1)
}

func testAuth(c *gin.Context) {
	if caller := c.GetHeader("X-Caller"); caller != "" {
		auth.SetCaller(c, tokens.Address(caller))
	}
	c.Next()
}

func setupAccountRouter(service AccountService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewAccountHandler(service)
	h.RegisterRoutes(r, testAuth)
	return r
}

func doJSON(r *gin.Engine, method, path, caller string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set("X-Caller", caller)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.APIResponse {
	t.Helper()
	var resp response.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAccountHandler_Register(t *testing.T) {
	svc := new(mockAccountService)
	r := setupAccountRouter(svc)

	input := RegisterInput{Name: "Alice", Email: "alice@example.com", Password: "pw"}
	svc.On("Register", mock.Anything, input).Return(Account{ID: 1, Address: "addr-1", Name: "Alice", Email: "alice@example.com"}, nil)

	w := doJSON(r, http.MethodPost, "/accounts", "", map[string]string{"name": "Alice", "email": "alice@example.com", "password": "pw"})

	require.Equal(t, http.StatusCreated, w.Code)
	require.True(t, decode(t, w).Success)
	svc.AssertExpectations(t)
}

func TestAccountHandler_Register_Conflict(t *testing.T) {
	svc := new(mockAccountService)
	r := setupAccountRouter(svc)

	svc.On("Register", mock.Anything, mock.Anything).Return(Account{}, ErrEmailTaken)

	w := doJSON(r, http.MethodPost, "/accounts", "", map[string]string{"name": "A", "email": "a@b.c", "password": "pw"})

	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "email_taken", decode(t, w).Code)
}

func TestAccountHandler_Register_InvalidPayload(t *testing.T) {
	svc := new(mockAccountService)
	r := setupAccountRouter(svc)

	w := doJSON(r, http.MethodPost, "/accounts", "", map[string]string{"name": "A"})

	require.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
}

func TestAccountHandler_Login(t *testing.T) {
	svc := new(mockAccountService)
	r := setupAccountRouter(svc)

	svc.On("Login", mock.Anything, "alice@example.com", "pw").Return(Session{Token: "jwt"}, nil)
	svc.On("Login", mock.Anything, "alice@example.com", "bad").Return(Session{}, ErrInvalidCredentials)

	w := doJSON(r, http.MethodPost, "/accounts/login", "", map[string]string{"email": "alice@example.com", "password": "pw"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPost, "/accounts/login", "", map[string]string{"email": "alice@example.com", "password": "bad"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "invalid_credentials", decode(t, w).Code)
}

func TestAccountHandler_Me(t *testing.T) {
	svc := new(mockAccountService)
	r := setupAccountRouter(svc)

	svc.On("Profile", mock.Anything, tokens.Address("addr-1")).Return(Profile{Account: Account{Address: "addr-1"}, Balance: 42}, nil)

	w := doJSON(r, http.MethodGet, "/accounts/me", "addr-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/accounts/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAccountHandler_SetAcceptsPayments(t *testing.T) {
	svc := new(mockAccountService)
	r := setupAccountRouter(svc)

	svc.On("SetAcceptsPayments", mock.Anything, tokens.Address("addr-1"), false).Return(Profile{}, nil)

	w := doJSON(r, http.MethodPatch, "/accounts/me/payments", "addr-1", map[string]bool{"accepts_payments": false})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPatch, "/accounts/me/payments", "addr-1", map[string]string{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNumberOfCalls(t, "SetAcceptsPayments", 1)
}

func TestAccountHandler_Deposit(t *testing.T) {
	svc := new(mockAccountService)
	r := setupAccountRouter(svc)

	capability := AdminCapability{holder: "root"}
	svc.On("AdminCapability", mock.Anything, tokens.Address("root")).Return(capability, nil)
	svc.On("AdminCapability", mock.Anything, tokens.Address("alice")).Return(AdminCapability{}, ErrNotAdmin)
	svc.On("Deposit", mock.Anything, capability, tokens.Address("bob"), int64(500)).Return(ledger.Account{Address: "bob", Balance: 500}, nil)

	w := doJSON(r, http.MethodPost, "/accounts/bob/deposit", "root", map[string]int64{"amount": 500})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPost, "/accounts/bob/deposit", "alice", map[string]int64{"amount": 500})
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "not_admin", decode(t, w).Code)

	svc.AssertNumberOfCalls(t, "Deposit", 1)
}
