package accounts

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tokenlease/pkg/auth"
	"tokenlease/pkg/ledger"
	"tokenlease/pkg/response"
	"tokenlease/pkg/tokens"
)

type AccountHandler struct {
	service AccountService
}

func NewAccountHandler(service AccountService) *AccountHandler {
	return &AccountHandler{service: service}
}

func (h *AccountHandler) RegisterRoutes(router gin.IRouter, authn gin.HandlerFunc) {
	router.POST("/accounts", h.register)
	router.POST("/accounts/login", h.login)
	router.GET("/accounts/me", authn, h.me)
	router.PATCH("/accounts/me/payments", authn, h.setAcceptsPayments)
	router.POST("/accounts/:address/deposit", authn, h.deposit)
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type paymentsRequest struct {
	AcceptsPayments *bool `json:"accepts_payments" binding:"required"`
}

type depositRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// @Summary      Register account
// @Description  Creates an account and opens its ledger balance
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Param        request body registerRequest true "Register request"
// @Success      201 {object} response.APIResponse{data=Account}
// @Failure      400 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Failure      500 {object} response.APIResponse
// @Router       /accounts [post]
func (h *AccountHandler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendErrorResponse(c, http.StatusBadRequest, "invalid_request", "invalid request payload")
		return
	}

	a, err := h.service.Register(c.Request.Context(), RegisterInput{Name: req.Name, Email: req.Email, Password: req.Password})
	if err != nil {
		sendAccountError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusCreated, true, "account created", a)
}

// @Summary      Login
// @Description  Verifies the password and returns a bearer token
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Param        request body loginRequest true "Login request"
// @Success      200 {object} response.APIResponse{data=Session}
// @Failure      400 {object} response.APIResponse
// @Failure      401 {object} response.APIResponse
// @Failure      500 {object} response.APIResponse
// @Router       /accounts/login [post]
func (h *AccountHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendErrorResponse(c, http.StatusBadRequest, "invalid_request", "invalid request payload")
		return
	}

	session, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		sendAccountError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "login successful", session)
}

// @Summary      Current account
// @Tags         accounts
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} response.APIResponse{data=Profile}
// @Failure      401 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /accounts/me [get]
func (h *AccountHandler) me(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}

	p, err := h.service.Profile(c.Request.Context(), caller)
	if err != nil {
		sendAccountError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "account fetched", p)
}

// @Summary      Toggle accepts-payments
// @Description  When disabled, sales and rentals paying this account fail settlement
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body paymentsRequest true "Payments flag"
// @Success      200 {object} response.APIResponse{data=Profile}
// @Failure      400 {object} response.APIResponse
// @Failure      401 {object} response.APIResponse
// @Router       /accounts/me/payments [patch]
func (h *AccountHandler) setAcceptsPayments(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}

	var req paymentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendErrorResponse(c, http.StatusBadRequest, "invalid_request", "invalid request payload")
		return
	}

	p, err := h.service.SetAcceptsPayments(c.Request.Context(), caller, *req.AcceptsPayments)
	if err != nil {
		sendAccountError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "payments flag updated", p)
}

// @Summary      Deposit funds (admin)
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        address path string true "Account address"
// @Param        request body depositRequest true "Deposit"
// @Success      200 {object} response.APIResponse{data=ledger.Account}
// @Failure      400 {object} response.APIResponse
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /accounts/{address}/deposit [post]
func (h *AccountHandler) deposit(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}

	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendErrorResponse(c, http.StatusBadRequest, "invalid_request", "invalid request payload")
		return
	}

	capability, err := h.service.AdminCapability(c.Request.Context(), caller)
	if err != nil {
		sendAccountError(c, err)
		return
	}

	acct, err := h.service.Deposit(c.Request.Context(), capability, tokens.Address(c.Param("address")), req.Amount)
	if err != nil {
		sendAccountError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "deposit credited", acct)
}

func sendAccountError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidDeposit):
		response.SendErrorResponse(c, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, ErrEmailTaken):
		response.SendErrorResponse(c, http.StatusConflict, "email_taken", err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		response.SendErrorResponse(c, http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, ErrNotAdmin):
		response.SendErrorResponse(c, http.StatusForbidden, "not_admin", err.Error())
	case errors.Is(err, ledger.ErrBalanceOverflow):
		response.SendErrorResponse(c, http.StatusConflict, "balance_overflow", err.Error())
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ledger.ErrUnknownAccount):
		response.SendErrorResponse(c, http.StatusNotFound, "account_not_found", err.Error())
	default:
		response.SendErrorResponse(c, http.StatusInternalServerError, "internal", err.Error())
	}
}
