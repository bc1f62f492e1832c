package custody

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tokenlease/pkg/auth"
	"tokenlease/pkg/response"
	"tokenlease/pkg/tokens"
)

type TransferRequest struct {
	To   string `json:"to" binding:"required"`
	Safe bool   `json:"safe"`
}

type ApproveRequest struct {
	Spender string `json:"spender"`
}

type CustodyHandler struct {
	service CustodyService
}

func NewCustodyHandler(service CustodyService) *CustodyHandler {
	return &CustodyHandler{service: service}
}

func (h *CustodyHandler) RegisterRoutes(router gin.IRouter, authn gin.HandlerFunc) {
	router.POST("/tokens/:id/transfer", authn, h.transfer)
	router.POST("/tokens/:id/approve", authn, h.approve)
	router.GET("/tokens/:id/custody", h.custody)
}

// @Summary      Transfer a token
// @Description  Moves an idle token to another account; the beneficial owner follows. With safe=true the recipient must have a ledger account. Renters are always rejected.
// @Tags         custody
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path  int              true  "Token ID"
// @Param        request  body  TransferRequest  true  "Recipient"
// @Success      200  {object}  response.APIResponse{data=tokens.Token}
// @Failure      400  {object}  response.APIResponse "Invalid request or unknown recipient"
// @Failure      403  {object}  response.APIResponse "Custody change not permitted"
// @Failure      404  {object}  response.APIResponse "Token not found"
// @Failure      409  {object}  response.APIResponse "Token is listed or rented"
// @Router       /tokens/{id}/transfer [post]
func (h *CustodyHandler) transfer(c *gin.Context) {
	id, ok := parseTokenID(c)
	if !ok {
		return
	}
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}

	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendErrorResponse(c, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	token, err := h.service.Transfer(c.Request.Context(), caller, id, tokens.Address(req.To), req.Safe)
	if err != nil {
		sendServiceError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "token transferred", token)
}

// @Summary      Approve a spender
// @Description  Sets or clears (empty spender) the approved spender of an idle token. Owner only.
// @Tags         custody
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path  int             true  "Token ID"
// @Param        request  body  ApproveRequest  true  "Spender"
// @Success      200  {object}  response.APIResponse{data=tokens.Token}
// @Failure      403  {object}  response.APIResponse "Custody change not permitted"
// @Failure      404  {object}  response.APIResponse "Token not found"
// @Failure      409  {object}  response.APIResponse "Token is listed or rented"
// @Router       /tokens/{id}/approve [post]
func (h *CustodyHandler) approve(c *gin.Context) {
	id, ok := parseTokenID(c)
	if !ok {
		return
	}
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}

	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendErrorResponse(c, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	token, err := h.service.Approve(c.Request.Context(), caller, id, tokens.Address(req.Spender))
	if err != nil {
		sendServiceError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "approval updated", token)
}

// @Summary      Get raw custody
// @Description  Returns the registry holder and approved spender of a token
// @Tags         custody
// @Produce      json
// @Param        id   path      int  true  "Token ID"
// @Success      200  {object}  response.APIResponse{data=Holding}
// @Failure      404  {object}  response.APIResponse "Token not found"
// @Router       /tokens/{id}/custody [get]
func (h *CustodyHandler) custody(c *gin.Context) {
	id, ok := parseTokenID(c)
	if !ok {
		return
	}

	holding, err := h.service.Custody(c.Request.Context(), id)
	if err != nil {
		sendServiceError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "custody fetched", holding)
}

func parseTokenID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.SendErrorResponse(c, http.StatusBadRequest, "invalid_request", "invalid token id")
		return 0, false
	}
	return id, true
}

func sendServiceError(c *gin.Context, err error) {
	response.SendErrorResponse(c, tokens.HTTPStatus(err), tokens.Code(err), err.Error())
}
