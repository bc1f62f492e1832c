package market

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tokenlease/pkg/auth"
	"tokenlease/pkg/response"
	"tokenlease/pkg/tokens"
)

type BuyRequest struct {
	Payment *int64 `json:"payment" binding:"required"`
}

type MarketHandler struct {
	service MarketService
}

func NewMarketHandler(service MarketService) *MarketHandler {
	return &MarketHandler{service: service}
}

func (h *MarketHandler) RegisterRoutes(router gin.IRouter, authn gin.HandlerFunc) {
	router.PATCH("/tokens/:id/list-for-sale", authn, h.listForSale)
	router.PATCH("/tokens/:id/unlist", authn, h.unlist)
	router.POST("/tokens/:id/buy", authn, h.buy)
}

// @Summary      List a token for sale
// @Description  Moves custody of an idle token to the registry and opens it for purchase at its price. Owner only.
// @Tags         market
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Token ID"
// @Success      200  {object}  response.APIResponse{data=tokens.Token} "Token listed for sale"
// @Failure      400  {object}  response.APIResponse "Invalid token ID"
// @Failure      403  {object}  response.APIResponse "Caller is not the owner"
// @Failure      404  {object}  response.APIResponse "Token not found"
// @Failure      409  {object}  response.APIResponse "Token cannot be listed"
// @Router       /tokens/{id}/list-for-sale [patch]
func (h *MarketHandler) listForSale(c *gin.Context) {
	id, ok := parseTokenID(c)
	if !ok {
		return
	}
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}

	token, err := h.service.ListForSale(c.Request.Context(), caller, id)
	if err != nil {
		sendServiceError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "token listed for sale", token)
}

// @Summary      Unlist a token
// @Description  Withdraws a sale or rent listing. A sale listing returns custody to the owner. Owner only.
// @Tags         market
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Token ID"
// @Success      200  {object}  response.APIResponse{data=tokens.Token} "Token unlisted"
// @Failure      400  {object}  response.APIResponse "Invalid token ID"
// @Failure      403  {object}  response.APIResponse "Caller is not the owner"
// @Failure      404  {object}  response.APIResponse "Token not found"
// @Failure      409  {object}  response.APIResponse "Token is not listed"
// @Router       /tokens/{id}/unlist [patch]
func (h *MarketHandler) unlist(c *gin.Context) {
	id, ok := parseTokenID(c)
	if !ok {
		return
	}
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}

	token, err := h.service.Unlist(c.Request.Context(), caller, id)
	if err != nil {
		sendServiceError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "token unlisted", token)
}

// @Summary      Buy a token
// @Description  Buys a token listed for sale. payment must equal the price exactly and is forwarded to the previous owner.
// @Tags         market
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path  int         true  "Token ID"
// @Param        request  body  BuyRequest  true  "Payment"
// @Success      200  {object}  response.APIResponse{data=tokens.Token} "Token bought"
// @Failure      400  {object}  response.APIResponse "Invalid request or wrong amount"
// @Failure      402  {object}  response.APIResponse "Payment settlement failed"
// @Failure      404  {object}  response.APIResponse "Token not found"
// @Failure      409  {object}  response.APIResponse "Token not listed or caller already owns it"
// @Router       /tokens/{id}/buy [post]
func (h *MarketHandler) buy(c *gin.Context) {
	id, ok := parseTokenID(c)
	if !ok {
		return
	}
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}

	var req BuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendErrorResponse(c, http.StatusBadRequest, "invalid_request", "payment is required")
		return
	}

	token, err := h.service.Buy(c.Request.Context(), caller, id, *req.Payment)
	if err != nil {
		sendServiceError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "token bought", token)
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
