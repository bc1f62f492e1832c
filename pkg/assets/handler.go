package assets

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tokenlease/pkg/auth"
	"tokenlease/pkg/response"
	"tokenlease/pkg/tokens"
)

type AssetHandler struct {
	service AssetService
}

func NewAssetHandler(service AssetService) *AssetHandler {
	return &AssetHandler{service: service}
}

func (h *AssetHandler) RegisterRoutes(router gin.IRouter, authn gin.HandlerFunc) {
	router.POST("/tokens", authn, h.mint)
	router.GET("/tokens", h.listTokens)
	router.GET("/tokens/:id", h.getRecord)
	router.GET("/marketplace/tokens", h.listForSale)
}

type mintRequest struct {
	Metadata string `json:"metadata"`
	Price    int64  `json:"price" binding:"required"`
}

// @Summary      Mint a token
// @Description  Mints a new token owned by the caller. Price must be positive.
// @Tags         tokens
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body mintRequest true "Mint request"
// @Success      201  {object}  response.APIResponse{data=tokens.Token} "Token minted"
// @Failure      400  {object}  response.APIResponse "Invalid request payload"
// @Failure      401  {object}  response.APIResponse "Unauthorized"
// @Failure      500  {object}  response.APIResponse "Internal server error"
// @Router       /tokens [post]
func (h *AssetHandler) mint(c *gin.Context) {
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}

	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendErrorResponse(c, http.StatusBadRequest, "invalid_request", "invalid request payload")
		return
	}

	if req.Price <= 0 {
		response.SendErrorResponse(c, http.StatusBadRequest, tokens.Code(tokens.ErrInvalidPrice), "price must be positive")
		return
	}

	token, err := h.service.Mint(c.Request.Context(), caller, MintInput{Metadata: req.Metadata, Price: req.Price})
	if err != nil {
		sendServiceError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusCreated, true, "token minted", token)
}

// @Summary      Get token by ID
// @Description  Retrieves the record projection of a single token
// @Tags         tokens
// @Produce      json
// @Param        id   path      int  true  "Token ID"
// @Success      200  {object}  response.APIResponse{data=tokens.Token} "Token retrieved"
// @Failure      400  {object}  response.APIResponse "Invalid token ID"
// @Failure      404  {object}  response.APIResponse "Token not found"
// @Failure      500  {object}  response.APIResponse "Internal server error"
// @Router       /tokens/{id} [get]
func (h *AssetHandler) getRecord(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.SendErrorResponse(c, http.StatusBadRequest, "invalid_request", "invalid token id")
		return
	}

	token, err := h.service.GetRecord(c.Request.Context(), id)
	if err != nil {
		sendServiceError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "token fetched", token)
}

// @Summary      List tokens
// @Description  Retrieves a paginated list of tokens with optional owner and state filters
// @Tags         tokens
// @Produce      json
// @Param        page   query     int     false  "Page number" default(1)
// @Param        limit  query     int     false  "Items per page" default(10)
// @Param        owner  query     string  false  "Filter by owner address"
// @Param        state  query     string  false  "Filter by state" Enums(idle, listed_for_sale, listed_for_rent, rented)
// @Success      200  {object}  response.APIResponse{data=tokens.TokenList} "Tokens listed"
// @Failure      400  {object}  response.APIResponse "Invalid state filter"
// @Failure      500  {object}  response.APIResponse "Internal server error"
// @Router       /tokens [get]
func (h *AssetHandler) listTokens(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = defaultPage
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	filter := tokens.Filter{}

	if owner := c.Query("owner"); owner != "" {
		addr := tokens.Address(owner)
		filter.Owner = &addr
	}

	if stateStr := c.Query("state"); stateStr != "" {
		state := tokens.State(stateStr)
		if !state.Valid() {
			response.SendErrorResponse(c, http.StatusBadRequest, "invalid_request", "invalid state")
			return
		}
		filter.State = &state
	}

	list, err := h.service.ListTokens(c.Request.Context(), filter, page, limit)
	if err != nil {
		sendServiceError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "tokens listed", list)
}

// @Summary      List tokens for sale
// @Description  Returns every token currently listed for sale in ascending id order
// @Tags         tokens
// @Produce      json
// @Success      200  {object}  response.APIResponse{data=ForSaleList} "Tokens for sale"
// @Failure      500  {object}  response.APIResponse "Internal server error"
// @Router       /marketplace/tokens [get]
func (h *AssetHandler) listForSale(c *gin.Context) {
	list, err := h.service.ListForSaleAssets(c.Request.Context())
	if err != nil {
		sendServiceError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "tokens for sale listed", list)
}

func sendServiceError(c *gin.Context, err error) {
	response.SendErrorResponse(c, tokens.HTTPStatus(err), tokens.Code(err), err.Error())
}
