package rental

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tokenlease/pkg/auth"
	"tokenlease/pkg/response"
	"tokenlease/pkg/tokens"
)

type RentRequest struct {
	DurationSeconds *int64 `json:"duration_seconds"`
	Payment         *int64 `json:"payment" binding:"required"`
}

type RentalHandler struct {
	service RentalService
}

func NewRentalHandler(service RentalService) *RentalHandler {
	return &RentalHandler{service: service}
}

func (h *RentalHandler) RegisterRoutes(router gin.IRouter, authn gin.HandlerFunc) {
	router.GET("/tokens/:id/rent-price", h.getRentPrice)
	router.PATCH("/tokens/:id/list-for-rent", authn, h.listForRent)
	router.POST("/tokens/:id/rent", authn, h.rent)
	router.POST("/tokens/:id/retrieve", authn, h.retrieve)
}

// @Summary      Quote rent
// @Description  Returns the rent owed for a duration: floor(price/100) per whole day. duration is seconds or a Go duration such as 72h.
// @Tags         rental
// @Produce      json
// @Param        id        path      int     true  "Token ID"
// @Param        duration  query     string  true  "Rental duration"
// @Success      200  {object}  response.APIResponse{data=Quote}
// @Failure      400  {object}  response.APIResponse "Invalid token ID or duration"
// @Failure      404  {object}  response.APIResponse "Token not found"
// @Router       /tokens/{id}/rent-price [get]
func (h *RentalHandler) getRentPrice(c *gin.Context) {
	id, ok := parseTokenID(c)
	if !ok {
		return
	}

	duration, err := parseDuration(c.Query("duration"))
	if errors.Is(err, tokens.ErrDurationOutOfRange) {
		sendServiceError(c, err)
		return
	}
	if err != nil {
		response.SendErrorResponse(c, http.StatusBadRequest, "invalid_request", "invalid duration")
		return
	}

	quote, err := h.service.GetRentPrice(c.Request.Context(), id, duration)
	if err != nil {
		sendServiceError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "rent price computed", quote)
}

// @Summary      List a token for rent
// @Description  Opens an idle token for rental. Custody stays with the owner. Owner only.
// @Tags         rental
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Token ID"
// @Success      200  {object}  response.APIResponse{data=tokens.Token}
// @Failure      403  {object}  response.APIResponse "Caller is not the owner"
// @Failure      404  {object}  response.APIResponse "Token not found"
// @Failure      409  {object}  response.APIResponse "Token cannot be listed"
// @Router       /tokens/{id}/list-for-rent [patch]
func (h *RentalHandler) listForRent(c *gin.Context) {
	id, ok := parseTokenID(c)
	if !ok {
		return
	}
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}

	token, err := h.service.ListForRent(c.Request.Context(), caller, id)
	if err != nil {
		sendServiceError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "token listed for rent", token)
}

// @Summary      Rent a token
// @Description  Rents a token listed for rent for one to one hundred days. payment must equal the quoted rent and goes to the owner.
// @Tags         rental
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path  int          true  "Token ID"
// @Param        request  body  RentRequest  true  "Duration and payment"
// @Success      200  {object}  response.APIResponse{data=tokens.Token}
// @Failure      400  {object}  response.APIResponse "Wrong amount or duration out of range"
// @Failure      402  {object}  response.APIResponse "Payment settlement failed"
// @Failure      404  {object}  response.APIResponse "Token not found"
// @Failure      409  {object}  response.APIResponse "Token not available or self rent"
// @Router       /tokens/{id}/rent [post]
func (h *RentalHandler) rent(c *gin.Context) {
	id, ok := parseTokenID(c)
	if !ok {
		return
	}
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}

	var req RentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendErrorResponse(c, http.StatusBadRequest, "invalid_request", "payment is required")
		return
	}

	var secs int64
	if req.DurationSeconds != nil {
		secs = *req.DurationSeconds
	}
	if secs <= 0 || secs > int64(MaxDuration/time.Second) {
		sendServiceError(c, tokens.ErrDurationOutOfRange)
		return
	}

	token, err := h.service.Rent(c.Request.Context(), caller, id, time.Duration(secs)*time.Second, *req.Payment)
	if err != nil {
		sendServiceError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "token rented", token)
}

// @Summary      Retrieve a rented token
// @Description  Returns custody to the owner after the rental period has elapsed. Owner only.
// @Tags         rental
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Token ID"
// @Success      200  {object}  response.APIResponse{data=tokens.Token}
// @Failure      403  {object}  response.APIResponse "Caller is not the owner"
// @Failure      404  {object}  response.APIResponse "Token not found"
// @Failure      409  {object}  response.APIResponse "Token not rented or rent not expired"
// @Router       /tokens/{id}/retrieve [post]
func (h *RentalHandler) retrieve(c *gin.Context) {
	id, ok := parseTokenID(c)
	if !ok {
		return
	}
	caller, ok := auth.MustCaller(c)
	if !ok {
		return
	}

	token, err := h.service.Retrieve(c.Request.Context(), caller, id)
	if err != nil {
		sendServiceError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "token retrieved", token)
}

// maxQuoteSeconds is the largest whole-second count a time.Duration can hold.
const maxQuoteSeconds = int64(math.MaxInt64 / int64(time.Second))

// parseDuration accepts whole seconds or a time.ParseDuration string.
// Negative or unrepresentable second counts are out of range.
func parseDuration(raw string) (time.Duration, error) {
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if secs < 0 || secs > maxQuoteSeconds {
			return 0, tokens.ErrDurationOutOfRange
		}
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
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
