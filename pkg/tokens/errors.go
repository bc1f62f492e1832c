package tokens

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound           = errors.New("token not found")
	ErrNotOwner           = errors.New("caller is not the token owner")
	ErrNotListable        = errors.New("token cannot be listed")
	ErrNotListed          = errors.New("token is not listed")
	ErrNotAvailable       = errors.New("token is not available for rent")
	ErrNotRented          = errors.New("token is not rented")
	ErrAlreadyOwner       = errors.New("caller already owns the token")
	ErrSelfRent           = errors.New("owner cannot rent own token")
	ErrWrongAmount        = errors.New("payment does not match the required amount")
	ErrDurationOutOfRange = errors.New("rent duration out of range")
	ErrRentNotExpired     = errors.New("rent period has not expired")
	ErrSettlementFailed   = errors.New("payment settlement failed")
	ErrInvalidPrice       = errors.New("price must be positive")
	ErrCustodyDenied      = errors.New("custody change not permitted")
	ErrUnknownRecipient   = errors.New("unknown recipient")
	ErrNotIdle            = errors.New("token is listed or rented")
)

var errorTable = []struct {
	err    error
	status int
	code   string
}{
	{ErrNotFound, http.StatusNotFound, "not_found"},
	{ErrNotOwner, http.StatusForbidden, "not_owner"},
	{ErrCustodyDenied, http.StatusForbidden, "custody_denied"},
	{ErrNotListable, http.StatusConflict, "not_listable"},
	{ErrNotListed, http.StatusConflict, "not_listed"},
	{ErrNotAvailable, http.StatusConflict, "not_available"},
	{ErrNotRented, http.StatusConflict, "not_rented"},
	{ErrRentNotExpired, http.StatusConflict, "rent_not_expired"},
	{ErrAlreadyOwner, http.StatusConflict, "already_owner"},
	{ErrSelfRent, http.StatusConflict, "self_rent"},
	{ErrNotIdle, http.StatusConflict, "not_idle"},
	{ErrWrongAmount, http.StatusBadRequest, "wrong_amount"},
	{ErrDurationOutOfRange, http.StatusBadRequest, "duration_out_of_range"},
	{ErrInvalidPrice, http.StatusBadRequest, "invalid_price"},
	{ErrUnknownRecipient, http.StatusBadRequest, "unknown_recipient"},
	{ErrSettlementFailed, http.StatusPaymentRequired, "settlement_failed"},
}

// HTTPStatus maps an operation error to the status the API answers with.
func HTTPStatus(err error) int {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// Code returns a stable machine-readable code for err, "internal" if unknown.
func Code(err error) string {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "internal"
}
