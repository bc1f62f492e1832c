package assets

import "tokenlease/pkg/tokens"

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
)

type MintInput struct {
	Metadata string
	Price    int64
}

// ForSaleList is the marketplace read contract.
type ForSaleList struct {
	Items []tokens.Token `json:"items"`
	Total int           `json:"total"`
}
