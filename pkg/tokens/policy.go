package tokens

import "fmt"

// SoldPolicy decides the initial sold flag of a minted token and whether
// listing checks it.
type SoldPolicy string

const (
	// SoldPolicyStrict mints tokens with sold = true and only lists tokens
	// whose sold flag is set, so a token with an open sale cannot be listed again.
	SoldPolicyStrict SoldPolicy = "strict"
	// SoldPolicyLenient mints tokens with sold = false and ignores the flag
	// when listing.
	SoldPolicyLenient SoldPolicy = "lenient"
)

func ParseSoldPolicy(s string) (SoldPolicy, error) {
	switch SoldPolicy(s) {
	case "", SoldPolicyStrict:
		return SoldPolicyStrict, nil
	case SoldPolicyLenient:
		return SoldPolicyLenient, nil
	default:
		return "", fmt.Errorf("unknown sold policy %q", s)
	}
}

func (p SoldPolicy) MintedSold() bool {
	return p != SoldPolicyLenient
}

// Listable is the shared precondition of sale and rent listings.
func (p SoldPolicy) Listable(r Record) bool {
	if !r.Idle() {
		return false
	}
	if p == SoldPolicyLenient {
		return true
	}
	return r.Sold
}
