package tokens

import "time"

// Address identifies an account. Registered accounts use UUID strings.
type Address string

// SystemAccount is the registry itself when it takes temporary custody of a token.
const SystemAccount Address = "00000000-0000-0000-0000-000000000000"

// OneDay is the unit rental durations are priced in.
const OneDay = 24 * time.Hour

type State string

const (
	StateIdle          State = "idle"
	StateListedForSale State = "listed_for_sale"
	StateListedForRent State = "listed_for_rent"
	StateRented        State = "rented"
)

func (s State) Valid() bool {
	switch s {
	case StateIdle, StateListedForSale, StateListedForRent, StateRented:
		return true
	default:
		return false
	}
}

// Lease is present on a record only while it is rented.
type Lease struct {
	Renter   Address
	RentedAt time.Time
	Duration time.Duration
}

func (l Lease) ExpiresAt() time.Time {
	return l.RentedAt.Add(l.Duration)
}

// Record is the extended state kept for every minted token. Raw custody lives
// in the registry; Owner is the beneficial owner.
type Record struct {
	ID       int64
	Owner    Address
	Price    int64
	Metadata string
	Sold     bool
	State    State
	Lease    *Lease
	MintedAt time.Time
}

func (r Record) Idle() bool {
	return r.State == StateIdle
}

func (r Record) Renter() (Address, bool) {
	if r.State != StateRented || r.Lease == nil {
		return "", false
	}
	return r.Lease.Renter, true
}

// Custodian is who should hold the token in the registry given the record state.
func (r Record) Custodian() Address {
	switch r.State {
	case StateListedForSale:
		return SystemAccount
	case StateRented:
		if r.Lease != nil {
			return r.Lease.Renter
		}
	}
	return r.Owner
}

// Clone returns a copy that does not share the lease with r.
func (r Record) Clone() Record {
	if r.Lease != nil {
		lease := *r.Lease
		r.Lease = &lease
	}
	return r
}

// View projects the record into its flat read contract.
func (r Record) View() Token {
	t := Token{
		ID:                    r.ID,
		Owner:                 r.Owner,
		Price:                 r.Price,
		Metadata:              r.Metadata,
		State:                 r.State,
		ListedForSale:         r.State == StateListedForSale,
		AvailableForRent:      r.State == StateListedForRent,
		Sold:                  r.Sold,
		CustodyHeldByRegistry: r.State == StateListedForSale,
		MintedAt:              r.MintedAt,
	}
	if renter, ok := r.Renter(); ok {
		rentedAt := r.Lease.RentedAt
		t.Renter = &renter
		t.RentedAt = &rentedAt
		t.RentDurationSeconds = int64(r.Lease.Duration / time.Second)
	}
	return t
}

type Token struct {
	ID                    int64      `json:"id"`
	Owner                 Address    `json:"owner"`
	Price                 int64      `json:"price"`
	Metadata              string     `json:"metadata"`
	State                 State      `json:"state"`
	ListedForSale         bool       `json:"listed_for_sale"`
	AvailableForRent      bool       `json:"available_for_rent"`
	Renter                *Address   `json:"renter,omitempty"`
	RentedAt              *time.Time `json:"rented_at,omitempty"`
	RentDurationSeconds   int64      `json:"rent_duration_seconds"`
	Sold                  bool       `json:"sold"`
	CustodyHeldByRegistry bool       `json:"custody_held_by_registry"`
	MintedAt              time.Time  `json:"minted_at"`
}

type TokenList struct {
	Items []Token `json:"items"`
	Total int64   `json:"total"`
	Page  int     `json:"page"`
	Limit int     `json:"limit"`
}

type Filter struct {
	Owner *Address
	State *State
}

func Views(records []Record) []Token {
	out := make([]Token, 0, len(records))
	for _, r := range records {
		out = append(out, r.View())
	}
	return out
}
