// Package rental implements rent listings, time-bounded rentals and the
// owner's retrieval after expiry.
package rental

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tokenlease/pkg/custody"
	"tokenlease/pkg/events"
	"tokenlease/pkg/ledger"
	"tokenlease/pkg/store"
	"tokenlease/pkg/tokens"
)

const (
	MinDuration = tokens.OneDay
	MaxDuration = 100 * tokens.OneDay
)

// Cost is the rent owed for d: the price in hundredths, times whole days.
// Both divisions truncate, in that order.
func Cost(price int64, d time.Duration) int64 {
	return (price / 100) * int64(d/tokens.OneDay)
}

type Quote struct {
	TokenID         int64 `json:"token_id"`
	DurationSeconds int64 `json:"duration_seconds"`
	Days            int64 `json:"days"`
	Price           int64 `json:"price"`
}

type RentalService interface {
	GetRentPrice(ctx context.Context, id int64, duration time.Duration) (Quote, error)
	ListForRent(ctx context.Context, caller tokens.Address, id int64) (tokens.Token, error)
	Rent(ctx context.Context, caller tokens.Address, id int64, duration time.Duration, payment int64) (tokens.Token, error)
	Retrieve(ctx context.Context, caller tokens.Address, id int64) (tokens.Token, error)
}

type rentalService struct {
	store     store.Store
	guard     *custody.Guard
	policy    tokens.SoldPolicy
	publisher events.Publisher
	clock     tokens.Clock
	logger    *zap.Logger
}

func NewRentalService(st store.Store, guard *custody.Guard, policy tokens.SoldPolicy, publisher events.Publisher, clock tokens.Clock, logger *zap.Logger) RentalService {
	return &rentalService{
		store:     st,
		guard:     guard,
		policy:    policy,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
	}
}

func (s *rentalService) GetRentPrice(ctx context.Context, id int64, duration time.Duration) (Quote, error) {
	if duration < 0 {
		return Quote{}, tokens.ErrDurationOutOfRange
	}

	var rec tokens.Record
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		rec, err = tx.Records().Get(ctx, id)
		return err
	})
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		TokenID:         id,
		DurationSeconds: int64(duration / time.Second),
		Days:            int64(duration / tokens.OneDay),
		Price:           Cost(rec.Price, duration),
	}, nil
}

// ListForRent leaves custody with the owner and gives the system the standing
// approval a later Rent needs to hand the token to the renter.
func (s *rentalService) ListForRent(ctx context.Context, caller tokens.Address, id int64) (tokens.Token, error) {
	var out tokens.Record
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		rec, err := tx.Records().Get(ctx, id)
		if err != nil {
			return err
		}
		if rec.Owner != caller {
			return tokens.ErrNotOwner
		}
		if !s.policy.Listable(rec) {
			return tokens.ErrNotListable
		}

		if err := s.guard.GrantStanding(ctx, tx, rec); err != nil {
			return err
		}
		rec.State = tokens.StateListedForRent
		if err := tx.Records().Put(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return tokens.Token{}, err
	}

	s.logger.Info("token listed for rent", zap.Int64("token_id", id))
	s.publisher.Publish(ctx, events.Event{Kind: events.KindListedForRent, TokenID: id, Actor: caller, Amount: out.Price, At: s.clock.Now()})
	return out.View(), nil
}

// Rent checks availability, then the duration bounds, then self-rent, then
// the amount. The owner keeps beneficial ownership; the renter gets custody.
func (s *rentalService) Rent(ctx context.Context, caller tokens.Address, id int64, duration time.Duration, payment int64) (tokens.Token, error) {
	var out tokens.Record
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		rec, err := tx.Records().Get(ctx, id)
		if err != nil {
			return err
		}
		if rec.State != tokens.StateListedForRent {
			return tokens.ErrNotAvailable
		}
		if duration < MinDuration || duration > MaxDuration {
			return tokens.ErrDurationOutOfRange
		}
		if caller == rec.Owner {
			return tokens.ErrSelfRent
		}
		if payment != Cost(rec.Price, duration) {
			return tokens.ErrWrongAmount
		}

		if err := s.guard.Move(ctx, tx, tokens.SystemAccount, rec, caller); err != nil {
			return err
		}
		// the move cleared the approval; retrieval needs it back
		if err := s.guard.GrantStanding(ctx, tx, rec); err != nil {
			return err
		}

		rec.State = tokens.StateRented
		rec.Lease = &tokens.Lease{Renter: caller, RentedAt: s.clock.Now(), Duration: duration}
		if err := tx.Records().Put(ctx, rec); err != nil {
			return err
		}

		if err := ledger.Settle(ctx, tx.Ledger(), caller, rec.Owner, payment); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		s.logger.Debug("rent rejected", zap.Int64("token_id", id), zap.String("renter", string(caller)), zap.Error(err))
		return tokens.Token{}, err
	}

	s.logger.Info("token rented",
		zap.Int64("token_id", id),
		zap.String("renter", string(caller)),
		zap.Duration("duration", duration),
		zap.Int64("payment", payment),
	)
	s.publisher.Publish(ctx, events.Event{Kind: events.KindRented, TokenID: id, Actor: caller, Counterparty: out.Owner, Amount: payment, At: out.Lease.RentedAt})
	return out.View(), nil
}

// Retrieve returns custody to the owner once the lease has run out. The
// renter's cooperation is not needed; the system's standing approval moves it.
func (s *rentalService) Retrieve(ctx context.Context, caller tokens.Address, id int64) (tokens.Token, error) {
	var (
		out    tokens.Record
		renter tokens.Address
	)
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		rec, err := tx.Records().Get(ctx, id)
		if err != nil {
			return err
		}
		if rec.Owner != caller {
			return tokens.ErrNotOwner
		}
		var ok bool
		renter, ok = rec.Renter()
		if !ok {
			return tokens.ErrNotRented
		}
		if s.clock.Now().Before(rec.Lease.ExpiresAt()) {
			return tokens.ErrRentNotExpired
		}

		if err := s.guard.Move(ctx, tx, tokens.SystemAccount, rec, rec.Owner); err != nil {
			return err
		}
		rec.State = tokens.StateIdle
		rec.Lease = nil
		if err := tx.Records().Put(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return tokens.Token{}, err
	}

	s.logger.Info("token retrieved", zap.Int64("token_id", id), zap.String("renter", string(renter)))
	s.publisher.Publish(ctx, events.Event{Kind: events.KindRetrieved, TokenID: id, Actor: caller, Counterparty: renter, At: s.clock.Now()})
	return out.View(), nil
}
