// Package market implements sale listings and purchases.
package market

import (
	"context"

	"go.uber.org/zap"

	"tokenlease/pkg/custody"
	"tokenlease/pkg/events"
	"tokenlease/pkg/ledger"
	"tokenlease/pkg/store"
	"tokenlease/pkg/tokens"
)

type MarketService interface {
	ListForSale(ctx context.Context, caller tokens.Address, id int64) (tokens.Token, error)
	Unlist(ctx context.Context, caller tokens.Address, id int64) (tokens.Token, error)
	Buy(ctx context.Context, caller tokens.Address, id int64, payment int64) (tokens.Token, error)
}

type marketService struct {
	store     store.Store
	guard     *custody.Guard
	policy    tokens.SoldPolicy
	publisher events.Publisher
	clock     tokens.Clock
	logger    *zap.Logger
}

func NewMarketService(st store.Store, guard *custody.Guard, policy tokens.SoldPolicy, publisher events.Publisher, clock tokens.Clock, logger *zap.Logger) MarketService {
	return &marketService{
		store:     st,
		guard:     guard,
		policy:    policy,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
	}
}

// ListForSale hands custody to the system until the token is bought or
// unlisted.
func (s *marketService) ListForSale(ctx context.Context, caller tokens.Address, id int64) (tokens.Token, error) {
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

		if err := s.guard.Move(ctx, tx, caller, rec, tokens.SystemAccount); err != nil {
			return err
		}
		rec.State = tokens.StateListedForSale
		rec.Sold = false
		if err := tx.Records().Put(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return tokens.Token{}, err
	}

	s.logger.Info("token listed for sale", zap.Int64("token_id", id), zap.Int64("price", out.Price))
	s.publisher.Publish(ctx, events.Event{Kind: events.KindListedForSale, TokenID: id, Actor: caller, Amount: out.Price, At: s.clock.Now()})
	return out.View(), nil
}

// Unlist withdraws a sale or rent listing. A rented token is not listed.
func (s *marketService) Unlist(ctx context.Context, caller tokens.Address, id int64) (tokens.Token, error) {
	var out tokens.Record
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		rec, err := tx.Records().Get(ctx, id)
		if err != nil {
			return err
		}
		if rec.Owner != caller {
			return tokens.ErrNotOwner
		}

		switch rec.State {
		case tokens.StateListedForRent:
			if err := s.guard.RevokeStanding(ctx, tx, rec); err != nil {
				return err
			}
		case tokens.StateListedForSale:
			if err := s.guard.Move(ctx, tx, tokens.SystemAccount, rec, rec.Owner); err != nil {
				return err
			}
			rec.Sold = true
		default:
			return tokens.ErrNotListed
		}

		rec.State = tokens.StateIdle
		if err := tx.Records().Put(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return tokens.Token{}, err
	}

	s.logger.Info("token unlisted", zap.Int64("token_id", id))
	s.publisher.Publish(ctx, events.Event{Kind: events.KindUnlisted, TokenID: id, Actor: caller, At: s.clock.Now()})
	return out.View(), nil
}

// Buy requires payment to equal the price exactly. Custody moves to the buyer
// and the payment to the previous owner in the same unit of work.
func (s *marketService) Buy(ctx context.Context, caller tokens.Address, id int64, payment int64) (tokens.Token, error) {
	var (
		out    tokens.Record
		seller tokens.Address
	)
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		rec, err := tx.Records().Get(ctx, id)
		if err != nil {
			return err
		}
		if rec.State != tokens.StateListedForSale || rec.Sold {
			return tokens.ErrNotListed
		}
		if rec.Owner == caller {
			return tokens.ErrAlreadyOwner
		}
		if payment != rec.Price {
			return tokens.ErrWrongAmount
		}

		seller = rec.Owner
		if err := s.guard.Move(ctx, tx, tokens.SystemAccount, rec, caller); err != nil {
			return err
		}
		rec.Owner = caller
		rec.Sold = true
		rec.State = tokens.StateIdle
		rec.Lease = nil
		if err := tx.Records().Put(ctx, rec); err != nil {
			return err
		}

		if err := ledger.Settle(ctx, tx.Ledger(), caller, seller, payment); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		s.logger.Debug("buy rejected", zap.Int64("token_id", id), zap.String("buyer", string(caller)), zap.Error(err))
		return tokens.Token{}, err
	}

	s.logger.Info("token sold", zap.Int64("token_id", id), zap.String("seller", string(seller)), zap.String("buyer", string(caller)), zap.Int64("price", payment))
	s.publisher.Publish(ctx, events.Event{Kind: events.KindSold, TokenID: id, Actor: caller, Counterparty: seller, Amount: payment, At: s.clock.Now()})
	return out.View(), nil
}
