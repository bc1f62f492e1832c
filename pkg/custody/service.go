package custody

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"tokenlease/pkg/events"
	"tokenlease/pkg/ledger"
	"tokenlease/pkg/store"
	"tokenlease/pkg/tokens"
)

// Holding is the raw registry view of one token.
type Holding struct {
	TokenID  int64          `json:"token_id"`
	Holder   tokens.Address `json:"holder"`
	Approved tokens.Address `json:"approved,omitempty"`
}

// CustodyService exposes the caller-facing transfer and approval primitives.
type CustodyService interface {
	Transfer(ctx context.Context, caller tokens.Address, id int64, to tokens.Address, safe bool) (tokens.Token, error)
	Approve(ctx context.Context, caller tokens.Address, id int64, spender tokens.Address) (tokens.Token, error)
	Custody(ctx context.Context, id int64) (Holding, error)
}

type custodyService struct {
	store     store.Store
	guard     *Guard
	publisher events.Publisher
	clock     tokens.Clock
	logger    *zap.Logger
}

func NewCustodyService(st store.Store, guard *Guard, publisher events.Publisher, clock tokens.Clock, logger *zap.Logger) CustodyService {
	return &custodyService{store: st, guard: guard, publisher: publisher, clock: clock, logger: logger}
}

// Transfer hands the token to another account. The beneficial owner follows
// raw custody. With safe set the recipient must hold a ledger account.
func (s *custodyService) Transfer(ctx context.Context, caller tokens.Address, id int64, to tokens.Address, safe bool) (tokens.Token, error) {
	if to == "" || to == tokens.SystemAccount {
		return tokens.Token{}, tokens.ErrUnknownRecipient
	}

	var out tokens.Record
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		rec, err := tx.Records().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := s.guard.Authorize(ctx, tx, caller, rec); err != nil {
			return err
		}
		if !rec.Idle() {
			return tokens.ErrNotIdle
		}
		if to == rec.Owner {
			return tokens.ErrAlreadyOwner
		}
		if safe {
			if _, err := tx.Ledger().Account(ctx, to); err != nil {
				if errors.Is(err, ledger.ErrUnknownAccount) {
					return tokens.ErrUnknownRecipient
				}
				return err
			}
		}

		if err := s.guard.Move(ctx, tx, caller, rec, to); err != nil {
			return err
		}
		rec.Owner = to
		if err := tx.Records().Put(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return tokens.Token{}, err
	}

	s.logger.Info("token transferred", zap.Int64("token_id", id), zap.String("from", string(caller)), zap.String("to", string(to)), zap.Bool("safe", safe))
	s.publisher.Publish(ctx, events.Event{Kind: events.KindTransferred, TokenID: id, Actor: caller, Counterparty: to, At: s.clock.Now()})
	return out.View(), nil
}

func (s *custodyService) Approve(ctx context.Context, caller tokens.Address, id int64, spender tokens.Address) (tokens.Token, error) {
	if spender == tokens.SystemAccount {
		return tokens.Token{}, tokens.ErrCustodyDenied
	}

	var out tokens.Record
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		rec, err := tx.Records().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := s.guard.Authorize(ctx, tx, caller, rec); err != nil {
			return err
		}
		if !rec.Idle() {
			return tokens.ErrNotIdle
		}
		if err := s.guard.Approve(ctx, tx, caller, rec, spender); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return tokens.Token{}, err
	}

	s.publisher.Publish(ctx, events.Event{Kind: events.KindApproved, TokenID: id, Actor: caller, Counterparty: spender, At: s.clock.Now()})
	return out.View(), nil
}

func (s *custodyService) Custody(ctx context.Context, id int64) (Holding, error) {
	var h Holding
	err := s.store.View(ctx, func(tx store.Tx) error {
		holder, err := tx.Registry().OwnerOf(ctx, id)
		if err != nil {
			return registryErr(err)
		}
		approved, err := tx.Registry().GetApproved(ctx, id)
		if err != nil {
			return registryErr(err)
		}
		h = Holding{TokenID: id, Holder: holder, Approved: approved}
		return nil
	})
	return h, err
}
