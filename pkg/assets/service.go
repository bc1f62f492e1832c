// Package assets mints tokens and answers read queries over token records.
package assets

import (
	"context"

	"go.uber.org/zap"

	"tokenlease/pkg/events"
	"tokenlease/pkg/store"
	"tokenlease/pkg/tokens"
)

type AssetService interface {
	Mint(ctx context.Context, caller tokens.Address, input MintInput) (tokens.Token, error)
	GetRecord(ctx context.Context, id int64) (tokens.Token, error)
	ListForSaleAssets(ctx context.Context) (ForSaleList, error)
	ListTokens(ctx context.Context, filter tokens.Filter, page, limit int) (tokens.TokenList, error)
}

type assetService struct {
	store     store.Store
	policy    tokens.SoldPolicy
	publisher events.Publisher
	clock     tokens.Clock
	logger    *zap.Logger
}

func NewAssetService(st store.Store, policy tokens.SoldPolicy, publisher events.Publisher, clock tokens.Clock, logger *zap.Logger) AssetService {
	return &assetService{
		store:     st,
		policy:    policy,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
	}
}

// Mint registers a new token held and owned by caller. The registry assigns
// the id.
func (s *assetService) Mint(ctx context.Context, caller tokens.Address, input MintInput) (tokens.Token, error) {
	if input.Price <= 0 {
		return tokens.Token{}, tokens.ErrInvalidPrice
	}

	var rec tokens.Record
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		id, err := tx.Registry().Mint(ctx, caller)
		if err != nil {
			return err
		}
		rec = tokens.Record{
			ID:       id,
			Owner:    caller,
			Price:    input.Price,
			Metadata: input.Metadata,
			Sold:     s.policy.MintedSold(),
			State:    tokens.StateIdle,
			MintedAt: s.clock.Now(),
		}
		return tx.Records().Create(ctx, rec)
	})
	if err != nil {
		return tokens.Token{}, err
	}

	s.logger.Info("token minted", zap.Int64("token_id", rec.ID), zap.String("owner", string(caller)), zap.Int64("price", rec.Price))
	s.publisher.Publish(ctx, events.Event{Kind: events.KindMinted, TokenID: rec.ID, Actor: caller, Amount: rec.Price, At: rec.MintedAt})
	return rec.View(), nil
}

func (s *assetService) GetRecord(ctx context.Context, id int64) (tokens.Token, error) {
	var rec tokens.Record
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		rec, err = tx.Records().Get(ctx, id)
		return err
	})
	if err != nil {
		return tokens.Token{}, err
	}
	return rec.View(), nil
}

func (s *assetService) ListForSaleAssets(ctx context.Context) (ForSaleList, error) {
	var records []tokens.Record
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		records, err = tx.Records().ListForSale(ctx)
		return err
	})
	if err != nil {
		return ForSaleList{}, err
	}
	return ForSaleList{Items: tokens.Views(records), Total: len(records)}, nil
}

func (s *assetService) ListTokens(ctx context.Context, filter tokens.Filter, page, limit int) (tokens.TokenList, error) {
	if page < 1 {
		page = defaultPage
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := (page - 1) * limit

	var (
		records []tokens.Record
		total   int64
	)
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		records, total, err = tx.Records().List(ctx, filter, limit, offset)
		return err
	})
	if err != nil {
		return tokens.TokenList{}, err
	}
	return tokens.TokenList{Items: tokens.Views(records), Total: total, Page: page, Limit: limit}, nil
}
