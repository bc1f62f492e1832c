// Package events carries lifecycle notifications of committed token
// operations to loggers, websocket subscribers and email.
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"tokenlease/pkg/tokens"
)

type Kind string

const (
	KindMinted         Kind = "minted"
	KindListedForSale  Kind = "listed_for_sale"
	KindListedForRent  Kind = "listed_for_rent"
	KindUnlisted       Kind = "unlisted"
	KindSold           Kind = "sold"
	KindRented         Kind = "rented"
	KindRetrieved      Kind = "retrieved"
	KindTransferred    Kind = "transferred"
	KindApproved       Kind = "approved"
	KindPaymentsToggle Kind = "payments_toggled"
	KindDeposited      Kind = "deposited"
)

// Event describes one committed operation. Actor is the caller; Counterparty
// is the other party when there is one (seller, owner, renter or recipient).
type Event struct {
	Kind         Kind           `json:"kind"`
	TokenID      int64          `json:"token_id,omitempty"`
	Actor        tokens.Address `json:"actor"`
	Counterparty tokens.Address `json:"counterparty,omitempty"`
	Amount       int64          `json:"amount,omitempty"`
	At           time.Time      `json:"at"`
}

// Publisher receives events after their unit of work has committed. Publish
// must not block on slow consumers.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Fanout forwards every event to each publisher in order.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) {
	for _, p := range f {
		p.Publish(ctx, e)
	}
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) {
	fields := []zap.Field{
		zap.String("kind", string(e.Kind)),
		zap.Int64("token_id", e.TokenID),
		zap.String("actor", string(e.Actor)),
		zap.Time("at", e.At),
	}
	if e.Counterparty != "" {
		fields = append(fields, zap.String("counterparty", string(e.Counterparty)))
	}
	if e.Amount != 0 {
		fields = append(fields, zap.Int64("amount", e.Amount))
	}
	p.logger.Info("token event", fields...)
}

// Recorder keeps every published event in memory. It is meant for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) Kinds() []Kind {
	events := r.Events()
	out := make([]Kind, 0, len(events))
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}
