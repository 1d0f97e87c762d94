// Package feed defines the subscription contract between the streaming
// market-data adapter and the ingestion loop.
package feed

import (
	"context"
	"errors"
	"fmt"

	"greeks_ingest/models"
)

type EventKind string

const (
	KindQuote  EventKind = "Quote"
	KindGreeks EventKind = "Greeks"
)

var (
	// ErrEndOfStream is returned by Next once the feed has no more events.
	ErrEndOfStream = errors.New("feed: end of stream")

	// ErrIdleTimeout is returned by Next when no event arrived within the
	// configured idle window.
	ErrIdleTimeout = errors.New("feed: idle timeout waiting for event")

	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("feed: subscription closed")
)

// Event is a single typed feed event. Exactly one of Greeks or Quote is set,
// matching Kind.
type Event struct {
	Kind   EventKind
	Greeks *models.GreeksRecord
	Quote  *models.QuoteRecord
}

func (e Event) Symbol() string {
	switch {
	case e.Greeks != nil:
		return e.Greeks.Symbol
	case e.Quote != nil:
		return e.Quote.Symbol
	}
	return ""
}

// Feed opens subscriptions for one event kind over a symbol set.
type Feed interface {
	Open(ctx context.Context, kind EventKind, symbols []string) (Subscription, error)
}

// Subscription is a consumable, ordered sequence of events. Next blocks until
// an event arrives, the stream ends, the idle window passes or ctx is done.
// Close releases the underlying connection and is safe to call more than once.
type Subscription interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}

// SubscriptionError means the feed could not be reached or rejected the
// subscription. It is fatal to the batch.
type SubscriptionError struct {
	Kind EventKind
	Op   string
	Err  error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("feed: %s subscription %s: %v", e.Kind, e.Op, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}
