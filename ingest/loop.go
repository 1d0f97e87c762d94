// Package ingest drives one bounded subscription batch from symbol
// resolution to persisted rows.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"greeks_ingest/db"
	"greeks_ingest/feed"
	"greeks_ingest/greeks"
	"greeks_ingest/metrics"
	"greeks_ingest/models"
	"greeks_ingest/watchlist"
)

type Config struct {
	Band                greeks.Band
	TruncateBeforeBatch bool
}

// Loop consumes one subscription at a time. A batch subscribes to the
// distinct resolved symbols and stops after one event per symbol, whatever
// the filter decides about those events.
type Loop struct {
	feed   feed.Feed
	sink   db.Sink
	source watchlist.Source
	cfg    Config
	log    *zap.SugaredLogger

	state atomic.Int32
	newID func() string
	now   func() time.Time
}

func NewLoop(f feed.Feed, sink db.Sink, source watchlist.Source, cfg Config, log *zap.SugaredLogger) *Loop {
	return &Loop{
		feed:   f,
		sink:   sink,
		source: source,
		cfg:    cfg,
		log:    log,
		newID:  func() string { return uuid.New().String() },
		now:    time.Now,
	}
}

func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
}

type handler func(ctx context.Context, ev feed.Event, stats *models.BatchStats, log *zap.SugaredLogger) error

// RunGreeks ingests one Greeks event per watchlist symbol. Kept calls are
// stored rounded; calls above the band's max are stored as their put.
func (l *Loop) RunGreeks(ctx context.Context) (models.BatchStats, error) {
	return l.run(ctx, feed.KindGreeks, l.handleGreeks)
}

// RunQuotes refreshes the top of book of each symbol once.
func (l *Loop) RunQuotes(ctx context.Context) (models.BatchStats, error) {
	return l.run(ctx, feed.KindQuote, l.handleQuote)
}

func (l *Loop) run(ctx context.Context, kind feed.EventKind, handle handler) (stats models.BatchStats, err error) {
	stats = models.BatchStats{
		BatchID:   l.newID(),
		Kind:      string(kind),
		StartedAt: l.now(),
	}
	log := l.log.With("batch_id", stats.BatchID, "kind", kind)
	l.setState(StateIdle)

	defer func() {
		stats.FinishedAt = l.now()
		final := StateComplete
		if err != nil {
			final = StateFailed
			log.Errorw("Batch failed", "error", err, "consumed", stats.Consumed, "subscribed", stats.Subscribed)
		} else {
			log.Infow("Batch complete",
				"subscribed", stats.Subscribed,
				"consumed", stats.Consumed,
				"kept", stats.Kept,
				"filtered", stats.Filtered,
				"synthesized", stats.Synthesized,
				"persisted", stats.Persisted,
				"persist_failures", stats.PersistFailures,
				"unmatched", stats.Unmatched,
				"ended_early", stats.EndedEarly,
				"duration", stats.Duration())
		}
		l.setState(final)
		metrics.ObserveBatch(stats, final.String())
	}()

	resolved, err := l.source.Resolve(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to resolve symbols: %w", err)
	}
	symbols := watchlist.Distinct(resolved)
	stats.Subscribed = len(symbols)
	if len(symbols) == 0 {
		log.Warnw("No symbols to subscribe")
		return stats, nil
	}

	if kind == feed.KindGreeks && l.cfg.TruncateBeforeBatch {
		if err := l.sink.Truncate(ctx, db.GreeksTable); err != nil {
			return stats, fmt.Errorf("failed to truncate %s: %w", db.GreeksTable, err)
		}
	}

	sub, err := l.feed.Open(ctx, kind, symbols)
	if err != nil {
		var se *feed.SubscriptionError
		if !errors.As(err, &se) {
			err = &feed.SubscriptionError{Kind: kind, Op: "open", Err: err}
		}
		return stats, err
	}
	defer func() {
		if cerr := sub.Close(); cerr != nil {
			log.Warnw("Failed to close subscription", "error", cerr)
		}
	}()
	l.setState(StateSubscribed)
	log.Infow("Subscribed", "symbols", len(symbols))

	l.setState(StateDraining)
	for stats.Consumed < len(symbols) {
		ev, err := sub.Next(ctx)
		if errors.Is(err, feed.ErrEndOfStream) {
			stats.EndedEarly = true
			log.Warnw("Feed ended before every symbol reported",
				"consumed", stats.Consumed,
				"subscribed", len(symbols))
			return stats, nil
		}
		if err != nil {
			return stats, err
		}

		stats.Consumed++
		metrics.IncrementConsumed(string(kind))

		if err := handle(ctx, ev, &stats, log); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

func (l *Loop) handleGreeks(ctx context.Context, ev feed.Event, stats *models.BatchStats, log *zap.SugaredLogger) error {
	if ev.Greeks == nil {
		log.Warnw("Skipping event of another kind", "event_kind", ev.Kind, "symbol", ev.Symbol())
		return nil
	}
	rec := *ev.Greeks

	if !l.cfg.Band.Keep(rec.Delta) {
		stats.Filtered++
		metrics.IncrementOutcome(metrics.OutcomeFiltered)
		return nil
	}

	out, err := greeks.Transform(rec, l.cfg.Band.Max)
	if err != nil {
		return err
	}
	if greeks.NeedsPut(rec.Delta, l.cfg.Band.Max) {
		stats.Synthesized++
		metrics.IncrementOutcome(metrics.OutcomeSynthesized)
		log.Debugw("Synthesized put", "call", rec.Symbol, "put", out.Symbol, "delta", out.Delta)
	} else {
		stats.Kept++
		metrics.IncrementOutcome(metrics.OutcomeKept)
	}

	if err := l.sink.InsertGreeks(ctx, out); err != nil {
		l.persistFailed(stats, log, out.Symbol, err)
		return nil
	}
	stats.Persisted++
	return nil
}

func (l *Loop) handleQuote(ctx context.Context, ev feed.Event, stats *models.BatchStats, log *zap.SugaredLogger) error {
	if ev.Quote == nil {
		log.Warnw("Skipping event of another kind", "event_kind", ev.Kind, "symbol", ev.Symbol())
		return nil
	}

	matched, err := l.sink.UpsertQuote(ctx, *ev.Quote)
	if err != nil {
		l.persistFailed(stats, log, ev.Quote.Symbol, err)
		return nil
	}
	if !matched {
		stats.Unmatched++
		metrics.IncrementUnmatched()
		log.Infow("No stored row for quote", "symbol", ev.Quote.Symbol)
		return nil
	}
	stats.Persisted++
	return nil
}

// persistFailed records a dropped write. The batch carries on.
func (l *Loop) persistFailed(stats *models.BatchStats, log *zap.SugaredLogger, symbol string, err error) {
	stats.PersistFailures++
	metrics.IncrementPersistFailures(stats.Kind)
	log.Errorw("Failed to persist record", "symbol", symbol, "error", err)
}
