package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"greeks_ingest/db"
	"greeks_ingest/metrics"
	"greeks_ingest/models"
	"greeks_ingest/monitoring"
	"greeks_ingest/utils"
)

// ResilientSink wraps a db.Sink with a circuit breaker, a bounded retry of
// persistence failures and panic recovery. Retries happen inside a single
// sink call, so callers see one outcome per record.
type ResilientSink struct {
	next       db.Sink
	breaker    *gobreaker.CircuitBreaker
	maxRetries uint64
	newBackoff func() backoff.BackOff
	log        *zap.SugaredLogger
}

var _ db.Sink = (*ResilientSink)(nil)

func NewResilientSink(next db.Sink, maxRetries uint64, log *zap.SugaredLogger) *ResilientSink {
	s := &ResilientSink{
		next:       next,
		maxRetries: maxRetries,
		newBackoff: func() backoff.BackOff { return utils.NewShortBackoff() },
		log:        log,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sink-breaker",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Infow("Circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
			metrics.SetBreakerState(int(to))
		},
	})
	return s
}

func (s *ResilientSink) InsertGreeks(ctx context.Context, rec models.GreeksRecord) error {
	return s.call(ctx, "insert greeks", rec.Symbol, func() error {
		return s.next.InsertGreeks(ctx, rec)
	})
}

func (s *ResilientSink) UpsertQuote(ctx context.Context, q models.QuoteRecord) (bool, error) {
	var matched bool
	err := s.call(ctx, "update quote", q.Symbol, func() error {
		var err error
		matched, err = s.next.UpsertQuote(ctx, q)
		return err
	})
	return matched, err
}

func (s *ResilientSink) Truncate(ctx context.Context, table string) error {
	return s.call(ctx, "truncate "+table, "", func() error {
		return s.next.Truncate(ctx, table)
	})
}

func (s *ResilientSink) EventSymbols(ctx context.Context) ([]string, error) {
	var symbols []string
	err := s.call(ctx, "select event symbols", "", func() error {
		var err error
		symbols, err = s.next.EventSymbols(ctx)
		return err
	})
	return symbols, err
}

func (s *ResilientSink) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

func (s *ResilientSink) Close() error {
	return s.next.Close()
}

// call retries fn while it fails with a *db.PersistenceError. An open
// breaker or a panic ends the attempt at once.
func (s *ResilientSink) call(ctx context.Context, op, symbol string, fn func() error) error {
	operation := func() error {
		start := time.Now()
		_, err := s.breaker.Execute(func() (interface{}, error) {
			return nil, RecoverMiddleware(s.log, fn)
		})
		monitoring.QueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		var pe *db.PersistenceError
		if !errors.As(err, &pe) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackoff(), s.maxRetries), ctx)
	err := backoff.RetryNotify(operation, b, func(err error, wait time.Duration) {
		s.log.Warnw("Retrying sink call",
			"op", op,
			"symbol", symbol,
			"error", err,
			"wait", wait)
	})
	if err == nil {
		return nil
	}

	var pe *db.PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &db.PersistenceError{Op: op, Symbol: symbol, Err: err}
}
