package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"greeks_ingest/models"
)

const (
	OutcomeKept        = "kept"
	OutcomeFiltered    = "filtered"
	OutcomeSynthesized = "synthesized"
)

var (
	eventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_events_consumed_total",
		Help: "Events pulled from the feed subscription",
	}, []string{"kind"})

	eventOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_event_outcomes_total",
		Help: "Greeks events by filter and transform outcome",
	}, []string{"outcome"})

	persistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_persist_failures_total",
		Help: "Records that failed to persist and were skipped",
	}, []string{"kind"})

	unmatchedQuotes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_unmatched_quotes_total",
		Help: "Quotes whose symbol has no row in the store",
	})

	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_batches_total",
		Help: "Finished ingestion batches by final state",
	}, []string{"kind", "state"})

	batchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingest_batch_duration_seconds",
		Help:    "Wall time of an ingestion batch",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"kind"})

	breakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sink_breaker_state",
		Help: "Sink circuit breaker state (0 closed, 1 half-open, 2 open)",
	})

	// Internal counters
	consumed      uint64
	failures      uint64
	lastProcessed atomic.Value
	startTime     = time.Now()
)

func IncrementConsumed(kind string) {
	atomic.AddUint64(&consumed, 1)
	eventsConsumed.WithLabelValues(kind).Inc()
	lastProcessed.Store(time.Now())
}

func IncrementOutcome(outcome string) {
	eventOutcomes.WithLabelValues(outcome).Inc()
}

func IncrementPersistFailures(kind string) {
	atomic.AddUint64(&failures, 1)
	persistFailures.WithLabelValues(kind).Inc()
}

func IncrementUnmatched() {
	unmatchedQuotes.Inc()
}

func SetBreakerState(state int) {
	breakerState.Set(float64(state))
}

// ObserveBatch records a finished batch under its final state name.
func ObserveBatch(stats models.BatchStats, state string) {
	batchesTotal.WithLabelValues(stats.Kind, state).Inc()
	batchDuration.WithLabelValues(stats.Kind).Observe(stats.Duration().Seconds())
}

// GetStats returns consumed events, persist failures, the time of the last
// consumed event and the process uptime.
func GetStats() (uint64, uint64, time.Time, time.Duration) {
	last, _ := lastProcessed.Load().(time.Time)
	return atomic.LoadUint64(&consumed),
		atomic.LoadUint64(&failures),
		last,
		time.Since(startTime)
}
