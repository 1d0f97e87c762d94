package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"greeks_ingest/models"
)

func TestCounters(t *testing.T) {
	before, beforeFailures, _, _ := GetStats()
	greeksBefore := testutil.ToFloat64(eventsConsumed.WithLabelValues("Greeks"))

	IncrementConsumed("Greeks")
	IncrementConsumed("Greeks")
	IncrementPersistFailures("Greeks")

	after, afterFailures, last, uptime := GetStats()
	assert.Equal(t, before+2, after)
	assert.Equal(t, beforeFailures+1, afterFailures)
	assert.WithinDuration(t, time.Now(), last, time.Second)
	assert.True(t, uptime > 0)
	assert.Equal(t, greeksBefore+2, testutil.ToFloat64(eventsConsumed.WithLabelValues("Greeks")))
}

func TestObserveBatch(t *testing.T) {
	before := testutil.ToFloat64(batchesTotal.WithLabelValues("Quote", "complete"))

	start := time.Now()
	ObserveBatch(models.BatchStats{Kind: "Quote", StartedAt: start, FinishedAt: start.Add(time.Second)}, "complete")

	assert.Equal(t, before+1, testutil.ToFloat64(batchesTotal.WithLabelValues("Quote", "complete")))
}

func TestBreakerState(t *testing.T) {
	SetBreakerState(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(breakerState))
	SetBreakerState(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(breakerState))
}
