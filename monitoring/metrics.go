package monitoring

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sink call latency, retries included
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sink_query_duration_seconds",
		Help:    "Time taken for sink calls",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"op"})

	// System resources
	MemoryUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_memory_bytes",
		Help: "Current memory usage in bytes",
	})

	GoroutineCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_goroutines",
		Help: "Current number of goroutines",
	})
)

// StartMetricsCollection samples system gauges until ctx is done.
func StartMetricsCollection(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		collectSystemMetrics()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collectSystemMetrics()
			}
		}
	}()
}

func collectSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	MemoryUsage.Set(float64(m.Alloc))
	GoroutineCount.Set(float64(runtime.NumGoroutine()))
}
