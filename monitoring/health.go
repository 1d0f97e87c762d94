package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"greeks_ingest/metrics"
)

type HealthStatus struct {
	Status          string            `json:"status"`
	Uptime          string            `json:"uptime"`
	StartTime       time.Time         `json:"start_time"`
	MemoryUsage     uint64            `json:"memory_usage"`
	GoroutineCount  int               `json:"goroutine_count"`
	EventsConsumed  uint64            `json:"events_consumed"`
	PersistFailures uint64            `json:"persist_failures"`
	LastProcessed   *time.Time        `json:"last_processed,omitempty"`
	ComponentStatus map[string]string `json:"component_status"`
}

type HealthCheck func(ctx context.Context) error

// Health serves /health from a set of named component checks.
type Health struct {
	mu        sync.RWMutex
	checks    map[string]HealthCheck
	startTime time.Time
	timeout   time.Duration
}

func NewHealth() *Health {
	return &Health{
		checks:    make(map[string]HealthCheck),
		startTime: time.Now(),
		timeout:   2 * time.Second,
	}
}

func (h *Health) RegisterHealthCheck(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func (h *Health) Status(ctx context.Context) HealthStatus {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	consumed, failures, last, _ := metrics.GetStats()
	status := HealthStatus{
		Status:          "ok",
		Uptime:          time.Since(h.startTime).String(),
		StartTime:       h.startTime,
		MemoryUsage:     m.Alloc,
		GoroutineCount:  runtime.NumGoroutine(),
		EventsConsumed:  consumed,
		PersistFailures: failures,
		ComponentStatus: make(map[string]string),
	}
	if !last.IsZero() {
		status.LastProcessed = &last
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		h.mu.RLock()
		check := h.checks[name]
		h.mu.RUnlock()

		checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
		err := check(checkCtx)
		cancel()

		if err == nil {
			status.ComponentStatus[name] = "healthy"
		} else {
			status.ComponentStatus[name] = "unhealthy: " + err.Error()
			status.Status = "degraded"
		}
	}
	return status
}

func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Status(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if status.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}
