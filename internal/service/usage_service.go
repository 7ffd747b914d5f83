package service

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// UsageSnapshot is the operator-facing view of process-lifetime usage.
type UsageSnapshot struct {
	TotalRequests int64   `json:"total_requests"`
	TotalTokens   int64   `json:"total_tokens"`
	EstimatedCost float64 `json:"estimated_cost"`
}

// UsageTracker owns the process-wide request and token counters. Counters are
// never persisted and reset on restart. All increments go through the mutex so
// none are lost under concurrent requests.
type UsageTracker struct {
	mu            sync.Mutex
	totalRequests int64
	totalTokens   int64

	costPer1K float64
	logger    *zap.Logger

	requestsTotal prometheus.Counter
	tokensTotal   prometheus.Counter
}

func NewUsageTracker(costPer1K float64, reg prometheus.Registerer, logger *zap.Logger) *UsageTracker {
	return &UsageTracker{
		costPer1K: costPer1K,
		logger:    logger,
		requestsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "receiptlens_extraction_requests_total",
			Help: "Number of extraction requests accepted.",
		}),
		tokensTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "receiptlens_completion_tokens_total",
			Help: "Total tokens reported by the completion API.",
		}),
	}
}

// RecordRequest counts an accepted upload at intake, before processing.
func (t *UsageTracker) RecordRequest() {
	t.mu.Lock()
	t.totalRequests++
	t.mu.Unlock()
	t.requestsTotal.Inc()
}

// RecordCompletion adds the token usage of a finished completion call and
// emits the current snapshot for operators.
func (t *UsageTracker) RecordCompletion(tokens int) {
	t.mu.Lock()
	t.totalTokens += int64(tokens)
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.tokensTotal.Add(float64(tokens))
	t.logger.Info("Usage snapshot",
		zap.Int64("total_requests", snap.TotalRequests),
		zap.Int64("total_tokens", snap.TotalTokens),
		zap.Float64("estimated_cost_usd", snap.EstimatedCost),
	)
}

// Snapshot returns the current totals and the derived cost estimate.
func (t *UsageTracker) Snapshot() UsageSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *UsageTracker) snapshotLocked() UsageSnapshot {
	return UsageSnapshot{
		TotalRequests: t.totalRequests,
		TotalTokens:   t.totalTokens,
		EstimatedCost: float64(t.totalTokens) / 1000 * t.costPer1K,
	}
}
