package biz

import (
	"context"
	"time"

	"AIResilience/internal/model"
)

// TotalRequestsKey is the durable counter mirroring MetricsView.TotalRequests.
const TotalRequestsKey = "total_requests"

// CounterStore defines the durable counter store. Only the cumulative request total lives here.
// Following Kratos v2 DDD architecture, interfaces are defined in biz layer.
// Implementation is in data layer (data.CounterStore).
type CounterStore interface {
	Get(ctx context.Context, key string) (int64, error)
	Increment(ctx context.Context, key string, delta int64) (int64, error)
	Reset(ctx context.Context, key string) error
}

// UpstreamCaller performs the real call to an AI provider.
type UpstreamCaller interface {
	Invoke(ctx context.Context, upstream, prompt string) (string, error)
}

// UpstreamCallerFunc adapts a function to UpstreamCaller.
type UpstreamCallerFunc func(ctx context.Context, upstream, prompt string) (string, error)

// Invoke calls f(ctx, upstream, prompt).
func (f UpstreamCallerFunc) Invoke(ctx context.Context, upstream, prompt string) (string, error) {
	return f(ctx, upstream, prompt)
}

// EventRepo persists request logs, breaker transitions, chaos experiments and
// metrics snapshots, and answers statistics queries.
// Implementation is in data layer (data.EventRepo).
type EventRepo interface {
	// Save* methods queue the record and return without waiting for the write.
	SaveRequest(ctx context.Context, rec *model.RequestLog)
	SaveTransition(ctx context.Context, ev *model.CircuitBreakerEvent)
	SaveChaosStarted(ctx context.Context, exp *model.ChaosExperiment)
	SaveChaosEnded(ctx context.Context, exp *model.ChaosExperiment)

	SaveSnapshot(ctx context.Context, snap *model.MetricsSnapshot) error
	ServiceStatistics(ctx context.Context, service string, since time.Time) (map[string]*model.ServiceStats, error)
}

// StatsCache caches statistics query results.
// Implementation is in data layer (data.CacheClient).
type StatsCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// AlertNotifier defines the interface for alert delivery
type AlertNotifier interface {
	NotifyAlert(ctx context.Context, alert *model.Alert) error
}
