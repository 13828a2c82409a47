package biz

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"AIResilience/internal/data"
	"AIResilience/internal/model"
	pkgerrors "AIResilience/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	// DefaultStatsHours is the window of GET /stats when none is given.
	DefaultStatsHours = 24
	// MaxStatsHours caps the statistics window at one week.
	MaxStatsHours = 168
)

// ServiceStatsResult answers a statistics query.
type ServiceStatsResult struct {
	Service string                         `json:"service,omitempty"`
	Hours   int                            `json:"hours"`
	Since   time.Time                      `json:"since"`
	Stats   map[string]*model.ServiceStats `json:"stats"`
	Cached  bool                           `json:"-"`
}

// StatsUsecase serves persisted statistics, metrics snapshots and the durable request total.
type StatsUsecase struct {
	repo    EventRepo
	cache   StatsCache
	metrics *MetricsAggregator
	counter CounterStore
	clock   Clock
	logger  *log.Helper
}

// NewStatsUsecase creates a StatsUsecase. cache and counter may be nil.
func NewStatsUsecase(repo EventRepo, cache StatsCache, metrics *MetricsAggregator, counter CounterStore, clock Clock, logger log.Logger) *StatsUsecase {
	if clock == nil {
		clock = SystemClock
	}
	return &StatsUsecase{
		repo:    repo,
		cache:   cache,
		metrics: metrics,
		counter: counter,
		clock:   clock,
		logger:  log.NewHelper(logger),
	}
}

// ServiceStatistics aggregates request logs of the last hours, for one service or all
// when service is empty. Results are cached for 30 seconds.
func (uc *StatsUsecase) ServiceStatistics(ctx context.Context, service string, hours int) (*ServiceStatsResult, error) {
	if hours <= 0 {
		hours = DefaultStatsHours
	}
	hours = min(hours, MaxStatsHours)

	key := data.BuildCacheKey(data.CacheKeyStats, service, strconv.Itoa(hours))
	if uc.cache != nil {
		var cached ServiceStatsResult
		if err := uc.cache.GetJSON(ctx, key, &cached); err == nil {
			cached.Cached = true
			return &cached, nil
		}
	}

	since := uc.clock.Now().Add(-time.Duration(hours) * time.Hour)
	stats, err := uc.repo.ServiceStatistics(ctx, service, since)
	if err != nil {
		return nil, &InternalError{Message: "failed to query service statistics", Err: err}
	}

	result := &ServiceStatsResult{Service: service, Hours: hours, Since: since, Stats: stats}
	if uc.cache != nil {
		if err := uc.cache.SetJSON(ctx, key, result, data.TTLStats); err != nil {
			uc.logger.Warnw("msg", "failed to cache statistics", "key", key, "error", err)
		}
	}
	return result, nil
}

// SaveSnapshot persists the current global counters with the per-upstream views as JSON.
func (uc *StatsUsecase) SaveSnapshot(ctx context.Context) error {
	view := uc.metrics.Snapshot()
	upstreams, err := json.Marshal(view.Upstreams)
	if err != nil {
		return fmt.Errorf("failed to encode upstream metrics: %w", err)
	}

	snap := &model.MetricsSnapshot{
		Timestamp:          uc.clock.Now(),
		TotalRequests:      view.TotalRequests,
		SuccessfulRequests: view.SuccessfulRequests,
		FailedRequests:     view.FailedRequests,
		FallbackResponses:  view.FallbackResponses,
		SuccessRate:        view.SuccessRate,
		AvgLatency:         float64(view.AvgLatencyMs),
		UptimeSec:          int64(view.Uptime.Seconds()),
		MetricsJSON:        string(upstreams),
	}
	if err := uc.repo.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("failed to save metrics snapshot: %w", err)
	}
	return nil
}

// DurableTotal returns the request total kept in the counter store.
// ok is false when the store is absent or unreachable.
func (uc *StatsUsecase) DurableTotal(ctx context.Context) (total int64, ok bool) {
	if uc.counter == nil {
		return 0, false
	}
	total, err := uc.counter.Get(ctx, TotalRequestsKey)
	if err != nil {
		if !pkgerrors.IsUnavailable(err) {
			uc.logger.Warnw("msg", "durable counter unavailable", "key", TotalRequestsKey, "error", err)
		}
		return 0, false
	}
	return total, true
}
