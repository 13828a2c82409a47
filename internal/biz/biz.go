// Package biz contains business logic layer implementations.
// This layer holds the resilience core: circuit breakers, chaos experiments,
// the request pipeline and the metrics aggregator.
package biz

import (
	"AIResilience/internal/data"
	"AIResilience/pkg/faultinject"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewSystemClock,
	faultinject.NewTimeSource,
	NewEventBus,
	NewBreakerRegistry,
	NewChaosController,
	NewMetricsAggregator,
	NewFallbackSimulator,
	NewFaultInjector,
	NewUpstreamCaller,
	NewPipeline,
	NewEventRecorder,
	NewStatsUsecase,
	NewAlertMonitor,
	// Import data layer providers
	data.NewCounterStore,
	data.NewCacheClient,
	data.NewEventRepo,
	data.NewLogNotifier,
	data.NewUpstreamClient,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(CounterStore), new(*data.CounterStore)),
	wire.Bind(new(StatsCache), new(*data.CacheClient)),
	wire.Bind(new(EventRepo), new(*data.EventRepo)),
	wire.Bind(new(AlertNotifier), new(*data.LogNotifier)),
	wire.Bind(new(EventPublisher), new(*EventBus)),
)
