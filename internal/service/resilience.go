// Package service exposes the resilience core over HTTP.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"AIResilience/internal/biz"
	"AIResilience/internal/conf"
	"AIResilience/pkg/faultinject"
	pkglog "AIResilience/pkg/log"
	"AIResilience/pkg/upstream"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewResilienceService)

const (
	// recentTransitions is how many transitions GET /circuit-breaker/status returns per breaker.
	recentTransitions = 5

	allServices = "all"
)

// ResilienceService implements the HTTP API of the resilience core.
type ResilienceService struct {
	pipeline *biz.Pipeline
	metrics  *biz.MetricsAggregator
	breakers *biz.BreakerRegistry
	chaos    *biz.ChaosController
	stats    *biz.StatsUsecase
	injector *faultinject.Injector
	client   *upstream.Client
	testMode bool
	clock    biz.Clock
	logger   *log.Helper
	events   *pkglog.LogHelper
}

// NewResilienceService creates a ResilienceService. client may be nil in synthetic mode.
func NewResilienceService(
	c *conf.Bootstrap,
	pipeline *biz.Pipeline,
	metrics *biz.MetricsAggregator,
	breakers *biz.BreakerRegistry,
	chaos *biz.ChaosController,
	stats *biz.StatsUsecase,
	injector *faultinject.Injector,
	client *upstream.Client,
	clock biz.Clock,
	logger log.Logger,
) *ResilienceService {
	if clock == nil {
		clock = biz.SystemClock
	}
	return &ResilienceService{
		pipeline: pipeline,
		metrics:  metrics,
		breakers: breakers,
		chaos:    chaos,
		stats:    stats,
		injector: injector,
		client:   client,
		testMode: (c.Synthetic != nil && c.Synthetic.Enabled) || client == nil,
		clock:    clock,
		logger:   log.NewHelper(logger),
		events:   pkglog.NewLogHelper(logger),
	}
}

// Generate runs one prompt through the pipeline.
func (s *ResilienceService) Generate(ctx context.Context, req *GenerateRequest) (*GenerateReply, error) {
	service := strings.ToLower(strings.TrimSpace(req.Service))
	if service == "" {
		service = biz.DefaultService
	}
	pkglog.SetService(ctx, service)

	out, err := s.pipeline.Handle(ctx, service, biz.Request{Prompt: req.Prompt})
	if err != nil {
		s.logger.Warnw("msg", "ai request failed",
			"service", service,
			"kind", biz.KindOf(err),
			"error", err,
			"request_id", pkglog.GetRequestID(ctx))
		return nil, toKratosError(err)
	}

	if !out.IsRealAPI {
		s.events.Fallback(fmt.Sprintf("Fallback response served for %s", service), "service", service)
	}
	return &GenerateReply{
		Success:   true,
		Service:   out.Upstream,
		Response:  out.Content,
		Latency:   fmt.Sprintf("%dms", out.Latency.Milliseconds()),
		IsRealAPI: out.IsRealAPI,
		Corrupted: out.Corrupted,
		Timestamp: out.Timestamp,
	}, nil
}

// GetMetrics returns the aggregated counters. totalRequests comes from the durable
// counter store when it is reachable.
func (s *ResilienceService) GetMetrics(ctx context.Context, _ *EmptyRequest) (*MetricsReply, error) {
	view := s.metrics.Snapshot()

	reply := &MetricsReply{
		TotalRequests:       view.TotalRequests,
		TotalRequestsSource: "memory",
		SuccessfulRequests:  view.SuccessfulRequests,
		FailedRequests:      view.FailedRequests,
		FallbackResponses:   view.FallbackResponses,
		SuccessRate:         view.SuccessRate,
		AvgLatency:          view.AvgLatencyMs,
		StartTime:           view.StartTime,
		Uptime:              int64(view.Uptime.Seconds()),
		Services:            make(map[string]ServiceMetrics, len(view.Upstreams)),
		CircuitBreakers:     make(map[string]string),
	}
	if total, ok := s.stats.DurableTotal(ctx); ok {
		reply.TotalRequests = total
		reply.TotalRequestsSource = "redis"
	}

	for name, uv := range view.Upstreams {
		reply.Services[name] = ServiceMetrics{
			Requests:      uv.Requests,
			Successes:     uv.Successes,
			Failures:      uv.Failures,
			Fallbacks:     uv.Fallbacks,
			InFlight:      uv.InFlight,
			SuccessRate:   uv.SuccessRate,
			AvgLatency:    uv.AvgLatencyMs,
			Status:        string(uv.Status),
			LastCheckTime: uv.LastCheckTime,
		}
	}
	for _, snap := range s.breakers.Snapshots() {
		reply.CircuitBreakers[snap.Upstream] = snap.State.String()
	}
	return reply, nil
}

// CircuitBreakerStatus reports every breaker with its last transitions.
func (s *ResilienceService) CircuitBreakerStatus(_ context.Context, _ *EmptyRequest) (*BreakerStatusReply, error) {
	snaps := s.breakers.Snapshots()
	reply := &BreakerStatusReply{
		Breakers:  make(map[string]BreakerStatus, len(snaps)),
		Timestamp: s.clock.Now(),
	}
	for _, snap := range snaps {
		reply.Breakers[snap.Upstream] = toBreakerStatus(snap)
	}
	return reply, nil
}

// ResetCircuitBreaker forces one breaker, or all when no service is given, back to CLOSED.
func (s *ResilienceService) ResetCircuitBreaker(_ context.Context, req *ResetBreakerRequest) (*AckReply, error) {
	service := strings.ToLower(strings.TrimSpace(req.Service))
	if service == allServices {
		service = ""
	}

	names, transitions, err := s.breakers.Reset(service)
	if err != nil {
		return nil, toKratosError(err)
	}
	s.pipeline.ObserveTransitions(transitions)

	msg := "All circuit breakers reset"
	if service != "" {
		msg = fmt.Sprintf("Circuit breaker for %s reset", service)
	}
	return &AckReply{Success: true, Message: msg, Services: names}, nil
}

// InjectChaos starts an experiment. Duration is in seconds.
func (s *ResilienceService) InjectChaos(_ context.Context, req *InjectChaosRequest) (*InjectChaosReply, error) {
	service := strings.ToLower(strings.TrimSpace(req.Service))
	if service == "" {
		return nil, toKratosError(&biz.ValidationError{Field: "service", Reason: "is required"})
	}
	if strings.TrimSpace(req.Type) == "" {
		return nil, toKratosError(&biz.ValidationError{Field: "type", Reason: "is required"})
	}

	exp, err := s.chaos.Inject(service, req.Type, req.Intensity, time.Duration(req.Duration)*time.Second)
	if err != nil {
		return nil, toKratosError(err)
	}

	s.events.Chaos(fmt.Sprintf("Chaos %s injected into %s", exp.Type, service),
		"service", service,
		"chaos_type", string(exp.Type),
		"intensity", exp.Intensity,
		"duration_s", int64(exp.Duration().Seconds()))

	msg := fmt.Sprintf("Chaos experiment %s started for %s", exp.Type, service)
	if exp.Type == biz.ChaosNone {
		msg = fmt.Sprintf("Chaos cleared for %s", service)
	}
	return &InjectChaosReply{Success: true, Message: msg, Experiment: toChaosView(exp)}, nil
}

// StopChaos clears the experiment of one service, or every experiment for "all".
func (s *ResilienceService) StopChaos(_ context.Context, req *StopChaosRequest) (*AckReply, error) {
	target := strings.ToLower(strings.TrimSpace(req.Service))
	if target != "" && target != allServices && !s.chaos.IsKnown(target) {
		return nil, toKratosError(&biz.ValidationError{Field: "service", Reason: fmt.Sprintf("unknown service %q", target)})
	}

	stopped := s.chaos.Stop(target)
	msg := fmt.Sprintf("Stopped %d chaos experiment(s)", len(stopped))
	if len(stopped) == 0 {
		msg = "No active chaos experiments"
	}
	return &AckReply{Success: true, Message: msg, Services: stopped}, nil
}

// ChaosStatus lists active experiments with their remaining seconds.
func (s *ResilienceService) ChaosStatus(_ context.Context, _ *EmptyRequest) (*ChaosStatusReply, error) {
	statuses := s.chaos.Status()
	reply := &ChaosStatusReply{
		Active:      len(statuses) > 0,
		Count:       len(statuses),
		Experiments: make([]ChaosExperimentView, 0, len(statuses)),
	}
	for _, st := range statuses {
		view := toChaosView(st.Experiment)
		remaining := int64(st.Remaining.Seconds())
		view.RemainingSeconds = &remaining
		reply.Experiments = append(reply.Experiments, view)
	}
	return reply, nil
}

// Health reports, per upstream, whether it is configured, its breaker state and metrics status.
func (s *ResilienceService) Health(_ context.Context, _ *EmptyRequest) (*HealthReply, error) {
	infos := make(map[string]upstream.Info)
	if s.client != nil {
		for _, info := range s.client.Upstreams() {
			infos[info.Name] = info
		}
	}
	view := s.metrics.Snapshot()

	reply := &HealthReply{Status: "healthy", Timestamp: s.clock.Now()}
	open := 0
	for _, snap := range s.breakers.Snapshots() {
		info, ok := infos[snap.Upstream]
		if !ok {
			info = upstream.Info{Name: snap.Upstream}
		}
		if snap.State == biz.StateOpen {
			open++
		}
		reply.Services = append(reply.Services, UpstreamHealth{
			Info:         info,
			CircuitState: snap.State.String(),
			Status:       string(view.Upstreams[snap.Upstream].Status),
			ChaosActive:  s.chaos.Active(snap.Upstream) != nil,
		})
	}
	switch {
	case open > 0 && open == len(reply.Services):
		reply.Status = "down"
	case open > 0:
		reply.Status = "degraded"
	}
	return reply, nil
}

// Stats aggregates persisted request logs.
func (s *ResilienceService) Stats(ctx context.Context, req *StatsRequest) (*biz.ServiceStatsResult, error) {
	service := strings.ToLower(strings.TrimSpace(req.Service))
	if service != "" && !s.metrics.Has(service) {
		return nil, toKratosError(&biz.ValidationError{Field: "service", Reason: fmt.Sprintf("unknown service %q", service)})
	}
	result, err := s.stats.ServiceStatistics(ctx, service, req.Hours)
	if err != nil {
		return nil, toKratosError(err)
	}
	return result, nil
}

// GetConfig returns the runtime fault injector configuration.
func (s *ResilienceService) GetConfig(_ context.Context, _ *EmptyRequest) (*ConfigReply, error) {
	return &ConfigReply{
		TestMode:      s.testMode,
		FailureConfig: toFailureConfigView(s.injector.Config()),
	}, nil
}

// UpdateFailureConfig changes the fault injector rates at runtime.
func (s *ResilienceService) UpdateFailureConfig(_ context.Context, req *FailureConfigRequest) (*FailureConfigReply, error) {
	cfg := s.injector.Config()
	setRate := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	setRate(&cfg.FailRate, req.FailRate)
	setRate(&cfg.DelayRate, req.DelayRate)
	setRate(&cfg.CorruptRate, req.CorruptRate)
	setRate(&cfg.NetworkErrorRate, req.NetworkErrorRate)
	setRate(&cfg.AuthErrorRate, req.AuthErrorRate)
	setRate(&cfg.RateLimitErrorRate, req.RateLimitErrorRate)
	setRate(&cfg.PartialResponseRate, req.PartialResponseRate)
	setRate(&cfg.SlowResponseRate, req.SlowResponseRate)
	if req.MinDelayMs != nil {
		cfg.MinDelay = time.Duration(*req.MinDelayMs) * time.Millisecond
	}
	if req.MaxDelayMs != nil {
		cfg.MaxDelay = time.Duration(*req.MaxDelayMs) * time.Millisecond
	}

	cfg = s.injector.SetConfig(cfg)
	s.events.Security("Failure injection config updated",
		"fail_rate", cfg.FailRate,
		"delay_rate", cfg.DelayRate,
		"corrupt_rate", cfg.CorruptRate)
	return &FailureConfigReply{OK: true, FailureConfig: toFailureConfigView(cfg)}, nil
}

func toBreakerStatus(snap biz.BreakerSnapshot) BreakerStatus {
	st := BreakerStatus{
		State:                snap.State.String(),
		FailureCount:         snap.FailureCount,
		ConsecutiveSuccesses: snap.ConsecutiveSuccesses,
		FailureThreshold:     snap.Settings.FailureThreshold,
		SuccessThreshold:     snap.Settings.SuccessThreshold,
		OpenTimeoutMs:        snap.Settings.OpenTimeout.Milliseconds(),
		ActiveTrials:         snap.ActiveTrials,
		LastStateChangeTime:  snap.LastStateChangeTime,
		Metrics: BreakerMetricsView{
			TotalCalls:          snap.Metrics.TotalCalls,
			SuccessfulCalls:     snap.Metrics.SuccessfulCalls,
			FailedCalls:         snap.Metrics.FailedCalls,
			RejectedCalls:       snap.Metrics.RejectedCalls,
			TransitionCounts:    snap.Metrics.TransitionCounts,
			TimeSpentPerStateMs: make(map[string]int64, len(snap.Metrics.TimeSpentPerState)),
		},
	}
	if !snap.LastFailureTime.IsZero() {
		t := snap.LastFailureTime
		st.LastFailureTime = &t
	}
	for state, d := range snap.Metrics.TimeSpentPerState {
		st.Metrics.TimeSpentPerStateMs[state.String()] = d.Milliseconds()
	}

	recent := snap.RecentHistory(recentTransitions)
	st.RecentTransitions = make([]TransitionView, 0, len(recent))
	for _, t := range recent {
		st.RecentTransitions = append(st.RecentTransitions, TransitionView{
			From:      t.From.String(),
			To:        t.To.String(),
			Reason:    t.Reason,
			Timestamp: t.Timestamp,
		})
	}
	return st
}
