package biz

import (
	"math"
	"sort"
	"sync"
	"time"

	"AIResilience/internal/conf"
)

// UpstreamStatus is the coarse health of an upstream as seen by the metrics layer.
type UpstreamStatus string

const (
	StatusUnknown    UpstreamStatus = "unknown"
	StatusHealthy    UpstreamStatus = "healthy"
	StatusDegraded   UpstreamStatus = "degraded"
	StatusDown       UpstreamStatus = "down"
	StatusRecovering UpstreamStatus = "recovering"
)

// upstreamBundle holds the counters of one upstream. Guarded by its own mutex.
type upstreamBundle struct {
	mu             sync.Mutex
	requests       int64
	successes      int64
	failures       int64
	fallbacks      int64
	totalLatencyMs int64
	inFlight       int64
	lastCheckTime  time.Time
	status         UpstreamStatus
}

// globalBundle holds process-wide counters.
type globalBundle struct {
	mu                 sync.Mutex
	totalRequests      int64
	successfulRequests int64
	failedRequests     int64
	fallbackResponses  int64
	totalLatencyMs     int64
	startTime          time.Time
}

// UpstreamView is a point-in-time copy of one upstream's counters.
type UpstreamView struct {
	Requests      int64
	Successes     int64
	Failures      int64
	Fallbacks     int64
	InFlight      int64
	SuccessRate   float64
	AvgLatencyMs  int64
	LastCheckTime time.Time
	Status        UpstreamStatus
}

// MetricsView is a snapshot of the aggregator.
type MetricsView struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	FallbackResponses  int64
	SuccessRate        float64
	AvgLatencyMs       int64
	StartTime          time.Time
	Uptime             time.Duration
	Upstreams          map[string]UpstreamView
}

// FailureRate returns failed/total in [0,1], 0 when there is no traffic.
func (v MetricsView) FailureRate() float64 {
	if v.TotalRequests == 0 {
		return 0
	}
	return float64(v.FailedRequests) / float64(v.TotalRequests)
}

// FallbackRate returns fallback/total in [0,1], 0 when there is no traffic.
func (v MetricsView) FallbackRate() float64 {
	if v.TotalRequests == 0 {
		return 0
	}
	return float64(v.FallbackResponses) / float64(v.TotalRequests)
}

// MetricsAggregator keeps per-upstream and global request counters.
// The set of upstreams is fixed at construction; each bundle has its own lock
// and no method holds two locks at once.
type MetricsAggregator struct {
	clock     Clock
	upstreams map[string]*upstreamBundle
	global    globalBundle
}

// NewMetricsAggregator creates counters for every configured upstream.
func NewMetricsAggregator(c *conf.Bootstrap, clock Clock) *MetricsAggregator {
	names := make([]string, 0, len(c.Upstreams))
	for name := range c.Upstreams {
		names = append(names, name)
	}
	return NewMetricsAggregatorFor(names, clock)
}

// NewMetricsAggregatorFor creates counters for names.
func NewMetricsAggregatorFor(names []string, clock Clock) *MetricsAggregator {
	if clock == nil {
		clock = SystemClock
	}
	m := &MetricsAggregator{
		clock:     clock,
		upstreams: make(map[string]*upstreamBundle, len(names)),
	}
	for _, name := range names {
		m.upstreams[name] = &upstreamBundle{status: StatusUnknown}
	}
	m.global.startTime = clock.Now()
	return m
}

// Has reports whether upstream has a counter bundle.
func (m *MetricsAggregator) Has(upstream string) bool {
	_, ok := m.upstreams[upstream]
	return ok
}

// BeginAttempt counts a request and marks it in flight.
// Unknown upstreams are counted globally only.
func (m *MetricsAggregator) BeginAttempt(upstream string) {
	if b, ok := m.upstreams[upstream]; ok {
		b.mu.Lock()
		b.requests++
		b.inFlight++
		b.mu.Unlock()
	}

	m.global.mu.Lock()
	m.global.totalRequests++
	m.global.mu.Unlock()
}

// RollbackAttempt undoes BeginAttempt for a request rejected by validation.
func (m *MetricsAggregator) RollbackAttempt(upstream string) {
	if b, ok := m.upstreams[upstream]; ok {
		b.mu.Lock()
		b.requests--
		b.inFlight--
		b.mu.Unlock()
	}

	m.global.mu.Lock()
	m.global.totalRequests--
	m.global.mu.Unlock()
}

// EndAttempt clears the in-flight mark of a request.
func (m *MetricsAggregator) EndAttempt(upstream string) {
	if b, ok := m.upstreams[upstream]; ok {
		b.mu.Lock()
		b.inFlight--
		b.mu.Unlock()
	}
}

// RecordSuccess records a served request. realCall is false when the fallback simulator answered.
func (m *MetricsAggregator) RecordSuccess(upstream string, latency time.Duration, realCall bool) {
	ms := latency.Milliseconds()
	now := m.clock.Now()

	if b, ok := m.upstreams[upstream]; ok {
		b.mu.Lock()
		b.successes++
		b.totalLatencyMs += ms
		if !realCall {
			b.fallbacks++
		}
		b.lastCheckTime = now
		if b.status != StatusRecovering {
			b.status = StatusHealthy
		}
		b.mu.Unlock()
	}

	m.global.mu.Lock()
	m.global.successfulRequests++
	m.global.totalLatencyMs += ms
	if !realCall {
		m.global.fallbackResponses++
	}
	m.global.mu.Unlock()
}

// RecordFailure records a request that failed after chaos, breaker and fallback.
func (m *MetricsAggregator) RecordFailure(upstream string) {
	now := m.clock.Now()

	if b, ok := m.upstreams[upstream]; ok {
		b.mu.Lock()
		b.failures++
		b.lastCheckTime = now
		if b.status != StatusDown {
			b.status = StatusDegraded
		}
		b.mu.Unlock()
	}

	m.global.mu.Lock()
	m.global.failedRequests++
	m.global.mu.Unlock()
}

// ObserveTransition maps a breaker transition onto the upstream status.
func (m *MetricsAggregator) ObserveTransition(t Transition) {
	b, ok := m.upstreams[t.Upstream]
	if !ok {
		return
	}

	var status UpstreamStatus
	switch t.To {
	case StateOpen:
		status = StatusDown
	case StateHalfOpen:
		status = StatusRecovering
	case StateClosed:
		status = StatusHealthy
	default:
		return
	}

	b.mu.Lock()
	b.status = status
	b.lastCheckTime = t.Timestamp
	b.mu.Unlock()
}

// Snapshot returns a copy of all counters. Each bundle is copied under its own lock,
// so derived rates never mix counters from different moments.
func (m *MetricsAggregator) Snapshot() MetricsView {
	now := m.clock.Now()

	m.global.mu.Lock()
	view := MetricsView{
		TotalRequests:      m.global.totalRequests,
		SuccessfulRequests: m.global.successfulRequests,
		FailedRequests:     m.global.failedRequests,
		FallbackResponses:  m.global.fallbackResponses,
		StartTime:          m.global.startTime,
	}
	totalLatency := m.global.totalLatencyMs
	m.global.mu.Unlock()

	view.SuccessRate = successRate(view.SuccessfulRequests, view.TotalRequests)
	view.AvgLatencyMs = avgLatency(totalLatency, view.SuccessfulRequests)
	view.Uptime = now.Sub(view.StartTime)

	view.Upstreams = make(map[string]UpstreamView, len(m.upstreams))
	for name, b := range m.upstreams {
		b.mu.Lock()
		uv := UpstreamView{
			Requests:      b.requests,
			Successes:     b.successes,
			Failures:      b.failures,
			Fallbacks:     b.fallbacks,
			InFlight:      b.inFlight,
			LastCheckTime: b.lastCheckTime,
			Status:        b.status,
		}
		latency := b.totalLatencyMs
		b.mu.Unlock()

		uv.SuccessRate = successRate(uv.Successes, uv.Requests)
		uv.AvgLatencyMs = avgLatency(latency, uv.Successes)
		view.Upstreams[name] = uv
	}
	return view
}

// Names returns the tracked upstreams in sorted order.
func (m *MetricsAggregator) Names() []string {
	names := make([]string, 0, len(m.upstreams))
	for name := range m.upstreams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// successRate is successes/total*100 rounded to one decimal, 100 without traffic.
func successRate(successes, total int64) float64 {
	if total <= 0 {
		return 100
	}
	return math.Round(float64(successes)/float64(total)*1000) / 10
}

// avgLatency is totalLatency/successes rounded to the millisecond, 0 without successes.
func avgLatency(totalLatencyMs, successes int64) int64 {
	if successes <= 0 {
		return 0
	}
	return int64(math.Round(float64(totalLatencyMs) / float64(successes)))
}
