// Package telemetry exports resilience events as Prometheus metrics.
package telemetry

import (
	"context"

	"AIResilience/internal/biz"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ProviderSet is telemetry providers.
var ProviderSet = wire.NewSet(
	NewRegistry,
	NewExporter,
	wire.Bind(new(prometheus.Registerer), new(*prometheus.Registry)),
	wire.Bind(new(prometheus.Gatherer), new(*prometheus.Registry)),
)

const namespace = "ai"

// NewRegistry creates the registry scraped at /metrics/prometheus,
// preloaded with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Exporter mirrors EventBus traffic into Prometheus collectors.
type Exporter struct {
	requests     *prometheus.CounterVec
	failures     *prometheus.CounterVec
	fallbacks    *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	circuitState *prometheus.GaugeVec
	transitions  *prometheus.CounterVec
	injections   *prometheus.CounterVec
	chaosActive  *prometheus.GaugeVec
}

// NewExporter registers the collectors and subscribes to bus.
// Circuit state gauges start from the current breaker snapshots.
func NewExporter(reg prometheus.Registerer, bus *biz.EventBus, breakers *biz.BreakerRegistry) *Exporter {
	factory := promauto.With(reg)
	e := &Exporter{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total AI requests",
		}, []string{"service"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Total AI failures, by error kind",
		}, []string{"service", "kind"}),
		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Total fallback responses",
		}, []string{"service"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_ms",
			Help:      "Request latency in milliseconds",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"service"}),
		circuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "Circuit breaker state (0 = closed, 1 = open, 2 = half-open)",
		}, []string{"service"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_transitions_total",
			Help:      "Circuit breaker transitions, by target state",
		}, []string{"service", "to"}),
		injections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chaos_injections_total",
			Help:      "Chaos experiments started",
		}, []string{"service", "type"}),
		chaosActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chaos_active",
			Help:      "1 while a chaos experiment is running on the upstream",
		}, []string{"service"}),
	}
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "event_bus_dropped_total",
		Help:      "Events dropped because the event bus buffer was full",
	}, func() float64 { return float64(bus.Dropped()) })

	for _, snap := range breakers.Snapshots() {
		e.circuitState.WithLabelValues(snap.Upstream).Set(float64(snap.State))
		e.chaosActive.WithLabelValues(snap.Upstream).Set(0)
	}

	bus.Subscribe(e)
	return e
}

// HandleEvent implements biz.EventHandler.
func (e *Exporter) HandleEvent(_ context.Context, ev biz.Event) {
	switch ev.Type {
	case biz.EventRequest:
		if r := ev.Request; r != nil {
			e.observeRequest(r)
		}
	case biz.EventTransition:
		if t := ev.Transition; t != nil {
			e.circuitState.WithLabelValues(t.Upstream).Set(float64(t.To))
			e.transitions.WithLabelValues(t.Upstream, t.To.String()).Inc()
		}
	case biz.EventChaosStarted:
		if c := ev.Chaos; c != nil {
			e.injections.WithLabelValues(c.Upstream, string(c.Type)).Inc()
			e.chaosActive.WithLabelValues(c.Upstream).Set(1)
		}
	case biz.EventChaosEnded:
		if c := ev.Chaos; c != nil {
			e.chaosActive.WithLabelValues(c.Upstream).Set(0)
		}
	}
}

func (e *Exporter) observeRequest(r *biz.RequestRecord) {
	e.requests.WithLabelValues(r.Upstream).Inc()
	if !r.Success {
		e.failures.WithLabelValues(r.Upstream, string(r.ErrorKind)).Inc()
		return
	}
	if !r.UsedRealCall {
		e.fallbacks.WithLabelValues(r.Upstream).Inc()
	}
	e.latency.WithLabelValues(r.Upstream).Observe(float64(r.Latency.Milliseconds()))
}
