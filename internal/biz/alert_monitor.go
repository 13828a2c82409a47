package biz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"AIResilience/internal/conf"
	"AIResilience/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// AlertSettings holds the thresholds evaluated by the AlertMonitor.
type AlertSettings struct {
	FailureRate         float64
	FallbackRate        float64
	AvgLatency          time.Duration
	CircuitOpenDuration time.Duration
	Cooldown            time.Duration
}

// AlertMonitor periodically compares metrics and breaker states against thresholds.
// Each alert key is sent at most once per cooldown.
type AlertMonitor struct {
	settings AlertSettings
	metrics  *MetricsAggregator
	breakers *BreakerRegistry
	notifier AlertNotifier
	clock    Clock
	logger   *log.Helper

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewAlertMonitor creates an AlertMonitor from configuration.
func NewAlertMonitor(c *conf.Bootstrap, metrics *MetricsAggregator, breakers *BreakerRegistry, notifier AlertNotifier, clock Clock, logger log.Logger) *AlertMonitor {
	return NewAlertMonitorWith(AlertSettings{
		FailureRate:         c.Alert.FailureRate,
		FallbackRate:        c.Alert.FallbackRate,
		AvgLatency:          c.Alert.AvgLatency,
		CircuitOpenDuration: c.Alert.CircuitOpenDuration,
		Cooldown:            c.Alert.Cooldown,
	}, metrics, breakers, notifier, clock, logger)
}

// NewAlertMonitorWith creates an AlertMonitor from explicit settings.
func NewAlertMonitorWith(settings AlertSettings, metrics *MetricsAggregator, breakers *BreakerRegistry, notifier AlertNotifier, clock Clock, logger log.Logger) *AlertMonitor {
	if clock == nil {
		clock = SystemClock
	}
	return &AlertMonitor{
		settings: settings,
		metrics:  metrics,
		breakers: breakers,
		notifier: notifier,
		clock:    clock,
		logger:   log.NewHelper(logger),
		lastSent: make(map[string]time.Time),
	}
}

// Start announces that monitoring is active.
func (m *AlertMonitor) Start(ctx context.Context) {
	m.send(ctx, &model.Alert{
		Type:      model.AlertMonitoringStarted,
		Title:     "Monitoring Started",
		Message:   "AI service alert monitoring has started",
		Severity:  model.SeverityInfo,
		Timestamp: m.clock.Now(),
	})
}

// Check evaluates every threshold and returns the alerts it sent.
func (m *AlertMonitor) Check(ctx context.Context) []*model.Alert {
	now := m.clock.Now()
	var candidates []*model.Alert

	view := m.metrics.Snapshot()
	if view.TotalRequests > 0 {
		if rate := view.FailureRate(); rate > m.settings.FailureRate {
			candidates = append(candidates, &model.Alert{
				Type:      model.AlertHighFailureRate,
				Title:     "High Failure Rate Detected",
				Message:   fmt.Sprintf("Failure rate is %.1f%% (%d/%d requests)", rate*100, view.FailedRequests, view.TotalRequests),
				Severity:  model.SeverityError,
				Value:     rate,
				Threshold: m.settings.FailureRate,
			})
		}
		if rate := view.FallbackRate(); rate > m.settings.FallbackRate {
			candidates = append(candidates, &model.Alert{
				Type:      model.AlertHighFallbackRate,
				Title:     "High Fallback Rate Detected",
				Message:   fmt.Sprintf("Fallback rate is %.1f%% (%d/%d requests)", rate*100, view.FallbackResponses, view.TotalRequests),
				Severity:  model.SeverityWarning,
				Value:     rate,
				Threshold: m.settings.FallbackRate,
			})
		}
	}
	if limit := m.settings.AvgLatency.Milliseconds(); limit > 0 && view.AvgLatencyMs > limit {
		candidates = append(candidates, &model.Alert{
			Type:      model.AlertHighLatency,
			Title:     "High Latency Detected",
			Message:   fmt.Sprintf("Average latency is %dms", view.AvgLatencyMs),
			Severity:  model.SeverityWarning,
			Value:     float64(view.AvgLatencyMs),
			Threshold: float64(limit),
		})
	}

	for _, snap := range m.breakers.Snapshots() {
		if snap.State != StateOpen {
			continue
		}
		open := now.Sub(snap.LastStateChangeTime)
		if open <= m.settings.CircuitOpenDuration {
			continue
		}
		candidates = append(candidates, &model.Alert{
			Type:      model.AlertCircuitStuckOpen,
			Title:     "Circuit Breaker Stuck Open",
			Message:   fmt.Sprintf("Circuit breaker for %s has been open for %d seconds", snap.Upstream, int64(open.Seconds())),
			Severity:  model.SeverityCritical,
			Service:   snap.Upstream,
			Value:     open.Seconds(),
			Threshold: m.settings.CircuitOpenDuration.Seconds(),
		})
	}

	var sent []*model.Alert
	for _, alert := range candidates {
		alert.Timestamp = now
		if !m.allow(alertKey(alert), now) {
			continue
		}
		m.send(ctx, alert)
		sent = append(sent, alert)
	}
	return sent
}

func (m *AlertMonitor) allow(key string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if last, ok := m.lastSent[key]; ok && now.Sub(last) < m.settings.Cooldown {
		return false
	}
	m.lastSent[key] = now
	return true
}

func (m *AlertMonitor) send(ctx context.Context, alert *model.Alert) {
	if err := m.notifier.NotifyAlert(ctx, alert); err != nil {
		m.logger.Errorw("msg", "failed to deliver alert", "type", alert.Type, "service", alert.Service, "error", err)
	}
}

func alertKey(a *model.Alert) string {
	if a.Service == "" {
		return a.Type
	}
	return a.Type + ":" + a.Service
}
