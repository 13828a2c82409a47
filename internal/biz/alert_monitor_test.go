package biz

import (
	"context"
	"sync"
	"testing"
	"time"

	"AIResilience/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []*model.Alert
}

func (n *recordingNotifier) NotifyAlert(_ context.Context, alert *model.Alert) error {
	n.mu.Lock()
	n.alerts = append(n.alerts, alert)
	n.mu.Unlock()
	return nil
}

func newTestAlertMonitor(clock *fakeClock) (*AlertMonitor, *MetricsAggregator, *BreakerRegistry, *recordingNotifier) {
	names := []string{"gemini", "cohere"}
	metrics := NewMetricsAggregatorFor(names, clock)
	breakers := NewBreakerRegistryWithClock(names, BreakerSettings{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		OpenTimeout:      time.Hour,
	}, clock.Now, testLogger())
	notifier := &recordingNotifier{}
	monitor := NewAlertMonitorWith(AlertSettings{
		FailureRate:         0.5,
		FallbackRate:        0.8,
		AvgLatency:          5 * time.Second,
		CircuitOpenDuration: 5 * time.Minute,
		Cooldown:            5 * time.Minute,
	}, metrics, breakers, notifier, clock, testLogger())
	return monitor, metrics, breakers, notifier
}

func alertTypes(alerts []*model.Alert) []string {
	out := make([]string, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.Type)
	}
	return out
}

// Test Check - no traffic raises nothing
func TestAlertMonitor_Quiet(t *testing.T) {
	monitor, _, _, notifier := newTestAlertMonitor(newFakeClock())

	assert.Empty(t, monitor.Check(context.Background()))
	assert.Empty(t, notifier.alerts)
}

// Test Check - failure, fallback and latency thresholds
func TestAlertMonitor_Thresholds(t *testing.T) {
	monitor, metrics, _, notifier := newTestAlertMonitor(newFakeClock())

	// 4 requests: 3 failures, 1 slow fallback success.
	for i := 0; i < 4; i++ {
		metrics.BeginAttempt("gemini")
		metrics.EndAttempt("gemini")
	}
	for i := 0; i < 3; i++ {
		metrics.RecordFailure("gemini")
	}
	metrics.RecordSuccess("gemini", 6*time.Second, false)

	sent := monitor.Check(context.Background())
	assert.ElementsMatch(t, []string{model.AlertHighFailureRate, model.AlertHighLatency}, alertTypes(sent))
	require.Len(t, notifier.alerts, 2)

	for _, a := range sent {
		if a.Type == model.AlertHighFailureRate {
			assert.Equal(t, 0.75, a.Value)
			assert.Equal(t, model.SeverityError, a.Severity)
			assert.Contains(t, a.Message, "75.0%")
		}
	}
}

// Test Check - fallback rate above 80%
func TestAlertMonitor_FallbackRate(t *testing.T) {
	monitor, metrics, _, _ := newTestAlertMonitor(newFakeClock())

	for i := 0; i < 10; i++ {
		metrics.BeginAttempt("cohere")
		metrics.RecordSuccess("cohere", 100*time.Millisecond, i == 0)
		metrics.EndAttempt("cohere")
	}

	sent := monitor.Check(context.Background())
	assert.Equal(t, []string{model.AlertHighFallbackRate}, alertTypes(sent))
}

// Test Check - the same alert is suppressed during the cooldown
func TestAlertMonitor_Cooldown(t *testing.T) {
	clock := newFakeClock()
	monitor, metrics, _, notifier := newTestAlertMonitor(clock)

	metrics.BeginAttempt("gemini")
	metrics.RecordFailure("gemini")
	metrics.EndAttempt("gemini")

	assert.Len(t, monitor.Check(context.Background()), 1)

	clock.Advance(4 * time.Minute)
	assert.Empty(t, monitor.Check(context.Background()))

	clock.Advance(time.Minute)
	assert.Len(t, monitor.Check(context.Background()), 1)
	assert.Len(t, notifier.alerts, 2)
}

// Test Check - breaker open longer than the threshold
func TestAlertMonitor_CircuitStuckOpen(t *testing.T) {
	clock := newFakeClock()
	monitor, _, breakers, _ := newTestAlertMonitor(clock)

	cb, _ := breakers.Get("cohere")
	_, _ = cb.Call(fail)
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(5 * time.Minute)
	assert.Empty(t, monitor.Check(context.Background()))

	clock.Advance(time.Second)
	sent := monitor.Check(context.Background())
	require.Len(t, sent, 1)
	assert.Equal(t, model.AlertCircuitStuckOpen, sent[0].Type)
	assert.Equal(t, "cohere", sent[0].Service)
	assert.Equal(t, model.SeverityCritical, sent[0].Severity)
	assert.Contains(t, sent[0].Message, "301 seconds")
}

// Test Start - announces monitoring
func TestAlertMonitor_Start(t *testing.T) {
	monitor, _, _, notifier := newTestAlertMonitor(newFakeClock())

	monitor.Start(context.Background())
	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, model.AlertMonitoringStarted, notifier.alerts[0].Type)
	assert.Equal(t, model.SeverityInfo, notifier.alerts[0].Severity)
}
