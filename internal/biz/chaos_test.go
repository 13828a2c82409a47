package biz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChaos(clock *fakeClock, draw float64) (*ChaosController, *recordingPublisher) {
	pub := &recordingPublisher{}
	cc := NewChaosControllerWith([]string{"gemini", "cohere"}, ChaosSettings{}, fixedSource{f: draw}, clock, pub, testLogger())
	return cc, pub
}

// Test ParseChaosType - accepted and rejected kinds
func TestParseChaosType(t *testing.T) {
	for _, s := range []string{"latency", "failure", "timeout", "intermittent", "unavailable", "corruption", "none", " Latency "} {
		_, err := ParseChaosType(s)
		assert.NoError(t, err, s)
	}

	_, err := ParseChaosType("meteor")
	assert.Equal(t, KindValidation, KindOf(err))
}

// Test scenario - gemini latency 500ms for 5s
func TestChaos_LatencyScenario(t *testing.T) {
	clock := newFakeClock()
	cc, _ := newTestChaos(clock, 0)

	exp, err := cc.Inject("gemini", "latency", 500, 5*time.Second)
	require.NoError(t, err)
	end := exp.EndTime

	delayed := 0
	for clock.Now().Before(end) {
		effect, err := cc.Apply(context.Background(), "gemini")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, effect.Delay, 500*time.Millisecond)
		delayed++
	}
	assert.Equal(t, 10, delayed)

	effect, err := cc.Apply(context.Background(), "gemini")
	require.NoError(t, err)
	assert.Zero(t, effect.Delay)
	assert.Nil(t, effect.Experiment)
	assert.Empty(t, cc.Status())

	// Other upstreams are unaffected.
	effect, err = cc.Apply(context.Background(), "cohere")
	require.NoError(t, err)
	assert.Nil(t, effect.Experiment)
}

// Test Apply - latency and timeout are capped
func TestChaos_DelayCaps(t *testing.T) {
	clock := newFakeClock()
	cc, _ := newTestChaos(clock, 0)

	_, err := cc.Inject("gemini", "latency", 60000, time.Minute)
	require.NoError(t, err)
	effect, err := cc.Apply(context.Background(), "gemini")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, effect.Delay, "intensity clamped to 10000ms")

	_, err = cc.Inject("cohere", "timeout", 50, time.Minute)
	require.NoError(t, err)
	effect, err = cc.Apply(context.Background(), "cohere")
	assert.Equal(t, KindChaos, KindOf(err))
	assert.Equal(t, 1500*time.Millisecond, effect.Delay)

	_, err = cc.Inject("cohere", "timeout", 500, time.Minute)
	require.NoError(t, err)
	effect, err = cc.Apply(context.Background(), "cohere")
	assert.Equal(t, KindChaos, KindOf(err))
	assert.Equal(t, 3*time.Second, effect.Delay)
}

// Test NewChaosControllerWith - configured bounds cannot exceed the delay caps
func TestChaos_SettingsClamped(t *testing.T) {
	clock := newFakeClock()
	cc := NewChaosControllerWith([]string{"gemini"}, ChaosSettings{
		MaxLatency:    time.Minute,
		TimeoutFactor: 100,
		MaxTimeout:    10 * time.Second,
	}, fixedSource{}, clock, nil, testLogger())

	_, err := cc.Inject("gemini", "timeout", 50, time.Minute)
	require.NoError(t, err)
	effect, err := cc.Apply(context.Background(), "gemini")
	assert.Equal(t, KindChaos, KindOf(err))
	assert.Equal(t, 1500*time.Millisecond, effect.Delay)

	_, err = cc.Inject("gemini", "timeout", 1000, time.Minute)
	require.NoError(t, err)
	effect, _ = cc.Apply(context.Background(), "gemini")
	assert.Equal(t, MaxChaosTimeout, effect.Delay)

	_, err = cc.Inject("gemini", "latency", MaxChaosIntensity, time.Minute)
	require.NoError(t, err)
	effect, err = cc.Apply(context.Background(), "gemini")
	require.NoError(t, err)
	assert.Equal(t, MaxChaosLatency, effect.Delay)
}

// Test Apply - failure with intensity 100 fails every call until expiry
func TestChaos_FailureFullIntensity(t *testing.T) {
	clock := newFakeClock()
	cc, _ := newTestChaos(clock, 0.999)

	_, err := cc.Inject("cohere", "failure", 100, 3*time.Second)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		_, err := cc.Apply(context.Background(), "cohere")
		var chaosErr *ChaosError
		require.True(t, errors.As(err, &chaosErr))
		assert.Equal(t, ChaosFailure, chaosErr.Type)
	}

	clock.Advance(3 * time.Second)
	_, err = cc.Apply(context.Background(), "cohere")
	assert.NoError(t, err)
}

// Test Apply - probabilistic failure compares draw*100 with intensity
func TestChaos_FailureDraw(t *testing.T) {
	tests := []struct {
		name      string
		chaosType string
		draw      float64
		intensity int
		wantErr   bool
	}{
		{"draw below intensity fails", "failure", 0.29, 30, true},
		{"draw at intensity passes", "failure", 0.30, 30, false},
		{"intermittent uses the same test", "intermittent", 0.10, 20, true},
		{"zero intensity never fails", "intermittent", 0.0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			cc, _ := newTestChaos(clock, tt.draw)
			_, err := cc.Inject("gemini", tt.chaosType, tt.intensity, time.Minute)
			require.NoError(t, err)

			_, err = cc.Apply(context.Background(), "gemini")
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

// Test Apply - unavailable always fails, corruption never fails
func TestChaos_UnavailableAndCorruption(t *testing.T) {
	clock := newFakeClock()
	cc, _ := newTestChaos(clock, 0)

	_, err := cc.Inject("gemini", "unavailable", 0, time.Minute)
	require.NoError(t, err)
	_, err = cc.Apply(context.Background(), "gemini")
	assert.Equal(t, KindChaos, KindOf(err))

	_, err = cc.Inject("cohere", "corruption", 100, time.Minute)
	require.NoError(t, err)
	effect, err := cc.Apply(context.Background(), "cohere")
	assert.NoError(t, err)
	assert.True(t, effect.Corrupt)
}

// Test Apply - cancelled context interrupts the delay
func TestChaos_ContextCancelled(t *testing.T) {
	clock := newFakeClock()
	cc, _ := newTestChaos(clock, 0)
	_, err := cc.Inject("gemini", "latency", 500, time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = cc.Apply(ctx, "gemini")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotEqual(t, KindChaos, KindOf(err))
}

// Test Inject - clamping, validation and replacement
func TestChaos_Inject(t *testing.T) {
	clock := newFakeClock()
	cc, pub := newTestChaos(clock, 0)

	exp, err := cc.Inject("gemini", "failure", -5, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, exp.Intensity)
	assert.Equal(t, time.Second, exp.Duration())

	exp, err = cc.Inject("gemini", "latency", 20000, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, MaxChaosIntensity, exp.Intensity)
	assert.Equal(t, 300*time.Second, exp.Duration())

	ended := pub.ofType(EventChaosEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, "replaced by new experiment", ended[0].Chaos.Note)
	assert.Len(t, pub.ofType(EventChaosStarted), 2)

	_, err = cc.Inject("mistral", "failure", 10, time.Second)
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = cc.Inject("gemini", "meteor", 10, time.Second)
	assert.Equal(t, KindValidation, KindOf(err))

	// "none" clears the upstream
	exp, err = cc.Inject("gemini", "none", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, ChaosNone, exp.Type)
	assert.Nil(t, cc.Active("gemini"))
}

// Test Stop - single upstream and "all"
func TestChaos_Stop(t *testing.T) {
	clock := newFakeClock()
	cc, pub := newTestChaos(clock, 0)

	_, _ = cc.Inject("gemini", "failure", 50, time.Minute)
	_, _ = cc.Inject("cohere", "latency", 50, time.Minute)

	assert.Equal(t, []string{"gemini"}, cc.Stop("gemini"))
	assert.Empty(t, cc.Stop("gemini"))
	require.Len(t, cc.Status(), 1)

	assert.Equal(t, []string{"cohere"}, cc.Stop("all"))
	assert.Empty(t, cc.Status())
	assert.Len(t, pub.ofType(EventChaosEnded), 2)
}

// Test Status - remaining seconds and lazy expiry
func TestChaos_Status(t *testing.T) {
	clock := newFakeClock()
	cc, pub := newTestChaos(clock, 0)

	_, _ = cc.Inject("gemini", "failure", 50, 30*time.Second)
	_, _ = cc.Inject("cohere", "failure", 50, 10*time.Second)

	clock.Advance(12500 * time.Millisecond)

	status := cc.Status()
	require.Len(t, status, 1)
	assert.Equal(t, "gemini", status[0].Experiment.Upstream)
	assert.Equal(t, 17*time.Second, status[0].Remaining)

	ended := pub.ofType(EventChaosEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, "cohere", ended[0].Chaos.Upstream)
	assert.Equal(t, "expired", ended[0].Chaos.Note)
}

// Test SweepExpired - removes expired experiments and reports counts
func TestChaos_SweepExpired(t *testing.T) {
	clock := newFakeClock()
	cc, pub := newTestChaos(clock, 0)

	_, _ = cc.Inject("gemini", "failure", 100, 5*time.Second)
	_, _ = cc.Inject("cohere", "latency", 10, time.Minute)

	effect, err := cc.Apply(context.Background(), "gemini")
	cc.ObserveOutcome(effect, err == nil)
	effect, err = cc.Apply(context.Background(), "gemini")
	cc.ObserveOutcome(effect, err == nil)

	clock.Advance(6 * time.Second)
	assert.Equal(t, 1, cc.SweepExpired())
	assert.Equal(t, 0, cc.SweepExpired())

	ended := pub.ofType(EventChaosEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, int64(2), ended[0].Chaos.TotalRequests)
	assert.Equal(t, int64(2), ended[0].Chaos.FailedRequests)
	assert.NotNil(t, cc.Active("cohere"))
}
