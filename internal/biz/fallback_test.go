package biz

import (
	"context"
	"errors"
	"testing"
	"time"

	"AIResilience/internal/conf"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallback_Respond(t *testing.T) {
	clock := newFakeClock()
	fb := NewFallbackSimulator(&conf.Bootstrap{Fallback: &conf.Fallback{
		MinDelay:    500 * time.Millisecond,
		MaxDelay:    2500 * time.Millisecond,
		FailureRate: 0.1,
	}}, fixedSource{f: 0.5, n: 1 << 40}, clock, testLogger())

	text, err := fb.Respond(context.Background(), "cohere", "tell me a joke", errBoom)
	require.NoError(t, err)
	assert.Equal(t, `Simulated cohere response for: "tell me a joke"`, text)
	// Int63n saturates at the top of the range.
	assert.Equal(t, []time.Duration{2500 * time.Millisecond}, clock.Sleeps())
}

func TestFallback_Failure(t *testing.T) {
	fb := NewFallbackSimulatorWith(FallbackSettings{FailureRate: 0.1}, fixedSource{f: 0.09}, newFakeClock(), testLogger())

	_, err := fb.Respond(context.Background(), "cohere", "hi", errBoom)
	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.True(t, ue.Fallback)
	assert.Equal(t, "cohere", ue.Upstream)
	assert.Equal(t, KindUpstream, KindOf(err))
}

func TestFallback_Cancelled(t *testing.T) {
	fb := NewFallbackSimulatorWith(FallbackSettings{MinDelay: time.Second, MaxDelay: time.Second}, fixedSource{f: 0.5}, newFakeClock(), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fb.Respond(ctx, "gemini", "hi", errBoom)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, KindUpstream, KindOf(err))
}
