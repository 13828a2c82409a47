package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"AIResilience/internal/conf"
	"AIResilience/pkg/faultinject"

	"github.com/go-kratos/kratos/v2/log"
)

var errFallbackFailed = errors.New("fallback service also failed")

// FallbackSettings bounds the simulated response.
type FallbackSettings struct {
	MinDelay    time.Duration
	MaxDelay    time.Duration
	FailureRate float64
}

// FallbackSimulator produces a synthetic response when the real upstream call fails.
type FallbackSimulator struct {
	settings FallbackSettings
	inj      *faultinject.Injector
	clock    Clock
	logger   *log.Helper
}

// NewFallbackSimulator creates a FallbackSimulator from configuration.
func NewFallbackSimulator(c *conf.Bootstrap, src faultinject.Source, clock Clock, logger log.Logger) *FallbackSimulator {
	return NewFallbackSimulatorWith(FallbackSettings{
		MinDelay:    c.Fallback.MinDelay,
		MaxDelay:    c.Fallback.MaxDelay,
		FailureRate: c.Fallback.FailureRate,
	}, src, clock, logger)
}

// NewFallbackSimulatorWith creates a FallbackSimulator from explicit settings.
func NewFallbackSimulatorWith(settings FallbackSettings, src faultinject.Source, clock Clock, logger log.Logger) *FallbackSimulator {
	if clock == nil {
		clock = SystemClock
	}
	return &FallbackSimulator{
		settings: settings,
		inj:      faultinject.New(faultinject.Config{}, src),
		clock:    clock,
		logger:   log.NewHelper(logger),
	}
}

// Respond waits a bounded random delay and returns a simulated reply.
// With probability FailureRate, or when ctx ends first, it fails with an *UpstreamError marked Fallback.
func (f *FallbackSimulator) Respond(ctx context.Context, upstream, prompt string, cause error) (string, error) {
	delay := f.inj.Between(f.settings.MinDelay, f.settings.MaxDelay)
	f.logger.Infow("msg", "using fallback response",
		"service", upstream, "cause", cause, "delay", delay.String())

	if err := f.clock.Sleep(ctx, delay); err != nil {
		return "", &UpstreamError{Upstream: upstream, Fallback: true, Err: err}
	}
	if f.inj.ShouldInject(f.settings.FailureRate) {
		return "", &UpstreamError{Upstream: upstream, Fallback: true, Err: errFallbackFailed}
	}
	return fmt.Sprintf("Simulated %s response for: %q", upstream, prompt), nil
}
