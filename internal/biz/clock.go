package biz

import (
	"context"
	"time"

	"AIResilience/pkg/faultinject"
)

// Clock abstracts wall time and context-aware sleeping for breakers,
// chaos experiments and the fallback simulator.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

// SystemClock is the real clock.
var SystemClock Clock = systemClock{}

// NewSystemClock returns SystemClock for dependency injection.
func NewSystemClock() Clock {
	return SystemClock
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	return faultinject.Sleep(ctx, d)
}
