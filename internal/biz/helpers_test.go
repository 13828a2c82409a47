package biz

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

var errBoom = errors.New("boom")

// fakeClock is a manually advanced clock shared by breakers and chaos experiments.
// Sleep advances the clock instead of blocking and records the requested duration.
type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// recordingPublisher collects published events synchronously.
type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *recordingPublisher) ofType(t EventType) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// fixedSource returns the same draw every time.
type fixedSource struct {
	f float64
	n int64
}

func (s fixedSource) Float64() float64 { return s.f }

func (s fixedSource) Int63n(n int64) int64 {
	if s.n >= n {
		return n - 1
	}
	return s.n
}

func testLogger() log.Logger {
	return log.NewStdLogger(os.Stdout)
}

func succeed() error { return nil }

func fail() error { return errBoom }
