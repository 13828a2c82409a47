// Package faultinject provides probabilistic fault primitives used to simulate
// unreliable upstreams: delays, corrupted payloads and typed errors.
// All randomness flows through a Source so that tests can run with a seeded generator.
package faultinject

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// DefaultSlowMin and DefaultSlowMax bound the delay of a slow response.
const (
	DefaultSlowMin = 5 * time.Second
	DefaultSlowMax = 30 * time.Second
)

// Source is the random source consumed by the injector and the chaos controller.
type Source interface {
	// Float64 returns a value in [0,1).
	Float64() float64
	// Int63n returns a value in [0,n). n must be > 0.
	Int63n(n int64) int64
}

// lockedSource serializes access to a *rand.Rand, which is not safe for concurrent use.
type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewSource returns a goroutine-safe Source seeded with seed.
func NewSource(seed int64) Source {
	return &lockedSource{r: rand.New(rand.NewSource(seed))}
}

// NewTimeSource returns a Source seeded from the wall clock.
func NewTimeSource() Source {
	return NewSource(time.Now().UnixNano())
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

func (s *lockedSource) Int63n(n int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Int63n(n)
}

// Config holds the injection rates of the synthetic unreliable mode.
// Every rate is a probability in [0,1].
type Config struct {
	FailRate            float64       `json:"failRate"`
	DelayRate           float64       `json:"delayRate"`
	MinDelay            time.Duration `json:"-"`
	MaxDelay            time.Duration `json:"-"`
	CorruptRate         float64       `json:"corruptRate"`
	NetworkErrorRate    float64       `json:"networkErrorRate"`
	AuthErrorRate       float64       `json:"authErrorRate"`
	RateLimitErrorRate  float64       `json:"rateLimitErrorRate"`
	PartialResponseRate float64       `json:"partialResponseRate"`
	SlowResponseRate    float64       `json:"slowResponseRate"`
}

// Clamp returns a copy of c with every rate limited to [0,1] and delays ordered.
func (c Config) Clamp() Config {
	c.FailRate = clampRate(c.FailRate)
	c.DelayRate = clampRate(c.DelayRate)
	c.CorruptRate = clampRate(c.CorruptRate)
	c.NetworkErrorRate = clampRate(c.NetworkErrorRate)
	c.AuthErrorRate = clampRate(c.AuthErrorRate)
	c.RateLimitErrorRate = clampRate(c.RateLimitErrorRate)
	c.PartialResponseRate = clampRate(c.PartialResponseRate)
	c.SlowResponseRate = clampRate(c.SlowResponseRate)
	if c.MinDelay < 0 {
		c.MinDelay = 0
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = c.MinDelay
	}
	return c
}

func clampRate(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// Fault kinds carried by FaultError.
const (
	KindNetwork   = "network"
	KindAuth      = "auth"
	KindRateLimit = "rate_limit"
	KindFailure   = "failure"
)

var networkCodes = []string{"ECONNRESET", "ETIMEDOUT", "ENOTFOUND", "ECONNREFUSED"}

// FaultError is a synthetic error produced by the injector.
type FaultError struct {
	Kind       string
	Code       string
	Status     int
	RetryAfter time.Duration
	Message    string
}

// Error implements the error interface.
func (e *FaultError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Code)
	}
	return e.Message
}

// Injector produces faults according to its Config. Safe for concurrent use.
type Injector struct {
	mu  sync.RWMutex
	cfg Config
	src Source
}

// New creates an Injector. A nil src falls back to a time-seeded source.
func New(cfg Config, src Source) *Injector {
	if src == nil {
		src = NewTimeSource()
	}
	return &Injector{cfg: cfg.Clamp(), src: src}
}

// Config returns the current configuration.
func (i *Injector) Config() Config {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.cfg
}

// SetConfig replaces the configuration; rates are clamped to [0,1].
func (i *Injector) SetConfig(cfg Config) Config {
	cfg = cfg.Clamp()
	i.mu.Lock()
	i.cfg = cfg
	i.mu.Unlock()
	return cfg
}

// Source exposes the random source so callers can share one generator.
func (i *Injector) Source() Source {
	return i.src
}

// ShouldInject performs a Bernoulli draw with probability rate.
func (i *Injector) ShouldInject(rate float64) bool {
	if rate <= 0 {
		return false
	}
	return i.src.Float64() < rate
}

// Between returns a uniform duration in [min,max].
func (i *Injector) Between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(i.src.Int63n(int64(max-min)+1))
}

// InjectDelay sleeps for a uniform duration in [min,max].
// It returns early with ctx.Err() when the context is done.
func (i *Injector) InjectDelay(ctx context.Context, min, max time.Duration) (time.Duration, error) {
	d := i.Between(min, max)
	return d, Sleep(ctx, d)
}

// CorruptData removes one random field from data with probability rate.
// The input map is not modified; the returned bool reports whether a field was dropped.
func (i *Injector) CorruptData(data map[string]any, rate float64) (map[string]any, bool) {
	if len(data) == 0 || !i.ShouldInject(rate) {
		return data, false
	}

	keys := sortedKeys(data)
	drop := keys[i.src.Int63n(int64(len(keys)))]

	out := make(map[string]any, len(data)-1)
	for k, v := range data {
		if k != drop {
			out[k] = v
		}
	}
	return out, true
}

// NetworkError returns a connection-level fault with probability NetworkErrorRate.
func (i *Injector) NetworkError() error {
	if !i.ShouldInject(i.Config().NetworkErrorRate) {
		return nil
	}
	code := networkCodes[i.src.Int63n(int64(len(networkCodes)))]
	return &FaultError{Kind: KindNetwork, Code: code, Message: "Network error"}
}

// AuthError returns a 401 fault with probability AuthErrorRate.
func (i *Injector) AuthError() error {
	if !i.ShouldInject(i.Config().AuthErrorRate) {
		return nil
	}
	return &FaultError{Kind: KindAuth, Status: 401, Message: "Authentication failed: Invalid API key"}
}

// RateLimitError returns a 429 fault with a 30-90s retry hint with probability RateLimitErrorRate.
func (i *Injector) RateLimitError() error {
	if !i.ShouldInject(i.Config().RateLimitErrorRate) {
		return nil
	}
	retryAfter := time.Duration(30+i.src.Int63n(61)) * time.Second
	return &FaultError{
		Kind:       KindRateLimit,
		Status:     429,
		RetryAfter: retryAfter,
		Message:    "Rate limit exceeded: Too many requests",
	}
}

// PartialResponse keeps the first half of the fields (sorted by key) and marks
// the result with "_partial" with probability PartialResponseRate.
func (i *Injector) PartialResponse(data map[string]any) (map[string]any, bool) {
	if len(data) == 0 || !i.ShouldInject(i.Config().PartialResponseRate) {
		return data, false
	}

	keys := sortedKeys(data)
	keep := (len(keys) + 1) / 2
	out := make(map[string]any, keep+1)
	for _, k := range keys[:keep] {
		out[k] = data[k]
	}
	out["_partial"] = true
	return out, true
}

// SlowResponse sleeps between DefaultSlowMin and DefaultSlowMax with probability SlowResponseRate.
func (i *Injector) SlowResponse(ctx context.Context) (time.Duration, error) {
	if !i.ShouldInject(i.Config().SlowResponseRate) {
		return 0, nil
	}
	return i.InjectDelay(ctx, DefaultSlowMin, DefaultSlowMax)
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
