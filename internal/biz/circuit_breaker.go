package biz

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"AIResilience/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
)

// State is the state of a circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// historyCap bounds the transition history kept per breaker.
const historyCap = 10

// Transition reasons.
const (
	ReasonThresholdReached = "failure threshold reached"
	ReasonTrialFailed      = "failure while half-open"
	ReasonProbing          = "timeout expired, probing"
	ReasonRecovered        = "success threshold reached"
	ReasonManualReset      = "manual reset"
)

// BreakerSettings holds the thresholds of one breaker.
type BreakerSettings struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
	// HalfOpenTimeout reclaims trial slots whose call never reported back.
	// Zero disables reclamation.
	HalfOpenTimeout time.Duration
}

// Transition records one state change of a breaker.
type Transition struct {
	Upstream  string    `json:"-"`
	From      State     `json:"-"`
	To        State     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
}

// Key returns "FROM->TO", the key used by transition counters.
func (t Transition) Key() string {
	return t.From.String() + "->" + t.To.String()
}

// BreakerMetrics are lifetime counters. They survive Reset.
type BreakerMetrics struct {
	TotalCalls        int64
	SuccessfulCalls   int64
	FailedCalls       int64
	RejectedCalls     int64
	TransitionCounts  map[string]int64
	TimeSpentPerState map[State]time.Duration
}

func (m BreakerMetrics) clone() BreakerMetrics {
	out := m
	out.TransitionCounts = make(map[string]int64, len(m.TransitionCounts))
	for k, v := range m.TransitionCounts {
		out.TransitionCounts[k] = v
	}
	out.TimeSpentPerState = make(map[State]time.Duration, len(m.TimeSpentPerState))
	for k, v := range m.TimeSpentPerState {
		out.TimeSpentPerState[k] = v
	}
	return out
}

// BreakerSnapshot is a point-in-time copy of a breaker.
type BreakerSnapshot struct {
	Upstream             string
	State                State
	FailureCount         int
	ConsecutiveSuccesses int
	Settings             BreakerSettings
	LastFailureTime      time.Time
	LastStateChangeTime  time.Time
	ActiveTrials         int
	Metrics              BreakerMetrics
	History              []Transition
}

// RecentHistory returns up to n of the most recent transitions, oldest first.
func (s BreakerSnapshot) RecentHistory(n int) []Transition {
	if len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// CircuitBreaker is the CLOSED / OPEN / HALF_OPEN state machine guarding one upstream.
//
// Admission and result accounting happen under mu; the wrapped function runs
// outside it. Every transition and reset bumps generation, and results of calls
// admitted under an older generation only touch the lifetime counters.
type CircuitBreaker struct {
	name     string
	settings BreakerSettings
	now      func() time.Time

	mu                   sync.Mutex
	state                State
	generation           uint64
	failureCount         int
	consecutiveSuccesses int
	lastFailureTime      time.Time
	lastStateChangeTime  time.Time
	trials               map[uint64]time.Time
	nextTrialID          uint64
	metrics              BreakerMetrics
	history              []Transition
}

// NewCircuitBreaker creates a CLOSED breaker. A nil now uses time.Now.
func NewCircuitBreaker(name string, settings BreakerSettings, now func() time.Time) *CircuitBreaker {
	if now == nil {
		now = time.Now
	}
	if settings.FailureThreshold < 1 {
		settings.FailureThreshold = 1
	}
	if settings.SuccessThreshold < 1 {
		settings.SuccessThreshold = 1
	}
	return &CircuitBreaker{
		name:                name,
		settings:            settings,
		now:                 now,
		state:               StateClosed,
		lastStateChangeTime: now(),
		trials:              make(map[uint64]time.Time),
		metrics: BreakerMetrics{
			TransitionCounts:  make(map[string]int64),
			TimeSpentPerState: make(map[State]time.Duration),
		},
		history: make([]Transition, 0, historyCap),
	}
}

// Name returns the upstream this breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Call runs fn if the breaker admits it and records the result.
// Transitions caused by this call are returned to the caller; the error is
// either a *CircuitOpenError (fn not invoked) or whatever fn returned.
// An abandoned call frees its admission and is counted in neither direction.
func (cb *CircuitBreaker) Call(fn func() error) ([]Transition, error) {
	gen, trialID, transitions, err := cb.admit()
	if err != nil {
		return transitions, err
	}

	settled := false
	defer func() {
		// fn panicked: release the trial slot, the recovery middleware reports the panic.
		if !settled {
			cb.release(trialID)
		}
	}()

	callErr := fn()
	settled = true

	var abandoned *abandonedCall
	if errors.As(callErr, &abandoned) {
		cb.release(trialID)
		return transitions, abandoned.err
	}
	return append(transitions, cb.settle(gen, trialID, callErr)...), callErr
}

// admit decides whether a call may proceed. trialID is non-zero for HALF_OPEN trials.
func (cb *CircuitBreaker) admit() (gen uint64, trialID uint64, transitions []Transition, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.metrics.TotalCalls++

	if cb.state == StateOpen {
		elapsed := now.Sub(cb.lastFailureTime)
		if elapsed < cb.settings.OpenTimeout {
			cb.metrics.RejectedCalls++
			return 0, 0, nil, &CircuitOpenError{
				Upstream:   cb.name,
				State:      StateOpen,
				RetryAfter: cb.settings.OpenTimeout - elapsed,
			}
		}
		transitions = append(transitions, cb.transitionLocked(StateHalfOpen, ReasonProbing, now))
	}

	if cb.state == StateHalfOpen {
		cb.reclaimTrialsLocked(now)
		if len(cb.trials) >= cb.settings.SuccessThreshold {
			cb.metrics.RejectedCalls++
			return 0, 0, transitions, &CircuitOpenError{
				Upstream:   cb.name,
				State:      StateHalfOpen,
				RetryAfter: cb.trialRetryAfterLocked(now),
			}
		}
		cb.nextTrialID++
		trialID = cb.nextTrialID
		cb.trials[trialID] = now
	}

	return cb.generation, trialID, transitions, nil
}

// settle records the result of an admitted call.
func (cb *CircuitBreaker) settle(gen uint64, trialID uint64, callErr error) []Transition {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if trialID != 0 {
		delete(cb.trials, trialID)
	}

	now := cb.now()
	if callErr == nil {
		cb.metrics.SuccessfulCalls++
	} else {
		cb.metrics.FailedCalls++
	}

	if gen != cb.generation {
		// Admitted under a previous state; the state machine has moved on.
		return nil
	}

	if callErr == nil {
		switch cb.state {
		case StateHalfOpen:
			cb.consecutiveSuccesses++
			if cb.consecutiveSuccesses >= cb.settings.SuccessThreshold {
				return []Transition{cb.transitionLocked(StateClosed, ReasonRecovered, now)}
			}
		case StateClosed:
			cb.failureCount = 0
		}
		return nil
	}

	cb.consecutiveSuccesses = 0
	cb.lastFailureTime = now

	switch cb.state {
	case StateHalfOpen:
		return []Transition{cb.transitionLocked(StateOpen, ReasonTrialFailed, now)}
	case StateClosed:
		if cb.failureCount+1 >= cb.settings.FailureThreshold {
			cb.failureCount++
			return []Transition{cb.transitionLocked(StateOpen, ReasonThresholdReached, now)}
		}
		cb.failureCount++
	}
	return nil
}

// release frees a trial slot without recording a result.
func (cb *CircuitBreaker) release(trialID uint64) {
	if trialID == 0 {
		return
	}
	cb.mu.Lock()
	delete(cb.trials, trialID)
	cb.mu.Unlock()
}

// Reset forces the breaker CLOSED and zeroes its state counters.
// Lifetime metrics and history are kept.
func (cb *CircuitBreaker) Reset() []Transition {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	var transitions []Transition
	if cb.state != StateClosed {
		transitions = append(transitions, cb.transitionLocked(StateClosed, ReasonManualReset, now))
	} else {
		cb.generation++
	}

	cb.failureCount = 0
	cb.consecutiveSuccesses = 0
	cb.lastFailureTime = time.Time{}
	cb.trials = make(map[uint64]time.Time)

	return transitions
}

// Snapshot returns a copy of the breaker state. Time spent in the current
// state is included up to now.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	metrics := cb.metrics.clone()
	metrics.TimeSpentPerState[cb.state] += cb.now().Sub(cb.lastStateChangeTime)

	history := make([]Transition, len(cb.history))
	copy(history, cb.history)

	return BreakerSnapshot{
		Upstream:             cb.name,
		State:                cb.state,
		FailureCount:         cb.failureCount,
		ConsecutiveSuccesses: cb.consecutiveSuccesses,
		Settings:             cb.settings,
		LastFailureTime:      cb.lastFailureTime,
		LastStateChangeTime:  cb.lastStateChangeTime,
		ActiveTrials:         len(cb.trials),
		Metrics:              metrics,
		History:              history,
	}
}

// transitionLocked moves the breaker to a new state. Callers hold mu.
func (cb *CircuitBreaker) transitionLocked(to State, reason string, now time.Time) Transition {
	t := Transition{
		Upstream:  cb.name,
		From:      cb.state,
		To:        to,
		Timestamp: now,
		Reason:    reason,
	}

	cb.metrics.TimeSpentPerState[cb.state] += now.Sub(cb.lastStateChangeTime)
	cb.metrics.TransitionCounts[t.Key()]++

	cb.state = to
	cb.lastStateChangeTime = now
	cb.generation++
	cb.trials = make(map[uint64]time.Time)

	switch to {
	case StateHalfOpen, StateClosed:
		cb.failureCount = 0
		cb.consecutiveSuccesses = 0
	}

	if len(cb.history) == historyCap {
		copy(cb.history, cb.history[1:])
		cb.history = cb.history[:historyCap-1]
	}
	cb.history = append(cb.history, t)

	return t
}

func (cb *CircuitBreaker) reclaimTrialsLocked(now time.Time) {
	if cb.settings.HalfOpenTimeout <= 0 {
		return
	}
	for id, admittedAt := range cb.trials {
		if now.Sub(admittedAt) >= cb.settings.HalfOpenTimeout {
			delete(cb.trials, id)
		}
	}
}

func (cb *CircuitBreaker) trialRetryAfterLocked(now time.Time) time.Duration {
	if cb.settings.HalfOpenTimeout <= 0 {
		return 0
	}
	var oldest time.Time
	for _, admittedAt := range cb.trials {
		if oldest.IsZero() || admittedAt.Before(oldest) {
			oldest = admittedAt
		}
	}
	retry := oldest.Add(cb.settings.HalfOpenTimeout).Sub(now)
	if retry < 0 {
		return 0
	}
	return retry
}

// BreakerRegistry owns one breaker per configured upstream.
// The set of upstreams is fixed at construction, so lookups need no lock.
type BreakerRegistry struct {
	breakers map[string]*CircuitBreaker
	names    []string
	logger   *log.Helper
}

// NewBreakerRegistry creates a CLOSED breaker for every configured upstream.
func NewBreakerRegistry(c *conf.Bootstrap, clock Clock, logger log.Logger) *BreakerRegistry {
	settings := BreakerSettings{
		FailureThreshold: c.Breaker.FailureThreshold,
		SuccessThreshold: c.Breaker.SuccessThreshold,
		OpenTimeout:      c.Breaker.OpenTimeout,
		HalfOpenTimeout:  c.Breaker.HalfOpenTimeout,
	}
	names := make([]string, 0, len(c.Upstreams))
	for name := range c.Upstreams {
		names = append(names, name)
	}
	return NewBreakerRegistryWithClock(names, settings, clock.Now, logger)
}

// NewBreakerRegistryWithClock creates breakers for names sharing settings and clock.
func NewBreakerRegistryWithClock(names []string, settings BreakerSettings, now func() time.Time, logger log.Logger) *BreakerRegistry {
	r := &BreakerRegistry{
		breakers: make(map[string]*CircuitBreaker, len(names)),
		logger:   log.NewHelper(logger),
	}
	for _, name := range names {
		if _, ok := r.breakers[name]; ok {
			continue
		}
		r.breakers[name] = NewCircuitBreaker(name, settings, now)
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)

	r.logger.Infow("msg", "circuit breakers initialized",
		"upstreams", r.names,
		"failure_threshold", settings.FailureThreshold,
		"success_threshold", settings.SuccessThreshold,
		"open_timeout", settings.OpenTimeout.String())
	return r
}

// Get returns the breaker of an upstream.
func (r *BreakerRegistry) Get(name string) (*CircuitBreaker, bool) {
	cb, ok := r.breakers[name]
	return cb, ok
}

// Names returns the registered upstreams in sorted order.
func (r *BreakerRegistry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Snapshots returns a snapshot of every breaker, sorted by upstream.
func (r *BreakerRegistry) Snapshots() []BreakerSnapshot {
	out := make([]BreakerSnapshot, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.breakers[name].Snapshot())
	}
	return out
}

// Reset resets one breaker, or all of them when name is empty.
func (r *BreakerRegistry) Reset(name string) ([]string, []Transition, error) {
	if name == "" {
		var transitions []Transition
		for _, n := range r.names {
			transitions = append(transitions, r.breakers[n].Reset()...)
		}
		r.logger.Infow("msg", "all circuit breakers reset", "count", len(r.names))
		return r.Names(), transitions, nil
	}

	cb, ok := r.breakers[name]
	if !ok {
		return nil, nil, &ValidationError{Field: "service", Reason: fmt.Sprintf("unknown service %q", name)}
	}
	transitions := cb.Reset()
	r.logger.Infow("msg", "circuit breaker reset", "service", name)
	return []string{name}, transitions, nil
}
