package biz

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"AIResilience/internal/conf"
	"AIResilience/pkg/faultinject"

	"github.com/go-kratos/kratos/v2/log"
)

// ChaosType is the kind of fault an experiment injects.
type ChaosType string

const (
	ChaosLatency      ChaosType = "latency"
	ChaosFailure      ChaosType = "failure"
	ChaosTimeout      ChaosType = "timeout"
	ChaosIntermittent ChaosType = "intermittent"
	ChaosUnavailable  ChaosType = "unavailable"
	ChaosCorruption   ChaosType = "corruption"
	ChaosNone         ChaosType = "none"
)

// Operator bounds for experiments.
const (
	MaxChaosIntensity  = 10000
	MinChaosDuration   = 1 * time.Second
	MaxChaosDuration   = 300 * time.Second
	StopAllExperiments = "all"
)

// Upper bounds of the injected delays: latency min(intensity, 10000) ms,
// timeout min(intensity*30, 3000) ms.
const (
	MaxChaosLatency       = 10 * time.Second
	MaxChaosTimeoutFactor = 30
	MaxChaosTimeout       = 3 * time.Second
)

const (
	chaosNoteStopped  = "stopped by operator"
	chaosNoteExpired  = "expired"
	chaosNoteReplaced = "replaced by new experiment"
)

// ParseChaosType validates an experiment type.
func ParseChaosType(s string) (ChaosType, error) {
	switch t := ChaosType(strings.ToLower(strings.TrimSpace(s))); t {
	case ChaosLatency, ChaosFailure, ChaosTimeout, ChaosIntermittent,
		ChaosUnavailable, ChaosCorruption, ChaosNone:
		return t, nil
	default:
		return "", &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown chaos type %q", s)}
	}
}

// experimentStats counts requests observed while an experiment is active.
type experimentStats struct {
	requests atomic.Int64
	failures atomic.Int64
}

// ChaosExperiment is an immutable operator-scheduled fault. Updates replace the whole value.
type ChaosExperiment struct {
	ID        string
	Upstream  string
	Type      ChaosType
	Intensity int
	StartTime time.Time
	EndTime   time.Time

	stats *experimentStats
}

// Active reports whether the experiment applies at now.
func (e *ChaosExperiment) Active(now time.Time) bool {
	return e != nil && !e.EndTime.IsZero() && now.Before(e.EndTime)
}

// Remaining returns the time left before expiry, rounded down to whole seconds.
func (e *ChaosExperiment) Remaining(now time.Time) time.Duration {
	if !e.Active(now) {
		return 0
	}
	return e.EndTime.Sub(now).Truncate(time.Second)
}

// Duration returns the scheduled length of the experiment.
func (e *ChaosExperiment) Duration() time.Duration {
	return e.EndTime.Sub(e.StartTime)
}

// Counts returns the requests and failures observed during the experiment.
func (e *ChaosExperiment) Counts() (requests, failures int64) {
	if e == nil || e.stats == nil {
		return 0, 0
	}
	return e.stats.requests.Load(), e.stats.failures.Load()
}

func (e *ChaosExperiment) record(note string, end time.Time) *ChaosRecord {
	requests, failures := e.Counts()
	return &ChaosRecord{
		ID:             e.ID,
		Upstream:       e.Upstream,
		Type:           e.Type,
		Intensity:      e.Intensity,
		Duration:       e.Duration(),
		StartTime:      e.StartTime,
		EndTime:        end,
		TotalRequests:  requests,
		FailedRequests: failures,
		Note:           note,
	}
}

// ChaosEffect tells the pipeline what an experiment did to the current request.
type ChaosEffect struct {
	Experiment *ChaosExperiment
	Delay      time.Duration
	Corrupt    bool
}

// ChaosSettings bounds the delays an experiment may inject.
type ChaosSettings struct {
	MaxLatency    time.Duration
	TimeoutFactor int
	MaxTimeout    time.Duration
}

// ChaosStatus is an active experiment with its remaining time.
type ChaosStatus struct {
	Experiment *ChaosExperiment
	Remaining  time.Duration
}

// ChaosController holds at most one experiment per upstream and applies it to requests.
type ChaosController struct {
	settings  ChaosSettings
	upstreams map[string]struct{}
	src       faultinject.Source
	clock     Clock
	events    EventPublisher
	logger    *log.Helper

	mu          sync.RWMutex
	experiments map[string]*ChaosExperiment
}

// NewChaosController creates a ChaosController for the configured upstreams.
func NewChaosController(c *conf.Bootstrap, src faultinject.Source, clock Clock, bus *EventBus, logger log.Logger) *ChaosController {
	names := make([]string, 0, len(c.Upstreams))
	for name := range c.Upstreams {
		names = append(names, name)
	}
	settings := ChaosSettings{
		MaxLatency:    c.Chaos.MaxLatency,
		TimeoutFactor: c.Chaos.TimeoutFactor,
		MaxTimeout:    c.Chaos.MaxTimeout,
	}
	return NewChaosControllerWith(names, settings, src, clock, bus, logger)
}

// NewChaosControllerWith creates a ChaosController from explicit settings.
// A nil publisher disables chaos lifecycle events.
func NewChaosControllerWith(names []string, settings ChaosSettings, src faultinject.Source, clock Clock, events EventPublisher, logger log.Logger) *ChaosController {
	if settings.MaxLatency <= 0 || settings.MaxLatency > MaxChaosLatency {
		settings.MaxLatency = MaxChaosLatency
	}
	if settings.TimeoutFactor <= 0 || settings.TimeoutFactor > MaxChaosTimeoutFactor {
		settings.TimeoutFactor = MaxChaosTimeoutFactor
	}
	if settings.MaxTimeout <= 0 || settings.MaxTimeout > MaxChaosTimeout {
		settings.MaxTimeout = MaxChaosTimeout
	}
	if src == nil {
		src = faultinject.NewTimeSource()
	}
	if clock == nil {
		clock = SystemClock
	}

	upstreams := make(map[string]struct{}, len(names))
	for _, name := range names {
		upstreams[name] = struct{}{}
	}
	return &ChaosController{
		settings:    settings,
		upstreams:   upstreams,
		src:         src,
		clock:       clock,
		events:      events,
		logger:      log.NewHelper(logger),
		experiments: make(map[string]*ChaosExperiment),
	}
}

// Inject schedules an experiment, replacing any existing one for the upstream.
// Intensity is clamped to [0,10000] and duration to [1s,300s]. Type "none" clears the upstream.
func (c *ChaosController) Inject(upstream, chaosType string, intensity int, duration time.Duration) (*ChaosExperiment, error) {
	if _, ok := c.upstreams[upstream]; !ok {
		return nil, &ValidationError{Field: "service", Reason: fmt.Sprintf("unknown service %q", upstream)}
	}
	t, err := ParseChaosType(chaosType)
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	if t == ChaosNone {
		c.Stop(upstream)
		return &ChaosExperiment{Upstream: upstream, Type: ChaosNone, StartTime: now, EndTime: now}, nil
	}

	intensity = max(0, min(intensity, MaxChaosIntensity))
	duration = max(MinChaosDuration, min(duration, MaxChaosDuration))

	exp := &ChaosExperiment{
		ID:        fmt.Sprintf("%s-%d", upstream, now.UnixNano()),
		Upstream:  upstream,
		Type:      t,
		Intensity: intensity,
		StartTime: now,
		EndTime:   now.Add(duration),
		stats:     &experimentStats{},
	}

	c.mu.Lock()
	prev := c.experiments[upstream]
	c.experiments[upstream] = exp
	c.mu.Unlock()

	if prev != nil {
		c.publishEnded(prev, chaosNoteReplaced, now)
	}
	c.publish(Event{Type: EventChaosStarted, At: now, Chaos: exp.record("", time.Time{})})

	c.logger.Infow("msg", "chaos experiment injected",
		"service", upstream,
		"type", t,
		"intensity", intensity,
		"duration", duration.String())
	return exp, nil
}

// Stop clears the experiment of one upstream, or of every upstream for "all" or "".
// It returns the upstreams whose experiment was cleared.
func (c *ChaosController) Stop(target string) []string {
	now := c.clock.Now()

	c.mu.Lock()
	var stopped []*ChaosExperiment
	if target == "" || target == StopAllExperiments {
		for name, exp := range c.experiments {
			stopped = append(stopped, exp)
			delete(c.experiments, name)
		}
	} else if exp, ok := c.experiments[target]; ok {
		stopped = append(stopped, exp)
		delete(c.experiments, target)
	}
	c.mu.Unlock()

	names := make([]string, 0, len(stopped))
	for _, exp := range stopped {
		note := chaosNoteStopped
		if !exp.Active(now) {
			note = chaosNoteExpired
		}
		c.publishEnded(exp, note, now)
		names = append(names, exp.Upstream)
	}
	sort.Strings(names)

	if len(names) > 0 {
		c.logger.Infow("msg", "chaos experiments stopped", "target", target, "services", names)
	}
	return names
}

// IsKnown reports whether upstream can carry experiments.
func (c *ChaosController) IsKnown(upstream string) bool {
	_, ok := c.upstreams[upstream]
	return ok
}

// Active returns the active experiment of an upstream, clearing it first if expired.
func (c *ChaosController) Active(upstream string) *ChaosExperiment {
	return c.observe(upstream, c.clock.Now())
}

// observe implements lazy expiry: an expired experiment is removed on first sight.
func (c *ChaosController) observe(upstream string, now time.Time) *ChaosExperiment {
	c.mu.RLock()
	exp := c.experiments[upstream]
	c.mu.RUnlock()

	if exp == nil {
		return nil
	}
	if exp.Active(now) {
		return exp
	}
	c.expire(upstream, exp)
	return nil
}

// expire removes exp if it is still the experiment of upstream.
// A concurrent Inject may have replaced it, in which case nothing happens.
func (c *ChaosController) expire(upstream string, exp *ChaosExperiment) bool {
	c.mu.Lock()
	removed := c.experiments[upstream] == exp
	if removed {
		delete(c.experiments, upstream)
	}
	c.mu.Unlock()

	if removed {
		c.publishEnded(exp, chaosNoteExpired, exp.EndTime)
		c.logger.Infow("msg", "chaos experiment expired", "service", upstream, "type", exp.Type)
	}
	return removed
}

// Apply evaluates the active experiment for one request. It may sleep, fail with
// a *ChaosError, or flag the response for corruption. Sleeps honour ctx.
func (c *ChaosController) Apply(ctx context.Context, upstream string) (ChaosEffect, error) {
	exp := c.observe(upstream, c.clock.Now())
	if exp == nil {
		return ChaosEffect{}, nil
	}

	exp.stats.requests.Add(1)
	effect := ChaosEffect{Experiment: exp}
	chaosErr := &ChaosError{Upstream: upstream, Type: exp.Type, Intensity: exp.Intensity}

	switch exp.Type {
	case ChaosLatency:
		effect.Delay = min(time.Duration(exp.Intensity)*time.Millisecond, c.settings.MaxLatency)
		if err := c.clock.Sleep(ctx, effect.Delay); err != nil {
			return effect, err
		}
	case ChaosFailure, ChaosIntermittent:
		if c.src.Float64()*100 < float64(exp.Intensity) {
			return effect, chaosErr
		}
	case ChaosTimeout:
		effect.Delay = min(time.Duration(exp.Intensity*c.settings.TimeoutFactor)*time.Millisecond, c.settings.MaxTimeout)
		if err := c.clock.Sleep(ctx, effect.Delay); err != nil {
			return effect, err
		}
		return effect, chaosErr
	case ChaosUnavailable:
		return effect, chaosErr
	case ChaosCorruption:
		effect.Corrupt = true
	}
	return effect, nil
}

// ObserveOutcome attributes a request failure to the experiment that was active for it.
func (c *ChaosController) ObserveOutcome(effect ChaosEffect, success bool) {
	if effect.Experiment == nil || success {
		return
	}
	effect.Experiment.stats.failures.Add(1)
}

// Status lists active experiments sorted by upstream. Expired ones are cleared.
func (c *ChaosController) Status() []ChaosStatus {
	now := c.clock.Now()

	c.mu.RLock()
	names := make([]string, 0, len(c.experiments))
	for name := range c.experiments {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)

	out := make([]ChaosStatus, 0, len(names))
	for _, name := range names {
		if exp := c.observe(name, now); exp != nil {
			out = append(out, ChaosStatus{Experiment: exp, Remaining: exp.Remaining(now)})
		}
	}
	return out
}

// SweepExpired clears every expired experiment and returns how many were removed.
func (c *ChaosController) SweepExpired() int {
	now := c.clock.Now()

	c.mu.RLock()
	expired := make(map[string]*ChaosExperiment)
	for name, exp := range c.experiments {
		if !exp.Active(now) {
			expired[name] = exp
		}
	}
	c.mu.RUnlock()

	removed := 0
	for name, exp := range expired {
		if c.expire(name, exp) {
			removed++
		}
	}
	return removed
}

func (c *ChaosController) publishEnded(exp *ChaosExperiment, note string, end time.Time) {
	c.publish(Event{Type: EventChaosEnded, At: end, Chaos: exp.record(note, end)})
}

func (c *ChaosController) publish(e Event) {
	if c.events != nil {
		c.events.Publish(e)
	}
}
