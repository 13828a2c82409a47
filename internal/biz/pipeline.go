package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"AIResilience/internal/conf"
	pkgerrors "AIResilience/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	// MaxUpstreamTimeout bounds every real upstream call.
	MaxUpstreamTimeout = 10 * time.Second

	// DefaultService is used when a request names no upstream.
	DefaultService = "gemini"

	counterTimeout = 500 * time.Millisecond
)

// Request is one caller request for an upstream.
type Request struct {
	Prompt string
}

// Outcome is a served request. IsRealAPI is false when the fallback simulator answered.
type Outcome struct {
	Upstream  string
	Content   string
	IsRealAPI bool
	Corrupted bool
	Latency   time.Duration
	Timestamp time.Time
}

// Pipeline composes chaos, circuit breaker, upstream call and fallback around one request,
// and records the outcome.
type Pipeline struct {
	metrics  *MetricsAggregator
	breakers *BreakerRegistry
	chaos    *ChaosController
	caller   UpstreamCaller
	fallback *FallbackSimulator
	counter  CounterStore
	events   EventPublisher
	clock    Clock
	timeouts map[string]time.Duration
	logger   *log.Helper
}

// NewPipeline creates a Pipeline. counter and events may be nil.
func NewPipeline(
	c *conf.Bootstrap,
	metrics *MetricsAggregator,
	breakers *BreakerRegistry,
	chaos *ChaosController,
	caller UpstreamCaller,
	fallback *FallbackSimulator,
	counter CounterStore,
	events EventPublisher,
	clock Clock,
	logger log.Logger,
) *Pipeline {
	if clock == nil {
		clock = SystemClock
	}
	timeouts := make(map[string]time.Duration, len(c.Upstreams))
	for name, u := range c.Upstreams {
		d := u.Timeout
		if d <= 0 || d > MaxUpstreamTimeout {
			d = MaxUpstreamTimeout
		}
		timeouts[name] = d
	}
	return &Pipeline{
		metrics:  metrics,
		breakers: breakers,
		chaos:    chaos,
		caller:   caller,
		fallback: fallback,
		counter:  counter,
		events:   events,
		clock:    clock,
		timeouts: timeouts,
		logger:   log.NewHelper(logger),
	}
}

// Handle runs one request through the pipeline.
//
// The attempt is counted first and rolled back if the request is invalid. Chaos is
// applied before the breaker; a chaos error reaches the breaker as the call's result
// and never triggers the fallback. Inside the breaker, a failed real call is replaced
// by the fallback simulator, so only a failed fallback counts as a breaker failure.
// A call cut short by the caller's own context skips the fallback and leaves the
// breaker untouched; it is still recorded as one failed request.
// Every error returned is a *PipelineError.
func (p *Pipeline) Handle(ctx context.Context, upstream string, req Request) (*Outcome, error) {
	p.metrics.BeginAttempt(upstream)
	if err := p.validate(upstream, req); err != nil {
		p.metrics.RollbackAttempt(upstream)
		return nil, &PipelineError{Upstream: upstream, Kind: KindValidation, Cause: err}
	}
	defer p.metrics.EndAttempt(upstream)
	p.countDurable(ctx)

	start := p.clock.Now()

	cb, ok := p.breakers.Get(upstream)
	if !ok {
		return nil, p.fail(upstream, req, start, ChaosEffect{}, StateClosed,
			&InternalError{Message: fmt.Sprintf("no circuit breaker registered for %q", upstream)})
	}

	effect, chaosErr := p.chaos.Apply(ctx, upstream)
	var injected *ChaosError
	if chaosErr != nil && !errors.As(chaosErr, &injected) {
		// The caller went away during an injected delay.
		p.chaos.ObserveOutcome(effect, false)
		return nil, p.fail(upstream, req, start, effect, cb.State(), &UpstreamError{Upstream: upstream, Err: chaosErr})
	}

	var (
		content  string
		realCall bool
	)
	transitions, err := cb.Call(func() error {
		if chaosErr != nil {
			return chaosErr
		}
		text, callErr := p.invoke(ctx, upstream, req.Prompt)
		if callErr == nil {
			content, realCall = text, true
			return nil
		}
		// 调用方取消不计入熔断器；上游自身超时 (callCtx) 仍算失败
		if ctx.Err() != nil {
			return &abandonedCall{err: callErr}
		}
		text, fbErr := p.fallback.Respond(ctx, upstream, req.Prompt, callErr)
		if fbErr != nil {
			if ctx.Err() != nil {
				return &abandonedCall{err: fbErr}
			}
			return fbErr
		}
		content = text
		return nil
	})
	p.ObserveTransitions(transitions)
	p.chaos.ObserveOutcome(effect, err == nil)

	if err != nil {
		return nil, p.fail(upstream, req, start, effect, cb.State(), err)
	}

	corrupted := false
	if effect.Corrupt && realCall {
		content = fmt.Sprintf("[CORRUPTED DATA - original length: %d]", len(content))
		corrupted = true
	}

	now := p.clock.Now()
	latency := now.Sub(start)
	p.metrics.RecordSuccess(upstream, latency, realCall)
	p.publishRequest(&RequestRecord{
		Upstream:     upstream,
		Prompt:       req.Prompt,
		Success:      true,
		UsedRealCall: realCall,
		Latency:      latency,
		ResponseSize: len(content),
		BreakerState: cb.State(),
		ChaosActive:  effect.Experiment != nil,
	}, now)

	return &Outcome{
		Upstream:  upstream,
		Content:   content,
		IsRealAPI: realCall,
		Corrupted: corrupted,
		Latency:   latency,
		Timestamp: now,
	}, nil
}

// ObserveTransitions feeds breaker transitions to the metrics status and the event bus.
func (p *Pipeline) ObserveTransitions(transitions []Transition) {
	for _, t := range transitions {
		p.metrics.ObserveTransition(t)
		p.logger.Infow("msg", "circuit breaker transition",
			"service", t.Upstream, "from", t.From.String(), "to", t.To.String(), "reason", t.Reason)
	}
	if p.events != nil {
		PublishTransitions(p.events, transitions)
	}
}

func (p *Pipeline) validate(upstream string, req Request) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return &ValidationError{Field: "prompt", Reason: "is required"}
	}
	if !p.metrics.Has(upstream) || !p.chaos.IsKnown(upstream) {
		return &ValidationError{Field: "service", Reason: fmt.Sprintf("unknown service %q", upstream)}
	}
	return nil
}

func (p *Pipeline) invoke(ctx context.Context, upstream, prompt string) (string, error) {
	timeout, ok := p.timeouts[upstream]
	if !ok {
		timeout = MaxUpstreamTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := p.caller.Invoke(callCtx, upstream, prompt)
	if err != nil {
		p.logger.Warnw("msg", "upstream call failed", "service", upstream, "error", err)
		return "", &UpstreamError{Upstream: upstream, Err: err}
	}
	return text, nil
}

// countDurable mirrors the attempt into the durable counter store. It outlives a
// cancelled caller; store errors only degrade the mirrored total.
func (p *Pipeline) countDurable(ctx context.Context) {
	if p.counter == nil {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), counterTimeout)
	defer cancel()
	if _, err := p.counter.Increment(cctx, TotalRequestsKey, 1); err != nil && !pkgerrors.IsUnavailable(err) {
		p.logger.Warnw("msg", "durable counter unavailable", "key", TotalRequestsKey, "error", err)
	}
}

func (p *Pipeline) fail(upstream string, req Request, start time.Time, effect ChaosEffect, state State, err error) error {
	now := p.clock.Now()
	kind := KindOf(err)
	p.metrics.RecordFailure(upstream)
	p.publishRequest(&RequestRecord{
		Upstream:     upstream,
		Prompt:       req.Prompt,
		Latency:      now.Sub(start),
		ErrorKind:    kind,
		ErrorMessage: err.Error(),
		BreakerState: state,
		ChaosActive:  effect.Experiment != nil,
	}, now)
	return &PipelineError{Upstream: upstream, Kind: kind, Cause: err}
}

func (p *Pipeline) publishRequest(rec *RequestRecord, at time.Time) {
	if p.events != nil {
		p.events.Publish(Event{Type: EventRequest, At: at, Request: rec})
	}
}
