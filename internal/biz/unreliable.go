package biz

import (
	"context"
	"fmt"
	"time"

	"AIResilience/internal/conf"
	"AIResilience/pkg/faultinject"
	"AIResilience/pkg/upstream"

	"github.com/go-kratos/kratos/v2/log"
)

// NewFaultInjector creates the injector of the unreliable mode from configuration.
// Rates can be changed at runtime through SetConfig.
func NewFaultInjector(c *conf.Bootstrap, src faultinject.Source) *faultinject.Injector {
	s := c.Synthetic
	return faultinject.New(faultinject.Config{
		FailRate:            s.FailRate,
		DelayRate:           s.DelayRate,
		MinDelay:            s.MinDelay,
		MaxDelay:            s.MaxDelay,
		CorruptRate:         s.CorruptRate,
		NetworkErrorRate:    s.NetworkErrorRate,
		AuthErrorRate:       s.AuthErrorRate,
		RateLimitErrorRate:  s.RateLimitErrorRate,
		PartialResponseRate: s.PartialResponseRate,
		SlowResponseRate:    s.SlowResponseRate,
	}, src)
}

// NewUpstreamCaller returns the caller used by the pipeline. Real calls go through
// the fault injector, whose rates default to zero. In synthetic mode no upstream is contacted.
func NewUpstreamCaller(c *conf.Bootstrap, inj *faultinject.Injector, client *upstream.Client, clock Clock, logger log.Logger) UpstreamCaller {
	if (c.Synthetic != nil && c.Synthetic.Enabled) || client == nil {
		log.NewHelper(logger).Warnw("msg", "synthetic mode enabled, upstream APIs will not be called")
		return NewUnreliableCaller(inj, nil, clock, logger)
	}
	return NewUnreliableCaller(inj, client, clock, logger)
}

// UnreliableCaller wraps an UpstreamCaller with probabilistic faults.
// Without a wrapped caller it echoes the prompt.
type UnreliableCaller struct {
	inj    *faultinject.Injector
	next   UpstreamCaller
	clock  Clock
	logger *log.Helper
}

// NewUnreliableCaller creates an UnreliableCaller. next may be nil.
func NewUnreliableCaller(inj *faultinject.Injector, next UpstreamCaller, clock Clock, logger log.Logger) *UnreliableCaller {
	if clock == nil {
		clock = SystemClock
	}
	return &UnreliableCaller{
		inj:    inj,
		next:   next,
		clock:  clock,
		logger: log.NewHelper(logger),
	}
}

// Injector exposes the fault injector for runtime reconfiguration.
func (u *UnreliableCaller) Injector() *faultinject.Injector {
	return u.inj
}

// Invoke applies the configured faults in order: outright failure, network,
// auth and rate-limit errors, slow response, delay. The reply is then subject
// to partial truncation and field corruption; a reply without text is an error.
func (u *UnreliableCaller) Invoke(ctx context.Context, name, prompt string) (string, error) {
	cfg := u.inj.Config()

	if u.inj.ShouldInject(cfg.FailRate) {
		return "", u.fault(name, &faultinject.FaultError{Kind: faultinject.KindFailure, Status: 500, Message: "Injected failure"})
	}
	for _, inject := range []func() error{u.inj.NetworkError, u.inj.AuthError, u.inj.RateLimitError} {
		if err := inject(); err != nil {
			return "", u.fault(name, err)
		}
	}
	if u.inj.ShouldInject(cfg.SlowResponseRate) {
		if err := u.sleep(ctx, faultinject.DefaultSlowMin, faultinject.DefaultSlowMax); err != nil {
			return "", err
		}
	}
	if u.inj.ShouldInject(cfg.DelayRate) {
		if err := u.sleep(ctx, cfg.MinDelay, cfg.MaxDelay); err != nil {
			return "", err
		}
	}

	text, err := u.call(ctx, name, prompt)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"service": name,
		"text":    text,
		"length":  len(text),
	}
	payload, partial := u.inj.PartialResponse(payload)
	payload, corrupted := u.inj.CorruptData(payload, cfg.CorruptRate)
	if partial || corrupted {
		u.logger.Debugw("msg", "injected malformed response",
			"service", name, "partial", partial, "corrupted", corrupted)
	}

	out, ok := payload["text"].(string)
	if !ok {
		return "", u.fault(name, &faultinject.FaultError{Kind: faultinject.KindFailure, Status: 502, Message: "Malformed response: missing text"})
	}
	return out, nil
}

func (u *UnreliableCaller) call(ctx context.Context, name, prompt string) (string, error) {
	if u.next == nil {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return fmt.Sprintf("Echo from %s: %s", name, prompt), nil
	}
	return u.next.Invoke(ctx, name, prompt)
}

func (u *UnreliableCaller) sleep(ctx context.Context, lo, hi time.Duration) error {
	return u.clock.Sleep(ctx, u.inj.Between(lo, hi))
}

func (u *UnreliableCaller) fault(name string, err error) error {
	u.logger.Debugw("msg", "injected upstream fault", "service", name, "error", err)
	return err
}
