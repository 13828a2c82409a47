package service

import (
	"errors"
	"fmt"
	"math"

	"AIResilience/internal/biz"

	kerrors "github.com/go-kratos/kratos/v2/errors"
)

// Error reasons returned to clients.
const (
	ReasonValidationFailed = "VALIDATION_FAILED"
	ReasonChaosInjected    = "CHAOS_INJECTED"
	ReasonCircuitOpen      = "CIRCUIT_OPEN"
	ReasonUpstreamFailed   = "UPSTREAM_FAILED"
	ReasonInternal         = "INTERNAL"
)

// toKratosError converts a biz error into a Kratos error carrying the HTTP status,
// the reason and the error kind. Kratos errors pass through unchanged.
func toKratosError(err error) error {
	if err == nil {
		return nil
	}
	var ke *kerrors.Error
	if errors.As(err, &ke) {
		return ke
	}

	kind := biz.KindOf(err)
	md := map[string]string{"kind": string(kind)}

	var pe *biz.PipelineError
	if errors.As(err, &pe) && pe.Upstream != "" {
		md["service"] = pe.Upstream
	}

	var e *kerrors.Error
	switch kind {
	case biz.KindValidation:
		e = kerrors.New(400, ReasonValidationFailed, err.Error())
	case biz.KindChaos:
		e = kerrors.New(503, ReasonChaosInjected, err.Error())
	case biz.KindCircuitOpen:
		e = kerrors.New(503, ReasonCircuitOpen, err.Error())
		var coe *biz.CircuitOpenError
		if errors.As(err, &coe) {
			md["service"] = coe.Upstream
			md["retry_after"] = fmt.Sprintf("%d", int64(math.Ceil(coe.RetryAfter.Seconds())))
		}
	case biz.KindUpstream:
		e = kerrors.New(502, ReasonUpstreamFailed, err.Error())
	default:
		md["kind"] = string(biz.KindInternal)
		e = kerrors.New(500, ReasonInternal, err.Error())
	}
	return e.WithCause(err).WithMetadata(md)
}
