package biz

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies every error leaving the request pipeline.
type ErrorKind string

const (
	KindNone        ErrorKind = ""
	KindValidation  ErrorKind = "ValidationError"
	KindChaos       ErrorKind = "ChaosError"
	KindCircuitOpen ErrorKind = "CircuitOpenError"
	KindUpstream    ErrorKind = "UpstreamError"
	KindInternal    ErrorKind = "InternalError"
)

// ValidationError reports missing or invalid request input.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// ChaosError is raised by an active chaos experiment.
// It counts as a breaker failure and never triggers the fallback simulator.
type ChaosError struct {
	Upstream  string
	Type      ChaosType
	Intensity int
}

// Error implements the error interface.
func (e *ChaosError) Error() string {
	return fmt.Sprintf("chaos %s injected for %s (intensity=%d)", e.Type, e.Upstream, e.Intensity)
}

// CircuitOpenError is returned when a breaker rejects a call without invoking it.
type CircuitOpenError struct {
	Upstream   string
	State      State
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker for %s is %s, retry after %s", e.Upstream, e.State, e.RetryAfter)
}

// UpstreamError wraps a failure of the real upstream call, or of the fallback that replaced it.
type UpstreamError struct {
	Upstream string
	Fallback bool
	Err      error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Fallback {
		return fmt.Sprintf("upstream %s failed and fallback failed: %v", e.Upstream, e.Err)
	}
	return fmt.Sprintf("upstream %s failed: %v", e.Upstream, e.Err)
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// abandonedCall wraps the result of a call whose caller went away before it finished.
// The breaker frees the admission without counting a success or a failure.
type abandonedCall struct {
	err error
}

func (e *abandonedCall) Error() string {
	return "call abandoned by caller: " + e.err.Error()
}

func (e *abandonedCall) Unwrap() error {
	return e.err
}

// InternalError reports an unexpected defect, such as an upstream without a registered breaker.
type InternalError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *InternalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("internal error: %s: %v", e.Message, e.Err)
	}
	return "internal error: " + e.Message
}

// Unwrap returns the underlying error.
func (e *InternalError) Unwrap() error {
	return e.Err
}

// PipelineError is the structured failure returned by Pipeline.Handle.
type PipelineError struct {
	Upstream string
	Kind     ErrorKind
	Cause    error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s request failed (%s): %v", e.Upstream, e.Kind, e.Cause)
}

// Unwrap returns the cause, so errors.As reaches the typed error beneath.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// KindOf returns the kind of err. Unknown non-nil errors are InternalError.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var (
		validationErr *ValidationError
		chaosErr      *ChaosError
		openErr       *CircuitOpenError
		upstreamErr   *UpstreamError
	)
	switch {
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &chaosErr):
		return KindChaos
	case errors.As(err, &openErr):
		return KindCircuitOpen
	case errors.As(err, &upstreamErr):
		return KindUpstream
	default:
		return KindInternal
	}
}
