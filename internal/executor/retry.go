package executor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FailureKind drives the retry decision for a failed invocation attempt.
type FailureKind int

const (
	// FailureTransient covers network errors, 5xx responses, and
	// per-attempt timeouts. Retried within the step's budget.
	FailureTransient FailureKind = iota
	// FailurePermanent covers malformed responses, 4xx rejections, and
	// tool-reported errors. Never retried.
	FailurePermanent
	// FailureUnavailable means the endpoint does not exist. Never retried;
	// surfaces as an unavailable outcome and triggers feedback.
	FailureUnavailable
)

// classifiedError carries the failure kind alongside the cause.
type classifiedError struct {
	kind FailureKind
	err  error
}

func (e *classifiedError) Error() string { return e.err.Error() }
func (e *classifiedError) Unwrap() error { return e.err }

func transientErr(format string, args ...interface{}) error {
	return &classifiedError{kind: FailureTransient, err: fmt.Errorf(format, args...)}
}

func permanentErr(format string, args ...interface{}) error {
	return &classifiedError{kind: FailurePermanent, err: fmt.Errorf(format, args...)}
}

func unavailableErr(format string, args ...interface{}) error {
	return &classifiedError{kind: FailureUnavailable, err: fmt.Errorf(format, args...)}
}

func classify(err error) FailureKind {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.kind
	}
	return FailureTransient
}

// withRetries runs fn up to 1+maxRetries times, backing off linearly
// between attempts. Only transient failures are retried; the attempt count
// actually used is always returned.
func withRetries(ctx context.Context, maxRetries int, backoff time.Duration,
	fn func(ctx context.Context) (map[string]interface{}, error)) (map[string]interface{}, int, error) {

	attempts := 0
	var lastErr error
	for attempts <= maxRetries {
		attempts++
		out, err := fn(ctx)
		if err == nil {
			return out, attempts, nil
		}
		lastErr = err
		if classify(err) != FailureTransient {
			return nil, attempts, err
		}
		if ctx.Err() != nil {
			return nil, attempts, lastErr
		}
		if attempts <= maxRetries {
			select {
			case <-time.After(backoff * time.Duration(attempts)):
			case <-ctx.Done():
				return nil, attempts, lastErr
			}
		}
	}
	return nil, attempts, lastErr
}
