package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Error kinds for the pipeline. Callers branch on kind with errors.Is /
// errors.As rather than matching broad error classes.
var (
	// ErrUnsupportedAsset means an adapter does not cover the requested
	// asset. Never retried.
	ErrUnsupportedAsset = errors.New("unsupported asset")

	// ErrCacheUnavailable marks cache backend failures. It never escapes the
	// cache boundary as a failure; callers see a miss instead.
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// TransientError wraps a network or upstream failure that is worth retrying:
// timeouts, connection failures, and responses with status 429/500/502/503/504.
// RetryAfter, when positive, carries the upstream Retry-After hint and
// overrides the computed backoff for the next attempt only.
type TransientError struct {
	Service    string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transient upstream error (status %d): %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transient upstream error: %v", e.Service, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// MalformedResponseError marks a provider response that does not match the
// expected schema. Not retried; the excerpt is kept for diagnosis.
type MalformedResponseError struct {
	Service string
	Excerpt string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v (payload: %s)", e.Service, e.Err, e.Excerpt)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// PersistenceError marks an asset store write failure. The orchestrator
// retries it once with backoff before surfacing it as a partial failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// RetryableStatus reports whether an HTTP status code should trigger a retry.
func RetryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// IsRetryable reports whether err should be retried by the rate limiter's
// backoff loop: transient upstream errors, request timeouts, and network
// failures. Caller cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrUnsupportedAsset) {
		return false
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// RetryAfterHint extracts an upstream Retry-After hint from err, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var transient *TransientError
	if errors.As(err, &transient) && transient.RetryAfter > 0 {
		return transient.RetryAfter, true
	}
	return 0, false
}
