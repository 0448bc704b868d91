package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Typed failures raised at the inference boundary.
var (
	// ErrTimeout indicates the call exceeded the per-call deadline.
	ErrTimeout = errors.New("inference: request timed out")

	// ErrRateLimited indicates the provider returned 429.
	ErrRateLimited = errors.New("inference: rate limited")
)

// MalformedOutputError indicates the model returned output that failed schema
// validation. Retried like a transient failure, since a fresh sample often
// parses.
type MalformedOutputError struct {
	Raw string
	Err error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("inference: malformed output: %v", e.Err)
}

func (e *MalformedOutputError) Unwrap() error {
	return e.Err
}

// ConfigError indicates an unknown provider name, a deployment defect.
type ConfigError struct {
	Provider string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("inference: unknown provider %q", e.Provider)
}

// retryableError wraps a transport-level failure that is safe to retry.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable reports whether err may succeed on a further attempt.
// Context cancellation is never retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited) {
		return true
	}
	var malformed *MalformedOutputError
	if errors.As(err, &malformed) {
		return true
	}
	var retryable *retryableError
	if errors.As(err, &retryable) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
