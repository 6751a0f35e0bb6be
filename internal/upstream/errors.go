package upstream

import (
	"errors"
	"fmt"
	"time"
)

// ErrCircuitOpen matches any *CircuitOpenError via errors.Is.
var ErrCircuitOpen = errors.New("circuit open")

// TransientUpstreamError is returned after retries are exhausted for 429, 5xx,
// timeout or network failures.
type TransientUpstreamError struct {
	Endpoint   Endpoint
	StatusCode int // 0 for network errors
	Attempts   int
	Err        error
}

func (e *TransientUpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s: status %d after %d attempts", e.Endpoint, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("upstream %s: %v after %d attempts", e.Endpoint, e.Err, e.Attempts)
}

func (e *TransientUpstreamError) Unwrap() error { return e.Err }

// TerminalClientError is a 4xx response other than 429. Call returns the
// parsed body alongside it when the body was valid JSON.
type TerminalClientError struct {
	Endpoint   Endpoint
	StatusCode int
	Body       Payload
}

func (e *TerminalClientError) Error() string {
	return fmt.Sprintf("upstream %s: client error status %d", e.Endpoint, e.StatusCode)
}

// CircuitOpenError is returned without any network call while a dependency's
// breaker is open or its single half-open trial is already in flight.
type CircuitOpenError struct {
	Dependency string
	ReopenAt   time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %s until %s", e.Dependency, e.ReopenAt.Format(time.RFC3339))
}

func (e *CircuitOpenError) Is(target error) bool { return target == ErrCircuitOpen }

// IsTransient reports whether err is a retryable upstream failure that
// outlived its retries.
func IsTransient(err error) bool {
	var t *TransientUpstreamError
	return errors.As(err, &t)
}

// ClientErrorPayload returns the body carried by a TerminalClientError, if any.
func ClientErrorPayload(err error) (Payload, bool) {
	var c *TerminalClientError
	if errors.As(err, &c) && len(c.Body) > 0 {
		return c.Body, true
	}
	return nil, false
}
