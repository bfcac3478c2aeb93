// Package apperr holds the error kinds surfaced by the lesson core and the
// broadcast queue. Callers match them with errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound means referenced content, topic or plan does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientContent means the catalog cannot satisfy a plan at the level.
	ErrInsufficientContent = errors.New("insufficient content")
	// ErrStaleInput marks a replayed or out-of-date user event.
	ErrStaleInput = errors.New("stale input")
	// ErrTransientTransport is a retryable outbound send failure.
	ErrTransientTransport = errors.New("transient transport failure")
	// ErrPermanentTransport is a non-retryable outbound send failure (e.g. bot blocked).
	ErrPermanentTransport = errors.New("permanent transport failure")
	// ErrStoreUnavailable means the persistent store could not be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// RetryAfterError is a failure whose remote side asked to wait before the
// next attempt. It unwraps to the underlying error kind.
type RetryAfterError struct {
	Wait time.Duration
	Err  error
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("%v (retry after %s)", e.Err, e.Wait)
}

func (e *RetryAfterError) Unwrap() error {
	return e.Err
}

// RetryAfter returns the wait requested anywhere in err's chain, or zero
func RetryAfter(err error) time.Duration {
	var ra *RetryAfterError
	if errors.As(err, &ra) {
		return ra.Wait
	}
	return 0
}
