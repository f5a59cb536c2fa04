package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrNotFound signals a distinguishable "not found" from the remote side.
// On update it is not a failure: push-sync treats it as "never existed
// remotely" and falls back to create.
var ErrNotFound = errors.New("not found on remote")

// StatusError is returned for non-2xx responses that are not ErrNotFound.
// Classification happens here, at the client boundary: transport-level
// failures and 5xx are retryable, the remaining 4xx are terminal rejections.
type StatusError struct {
	Op         string
	Collection string
	Status     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Op, e.Collection, e.Status)
}

// Retryable reports whether the failure is worth replaying.
func (e *StatusError) Retryable() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// IsRetryable reports whether err is a transient failure: a network or
// timeout error, or a retryable HTTP status. Timeouts are never treated as
// success. Anything else non-nil is a permanent rejection and must not be
// replayed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	if errors.Is(err, ErrNotFound) {
		return false
	}

	// Callers can mark their own errors as permanent.
	var tm interface{ Terminal() bool }
	if errors.As(err, &tm) {
		return !tm.Terminal()
	}

	// Context deadlines and net errors are transport failures.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}

	// url.Error and lower-level dial failures wrap net errors; treat any
	// remaining non-HTTP failure as transport-level.
	var wrapped *StatusError
	return !errors.As(err, &wrapped)
}

// IsTerminal reports whether err is a permanent rejection that retrying
// cannot fix.
func IsTerminal(err error) bool {
	return err != nil && !errors.Is(err, ErrNotFound) && !IsRetryable(err)
}
