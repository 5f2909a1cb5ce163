package connector

import (
	"context"
	"errors"
	"fmt"
)

// ResolutionError means a target exposes no communication method the
// registry can serve. It fails that branch immediately without touching
// its siblings.
type ResolutionError struct {
	Target   string
	Protocol string
}

func (e *ResolutionError) Error() string {
	if e.Protocol != "" {
		return fmt.Sprintf("no connector for target %s: protocol %q is not supported", e.Target, e.Protocol)
	}
	return fmt.Sprintf("no usable communication method for target %s", e.Target)
}

// ConnectionError is a failure to reach or authenticate against a target.
// Network failures are transient and retried per policy; authentication
// failures are not.
type ConnectionError struct {
	Protocol string
	Addr     string
	Auth     bool // authentication/authorization failure, never retried
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s connection to %s failed: %v", e.Protocol, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError means an action exceeded its deadline. The connector is
// asked to abandon the session; the action is recorded as failed.
type TimeoutError struct {
	Protocol string
	Action   string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s action %q exceeded its deadline", e.Protocol, e.Action)
}

// Transient reports whether an error is worth retrying with backoff.
// Only non-auth connection failures qualify; an action that ran and failed
// is recorded as-is.
func Transient(err error) bool {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return !connErr.Auth
	}
	return false
}

// IsTimeout reports whether err is an action deadline failure, either the
// connector's own TimeoutError or a raw context deadline.
func IsTimeout(err error) bool {
	var t *TimeoutError
	return errors.As(err, &t) || errors.Is(err, context.DeadlineExceeded)
}
