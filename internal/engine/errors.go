package engine

import (
	"errors"
	"fmt"

	"opsbridge/console/internal/connector"
)

// ValidationError rejects a malformed job before anything is created.
// It is the only error fatal to a whole execution attempt.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid job: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ErrExecutionNotRunning is returned by Cancel when no live execution
// matches the identifier.
var ErrExecutionNotRunning = errors.New("execution is not running")

// errorKind labels an error for the recorded action result, following the
// engine's error taxonomy.
func errorKind(err error) string {
	var resErr *connector.ResolutionError
	var connErr *connector.ConnectionError
	switch {
	case errors.As(err, &resErr):
		return "ConnectorResolutionError"
	case connector.IsTimeout(err):
		return "TimeoutError"
	case errors.As(err, &connErr):
		return "ConnectionError"
	}
	return "ExecutionError"
}
