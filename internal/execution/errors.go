package execution

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrNoThreads = errors.New("workload has no threads")
)

// ExecutionError wraps errors with execution phase context.
type ExecutionError struct {
	Phase string // "config", "init", "spawn", "persist"
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err was caused by an unusable scheduler
// configuration rather than by running the workload.
func IsConfigError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee) && ee.Phase == "config"
}
