package tools

import (
	"fmt"
	"strings"
	"time"
)

// EnvironmentError means the program could not be started at all
// (missing binary, bad working directory). Not retried.
type EnvironmentError struct {
	Tool string
	Err  error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("cannot start %s: %v", e.Tool, e.Err)
}

func (e *EnvironmentError) Unwrap() error { return e.Err }

// TimeoutError means the program ran longer than its allowed wall time and was killed.
type TimeoutError struct {
	Tool    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Tool, e.Timeout)
}

// ExecutionError means the program ran and reported failure.
type ExecutionError struct {
	Tool     string
	ExitCode int
	Stderr   string
	// Reason is set when the failure was detected after a clean exit,
	// e.g. a missing output file.
	Reason string
}

func (e *ExecutionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s failed: %s", e.Tool, e.Reason)
	}
	msg := fmt.Sprintf("%s failed with exit code %d", e.Tool, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}
