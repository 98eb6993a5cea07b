package cli

import (
	"errors"
	"fmt"
)

// Exit codes returned by commands.
const (
	// ExitFailed means the session completed with at least one failed step.
	ExitFailed = 2

	// ExitIncomplete means the session was finished before every step had
	// a result.
	ExitIncomplete = 3
)

// ExitError represents a command execution failure with a specific exit code.
//
// Commands return it instead of calling os.Exit so that tests can assert on
// the code. [RunWithConfig] extracts it with [IsExitError] and [Execute]
// exits with it.
type ExitError struct {
	// Code is the exit code to return to the shell.
	Code int
}

// Error returns "exit status N", matching os/exec.
func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// NewExitError creates an [ExitError] with the given exit code.
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

// IsExitError checks if an error is an [ExitError] and extracts its exit code.
//
// Returns (code, true) if err wraps an *ExitError. Returns (0, false) for nil
// or other errors.
func IsExitError(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
