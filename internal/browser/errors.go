// internal/browser/errors.go
package browser

import (
	"errors"
	"fmt"
)

// ErrorCode is a string type used for structured error reporting from the
// executor. Using a custom type ensures that only predefined constants can be
// used where an ErrorCode is expected.
type ErrorCode string

const (
	// ErrCodeElementNotFound indicates the selector matched nothing on the
	// current page. The decision layer may try a different selector.
	ErrCodeElementNotFound ErrorCode = "ELEMENT_NOT_FOUND"
	// ErrCodeNavigationTimeout indicates the target page did not load within
	// the configured navigation timeout.
	ErrCodeNavigationTimeout ErrorCode = "NAVIGATION_TIMEOUT"
	// ErrCodeSessionClosed indicates the executor was closed; no further
	// actions can run on it.
	ErrCodeSessionClosed ErrorCode = "SESSION_CLOSED"
	// ErrCodeExecutionFailure is the generic failure for anything else.
	ErrCodeExecutionFailure ErrorCode = "EXECUTION_FAILURE"
	// ErrCodeInvalidParameters indicates the action was missing a required
	// field (e.g. CLICK without a selector).
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
)

// ExecError carries an ErrorCode alongside the underlying cause so the agent
// loop can record a machine-readable failure without parsing messages.
type ExecError struct {
	Code  ErrorCode
	Msg   string
	Cause error
}

func (e *ExecError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *ExecError) Unwrap() error { return e.Cause }

// NewExecError builds an ExecError. cause may be nil.
func NewExecError(code ErrorCode, msg string, cause error) *ExecError {
	return &ExecError{Code: code, Msg: msg, Cause: cause}
}

// CodeOf extracts the ErrorCode from err, or ErrCodeExecutionFailure when the
// error carries none.
func CodeOf(err error) ErrorCode {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return execErr.Code
	}
	return ErrCodeExecutionFailure
}
