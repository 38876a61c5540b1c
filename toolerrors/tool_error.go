// Package toolerrors provides a structured error chain type for failures
// that cross component boundaries in the procedure engine: tool invocation
// failures, registry lookup misses, and run cancellation. Validation
// problems are NOT represented here — the validator enumerates structured
// Issue values (see package validate) rather than failing fast.
package toolerrors

import (
	"errors"
	"fmt"
)

// Sentinel errors components can match against with errors.Is.
var (
	// ErrUnknownTool is returned when the registry has no contract for a
	// requested tool name.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrRunCancelled is returned when a run's cancellation signal fires
	// between step boundaries.
	ErrRunCancelled = errors.New("run cancelled")
)

// ToolError represents a structured failure that preserves a human message
// and causal chain while still implementing the standard error interface.
// Errors may nest via Cause to retain diagnostics across nested
// compound-tool invocations.
type ToolError struct {
	// Message is the human-readable summary of the failure.
	Message string
	// Cause links to the underlying error, enabling chains with errors.Is/As.
	Cause *ToolError
}

// New constructs a ToolError with the provided message.
func New(message string) *ToolError {
	if message == "" {
		message = "tool error"
	}
	return &ToolError{Message: message}
}

// NewWithCause constructs a ToolError that wraps an underlying error.
func NewWithCause(message string, cause error) *ToolError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ToolError{Message: message, Cause: FromError(cause)}
}

// FromError converts an arbitrary error into a ToolError chain.
func FromError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{Message: err.Error(), Cause: FromError(errors.Unwrap(err))}
}

// Errorf formats according to a format specifier and returns a ToolError.
func Errorf(format string, args ...any) *ToolError {
	return New(fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the underlying error to support errors.Is/As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
