// Package syncerr provides the unified error type used across the sync
// engine. Every failure the engine raises or aggregates carries a type for
// dispatch, a machine-readable code, and a retryable flag the scheduler
// consults before re-enqueueing work.
package syncerr

import (
	"errors"
	"fmt"
)

// ErrorType categorizes an error for handling policy.
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "VALIDATION"
	ErrorTypeNotFound    ErrorType = "NOT_FOUND"
	ErrorTypeConflict    ErrorType = "CONFLICT"
	ErrorTypeTimeout     ErrorType = "TIMEOUT"
	ErrorTypeConnection  ErrorType = "CONNECTION"
	ErrorTypeInternal    ErrorType = "INTERNAL"
	ErrorTypeUnavailable ErrorType = "UNAVAILABLE"
)

// Error is the engine's error type.
type Error struct {
	Type      ErrorType
	Code      string // stable machine code, e.g. "ANALYZE_FAILED"
	Message   string
	Operation string // the operation that failed, e.g. "migrate.analyze"
	Retryable bool
	Cause     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Type, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// Unwrap exposes the cause to errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// WithOperation annotates the error with the failing operation.
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// WithCause attaches the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// Validation creates a non-retryable validation error.
func Validation(code, message string) *Error {
	return &Error{Type: ErrorTypeValidation, Code: code, Message: message}
}

// NotFound creates a non-retryable not-found error.
func NotFound(code, message string) *Error {
	return &Error{Type: ErrorTypeNotFound, Code: code, Message: message}
}

// Conflict creates a non-retryable conflict error.
func Conflict(code, message string) *Error {
	return &Error{Type: ErrorTypeConflict, Code: code, Message: message}
}

// Timeout creates a retryable timeout error.
func Timeout(code, message string) *Error {
	return &Error{Type: ErrorTypeTimeout, Code: code, Message: message, Retryable: true}
}

// Connection creates a retryable connection error.
func Connection(code, message string) *Error {
	return &Error{Type: ErrorTypeConnection, Code: code, Message: message, Retryable: true}
}

// Unavailable creates a retryable unavailability error.
func Unavailable(code, message string) *Error {
	return &Error{Type: ErrorTypeUnavailable, Code: code, Message: message, Retryable: true}
}

// Internal creates a non-retryable internal error wrapping its cause.
func Internal(code, message string, cause error) *Error {
	return &Error{Type: ErrorTypeInternal, Code: code, Message: message, Cause: cause}
}

// IsRetryable reports whether err (or any error in its chain) is a retryable
// engine error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// TypeOf returns the engine error type in err's chain, or ErrorTypeInternal
// when err is not an engine error.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}
