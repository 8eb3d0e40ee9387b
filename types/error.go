package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the core.
type ErrorCode string

const (
	// ErrValidation indicates a missing or empty required field. Rejected
	// before any mutation and never retried automatically.
	ErrValidation ErrorCode = "VALIDATION"

	// ErrNotFound indicates an unknown entry, agent, or case id.
	ErrNotFound ErrorCode = "NOT_FOUND"

	// ErrProviderUnavailable indicates an embedding or persistence I/O
	// failure. Callers continue in degraded mode.
	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"

	// ErrConfiguration indicates an invalid configuration change. The
	// previous valid configuration remains in effect.
	ErrConfiguration ErrorCode = "CONFIGURATION"

	// ErrStoreClosed indicates an operation against a closed component.
	ErrStoreClosed ErrorCode = "STORE_CLOSED"

	// ErrInternal indicates an unexpected internal failure.
	ErrInternal ErrorCode = "INTERNAL"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotFound reports whether err carries the NOT_FOUND code.
func IsNotFound(err error) bool {
	return GetErrorCode(err) == ErrNotFound
}

// IsValidation reports whether err carries the VALIDATION code.
func IsValidation(err error) bool {
	return GetErrorCode(err) == ErrValidation
}
