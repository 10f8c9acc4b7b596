// Package errors provides typed error definitions for remote-workspace.
// Errors carry a stable code so callers can branch on failure class and the
// HTTP layer can map them to response statuses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of failure.
type ErrorCode string

const (
	// ErrValidation indicates a malformed create/update payload.
	ErrValidation ErrorCode = "VALIDATION_FAILED"
	// ErrMissingCredential indicates a configured user has no resolvable
	// public key; the current artifact-generation cycle is aborted.
	ErrMissingCredential ErrorCode = "MISSING_CREDENTIAL"
	// ErrExternalCommand indicates a subprocess returned non-zero or could
	// not be spawned.
	ErrExternalCommand ErrorCode = "EXTERNAL_COMMAND_FAILED"
	// ErrNotFound indicates an operation referenced an unknown workspace id.
	ErrNotFound ErrorCode = "NOT_FOUND"
	// ErrPortExhausted indicates no free host port could be assigned within
	// the retry budget.
	ErrPortExhausted ErrorCode = "PORT_EXHAUSTED"
	// ErrWorkspaceInUse indicates a deactivation was rejected because the
	// workspace still has a live SSH connection.
	ErrWorkspaceInUse ErrorCode = "WORKSPACE_IN_USE"
	// ErrStoreIO indicates the record store could not be read or flushed.
	ErrStoreIO ErrorCode = "STORE_IO"
	// ErrConfig indicates the deployment configuration is missing or invalid.
	ErrConfig ErrorCode = "CONFIG_INVALID"
	// ErrInternal is the fallback for unclassified failures.
	ErrInternal ErrorCode = "INTERNAL_ERROR"
)

// Error is a structured error with a code, optional cause and context.
type Error struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
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

// WithContext attaches a key/value pair for log correlation.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// HTTPStatus maps the error code to an HTTP response status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrWorkspaceInUse:
		return http.StatusConflict
	case ErrPortExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new coded error.
func New(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error wrapping a cause.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code of err, or ErrInternal if err carries none.
func CodeOf(err error) ErrorCode {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ErrInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
