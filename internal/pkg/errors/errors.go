// Package errors provides structured error types for the TrustChecker
// orchestration core.
//
// The core distinguishes programmer-facing errors (schema mismatch, invalid
// state transition, unknown registration keys) from operational errors
// (transport backends unreachable). Programmer errors surface synchronously;
// operational errors are retried or degraded by the caller.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrTransport         = errors.New("transport unavailable")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
)

// Machine-readable error codes.
const (
	CodeSchemaValidation  = "SCHEMA_VALIDATION_FAILED"
	CodeUnknownEventType  = "UNKNOWN_EVENT_TYPE"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeSagaStepFailed    = "SAGA_STEP_FAILED"
	CodeUnknownSaga       = "UNKNOWN_SAGA"
	CodeUnknownView       = "UNKNOWN_VIEW"
	CodeOwnershipConflict = "OWNERSHIP_CONFLICT"
	CodeTransport         = "TRANSPORT_UNAVAILABLE"
)

// AppError is a structured application error with a machine-readable code.
type AppError struct {
	// Code is a machine-readable error code (e.g. "SCHEMA_VALIDATION_FAILED").
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// Err is the wrapped underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf creates a new AppError with a formatted message.
func Newf(code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error into an AppError.
func Wrap(err error, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// IsAppError checks if an error is an AppError and returns it.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err is an AppError carrying the given code.
func HasCode(err error, code string) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Code == code
}
