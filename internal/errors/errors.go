// Package errors provides the error taxonomy surfaced by the techniquebook core.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error code that callers can switch on.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Storage errors
	ErrStorage   ErrorCode = "STORAGE_ERROR"
	ErrMigration ErrorCode = "MIGRATION_FAILED"

	// Import/export errors
	ErrDecode       ErrorCode = "DECODE_FAILED"
	ErrExportFailed ErrorCode = "EXPORT_FAILED"

	// Collaborators
	ErrMedia  ErrorCode = "MEDIA_ERROR"
	ErrConfig ErrorCode = "CONFIG_ERROR"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Storage reports a failed durability commit. The prior durable state is retained.
func Storage(message string, err error) *AppError {
	return Wrap(ErrStorage, message, err)
}

// NotFound reports a reference to a nonexistent record.
func NotFound(format string, args ...interface{}) *AppError {
	return New(ErrNotFound, fmt.Sprintf(format, args...))
}

// Validation reports a mutation rejected before touching the store.
func Validation(format string, args ...interface{}) *AppError {
	return New(ErrValidation, fmt.Sprintf(format, args...))
}

// Decode reports an import payload that could not be decoded as a whole.
func Decode(message string, err error) *AppError {
	return Wrap(ErrDecode, message, err)
}

// Is checks if an error, or any error it wraps, carries a specific code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost AppError in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
