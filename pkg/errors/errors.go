package errors

import (
	"errors"
	"fmt"
)

// Standard error codes shared across go-service-queue.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeInternal         = "INTERNAL"
	CodeAlreadyExists    = "ALREADY_EXISTS"
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeUnavailable      = "UNAVAILABLE"
	CodeDeadlineExceeded = "DEADLINE_EXCEEDED"
)

// AppError is the standard error type used across the library. It carries a
// stable code, a human-readable message, and an optional wrapped cause.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap lets errors.Is/errors.As traverse into the wrapped cause.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New constructs an AppError with the given code, message, and optional cause.
func New(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Wrap creates an AppError with CodeInternal wrapping err with a message.
// If err is already an *AppError its code is preserved.
func Wrap(err error, message string) *AppError {
	var existing *AppError
	if errors.As(err, &existing) {
		return &AppError{Code: existing.Code, Message: message, Err: err}
	}
	return &AppError{Code: CodeInternal, Message: message, Err: err}
}

// NotFound creates a CodeNotFound error.
func NotFound(message string, err error) *AppError {
	return New(CodeNotFound, message, err)
}

// Internal creates a CodeInternal error.
func Internal(message string, err error) *AppError {
	return New(CodeInternal, message, err)
}

// InvalidArgument creates a CodeInvalidArgument error.
func InvalidArgument(message string, err error) *AppError {
	return New(CodeInvalidArgument, message, err)
}

// AlreadyExists creates a CodeAlreadyExists error.
func AlreadyExists(message string, err error) *AppError {
	return New(CodeAlreadyExists, message, err)
}

// Unavailable creates a CodeUnavailable error, used for transient downstream
// failures (broker/object-store connectivity) that callers may retry.
func Unavailable(message string, err error) *AppError {
	return New(CodeUnavailable, message, err)
}

// Is reports whether err's chain contains an AppError with the given code.
func Is(err error, code string) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// As is re-exported from the standard library so callers only need to
// import this package when working with AppError chains.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// CodeOf extracts the code from err's chain, or CodeInternal if err is not
// (or does not wrap) an AppError.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}
