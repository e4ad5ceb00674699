// Package apperr defines the structured error taxonomy shared by the ledger
// core and its HTTP surface. The core returns only a machine-readable code
// plus detail; user-facing message formatting belongs to the UI collaborator.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error category.
type Code string

const (
	// ErrValidation - malformed or inconsistent input, rejected before any mutation
	ErrValidation Code = "VALIDATION_ERROR"
	// ErrNotFound - unknown account or transaction id
	ErrNotFound Code = "NOT_FOUND"
	// ErrInvalidDate - calendar conversion given an out-of-range or malformed date
	ErrInvalidDate Code = "INVALID_DATE"
	// ErrAlreadyReversed - reverse/update attempted on a reversed transaction
	ErrAlreadyReversed Code = "ALREADY_REVERSED"
	// ErrStorage - persistence failure, the enclosing atomic operation was aborted
	ErrStorage Code = "STORAGE_ERROR"
)

// Error carries a code, a short message and optional machine-readable detail.
type Error struct {
	Code    Code        `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	wrapped error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.wrapped
}

// New creates an error with the given code and message.
func New(code Code, message string, details interface{}) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

// Newf creates an error with a formatted message and no detail payload.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, wrapped: err}
}

// CodeOf extracts the Code from an error chain. Unclassified errors
// report ErrStorage.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrStorage
}

// Is reports whether the error chain carries the given code.
func Is(err error, code Code) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}

// HTTPStatus maps an error to the status the HTTP surface should return.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrValidation, ErrInvalidDate:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrAlreadyReversed:
		return http.StatusConflict
	case ErrStorage:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
