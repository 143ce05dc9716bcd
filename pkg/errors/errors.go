package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	// Retryable marks failures the client may retry after a short delay.
	Retryable bool  `json:"retryable,omitempty"`
	Err       error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code so clones and wrapped copies compare equal to the
// predefined values below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials     = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount        = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound               = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden              = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized           = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict               = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation             = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal               = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrInvalidStateTransition = New("INVALID_STATE_TRANSITION", http.StatusConflict, "invalid state transition")
	ErrAllocationExhausted    = &Error{Code: "ALLOCATION_EXHAUSTED", Status: http.StatusServiceUnavailable, Message: "could not allocate a unique NIM, please retry", Retryable: true}
	ErrStoreUnavailable       = &Error{Code: "STORE_UNAVAILABLE", Status: http.StatusServiceUnavailable, Message: "storage temporarily unavailable", Retryable: true}
	ErrCacheMiss              = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.Err = nil
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WrapAs copies a predefined error, keeping its code and status, and attaches the cause.
func WrapAs(err error, base *Error, message string) *Error {
	clone := Clone(base, message)
	clone.Err = err
	return clone
}
