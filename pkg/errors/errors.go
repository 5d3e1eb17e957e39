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
	Err     error  `json:"-"`
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
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// Attendance session errors surfaced by the coordinator. AlreadyCheckedIn is
// informational: a repeated check-in is an expected outcome, not a failure.
var (
	ErrInvalidRequest       = New("INVALID_REQUEST", http.StatusBadRequest, "invalid request")
	ErrConfigurationMissing = New("CONFIGURATION_MISSING", http.StatusUnprocessableEntity, "course location is not configured")
	ErrSessionConflict      = New("SESSION_CONFLICT", http.StatusConflict, "an attendance session is already open for this course")
	ErrSessionExpired       = New("SESSION_EXPIRED", http.StatusGone, "attendance session has expired")
	ErrInvalidOrExpiredCode = New("INVALID_OR_EXPIRED_CODE", http.StatusUnauthorized, "invalid or expired code")
	ErrAlreadyCheckedIn     = New("ALREADY_CHECKED_IN", http.StatusConflict, "already checked in")
	ErrStudentNotInRoster   = New("STUDENT_NOT_IN_ROSTER", http.StatusNotFound, "student is not on the session roster")
	ErrMalformedPayload     = New("MALFORMED_PAYLOAD", http.StatusBadRequest, "malformed attendance payload")
	ErrOutOfRange           = New("OUT_OF_RANGE", http.StatusForbidden, "reported location is outside the allowed area")
	ErrPersistence          = New("PERSISTENCE_FAILURE", http.StatusInternalServerError, "failed to persist attendance record")
)

// ErrCacheMiss is a lookup sentinel, never rendered to clients.
var ErrCacheMiss = New("CACHE_MISS", http.StatusNotFound, "cache miss")

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
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// HasCode reports whether err carries the same code as the target error.
func HasCode(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}
