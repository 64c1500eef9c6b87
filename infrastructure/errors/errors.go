// Package errors provides unified error handling for the monitoring engine,
// matching the taxonomy in spec §7: NotFound, Invalid, Unauthorized,
// Conflict, Unavailable, Internal.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents a unique error code.
type ErrorCode string

const (
	ErrCodeNotFound      ErrorCode = "MON_NOT_FOUND"
	ErrCodeInvalid       ErrorCode = "MON_INVALID"
	ErrCodeUnauthorized  ErrorCode = "MON_UNAUTHORIZED"
	ErrCodeConflict      ErrorCode = "MON_CONFLICT"
	ErrCodeUnavailable   ErrorCode = "MON_UNAVAILABLE"
	ErrCodeInternal      ErrorCode = "MON_INTERNAL"
)

// ServiceError is a structured error with a code, message, HTTP-equivalent
// status and optional details, mirroring the teacher's ServiceError shape.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails adds additional structured context to the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// NotFound reports an unknown target/incident/check.
func NotFound(resource, id string) *ServiceError {
	return New(ErrCodeNotFound, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

// Invalid reports a malformed URL, an interval below the floor, an
// unrecognized kind, or any other input-validation failure.
func Invalid(reason string) *ServiceError {
	return New(ErrCodeInvalid, reason, http.StatusBadRequest)
}

// Unauthorized reports cross-owner access.
func Unauthorized(message string) *ServiceError {
	return New(ErrCodeUnauthorized, message, http.StatusForbidden)
}

// Conflict reports a duplicate submission within the cooldown window and
// includes the remaining cooldown, per spec §7's user-visible behavior.
func Conflict(message string, remaining time.Duration) *ServiceError {
	return New(ErrCodeConflict, message, http.StatusConflict).
		WithDetails("cooldown_remaining_ms", remaining.Milliseconds())
}

// Unavailable reports a retryable store/transport outage.
func Unavailable(operation string, err error) *ServiceError {
	return Wrap(ErrCodeUnavailable, "temporarily unavailable", http.StatusServiceUnavailable, err).
		WithDetails("operation", operation)
}

// Internal reports an unexpected failure.
func Internal(message string, err error) *ServiceError {
	return Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

// IsServiceError reports whether err is (or wraps) a ServiceError.
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// As extracts a ServiceError from an error chain, if present.
func As(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// Code returns the ErrorCode of err, or ErrCodeInternal if err does not
// wrap a ServiceError.
func Code(err error) ErrorCode {
	if se := As(err); se != nil {
		return se.Code
	}
	return ErrCodeInternal
}

// IsConflict reports whether err is a Conflict, such as a Submission
// Gateway rejection within the cooldown window.
func IsConflict(err error) bool {
	return Code(err) == ErrCodeConflict
}

// IsUnavailable reports whether err is a retryable Unavailable error.
func IsUnavailable(err error) bool {
	return Code(err) == ErrCodeUnavailable
}
