// Package errors defines the gateway's error taxonomy. Every stage of the
// authentication pipeline returns a *ServiceError rather than panicking; the
// orchestrator is the single place that maps one to an HTTP status and a
// client-safe message.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of failure.
type ErrorCode string

const (
	CodeMalformedInput  ErrorCode = "MALFORMED_INPUT"
	CodePolicyViolation ErrorCode = "POLICY_VIOLATION"
	CodeForbidden       ErrorCode = "FORBIDDEN"
	CodeRateLimited     ErrorCode = "RATE_LIMITED"
	CodeConflict        ErrorCode = "CONFLICT"
	CodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	CodeUnavailable     ErrorCode = "UNAVAILABLE"
	CodeInternal        ErrorCode = "INTERNAL"
	CodeNotFound        ErrorCode = "NOT_FOUND"
)

// ServiceError is a tagged failure carrying the HTTP status it maps to and a
// message that is safe to show to a client. Internal detail goes in the
// wrapped error and Details map, which are logged but never serialized to the
// response body.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches a key/value pair for server-side diagnostics.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code ErrorCode, message string, status int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// MalformedInput reports a body that fails basic shape checks.
func MalformedInput(message string) *ServiceError {
	if message == "" {
		message = "invalid request body"
	}
	return newError(CodeMalformedInput, message, http.StatusBadRequest, nil)
}

// PolicyViolation reports email or password rules that failed. The message is
// the joined, human-readable list of every violated rule.
func PolicyViolation(message string) *ServiceError {
	return newError(CodePolicyViolation, message, http.StatusBadRequest, nil)
}

// Forbidden reports an untrusted origin. The message is deliberately generic.
func Forbidden() *ServiceError {
	return newError(CodeForbidden, "request origin not allowed", http.StatusForbidden, nil)
}

// RateLimited reports an exhausted attempt budget.
func RateLimited() *ServiceError {
	return newError(CodeRateLimited, "too many attempts, please try again later", http.StatusTooManyRequests, nil)
}

// Conflict reports a duplicate email on registration. No internal identifiers
// are exposed.
func Conflict(message string) *ServiceError {
	if message == "" {
		message = "resource already exists"
	}
	return newError(CodeConflict, message, http.StatusConflict, nil)
}

// Unauthorized reports a credential mismatch. Callers must use the identical
// message whether or not the account exists.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "unauthorized"
	}
	return newError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

// Unavailable reports a downstream store failure. Full detail stays server
// side in the wrapped error.
func Unavailable(err error) *ServiceError {
	return newError(CodeUnavailable, "service temporarily unavailable", http.StatusServiceUnavailable, err)
}

// Internal reports an unexpected failure.
func Internal(message string, err error) *ServiceError {
	if message == "" {
		message = "internal error"
	}
	return newError(CodeInternal, message, http.StatusInternalServerError, err)
}

// NotFound reports a missing resource.
func NotFound(message string) *ServiceError {
	if message == "" {
		message = "not found"
	}
	return newError(CodeNotFound, message, http.StatusNotFound, nil)
}

// InvalidToken reports a session token that failed validation.
func InvalidToken(err error) *ServiceError {
	return newError(CodeUnauthorized, "invalid or expired token", http.StatusUnauthorized, err)
}

// GetServiceError extracts a *ServiceError from err, or nil when err is not
// one.
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	serviceErr := GetServiceError(err)
	return serviceErr != nil && serviceErr.Code == code
}
