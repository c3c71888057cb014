// Package domainerrors carries the error taxonomy shared by services and
// transports. Services return *Error values; handlers translate the Code
// into an HTTP status and render Details so callers can show a precise
// message (offending field, role, minutes until reset).
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_error"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeRateLimited        Code = "rate_limit_exceeded"
	CodeImmutable          Code = "immutable"
	CodeIntegrity          Code = "integrity_error"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"
)

// Reasons refine a Code where the taxonomy needs two names for one status.
const (
	ReasonUserNotFound     = "user_not_found"
	ReasonAccessDenied     = "access_denied"
	ReasonPermissionDenied = "permission_denied"
)

// Error is a domain error with a stable code.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetail attaches a structured detail and returns the same error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Detail returns a detail value or nil.
func (e *Error) Detail(key string) any {
	if e.Details == nil {
		return nil
	}
	return e.Details[key]
}

// New creates a domain error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error around a cause.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// As extracts the outermost domain error from err.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether any domain error in the chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool { return HasCode(err, code) }

// Reason returns the "reason" detail of the outermost domain error.
func Reason(err error) string {
	de, ok := As(err)
	if !ok {
		return ""
	}
	r, _ := de.Detail("reason").(string)
	return r
}

// HTTPStatus maps a code to its HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidInput, CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeImmutable:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeIntegrity, CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Constructors for the access-layer taxonomy.

// Unauthenticated reports a request without a verified identity claim.
func Unauthenticated() *Error {
	return New(CodeUnauthorized, "missing identity claim")
}

// UserNotFound reports an identity claim with no matching user record.
func UserNotFound() *Error {
	return New(CodeNotFound, "no user matches the identity claim").WithDetail("reason", ReasonUserNotFound)
}

// AccessDenied reports a caller outside the resource's tenant.
func AccessDenied() *Error {
	return New(CodeForbidden, "no membership for this team").WithDetail("reason", ReasonAccessDenied)
}

// PermissionDenied reports a role that may not perform action.
func PermissionDenied(action, role string) *Error {
	return New(CodeForbidden, fmt.Sprintf("role %q may not %s", role, action)).
		WithDetail("reason", ReasonPermissionDenied).
		WithDetail("action", action).
		WithDetail("role", role)
}

// Validation reports the first offending field.
func Validation(field, message string) *Error {
	return New(CodeValidation, message).WithDetail("field", field)
}

// RateLimitExceeded reports a throttled write with minutes until reset.
func RateLimitExceeded(minutes int) *Error {
	return New(CodeRateLimited, fmt.Sprintf("rate limit exceeded, try again in %d minutes", minutes)).
		WithDetail("minutes_until_reset", minutes)
}

// Immutable reports a write against an archived or read-only record.
func Immutable(message string) *Error {
	return New(CodeImmutable, message)
}

// Integrity reports a checksum mismatch.
func Integrity(message string) *Error {
	return New(CodeIntegrity, message)
}
