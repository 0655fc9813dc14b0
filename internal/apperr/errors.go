// Package apperr defines the error kinds that cross the service boundary.
// Every kind carries a stable code and the HTTP status it renders with.
package apperr

import (
	"errors"
	"net/http"
)

// Error is a classified failure. Two errors with the same Code match under
// errors.Is, so a copy with a custom message still matches its sentinel.
type Error struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy of e carrying a different client-facing message.
func (e *Error) WithMessage(message string) *Error {
	cp := *e
	cp.Message = message
	return &cp
}

// Wrap returns a copy of e that records err as its cause.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

var (
	ErrValidation         = New(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request")
	ErrInvalidCredentials = New(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
	ErrTokenInvalid       = New(http.StatusUnauthorized, "TOKEN_ERROR", "Token is missing or invalid")
	ErrUnauthorized       = New(http.StatusUnauthorized, "UNAUTHORIZED", "You don't have permission to access this resource!")
	ErrUserAlreadyExists  = New(http.StatusConflict, "USER_ALREADY_EXISTS", "User already exists")
	ErrEmailAlreadyInUse  = New(http.StatusConflict, "EMAIL_ALREADY_IN_USE", "Email already in use")
	ErrUserNotFound       = New(http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	ErrPermissionNotFound = New(http.StatusNotFound, "PERMISSION_NOT_FOUND", "Permission not found")
	ErrRoleNotFound       = New(http.StatusNotFound, "ROLE_NOT_FOUND", "Role not found")
	ErrTooManyRequests    = New(http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
	ErrExportDisabled     = New(http.StatusServiceUnavailable, "EXPORT_DISABLED", "User export is not configured")
	ErrHashing            = New(http.StatusInternalServerError, "HASHING_ERROR", "Failed to process password")
	ErrInternal           = New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
)

// From classifies err. The second result is false when err carries no
// classification and was mapped to ErrInternal.
func From(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return ErrInternal.Wrap(err), false
}

// Validation builds a ValidationError with the given message.
func Validation(message string) *Error {
	return ErrValidation.WithMessage(message)
}
