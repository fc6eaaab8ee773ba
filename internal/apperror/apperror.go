package apperror

import (
	"fmt"
	"net/http"
)

// Error is the single structured error type used below the HTTP boundary.
// Handlers and services return it up the chain; the error-handler middleware
// is the only place that turns it into a response.
type Error struct {
	Status  int      `json:"-"`
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Code constants
const (
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeExpiredToken       = "EXPIRED_TOKEN"
	CodeRevokedToken       = "REVOKED_TOKEN"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeInternal           = "INTERNAL_ERROR"
)

func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// InvalidCredentials is deliberately identical for unknown accounts,
// inactive accounts and wrong passwords.
func InvalidCredentials() *Error {
	return New(http.StatusUnauthorized, CodeInvalidCredentials, "invalid email or password")
}

func InvalidToken() *Error {
	return New(http.StatusUnauthorized, CodeInvalidToken, "invalid refresh token")
}

func ExpiredToken() *Error {
	return New(http.StatusUnauthorized, CodeExpiredToken, "refresh token has expired")
}

func RevokedToken() *Error {
	return New(http.StatusUnauthorized, CodeRevokedToken, "refresh token has been revoked")
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, CodeUnauthorized, message)
}

func Forbidden(message string) *Error {
	return New(http.StatusForbidden, CodeForbidden, message)
}

func TooManyRequests(message string) *Error {
	return New(http.StatusTooManyRequests, CodeTooManyRequests, message)
}

func Validation(details []string) *Error {
	e := New(http.StatusUnprocessableEntity, CodeValidation, "request validation failed")
	e.Details = details
	return e
}

func NotFound(message string) *Error {
	return New(http.StatusNotFound, CodeNotFound, message)
}

func Internal() *Error {
	return New(http.StatusInternalServerError, CodeInternal, "internal server error")
}
