// Package apperrors provides structured error handling with the karma
// outcome taxonomy and HTTP status code mapping.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/YTstyo/Dis-karm/internal/domain"
)

// ErrorType represents the category of error for metrics and response
// formatting.
type ErrorType string

const (
	// TypeValidation indicates invalid input (HTTP 400)
	TypeValidation ErrorType = "validation"
	// TypeCooldown indicates a transfer rejected by the cooldown policy (HTTP 429)
	TypeCooldown ErrorType = "cooldown"
	// TypeAuthorization indicates a non-admin attempting an admin operation (HTTP 403)
	TypeAuthorization ErrorType = "authorization"
	// TypeNotFound indicates resource not found (HTTP 404)
	TypeNotFound ErrorType = "not_found"
	// TypeInternal indicates server-side error (HTTP 500)
	TypeInternal ErrorType = "internal"
)

// Error represents a structured error with type, message, and context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
	// RetryAfter is set for cooldown rejections.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeCooldown:
		return http.StatusTooManyRequests
	case TypeAuthorization:
		return http.StatusForbidden
	case TypeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError creates a new validation error (HTTP 400).
func ValidationError(message string) *Error {
	return &Error{Type: TypeValidation, Message: message, Context: make(map[string]any)}
}

// CooldownError creates a new cooldown rejection (HTTP 429).
func CooldownError(retryAfter time.Duration) *Error {
	return &Error{
		Type:       TypeCooldown,
		Message:    fmt.Sprintf("cooldown active, retry in %s", retryAfter.Round(time.Second)),
		Context:    make(map[string]any),
		RetryAfter: retryAfter,
	}
}

// AuthorizationError creates a new authorization error (HTTP 403).
func AuthorizationError(message string) *Error {
	return &Error{Type: TypeAuthorization, Message: message, Context: make(map[string]any)}
}

// NotFoundError creates a new not-found error (HTTP 404).
func NotFoundError(message string) *Error {
	return &Error{Type: TypeNotFound, Message: message, Context: make(map[string]any)}
}

// InternalError creates a new internal error (HTTP 500).
func InternalError(message string, cause error) *Error {
	return &Error{Type: TypeInternal, Message: message, Cause: cause, Context: make(map[string]any)}
}

// WithField adds a context field to the error (chainable).
func (e *Error) WithField(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse represents the JSON structure sent to callers.
type ErrorResponse struct {
	Error             string         `json:"error"`
	Type              ErrorType      `json:"type"`
	RetryAfterSeconds float64        `json:"retry_after_seconds,omitempty"`
	Context           map[string]any `json:"context,omitempty"`
}

// ToResponse converts an Error to an ErrorResponse for JSON serialization.
func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:             e.Message,
		Type:              e.Type,
		RetryAfterSeconds: e.RetryAfter.Seconds(),
		Context:           e.Context,
	}
}

// AsStructuredError converts any error into a structured Error, mapping the
// domain rejection types onto the taxonomy. Unknown errors become internal
// errors so storage failures never leak details to callers.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return ValidationError(validationErr.Msg)
	}
	var cooldownErr *domain.CooldownError
	if errors.As(err, &cooldownErr) {
		return CooldownError(cooldownErr.RetryAfter)
	}
	var authErr *domain.AuthorizationError
	if errors.As(err, &authErr) {
		return AuthorizationError(authErr.Msg)
	}
	if errors.Is(err, domain.ErrMemberNotFound) || errors.Is(err, domain.ErrBoardNotFound) {
		return NotFoundError(err.Error())
	}

	return InternalError("internal server error", err)
}
