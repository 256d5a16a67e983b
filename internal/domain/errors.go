package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrMemberNotFound = errors.New("member not found")
	ErrBoardNotFound  = errors.New("kudo board not found")
)

// ValidationError rejects malformed input (self-target, non-positive amount,
// over-cap). Surfaced to the caller verbatim, never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// CooldownError rejects a transfer still inside its cooldown window. Carries
// the remaining wait for user feedback. Not an internal error: it is never
// logged above info level.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active, retry in %s", e.RetryAfter.Round(time.Second))
}

// AuthorizationError rejects a non-admin attempting set/configureBoard.
type AuthorizationError struct {
	Msg string
}

func (e *AuthorizationError) Error() string { return e.Msg }

func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
