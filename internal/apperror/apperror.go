// Package apperror defines the failure taxonomy shared by the store, the
// service layer and the command handlers.
//
// Every failure is an *AppError wrapping one of the sentinel errors below.
// Callers branch with errors.Is on the sentinel and show Message to users;
// the wrapped cause (if any) is only ever logged.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrConnection        = errors.New("store unavailable")
	ErrDuplicateHandle   = errors.New("duplicate handle")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidRewardKind = errors.New("invalid reward kind")
	ErrBelowZero         = errors.New("counter below zero")
	ErrForbidden         = errors.New("forbidden")
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrInternal          = errors.New("internal error")
)

type AppError struct {
	Err     error  // sentinel
	Message string // Human-readable, safe to show to users
	Field   string // Optional: field causing the error
	Value   string // Optional: the rejected input, safe to echo back
	Cause   error  // Optional: underlying driver error, never shown to users
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the cause to errors.Is / errors.As.
func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// ConnectionFailure reports that the store could not be reached for op.
func ConnectionFailure(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrConnection,
		Message: fmt.Sprintf("store unavailable during %s", op),
		Cause:   cause,
	}
}

func DuplicateHandle(handle string) *AppError {
	return &AppError{
		Err:     ErrDuplicateHandle,
		Message: fmt.Sprintf("handle %q is already registered to another user", handle),
		Field:   "handle",
	}
}

func UserNotFound(handle string) *AppError {
	return &AppError{
		Err:     ErrUserNotFound,
		Message: fmt.Sprintf("no user registered with handle %q", handle),
		Field:   "handle",
	}
}

func InvalidRewardKind(name string) *AppError {
	return &AppError{
		Err:     ErrInvalidRewardKind,
		Message: fmt.Sprintf("%q is not a reward kind", name),
		Field:   "reward",
		Value:   name,
	}
}

func BelowZero(handle, reward string) *AppError {
	return &AppError{
		Err:     ErrBelowZero,
		Message: fmt.Sprintf("%s for %q is already zero", reward, handle),
		Field:   "reward",
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// The command router builds it before any store call is made; message is
// shown to the caller.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Internal hides an unexpected failure behind generic text. The cause is kept
// for logging only.
func Internal(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrInternal,
		Message: fmt.Sprintf("unexpected error during %s", op),
		Cause:   cause,
	}
}
