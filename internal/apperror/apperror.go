// Package apperror defines the error kinds the domain core reports.
//
// Every kind is a sentinel (ErrNotFound, ErrValidation, ...) wrapped inside an
// *AppError that carries a human-readable message. Callers test the kind with
// errors.Is and extract the message with errors.As; the HTTP layer is the only
// place that turns a kind into a status code.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTransient marks failures that left state untouched and are safe to
	// retry: lock-wait timeouts, a busy database, a cancelled write.
	ErrTransient = errors.New("transient")
)

type AppError struct {
	Err     error  // sentinel kind
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	cause   error  // Optional: underlying error for transient failures
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap exposes both the sentinel kind and, when present, the underlying
// cause, so errors.Is(err, context.DeadlineExceeded) keeps working.
func (e *AppError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Err, e.cause}
	}
	return []error{e.Err}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// ValidationFailed is the InvalidArgument kind: bad option counts, empty
// text, out-of-range option numbers, unknown sort keys.
func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, key string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s already exists: %s", resource, key),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized reports bad or missing credentials.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Transient wraps an infrastructure failure of a write that was rolled back.
func Transient(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrTransient,
		Message: fmt.Sprintf("%s did not complete, retry later", op),
		cause:   cause,
	}
}
