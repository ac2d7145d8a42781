// Package apperror defines the domain errors shared by every layer.
//
// Services return these; only the HTTP handler layer knows how they map to
// status codes.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation error")
	ErrConflict         = errors.New("conflict")
	ErrForbidden        = errors.New("forbidden")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrUnsupportedMedia = errors.New("unsupported media type")
	// ErrInternal is a server-side failure whose message is still safe to
	// show, e.g. "Failed to create token".
	ErrInternal = errors.New("internal error")
)

// AppError carries a sentinel (for errors.Is) plus a client-safe message.
//
// Details is optional structured data for the client, e.g. the map of
// missing registration fields.
type AppError struct {
	Err     error  // sentinel
	Message string // human-readable error message
	Field   string // optional: field causing the error
	Details any
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// NotFoundMessage is NotFound with a caller-chosen message.
func NotFoundMessage(message string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: message,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// MissingFields reports required fields absent from a request body.
// The map is returned to the client as the error message.
func MissingFields(missing map[string]string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: "required fields missing",
		Details: missing,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized covers missing, unknown or expired tokens and bad credentials.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

func UnsupportedMedia(message string) *AppError {
	return &AppError{
		Err:     ErrUnsupportedMedia,
		Message: message,
	}
}

// Internal reports a server-side failure with a client-visible message.
// cause is kept for logging and errors.Is but never shown to the client.
func Internal(message string, cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrInternal, cause),
		Message: message,
	}
}
