package handler

// RESPONSE HELPERS:
// Every response body has the same envelope:
//
//	{"status": "success", "message": "...", "data": ...}
//	{"status": "error",   "message": "..."}
//
// Payloads are fresh values built per request, never shared templates that
// a handler mutates.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/consulthub/internal/apperror"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Payload is the standard success envelope.
type Payload struct {
	Status  string `json:"status"`
	Message any    `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ErrorPayload is the standard error envelope. Message is usually a string;
// for missing registration fields it is a field → reason map.
type ErrorPayload struct {
	Status  string `json:"status"`
	Message any    `json:"message"`
}

func success(message string, data any) Payload {
	return Payload{Status: statusSuccess, Message: message, Data: data}
}

// writeJSON sends data with the given status code. Headers must be set
// before WriteHeader; the body goes last.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps a domain error to its HTTP status.
//
// ErrNotFound and ErrForbidden answer 400, not 404/403: an unknown
// question id is a bad request in this API.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation),
		errors.Is(err, apperror.ErrNotFound),
		errors.Is(err, apperror.ErrForbidden):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperror.ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

// writeError translates an error into the error envelope.
//
// Only *apperror.AppError messages reach the client. Anything else may
// carry SQL or file paths, so it is logged and replaced with a generic 500.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		slog.Error("unhandled error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorPayload{
			Status:  statusError,
			Message: "An internal error occurred",
		})
		return
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("internal error", slog.String("message", appErr.Message), slog.String("error", appErr.Err.Error()))
	}

	var message any = appErr.Message
	if appErr.Details != nil {
		message = appErr.Details
	}
	writeJSON(w, status, ErrorPayload{Status: statusError, Message: message})
}
