// Package api provides HTTP handlers for the dashboard API.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/vitalpath/pulseboard/internal/middleware"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeAuthFailed indicates authentication failure.
	ErrCodeAuthFailed = "auth_failed"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeInvalidFilter indicates a malformed geo or date filter value.
	ErrCodeInvalidFilter = "invalid_filter"

	// ErrCodeInvalidWindowType indicates an app-opened window type other
	// than week or month.
	ErrCodeInvalidWindowType = "invalid_window_type"
)

// WriteError writes a standardized JSON error response in the dashboard
// envelope: {"statusCode": ..., "message": ...}. The error code is stored
// on the request context so the logging middleware picks it up.
//
// Example:
//
//	api.WriteError(w, r, http.StatusBadRequest, api.ErrCodeInvalidFilter, "invalid state id")
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	ctx := middleware.SetErrorCode(r.Context(), code)
	*r = *r.WithContext(ctx)

	resp := Envelope{
		StatusCode: status,
		Message:    message,
	}

	data, err := json.Marshal(resp)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// StatusCodeMapping returns the recommended HTTP status code for common error codes.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest, ErrCodeInvalidFilter, ErrCodeInvalidWindowType:
		return http.StatusBadRequest
	case ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
