package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Envelope is the response wrapper every dashboard endpoint returns:
// {"statusCode": ..., "message": ..., "data": ...}. Error responses omit
// the data field.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Data       any    `json:"data,omitempty"`
}

// WriteSuccess writes a 200 envelope around the given payload.
func WriteSuccess(w http.ResponseWriter, r *http.Request, message string, data any) {
	resp := Envelope{
		StatusCode: http.StatusOK,
		Message:    message,
		Data:       data,
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err, "path", r.URL.Path)
	}
}
