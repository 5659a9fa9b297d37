package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ErrorResponse represents a structured error response.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SuccessResponse represents a generic success response.
type SuccessResponse struct {
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 OK response with optional data.
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, SuccessResponse{Data: data})
}

// WriteBadRequest writes a 400 Bad Request response with error details.
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return WriteJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "bad_request",
		Message: message,
		Details: details,
	})
}

// WriteUnauthorized writes a 401 Unauthorized response with the
// WWW-Authenticate challenge header.
func WriteUnauthorized(w http.ResponseWriter, errorType, message string) error {
	if message == "" {
		message = "Authentication required"
	}
	if errorType == "" {
		errorType = "unauthorized"
	}
	w.Header().Set("WWW-Authenticate", "Bearer")
	return WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error:   errorType,
		Message: message,
	})
}

// WriteForbidden writes a 403 Forbidden response with a machine-readable
// error type.
func WriteForbidden(w http.ResponseWriter, errorType, message string) error {
	if message == "" {
		message = "Access forbidden"
	}
	if errorType == "" {
		errorType = "forbidden"
	}
	return WriteJSON(w, http.StatusForbidden, ErrorResponse{
		Error:   errorType,
		Message: message,
	})
}

// WriteCSRFForbidden writes a 403 with the X-CSRF-Error reason header.
func WriteCSRFForbidden(w http.ResponseWriter, reason string) error {
	w.Header().Set("X-CSRF-Error", reason)
	return WriteJSON(w, http.StatusForbidden, ErrorResponse{
		Error:   "csrf_validation_failed",
		Message: "CSRF validation failed",
	})
}

// WriteTooManyRequests writes a 429 with the Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, retryAfter time.Duration, resetAt time.Time) error {
	seconds := int(retryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
	return WriteJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Error:   "rate_limited",
		Message: "Rate limit exceeded",
		Details: map[string]interface{}{
			"retry_after_seconds": seconds,
			"reset_at":            resetAt.UTC().Format(time.RFC3339),
		},
	})
}

// WriteInternalServerError writes a 500 Internal Server Error response.
func WriteInternalServerError(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Internal server error"
	}
	return WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: message,
	})
}
