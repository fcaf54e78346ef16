// Package errors defines the JSON error envelope served by the HTTP
// surface and helpers for writing it.
package errors

import (
	"encoding/json"
	"net/http"
)

// Error codes used in HTTP error responses.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeValidationError    = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeConflict           = "CONFLICT"
)

// HTTPErrorResponse is the JSON body of every non-2xx API reply.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// HTTPErrorDetail carries the machine-readable error fields.
type HTTPErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Write serializes an error envelope to the response.
func Write(w http.ResponseWriter, status int, detail HTTPErrorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Error: detail})
}

// NotFound writes a 404 envelope.
func NotFound(w http.ResponseWriter, requestID string) {
	Write(w, http.StatusNotFound, HTTPErrorDetail{
		Code:      CodeNotFound,
		Message:   "resource not found",
		RequestID: requestID,
	})
}

// MethodNotAllowed writes a 405 envelope.
func MethodNotAllowed(w http.ResponseWriter, requestID string) {
	Write(w, http.StatusMethodNotAllowed, HTTPErrorDetail{
		Code:      CodeMethodNotAllowed,
		Message:   "method not allowed",
		RequestID: requestID,
	})
}

// Internal writes a 500 envelope.
func Internal(w http.ResponseWriter, requestID, message string) {
	Write(w, http.StatusInternalServerError, HTTPErrorDetail{
		Code:      CodeInternalError,
		Message:   message,
		RequestID: requestID,
	})
}

// BadRequest writes a 400 envelope.
func BadRequest(w http.ResponseWriter, requestID, message string) {
	Write(w, http.StatusBadRequest, HTTPErrorDetail{
		Code:      CodeBadRequest,
		Message:   message,
		RequestID: requestID,
	})
}

// Validation writes a 400 envelope carrying per-field details.
func Validation(w http.ResponseWriter, requestID, message string, details map[string]any) {
	Write(w, http.StatusBadRequest, HTTPErrorDetail{
		Code:      CodeValidationError,
		Message:   message,
		RequestID: requestID,
		Details:   details,
	})
}

// Unavailable writes a 503 envelope with optional details.
func Unavailable(w http.ResponseWriter, requestID, message string, details map[string]any) {
	Write(w, http.StatusServiceUnavailable, HTTPErrorDetail{
		Code:      CodeServiceUnavailable,
		Message:   message,
		RequestID: requestID,
		Details:   details,
	})
}
