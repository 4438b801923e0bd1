package common

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the uniform error payload returned by the API.
type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError renders an error response using the canonical error shape.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, ErrorBody{
		Message: message,
		Code:    code,
		Details: details,
	})
}

// NotFoundHandler answers unknown routes.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	JSONError(w, http.StatusNotFound, "NOT_FOUND", "Not Found - "+r.URL.Path, nil)
}

// MethodNotAllowedHandler answers known routes hit with an unsupported method.
func MethodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	JSONError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method "+r.Method+" not allowed", nil)
}
