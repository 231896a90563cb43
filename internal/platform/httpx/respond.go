// Package httpx provides the uniform API response envelope and helpers.
package httpx

import (
	"encoding/json"
	"net/http"
)

// Envelope is the wire format shared by every response. The HTTP status
// always mirrors Code.
type Envelope struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Success sends a success envelope.
func Success(w http.ResponseWriter, code int, data any, message string) {
	if data == nil {
		data = []any{}
	}
	JSON(w, code, Envelope{Success: true, Code: code, Data: data, Message: message})
}

// Error sends an error envelope with an empty data payload.
func Error(w http.ResponseWriter, code int, message string) {
	ErrorWithData(w, code, message, []any{})
}

// ErrorWithData sends an error envelope carrying a payload, used for
// field-level validation errors.
func ErrorWithData(w http.ResponseWriter, code int, message string, data any) {
	JSON(w, code, Envelope{Success: false, Code: code, Data: data, Message: message})
}

// DecodeJSON decodes the request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
