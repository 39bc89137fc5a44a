// Package api defines the wire contracts of the audit engine's HTTP
// surface: response envelopes, JSON views of rounds and reports, and
// the embedded OpenAPI document. It decouples the API shapes from the
// internal domain models.
package api

import (
	"encoding/json"
	"net/http"
)

// Success sends a successful HTTP response with optional JSON data.
func Success(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Error sends an error response with a consistent JSON format.
func Error(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// ErrorCode sends an error response carrying the machine-readable code
// alongside the human-readable message. Clients branch on the code,
// which is stable, rather than the message, which is not.
func ErrorCode(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	body := map[string]string{"error": message}
	if code != "" {
		body["code"] = code
	}
	json.NewEncoder(w).Encode(body)
}
