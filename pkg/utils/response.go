// Package utils holds small HTTP response helpers shared by the handlers.
package utils

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// RespondJSON writes payload as JSON with the given status.
func RespondJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// RespondError writes an error body.
func RespondError(w http.ResponseWriter, status int, message string) error {
	return RespondJSON(w, status, ErrorBody{Error: message})
}

// RespondErrorCode writes an error body with a machine readable code.
func RespondErrorCode(w http.ResponseWriter, status int, code, message string) error {
	return RespondJSON(w, status, ErrorBody{Error: message, Code: code})
}

// maxBodyBytes caps request bodies
const maxBodyBytes = 1 << 20

// DecodeJSON reads a JSON body into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}
