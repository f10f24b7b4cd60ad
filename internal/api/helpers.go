package api

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
)

// WriteJSONResponse encodes the payload to a buffer first to prevent partial
// writes if JSON encoding fails, then writes it with the JSON content type.
// Returns false when encoding failed (an error response has been written).
func WriteJSONResponse(w http.ResponseWriter, payload any) bool {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		log.Printf("API: Failed to encode response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return false
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Printf("API: Failed to write response: %v", err)
	}
	return true
}

// WriteJSONError writes an error payload in the shape the admin dashboard
// expects: { "error": "..." }.
func WriteJSONError(w http.ResponseWriter, status int, message string) {
	var buf bytes.Buffer
	payload := struct {
		Error string `json:"error"`
	}{Error: message}

	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		log.Printf("API: Failed to encode error response: %v", err)
		http.Error(w, message, status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Printf("API: Failed to write error response: %v", err)
	}
}

// DecodeJSONBody decodes the request body into dst, writing a 400 response on
// failure. Returns false when decoding failed.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		log.Printf("API: Failed to decode request: %v", err)
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
