package api

import (
	"encoding/json"
	"net/http"
)

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// respondJSON encodes data before touching the ResponseWriter so an encoding
// failure still produces a well-formed 500. A nil data writes no body.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	if data == nil {
		w.WriteHeader(status)
		return
	}
	body, err := json.Marshal(data)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error"}`))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// respondValidationErrors writes a 400 naming each rejected field.
func respondValidationErrors(w http.ResponseWriter, fields []string) {
	details := make([]string, len(fields))
	for i, f := range fields {
		details[i] = f + " is required"
	}
	respondJSON(w, http.StatusBadRequest, errorResponse{Error: "validation_failed", Details: details})
}
