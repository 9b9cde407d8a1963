package utils

import (
	"encoding/json"
	"net/http"
)

// RespondWithError writes the failure envelope {"error": kind, "message": msg}.
func RespondWithError(w http.ResponseWriter, code int, kind, msg string) {
	RespondWithJSON(w, code, map[string]string{"error": kind, "message": msg})
}

// Sends a JSON response
func RespondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

type M map[string]interface{}
