// Package httpx holds the small HTTP helpers shared by the function
// entry points: permissive CORS for the browser client and the JSON
// success/error envelopes.
package httpx

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/storytimeapp/storytime-functions/internal/models"
)

// SetCORS applies the permissive cross-origin headers the web client needs.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
}

// HandlePreflight answers CORS preflight requests with a bare "ok".
// It reports whether the request was a preflight and has been handled.
func HandlePreflight(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodOptions {
		return false
	}
	SetCORS(w)
	w.Write([]byte("ok"))
	return true
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: Failed to write response: %v", err)
	}
}

// WriteError writes the shared error envelope with the given status code.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, models.ErrorResponse{Error: message})
}
