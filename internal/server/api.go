// ABOUTME: JSON bodies for the token API
// ABOUTME: Successful exchanges return the route, expiry and any issued token

package server

import (
	"encoding/json"
	"net/http"
)

// TokenResponse is the JSON response for a successful /api/{route} request.
type TokenResponse struct {
	Route   string `json:"route"`
	Expires string `json:"expires"`
	Token   string `json:"token,omitempty"` // only set when a passphrase was exchanged
	User    string `json:"user,omitempty"`
}

// ErrorResponse is the JSON response for a rejected /api/{route} request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
