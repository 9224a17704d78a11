package admission

import (
	"encoding/json"
	"net/http"
)

const (
	// ThrottledMessage answers the request that exhausts a client's window.
	ThrottledMessage = "Too many requests from this IP, please try again later."
	// BlockedMessage answers every request made while a block is active.
	BlockedMessage = "Your IP has been temporarily blocked due to too many requests. Please try again later."
	// BusyMessage answers requests that could not get an in-flight slot.
	BusyMessage = "Server is busy, please try again later."
)

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func reject(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, response{Success: false, Message: message})
}
