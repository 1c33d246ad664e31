package handlers

import (
	"encoding/json"
	"net/http"

	"scrapworks/internal/application/verify"
)

// errorBody is the uniform error shape for all endpoints.
type errorBody struct {
	Error     string `json:"error"`             // stable machine-readable code
	Message   string `json:"message,omitempty"` // terse, client-safe
	Retryable bool   `json:"retryable"`

	// Payment amount mismatches disclose both sides for client debugging.
	ExpectedLamports uint64 `json:"expectedAmountInBaseUnits,omitempty"`
	ActualLamports   uint64 `json:"actualAmountInBaseUnits,omitempty"`

	// Prior is the already committed outcome behind a signature_consumed
	// conflict, so a retried request can recover its result.
	Prior *verify.PriorOutcome `json:"prior,omitempty"`

	// Detail carries internal error text only when debug mode is on.
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, body errorBody) {
	writeJSON(w, status, body)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeErr(w, http.StatusMethodNotAllowed, errorBody{Error: "method_not_allowed"})
}
