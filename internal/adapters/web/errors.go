package web

import (
	"encoding/json"
	"net/http"

	"buildmart/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeDomainError maps a core error kind onto an HTTP status and writes it.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := core.KindOf(err)
	status := http.StatusInternalServerError
	message := err.Error()

	switch kind {
	case core.KindNotFound:
		status = http.StatusNotFound
	case core.KindValidation:
		status = http.StatusBadRequest
	case core.KindInvalidState, core.KindFundsNotEscrowed:
		status = http.StatusConflict
	case core.KindInsufficientAmount:
		status = http.StatusUnprocessableEntity
	default:
		// Internal details stay out of responses.
		message = "internal server error"
	}

	writeError(w, r, message, string(kind), status)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONStatus writes a JSON response with an explicit status code.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
