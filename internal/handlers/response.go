package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Brownie44l1/eeg-api/internal/errors"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string   `json:"error"`
	Hints []string `json:"hints,omitempty"`
	// Recovery is "reload" for errors only a fresh page can recover from
	Recovery string `json:"recovery,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeFailure maps err onto a status code and writes it as JSON.
func writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := ErrorResponse{
		Error: err.Error(),
		Hints: errors.GetAllHints(err),
	}
	if errors.IsFatal(err) || errors.Is(err, errors.ErrSessionFailed) {
		resp.Recovery = "reload"
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrModelNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, errors.ErrSessionFailed):
		return http.StatusConflict
	case errors.IsInputError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "Method not allowed"})
}
