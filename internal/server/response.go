package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Sternrassler/tscache/pkg/cache"
)

var (
	// ErrInvalidParameters indicates a missing or non-integer query or path parameter
	ErrInvalidParameters = errors.New("invalid parameters; metricId, start, end and granularity must be integers")

	// ErrInvalidRequestBody indicates a body that is not the expected JSON
	ErrInvalidRequestBody = errors.New("invalid request body format")
)

// errorResponse is the JSON body of every non-2xx reply.
type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: status})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidParameters),
		errors.Is(err, ErrInvalidRequestBody),
		errors.Is(err, cache.ErrInvalidRequest),
		errors.Is(err, cache.ErrInvalidPoint):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
