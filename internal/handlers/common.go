package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"foodbank-checkin-backend/internal/repository"
	"foodbank-checkin-backend/internal/services"

	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// respondServiceError maps a service error to a status code. Unexpected
// errors are logged and answered with fallback.
func respondServiceError(w http.ResponseWriter, err error, fallback string) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Fields: verr.Fields})
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, services.ErrSignatureNotFound):
		respondError(w, "Not found", http.StatusNotFound)
	case errors.Is(err, repository.ErrAlreadyWaiting):
		respondError(w, services.MsgAlreadyWaiting, http.StatusConflict)
	case errors.Is(err, services.ErrInvalidCredentials):
		respondError(w, "Invalid email or password", http.StatusUnauthorized)
	default:
		log.Error().Err(err).Msg(fallback)
		respondError(w, fallback, http.StatusInternalServerError)
	}
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}
