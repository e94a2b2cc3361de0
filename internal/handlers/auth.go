package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// AuthHandler handles staff sign-in
type AuthHandler struct {
	auth AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(auth AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// LoginRequest is the body of a sign-in
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, err, "Failed to sign in")
		return
	}

	log.Info().
		Str("user_id", result.User.ID).
		Str("email", result.User.Email).
		Msg("Staff signed in")

	respondJSON(w, http.StatusOK, result)
}
