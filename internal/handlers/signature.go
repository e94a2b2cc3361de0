package handlers

import (
	"net/http"

	"foodbank-checkin-backend/internal/middleware"
)

// SignatureHandler serves the signed-in staff member's stored signature
type SignatureHandler struct {
	signatures SignatureService
}

// NewSignatureHandler creates a new signature handler
func NewSignatureHandler(signatures SignatureService) *SignatureHandler {
	return &SignatureHandler{signatures: signatures}
}

// SignaturePayload carries a PNG data URL
type SignaturePayload struct {
	Signature string `json:"signature"`
}

// Get handles GET /api/v1/admin/signature
func (h *SignatureHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dataURL, err := h.signatures.Get(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, err, "Failed to load signature")
		return
	}
	respondJSON(w, http.StatusOK, SignaturePayload{Signature: dataURL})
}

// Put handles PUT /api/v1/admin/signature
func (h *SignatureHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req SignaturePayload
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	if err := h.signatures.Save(ctx, middleware.GetUserID(ctx), req.Signature); err != nil {
		respondServiceError(w, err, "Failed to save signature")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
