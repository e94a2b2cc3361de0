package handlers

import (
	"net/http"
	"strings"

	"foodbank-checkin-backend/internal/middleware"
	"foodbank-checkin-backend/internal/models"
	"foodbank-checkin-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// CheckinHandler handles the self check-in kiosk and the staff queue
type CheckinHandler struct {
	checkins CheckinService
}

// NewCheckinHandler creates a new check-in handler
func NewCheckinHandler(checkins CheckinService) *CheckinHandler {
	return &CheckinHandler{checkins: checkins}
}

// CheckIn handles POST /api/v1/checkins
func (h *CheckinHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req services.CheckinRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.checkins.CheckIn(r.Context(), req)
	if err != nil {
		respondServiceError(w, err, services.MsgCheckinFailed)
		return
	}

	// not found, already waiting and expired are answers, not failures
	status := http.StatusOK
	if result.State == services.CheckinCreated {
		status = http.StatusCreated
	}
	respondJSON(w, status, result)
}

// List handles GET /api/v1/admin/checkins. Without a status filter it
// returns the waiting queue.
func (h *CheckinHandler) List(w http.ResponseWriter, r *http.Request) {
	var statuses []string
	for _, raw := range r.URL.Query()["status"] {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				statuses = append(statuses, s)
			}
		}
	}

	var (
		list []*models.Checkin
		err  error
	)
	if len(statuses) == 0 {
		list, err = h.checkins.Queue(r.Context())
	} else {
		list, err = h.checkins.List(r.Context(), statuses)
	}
	if err != nil {
		respondServiceError(w, err, "Failed to list check-ins")
		return
	}
	if list == nil {
		list = []*models.Checkin{}
	}
	respondJSON(w, http.StatusOK, list)
}

// Serve handles POST /api/v1/admin/checkins/{id}/serve
func (h *CheckinHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if err := h.checkins.Serve(ctx, id); err != nil {
		respondServiceError(w, err, "Failed to serve check-in")
		return
	}
	log.Info().Str("checkin_id", id).Str("actor", middleware.GetUserEmail(ctx)).Msg("Check-in served")
	w.WriteHeader(http.StatusNoContent)
}

// StatusRequest sets the status of a check-in
type StatusRequest struct {
	Status models.CheckinStatus `json:"status"`
}

// SetStatus handles PUT /api/v1/admin/checkins/{id}/status
func (h *CheckinHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.checkins.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status); err != nil {
		respondServiceError(w, err, "Failed to update check-in")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/v1/admin/checkins/{id}
func (h *CheckinHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.checkins.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err, "Failed to delete check-in")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
