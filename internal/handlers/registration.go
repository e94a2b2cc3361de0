package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"foodbank-checkin-backend/internal/middleware"
	"foodbank-checkin-backend/internal/models"
	"foodbank-checkin-backend/internal/services"
	"foodbank-checkin-backend/internal/view"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// RegistrationHandler handles registration intake and the admin database screens
type RegistrationHandler struct {
	registrations RegistrationService
}

// NewRegistrationHandler creates a new registration handler
func NewRegistrationHandler(registrations RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registrations: registrations}
}

// Submit handles POST /api/v1/registrations
func (h *RegistrationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var sub services.Submission
	if !decodeJSON(w, r, &sub) {
		return
	}

	result, err := h.registrations.Submit(r.Context(), sub)
	if err != nil {
		respondServiceError(w, err, "Failed to save registration")
		return
	}

	status := http.StatusOK
	switch result.Outcome {
	case services.OutcomeCreated:
		status = http.StatusCreated
	case services.OutcomeDuplicatesFound:
		status = http.StatusConflict
	}
	respondJSON(w, status, result)
}

// List handles GET /api/v1/admin/registrations
func (h *RegistrationHandler) List(w http.ResponseWriter, r *http.Request) {
	q, err := parseViewQuery(r)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.registrations.Active(r.Context(), q)
	if err != nil {
		respondServiceError(w, err, "Failed to list registrations")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type queryError string

func (e queryError) Error() string { return string(e) }

// parseViewQuery reads the filters, sort and page of the active listing
func parseViewQuery(r *http.Request) (view.Query, error) {
	v := r.URL.Query()
	q := view.Query{
		Filters: view.Filters{
			FirstName: v.Get("firstName"),
			LastName:  v.Get("lastName"),
			Search:    v.Get("q"),
		},
		Sort: view.Sort{
			Field: v.Get("sort"),
			Desc:  strings.EqualFold(v.Get("dir"), "desc"),
		},
	}

	for name, dst := range map[string]**time.Time{"from": &q.Filters.SubmittedFrom, "to": &q.Filters.SubmittedTo} {
		raw := v.Get(name)
		if raw == "" {
			continue
		}
		t, ok := models.ParseDate(raw)
		if !ok {
			return view.Query{}, queryError(name + " must be a date")
		}
		if name == "to" && len(raw) == len(models.DateLayout) {
			// a bare date includes the whole day
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		*dst = &t
	}

	for name, dst := range map[string]*int{"page": &q.Page.Number, "size": &q.Page.Size} {
		raw := v.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return view.Query{}, queryError(name + " must be a positive number")
		}
		*dst = n
	}
	return q.Normalize(), nil
}

// Get handles GET /api/v1/admin/registrations/{id}
func (h *RegistrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	reg, err := h.registrations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "Failed to get registration")
		return
	}
	respondJSON(w, http.StatusOK, reg)
}

// LinkedCheckins handles GET /api/v1/admin/registrations/{id}/checkins
func (h *RegistrationHandler) LinkedCheckins(w http.ResponseWriter, r *http.Request) {
	refs, err := h.registrations.LinkedCheckins(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "Failed to get linked check-ins")
		return
	}
	if refs == nil {
		refs = []view.CheckinRef{}
	}
	respondJSON(w, http.StatusOK, refs)
}

// IdentityUpdateResponse is the result of a staff identity edit
type IdentityUpdateResponse struct {
	Registration *models.Registration  `json:"registration"`
	Cascade      *services.BatchResult `json:"cascade"`
}

// UpdateIdentity handles PATCH /api/v1/admin/registrations/{id}
func (h *RegistrationHandler) UpdateIdentity(w http.ResponseWriter, r *http.Request) {
	var patch services.IdentityPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	reg, cascade, err := h.registrations.UpdateIdentity(ctx, id, patch, middleware.GetUserEmail(ctx))
	if err != nil {
		respondServiceError(w, err, "Failed to update registration")
		return
	}
	if cascade != nil && len(cascade.Failed) > 0 {
		log.Warn().
			Str("registration_id", id).
			Int("failed", len(cascade.Failed)).
			Msg("Some check-ins were not updated")
	}
	respondJSON(w, http.StatusOK, IdentityUpdateResponse{Registration: reg, Cascade: cascade})
}

// UpdateAdminData handles PUT /api/v1/admin/registrations/{id}/admin-data
func (h *RegistrationHandler) UpdateAdminData(w http.ResponseWriter, r *http.Request) {
	var data models.AdminData
	if !decodeJSON(w, r, &data) {
		return
	}
	ctx := r.Context()
	reg, err := h.registrations.UpdateAdminData(ctx, chi.URLParam(r, "id"), data, middleware.GetUserEmail(ctx))
	if err != nil {
		respondServiceError(w, err, "Failed to update admin data")
		return
	}
	respondJSON(w, http.StatusOK, reg)
}

// Archive handles POST /api/v1/admin/registrations/{id}/archive
func (h *RegistrationHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, true)
}

// Unarchive handles POST /api/v1/admin/registrations/{id}/unarchive
func (h *RegistrationHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, false)
}

func (h *RegistrationHandler) setArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	reg, err := h.registrations.SetArchived(r.Context(), chi.URLParam(r, "id"), archived)
	if err != nil {
		respondServiceError(w, err, "Failed to archive registration")
		return
	}
	respondJSON(w, http.StatusOK, reg)
}

// Delete handles DELETE /api/v1/admin/registrations/{id}
func (h *RegistrationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if err := h.registrations.Delete(ctx, id); err != nil {
		respondServiceError(w, err, "Failed to delete registration")
		return
	}
	log.Info().Str("registration_id", id).Str("actor", middleware.GetUserEmail(ctx)).Msg("Registration deleted by staff")
	w.WriteHeader(http.StatusNoContent)
}

// BatchUpdateRequest sets one field on many registrations
type BatchUpdateRequest struct {
	IDs   []string `json:"ids"`
	Field string   `json:"field"`
	Value string   `json:"value"`
}

// BatchUpdate handles POST /api/v1/admin/registrations/batch
func (h *RegistrationHandler) BatchUpdate(w http.ResponseWriter, r *http.Request) {
	var req BatchUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		respondError(w, "ids is required", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	result, err := h.registrations.BatchUpdate(ctx, req.IDs, req.Field, req.Value, middleware.GetUserEmail(ctx))
	if err != nil {
		respondServiceError(w, err, "Failed to update registrations")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Served handles GET /api/v1/admin/served
func (h *RegistrationHandler) Served(w http.ResponseWriter, r *http.Request) {
	entries, err := h.registrations.Served(r.Context())
	if err != nil {
		respondServiceError(w, err, "Failed to list served")
		return
	}
	if entries == nil {
		entries = []view.ServedEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}
