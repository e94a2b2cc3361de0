package handlers

import (
	"context"
	"io"
	"net/http"

	"foodbank-checkin-backend/internal/models"
	"foodbank-checkin-backend/internal/services"
	"foodbank-checkin-backend/internal/view"

	"github.com/go-chi/chi/v5"
)

// Stubs embed the interface so only the methods a test sets are callable.

type stubRegistrations struct {
	RegistrationService
	submit         func(services.Submission) (*services.SubmitResult, error)
	get            func(id string) (*models.Registration, error)
	active         func(view.Query) (view.Result, error)
	updateIdentity func(id string, patch services.IdentityPatch, actor string) (*models.Registration, *services.BatchResult, error)
	batch          func(ids []string, field, value, actor string) (*services.BatchResult, error)
}

func (s *stubRegistrations) Submit(_ context.Context, sub services.Submission) (*services.SubmitResult, error) {
	return s.submit(sub)
}

func (s *stubRegistrations) Get(_ context.Context, id string) (*models.Registration, error) {
	return s.get(id)
}

func (s *stubRegistrations) Active(_ context.Context, q view.Query) (view.Result, error) {
	return s.active(q)
}

func (s *stubRegistrations) UpdateIdentity(_ context.Context, id string, patch services.IdentityPatch, actor string) (*models.Registration, *services.BatchResult, error) {
	return s.updateIdentity(id, patch, actor)
}

func (s *stubRegistrations) BatchUpdate(_ context.Context, ids []string, field, value, actor string) (*services.BatchResult, error) {
	return s.batch(ids, field, value, actor)
}

type stubCheckins struct {
	CheckinService
	checkIn func(services.CheckinRequest) (*services.CheckinResult, error)
	queue   func() ([]*models.Checkin, error)
	list    func(statuses []string) ([]*models.Checkin, error)
	serve   func(id string) error
}

func (s *stubCheckins) CheckIn(_ context.Context, req services.CheckinRequest) (*services.CheckinResult, error) {
	return s.checkIn(req)
}

func (s *stubCheckins) Queue(context.Context) ([]*models.Checkin, error) {
	return s.queue()
}

func (s *stubCheckins) List(_ context.Context, statuses []string) ([]*models.Checkin, error) {
	return s.list(statuses)
}

func (s *stubCheckins) Serve(_ context.Context, id string) error {
	return s.serve(id)
}

type stubAuth struct {
	signIn func(email, password string) (*services.SignInResult, error)
}

func (s *stubAuth) SignIn(_ context.Context, email, password string) (*services.SignInResult, error) {
	return s.signIn(email, password)
}

func (s *stubAuth) ValidateJWT(token string) (*services.Principal, error) {
	if token != "staff-token" {
		return nil, services.ErrInvalidCredentials
	}
	return &services.Principal{UserID: "admin-1", Email: "staff@example.org"}, nil
}

type stubSignatures struct {
	saved map[string]string
}

func (s *stubSignatures) Save(_ context.Context, adminID, dataURL string) error {
	s.saved[adminID] = dataURL
	return nil
}

func (s *stubSignatures) Get(_ context.Context, adminID string) (string, error) {
	v, ok := s.saved[adminID]
	if !ok {
		return "", services.ErrSignatureNotFound
	}
	return v, nil
}

type stubExports struct {
	err error
}

func (s *stubExports) WriteCSV(_ context.Context, w io.Writer) error {
	if s.err != nil {
		return s.err
	}
	_, err := io.WriteString(w, "id,firstName\nA1,Jane\n")
	return err
}

func (s *stubExports) WriteXLSX(_ context.Context, w io.Writer) error {
	if s.err != nil {
		return s.err
	}
	_, err := w.Write([]byte("PK"))
	return err
}

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error { return s.err }

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
