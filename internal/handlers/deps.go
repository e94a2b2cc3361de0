package handlers

import (
	"context"
	"io"

	"foodbank-checkin-backend/internal/models"
	"foodbank-checkin-backend/internal/services"
	"foodbank-checkin-backend/internal/view"
)

// RegistrationService is what the registration handlers need
type RegistrationService interface {
	Submit(ctx context.Context, sub services.Submission) (*services.SubmitResult, error)
	Get(ctx context.Context, id string) (*models.Registration, error)
	Active(ctx context.Context, q view.Query) (view.Result, error)
	Served(ctx context.Context) ([]view.ServedEntry, error)
	LinkedCheckins(ctx context.Context, id string) ([]view.CheckinRef, error)
	UpdateIdentity(ctx context.Context, id string, patch services.IdentityPatch, actor string) (*models.Registration, *services.BatchResult, error)
	UpdateAdminData(ctx context.Context, id string, data models.AdminData, actor string) (*models.Registration, error)
	SetArchived(ctx context.Context, id string, archived bool) (*models.Registration, error)
	Delete(ctx context.Context, id string) error
	BatchUpdate(ctx context.Context, ids []string, field, value, actor string) (*services.BatchResult, error)
}

// CheckinService is what the check-in handlers need
type CheckinService interface {
	CheckIn(ctx context.Context, req services.CheckinRequest) (*services.CheckinResult, error)
	Queue(ctx context.Context) ([]*models.Checkin, error)
	List(ctx context.Context, statuses []string) ([]*models.Checkin, error)
	Serve(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, status models.CheckinStatus) error
	Delete(ctx context.Context, id string) error
}

// AuthService signs staff in
type AuthService interface {
	SignIn(ctx context.Context, email, password string) (*services.SignInResult, error)
	ValidateJWT(token string) (*services.Principal, error)
}

// SignatureService stores staff signatures
type SignatureService interface {
	Save(ctx context.Context, adminID, dataURL string) error
	Get(ctx context.Context, adminID string) (string, error)
}

// ExportService writes registration spreadsheets
type ExportService interface {
	WriteCSV(ctx context.Context, w io.Writer) error
	WriteXLSX(ctx context.Context, w io.Writer) error
}
