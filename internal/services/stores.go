package services

import (
	"context"
	"time"

	"foodbank-checkin-backend/internal/models"
	"foodbank-checkin-backend/internal/repository"
)

// RegistrationStore is the registrations collection
type RegistrationStore interface {
	Create(ctx context.Context, reg *models.Registration) error
	GetByID(ctx context.Context, id string) (*models.Registration, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Registration, error)
	FindByIdentity(ctx context.Context, firstName, lastName, dobKey string) ([]*models.Registration, error)
	FindByLastNameDOB(ctx context.Context, lastName, dobKey string) ([]*models.Registration, error)
	List(ctx context.Context) ([]*models.Registration, error)
	Update(ctx context.Context, reg *models.Registration) error
	SetLastCheckIn(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// CheckinStore is the checkins collection
type CheckinStore interface {
	Create(ctx context.Context, c *models.Checkin) error
	GetByID(ctx context.Context, id string) (*models.Checkin, error)
	FindByUserID(ctx context.Context, userID string) ([]*models.Checkin, error)
	HasWaiting(ctx context.Context, userID string) (bool, error)
	ListByStatus(ctx context.Context, statuses []string, limit int) ([]*models.Checkin, error)
	List(ctx context.Context) ([]*models.Checkin, error)
	MergeIdentity(ctx context.Context, id string, identity repository.CheckinIdentity, at time.Time) error
	UpdateStatus(ctx context.Context, id string, status models.CheckinStatus, servedAt *time.Time, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// UserStore holds admin accounts
type UserStore interface {
	Create(ctx context.Context, user *models.AdminUser) error
	GetByID(ctx context.Context, id string) (*models.AdminUser, error)
	GetByEmail(ctx context.Context, email string) (*models.AdminUser, error)
}

// RenewalCache keeps renewal snapshots between the expired check-in and the
// renewal submission
type RenewalCache interface {
	SaveRenewal(ctx context.Context, token string, snap models.RenewalSnapshot, ttl time.Duration) error
	GetRenewal(ctx context.Context, token string) (*models.RenewalSnapshot, error)
	DeleteRenewal(ctx context.Context, token string) error
}

// SignatureCache keeps staff signature images keyed by admin id
type SignatureCache interface {
	GetSignature(ctx context.Context, adminID string) (string, error)
	SetSignature(ctx context.Context, adminID, dataURL string, ttl time.Duration) error
}

// ObjectStore stores binary objects
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, string, error)
}
