package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"foodbank-checkin-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const registrationColumns = `id, form_data, admin_data, submitted_at, updated_at, last_check_in, served_at, archived_at`

// RegistrationRepository stores registration documents
type RegistrationRepository struct {
	db *pgxpool.Pool
}

// NewRegistrationRepository creates a new registration repository
func NewRegistrationRepository(db *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// Create inserts a new registration
func (r *RegistrationRepository) Create(ctx context.Context, reg *models.Registration) error {
	formData, adminData, err := encodeRegistration(reg)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO registrations (id, form_data, admin_data, dob_key, submitted_at, updated_at, last_check_in, served_at, archived_at)
		VALUES ($1, $2::jsonb, $3::jsonb, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.Exec(ctx, query,
		reg.ID, formData, adminData, models.NormalizeDOB(reg.FormData.DateOfBirth),
		reg.SubmittedAt, reg.UpdatedAt, reg.LastCheckIn, reg.ServedAt, reg.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create registration: %w", err)
	}
	return nil
}

// GetByID retrieves a registration by document id
func (r *RegistrationRepository) GetByID(ctx context.Context, id string) (*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1`
	reg, err := scanRegistration(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("registration %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return reg, nil
}

// GetByExternalID retrieves the most recently touched registration whose
// formData.id matches
func (r *RegistrationRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Registration, error) {
	query := `
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE form_data->>'id' = $1
		ORDER BY COALESCE(updated_at, submitted_at) DESC
		LIMIT 1
	`
	reg, err := scanRegistration(r.db.QueryRow(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("registration %s: %w", externalID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get registration by external id: %w", err)
	}
	return reg, nil
}

// FindByIdentity returns every registration with the given trimmed names and
// normalised date of birth, archived ones included
func (r *RegistrationRepository) FindByIdentity(ctx context.Context, firstName, lastName, dobKey string) ([]*models.Registration, error) {
	query := `
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE btrim(form_data->>'firstName') = $1
		  AND btrim(form_data->>'lastName') = $2
		  AND dob_key = $3
		ORDER BY submitted_at
	`
	return r.queryRegistrations(ctx, query, firstName, lastName, dobKey)
}

// FindByLastNameDOB returns registrations matching a last name and date of birth
func (r *RegistrationRepository) FindByLastNameDOB(ctx context.Context, lastName, dobKey string) ([]*models.Registration, error) {
	query := `
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE btrim(form_data->>'lastName') = $1
		  AND dob_key = $2
		ORDER BY COALESCE(updated_at, submitted_at) DESC
	`
	return r.queryRegistrations(ctx, query, lastName, dobKey)
}

// List returns all registrations, newest first
func (r *RegistrationRepository) List(ctx context.Context) ([]*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations ORDER BY submitted_at DESC`
	return r.queryRegistrations(ctx, query)
}

// Update replaces the documents of an existing registration. submitted_at is
// never rewritten.
func (r *RegistrationRepository) Update(ctx context.Context, reg *models.Registration) error {
	formData, adminData, err := encodeRegistration(reg)
	if err != nil {
		return err
	}
	query := `
		UPDATE registrations
		SET form_data = $2::jsonb, admin_data = $3::jsonb, dob_key = $4,
		    updated_at = $5, last_check_in = $6, served_at = $7, archived_at = $8
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query,
		reg.ID, formData, adminData, models.NormalizeDOB(reg.FormData.DateOfBirth),
		reg.UpdatedAt, reg.LastCheckIn, reg.ServedAt, reg.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update registration: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("registration %s: %w", reg.ID, ErrNotFound)
	}
	return nil
}

// SetLastCheckIn stamps the last check-in time
func (r *RegistrationRepository) SetLastCheckIn(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE registrations SET last_check_in = $2, updated_at = $2 WHERE id = $1`
	result, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to update last check-in: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("registration %s: %w", id, ErrNotFound)
	}
	return nil
}

// Delete removes a registration permanently
func (r *RegistrationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM registrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete registration: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("registration %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *RegistrationRepository) queryRegistrations(ctx context.Context, query string, args ...any) ([]*models.Registration, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query registrations: %w", err)
	}
	defer rows.Close()

	var regs []*models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registrations: %w", err)
	}
	return regs, nil
}

func scanRegistration(row pgx.Row) (*models.Registration, error) {
	var (
		reg       models.Registration
		formData  []byte
		adminData []byte
	)
	err := row.Scan(
		&reg.ID, &formData, &adminData, &reg.SubmittedAt,
		&reg.UpdatedAt, &reg.LastCheckIn, &reg.ServedAt, &reg.ArchivedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(formData, &reg.FormData); err != nil {
		return nil, fmt.Errorf("failed to decode form data of %s: %w", reg.ID, err)
	}
	if len(adminData) > 0 && string(adminData) != "null" {
		reg.AdminData = &models.AdminData{}
		if err := json.Unmarshal(adminData, reg.AdminData); err != nil {
			return nil, fmt.Errorf("failed to decode admin data of %s: %w", reg.ID, err)
		}
	}
	return &reg, nil
}

func encodeRegistration(reg *models.Registration) (string, *string, error) {
	formData, err := json.Marshal(reg.FormData)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode form data: %w", err)
	}
	if reg.AdminData == nil {
		return string(formData), nil, nil
	}
	adminData, err := json.Marshal(reg.AdminData)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode admin data: %w", err)
	}
	s := string(adminData)
	return string(formData), &s, nil
}
