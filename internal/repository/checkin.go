package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"foodbank-checkin-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	checkinColumns = `id, user_id, name, check_in_time, status, phone, household, location, form_data, served_at, updated_at`

	uniqueViolation = "23505"
	oneWaitingIndex = "checkins_one_waiting_idx"
)

// CheckinIdentity is the registration-owned part of a check-in document
type CheckinIdentity struct {
	UserID    string
	Name      string
	Household string
	Location  string
	FormData  models.CheckinFormData
}

// CheckinRepository stores check-in documents
type CheckinRepository struct {
	db *pgxpool.Pool
}

// NewCheckinRepository creates a new check-in repository
func NewCheckinRepository(db *pgxpool.Pool) *CheckinRepository {
	return &CheckinRepository{db: db}
}

// Create inserts a check-in. A second waiting check-in for the same user
// fails with ErrAlreadyWaiting.
func (r *CheckinRepository) Create(ctx context.Context, c *models.Checkin) error {
	formData, err := json.Marshal(c.FormData)
	if err != nil {
		return fmt.Errorf("failed to encode check-in form data: %w", err)
	}
	query := `
		INSERT INTO checkins (id, user_id, name, check_in_time, status, phone, household, location, form_data, served_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11)
	`
	_, err = r.db.Exec(ctx, query,
		c.ID, c.UserID, c.Name, c.CheckInTime, string(c.Status), c.Phone,
		c.Household, c.Location, string(formData), c.ServedAt, c.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == oneWaitingIndex {
			return fmt.Errorf("check-in for %s: %w", c.UserID, ErrAlreadyWaiting)
		}
		return fmt.Errorf("failed to create check-in: %w", err)
	}
	return nil
}

// GetByID retrieves a check-in by id
func (r *CheckinRepository) GetByID(ctx context.Context, id string) (*models.Checkin, error) {
	query := `SELECT ` + checkinColumns + ` FROM checkins WHERE id = $1`
	c, err := scanCheckin(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("check-in %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get check-in: %w", err)
	}
	return c, nil
}

// FindByUserID returns every check-in referencing userID
func (r *CheckinRepository) FindByUserID(ctx context.Context, userID string) ([]*models.Checkin, error) {
	query := `SELECT ` + checkinColumns + ` FROM checkins WHERE user_id = $1 ORDER BY check_in_time DESC`
	return r.queryCheckins(ctx, query, userID)
}

// HasWaiting checks whether userID already has a waiting check-in
func (r *CheckinRepository) HasWaiting(ctx context.Context, userID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM checkins WHERE user_id = $1 AND status = $2)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, userID, string(models.CheckinWaiting)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check waiting check-in: %w", err)
	}
	return exists, nil
}

// ListByStatus returns check-ins in any of the given statuses, newest first.
// A limit of zero means no limit.
func (r *CheckinRepository) ListByStatus(ctx context.Context, statuses []string, limit int) ([]*models.Checkin, error) {
	query := `SELECT ` + checkinColumns + ` FROM checkins WHERE lower(status) = ANY($1) ORDER BY check_in_time DESC`
	args := []any{statuses}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return r.queryCheckins(ctx, query, args...)
}

// List returns all check-ins, newest first
func (r *CheckinRepository) List(ctx context.Context) ([]*models.Checkin, error) {
	query := `SELECT ` + checkinColumns + ` FROM checkins ORDER BY check_in_time DESC`
	return r.queryCheckins(ctx, query)
}

// MergeIdentity overwrites the registration-owned fields of a check-in. The
// mirrored form subset is merged into the stored document so keys owned by
// the check-in survive.
func (r *CheckinRepository) MergeIdentity(ctx context.Context, id string, identity CheckinIdentity, at time.Time) error {
	patch, err := json.Marshal(identity.FormData)
	if err != nil {
		return fmt.Errorf("failed to encode check-in mirror: %w", err)
	}
	query := `
		UPDATE checkins
		SET user_id = $2, name = $3, household = $4, location = $5,
		    form_data = form_data || $6::jsonb, updated_at = $7
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query,
		id, identity.UserID, identity.Name, identity.Household, identity.Location, string(patch), at,
	)
	if err != nil {
		return fmt.Errorf("failed to update check-in mirror: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("check-in %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateStatus moves a check-in to a new status
func (r *CheckinRepository) UpdateStatus(ctx context.Context, id string, status models.CheckinStatus, servedAt *time.Time, at time.Time) error {
	query := `UPDATE checkins SET status = $2, served_at = COALESCE($3, served_at), updated_at = $4 WHERE id = $1`
	result, err := r.db.Exec(ctx, query, id, string(status), servedAt, at)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == oneWaitingIndex {
			return fmt.Errorf("check-in %s: %w", id, ErrAlreadyWaiting)
		}
		return fmt.Errorf("failed to update check-in status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("check-in %s: %w", id, ErrNotFound)
	}
	return nil
}

// Delete removes a check-in permanently
func (r *CheckinRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM checkins WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete check-in: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("check-in %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *CheckinRepository) queryCheckins(ctx context.Context, query string, args ...any) ([]*models.Checkin, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query check-ins: %w", err)
	}
	defer rows.Close()

	var checkins []*models.Checkin
	for rows.Next() {
		c, err := scanCheckin(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan check-in: %w", err)
		}
		checkins = append(checkins, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating check-ins: %w", err)
	}
	return checkins, nil
}

func scanCheckin(row pgx.Row) (*models.Checkin, error) {
	var (
		c        models.Checkin
		status   string
		formData []byte
	)
	err := row.Scan(
		&c.ID, &c.UserID, &c.Name, &c.CheckInTime, &status, &c.Phone,
		&c.Household, &c.Location, &formData, &c.ServedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = models.CheckinStatus(status)
	if err := json.Unmarshal(formData, &c.FormData); err != nil {
		return nil, fmt.Errorf("failed to decode check-in form data of %s: %w", c.ID, err)
	}
	return &c, nil
}
