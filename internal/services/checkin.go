package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"foodbank-checkin-backend/internal/metrics"
	"foodbank-checkin-backend/internal/models"
	"foodbank-checkin-backend/internal/queue"
	"foodbank-checkin-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EligibilityWindow is how long a tefapDate stays valid
const EligibilityWindow = 365 * 24 * time.Hour

// CheckinState is the outcome of a check-in attempt
type CheckinState string

const (
	CheckinNotFound       CheckinState = "not_found"
	CheckinAlreadyWaiting CheckinState = "already_waiting"
	CheckinExpired        CheckinState = "expired"
	CheckinCreated        CheckinState = "created"
)

// User-facing messages per outcome
const (
	MsgNotFound       = "We could not find a registration matching those details. Please check them or register."
	MsgAlreadyWaiting = "You are already checked in. Please wait to be served."
	MsgExpired        = "Your TEFAP eligibility has expired. Please renew your registration to check in."
	MsgWelcome        = "Welcome, %s! You are checked in."
	MsgCheckinFailed  = "Something went wrong while checking you in. Please try again or ask a staff member."
)

// CheckinRequest identifies a person either by id or by last name and date of birth
type CheckinRequest struct {
	ID          string `json:"id"`
	LastName    string `json:"lastName" validate:"required_without=ID"`
	DateOfBirth string `json:"dateOfBirth" validate:"required_without=ID"`
}

// CheckinResult reports a check-in attempt
type CheckinResult struct {
	State          CheckinState     `json:"state"`
	Message        string           `json:"message"`
	RegistrationID string           `json:"registrationId,omitempty"`
	Checkin        *models.Checkin  `json:"checkin,omitempty"`
	TefapExpired   bool             `json:"tefapExpired,omitempty"`
	RenewalToken   string           `json:"renewalToken,omitempty"`
	RenewalForm    *models.FormData `json:"renewalForm,omitempty"`
}

// CheckinService handles check-in attempts and the staff queue
type CheckinService struct {
	registrations RegistrationStore
	checkins      CheckinStore
	renewals      RenewalCache
	events        EventPublisher
	metrics       *metrics.Metrics
	renewalTTL    time.Duration
	now           func() time.Time
}

// CheckinOption customises a CheckinService
type CheckinOption func(*CheckinService)

// WithCheckinClock overrides the clock
func WithCheckinClock(now func() time.Time) CheckinOption {
	return func(s *CheckinService) { s.now = now }
}

// WithCheckinEvents publishes checkin.created events
func WithCheckinEvents(pub EventPublisher) CheckinOption {
	return func(s *CheckinService) { s.events = pub }
}

// WithCheckinMetrics records attempt outcomes
func WithCheckinMetrics(m *metrics.Metrics) CheckinOption {
	return func(s *CheckinService) { s.metrics = m }
}

// WithRenewalTTL sets how long a renewal snapshot stays usable
func WithRenewalTTL(ttl time.Duration) CheckinOption {
	return func(s *CheckinService) { s.renewalTTL = ttl }
}

// NewCheckinService creates a new check-in service. renewals may be nil, in
// which case an expired person renews through the duplicate search.
func NewCheckinService(registrations RegistrationStore, checkins CheckinStore, renewals RenewalCache, opts ...CheckinOption) *CheckinService {
	s := &CheckinService{
		registrations: registrations,
		checkins:      checkins,
		renewals:      renewals,
		renewalTTL:    30 * time.Minute,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckIn looks a person up, checks eligibility and queues them
func (s *CheckinService) CheckIn(ctx context.Context, req CheckinRequest) (*CheckinResult, error) {
	req.ID = models.NormalizeName(req.ID)
	req.LastName = models.NormalizeName(req.LastName)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	reg, err := s.lookup(ctx, req)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.CheckinAttempt(string(CheckinNotFound))
			return &CheckinResult{State: CheckinNotFound, Message: MsgNotFound}, nil
		}
		return nil, err
	}

	if Expired(reg, s.now()) {
		s.metrics.CheckinAttempt(string(CheckinExpired))
		return s.expired(ctx, reg), nil
	}

	checkin, err := s.Enqueue(ctx, reg)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyWaiting) {
			s.metrics.CheckinAttempt(string(CheckinAlreadyWaiting))
			return &CheckinResult{
				State:          CheckinAlreadyWaiting,
				Message:        MsgAlreadyWaiting,
				RegistrationID: reg.ID,
			}, nil
		}
		return nil, err
	}

	s.metrics.CheckinAttempt(string(CheckinCreated))
	return &CheckinResult{
		State:          CheckinCreated,
		Message:        fmt.Sprintf(MsgWelcome, reg.FullName()),
		RegistrationID: reg.ID,
		Checkin:        checkin,
	}, nil
}

// Expired reports whether the registration's tefapDate is more than a year
// before today. A missing or unreadable tefapDate does not expire.
func Expired(reg *models.Registration, now time.Time) bool {
	t, ok := models.ParseDate(reg.FormData.TefapDate)
	if !ok {
		return false
	}
	today, _ := models.ParseDate(models.Today(now))
	return today.Sub(t) > EligibilityWindow
}

func (s *CheckinService) lookup(ctx context.Context, req CheckinRequest) (*models.Registration, error) {
	if req.ID != "" {
		reg, err := s.registrations.GetByExternalID(ctx, req.ID)
		if err == nil || !errors.Is(err, repository.ErrNotFound) {
			return reg, err
		}
		return s.registrations.GetByID(ctx, req.ID)
	}

	regs, err := s.registrations.FindByLastNameDOB(ctx, req.LastName, models.NormalizeDOB(req.DateOfBirth))
	if err != nil {
		return nil, err
	}
	reg := preferredMatch(regs)
	if reg == nil {
		return nil, fmt.Errorf("registration for %s: %w", req.LastName, repository.ErrNotFound)
	}
	return reg, nil
}

// preferredMatch picks the most recently touched non-archived registration,
// falling back to archived ones
func preferredMatch(regs []*models.Registration) *models.Registration {
	if len(regs) == 0 {
		return nil
	}
	sorted := slices.Clone(regs)
	slices.SortStableFunc(sorted, func(a, b *models.Registration) int {
		if a.FormData.Archived != b.FormData.Archived {
			if a.FormData.Archived {
				return 1
			}
			return -1
		}
		return lastTouched(b).Compare(lastTouched(a))
	})
	return sorted[0]
}

func lastTouched(r *models.Registration) time.Time {
	if r.UpdatedAt != nil {
		return *r.UpdatedAt
	}
	return r.SubmittedAt
}

// expired caches a renewal snapshot and asks the person to re-submit
func (s *CheckinService) expired(ctx context.Context, reg *models.Registration) *CheckinResult {
	form := reg.FormData
	form.AgreedToCert = false

	result := &CheckinResult{
		State:          CheckinExpired,
		Message:        MsgExpired,
		RegistrationID: reg.ID,
		TefapExpired:   true,
		RenewalForm:    &form,
	}
	if s.renewals == nil {
		return result
	}

	token := uuid.New().String()
	snap := models.RenewalSnapshot{RegistrationID: reg.ID, FormData: form, CreatedAt: s.now()}
	if err := s.renewals.SaveRenewal(ctx, token, snap, s.renewalTTL); err != nil {
		log.Warn().Err(err).Str("registration_id", reg.ID).Msg("Failed to cache renewal snapshot")
		return result
	}
	result.RenewalToken = token
	return result
}

// Enqueue puts an eligible registration in the waiting queue. It fails with
// repository.ErrAlreadyWaiting when the person is already waiting.
func (s *CheckinService) Enqueue(ctx context.Context, reg *models.Registration) (*models.Checkin, error) {
	userID := reg.ExternalID()

	waiting, err := s.checkins.HasWaiting(ctx, userID)
	if err != nil {
		return nil, err
	}
	if waiting {
		return nil, fmt.Errorf("check-in for %s: %w", userID, repository.ErrAlreadyWaiting)
	}

	now := s.now()
	if err := s.registrations.SetLastCheckIn(ctx, reg.ID, now); err != nil {
		return nil, fmt.Errorf("failed to stamp last check-in: %w", err)
	}
	reg.LastCheckIn = &now

	identity := identityOf(reg)
	checkin := &models.Checkin{
		ID:          uuid.New().String(),
		UserID:      identity.UserID,
		Name:        identity.Name,
		CheckInTime: now,
		Status:      models.CheckinWaiting,
		Phone:       reg.FormData.Phone,
		Household:   identity.Household,
		Location:    identity.Location,
		FormData:    identity.FormData,
	}
	if err := s.checkins.Create(ctx, checkin); err != nil {
		return nil, err
	}

	log.Info().
		Str("checkin_id", checkin.ID).
		Str("user_id", checkin.UserID).
		Msg("Check-in created")
	publishEvent(ctx, s.events, s.metrics, queue.EventCheckinCreated, now, checkin)

	return checkin, nil
}

// Queue returns the waiting check-ins, oldest first
func (s *CheckinService) Queue(ctx context.Context) ([]*models.Checkin, error) {
	waiting, err := s.checkins.ListByStatus(ctx, []string{string(models.CheckinWaiting)}, 0)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(waiting, func(a, b *models.Checkin) int {
		return a.CheckInTime.Compare(b.CheckInTime)
	})
	return waiting, nil
}

// List returns check-ins in the given statuses, or every check-in when none
// are given
func (s *CheckinService) List(ctx context.Context, statuses []string) ([]*models.Checkin, error) {
	if len(statuses) == 0 {
		return s.checkins.List(ctx)
	}
	return s.checkins.ListByStatus(ctx, statuses, 0)
}

// Serve marks a check-in as served and removes it from the queue
func (s *CheckinService) Serve(ctx context.Context, id string) error {
	return s.SetStatus(ctx, id, models.CheckinRemoved)
}

// SetStatus moves a check-in to status. Leaving the queue stamps servedAt.
func (s *CheckinService) SetStatus(ctx context.Context, id string, status models.CheckinStatus) error {
	switch status {
	case models.CheckinWaiting, models.CheckinServed, models.CheckinRemoved:
	default:
		return invalid("status", "must be one of waiting served removed")
	}

	now := s.now()
	var servedAt *time.Time
	if status != models.CheckinWaiting {
		servedAt = &now
	}
	if err := s.checkins.UpdateStatus(ctx, id, status, servedAt, now); err != nil {
		return err
	}
	log.Info().Str("checkin_id", id).Str("status", string(status)).Msg("Check-in status updated")
	return nil
}

// Delete removes a check-in permanently
func (s *CheckinService) Delete(ctx context.Context, id string) error {
	if err := s.checkins.Delete(ctx, id); err != nil {
		return err
	}
	log.Info().Str("checkin_id", id).Msg("Check-in deleted")
	return nil
}
