package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"foodbank-checkin-backend/internal/metrics"
	"foodbank-checkin-backend/internal/models"
	"foodbank-checkin-backend/internal/queue"
	"foodbank-checkin-backend/internal/repository"
	"foodbank-checkin-backend/internal/view"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Resolution is the operator's answer to a duplicate match
type Resolution string

const (
	ResolutionUpdate Resolution = "update"
	ResolutionCreate Resolution = "create"
	ResolutionCancel Resolution = "cancel"
)

// SubmitOutcome tells the caller what a submission did
type SubmitOutcome string

const (
	OutcomeCreated         SubmitOutcome = "created"
	OutcomeUpdated         SubmitOutcome = "updated"
	OutcomeRenewed         SubmitOutcome = "renewed"
	OutcomeDuplicatesFound SubmitOutcome = "duplicates_found"
	OutcomeCancelled       SubmitOutcome = "cancelled"
)

// Fields an admin can set across many registrations at once
const (
	BatchFieldLocation      = "location"
	BatchFieldHousehold     = "household"
	BatchFieldTefapDate     = "tefapDate"
	BatchFieldTefapEligible = "tefapEligible"
	BatchFieldArchived      = "archived"
)

// Submission is a registration form as posted by the public intake screen
type Submission struct {
	FormData models.FormData `json:"formData"`
	// Renewal is set when the person arrived from an expired check-in
	Renewal      bool       `json:"renewal"`
	RenewalToken string     `json:"renewalToken,omitempty"`
	Resolution   Resolution `json:"resolution,omitempty" validate:"omitempty,oneof=update create cancel"`
	TargetID     string     `json:"targetId,omitempty" validate:"required_if=Resolution update"`
}

// SubmitResult reports a submission
type SubmitResult struct {
	Outcome      SubmitOutcome          `json:"outcome"`
	Registration *models.Registration   `json:"registration,omitempty"`
	Matches      []MatchSummary         `json:"matches,omitempty"`
	Cascade      *BatchResult           `json:"cascade,omitempty"`
	// Checkin is the queue entry created by a renewal
	Checkin *models.Checkin `json:"checkin,omitempty"`
	// CheckinError is set when the renewal was saved but queueing failed
	CheckinError string `json:"checkinError,omitempty"`
}

// MatchSummary is what an intake screen sees of a possible duplicate. It is
// enough to pick a record and nothing more.
type MatchSummary struct {
	ID          string    `json:"id"`
	ExternalID  string    `json:"externalId,omitempty"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	DateOfBirth string    `json:"dateOfBirth"`
	SubmittedAt time.Time `json:"submittedAt"`
	Archived    bool      `json:"archived"`
}

// IdentityPatch is a staff edit of the fields check-ins mirror. Nil fields are
// left alone.
type IdentityPatch struct {
	ID            *string `json:"id,omitempty"`
	FirstName     *string `json:"firstName,omitempty"`
	LastName      *string `json:"lastName,omitempty"`
	Household     *string `json:"household,omitempty"`
	Location      *string `json:"location,omitempty"`
	TefapDate     *string `json:"tefapDate,omitempty"`
	TefapEligible *bool   `json:"tefapEligible,omitempty"`
}

// Enqueuer queues an eligible registration for service
type Enqueuer interface {
	Enqueue(ctx context.Context, reg *models.Registration) (*models.Checkin, error)
}

// RegistrationService handles intake and staff edits of registrations
type RegistrationService struct {
	registrations RegistrationStore
	checkins      CheckinStore
	queue         Enqueuer
	renewals      RenewalCache
	events        EventPublisher
	metrics       *metrics.Metrics
	now           func() time.Time
}

// RegistrationOption customises a RegistrationService
type RegistrationOption func(*RegistrationService)

// WithRegistrationClock overrides the clock
func WithRegistrationClock(now func() time.Time) RegistrationOption {
	return func(s *RegistrationService) { s.now = now }
}

// WithRegistrationEvents publishes registration events
func WithRegistrationEvents(pub EventPublisher) RegistrationOption {
	return func(s *RegistrationService) { s.events = pub }
}

// WithRegistrationMetrics records submission outcomes and mirror updates
func WithRegistrationMetrics(m *metrics.Metrics) RegistrationOption {
	return func(s *RegistrationService) { s.metrics = m }
}

// NewRegistrationService creates a new registration service
func NewRegistrationService(registrations RegistrationStore, checkins CheckinStore, q Enqueuer, renewals RenewalCache, opts ...RegistrationOption) *RegistrationService {
	s := &RegistrationService{
		registrations: registrations,
		checkins:      checkins,
		queue:         q,
		renewals:      renewals,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit saves a registration form, resolving it against existing
// registrations of the same person
func (s *RegistrationService) Submit(ctx context.Context, sub Submission) (*SubmitResult, error) {
	trimForm(&sub.FormData)
	if err := validateSubmission(sub); err != nil {
		return nil, err
	}

	result, err := s.submit(ctx, sub)
	if err != nil {
		s.metrics.Submission("error")
		return nil, err
	}
	s.metrics.Submission(string(result.Outcome))
	return result, nil
}

func (s *RegistrationService) submit(ctx context.Context, sub Submission) (*SubmitResult, error) {
	if sub.Resolution == ResolutionCancel {
		return &SubmitResult{Outcome: OutcomeCancelled}, nil
	}

	if sub.Renewal {
		if snap := s.renewalSnapshot(ctx, sub.RenewalToken); snap != nil {
			return s.renew(ctx, snap.RegistrationID, sub)
		}
		matches, err := s.FindDuplicates(ctx, sub.FormData.FirstName, sub.FormData.LastName, sub.FormData.DateOfBirth)
		if err != nil {
			return nil, err
		}
		if len(matches) > 0 {
			return s.renew(ctx, matches[0].ID, sub)
		}
		return s.create(ctx, sub.FormData)
	}

	switch sub.Resolution {
	case ResolutionUpdate:
		if err := s.requireMatch(ctx, sub); err != nil {
			return nil, err
		}
		reg, cascade, err := s.replace(ctx, sub.TargetID, sub.FormData, false)
		if err != nil {
			return nil, err
		}
		return &SubmitResult{Outcome: OutcomeUpdated, Registration: reg, Cascade: cascade}, nil
	case ResolutionCreate:
		return s.create(ctx, sub.FormData)
	}

	matches, err := s.FindDuplicates(ctx, sub.FormData.FirstName, sub.FormData.LastName, sub.FormData.DateOfBirth)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return s.create(ctx, sub.FormData)
	}
	return &SubmitResult{Outcome: OutcomeDuplicatesFound, Matches: summarize(matches)}, nil
}

// requireMatch allows an update only of a registration the duplicate search
// returns for the submitted person. Any other target reads as not found.
func (s *RegistrationService) requireMatch(ctx context.Context, sub Submission) error {
	matches, err := s.FindDuplicates(ctx, sub.FormData.FirstName, sub.FormData.LastName, sub.FormData.DateOfBirth)
	if err != nil {
		return err
	}
	for _, m := range matches {
		if m.ID == sub.TargetID {
			return nil
		}
	}
	return fmt.Errorf("registration %s: %w", sub.TargetID, repository.ErrNotFound)
}

func summarize(regs []*models.Registration) []MatchSummary {
	out := make([]MatchSummary, 0, len(regs))
	for _, r := range regs {
		out = append(out, MatchSummary{
			ID:          r.ID,
			ExternalID:  r.FormData.ID,
			FirstName:   r.FormData.FirstName,
			LastName:    r.FormData.LastName,
			DateOfBirth: r.FormData.DateOfBirth,
			SubmittedAt: r.SubmittedAt,
			Archived:    r.FormData.Archived,
		})
	}
	return out
}

func trimForm(f *models.FormData) {
	f.ID = strings.TrimSpace(f.ID)
	f.FirstName = models.NormalizeName(f.FirstName)
	f.LastName = models.NormalizeName(f.LastName)
	f.DateOfBirth = strings.TrimSpace(f.DateOfBirth)
}

func validateSubmission(sub Submission) error {
	fields := map[string]string{}
	if err := validateStruct(sub); err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		for k, v := range verr.Fields {
			fields[k] = v
		}
	}
	if !sub.FormData.AgreedToCert {
		fields["agreedToCert"] = "must be accepted"
	}
	if strings.TrimSpace(sub.FormData.Signature) == "" {
		fields["signature"] = "is required"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// renewalSnapshot resolves a renewal token. A missing or unreadable snapshot
// sends the renewal through the duplicate search instead.
func (s *RegistrationService) renewalSnapshot(ctx context.Context, token string) *models.RenewalSnapshot {
	if token == "" || s.renewals == nil {
		return nil
	}
	snap, err := s.renewals.GetRenewal(ctx, token)
	if err != nil {
		log.Debug().Err(err).Msg("Renewal snapshot unavailable")
		return nil
	}
	return snap
}

// FindDuplicates returns every registration with the same trimmed names and
// date of birth, archived ones included
func (s *RegistrationService) FindDuplicates(ctx context.Context, firstName, lastName, dateOfBirth string) ([]*models.Registration, error) {
	return s.registrations.FindByIdentity(ctx,
		models.NormalizeName(firstName),
		models.NormalizeName(lastName),
		models.NormalizeDOB(dateOfBirth),
	)
}

func (s *RegistrationService) create(ctx context.Context, form models.FormData) (*SubmitResult, error) {
	now := s.now()
	id := uuid.New().String()

	form.ID = id
	form.TefapEligible = false
	form.TefapDate = models.Today(now)
	form.Archived = false

	reg := &models.Registration{
		ID:          id,
		FormData:    form,
		SubmittedAt: now,
		UpdatedAt:   &now,
	}
	if err := s.registrations.Create(ctx, reg); err != nil {
		return nil, err
	}

	log.Info().Str("registration_id", id).Msg("Registration created")
	publishEvent(ctx, s.events, s.metrics, queue.EventRegistrationCreated, now, reg)

	return &SubmitResult{Outcome: OutcomeCreated, Registration: reg}, nil
}

// renew updates the registration in place, restarts its eligibility window
// and queues the person. The registration stays saved when queueing fails.
func (s *RegistrationService) renew(ctx context.Context, id string, sub Submission) (*SubmitResult, error) {
	reg, cascade, err := s.replace(ctx, id, sub.FormData, true)
	if err != nil {
		return nil, err
	}

	if sub.RenewalToken != "" && s.renewals != nil {
		if err := s.renewals.DeleteRenewal(ctx, sub.RenewalToken); err != nil {
			log.Warn().Err(err).Msg("Failed to drop renewal snapshot")
		}
	}
	publishEvent(ctx, s.events, s.metrics, queue.EventRegistrationRenewed, s.now(), reg)

	result := &SubmitResult{Outcome: OutcomeRenewed, Registration: reg, Cascade: cascade}
	if s.queue == nil {
		return result, nil
	}
	checkin, err := s.queue.Enqueue(ctx, reg)
	if err != nil {
		log.Error().Err(err).Str("registration_id", reg.ID).Msg("Renewal saved but check-in failed")
		result.CheckinError = err.Error()
		return result, nil
	}
	result.Checkin = checkin
	return result, nil
}

// replace overwrites the form of an existing registration. The document id,
// formData.id and submittedAt never change. A renewal restarts tefapDate and
// reactivates the registration; a plain update keeps the eligibility fields.
func (s *RegistrationService) replace(ctx context.Context, id string, form models.FormData, renewal bool) (*models.Registration, *BatchResult, error) {
	reg, err := s.registrations.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	before := identityOf(reg)
	previousExternalID := reg.ExternalID()
	existing := reg.FormData
	now := s.now()

	form.ID = existing.ID
	form.TefapEligible = existing.TefapEligible
	form.ArchiveDate = existing.ArchiveDate
	form.ArchivedDate = existing.ArchivedDate
	if form.Household == "" {
		form.Household = existing.Household
	}
	if form.Location == "" {
		form.Location = existing.Location
	}
	if renewal {
		form.TefapDate = models.Today(now)
		form.Archived = false
		reg.ArchivedAt = nil
	} else {
		form.TefapDate = existing.TefapDate
		form.Archived = existing.Archived
	}

	reg.FormData = form
	reg.UpdatedAt = &now
	if err := s.registrations.Update(ctx, reg); err != nil {
		return nil, nil, err
	}
	log.Info().Str("registration_id", reg.ID).Bool("renewal", renewal).Msg("Registration updated")

	if identityOf(reg) == before {
		return reg, nil, nil
	}
	return reg, propagateIdentity(ctx, s.checkins, s.metrics, reg, previousExternalID, now), nil
}

// Get returns a registration by document id
func (s *RegistrationService) Get(ctx context.Context, id string) (*models.Registration, error) {
	return s.registrations.GetByID(ctx, id)
}

// List returns every registration
func (s *RegistrationService) List(ctx context.Context) ([]*models.Registration, error) {
	return s.registrations.List(ctx)
}

// Active returns one page of the active registrations view
func (s *RegistrationService) Active(ctx context.Context, q view.Query) (view.Result, error) {
	regs, err := s.registrations.List(ctx)
	if err != nil {
		return view.Result{}, err
	}
	return view.Active(regs, q), nil
}

// Served returns the merged served view of archived registrations and
// finished check-ins
func (s *RegistrationService) Served(ctx context.Context) ([]view.ServedEntry, error) {
	regs, err := s.registrations.List(ctx)
	if err != nil {
		return nil, err
	}
	checkins, err := s.checkins.ListByStatus(ctx, view.ServedStatuses(), 0)
	if err != nil {
		return nil, err
	}
	return view.Served(regs, checkins), nil
}

// LinkedCheckins returns the check-ins that reference a registration
func (s *RegistrationService) LinkedCheckins(ctx context.Context, id string) ([]view.CheckinRef, error) {
	reg, err := s.registrations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	all, err := s.checkins.List(ctx)
	if err != nil {
		return nil, err
	}
	return view.ResolveLinkedCheckins(reg, all), nil
}

// UpdateIdentity applies a staff edit and carries the new identity over to
// the linked check-ins. The registration write must succeed; check-in writes
// are reported in the batch result.
func (s *RegistrationService) UpdateIdentity(ctx context.Context, id string, patch IdentityPatch, actor string) (*models.Registration, *BatchResult, error) {
	if err := validatePatch(patch); err != nil {
		return nil, nil, err
	}
	reg, err := s.registrations.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	previousExternalID := reg.ExternalID()
	before := identityOf(reg)
	now := s.now()

	f := &reg.FormData
	if patch.ID != nil {
		f.ID = strings.TrimSpace(*patch.ID)
	}
	if patch.FirstName != nil {
		f.FirstName = models.NormalizeName(*patch.FirstName)
	}
	if patch.LastName != nil {
		f.LastName = models.NormalizeName(*patch.LastName)
	}
	if patch.Household != nil {
		f.Household = *patch.Household
	}
	if patch.Location != nil {
		f.Location = strings.TrimSpace(*patch.Location)
	}
	if patch.TefapDate != nil {
		f.TefapDate = strings.TrimSpace(*patch.TefapDate)
	}
	if patch.TefapEligible != nil {
		f.TefapEligible = *patch.TefapEligible
	}
	stampAdmin(reg, actor, now)

	if err := s.registrations.Update(ctx, reg); err != nil {
		return nil, nil, err
	}
	log.Info().Str("registration_id", id).Str("actor", actor).Msg("Registration identity updated")

	result := NewBatchResult()
	if identityOf(reg) != before {
		result = propagateIdentity(ctx, s.checkins, s.metrics, reg, previousExternalID, now)
	}
	return reg, result, nil
}

func validatePatch(p IdentityPatch) error {
	fields := map[string]string{}
	blank := func(name string, v *string) {
		if v != nil && strings.TrimSpace(*v) == "" {
			fields[name] = "must not be blank"
		}
	}
	blank("id", p.ID)
	blank("firstName", p.FirstName)
	blank("lastName", p.LastName)
	if p.TefapDate != nil && strings.TrimSpace(*p.TefapDate) != "" {
		if _, ok := models.ParseDate(*p.TefapDate); !ok {
			fields["tefapDate"] = "is not a date"
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func stampAdmin(reg *models.Registration, actor string, now time.Time) {
	if reg.AdminData == nil {
		reg.AdminData = &models.AdminData{}
	}
	reg.AdminData.UpdatedBy = actor
	reg.AdminData.LastUpdated = &now
	reg.UpdatedAt = &now
}

// UpdateAdminData replaces the staff eligibility determination
func (s *RegistrationService) UpdateAdminData(ctx context.Context, id string, data models.AdminData, actor string) (*models.Registration, error) {
	reg, err := s.registrations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if data.IsEligible && data.IsIneligible {
		return nil, invalid("isEligible", "cannot be set together with isIneligible")
	}
	reg.AdminData = &data
	stampAdmin(reg, actor, s.now())
	if err := s.registrations.Update(ctx, reg); err != nil {
		return nil, err
	}
	log.Info().Str("registration_id", id).Str("actor", actor).Msg("Admin data updated")
	return reg, nil
}

// SetArchived marks a registration as served or brings it back
func (s *RegistrationService) SetArchived(ctx context.Context, id string, archived bool) (*models.Registration, error) {
	reg, err := s.registrations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	setArchived(reg, archived, now)
	reg.UpdatedAt = &now
	if err := s.registrations.Update(ctx, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func setArchived(reg *models.Registration, archived bool, now time.Time) {
	reg.FormData.Archived = archived
	if archived {
		reg.ArchivedAt = &now
	} else {
		reg.ArchivedAt = nil
	}
}

// Delete removes a registration permanently. Its check-ins are kept.
func (s *RegistrationService) Delete(ctx context.Context, id string) error {
	if err := s.registrations.Delete(ctx, id); err != nil {
		return err
	}
	log.Info().Str("registration_id", id).Msg("Registration deleted")
	return nil
}

// BatchUpdate sets one field on many registrations. Every registration is
// written on its own; location and household edits are mirrored to the
// linked check-ins.
func (s *RegistrationService) BatchUpdate(ctx context.Context, ids []string, field, value, actor string) (*BatchResult, error) {
	apply, mirrored, err := batchSetter(field, value)
	if err != nil {
		return nil, err
	}

	result := NewBatchResult()
	for _, id := range ids {
		reg, err := s.registrations.GetByID(ctx, id)
		if err != nil {
			result.fail(registrationPath(id), err)
			continue
		}
		previousExternalID := reg.ExternalID()
		now := s.now()
		apply(reg, now)
		stampAdmin(reg, actor, now)
		if err := s.registrations.Update(ctx, reg); err != nil {
			log.Error().Err(err).Str("registration_id", id).Msg("Batch update failed")
			result.fail(registrationPath(id), err)
			continue
		}
		result.succeed(registrationPath(id))
		if mirrored {
			result.Merge(propagateIdentity(ctx, s.checkins, s.metrics, reg, previousExternalID, now))
		}
	}

	result.sort()
	log.Info().
		Str("field", field).
		Int("succeeded", len(result.Succeeded)).
		Int("failed", len(result.Failed)).
		Msg("Batch update finished")
	return result, nil
}

func batchSetter(field, value string) (func(*models.Registration, time.Time), bool, error) {
	switch field {
	case BatchFieldLocation:
		v := strings.TrimSpace(value)
		return func(r *models.Registration, _ time.Time) { r.FormData.Location = v }, true, nil
	case BatchFieldHousehold:
		return func(r *models.Registration, _ time.Time) { r.FormData.Household = value }, true, nil
	case BatchFieldTefapDate:
		v := strings.TrimSpace(value)
		if _, ok := models.ParseDate(v); !ok {
			return nil, false, invalid("value", "is not a date")
		}
		return func(r *models.Registration, _ time.Time) { r.FormData.TefapDate = v }, false, nil
	case BatchFieldTefapEligible:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, false, invalid("value", "must be true or false")
		}
		return func(r *models.Registration, _ time.Time) { r.FormData.TefapEligible = b }, false, nil
	case BatchFieldArchived:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, false, invalid("value", "must be true or false")
		}
		return func(r *models.Registration, now time.Time) { setArchived(r, b, now) }, false, nil
	}
	return nil, false, invalid("field", fmt.Sprintf("cannot batch update %q", field))
}
