package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"foodbank-checkin-backend/internal/models"
	"foodbank-checkin-backend/internal/repository"
	"foodbank-checkin-backend/internal/storage"
)

// In-memory stores that behave like the PostgreSQL repositories

type fakeRegistrations struct {
	mu   sync.Mutex
	docs map[string]models.Registration

	failUpdate map[string]error
}

func newFakeRegistrations(regs ...*models.Registration) *fakeRegistrations {
	f := &fakeRegistrations{docs: map[string]models.Registration{}, failUpdate: map[string]error{}}
	for _, r := range regs {
		f.docs[r.ID] = *r
	}
	return f
}

func (f *fakeRegistrations) Create(_ context.Context, reg *models.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[reg.ID]; ok {
		return fmt.Errorf("registration %s exists", reg.ID)
	}
	f.docs[reg.ID] = *reg
	return nil
}

func (f *fakeRegistrations) GetByID(_ context.Context, id string) (*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.docs[id]
	if !ok {
		return nil, fmt.Errorf("registration %s: %w", id, repository.ErrNotFound)
	}
	return &r, nil
}

func (f *fakeRegistrations) GetByExternalID(_ context.Context, externalID string) (*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.docs {
		if r.FormData.ID == externalID {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("registration %s: %w", externalID, repository.ErrNotFound)
}

func (f *fakeRegistrations) FindByIdentity(_ context.Context, firstName, lastName, dobKey string) ([]*models.Registration, error) {
	return f.filter(func(r models.Registration) bool {
		return strings.TrimSpace(r.FormData.FirstName) == firstName &&
			strings.TrimSpace(r.FormData.LastName) == lastName &&
			models.NormalizeDOB(r.FormData.DateOfBirth) == dobKey
	}), nil
}

func (f *fakeRegistrations) FindByLastNameDOB(_ context.Context, lastName, dobKey string) ([]*models.Registration, error) {
	return f.filter(func(r models.Registration) bool {
		return strings.TrimSpace(r.FormData.LastName) == lastName &&
			models.NormalizeDOB(r.FormData.DateOfBirth) == dobKey
	}), nil
}

func (f *fakeRegistrations) List(_ context.Context) ([]*models.Registration, error) {
	return f.filter(func(models.Registration) bool { return true }), nil
}

func (f *fakeRegistrations) filter(keep func(models.Registration) bool) []*models.Registration {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Registration
	for _, r := range f.docs {
		if keep(r) {
			out = append(out, &r)
		}
	}
	slices.SortFunc(out, func(a, b *models.Registration) int {
		if c := a.SubmittedAt.Compare(b.SubmittedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (f *fakeRegistrations) Update(_ context.Context, reg *models.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failUpdate[reg.ID]; err != nil {
		return err
	}
	existing, ok := f.docs[reg.ID]
	if !ok {
		return fmt.Errorf("registration %s: %w", reg.ID, repository.ErrNotFound)
	}
	updated := *reg
	updated.SubmittedAt = existing.SubmittedAt
	f.docs[reg.ID] = updated
	return nil
}

func (f *fakeRegistrations) SetLastCheckIn(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("registration %s: %w", id, repository.ErrNotFound)
	}
	r.LastCheckIn = &at
	f.docs[id] = r
	return nil
}

func (f *fakeRegistrations) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return fmt.Errorf("registration %s: %w", id, repository.ErrNotFound)
	}
	delete(f.docs, id)
	return nil
}

func (f *fakeRegistrations) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

type fakeCheckins struct {
	mu   sync.Mutex
	docs map[string]models.Checkin

	failFind  map[string]error
	failMerge map[string]error
	// skipWaitingCheck makes HasWaiting lie so the unique index is exercised
	skipWaitingCheck bool
}

func newFakeCheckins(cs ...*models.Checkin) *fakeCheckins {
	f := &fakeCheckins{
		docs:      map[string]models.Checkin{},
		failFind:  map[string]error{},
		failMerge: map[string]error{},
	}
	for _, c := range cs {
		f.docs[c.ID] = *c
	}
	return f
}

func (f *fakeCheckins) Create(_ context.Context, c *models.Checkin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.Status == models.CheckinWaiting {
		for _, existing := range f.docs {
			if existing.UserID == c.UserID && existing.Status == models.CheckinWaiting {
				return fmt.Errorf("check-in for %s: %w", c.UserID, repository.ErrAlreadyWaiting)
			}
		}
	}
	f.docs[c.ID] = *c
	return nil
}

func (f *fakeCheckins) GetByID(_ context.Context, id string) (*models.Checkin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.docs[id]
	if !ok {
		return nil, fmt.Errorf("check-in %s: %w", id, repository.ErrNotFound)
	}
	return &c, nil
}

func (f *fakeCheckins) FindByUserID(_ context.Context, userID string) ([]*models.Checkin, error) {
	f.mu.Lock()
	err := f.failFind[userID]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.filter(func(c models.Checkin) bool { return c.UserID == userID }), nil
}

func (f *fakeCheckins) HasWaiting(_ context.Context, userID string) (bool, error) {
	if f.skipWaitingCheck {
		return false, nil
	}
	return len(f.filter(func(c models.Checkin) bool {
		return c.UserID == userID && c.Status == models.CheckinWaiting
	})) > 0, nil
}

func (f *fakeCheckins) ListByStatus(_ context.Context, statuses []string, limit int) ([]*models.Checkin, error) {
	out := f.filter(func(c models.Checkin) bool {
		return slices.Contains(statuses, strings.ToLower(string(c.Status)))
	})
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeCheckins) List(_ context.Context) ([]*models.Checkin, error) {
	out := f.filter(func(models.Checkin) bool { return true })
	slices.Reverse(out)
	return out, nil
}

func (f *fakeCheckins) MergeIdentity(_ context.Context, id string, identity repository.CheckinIdentity, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failMerge[id]; err != nil {
		return err
	}
	c, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("check-in %s: %w", id, repository.ErrNotFound)
	}
	c.UserID = identity.UserID
	c.Name = identity.Name
	c.Household = identity.Household
	c.Location = identity.Location
	c.FormData.ID = identity.FormData.ID
	c.FormData.FirstName = identity.FormData.FirstName
	c.FormData.LastName = identity.FormData.LastName
	if identity.FormData.Location != "" {
		c.FormData.Location = identity.FormData.Location
	}
	if identity.FormData.Household != "" {
		c.FormData.Household = identity.FormData.Household
	}
	c.UpdatedAt = &at
	f.docs[id] = c
	return nil
}

func (f *fakeCheckins) UpdateStatus(_ context.Context, id string, status models.CheckinStatus, servedAt *time.Time, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("check-in %s: %w", id, repository.ErrNotFound)
	}
	c.Status = status
	if servedAt != nil {
		c.ServedAt = servedAt
	}
	c.UpdatedAt = &at
	f.docs[id] = c
	return nil
}

func (f *fakeCheckins) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return fmt.Errorf("check-in %s: %w", id, repository.ErrNotFound)
	}
	delete(f.docs, id)
	return nil
}

// filter returns matches oldest first
func (f *fakeCheckins) filter(keep func(models.Checkin) bool) []*models.Checkin {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Checkin
	for _, c := range f.docs {
		if keep(c) {
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *models.Checkin) int {
		if c := a.CheckInTime.Compare(b.CheckInTime); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (f *fakeCheckins) waitingFor(userID string) int {
	return len(f.filter(func(c models.Checkin) bool {
		return c.UserID == userID && c.Status == models.CheckinWaiting
	}))
}

func (f *fakeCheckins) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

type fakeRenewals struct {
	mu    sync.Mutex
	snaps map[string]models.RenewalSnapshot
	ttls  map[string]time.Duration
}

func newFakeRenewals() *fakeRenewals {
	return &fakeRenewals{snaps: map[string]models.RenewalSnapshot{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRenewals) SaveRenewal(_ context.Context, token string, snap models.RenewalSnapshot, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[token] = snap
	f.ttls[token] = ttl
	return nil
}

func (f *fakeRenewals) GetRenewal(_ context.Context, token string) (*models.RenewalSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snaps[token]
	if !ok {
		return nil, errCacheMiss
	}
	return &s, nil
}

func (f *fakeRenewals) DeleteRenewal(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.snaps, token)
	return nil
}

var errCacheMiss = fmt.Errorf("cache miss")

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]models.AdminUser
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[string]models.AdminUser{}}
}

func (f *fakeUsers) Create(_ context.Context, u *models.AdminUser) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrDuplicateEmail
		}
	}
	f.users[u.ID] = *u
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*models.AdminUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, repository.ErrNotFound)
	}
	return &u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*models.AdminUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, repository.ErrNotFound)
}

type fakeSignatures struct {
	mu      sync.Mutex
	entries map[string]string
	failGet error
}

func newFakeSignatures() *fakeSignatures {
	return &fakeSignatures{entries: map[string]string{}}
}

func (f *fakeSignatures) GetSignature(_ context.Context, adminID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return "", f.failGet
	}
	v, ok := f.entries[adminID]
	if !ok {
		return "", errCacheMiss
	}
	return v, nil
}

func (f *fakeSignatures) SetSignature(_ context.Context, adminID, dataURL string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[adminID] = dataURL
	return nil
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeObjects) Put(_ context.Context, key, contentType string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = slices.Clone(body)
	f.types[key] = contentType
	return nil
}

func (f *fakeObjects) Get(_ context.Context, key string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	if !ok {
		return nil, "", fmt.Errorf("%s: %w", key, storage.ErrObjectNotFound)
	}
	return b, f.types[key], nil
}

// fixedClock returns a clock frozen at t
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var testNow = time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)
