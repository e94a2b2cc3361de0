// Package view computes the admin listings from independently fetched
// registrations and check-ins. Everything here is pure; the handlers fetch,
// this package filters, sorts, joins and pages.
package view

import (
	"slices"
	"strings"
	"time"

	"foodbank-checkin-backend/internal/models"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const (
	// DefaultPageSize is used when a query does not ask for a size
	DefaultPageSize = 25
	// MaxPageSize caps the page size of the database browser
	MaxPageSize = 100
)

// Sortable registration fields
const (
	SortFirstName   = "firstName"
	SortLastName    = "lastName"
	SortDateOfBirth = "dateOfBirth"
	SortPhone       = "phone"
	SortCity        = "city"
	SortID          = "id"
	SortLocation    = "location"
	SortTefapDate   = "tefapDate"
	SortSubmittedAt = "submittedAt"
	SortUpdatedAt   = "updatedAt"
	SortLastCheckIn = "lastCheckIn"
)

// Filters narrows the active registrations. All set filters must match.
type Filters struct {
	FirstName     string
	LastName      string
	SubmittedFrom *time.Time
	SubmittedTo   *time.Time
	Search        string
}

// Sort selects the ordering field and direction
type Sort struct {
	Field string
	Desc  bool
}

// Page is a 1-based page request
type Page struct {
	Number int
	Size   int
}

// Query is the complete state of an admin listing
type Query struct {
	Filters Filters
	Sort    Sort
	Page    Page
}

// Result is one page of registrations
type Result struct {
	Items []*models.Registration `json:"items"`
	Total int                    `json:"total"`
	Page  int                    `json:"page"`
	Size  int                    `json:"size"`
}

// Normalize fills in paging defaults
func (q Query) Normalize() Query {
	if q.Page.Number < 1 {
		q.Page.Number = 1
	}
	if q.Page.Size <= 0 {
		q.Page.Size = DefaultPageSize
	}
	if q.Page.Size > MaxPageSize {
		q.Page.Size = MaxPageSize
	}
	if q.Sort.Field == "" {
		q.Sort = Sort{Field: SortSubmittedAt, Desc: true}
	}
	return q
}

// Active returns the requested page of non-archived registrations
func Active(regs []*models.Registration, q Query) Result {
	q = q.Normalize()

	active := make([]*models.Registration, 0, len(regs))
	for _, r := range regs {
		if !r.FormData.Archived {
			active = append(active, r)
		}
	}
	matched := FilterRegistrations(active, q.Filters)
	SortRegistrations(matched, q.Sort)

	start := (q.Page.Number - 1) * q.Page.Size
	if start > len(matched) {
		start = len(matched)
	}
	end := start + q.Page.Size
	if end > len(matched) {
		end = len(matched)
	}
	return Result{
		Items: matched[start:end],
		Total: len(matched),
		Page:  q.Page.Number,
		Size:  q.Page.Size,
	}
}

// FilterRegistrations keeps the registrations matching every set filter
func FilterRegistrations(regs []*models.Registration, f Filters) []*models.Registration {
	first := strings.ToLower(strings.TrimSpace(f.FirstName))
	last := strings.ToLower(strings.TrimSpace(f.LastName))
	search := strings.ToLower(strings.TrimSpace(f.Search))

	out := make([]*models.Registration, 0, len(regs))
	for _, r := range regs {
		if first != "" && !strings.Contains(strings.ToLower(r.FormData.FirstName), first) {
			continue
		}
		if last != "" && !strings.Contains(strings.ToLower(r.FormData.LastName), last) {
			continue
		}
		if f.SubmittedFrom != nil && r.SubmittedAt.Before(*f.SubmittedFrom) {
			continue
		}
		if f.SubmittedTo != nil && r.SubmittedAt.After(*f.SubmittedTo) {
			continue
		}
		if search != "" && !matchesSearch(r, search) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matchesSearch(r *models.Registration, needle string) bool {
	fd := r.FormData
	haystack := []string{
		fd.FirstName, fd.LastName, r.FullName(), fd.Phone, fd.Address,
		fd.City, fd.ID, r.ID, fd.DateOfBirth,
	}
	for _, s := range haystack {
		if strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

// SortRegistrations sorts in place. Equal keys keep their order.
func SortRegistrations(regs []*models.Registration, s Sort) {
	if s.Field == "" {
		return
	}
	cmp := comparator(s.Field)
	slices.SortStableFunc(regs, func(a, b *models.Registration) int {
		if s.Desc {
			return cmp(b, a)
		}
		return cmp(a, b)
	})
}

func comparator(field string) func(a, b *models.Registration) int {
	if key := timeKey(field); key != nil {
		return func(a, b *models.Registration) int {
			return compareTimes(key(a), key(b))
		}
	}
	key := stringKey(field)
	coll := collate.New(language.English)
	return func(a, b *models.Registration) int {
		return coll.CompareString(key(a), key(b))
	}
}

func stringKey(field string) func(*models.Registration) string {
	switch field {
	case SortFirstName:
		return func(r *models.Registration) string { return r.FormData.FirstName }
	case SortLastName:
		return func(r *models.Registration) string { return r.FormData.LastName }
	case SortPhone:
		return func(r *models.Registration) string { return r.FormData.Phone }
	case SortCity:
		return func(r *models.Registration) string { return r.FormData.City }
	case SortLocation:
		return func(r *models.Registration) string { return r.FormData.Location }
	default:
		return func(r *models.Registration) string { return r.ExternalID() }
	}
}

func timeKey(field string) func(*models.Registration) time.Time {
	switch field {
	case SortSubmittedAt:
		return func(r *models.Registration) time.Time { return r.SubmittedAt }
	case SortUpdatedAt:
		return func(r *models.Registration) time.Time { return deref(r.UpdatedAt) }
	case SortLastCheckIn:
		return func(r *models.Registration) time.Time { return deref(r.LastCheckIn) }
	case SortDateOfBirth:
		return func(r *models.Registration) time.Time {
			t, _ := models.ParseDate(r.FormData.DateOfBirth)
			return t
		}
	case SortTefapDate:
		return func(r *models.Registration) time.Time {
			t, _ := models.ParseDate(r.FormData.TefapDate)
			return t
		}
	}
	return nil
}

func compareTimes(a, b time.Time) int {
	return a.Compare(b)
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
