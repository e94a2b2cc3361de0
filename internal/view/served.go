package view

import (
	"slices"
	"strings"
	"time"

	"foodbank-checkin-backend/internal/models"
)

// ServedLimit caps the served listing
const ServedLimit = 200

// Served entry kinds
const (
	KindRegistration = "registration"
	KindCheckin      = "checkin"
)

var servedStatuses = map[string]bool{
	"served":     true,
	"removed":    true,
	"checked in": true,
	"checked-in": true,
	"checked_in": true,
}

// ServedStatuses lists the lower-case statuses counted as served
func ServedStatuses() []string {
	out := make([]string, 0, len(servedStatuses))
	for s := range servedStatuses {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// ServedEntry is one row of the unified served listing
type ServedEntry struct {
	Kind         string               `json:"kind"`
	ID           string               `json:"id"`
	UserID       string               `json:"userId"`
	Name         string               `json:"name"`
	Location     string               `json:"location,omitempty"`
	ServedAt     *time.Time           `json:"servedAt,omitempty"`
	Registration *models.Registration `json:"registration,omitempty"`
	Checkin      *models.Checkin      `json:"checkin,omitempty"`
}

// IsServedStatus reports whether a check-in status counts as served
func IsServedStatus(status string) bool {
	return servedStatuses[strings.ToLower(strings.TrimSpace(status))]
}

// Served merges archived registrations and served check-ins, newest first.
// Entries without a resolvable timestamp go last.
func Served(regs []*models.Registration, checkins []*models.Checkin) []ServedEntry {
	var entries []ServedEntry
	for _, r := range regs {
		if !r.FormData.Archived {
			continue
		}
		entries = append(entries, ServedEntry{
			Kind:         KindRegistration,
			ID:           r.ID,
			UserID:       r.ExternalID(),
			Name:         r.FullName(),
			Location:     r.FormData.Location,
			ServedAt:     RegistrationServedAt(r),
			Registration: r,
		})
	}
	for _, c := range checkins {
		if !IsServedStatus(string(c.Status)) {
			continue
		}
		entries = append(entries, ServedEntry{
			Kind:     KindCheckin,
			ID:       c.ID,
			UserID:   c.UserID,
			Name:     c.Name,
			Location: c.Location,
			ServedAt: CheckinServedAt(c),
			Checkin:  c,
		})
	}

	slices.SortStableFunc(entries, func(a, b ServedEntry) int {
		switch {
		case a.ServedAt == nil && b.ServedAt == nil:
			return 0
		case a.ServedAt == nil:
			return 1
		case b.ServedAt == nil:
			return -1
		}
		return b.ServedAt.Compare(*a.ServedAt)
	})
	if len(entries) > ServedLimit {
		entries = entries[:ServedLimit]
	}
	return entries
}

// RegistrationServedAt resolves when a registration was served
func RegistrationServedAt(r *models.Registration) *time.Time {
	return firstTime(r.ServedAt, r.ArchivedAt, r.FormData.ArchiveDate, r.FormData.ArchivedDate)
}

// CheckinServedAt resolves when a check-in was served
func CheckinServedAt(c *models.Checkin) *time.Time {
	return firstTime(c.ServedAt, c.CheckInTime, c.Timestamp, c.UpdatedAt)
}

// firstTime returns the first candidate that is set and parses
func firstTime(candidates ...any) *time.Time {
	for _, c := range candidates {
		switch v := c.(type) {
		case *time.Time:
			if v != nil && !v.IsZero() {
				t := *v
				return &t
			}
		case time.Time:
			if !v.IsZero() {
				return &v
			}
		case string:
			if t, ok := models.ParseDate(v); ok {
				return &t
			}
		}
	}
	return nil
}
