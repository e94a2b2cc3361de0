package view

import (
	"slices"
	"strings"
	"time"

	"foodbank-checkin-backend/internal/household"
	"foodbank-checkin-backend/internal/models"
)

// LinkReason says why a check-in belongs to a registration. Lower rank wins.
type LinkReason string

const (
	LinkUserID     LinkReason = "userId"
	LinkMirroredID LinkReason = "formData.id"
	LinkHousehold  LinkReason = "household"
)

var linkRank = map[LinkReason]int{
	LinkUserID:     0,
	LinkMirroredID: 1,
	LinkHousehold:  2,
}

// CheckinRef points at a check-in linked to a registration
type CheckinRef struct {
	CheckinID   string               `json:"checkinId"`
	UserID      string               `json:"userId"`
	Status      models.CheckinStatus `json:"status"`
	CheckInTime time.Time            `json:"checkInTime"`
	Reason      LinkReason           `json:"reason"`
	Key         string               `json:"key"`
}

// IdentityKeys returns the identifiers a check-in may use for a registration,
// in priority order
func IdentityKeys(r *models.Registration) []string {
	return uniqueNonEmpty(r.FormData.ID, r.ID)
}

// ResolveLinkedCheckins joins a registration to the check-ins that reference
// it. A check-in matches when its userId or mirrored formData.id equals one of
// the registration's identity keys, or when its household lists the key as a
// registration entry. Each check-in appears once with its best match.
func ResolveLinkedCheckins(r *models.Registration, all []*models.Checkin) []CheckinRef {
	keys := IdentityKeys(r)
	var refs []CheckinRef
	for _, c := range all {
		ref, ok := bestLink(c, keys)
		if ok {
			refs = append(refs, ref)
		}
	}

	keyRank := make(map[string]int, len(keys))
	for i, k := range keys {
		keyRank[k] = i
	}
	slices.SortStableFunc(refs, func(a, b CheckinRef) int {
		if d := linkRank[a.Reason] - linkRank[b.Reason]; d != 0 {
			return d
		}
		if d := keyRank[a.Key] - keyRank[b.Key]; d != 0 {
			return d
		}
		if d := b.CheckInTime.Compare(a.CheckInTime); d != 0 {
			return d
		}
		return strings.Compare(a.CheckinID, b.CheckinID)
	})
	return refs
}

func bestLink(c *models.Checkin, keys []string) (CheckinRef, bool) {
	ref := CheckinRef{
		CheckinID:   c.ID,
		UserID:      c.UserID,
		Status:      c.Status,
		CheckInTime: c.CheckInTime,
	}
	for _, reason := range []LinkReason{LinkUserID, LinkMirroredID, LinkHousehold} {
		for _, key := range keys {
			if linkMatches(c, reason, key) {
				ref.Reason = reason
				ref.Key = key
				return ref, true
			}
		}
	}
	return ref, false
}

func linkMatches(c *models.Checkin, reason LinkReason, key string) bool {
	switch reason {
	case LinkUserID:
		return c.UserID == key
	case LinkMirroredID:
		return c.FormData.ID == key
	case LinkHousehold:
		return slices.Contains(household.Parse(c.Household).RegistrationIDs(), key)
	}
	return false
}

func uniqueNonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	return out
}
