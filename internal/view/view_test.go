package view

import (
	"testing"
	"time"

	"foodbank-checkin-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func reg(id, first, last string, submitted time.Time) *models.Registration {
	return &models.Registration{
		ID:          id,
		FormData:    models.FormData{ID: id, FirstName: first, LastName: last},
		SubmittedAt: submitted,
	}
}

func ids(regs []*models.Registration) []string {
	out := make([]string, 0, len(regs))
	for _, r := range regs {
		out = append(out, r.ID)
	}
	return out
}

func TestActive_ExcludesArchivedAndPages(t *testing.T) {
	regs := []*models.Registration{
		reg("a", "Ann", "Zed", base),
		reg("b", "Bob", "Young", base.Add(time.Hour)),
		reg("c", "Cat", "Xu", base.Add(2*time.Hour)),
	}
	regs[1].FormData.Archived = true

	res := Active(regs, Query{Sort: Sort{Field: SortSubmittedAt}, Page: Page{Number: 1, Size: 1}})
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, []string{"a"}, ids(res.Items))

	res = Active(regs, Query{Sort: Sort{Field: SortSubmittedAt}, Page: Page{Number: 2, Size: 1}})
	assert.Equal(t, []string{"c"}, ids(res.Items))

	res = Active(regs, Query{Page: Page{Number: 9, Size: 1}})
	assert.Empty(t, res.Items)
}

func TestActive_DefaultsNewestFirst(t *testing.T) {
	regs := []*models.Registration{
		reg("a", "Ann", "Zed", base),
		reg("b", "Bob", "Young", base.Add(time.Hour)),
	}
	res := Active(regs, Query{})
	assert.Equal(t, []string{"b", "a"}, ids(res.Items))
	assert.Equal(t, DefaultPageSize, res.Size)
}

func TestFilterRegistrations(t *testing.T) {
	jane := reg("r1", "Jane", "Doe", base)
	jane.FormData.Phone = "555-0101"
	jane.FormData.City = "Springfield"
	jane.FormData.DateOfBirth = "01-01-1990"
	john := reg("r2", "John", "Doerr", base.Add(48*time.Hour))
	john.FormData.Address = "12 Elm St"
	mary := reg("r3", "Mary", "Smith", base.Add(96*time.Hour))
	all := []*models.Registration{jane, john, mary}

	assert.Equal(t, []string{"r1", "r2"}, ids(FilterRegistrations(all, Filters{LastName: "doe"})))
	assert.Equal(t, []string{"r1"}, ids(FilterRegistrations(all, Filters{Search: "SPRINGFIELD"})))
	assert.Equal(t, []string{"r2"}, ids(FilterRegistrations(all, Filters{Search: "elm"})))
	assert.Equal(t, []string{"r1"}, ids(FilterRegistrations(all, Filters{Search: "1990"})))
	assert.Equal(t, []string{"r3"}, ids(FilterRegistrations(all, Filters{Search: "r3"})))
	assert.Equal(t, []string{"r1"}, ids(FilterRegistrations(all, Filters{Search: "jane doe"})))

	// filters are AND-combined
	assert.Empty(t, FilterRegistrations(all, Filters{FirstName: "jo", Search: "springfield"}))

	from := base.Add(24 * time.Hour)
	to := base.Add(72 * time.Hour)
	assert.Equal(t, []string{"r2"}, ids(FilterRegistrations(all, Filters{SubmittedFrom: &from, SubmittedTo: &to})))
}

func TestSortRegistrations(t *testing.T) {
	a := reg("1", "émile", "B", base.Add(2*time.Hour))
	b := reg("2", "Zoe", "A", base)
	c := reg("3", "adam", "A", base.Add(time.Hour))
	regs := []*models.Registration{a, b, c}

	SortRegistrations(regs, Sort{Field: SortFirstName})
	assert.Equal(t, []string{"3", "1", "2"}, ids(regs))

	SortRegistrations(regs, Sort{Field: SortSubmittedAt, Desc: true})
	assert.Equal(t, []string{"1", "3", "2"}, ids(regs))

	// stable: equal last names keep the previous order
	SortRegistrations(regs, Sort{Field: SortLastName})
	assert.Equal(t, []string{"3", "2", "1"}, ids(regs))
}

func TestSortRegistrations_DateFieldsAreNumeric(t *testing.T) {
	a := reg("a", "A", "A", base)
	a.FormData.TefapDate = "2026-10-01"
	b := reg("b", "B", "B", base)
	b.FormData.TefapDate = "2025-12-31"
	regs := []*models.Registration{a, b}

	SortRegistrations(regs, Sort{Field: SortTefapDate})
	assert.Equal(t, []string{"b", "a"}, ids(regs))
}

func TestServed(t *testing.T) {
	archivedAt := base.Add(3 * time.Hour)
	archived := reg("r1", "Jane", "Doe", base)
	archived.FormData.Archived = true
	archived.ArchivedAt = &archivedAt

	legacy := reg("r2", "Old", "Timer", base)
	legacy.FormData.Archived = true
	legacy.FormData.ArchiveDate = "2026-02-01"

	undated := reg("r3", "No", "Date", base)
	undated.FormData.Archived = true

	live := reg("r4", "Still", "Here", base)

	servedAt := base.Add(5 * time.Hour)
	checkins := []*models.Checkin{
		{ID: "c1", UserID: "r4", Status: models.CheckinWaiting, CheckInTime: base},
		{ID: "c2", UserID: "r4", Status: "Checked In", CheckInTime: base.Add(time.Hour)},
		{ID: "c3", UserID: "r1", Status: models.CheckinRemoved, CheckInTime: base, ServedAt: &servedAt},
	}

	entries := Served([]*models.Registration{archived, legacy, undated, live}, checkins)
	require.Len(t, entries, 5)

	var got []string
	for _, e := range entries {
		got = append(got, e.Kind+":"+e.ID)
	}
	assert.Equal(t, []string{
		"checkin:c3", "registration:r1", "checkin:c2", "registration:r2", "registration:r3",
	}, got)
	assert.Nil(t, entries[4].ServedAt)
}

func TestServed_Capped(t *testing.T) {
	var checkins []*models.Checkin
	for i := 0; i < ServedLimit+20; i++ {
		checkins = append(checkins, &models.Checkin{
			ID: string(rune('a' + i%26)), Status: models.CheckinServed,
			CheckInTime: base.Add(time.Duration(i) * time.Minute),
		})
	}
	entries := Served(nil, checkins)
	require.Len(t, entries, ServedLimit)
	assert.Equal(t, base.Add(time.Duration(ServedLimit+19)*time.Minute), *entries[0].ServedAt)
}

func TestIsServedStatus(t *testing.T) {
	for _, s := range []string{"served", "REMOVED", "checked in", "Checked-In", "checked_in"} {
		assert.True(t, IsServedStatus(s), s)
	}
	for _, s := range []string{"waiting", "", "checkedin"} {
		assert.False(t, IsServedStatus(s), s)
	}
}

func TestResolveLinkedCheckins(t *testing.T) {
	r := reg("doc-1", "Jane", "Doe", base)
	r.FormData.ID = "A100"

	checkins := []*models.Checkin{
		{ID: "c-old-doc", UserID: "doc-1", CheckInTime: base},
		{ID: "c-new", UserID: "A100", CheckInTime: base.Add(time.Hour)},
		{ID: "c-older", UserID: "A100", CheckInTime: base},
		{ID: "c-mirror", UserID: "stale", FormData: models.CheckinFormData{ID: "A100"}, CheckInTime: base},
		{ID: "c-house", UserID: "B200", Household: `[{"type":"registration","value":"A100"}]`, CheckInTime: base},
		{ID: "c-house-other", UserID: "C300", Household: `[{"type":"other","value":"A100"}]`, CheckInTime: base},
		{ID: "c-unrelated", UserID: "Z999", Household: "not json", CheckInTime: base},
	}

	refs := ResolveLinkedCheckins(r, checkins)
	var got []string
	for _, ref := range refs {
		got = append(got, ref.CheckinID+"/"+string(ref.Reason)+"/"+ref.Key)
	}
	assert.Equal(t, []string{
		"c-new/userId/A100",
		"c-older/userId/A100",
		"c-old-doc/userId/doc-1",
		"c-mirror/formData.id/A100",
		"c-house/household/A100",
	}, got)
}

func TestIdentityKeys(t *testing.T) {
	r := reg("doc-1", "A", "B", base)
	assert.Equal(t, []string{"doc-1"}, IdentityKeys(r))
	r.FormData.ID = " X "
	assert.Equal(t, []string{"X", "doc-1"}, IdentityKeys(r))
}
