package services

import (
	"context"
	"testing"
	"time"

	"foodbank-checkin-backend/internal/models"
	"foodbank-checkin-backend/internal/queue"
	"foodbank-checkin-backend/internal/repository"
	"foodbank-checkin-backend/internal/services/mocks"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type CheckinServiceSuite struct {
	suite.Suite
	ctx      context.Context
	regs     *fakeRegistrations
	checkins *fakeCheckins
	renewals *fakeRenewals
	service  *CheckinService
}

func TestCheckinServiceSuite(t *testing.T) {
	suite.Run(t, new(CheckinServiceSuite))
}

func (s *CheckinServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.regs = newFakeRegistrations()
	s.checkins = newFakeCheckins()
	s.renewals = newFakeRenewals()
	s.service = NewCheckinService(s.regs, s.checkins, s.renewals,
		WithCheckinClock(fixedClock(testNow)),
		WithRenewalTTL(10*time.Minute),
	)
}

func (s *CheckinServiceSuite) seed(id, externalID, tefapDate string) *models.Registration {
	form := janeForm()
	form.ID = externalID
	form.TefapDate = tefapDate
	form.Household = `[{"type":"registration","value":"R-9"}]`
	form.Location = "north"
	reg := &models.Registration{ID: id, FormData: form, SubmittedAt: testNow.AddDate(0, -1, 0)}
	s.Require().NoError(s.regs.Create(s.ctx, reg))
	return reg
}

func (s *CheckinServiceSuite) TestCheckInByIDWelcome() {
	s.seed("doc-1", "EXT-1", models.Today(testNow))

	res, err := s.service.CheckIn(s.ctx, CheckinRequest{ID: "EXT-1"})
	s.Require().NoError(err)

	s.Equal(CheckinCreated, res.State)
	s.Equal("Welcome, Jane Doe! You are checked in.", res.Message)
	s.Require().NotNil(res.Checkin)
	s.Equal(1, s.checkins.count())

	c := res.Checkin
	s.Equal(models.CheckinWaiting, c.Status)
	s.Equal("EXT-1", c.UserID)
	s.Equal("Jane Doe", c.Name)
	s.Equal("north", c.Location)
	s.Equal("555-0100", c.Phone)
	s.Equal(`[{"type":"registration","value":"R-9"}]`, c.Household)
	s.Equal(models.CheckinFormData{
		ID: "EXT-1", FirstName: "Jane", LastName: "Doe", Location: "north",
		Household: `[{"type":"registration","value":"R-9"}]`,
	}, c.FormData)
	s.Equal(testNow, c.CheckInTime)

	stored, _ := s.regs.GetByID(s.ctx, "doc-1")
	s.Require().NotNil(stored.LastCheckIn)
	s.Equal(testNow, *stored.LastCheckIn)
}

func (s *CheckinServiceSuite) TestCheckInByDocumentID() {
	s.seed("doc-1", "", models.Today(testNow))

	res, err := s.service.CheckIn(s.ctx, CheckinRequest{ID: "doc-1"})
	s.Require().NoError(err)
	s.Equal(CheckinCreated, res.State)
	s.Equal("doc-1", res.Checkin.UserID)
}

func (s *CheckinServiceSuite) TestCheckInExpired() {
	s.seed("doc-1", "EXT-1", models.Today(testNow.AddDate(0, 0, -400)))

	res, err := s.service.CheckIn(s.ctx, CheckinRequest{ID: "EXT-1"})
	s.Require().NoError(err)

	s.Equal(CheckinExpired, res.State)
	s.Equal(MsgExpired, res.Message)
	s.True(res.TefapExpired)
	s.Nil(res.Checkin)
	s.Equal(0, s.checkins.count())

	s.Require().NotNil(res.RenewalForm)
	s.False(res.RenewalForm.AgreedToCert)
	s.Equal("Jane", res.RenewalForm.FirstName)

	s.Require().NotEmpty(res.RenewalToken)
	snap, err := s.renewals.GetRenewal(s.ctx, res.RenewalToken)
	s.Require().NoError(err)
	s.Equal("doc-1", snap.RegistrationID)
	s.False(snap.FormData.AgreedToCert)
	s.Equal(10*time.Minute, s.renewals.ttls[res.RenewalToken])

	stored, _ := s.regs.GetByID(s.ctx, "doc-1")
	s.True(stored.FormData.AgreedToCert)
	s.Nil(stored.LastCheckIn)
}

func (s *CheckinServiceSuite) TestEligibilityBoundary() {
	reg := &models.Registration{FormData: models.FormData{}}

	reg.FormData.TefapDate = models.Today(testNow.AddDate(0, 0, -365))
	s.False(Expired(reg, testNow), "exactly a year ago is still eligible")

	reg.FormData.TefapDate = models.Today(testNow.AddDate(0, 0, -366))
	s.True(Expired(reg, testNow))

	reg.FormData.TefapDate = ""
	s.False(Expired(reg, testNow))

	reg.FormData.TefapDate = "not a date"
	s.False(Expired(reg, testNow))
}

func (s *CheckinServiceSuite) TestCheckInAlreadyWaiting() {
	s.seed("doc-1", "EXT-1", models.Today(testNow))

	first, err := s.service.CheckIn(s.ctx, CheckinRequest{ID: "EXT-1"})
	s.Require().NoError(err)
	s.Equal(CheckinCreated, first.State)

	second, err := s.service.CheckIn(s.ctx, CheckinRequest{LastName: "Doe", DateOfBirth: "1990-01-01"})
	s.Require().NoError(err)
	s.Equal(CheckinAlreadyWaiting, second.State)
	s.Equal(MsgAlreadyWaiting, second.Message)
	s.Equal(1, s.checkins.waitingFor("EXT-1"))
}

func (s *CheckinServiceSuite) TestUniqueIndexBacksUpPreCheck() {
	s.seed("doc-1", "EXT-1", models.Today(testNow))
	s.checkins.skipWaitingCheck = true

	_, err := s.service.CheckIn(s.ctx, CheckinRequest{ID: "EXT-1"})
	s.Require().NoError(err)
	res, err := s.service.CheckIn(s.ctx, CheckinRequest{ID: "EXT-1"})
	s.Require().NoError(err)
	s.Equal(CheckinAlreadyWaiting, res.State)
	s.Equal(1, s.checkins.waitingFor("EXT-1"))
}

func (s *CheckinServiceSuite) TestCheckInNotFound() {
	s.seed("doc-1", "EXT-1", models.Today(testNow))

	res, err := s.service.CheckIn(s.ctx, CheckinRequest{ID: "EXT-404"})
	s.Require().NoError(err)
	s.Equal(CheckinNotFound, res.State)
	s.Equal(MsgNotFound, res.Message)

	res, err = s.service.CheckIn(s.ctx, CheckinRequest{LastName: "Doe", DateOfBirth: "02-02-1990"})
	s.Require().NoError(err)
	s.Equal(CheckinNotFound, res.State)
	s.Equal(0, s.checkins.count())
}

func (s *CheckinServiceSuite) TestLookupPrefersActiveRegistration() {
	archived := s.seed("old", "OLD", models.Today(testNow))
	archived.FormData.Archived = true
	later := testNow.Add(-time.Minute)
	archived.UpdatedAt = &later
	s.Require().NoError(s.regs.Update(s.ctx, archived))
	s.seed("new", "NEW", models.Today(testNow))

	res, err := s.service.CheckIn(s.ctx, CheckinRequest{LastName: " Doe ", DateOfBirth: "01/01/1990"})
	s.Require().NoError(err)
	s.Equal(CheckinCreated, res.State)
	s.Equal("new", res.RegistrationID)
}

func (s *CheckinServiceSuite) TestCheckInValidation() {
	_, err := s.service.CheckIn(s.ctx, CheckinRequest{LastName: "Doe"})
	var verr *ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Contains(verr.Fields, "dateOfBirth")
}

func (s *CheckinServiceSuite) TestQueueAndServe() {
	s.Require().NoError(s.checkins.Create(s.ctx, &models.Checkin{ID: "late", UserID: "B", Status: models.CheckinWaiting, CheckInTime: testNow}))
	s.Require().NoError(s.checkins.Create(s.ctx, &models.Checkin{ID: "early", UserID: "A", Status: models.CheckinWaiting, CheckInTime: testNow.Add(-time.Hour)}))
	s.Require().NoError(s.checkins.Create(s.ctx, &models.Checkin{ID: "done", UserID: "C", Status: models.CheckinServed, CheckInTime: testNow.Add(-2 * time.Hour)}))

	waiting, err := s.service.Queue(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(waiting, 2)
	s.Equal("early", waiting[0].ID)
	s.Equal("late", waiting[1].ID)

	s.Require().NoError(s.service.Serve(s.ctx, "early"))
	served, _ := s.checkins.GetByID(s.ctx, "early")
	s.Equal(models.CheckinRemoved, served.Status)
	s.Require().NotNil(served.ServedAt)
	s.Equal(testNow, *served.ServedAt)

	waiting, err = s.service.Queue(s.ctx)
	s.Require().NoError(err)
	s.Len(waiting, 1)

	s.ErrorIs(s.service.Serve(s.ctx, "missing"), repository.ErrNotFound)

	var verr *ValidationError
	s.ErrorAs(s.service.SetStatus(s.ctx, "late", "lost"), &verr)

	s.Require().NoError(s.service.Delete(s.ctx, "late"))
	s.Equal(2, s.checkins.count())
}

func (s *CheckinServiceSuite) TestPublishesCheckinCreated() {
	ctrl := gomock.NewController(s.T())
	pub := mocks.NewMockEventPublisher(ctrl)
	s.service = NewCheckinService(s.regs, s.checkins, s.renewals,
		WithCheckinClock(fixedClock(testNow)),
		WithCheckinEvents(pub),
	)
	s.seed("doc-1", "EXT-1", models.Today(testNow))

	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ev queue.Event) error {
		s.Equal(queue.EventCheckinCreated, ev.Type)
		c, ok := ev.Data.(*models.Checkin)
		s.Require().True(ok)
		s.Equal("EXT-1", c.UserID)
		return nil
	})

	res, err := s.service.CheckIn(s.ctx, CheckinRequest{ID: "EXT-1"})
	s.Require().NoError(err)
	s.Equal(CheckinCreated, res.State)
}
