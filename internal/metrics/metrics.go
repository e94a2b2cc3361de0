package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records intake and reconciliation counters. A nil *Metrics is a no-op.
type Metrics struct {
	submissions *prometheus.CounterVec
	checkins    *prometheus.CounterVec
	cascade     *prometheus.CounterVec
	events      *prometheus.CounterVec
}

// New registers the application metrics on reg
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "foodbank_registration_submissions_total",
		Help: "Registration submissions by outcome.",
	}, []string{"outcome"})
	checkins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "foodbank_checkin_attempts_total",
		Help: "Check-in attempts by resulting state.",
	}, []string{"state"})
	cascade := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "foodbank_checkin_mirror_updates_total",
		Help: "Check-in mirror updates issued by registration edits.",
	}, []string{"result"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "foodbank_events_published_total",
		Help: "Domain events handed to the broker.",
	}, []string{"type", "result"})
	reg.MustRegister(submissions, checkins, cascade, events)
	return &Metrics{
		submissions: submissions,
		checkins:    checkins,
		cascade:     cascade,
		events:      events,
	}
}

// Submission counts a registration submission outcome
func (m *Metrics) Submission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

// CheckinAttempt counts a check-in attempt by its final state
func (m *Metrics) CheckinAttempt(state string) {
	if m == nil {
		return
	}
	m.checkins.WithLabelValues(state).Inc()
}

// MirrorUpdate counts one check-in mirror write
func (m *Metrics) MirrorUpdate(ok bool) {
	if m == nil {
		return
	}
	m.cascade.WithLabelValues(result(ok)).Inc()
}

// EventPublished counts one domain event publication
func (m *Metrics) EventPublished(eventType string, ok bool) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType, result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
