package services

import (
	"context"
	"time"

	"foodbank-checkin-backend/internal/metrics"
	"foodbank-checkin-backend/internal/queue"

	"github.com/rs/zerolog/log"
)

//go:generate mockgen -destination=mocks/events_mock.go -package=mocks foodbank-checkin-backend/internal/services EventPublisher

// EventPublisher hands domain events to the broker
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.Event) error
}

// publishEvent sends an event without letting a broker failure reach the caller
func publishEvent(ctx context.Context, pub EventPublisher, m *metrics.Metrics, eventType string, at time.Time, data any) {
	if pub == nil {
		return
	}
	err := pub.Publish(ctx, queue.Event{Type: eventType, OccurredAt: at, Data: data})
	m.EventPublished(eventType, err == nil)
	if err != nil {
		log.Warn().Err(err).Str("event", eventType).Msg("Failed to publish event")
	}
}
