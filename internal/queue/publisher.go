// Package queue publishes domain events to RabbitMQ. Publication is best
// effort: callers log failures and carry on.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Event types
const (
	EventRegistrationCreated = "registration.created"
	EventRegistrationRenewed = "registration.renewed"
	EventCheckinCreated      = "checkin.created"
)

const (
	dialTimeout      = 5 * time.Second
	reconnectBackoff = 10 * time.Second
)

// ErrBrokerUnavailable is returned while a failed reconnect is backing off
var ErrBrokerUnavailable = errors.New("event broker unavailable")

// Event is the envelope written to the queue
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data"`
}

// Publisher keeps one connection and channel to the broker
type Publisher struct {
	url   string
	queue string

	dial func(url string) (*amqp.Connection, error)
	now  func() time.Time

	mu         sync.Mutex
	conn       *amqp.Connection
	ch         *amqp.Channel
	failedDial time.Time
}

// NewPublisher dials the broker and declares the durable event queue
func NewPublisher(url, queueName string) (*Publisher, error) {
	p := &Publisher{url: url, queue: queueName, dial: dialBroker, now: time.Now}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func dialBroker(url string) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
}

func (p *Publisher) connect() error {
	conn, err := p.dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		p.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	p.conn = conn
	p.ch = ch
	return nil
}

// Publish writes one persistent event. A dropped connection is re-dialled
// on the next call, at most once per backoff window.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.reconnectLocked(ctx); err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.OccurredAt,
		Type:         ev.Type,
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Type, err)
	}
	return nil
}

func (p *Publisher) reconnectLocked(ctx context.Context) error {
	if p.conn != nil && !p.conn.IsClosed() && p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.failedDial.IsZero() && p.now().Sub(p.failedDial) < reconnectBackoff {
		return ErrBrokerUnavailable
	}

	p.closeLocked()
	if err := p.connect(); err != nil {
		p.failedDial = p.now()
		return err
	}
	p.failedDial = time.Time{}
	return nil
}

// Close releases the channel and connection
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

func (p *Publisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
