package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// ChangeChannel is the notification channel written by the table triggers
const ChangeChannel = "record_changes"

// ChangeListener forwards table change notifications to a callback
type ChangeListener struct {
	db *pgxpool.Pool
}

// NewChangeListener creates a new change listener
func NewChangeListener(db *pgxpool.Pool) *ChangeListener {
	return &ChangeListener{db: db}
}

// Listen blocks until ctx is done, calling onChange with the table name of
// every notification. Lost connections are re-established after a pause.
func (l *ChangeListener) Listen(ctx context.Context, onChange func(table string)) {
	for {
		err := l.listenOnce(ctx, onChange)
		if ctx.Err() != nil {
			return
		}
		log.Error().Err(err).Msg("Change listener stopped, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (l *ChangeListener) listenOnce(ctx context.Context, onChange func(table string)) error {
	conn, err := l.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	log.Info().Str("channel", ChangeChannel).Msg("Listening for record changes")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("failed to wait for notification: %w", err)
		}
		onChange(n.Payload)
	}
}
