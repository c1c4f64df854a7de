package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/hotseat/go/internal/sqlutil"
)

type ListenerConfig struct {
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often to poll for missed events
	MaxRetries       int
	RetryDelay       time.Duration
	BatchSize        int32 // Max events to fetch per batch
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel:    "session_outbox_events",
		FallbackInterval: 30 * time.Second,
		MaxRetries:       5,
		RetryDelay:       200 * time.Millisecond,
		BatchSize:        100,
	}
}

// Listener drains the outbox in near real time. An insert trigger NOTIFYs
// the event ID; the fallback poll sweeps up anything a notification missed.
type Listener struct {
	pool      *pgxpool.Pool
	repo      *Repository
	publisher EventPublisher
	cfg       ListenerConfig
}

func NewListener(pool *pgxpool.Pool, repo *Repository, publisher EventPublisher, cfg ListenerConfig) *Listener {
	return &Listener{
		pool:      pool,
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Start listens for outbox notifications until ctx is cancelled. The
// listening connection is held for the whole run; queries go through the
// pool's other connections.
func (l *Listener) Start(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "listen "+l.cfg.NotifyChannel); err != nil {
		return fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("listener started")

	// Sweep whatever accumulated while nothing was listening.
	if err := l.processUnsent(ctx); err != nil {
		log.Error().Err(err).Msg("failed to process unsent events")
	}

	for {
		waitCtx, cancel := context.WithTimeout(ctx, l.cfg.FallbackInterval)
		notification, err := conn.Conn().WaitForNotification(waitCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("listener shutting down")
				return nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				// Quiet interval: run the fallback sweep.
				if err := l.processUnsent(ctx); err != nil {
					log.Error().Err(err).Msg("failed to process unsent events")
				}
				continue
			}
			return fmt.Errorf("wait for notification: %w", err)
		}

		if err := l.handleNotification(ctx, notification.Payload); err != nil {
			log.Error().Err(err).Msg("failed to handle notification")
		}
	}
}

// handleNotification publishes the single event named by a notification
// payload.
func (l *Listener) handleNotification(ctx context.Context, extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid event ID in notification: %w", err)
	}

	event, err := l.repo.FetchByID(ctx, l.pool, id)
	if err != nil {
		// A fallback sweep or another listener may have beaten us to it.
		log.Debug().Err(err).Str("event_id", id.String()).Msg("notified event not pending")
		return nil
	}

	if err := l.publishWithRetry(ctx, *event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	if err := l.repo.MarkSent(ctx, l.pool, []uuid.UUID{id}); err != nil {
		log.Error().Err(err).Str("event_id", id.String()).Msg("failed to mark outbox event as sent")
		return err
	}

	log.Info().Str("event_id", id.String()).Msg("published and marked event as sent")
	return nil
}

// processUnsent drains pending events in one locked batch.
func (l *Listener) processUnsent(ctx context.Context) error {
	return sqlutil.WithTx(ctx, l.pool, func(tx pgx.Tx) error {
		unsent, err := l.repo.FetchUnsent(ctx, tx, l.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to fetch unsent outbox events: %w", err)
		}
		if len(unsent) == 0 {
			return nil
		}

		var sentIDs []uuid.UUID
		for _, event := range unsent {
			if err := l.publishWithRetry(ctx, event); err != nil {
				log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to publish event")
				continue
			}
			sentIDs = append(sentIDs, event.ID)
		}

		if err := l.repo.MarkSent(ctx, tx, sentIDs); err != nil {
			return fmt.Errorf("failed to mark outbox events as sent: %w", err)
		}
		return nil
	})
}

// publishWithRetry attempts to publish an outbox event with a given retry
// delay and max retries.
func (l *Listener) publishWithRetry(ctx context.Context, event OutboxEvent) error {
	var lastErr error

	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := l.cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := l.publisher.Publish(ctx, event); err != nil {
			lastErr = err
			log.Error().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("failed to publish, retrying")
			continue
		}

		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", l.cfg.MaxRetries+1, lastErr)
}
