package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/hotseat/go/internal/session/events"
)

// Querier is the slice of pgx that the repository queries through. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so the same queries run inside and
// outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository stages feed events in the session_outbox table. Its Append
// methods are what the session hub writes through; the worker and listener
// drain what they wrote.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Begin opens a transaction for a drain cycle.
func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *Repository) insert(ctx context.Context, sessionID string, eventType events.EventType, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("event payload cannot be empty")
	}
	_, err := r.pool.Exec(ctx, `
        insert into session_outbox (id, session_id, event_type, payload)
        values ($1, $2, $3, $4)`,
		uuid.New(), sessionID, string(eventType), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", eventType, err)
	}
	return nil
}

func (r *Repository) AppendSessionStarted(ctx context.Context, sessionID string, payload []byte) error {
	return r.insert(ctx, sessionID, events.EventTypeSessionStarted, payload)
}

func (r *Repository) AppendPhaseStarted(ctx context.Context, sessionID string, payload []byte) error {
	return r.insert(ctx, sessionID, events.EventTypePhaseStarted, payload)
}

func (r *Repository) AppendPhaseCompleted(ctx context.Context, sessionID string, payload []byte) error {
	return r.insert(ctx, sessionID, events.EventTypePhaseCompleted, payload)
}

func (r *Repository) AppendResultsRevealed(ctx context.Context, sessionID string, payload []byte) error {
	return r.insert(ctx, sessionID, events.EventTypeResultsRevealed, payload)
}

func (r *Repository) AppendPhaseAdvanced(ctx context.Context, sessionID string, payload []byte) error {
	return r.insert(ctx, sessionID, events.EventTypePhaseAdvanced, payload)
}

func (r *Repository) AppendSessionEnded(ctx context.Context, sessionID string, payload []byte) error {
	return r.insert(ctx, sessionID, events.EventTypeSessionEnded, payload)
}

func (r *Repository) AppendParticipantRemoved(ctx context.Context, sessionID string, payload []byte) error {
	return r.insert(ctx, sessionID, events.EventTypeParticipantRemoved, payload)
}

// FetchUnsent returns up to limit unpublished events, oldest first. Inside a
// transaction the rows come back locked, so concurrent drainers skip past
// each other instead of double-publishing.
func (r *Repository) FetchUnsent(ctx context.Context, db Querier, limit int32) ([]OutboxEvent, error) {
	rows, err := db.Query(ctx, `
        select id, session_id, event_type, payload, created_at, sent_at
        from session_outbox
        where sent_at is null
        order by created_at
        limit $1
        for update skip locked`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var outboxEvents []OutboxEvent
	for rows.Next() {
		var event OutboxEvent
		if err := rows.Scan(&event.ID, &event.SessionID, &event.EventType, &event.Payload, &event.CreatedAt, &event.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		outboxEvents = append(outboxEvents, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read outbox events: %w", err)
	}
	return outboxEvents, nil
}

// MarkSent stamps the given events as published.
func (r *Repository) MarkSent(ctx context.Context, db Querier, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.Exec(ctx, `
        update session_outbox
        set sent_at = now()
        where id = any($1)`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox events as sent: %w", err)
	}
	return nil
}

// FetchByID returns one unpublished event.
func (r *Repository) FetchByID(ctx context.Context, db Querier, id uuid.UUID) (*OutboxEvent, error) {
	var event OutboxEvent
	err := db.QueryRow(ctx, `
        select id, session_id, event_type, payload, created_at, sent_at
        from session_outbox
        where id = $1 and sent_at is null`,
		id,
	).Scan(&event.ID, &event.SessionID, &event.EventType, &event.Payload, &event.CreatedAt, &event.SentAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("outbox event not found or already sent")
		}
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	return &event, nil
}
