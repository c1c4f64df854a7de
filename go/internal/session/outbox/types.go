package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxEvent is one feed event staged in Postgres until a publisher pushes
// it out. ID doubles as the broker-side deduplication key, so delivery is
// at-least-once with duplicates detectable downstream.
type OutboxEvent struct {
	ID        uuid.UUID       `json:"id"`
	SessionID string          `json:"session_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
}

// EventPublisher pushes a staged event to the outside world.
type EventPublisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}
