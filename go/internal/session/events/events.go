package events

import (
	"encoding/json"
	"time"
)

// EventType identifies a session feed event.
type EventType string

const (
	EventTypeSessionStarted     EventType = "SessionStarted"
	EventTypePhaseStarted       EventType = "PhaseStarted"
	EventTypePhaseCompleted     EventType = "PhaseCompleted"
	EventTypeResultsRevealed    EventType = "ResultsRevealed"
	EventTypePhaseAdvanced      EventType = "PhaseAdvanced"
	EventTypeSessionEnded       EventType = "SessionEnded"
	EventTypeParticipantRemoved EventType = "ParticipantRemoved"
)

// FeedEvent is the envelope published on the session event feed. EventID is
// the dedup key; feed consumers must tolerate at-least-once delivery.
type FeedEvent struct {
	EventID   string          `json:"eventId"`
	EventType EventType       `json:"eventType"`
	SessionID string          `json:"sessionId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}
