package events

import (
	"time"
)

// Event payload types that are shared between the hub, outbox, and feed consumers

// SessionStartedPayload is the payload for a SessionStarted event
type SessionStartedPayload struct {
	SessionID   string    `json:"session_id"`
	ScriptName  string    `json:"script_name"`
	Roster      []string  `json:"roster"`
	StartedAt   time.Time `json:"started_at"`
	TotalPhases int       `json:"total_phases"`
}

// PhaseStartedPayload is the payload for a PhaseStarted event
type PhaseStartedPayload struct {
	SessionID       string    `json:"session_id"`
	PhaseName       string    `json:"phase_name"`
	PhaseIndex      int       `json:"phase_index"`
	Kind            string    `json:"kind"`
	StartedAt       time.Time `json:"started_at"`
	DeadlineAt      time.Time `json:"deadline_at"`
	DurationSeconds int       `json:"duration_seconds"`
}

// PhaseCompletedPayload is the payload for a PhaseCompleted event. Forced is
// set when the phase closed on its deadline rather than on a full roster.
type PhaseCompletedPayload struct {
	SessionID       string    `json:"session_id"`
	PhaseIndex      int       `json:"phase_index"`
	SubmissionCount int       `json:"submission_count"`
	Forced          bool      `json:"forced"`
	CompletedAt     time.Time `json:"completed_at"`
}

// ResultsRevealedPayload is the payload for a ResultsRevealed event
type ResultsRevealedPayload struct {
	SessionID    string         `json:"session_id"`
	PhaseIndex   int            `json:"phase_index"`
	Count        int            `json:"count"`
	Distribution map[string]int `json:"distribution"`
	RevealedAt   time.Time      `json:"revealed_at"`
}

// PhaseAdvancedPayload is the payload for a PhaseAdvanced event
type PhaseAdvancedPayload struct {
	SessionID  string    `json:"session_id"`
	FromIndex  int       `json:"from_index"`
	ToIndex    int       `json:"to_index"`
	AdvancedAt time.Time `json:"advanced_at"`
}

// SessionEndedPayload is the payload for a SessionEnded event
type SessionEndedPayload struct {
	SessionID  string    `json:"session_id"`
	FinalIndex int       `json:"final_index"`
	EndedAt    time.Time `json:"ended_at"`
	Duration   string    `json:"duration"`
}

// ParticipantRemovedPayload is the payload for a ParticipantRemoved event
type ParticipantRemovedPayload struct {
	SessionID     string    `json:"session_id"`
	ParticipantID string    `json:"participant_id"`
	RemovedAt     time.Time `json:"removed_at"`
	RosterSize    int       `json:"roster_size"`
}
