package protocol

import (
	"encoding/json"
	"time"
)

// SessionStatus is the coarse lifecycle position of a session as reported in
// phase_state snapshots.
type SessionStatus string

const (
	StatusLobby           SessionStatus = "lobby"
	StatusQuestion        SessionStatus = "question"
	StatusAwaitingResults SessionStatus = "awaiting_results"
	StatusResults         SessionStatus = "results"
	StatusEnded           SessionStatus = "ended"
)

// StateRequestPayload asks the hub for a full phase_state snapshot, typically
// right after a reconnect.
type StateRequestPayload struct {
	ParticipantID string `json:"participant_id"`
}

// SubmitPayload carries a participant's answer for one phase. The payload
// body is opaque to the protocol; the hub stores and aggregates it as-is.
type SubmitPayload struct {
	ParticipantID string          `json:"participant_id"`
	PhaseIndex    int             `json:"phase_index"`
	Payload       json.RawMessage `json:"payload"`
}

// ReadyForResultsPayload signals that a participant has seen the phase close
// and is ready for the aggregated results.
type ReadyForResultsPayload struct {
	ParticipantID string `json:"participant_id"`
	PhaseIndex    int    `json:"phase_index"`
}

// ReadyToContinuePayload signals that a participant is done with the results
// view and ready for the next phase.
type ReadyToContinuePayload struct {
	ParticipantID string `json:"participant_id"`
	PhaseIndex    int    `json:"phase_index"`
}

// PhaseStartPayload announces a new current phase. StartTime is hub time;
// participants derive the countdown from it rather than counting down
// locally.
type PhaseStartPayload struct {
	Name            string    `json:"name"`
	Index           int       `json:"index"`
	Kind            string    `json:"kind"`
	StartTime       time.Time `json:"start_time"`
	DurationSeconds int       `json:"duration_seconds"`
}

// SubmissionAckPayload confirms one accepted submission and reports the
// running count for the phase. Duplicate submissions are acked with the
// unchanged count.
type SubmissionAckPayload struct {
	ParticipantID string `json:"participant_id"`
	PhaseIndex    int    `json:"phase_index"`
	Count         int    `json:"count"`
}

// PhaseCompletePayload is the hub's authoritative signal that a phase stopped
// accepting submissions, either because the full roster submitted or because
// the phase deadline passed.
type PhaseCompletePayload struct {
	PhaseIndex int `json:"phase_index"`
	Count      int `json:"count"`
}

// ResultAggregates summarizes the submissions of one phase.
type ResultAggregates struct {
	Count        int                        `json:"count"`
	Distribution map[string]int             `json:"distribution"`
	Answers      map[string]json.RawMessage `json:"answers"`
}

// ResultsReadyPayload delivers the aggregated results for a completed phase.
type ResultsReadyPayload struct {
	PhaseIndex int              `json:"phase_index"`
	Aggregates ResultAggregates `json:"aggregates"`
}

// AllReadyToContinuePayload is the hub's authoritative signal that the whole
// roster finished the results view and the session is advancing.
type AllReadyToContinuePayload struct {
	PhaseIndex int `json:"phase_index"`
}

// SessionEndedPayload announces that the script is exhausted.
type SessionEndedPayload struct {
	FinalIndex int `json:"final_index"`
}

// ParticipantRemovedPayload announces an explicit roster removal. The removed
// participant receives it (followed by a close with CloseCodeRemoved); the
// rest of the roster treats it as a roster update.
type ParticipantRemovedPayload struct {
	ParticipantID string `json:"participant_id"`
}

// PhaseStatePayload is a full snapshot of one participant's view of the
// session, sent on connect, on reconnect, and on state_request. The Submitted
// and Ready flags are scoped to the receiving participant so a reloaded
// client can restore its guards without re-sending anything.
type PhaseStatePayload struct {
	Status          SessionStatus      `json:"status"`
	Phase           *PhaseStartPayload `json:"phase,omitempty"`
	SubmissionCount int                `json:"submission_count"`
	Roster          []string           `json:"roster"`
	Submitted       bool               `json:"submitted"`
	ReadyForResults bool               `json:"ready_for_results"`
	ReadyToContinue bool               `json:"ready_to_continue"`
	Aggregates      *ResultAggregates  `json:"aggregates,omitempty"`
}
