package session

import "encoding/json"

// Ledger records submissions keyed by (participant, phase index). First write
// wins; replays of the same key change nothing. Owned by the session actor,
// not safe for concurrent use.
type Ledger struct {
	submissions map[int]map[string]json.RawMessage
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		submissions: make(map[int]map[string]json.RawMessage),
	}
}

// Submit records a submission. It returns true if the record is new and false
// if this (participant, phase) pair already submitted, in which case the
// stored payload is untouched.
func (l *Ledger) Submit(participantID string, phaseIndex int, payload json.RawMessage) bool {
	phase, ok := l.submissions[phaseIndex]
	if !ok {
		phase = make(map[string]json.RawMessage)
		l.submissions[phaseIndex] = phase
	}
	if _, exists := phase[participantID]; exists {
		return false
	}
	phase[participantID] = payload
	return true
}

// HasSubmitted reports whether the participant already submitted for the
// phase.
func (l *Ledger) HasSubmitted(participantID string, phaseIndex int) bool {
	_, ok := l.submissions[phaseIndex][participantID]
	return ok
}

// Count returns the number of recorded submissions for the phase.
func (l *Ledger) Count(phaseIndex int) int {
	return len(l.submissions[phaseIndex])
}

// IsComplete reports whether every current roster member has submitted for
// the phase. Records from since-removed participants are retained but do not
// block completeness.
func (l *Ledger) IsComplete(phaseIndex int, roster Roster) bool {
	phase := l.submissions[phaseIndex]
	for id := range roster {
		if _, ok := phase[id]; !ok {
			return false
		}
	}
	return true
}

// Answers returns a copy of the recorded submissions for the phase.
func (l *Ledger) Answers(phaseIndex int) map[string]json.RawMessage {
	phase := l.submissions[phaseIndex]
	answers := make(map[string]json.RawMessage, len(phase))
	for id, payload := range phase {
		answers[id] = payload
	}
	return answers
}

// Submitters returns the participant IDs recorded for the phase.
func (l *Ledger) Submitters(phaseIndex int) []string {
	phase := l.submissions[phaseIndex]
	ids := make([]string, 0, len(phase))
	for id := range phase {
		ids = append(ids, id)
	}
	return ids
}
