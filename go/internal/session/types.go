// Package session holds the domain core of the phase synchronization
// protocol: rosters, phase scripts, the submission ledger, and the readiness
// barriers. Everything in this package is owned by a single session actor and
// is not safe for concurrent use.
package session

import (
	"sort"
	"time"
)

// Roster is the fixed set of participants enrolled in a session. It only
// shrinks, via explicit removal.
type Roster map[string]bool

// NewRoster builds a roster from participant IDs.
func NewRoster(ids ...string) Roster {
	r := make(Roster, len(ids))
	for _, id := range ids {
		r[id] = true
	}
	return r
}

// Contains reports whether the participant is enrolled.
func (r Roster) Contains(participantID string) bool {
	return r[participantID]
}

// Remove drops a participant from the roster.
func (r Roster) Remove(participantID string) {
	delete(r, participantID)
}

// Size returns the number of enrolled participants.
func (r Roster) Size() int {
	return len(r)
}

// IDs returns the enrolled participant IDs in sorted order.
func (r Roster) IDs() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns an independent copy of the roster.
func (r Roster) Clone() Roster {
	clone := make(Roster, len(r))
	for id := range r {
		clone[id] = true
	}
	return clone
}

// Phase is one installed phase of a running session. Values are immutable;
// advancing the session installs a new Phase with a higher index.
type Phase struct {
	Name      string
	Index     int
	Kind      string
	StartTime time.Time
	Duration  time.Duration
}

// Deadline returns the hub-time instant at which the phase stops accepting
// submissions.
func (p Phase) Deadline() time.Time {
	return p.StartTime.Add(p.Duration)
}

// DurationSeconds returns the phase duration in whole seconds.
func (p Phase) DurationSeconds() int {
	return int(p.Duration / time.Second)
}

// RemainingSeconds derives the countdown value at the given authoritative
// time. Elapsed time is floored to whole seconds before subtracting, and the
// result is clamped to zero so a phase past its deadline never reads
// negative.
func (p Phase) RemainingSeconds(now time.Time) int {
	elapsed := now.Sub(p.StartTime)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := p.DurationSeconds() - int(elapsed/time.Second)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether the phase deadline has passed at the given time.
func (p Phase) Expired(now time.Time) bool {
	return !now.Before(p.Deadline())
}

// Session is the static definition of one session: an ID, a roster, and
// the script the roster plays through.
type Session struct {
	ID        string
	Roster    Roster
	Script    *Script
	CreatedAt time.Time
}
