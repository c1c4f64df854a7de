// Package store persists session snapshots so a hub can pick sessions back
// up after a restart. The hub writes a snapshot at every phase transition;
// reads happen only during resume, so the store sits entirely off the hot
// path.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mcdev12/hotseat/go/internal/session"
	"github.com/mcdev12/hotseat/go/internal/session/protocol"
)

// ErrNotFound is returned when no snapshot exists for a session.
var ErrNotFound = errors.New("session snapshot not found")

// Snapshot is the minimal state needed to rebuild a live session mid-phase:
// script position, roster, and the current phase's submissions and
// readiness marks.
type Snapshot struct {
	SessionID  string                     `json:"session_id"`
	Script     *session.Script            `json:"script"`
	Status     protocol.SessionStatus     `json:"status"`
	PhaseIndex int                        `json:"phase_index"`
	PhaseStart time.Time                  `json:"phase_start"`
	StartedAt  time.Time                  `json:"started_at"`
	Roster     []string                   `json:"roster"`
	Submitted  []string                   `json:"submitted"`
	ReadyFor   []string                   `json:"ready_for_results"`
	ReadyNext  []string                   `json:"ready_to_continue"`
	Answers    map[string]json.RawMessage `json:"answers"`
	UpdatedAt  time.Time                  `json:"updated_at"`
}

// Store is the snapshot persistence boundary the hub depends on.
type Store interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context, sessionID string) (*Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]string, error)
}
