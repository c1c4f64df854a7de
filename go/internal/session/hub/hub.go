// Package hub is the authoritative side of the phase synchronization
// protocol. Each live session runs as one actor goroutine that owns the
// roster, the submission ledger, and the readiness barriers; everything else
// in the process talks to it through its inbox.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/hotseat/go/internal/session"
	"github.com/mcdev12/hotseat/go/internal/session/protocol"
	"github.com/mcdev12/hotseat/go/internal/session/store"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionClosed   = errors.New("session closed")
)

// Sender is the transport boundary an actor broadcasts through. The gateway's
// connection manager implements it; tests substitute a recorder. Sends are
// best effort: a participant with no live connection simply misses the frame
// and catches up from a phase_state snapshot on reconnect.
type Sender interface {
	Broadcast(sessionID string, msg *protocol.Message)
	SendTo(sessionID, participantID string, msg *protocol.Message)
	Kick(sessionID, participantID string, closeCode int)
	CloseAll(sessionID string, closeCode int)
}

// OutboxAppender defines what the hub needs from the outbox app.
type OutboxAppender interface {
	AppendSessionStarted(ctx context.Context, sessionID string, payload []byte) error
	AppendPhaseStarted(ctx context.Context, sessionID string, payload []byte) error
	AppendPhaseCompleted(ctx context.Context, sessionID string, payload []byte) error
	AppendResultsRevealed(ctx context.Context, sessionID string, payload []byte) error
	AppendPhaseAdvanced(ctx context.Context, sessionID string, payload []byte) error
	AppendSessionEnded(ctx context.Context, sessionID string, payload []byte) error
	AppendParticipantRemoved(ctx context.Context, sessionID string, payload []byte) error
}

// Hub tracks the live session actors in this process.
type Hub struct {
	clock     clockwork.Clock
	sender    Sender
	outbox    OutboxAppender
	snapshots store.Store

	mu     sync.RWMutex
	actors map[string]*Actor
}

// NewHub creates a hub. The sender is installed later via SetSender because
// the gateway that implements it needs the hub first.
func NewHub(clock clockwork.Clock, outbox OutboxAppender, snapshots store.Store) *Hub {
	return &Hub{
		clock:     clock,
		outbox:    outbox,
		snapshots: snapshots,
		actors:    make(map[string]*Actor),
	}
}

// SetSender installs the transport boundary. Must be called before any
// session is created.
func (h *Hub) SetSender(sender Sender) {
	h.sender = sender
}

// CreateSession registers a new session and starts its actor in the lobby
// state. An empty sessionID gets a generated UUID. The returned ID is the
// session's identity everywhere: URLs, wire envelopes, the feed, snapshots.
func (h *Hub) CreateSession(sessionID string, roster []string, script *session.Script) (string, error) {
	if err := script.Validate(); err != nil {
		return "", fmt.Errorf("invalid script: %w", err)
	}
	if len(roster) == 0 {
		return "", fmt.Errorf("session needs at least one participant")
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	sess := &session.Session{
		ID:        sessionID,
		Roster:    session.NewRoster(roster...),
		Script:    script,
		CreatedAt: h.clock.Now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.actors[sessionID]; exists {
		return "", ErrSessionExists
	}

	actor := newActor(sess, h.clock, h.sender, h.outbox, h.snapshots, h.dropActor)
	h.actors[sessionID] = actor
	actor.run()

	log.Info().
		Str("session_id", sessionID).
		Int("roster_size", len(roster)).
		Int("phases", script.Len()).
		Msg("session created")
	return sessionID, nil
}

// ResumeAll rebuilds actors for every snapshot in the store. Called once at
// boot, before the gateway starts accepting connections.
func (h *Hub) ResumeAll(ctx context.Context) error {
	ids, err := h.snapshots.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	for _, id := range ids {
		snap, err := h.snapshots.Load(ctx, id)
		if err != nil {
			log.Error().Err(err).Str("session_id", id).Msg("failed to load snapshot, skipping")
			continue
		}
		if err := h.resume(snap); err != nil {
			log.Error().Err(err).Str("session_id", id).Msg("failed to resume session, skipping")
			continue
		}
		log.Info().
			Str("session_id", id).
			Str("status", string(snap.Status)).
			Int("phase_index", snap.PhaseIndex).
			Msg("session resumed from snapshot")
	}
	return nil
}

func (h *Hub) resume(snap *store.Snapshot) error {
	if snap.Script == nil {
		return fmt.Errorf("snapshot has no script")
	}
	if err := snap.Script.Validate(); err != nil {
		return fmt.Errorf("snapshot script invalid: %w", err)
	}

	sess := &session.Session{
		ID:        snap.SessionID,
		Roster:    session.NewRoster(snap.Roster...),
		Script:    snap.Script,
		CreatedAt: snap.UpdatedAt,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.actors[snap.SessionID]; exists {
		return ErrSessionExists
	}

	actor := newActor(sess, h.clock, h.sender, h.outbox, h.snapshots, h.dropActor)
	if err := actor.restore(snap); err != nil {
		return err
	}
	h.actors[snap.SessionID] = actor
	actor.run()
	return nil
}

// Get returns the actor for a session.
func (h *Hub) Get(sessionID string) (*Actor, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	actor, ok := h.actors[sessionID]
	return actor, ok
}

// Sessions returns the IDs of the live sessions.
func (h *Hub) Sessions() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.actors))
	for id := range h.actors {
		ids = append(ids, id)
	}
	return ids
}

// dropActor removes a stopped actor from the registry. Runs on the actor's
// goroutine as its last act.
func (h *Hub) dropActor(sessionID string) {
	h.mu.Lock()
	delete(h.actors, sessionID)
	h.mu.Unlock()
	log.Info().Str("session_id", sessionID).Msg("session actor stopped")
}

// Shutdown stops every actor and waits for them to drain, bounded by ctx.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.RLock()
	actors := make([]*Actor, 0, len(h.actors))
	for _, a := range h.actors {
		actors = append(actors, a)
	}
	h.mu.RUnlock()

	for _, a := range actors {
		a.stop()
	}
	for _, a := range actors {
		select {
		case <-a.done:
		case <-ctx.Done():
			return
		}
	}
}
