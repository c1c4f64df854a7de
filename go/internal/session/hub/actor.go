package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/hotseat/go/internal/session"
	"github.com/mcdev12/hotseat/go/internal/session/events"
	"github.com/mcdev12/hotseat/go/internal/session/protocol"
	"github.com/mcdev12/hotseat/go/internal/session/store"
)

var ErrNotInRoster = errors.New("participant not in roster")

type inbound struct {
	from string
	msg  *protocol.Message
}

type ctrlKind int

const (
	ctrlConnected ctrlKind = iota
	ctrlDisconnected
	ctrlRemove
	ctrlStart
	ctrlState
)

type control struct {
	kind          ctrlKind
	participantID string
	reply         chan ctrlReply
}

type ctrlReply struct {
	view StateView
	err  error
}

// StateView is a read-only projection of an actor's state, served over the
// REST surface. PhaseIndex is -1 while the session sits in the lobby.
type StateView struct {
	SessionID        string                 `json:"session_id"`
	Status           protocol.SessionStatus `json:"status"`
	ScriptName       string                 `json:"script_name"`
	TotalPhases      int                    `json:"total_phases"`
	PhaseIndex       int                    `json:"phase_index"`
	PhaseName        string                 `json:"phase_name,omitempty"`
	PhaseKind        string                 `json:"phase_kind,omitempty"`
	StartTime        *time.Time             `json:"start_time,omitempty"`
	DurationSeconds  int                    `json:"duration_seconds,omitempty"`
	RemainingSeconds int                    `json:"remaining_seconds"`
	Roster           []string               `json:"roster"`
	Connected        []string               `json:"connected"`
	SubmissionCount  int                    `json:"submission_count"`
	ReadyForResults  int                    `json:"ready_for_results"`
	ReadyToContinue  int                    `json:"ready_to_continue"`
}

// Actor runs one session. All session state lives on the actor's goroutine;
// the exported methods only pass messages into it, so there is exactly one
// writer and phase decisions happen exactly once.
type Actor struct {
	sess      *session.Session
	clock     clockwork.Clock
	sender    Sender
	outbox    OutboxAppender
	snapshots store.Store
	onStop    func(sessionID string)

	// Loop-owned state. Never touched from outside the loop goroutine.
	status    protocol.SessionStatus
	phase     session.Phase
	ledger    *session.Ledger
	barriers  *session.Barrier
	connected map[string]bool
	startedAt time.Time
	deadline  clockwork.Timer

	// mailbox carries both wire messages (inbound) and control operations
	// (control) so everything is handled in arrival order.
	mailbox chan interface{}
	stopCh  chan struct{}
	once    sync.Once
	done    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

func newActor(sess *session.Session, clock clockwork.Clock, sender Sender, outbox OutboxAppender, snapshots store.Store, onStop func(string)) *Actor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Actor{
		sess:      sess,
		clock:     clock,
		sender:    sender,
		outbox:    outbox,
		snapshots: snapshots,
		onStop:    onStop,
		status:    protocol.StatusLobby,
		ledger:    session.NewLedger(),
		barriers:  session.NewBarrier(),
		connected: make(map[string]bool),
		mailbox:   make(chan interface{}, 256),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// restore seeds the actor from a snapshot before its loop starts.
func (a *Actor) restore(snap *store.Snapshot) error {
	a.status = snap.Status
	a.startedAt = snap.StartedAt

	switch snap.Status {
	case protocol.StatusLobby, protocol.StatusEnded:
		return nil
	}

	def, ok := a.sess.Script.PhaseAt(snap.PhaseIndex)
	if !ok {
		return fmt.Errorf("snapshot phase index %d out of script range", snap.PhaseIndex)
	}
	a.phase = def.Begin(snap.PhaseIndex, snap.PhaseStart)

	for id, answer := range snap.Answers {
		a.ledger.Submit(id, snap.PhaseIndex, answer)
	}
	for _, id := range snap.ReadyFor {
		a.barriers.Mark(session.BarrierResults, snap.PhaseIndex, id)
	}
	for _, id := range snap.ReadyNext {
		a.barriers.Mark(session.BarrierContinue, snap.PhaseIndex, id)
	}
	return nil
}

func (a *Actor) run() {
	go a.loop()
}

func (a *Actor) stop() {
	a.once.Do(func() {
		close(a.stopCh)
	})
}

// Done is closed once the actor's loop has fully drained.
func (a *Actor) Done() <-chan struct{} {
	return a.done
}

// SessionID returns the session's identity.
func (a *Actor) SessionID() string {
	return a.sess.ID
}

// Deliver routes one wire message from a connected participant into the
// actor. It blocks only on a full mailbox and fails once the actor stopped.
func (a *Actor) Deliver(from string, msg *protocol.Message) error {
	select {
	case a.mailbox <- inbound{from: from, msg: msg}:
		return nil
	case <-a.stopCh:
		return ErrSessionClosed
	}
}

// ParticipantConnected records a live connection and pushes a phase_state
// snapshot to the participant.
func (a *Actor) ParticipantConnected(participantID string) {
	a.sendCtrl(control{kind: ctrlConnected, participantID: participantID}, false)
}

// ParticipantDisconnected records that the participant's connection dropped.
// Roster membership is unaffected.
func (a *Actor) ParticipantDisconnected(participantID string) {
	a.sendCtrl(control{kind: ctrlDisconnected, participantID: participantID}, false)
}

// Start moves the session out of the lobby and begins phase 0.
func (a *Actor) Start() error {
	reply, err := a.sendCtrl(control{kind: ctrlStart}, true)
	if err != nil {
		return err
	}
	return reply.err
}

// Remove drops a participant from the roster, notifies everyone, kicks the
// participant's connection, and re-evaluates completeness and barriers
// against the smaller roster.
func (a *Actor) Remove(participantID string) error {
	reply, err := a.sendCtrl(control{kind: ctrlRemove, participantID: participantID}, true)
	if err != nil {
		return err
	}
	return reply.err
}

// State returns a read-only view of the session.
func (a *Actor) State() (StateView, error) {
	reply, err := a.sendCtrl(control{kind: ctrlState}, true)
	if err != nil {
		return StateView{}, err
	}
	return reply.view, reply.err
}

func (a *Actor) sendCtrl(c control, wantReply bool) (ctrlReply, error) {
	if wantReply {
		c.reply = make(chan ctrlReply, 1)
	}
	select {
	case a.mailbox <- c:
	case <-a.stopCh:
		return ctrlReply{}, ErrSessionClosed
	}
	if !wantReply {
		return ctrlReply{}, nil
	}
	select {
	case reply := <-c.reply:
		return reply, nil
	case <-a.done:
		// The loop may have replied and exited in the same breath.
		select {
		case reply := <-c.reply:
			return reply, nil
		default:
			return ctrlReply{}, ErrSessionClosed
		}
	}
}

func (a *Actor) loop() {
	defer close(a.done)
	defer a.onStop(a.sess.ID)
	defer a.cancel()

	a.deadline = a.clock.NewTimer(time.Hour)
	a.deadline.Stop()
	defer a.deadline.Stop()

	// A resumed actor may come back mid-phase: re-arm the deadline (an
	// already-passed deadline fires immediately) and re-check conditions
	// that may have been satisfied right before the previous process died.
	if a.status == protocol.StatusQuestion {
		a.deadline.Reset(a.phase.Deadline().Sub(a.clock.Now()))
	}
	a.evaluate()

	for {
		select {
		case <-a.stopCh:
			return
		case m := <-a.mailbox:
			switch v := m.(type) {
			case inbound:
				a.handleMessage(v)
			case control:
				a.handleControl(v)
			}
		case <-a.deadline.Chan():
			a.handleDeadline()
		}
	}
}

func (a *Actor) handleControl(c control) {
	var reply ctrlReply

	switch c.kind {
	case ctrlConnected:
		a.connected[c.participantID] = true
		a.sendPhaseState(c.participantID)
		a.maybeAutoStart()

	case ctrlDisconnected:
		delete(a.connected, c.participantID)

	case ctrlStart:
		reply.err = a.startSession()

	case ctrlRemove:
		reply.err = a.removeParticipant(c.participantID)

	case ctrlState:
		reply.view = a.buildView()
	}

	if c.reply != nil {
		c.reply <- reply
	}
}

func (a *Actor) handleMessage(in inbound) {
	if in.msg.SessionID != "" && in.msg.SessionID != a.sess.ID {
		log.Warn().
			Str("session_id", a.sess.ID).
			Str("message_session_id", in.msg.SessionID).
			Str("participant_id", in.from).
			Msg("dropping message addressed to another session")
		return
	}

	payload, err := protocol.ParsePayload(in.msg)
	if err != nil {
		log.Error().Err(err).
			Str("session_id", a.sess.ID).
			Str("type", string(in.msg.Type)).
			Str("participant_id", in.from).
			Msg("failed to parse message payload")
		return
	}

	switch p := payload.(type) {
	case protocol.SubmitPayload:
		a.handleSubmit(in.from, p)
	case protocol.ReadyForResultsPayload:
		a.handleReady(session.BarrierResults, in.from, p.PhaseIndex)
	case protocol.ReadyToContinuePayload:
		a.handleReady(session.BarrierContinue, in.from, p.PhaseIndex)
	case protocol.StateRequestPayload:
		a.sendPhaseState(in.from)
	default:
		if in.msg.Type == protocol.MessageTypePing {
			return
		}
		log.Debug().
			Str("session_id", a.sess.ID).
			Str("type", string(in.msg.Type)).
			Str("participant_id", in.from).
			Msg("ignoring unexpected message type")
	}
}

func (a *Actor) handleSubmit(from string, p protocol.SubmitPayload) {
	if p.ParticipantID != "" && p.ParticipantID != from {
		log.Warn().
			Str("session_id", a.sess.ID).
			Str("participant_id", from).
			Str("claimed_id", p.ParticipantID).
			Msg("submit payload claims another participant, using connection identity")
	}
	if !a.sess.Roster.Contains(from) {
		log.Warn().
			Str("session_id", a.sess.ID).
			Str("participant_id", from).
			Msg("dropping submission from non-roster participant")
		return
	}
	if a.status != protocol.StatusQuestion || p.PhaseIndex != a.phase.Index {
		log.Debug().
			Str("session_id", a.sess.ID).
			Str("participant_id", from).
			Int("phase_index", p.PhaseIndex).
			Str("status", string(a.status)).
			Msg("dropping stale submission")
		return
	}

	accepted := a.ledger.Submit(from, p.PhaseIndex, p.Payload)
	count := a.ledger.Count(p.PhaseIndex)
	if accepted {
		a.persistSnapshot()
	} else {
		log.Debug().
			Str("session_id", a.sess.ID).
			Str("participant_id", from).
			Int("phase_index", p.PhaseIndex).
			Msg("duplicate submission, re-acking with unchanged count")
	}

	// The ack goes to everyone: it doubles as the live submission counter.
	a.broadcast(protocol.MessageTypeSubmissionAck, protocol.SubmissionAckPayload{
		ParticipantID: from,
		PhaseIndex:    p.PhaseIndex,
		Count:         count,
	})

	a.evaluate()
}

func (a *Actor) handleReady(kind session.BarrierKind, from string, phaseIndex int) {
	if !a.sess.Roster.Contains(from) {
		log.Warn().
			Str("session_id", a.sess.ID).
			Str("participant_id", from).
			Str("barrier", string(kind)).
			Msg("dropping readiness signal from non-roster participant")
		return
	}
	if phaseIndex != a.phase.Index {
		log.Debug().
			Str("session_id", a.sess.ID).
			Str("participant_id", from).
			Int("phase_index", phaseIndex).
			Msg("dropping stale readiness signal")
		return
	}

	// Readiness only counts once the session is actually at that gate.
	switch kind {
	case session.BarrierResults:
		if a.status != protocol.StatusAwaitingResults && a.status != protocol.StatusResults {
			return
		}
	case session.BarrierContinue:
		if a.status != protocol.StatusResults {
			return
		}
	}

	if a.barriers.Mark(kind, phaseIndex, from) {
		a.persistSnapshot()
	}
	a.evaluate()
}

func (a *Actor) handleDeadline() {
	if a.status != protocol.StatusQuestion || !a.phase.Expired(a.clock.Now()) {
		return
	}
	log.Info().
		Str("session_id", a.sess.ID).
		Int("phase_index", a.phase.Index).
		Int("submissions", a.ledger.Count(a.phase.Index)).
		Msg("phase deadline passed, forcing completion")
	a.closePhase(true)
	a.evaluate()
}

// evaluate re-checks every advance condition against current state and keeps
// transitioning until none holds. Removal, submission, and readiness paths
// all funnel through here, which is what makes barrier satisfaction
// level-triggered.
func (a *Actor) evaluate() {
	for {
		if a.sess.Roster.Size() == 0 {
			return
		}
		switch a.status {
		case protocol.StatusQuestion:
			if a.ledger.IsComplete(a.phase.Index, a.sess.Roster) {
				a.closePhase(false)
				continue
			}
		case protocol.StatusAwaitingResults:
			if a.barriers.Satisfied(session.BarrierResults, a.phase.Index, a.sess.Roster) {
				a.revealResults()
				continue
			}
		case protocol.StatusResults:
			if a.barriers.Satisfied(session.BarrierContinue, a.phase.Index, a.sess.Roster) {
				a.advance()
				continue
			}
		}
		return
	}
}

func (a *Actor) startSession() error {
	if a.status != protocol.StatusLobby {
		return fmt.Errorf("session %s already started", a.sess.ID)
	}
	if a.sess.Roster.Size() == 0 {
		return fmt.Errorf("session %s has no participants", a.sess.ID)
	}

	now := a.clock.Now()
	a.startedAt = now
	log.Info().
		Str("session_id", a.sess.ID).
		Str("script", a.sess.Script.Name).
		Int("roster_size", a.sess.Roster.Size()).
		Msg("starting session")

	a.emitFeed(a.outboxAppend(events.EventTypeSessionStarted), events.SessionStartedPayload{
		SessionID:   a.sess.ID,
		ScriptName:  a.sess.Script.Name,
		Roster:      a.sess.Roster.IDs(),
		StartedAt:   now,
		TotalPhases: a.sess.Script.Len(),
	})

	a.beginPhase(0)
	a.evaluate()
	return nil
}

func (a *Actor) maybeAutoStart() {
	if a.status != protocol.StatusLobby || !a.sess.Script.AutoStart {
		return
	}
	for id := range a.sess.Roster {
		if !a.connected[id] {
			return
		}
	}
	if err := a.startSession(); err != nil {
		log.Error().Err(err).Str("session_id", a.sess.ID).Msg("auto-start failed")
	}
}

// beginPhase installs the phase at index as current, announces it, and arms
// the deadline timer.
func (a *Actor) beginPhase(index int) {
	def, ok := a.sess.Script.PhaseAt(index)
	if !ok {
		log.Error().
			Str("session_id", a.sess.ID).
			Int("phase_index", index).
			Msg("phase index out of script range")
		return
	}

	now := a.clock.Now()
	a.phase = def.Begin(index, now)
	a.status = protocol.StatusQuestion
	a.deadline.Reset(a.phase.Duration)

	log.Info().
		Str("session_id", a.sess.ID).
		Int("phase_index", index).
		Str("phase", def.Name).
		Int("duration_sec", def.DurationSeconds).
		Msg("phase started")

	a.broadcast(protocol.MessageTypePhaseStart, phaseStartPayload(a.phase))
	a.emitFeed(a.outboxAppend(events.EventTypePhaseStarted), events.PhaseStartedPayload{
		SessionID:       a.sess.ID,
		PhaseName:       def.Name,
		PhaseIndex:      index,
		Kind:            def.Kind,
		StartedAt:       now,
		DeadlineAt:      a.phase.Deadline(),
		DurationSeconds: def.DurationSeconds,
	})
	a.persistSnapshot()
}

// closePhase stops accepting submissions for the current phase. Forced marks
// a deadline expiry with submissions still missing.
func (a *Actor) closePhase(forced bool) {
	a.status = protocol.StatusAwaitingResults
	a.deadline.Stop()
	count := a.ledger.Count(a.phase.Index)

	log.Info().
		Str("session_id", a.sess.ID).
		Int("phase_index", a.phase.Index).
		Int("submissions", count).
		Bool("forced", forced).
		Msg("phase complete")

	a.broadcast(protocol.MessageTypePhaseComplete, protocol.PhaseCompletePayload{
		PhaseIndex: a.phase.Index,
		Count:      count,
	})
	a.emitFeed(a.outboxAppend(events.EventTypePhaseCompleted), events.PhaseCompletedPayload{
		SessionID:       a.sess.ID,
		PhaseIndex:      a.phase.Index,
		SubmissionCount: count,
		Forced:          forced,
		CompletedAt:     a.clock.Now(),
	})
	a.persistSnapshot()
}

func (a *Actor) revealResults() {
	a.status = protocol.StatusResults
	aggregates := BuildAggregates(a.ledger.Answers(a.phase.Index))

	log.Info().
		Str("session_id", a.sess.ID).
		Int("phase_index", a.phase.Index).
		Int("answers", aggregates.Count).
		Msg("results ready")

	a.broadcast(protocol.MessageTypeResultsReady, protocol.ResultsReadyPayload{
		PhaseIndex: a.phase.Index,
		Aggregates: aggregates,
	})
	a.emitFeed(a.outboxAppend(events.EventTypeResultsRevealed), events.ResultsRevealedPayload{
		SessionID:    a.sess.ID,
		PhaseIndex:   a.phase.Index,
		Count:        aggregates.Count,
		Distribution: aggregates.Distribution,
		RevealedAt:   a.clock.Now(),
	})
	a.persistSnapshot()
}

func (a *Actor) advance() {
	from := a.phase.Index

	a.broadcast(protocol.MessageTypeAllReadyToContinue, protocol.AllReadyToContinuePayload{
		PhaseIndex: from,
	})
	a.emitFeed(a.outboxAppend(events.EventTypePhaseAdvanced), events.PhaseAdvancedPayload{
		SessionID:  a.sess.ID,
		FromIndex:  from,
		ToIndex:    from + 1,
		AdvancedAt: a.clock.Now(),
	})

	if from == a.sess.Script.LastIndex() {
		a.endSession()
		return
	}
	a.beginPhase(from + 1)
}

func (a *Actor) endSession() {
	a.status = protocol.StatusEnded
	a.deadline.Stop()
	now := a.clock.Now()

	log.Info().
		Str("session_id", a.sess.ID).
		Int("final_index", a.phase.Index).
		Msg("session ended")

	a.broadcast(protocol.MessageTypeSessionEnded, protocol.SessionEndedPayload{
		FinalIndex: a.phase.Index,
	})
	a.emitFeed(a.outboxAppend(events.EventTypeSessionEnded), events.SessionEndedPayload{
		SessionID:  a.sess.ID,
		FinalIndex: a.phase.Index,
		EndedAt:    now,
		Duration:   now.Sub(a.startedAt).String(),
	})

	if a.sender != nil {
		a.sender.CloseAll(a.sess.ID, protocol.CloseCodeNormal)
	}
	if a.snapshots != nil {
		if err := a.snapshots.Delete(a.ctx, a.sess.ID); err != nil {
			log.Error().Err(err).Str("session_id", a.sess.ID).Msg("failed to delete snapshot")
		}
	}
	a.stop()
}

func (a *Actor) removeParticipant(participantID string) error {
	if !a.sess.Roster.Contains(participantID) {
		return ErrNotInRoster
	}

	a.sess.Roster.Remove(participantID)
	delete(a.connected, participantID)

	log.Info().
		Str("session_id", a.sess.ID).
		Str("participant_id", participantID).
		Int("roster_size", a.sess.Roster.Size()).
		Msg("participant removed")

	a.broadcast(protocol.MessageTypeParticipantRemoved, protocol.ParticipantRemovedPayload{
		ParticipantID: participantID,
	})
	a.emitFeed(a.outboxAppend(events.EventTypeParticipantRemoved), events.ParticipantRemovedPayload{
		SessionID:     a.sess.ID,
		ParticipantID: participantID,
		RemovedAt:     a.clock.Now(),
		RosterSize:    a.sess.Roster.Size(),
	})
	if a.sender != nil {
		a.sender.Kick(a.sess.ID, participantID, protocol.CloseCodeRemoved)
	}

	if a.sess.Roster.Size() == 0 {
		log.Info().Str("session_id", a.sess.ID).Msg("roster empty, ending session")
		a.endSession()
		return nil
	}

	// The departure may have been the last thing a gate was waiting on.
	a.evaluate()
	a.maybeAutoStart()
	a.persistSnapshot()
	return nil
}

func (a *Actor) sendPhaseState(participantID string) {
	state := a.buildPhaseState(participantID)
	msg, err := protocol.NewMessage(protocol.MessageTypePhaseState, a.sess.ID, state)
	if err != nil {
		log.Error().Err(err).Str("session_id", a.sess.ID).Msg("failed to build phase_state")
		return
	}
	if a.sender != nil {
		a.sender.SendTo(a.sess.ID, participantID, msg.Stamped(a.clock.Now()))
	}
}

func (a *Actor) buildPhaseState(participantID string) protocol.PhaseStatePayload {
	state := protocol.PhaseStatePayload{
		Status: a.status,
		Roster: a.sess.Roster.IDs(),
	}
	if a.status == protocol.StatusLobby || a.status == protocol.StatusEnded {
		return state
	}

	phase := phaseStartPayload(a.phase)
	state.Phase = &phase
	state.SubmissionCount = a.ledger.Count(a.phase.Index)
	state.Submitted = a.ledger.HasSubmitted(participantID, a.phase.Index)
	state.ReadyForResults = a.barriers.IsReady(session.BarrierResults, a.phase.Index, participantID)
	state.ReadyToContinue = a.barriers.IsReady(session.BarrierContinue, a.phase.Index, participantID)
	if a.status == protocol.StatusResults {
		aggregates := BuildAggregates(a.ledger.Answers(a.phase.Index))
		state.Aggregates = &aggregates
	}
	return state
}

func (a *Actor) buildView() StateView {
	view := StateView{
		SessionID:   a.sess.ID,
		Status:      a.status,
		ScriptName:  a.sess.Script.Name,
		TotalPhases: a.sess.Script.Len(),
		PhaseIndex:  -1,
		Roster:      a.sess.Roster.IDs(),
	}
	for id := range a.connected {
		view.Connected = append(view.Connected, id)
	}
	if a.status == protocol.StatusLobby {
		return view
	}

	view.PhaseIndex = a.phase.Index
	view.PhaseName = a.phase.Name
	view.PhaseKind = a.phase.Kind
	start := a.phase.StartTime
	view.StartTime = &start
	view.DurationSeconds = a.phase.DurationSeconds()
	if a.status == protocol.StatusQuestion {
		view.RemainingSeconds = a.phase.RemainingSeconds(a.clock.Now())
	}
	view.SubmissionCount = a.ledger.Count(a.phase.Index)
	view.ReadyForResults = a.barriers.ReadyCount(session.BarrierResults, a.phase.Index)
	view.ReadyToContinue = a.barriers.ReadyCount(session.BarrierContinue, a.phase.Index)
	return view
}

func (a *Actor) broadcast(msgType protocol.MessageType, payload interface{}) {
	msg, err := protocol.NewMessage(msgType, a.sess.ID, payload)
	if err != nil {
		log.Error().Err(err).
			Str("session_id", a.sess.ID).
			Str("type", string(msgType)).
			Msg("failed to build broadcast message")
		return
	}
	if a.sender != nil {
		a.sender.Broadcast(a.sess.ID, msg.Stamped(a.clock.Now()))
	}
}

// outboxAppend maps a feed event type to the matching appender method.
func (a *Actor) outboxAppend(eventType events.EventType) func(context.Context, string, []byte) error {
	if a.outbox == nil {
		return nil
	}
	switch eventType {
	case events.EventTypeSessionStarted:
		return a.outbox.AppendSessionStarted
	case events.EventTypePhaseStarted:
		return a.outbox.AppendPhaseStarted
	case events.EventTypePhaseCompleted:
		return a.outbox.AppendPhaseCompleted
	case events.EventTypeResultsRevealed:
		return a.outbox.AppendResultsRevealed
	case events.EventTypePhaseAdvanced:
		return a.outbox.AppendPhaseAdvanced
	case events.EventTypeSessionEnded:
		return a.outbox.AppendSessionEnded
	case events.EventTypeParticipantRemoved:
		return a.outbox.AppendParticipantRemoved
	default:
		return nil
	}
}

// emitFeed appends a feed event to the outbox. Emission is best effort; the
// state transition it describes has already happened.
func (a *Actor) emitFeed(insert func(context.Context, string, []byte) error, payload interface{}) {
	if insert == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("session_id", a.sess.ID).Msg("failed to marshal feed payload")
		return
	}
	if err := insert(a.ctx, a.sess.ID, data); err != nil {
		log.Error().Err(err).Str("session_id", a.sess.ID).Msg("failed to append feed event")
	}
}

func (a *Actor) persistSnapshot() {
	if a.snapshots == nil {
		return
	}
	snap := &store.Snapshot{
		SessionID:  a.sess.ID,
		Script:     a.sess.Script,
		Status:     a.status,
		PhaseIndex: a.phase.Index,
		PhaseStart: a.phase.StartTime,
		StartedAt:  a.startedAt,
		Roster:     a.sess.Roster.IDs(),
		Submitted:  a.ledger.Submitters(a.phase.Index),
		ReadyFor:   a.barriers.Ready(session.BarrierResults, a.phase.Index),
		ReadyNext:  a.barriers.Ready(session.BarrierContinue, a.phase.Index),
		Answers:    a.ledger.Answers(a.phase.Index),
		UpdatedAt:  a.clock.Now(),
	}
	if err := a.snapshots.Save(a.ctx, snap); err != nil {
		log.Error().Err(err).Str("session_id", a.sess.ID).Msg("failed to persist snapshot")
	}
}

func phaseStartPayload(p session.Phase) protocol.PhaseStartPayload {
	return protocol.PhaseStartPayload{
		Name:            p.Name,
		Index:           p.Index,
		Kind:            p.Kind,
		StartTime:       p.StartTime,
		DurationSeconds: p.DurationSeconds(),
	}
}
