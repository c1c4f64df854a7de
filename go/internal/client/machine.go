package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/hotseat/go/internal/session"
	"github.com/mcdev12/hotseat/go/internal/session/clock"
	"github.com/mcdev12/hotseat/go/internal/session/protocol"
)

// ErrAlreadySubmitted is returned by Submit when this phase already has an
// answer from the local participant.
var ErrAlreadySubmitted = errors.New("already submitted for this phase")

// Stage is the participant's position in the phase progression.
type Stage string

const (
	StageIdle            Stage = "idle"
	StageLobby           Stage = "lobby"
	StageQuestion        Stage = "question"
	StageAwaitingResults Stage = "awaiting_results"
	StageResults         Stage = "results"
	StageEnded           Stage = "ended"
	StageRemoved         Stage = "removed"
)

// MachineConfig tunes the machine's three timers.
type MachineConfig struct {
	// AutoContinueDelay is how long the results view stays up before the
	// machine signals ready_to_continue on the participant's behalf.
	AutoContinueDelay time.Duration
	// ReannounceWindow is how long to wait for phase_complete after the local
	// submission before re-sending it once.
	ReannounceWindow time.Duration
	// ResyncWindow is how long a buffered future message may wait before the
	// machine requests a full snapshot instead.
	ResyncWindow time.Duration
}

func (c MachineConfig) withDefaults() MachineConfig {
	if c.AutoContinueDelay <= 0 {
		c.AutoContinueDelay = 7 * time.Second
	}
	if c.ReannounceWindow <= 0 {
		c.ReannounceWindow = 10 * time.Second
	}
	if c.ResyncWindow <= 0 {
		c.ResyncWindow = 10 * time.Second
	}
	return c
}

// Update is a read-only view of the machine handed to the presentation
// callback after every state change.
type Update struct {
	Stage            Stage
	PhaseIndex       int
	PhaseName        string
	PhaseKind        string
	RemainingSeconds int
	SubmissionCount  int
	Roster           []string
	Submitted        bool
	Aggregates       *protocol.ResultAggregates
}

// Machine follows the hub's phase progression for one participant. It holds
// only projections of hub state, rebuilt from received messages; the hub's
// decisions (phase complete, barriers satisfied, advance) are applied, never
// made locally. None of its methods are safe for concurrent use: the owning
// loop serializes frames, timer fires, and user actions.
//
// Messages tagged with a phase index below the current one are dropped;
// messages beyond the next phase are buffered and replayed in order once
// their index becomes current.
type Machine struct {
	sessionID     string
	participantID string
	cfg           MachineConfig
	sync          *clock.Synchronizer
	send          func(*protocol.Message)
	notify        func(Update)

	stage           Stage
	phaseIndex      int
	phase           *session.Phase
	roster          []string
	submissionCount int
	aggregates      *protocol.ResultAggregates

	submitted           bool
	sentReadyForResults bool
	sentReadyToContinue bool
	lastSubmit          json.RawMessage
	reannounced         bool

	future   map[int][]*protocol.Message
	draining bool

	autoContinue clockwork.Timer
	reannounce   clockwork.Timer
	resync       clockwork.Timer
	resyncArmed  bool
}

// NewMachine creates a machine in the Idle stage. send delivers outbound
// envelopes to the transport; notify, if non-nil, observes every state
// change.
func NewMachine(clk clockwork.Clock, sessionID, participantID string, cfg MachineConfig, syncr *clock.Synchronizer, send func(*protocol.Message), notify func(Update)) *Machine {
	m := &Machine{
		sessionID:     sessionID,
		participantID: participantID,
		cfg:           cfg.withDefaults(),
		sync:          syncr,
		send:          send,
		notify:        notify,
		stage:         StageIdle,
		phaseIndex:    -1,
		future:        make(map[int][]*protocol.Message),
		autoContinue:  clk.NewTimer(time.Hour),
		reannounce:    clk.NewTimer(time.Hour),
		resync:        clk.NewTimer(time.Hour),
	}
	m.autoContinue.Stop()
	m.reannounce.Stop()
	m.resync.Stop()
	return m
}

// AutoContinueChan fires when the results view has been up long enough to
// continue automatically.
func (m *Machine) AutoContinueChan() <-chan time.Time { return m.autoContinue.Chan() }

// ReannounceChan fires when the submission should be re-sent once.
func (m *Machine) ReannounceChan() <-chan time.Time { return m.reannounce.Chan() }

// ResyncChan fires when buffered future messages have waited too long.
func (m *Machine) ResyncChan() <-chan time.Time { return m.resync.Chan() }

// HandleMessage applies one hub message to the machine.
func (m *Machine) HandleMessage(msg *protocol.Message) {
	payload, err := protocol.ParsePayload(msg)
	if err != nil {
		log.Warn().Err(err).Str("type", string(msg.Type)).Msg("dropping malformed payload")
		return
	}

	switch p := payload.(type) {
	case protocol.PhaseStatePayload:
		m.applySnapshot(p)

	case protocol.PhaseStartPayload:
		switch {
		case p.Index <= m.phaseIndex:
			log.Debug().Int("index", p.Index).Int("current", m.phaseIndex).Msg("dropping stale phase_start")
		case p.Index == m.phaseIndex+1:
			m.beginPhase(p)
		default:
			m.bufferMessage(p.Index, msg)
		}

	case protocol.SubmissionAckPayload:
		if m.gate(p.PhaseIndex, msg) {
			m.handleAck(p)
		}

	case protocol.PhaseCompletePayload:
		if m.gate(p.PhaseIndex, msg) {
			m.handlePhaseComplete(p)
		}

	case protocol.ResultsReadyPayload:
		if m.gate(p.PhaseIndex, msg) {
			m.handleResultsReady(p)
		}

	case protocol.AllReadyToContinuePayload:
		if m.gate(p.PhaseIndex, msg) {
			m.handleAllReady(p)
		}

	case protocol.SessionEndedPayload:
		m.handleEnded(p)

	case protocol.ParticipantRemovedPayload:
		m.handleRemoved(p)

	default:
		log.Debug().Str("type", string(msg.Type)).Msg("ignoring message type on participant side")
	}
}

// gate applies the stale/future filter for index-tagged messages. It returns
// true when the message is for the current phase and should be applied now.
func (m *Machine) gate(index int, msg *protocol.Message) bool {
	switch {
	case index < m.phaseIndex:
		log.Debug().
			Str("type", string(msg.Type)).
			Int("index", index).
			Int("current", m.phaseIndex).
			Msg("dropping stale message")
		return false
	case index > m.phaseIndex:
		m.bufferMessage(index, msg)
		return false
	default:
		return true
	}
}

func (m *Machine) bufferMessage(index int, msg *protocol.Message) {
	m.future[index] = append(m.future[index], msg)
	if !m.resyncArmed {
		m.resync.Reset(m.cfg.ResyncWindow)
		m.resyncArmed = true
	}
	log.Debug().
		Str("type", string(msg.Type)).
		Int("index", index).
		Int("current", m.phaseIndex).
		Msg("buffered future message")
}

// applySnapshot replaces the machine's projection with the hub's full view.
// Buffered messages at or below the snapshot's index are superseded by it and
// discarded; later ones replay through the normal gates.
func (m *Machine) applySnapshot(p protocol.PhaseStatePayload) {
	m.roster = append([]string(nil), p.Roster...)
	sort.Strings(m.roster)
	m.submissionCount = p.SubmissionCount
	m.aggregates = p.Aggregates
	m.submitted = p.Submitted
	m.sentReadyForResults = p.ReadyForResults
	m.sentReadyToContinue = p.ReadyToContinue
	m.reannounced = false
	m.lastSubmit = nil
	m.autoContinue.Stop()
	m.reannounce.Stop()

	if p.Phase != nil {
		m.installPhase(*p.Phase)
	} else {
		m.phase = nil
		m.phaseIndex = -1
	}

	switch p.Status {
	case protocol.StatusLobby:
		m.stage = StageLobby
	case protocol.StatusQuestion:
		m.stage = StageQuestion
	case protocol.StatusAwaitingResults:
		m.stage = StageAwaitingResults
		m.sendReadyForResults()
	case protocol.StatusResults:
		m.stage = StageResults
		if !m.sentReadyToContinue {
			m.autoContinue.Reset(m.cfg.AutoContinueDelay)
		}
	case protocol.StatusEnded:
		m.stage = StageEnded
	default:
		log.Warn().Str("status", string(p.Status)).Msg("snapshot with unknown status")
		return
	}

	log.Info().
		Str("status", string(p.Status)).
		Int("phase_index", m.phaseIndex).
		Msg("applied state snapshot")

	for idx := range m.future {
		if idx <= m.phaseIndex {
			delete(m.future, idx)
		}
	}
	m.resyncArmed = false
	m.resync.Stop()
	m.notifyUpdate()
	m.replayBuffered()
}

func (m *Machine) installPhase(p protocol.PhaseStartPayload) {
	m.phase = &session.Phase{
		Name:      p.Name,
		Index:     p.Index,
		Kind:      p.Kind,
		StartTime: p.StartTime,
		Duration:  time.Duration(p.DurationSeconds) * time.Second,
	}
	m.phaseIndex = p.Index
}

// beginPhase advances to the next phase and re-arms every per-phase guard.
func (m *Machine) beginPhase(p protocol.PhaseStartPayload) {
	m.installPhase(p)
	m.stage = StageQuestion
	m.submissionCount = 0
	m.aggregates = nil
	m.submitted = false
	m.sentReadyForResults = false
	m.sentReadyToContinue = false
	m.reannounced = false
	m.lastSubmit = nil
	m.autoContinue.Stop()
	m.reannounce.Stop()

	log.Info().
		Int("index", p.Index).
		Str("name", p.Name).
		Int("duration_seconds", p.DurationSeconds).
		Msg("phase started")

	m.notifyUpdate()
	m.replayBuffered()
}

// replayBuffered re-applies buffered messages whose index has become
// reachable: everything at the current index, and the bucket at current+1
// when it contains the phase_start that advances to it.
func (m *Machine) replayBuffered() {
	if m.draining {
		return
	}
	m.draining = true
	defer func() { m.draining = false }()

	for {
		if msgs, ok := m.future[m.phaseIndex]; ok {
			delete(m.future, m.phaseIndex)
			for _, bm := range msgs {
				m.HandleMessage(bm)
			}
			continue
		}

		next, ok := m.future[m.phaseIndex+1]
		if !ok || !containsPhaseStart(next) {
			break
		}
		delete(m.future, m.phaseIndex+1)
		for _, bm := range next {
			m.HandleMessage(bm)
		}
	}

	if len(m.future) == 0 && m.resyncArmed {
		m.resync.Stop()
		m.resyncArmed = false
	}
}

func containsPhaseStart(msgs []*protocol.Message) bool {
	for _, msg := range msgs {
		if msg.Type == protocol.MessageTypePhaseStart {
			return true
		}
	}
	return false
}

func (m *Machine) handleAck(p protocol.SubmissionAckPayload) {
	m.submissionCount = p.Count
	if p.ParticipantID == m.participantID {
		m.submitted = true
	}
	m.notifyUpdate()
}

func (m *Machine) handlePhaseComplete(p protocol.PhaseCompletePayload) {
	m.reannounce.Stop()
	if m.stage != StageQuestion {
		return
	}
	m.stage = StageAwaitingResults
	m.submissionCount = p.Count
	m.sendReadyForResults()
	m.notifyUpdate()
}

func (m *Machine) handleResultsReady(p protocol.ResultsReadyPayload) {
	if m.stage != StageQuestion && m.stage != StageAwaitingResults {
		return
	}
	m.stage = StageResults
	aggregates := p.Aggregates
	m.aggregates = &aggregates
	if !m.sentReadyToContinue {
		m.autoContinue.Reset(m.cfg.AutoContinueDelay)
	}
	m.notifyUpdate()
}

func (m *Machine) handleAllReady(p protocol.AllReadyToContinuePayload) {
	// The hub follows up with phase_start for the next index; nothing to
	// advance here yet.
	m.autoContinue.Stop()
	log.Debug().Int("index", p.PhaseIndex).Msg("roster ready to continue")
}

func (m *Machine) handleEnded(p protocol.SessionEndedPayload) {
	m.stage = StageEnded
	m.stopAllTimers()
	m.future = make(map[int][]*protocol.Message)
	log.Info().Int("final_index", p.FinalIndex).Msg("session ended")
	m.notifyUpdate()
}

func (m *Machine) handleRemoved(p protocol.ParticipantRemovedPayload) {
	if p.ParticipantID == m.participantID {
		m.stage = StageRemoved
		m.stopAllTimers()
		m.future = make(map[int][]*protocol.Message)
		log.Info().Msg("removed from session")
		m.notifyUpdate()
		return
	}

	kept := m.roster[:0]
	for _, id := range m.roster {
		if id != p.ParticipantID {
			kept = append(kept, id)
		}
	}
	m.roster = kept
	log.Info().Str("participant_id", p.ParticipantID).Msg("participant removed from roster")
	m.notifyUpdate()
}

// Submit sends the participant's answer for the current phase. A second call
// during the same phase returns ErrAlreadySubmitted without sending.
func (m *Machine) Submit(payload json.RawMessage) error {
	if m.stage != StageQuestion {
		return fmt.Errorf("cannot submit in stage %s", m.stage)
	}
	if m.submitted {
		return ErrAlreadySubmitted
	}
	m.submitted = true
	m.lastSubmit = payload
	m.sendSubmit(payload)
	m.reannounce.Reset(m.cfg.ReannounceWindow)
	return nil
}

// Continue signals that the participant is done with the results view.
func (m *Machine) Continue() error {
	if m.stage != StageResults {
		return fmt.Errorf("cannot continue in stage %s", m.stage)
	}
	m.autoContinue.Stop()
	m.sendReadyToContinue()
	return nil
}

// RequestState asks the hub for a full snapshot.
func (m *Machine) RequestState() {
	m.sendMessage(protocol.MessageTypeStateRequest, protocol.StateRequestPayload{
		ParticipantID: m.participantID,
	})
}

// AutoContinueElapsed continues on the participant's behalf once the results
// view has been up for the configured delay.
func (m *Machine) AutoContinueElapsed() {
	if m.stage != StageResults {
		return
	}
	m.sendReadyToContinue()
}

// ReannounceElapsed re-sends the local submission once if the hub has not
// closed the phase since it was sent.
func (m *Machine) ReannounceElapsed() {
	if m.stage != StageQuestion || !m.submitted || m.reannounced || m.lastSubmit == nil {
		return
	}
	m.reannounced = true
	log.Info().Int("phase_index", m.phaseIndex).Msg("re-announcing submission")
	m.sendSubmit(m.lastSubmit)
}

// ResyncElapsed requests a snapshot when buffered future messages never
// became applicable, instead of waiting on them forever.
func (m *Machine) ResyncElapsed() {
	m.resyncArmed = false
	if len(m.future) == 0 {
		return
	}
	log.Warn().
		Int("buffered", len(m.future)).
		Int("current", m.phaseIndex).
		Msg("buffered messages stalled, requesting snapshot")
	m.RequestState()
}

// View returns the current state for presentation.
func (m *Machine) View() Update {
	return m.buildUpdate()
}

func (m *Machine) buildUpdate() Update {
	u := Update{
		Stage:           m.stage,
		PhaseIndex:      m.phaseIndex,
		SubmissionCount: m.submissionCount,
		Roster:          append([]string(nil), m.roster...),
		Submitted:       m.submitted,
		Aggregates:      m.aggregates,
	}
	if m.phase != nil {
		u.PhaseName = m.phase.Name
		u.PhaseKind = m.phase.Kind
		if m.stage == StageQuestion {
			u.RemainingSeconds = m.phase.RemainingSeconds(m.sync.Now())
		}
	}
	return u
}

func (m *Machine) notifyUpdate() {
	if m.notify != nil {
		m.notify(m.buildUpdate())
	}
}

func (m *Machine) sendSubmit(payload json.RawMessage) {
	m.sendMessage(protocol.MessageTypeSubmit, protocol.SubmitPayload{
		ParticipantID: m.participantID,
		PhaseIndex:    m.phaseIndex,
		Payload:       payload,
	})
}

func (m *Machine) sendReadyForResults() {
	if m.sentReadyForResults {
		return
	}
	m.sentReadyForResults = true
	m.sendMessage(protocol.MessageTypeReadyForResults, protocol.ReadyForResultsPayload{
		ParticipantID: m.participantID,
		PhaseIndex:    m.phaseIndex,
	})
}

func (m *Machine) sendReadyToContinue() {
	if m.sentReadyToContinue {
		return
	}
	m.sentReadyToContinue = true
	m.sendMessage(protocol.MessageTypeReadyToContinue, protocol.ReadyToContinuePayload{
		ParticipantID: m.participantID,
		PhaseIndex:    m.phaseIndex,
	})
}

func (m *Machine) sendMessage(msgType protocol.MessageType, payload interface{}) {
	msg, err := protocol.NewMessage(msgType, m.sessionID, payload)
	if err != nil {
		log.Error().Err(err).Str("type", string(msgType)).Msg("failed to build message")
		return
	}
	m.send(msg)
}

func (m *Machine) stopAllTimers() {
	m.autoContinue.Stop()
	m.reannounce.Stop()
	m.resync.Stop()
	m.resyncArmed = false
}
