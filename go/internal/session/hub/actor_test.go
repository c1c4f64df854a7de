package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/hotseat/go/internal/session"
	"github.com/mcdev12/hotseat/go/internal/session/protocol"
	"github.com/mcdev12/hotseat/go/internal/session/store"
)

type kickRecord struct {
	participantID string
	code          int
}

type fakeSender struct {
	mu         sync.Mutex
	broadcasts []*protocol.Message
	direct     map[string][]*protocol.Message
	kicks      []kickRecord
	closes     []int
}

func newFakeSender() *fakeSender {
	return &fakeSender{direct: make(map[string][]*protocol.Message)}
}

func (s *fakeSender) Broadcast(sessionID string, msg *protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcasts = append(s.broadcasts, msg)
}

func (s *fakeSender) SendTo(sessionID, participantID string, msg *protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.direct[participantID] = append(s.direct[participantID], msg)
}

func (s *fakeSender) Kick(sessionID, participantID string, closeCode int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kicks = append(s.kicks, kickRecord{participantID: participantID, code: closeCode})
}

func (s *fakeSender) CloseAll(sessionID string, closeCode int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes = append(s.closes, closeCode)
}

func (s *fakeSender) byType(msgType protocol.MessageType) []*protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*protocol.Message
	for _, msg := range s.broadcasts {
		if msg.Type == msgType {
			out = append(out, msg)
		}
	}
	return out
}

func (s *fakeSender) lastDirect(participantID string) *protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.direct[participantID]
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

type fakeOutbox struct {
	mu      sync.Mutex
	records map[string][][]byte
}

func newFakeOutbox() *fakeOutbox {
	return &fakeOutbox{records: make(map[string][][]byte)}
}

func (o *fakeOutbox) append(eventType string, payload []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records[eventType] = append(o.records[eventType], payload)
	return nil
}

func (o *fakeOutbox) AppendSessionStarted(ctx context.Context, sessionID string, payload []byte) error {
	return o.append("SessionStarted", payload)
}

func (o *fakeOutbox) AppendPhaseStarted(ctx context.Context, sessionID string, payload []byte) error {
	return o.append("PhaseStarted", payload)
}

func (o *fakeOutbox) AppendPhaseCompleted(ctx context.Context, sessionID string, payload []byte) error {
	return o.append("PhaseCompleted", payload)
}

func (o *fakeOutbox) AppendResultsRevealed(ctx context.Context, sessionID string, payload []byte) error {
	return o.append("ResultsRevealed", payload)
}

func (o *fakeOutbox) AppendPhaseAdvanced(ctx context.Context, sessionID string, payload []byte) error {
	return o.append("PhaseAdvanced", payload)
}

func (o *fakeOutbox) AppendSessionEnded(ctx context.Context, sessionID string, payload []byte) error {
	return o.append("SessionEnded", payload)
}

func (o *fakeOutbox) AppendParticipantRemoved(ctx context.Context, sessionID string, payload []byte) error {
	return o.append("ParticipantRemoved", payload)
}

func (o *fakeOutbox) count(eventType string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.records[eventType])
}

type testRig struct {
	hub    *Hub
	actor  *Actor
	sender *fakeSender
	outbox *fakeOutbox
	snaps  *store.MemoryStore
	clock  *clockwork.FakeClock
}

func twoPhaseScript(autoStart bool) *session.Script {
	return &session.Script{
		Name:      "test-script",
		AutoStart: autoStart,
		Phases: []session.PhaseDef{
			{Name: "q1", Kind: "question", DurationSeconds: 60},
			{Name: "q2", Kind: "question", DurationSeconds: 90},
		},
	}
}

func newTestRig(t *testing.T, script *session.Script, roster ...string) *testRig {
	t.Helper()

	fc := clockwork.NewFakeClock()
	sender := newFakeSender()
	outbox := newFakeOutbox()
	snaps := store.NewMemoryStore()

	h := NewHub(fc, outbox, snaps)
	h.SetSender(sender)

	id, err := h.CreateSession("sess-1", roster, script)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	actor, ok := h.Get(id)
	if !ok {
		t.Fatal("actor not registered")
	}
	t.Cleanup(func() {
		actor.stop()
	})

	return &testRig{hub: h, actor: actor, sender: sender, outbox: outbox, snaps: snaps, clock: fc}
}

func (r *testRig) deliver(t *testing.T, from string, msgType protocol.MessageType, payload interface{}) {
	t.Helper()
	msg, err := protocol.NewMessage(msgType, "sess-1", payload)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := r.actor.Deliver(from, msg); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
}

// state is a synchronization point: the mailbox is FIFO, so by the time the
// reply arrives every previously delivered message has been handled.
func (r *testRig) state(t *testing.T) StateView {
	t.Helper()
	view, err := r.actor.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	return view
}

func (r *testRig) submit(t *testing.T, from string, phaseIndex int, answer string) {
	t.Helper()
	r.deliver(t, from, protocol.MessageTypeSubmit, protocol.SubmitPayload{
		ParticipantID: from,
		PhaseIndex:    phaseIndex,
		Payload:       json.RawMessage(`"` + answer + `"`),
	})
}

func parsePayload(t *testing.T, msg *protocol.Message) interface{} {
	t.Helper()
	payload, err := protocol.ParsePayload(msg)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	return payload
}

func waitForStatus(t *testing.T, actor *Actor, want protocol.SessionStatus) StateView {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		view, err := actor.State()
		if err == nil && view.Status == want {
			return view
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("session never reached status %q", want)
	return StateView{}
}

func waitDone(t *testing.T, actor *Actor) {
	t.Helper()
	select {
	case <-actor.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("actor did not stop")
	}
}

func TestFullSessionFlow(t *testing.T) {
	rig := newTestRig(t, twoPhaseScript(false), "alice", "bob")

	if err := rig.actor.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	starts := rig.sender.byType(protocol.MessageTypePhaseStart)
	if len(starts) != 1 {
		t.Fatalf("phase_start broadcasts = %d, want 1", len(starts))
	}
	start := parsePayload(t, starts[0]).(protocol.PhaseStartPayload)
	if start.Index != 0 || start.Name != "q1" || start.DurationSeconds != 60 {
		t.Errorf("phase_start = %+v", start)
	}
	if starts[0].ServerTime == nil {
		t.Error("broadcast not stamped with server time")
	}

	// First submission acks with count 1; the duplicate re-acks count 1.
	rig.submit(t, "alice", 0, "red")
	rig.submit(t, "alice", 0, "green")
	view := rig.state(t)
	if view.SubmissionCount != 1 {
		t.Errorf("submission count = %d, want 1 after duplicate", view.SubmissionCount)
	}
	acks := rig.sender.byType(protocol.MessageTypeSubmissionAck)
	if len(acks) != 2 {
		t.Fatalf("acks = %d, want 2", len(acks))
	}
	for _, raw := range acks {
		ack := parsePayload(t, raw).(protocol.SubmissionAckPayload)
		if ack.Count != 1 || ack.ParticipantID != "alice" {
			t.Errorf("ack = %+v", ack)
		}
	}

	// Second participant completes the roster: the hub closes the phase.
	rig.submit(t, "bob", 0, "blue")
	view = rig.state(t)
	if view.Status != protocol.StatusAwaitingResults {
		t.Fatalf("status = %q, want awaiting_results", view.Status)
	}
	completes := rig.sender.byType(protocol.MessageTypePhaseComplete)
	if len(completes) != 1 {
		t.Fatalf("phase_complete broadcasts = %d, want 1", len(completes))
	}
	complete := parsePayload(t, completes[0]).(protocol.PhaseCompletePayload)
	if complete.PhaseIndex != 0 || complete.Count != 2 {
		t.Errorf("phase_complete = %+v", complete)
	}

	// Results gate: both participants must report ready.
	rig.deliver(t, "alice", protocol.MessageTypeReadyForResults, protocol.ReadyForResultsPayload{ParticipantID: "alice", PhaseIndex: 0})
	view = rig.state(t)
	if view.Status != protocol.StatusAwaitingResults || view.ReadyForResults != 1 {
		t.Fatalf("after one ready: status = %q ready = %d", view.Status, view.ReadyForResults)
	}

	rig.deliver(t, "bob", protocol.MessageTypeReadyForResults, protocol.ReadyForResultsPayload{ParticipantID: "bob", PhaseIndex: 0})
	view = rig.state(t)
	if view.Status != protocol.StatusResults {
		t.Fatalf("status = %q, want results", view.Status)
	}
	results := rig.sender.byType(protocol.MessageTypeResultsReady)
	if len(results) != 1 {
		t.Fatalf("results_ready broadcasts = %d, want 1", len(results))
	}
	ready := parsePayload(t, results[0]).(protocol.ResultsReadyPayload)
	if ready.Aggregates.Count != 2 {
		t.Errorf("aggregates = %+v", ready.Aggregates)
	}
	if ready.Aggregates.Distribution["red"] != 1 || ready.Aggregates.Distribution["blue"] != 1 {
		t.Errorf("distribution = %v", ready.Aggregates.Distribution)
	}

	// Continue gate advances to phase 1.
	rig.deliver(t, "alice", protocol.MessageTypeReadyToContinue, protocol.ReadyToContinuePayload{ParticipantID: "alice", PhaseIndex: 0})
	rig.deliver(t, "bob", protocol.MessageTypeReadyToContinue, protocol.ReadyToContinuePayload{ParticipantID: "bob", PhaseIndex: 0})
	view = rig.state(t)
	if view.Status != protocol.StatusQuestion || view.PhaseIndex != 1 {
		t.Fatalf("after continue: status = %q phase = %d", view.Status, view.PhaseIndex)
	}
	if got := len(rig.sender.byType(protocol.MessageTypeAllReadyToContinue)); got != 1 {
		t.Errorf("all_ready_to_continue broadcasts = %d, want 1", got)
	}
	starts = rig.sender.byType(protocol.MessageTypePhaseStart)
	if len(starts) != 2 {
		t.Fatalf("phase_start broadcasts = %d, want 2", len(starts))
	}
	second := parsePayload(t, starts[1]).(protocol.PhaseStartPayload)
	if second.Index != 1 || second.Name != "q2" || second.DurationSeconds != 90 {
		t.Errorf("second phase_start = %+v", second)
	}

	// Play out the final phase; the session ends instead of advancing.
	rig.submit(t, "alice", 1, "yes")
	rig.submit(t, "bob", 1, "no")
	rig.deliver(t, "alice", protocol.MessageTypeReadyForResults, protocol.ReadyForResultsPayload{ParticipantID: "alice", PhaseIndex: 1})
	rig.deliver(t, "bob", protocol.MessageTypeReadyForResults, protocol.ReadyForResultsPayload{ParticipantID: "bob", PhaseIndex: 1})
	rig.deliver(t, "alice", protocol.MessageTypeReadyToContinue, protocol.ReadyToContinuePayload{ParticipantID: "alice", PhaseIndex: 1})
	rig.deliver(t, "bob", protocol.MessageTypeReadyToContinue, protocol.ReadyToContinuePayload{ParticipantID: "bob", PhaseIndex: 1})

	waitDone(t, rig.actor)

	ended := rig.sender.byType(protocol.MessageTypeSessionEnded)
	if len(ended) != 1 {
		t.Fatalf("session_ended broadcasts = %d, want 1", len(ended))
	}
	final := parsePayload(t, ended[0]).(protocol.SessionEndedPayload)
	if final.FinalIndex != 1 {
		t.Errorf("final index = %d, want 1", final.FinalIndex)
	}
	rig.sender.mu.Lock()
	closes := append([]int(nil), rig.sender.closes...)
	rig.sender.mu.Unlock()
	if len(closes) != 1 || closes[0] != protocol.CloseCodeNormal {
		t.Errorf("closes = %v, want [1000]", closes)
	}
	if _, ok := rig.hub.Get("sess-1"); ok {
		t.Error("ended session still registered")
	}

	if rig.outbox.count("SessionStarted") != 1 ||
		rig.outbox.count("PhaseStarted") != 2 ||
		rig.outbox.count("PhaseCompleted") != 2 ||
		rig.outbox.count("ResultsRevealed") != 2 ||
		rig.outbox.count("PhaseAdvanced") != 2 ||
		rig.outbox.count("SessionEnded") != 1 {
		t.Errorf("feed events = %+v", rig.outbox.records)
	}
}

func TestDeadlineForcesPhaseCompletion(t *testing.T) {
	rig := newTestRig(t, twoPhaseScript(false), "alice", "bob")

	if err := rig.actor.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rig.submit(t, "alice", 0, "42")
	rig.state(t)

	rig.clock.Advance(61 * time.Second)
	view := waitForStatus(t, rig.actor, protocol.StatusAwaitingResults)
	if view.SubmissionCount != 1 {
		t.Errorf("submission count = %d, want 1", view.SubmissionCount)
	}

	completes := rig.sender.byType(protocol.MessageTypePhaseComplete)
	if len(completes) != 1 {
		t.Fatalf("phase_complete broadcasts = %d, want 1", len(completes))
	}
	complete := parsePayload(t, completes[0]).(protocol.PhaseCompletePayload)
	if complete.Count != 1 {
		t.Errorf("phase_complete count = %d, want 1", complete.Count)
	}

	// The straggler's submission arrives after the deadline: dropped, no ack.
	before := len(rig.sender.byType(protocol.MessageTypeSubmissionAck))
	rig.submit(t, "bob", 0, "too-late")
	view = rig.state(t)
	if view.SubmissionCount != 1 {
		t.Errorf("late submission recorded: count = %d", view.SubmissionCount)
	}
	if got := len(rig.sender.byType(protocol.MessageTypeSubmissionAck)); got != before {
		t.Errorf("late submission acked: acks = %d, want %d", got, before)
	}
}

func TestRemovalUnblocksGates(t *testing.T) {
	script := twoPhaseScript(false)
	rig := newTestRig(t, script, "alice", "bob", "carol")

	if err := rig.actor.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rig.submit(t, "alice", 0, "a")
	rig.submit(t, "bob", 0, "b")
	view := rig.state(t)
	if view.Status != protocol.StatusQuestion {
		t.Fatalf("status = %q before removal", view.Status)
	}

	// Carol never answers. Removing her leaves the ledger complete for the
	// remaining roster, so the phase closes without any further signal.
	if err := rig.actor.Remove("carol"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	view = rig.state(t)
	if view.Status != protocol.StatusAwaitingResults {
		t.Fatalf("status = %q after removal, want awaiting_results", view.Status)
	}
	if len(view.Roster) != 2 {
		t.Errorf("roster = %v", view.Roster)
	}

	rig.sender.mu.Lock()
	kicks := append([]kickRecord(nil), rig.sender.kicks...)
	rig.sender.mu.Unlock()
	if len(kicks) != 1 || kicks[0].participantID != "carol" || kicks[0].code != protocol.CloseCodeRemoved {
		t.Errorf("kicks = %+v", kicks)
	}
	removed := rig.sender.byType(protocol.MessageTypeParticipantRemoved)
	if len(removed) != 1 {
		t.Fatalf("removed broadcasts = %d, want 1", len(removed))
	}
	if rig.outbox.count("ParticipantRemoved") != 1 {
		t.Error("ParticipantRemoved feed event missing")
	}

	// The removal also shrinks both downstream gates.
	rig.deliver(t, "alice", protocol.MessageTypeReadyForResults, protocol.ReadyForResultsPayload{ParticipantID: "alice", PhaseIndex: 0})
	rig.deliver(t, "bob", protocol.MessageTypeReadyForResults, protocol.ReadyForResultsPayload{ParticipantID: "bob", PhaseIndex: 0})
	view = rig.state(t)
	if view.Status != protocol.StatusResults {
		t.Errorf("status = %q, want results with carol gone", view.Status)
	}
}

func TestRemoveMissingParticipant(t *testing.T) {
	rig := newTestRig(t, twoPhaseScript(false), "alice")

	if err := rig.actor.Remove("ghost"); !errors.Is(err, ErrNotInRoster) {
		t.Errorf("Remove(ghost) = %v, want ErrNotInRoster", err)
	}
}

func TestRemovingLastParticipantEndsSession(t *testing.T) {
	rig := newTestRig(t, twoPhaseScript(false), "alice")

	if err := rig.actor.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := rig.actor.Remove("alice"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	waitDone(t, rig.actor)

	if _, err := rig.snaps.Load(context.Background(), "sess-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("snapshot after end: err = %v, want ErrNotFound", err)
	}
	if _, ok := rig.hub.Get("sess-1"); ok {
		t.Error("ended session still registered")
	}
}

func TestNonRosterSignalsIgnored(t *testing.T) {
	rig := newTestRig(t, twoPhaseScript(false), "alice", "bob")

	if err := rig.actor.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rig.submit(t, "mallory", 0, "evil")
	view := rig.state(t)
	if view.SubmissionCount != 0 {
		t.Errorf("submission count = %d, want 0", view.SubmissionCount)
	}
	if got := len(rig.sender.byType(protocol.MessageTypeSubmissionAck)); got != 0 {
		t.Errorf("acks = %d, want 0", got)
	}
}

func TestStaleAndEarlySignalsDropped(t *testing.T) {
	rig := newTestRig(t, twoPhaseScript(false), "alice", "bob")

	if err := rig.actor.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Wrong phase index.
	rig.submit(t, "alice", 5, "future")
	// Readiness before the phase completed.
	rig.deliver(t, "alice", protocol.MessageTypeReadyForResults, protocol.ReadyForResultsPayload{ParticipantID: "alice", PhaseIndex: 0})

	view := rig.state(t)
	if view.SubmissionCount != 0 {
		t.Errorf("submission count = %d, want 0", view.SubmissionCount)
	}
	if view.ReadyForResults != 0 {
		t.Errorf("ready_for_results = %d, want 0 for an early signal", view.ReadyForResults)
	}
}

func TestAutoStartOnFullRoster(t *testing.T) {
	rig := newTestRig(t, twoPhaseScript(true), "alice", "bob")

	rig.actor.ParticipantConnected("alice")
	view := rig.state(t)
	if view.Status != protocol.StatusLobby {
		t.Fatalf("status = %q with half the roster connected", view.Status)
	}

	// Each connecting participant gets a snapshot immediately.
	if snap := rig.sender.lastDirect("alice"); snap == nil || snap.Type != protocol.MessageTypePhaseState {
		t.Errorf("alice's connect snapshot = %+v", snap)
	}

	rig.actor.ParticipantConnected("bob")
	view = rig.state(t)
	if view.Status != protocol.StatusQuestion || view.PhaseIndex != 0 {
		t.Fatalf("status = %q phase = %d, want question/0 after full roster", view.Status, view.PhaseIndex)
	}
}

func TestPhaseStateSnapshotCarriesPerParticipantFlags(t *testing.T) {
	rig := newTestRig(t, twoPhaseScript(false), "alice", "bob")

	if err := rig.actor.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rig.submit(t, "alice", 0, "red")

	// Alice reconnects mid-phase; her snapshot must say she already
	// submitted so she does not submit again.
	rig.actor.ParticipantConnected("alice")
	rig.actor.ParticipantConnected("bob")
	rig.state(t)

	aliceSnap := parsePayload(t, rig.sender.lastDirect("alice")).(protocol.PhaseStatePayload)
	if !aliceSnap.Submitted || aliceSnap.SubmissionCount != 1 {
		t.Errorf("alice snapshot = %+v", aliceSnap)
	}
	if aliceSnap.Status != protocol.StatusQuestion || aliceSnap.Phase == nil || aliceSnap.Phase.Index != 0 {
		t.Errorf("alice snapshot phase = %+v", aliceSnap)
	}

	bobSnap := parsePayload(t, rig.sender.lastDirect("bob")).(protocol.PhaseStatePayload)
	if bobSnap.Submitted {
		t.Errorf("bob snapshot claims he submitted: %+v", bobSnap)
	}
}

func TestStateRequestReturnsSnapshot(t *testing.T) {
	rig := newTestRig(t, twoPhaseScript(false), "alice", "bob")

	if err := rig.actor.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rig.deliver(t, "alice", protocol.MessageTypeStateRequest, protocol.StateRequestPayload{ParticipantID: "alice"})
	rig.state(t)

	snap := rig.sender.lastDirect("alice")
	if snap == nil || snap.Type != protocol.MessageTypePhaseState {
		t.Fatalf("state_request reply = %+v", snap)
	}
	if snap.ServerTime == nil {
		t.Error("snapshot not stamped with server time")
	}
}

func TestResumeFromSnapshot(t *testing.T) {
	rig := newTestRig(t, twoPhaseScript(false), "alice", "bob")

	if err := rig.actor.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rig.submit(t, "alice", 0, "persisted")
	rig.state(t)

	// Kill the process, keeping the store and the clock.
	rig.actor.stop()
	waitDone(t, rig.actor)

	rig.clock.Advance(10 * time.Second)

	sender2 := newFakeSender()
	hub2 := NewHub(rig.clock, rig.outbox, rig.snaps)
	hub2.SetSender(sender2)
	if err := hub2.ResumeAll(context.Background()); err != nil {
		t.Fatalf("ResumeAll: %v", err)
	}

	actor2, ok := hub2.Get("sess-1")
	if !ok {
		t.Fatal("session not resumed")
	}
	t.Cleanup(func() { actor2.stop() })

	view, err := actor2.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if view.Status != protocol.StatusQuestion || view.PhaseIndex != 0 {
		t.Fatalf("resumed view = %+v", view)
	}
	if view.SubmissionCount != 1 {
		t.Errorf("resumed submission count = %d, want 1", view.SubmissionCount)
	}
	// The countdown picks up from the original start time, not from resume.
	if view.RemainingSeconds != 50 {
		t.Errorf("remaining = %d, want 50 after 10s of downtime", view.RemainingSeconds)
	}

	// The resumed ledger still dedups and still completes.
	msg, err := protocol.NewMessage(protocol.MessageTypeSubmit, "sess-1", protocol.SubmitPayload{
		ParticipantID: "alice", PhaseIndex: 0, Payload: json.RawMessage(`"again"`),
	})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := actor2.Deliver("alice", msg); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	msg, err = protocol.NewMessage(protocol.MessageTypeSubmit, "sess-1", protocol.SubmitPayload{
		ParticipantID: "bob", PhaseIndex: 0, Payload: json.RawMessage(`"done"`),
	})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := actor2.Deliver("bob", msg); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	view, err = actor2.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if view.Status != protocol.StatusAwaitingResults || view.SubmissionCount != 2 {
		t.Errorf("after resume completion: %+v", view)
	}
	if got := len(sender2.byType(protocol.MessageTypePhaseComplete)); got != 1 {
		t.Errorf("phase_complete broadcasts = %d, want 1", got)
	}
}

func TestStartTwiceFails(t *testing.T) {
	rig := newTestRig(t, twoPhaseScript(false), "alice")

	if err := rig.actor.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := rig.actor.Start(); err == nil {
		t.Error("second Start succeeded")
	}
}

func TestLobbyStateView(t *testing.T) {
	rig := newTestRig(t, twoPhaseScript(false), "alice", "bob")

	view := rig.state(t)
	if view.Status != protocol.StatusLobby {
		t.Errorf("status = %q, want lobby", view.Status)
	}
	if view.PhaseIndex != -1 {
		t.Errorf("phase index = %d, want -1 in lobby", view.PhaseIndex)
	}
	if view.TotalPhases != 2 || view.ScriptName != "test-script" {
		t.Errorf("view = %+v", view)
	}
}
