package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/hotseat/go/internal/session"
	"github.com/mcdev12/hotseat/go/internal/session/hub"
	"github.com/mcdev12/hotseat/go/internal/session/protocol"
	"github.com/mcdev12/hotseat/go/internal/session/store"
)

type gatewayRig struct {
	hub *hub.Hub
	srv *httptest.Server
}

func newGatewayRig(t *testing.T) *gatewayRig {
	t.Helper()

	h := hub.NewHub(clockwork.NewRealClock(), nil, store.NewMemoryStore())
	svc := NewService(h, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Start(ctx)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		cancel()
		h.Shutdown(context.Background())
		srv.Close()
	})
	return &gatewayRig{hub: h, srv: srv}
}

func (r *gatewayRig) createSession(t *testing.T, sessionID string, participants ...string) string {
	t.Helper()
	req := CreateSessionRequest{
		SessionID:    sessionID,
		Participants: participants,
		Script: session.Script{
			Name: "gateway-test",
			Phases: []session.PhaseDef{
				{Name: "q1", DurationSeconds: 300},
				{Name: "q2", DurationSeconds: 300},
			},
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal create request: %v", err)
	}
	resp, err := http.Post(r.srv.URL+"/api/sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d", resp.StatusCode)
	}
	var created CreateSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return created.SessionID
}

func (r *gatewayRig) dial(t *testing.T, sessionID, participantID string) *websocket.Conn {
	t.Helper()
	conn, err := r.dialErr(sessionID, participantID)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
	})
	return conn
}

func (r *gatewayRig) dialErr(sessionID, participantID string) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(r.srv.URL, "http") +
		"/ws/session?session_id=" + sessionID + "&participant_id=" + participantID
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

func (r *gatewayRig) start(t *testing.T, sessionID string) {
	t.Helper()
	resp, err := http.Post(r.srv.URL+"/api/sessions/"+sessionID+"/start", "application/json", nil)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("start session status = %d", resp.StatusCode)
	}
}

// readUntil reads frames until one of the wanted type arrives. Frames of
// other types are skipped, which keeps tests independent of exactly how many
// snapshots and acks precede the frame under test.
func readUntil(t *testing.T, conn *websocket.Conn, msgType protocol.MessageType) *protocol.Message {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("reading until %q: %v", msgType, err)
		}
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		if msg.Type == msgType {
			return &msg
		}
	}
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, msgType protocol.MessageType, sessionID string, payload interface{}) {
	t.Helper()
	msg, err := protocol.NewMessage(msgType, sessionID, payload)
	if err != nil {
		t.Fatalf("build %q message: %v", msgType, err)
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %q message: %v", msgType, err)
	}
}

func TestConnectDeliversSnapshot(t *testing.T) {
	rig := newGatewayRig(t)
	sessionID := rig.createSession(t, "", "alice", "bob")

	conn := rig.dial(t, sessionID, "alice")
	msg := readUntil(t, conn, protocol.MessageTypePhaseState)

	if msg.SessionID != sessionID {
		t.Errorf("session_id = %q, want %q", msg.SessionID, sessionID)
	}
	if msg.ServerTime == nil {
		t.Error("snapshot not stamped with server time")
	}
	payload, err := protocol.ParsePayload(msg)
	if err != nil {
		t.Fatalf("parse snapshot: %v", err)
	}
	snap := payload.(protocol.PhaseStatePayload)
	if snap.Status != protocol.StatusLobby {
		t.Errorf("status = %q, want lobby", snap.Status)
	}
	if len(snap.Roster) != 2 {
		t.Errorf("roster = %v", snap.Roster)
	}
}

func TestSubmissionRoundTrip(t *testing.T) {
	rig := newGatewayRig(t)
	sessionID := rig.createSession(t, "", "alice", "bob")

	alice := rig.dial(t, sessionID, "alice")
	bob := rig.dial(t, sessionID, "bob")
	readUntil(t, alice, protocol.MessageTypePhaseState)
	readUntil(t, bob, protocol.MessageTypePhaseState)

	rig.start(t, sessionID)
	readUntil(t, alice, protocol.MessageTypePhaseStart)
	readUntil(t, bob, protocol.MessageTypePhaseStart)

	sendEnvelope(t, alice, protocol.MessageTypeSubmit, sessionID, protocol.SubmitPayload{
		ParticipantID: "alice",
		PhaseIndex:    0,
		Payload:       json.RawMessage(`"red"`),
	})

	// The ack reaches both participants and carries the running count.
	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := readUntil(t, conn, protocol.MessageTypeSubmissionAck)
		payload, err := protocol.ParsePayload(msg)
		if err != nil {
			t.Fatalf("parse ack: %v", err)
		}
		ack := payload.(protocol.SubmissionAckPayload)
		if ack.ParticipantID != "alice" || ack.Count != 1 {
			t.Errorf("ack = %+v", ack)
		}
	}

	sendEnvelope(t, bob, protocol.MessageTypeSubmit, sessionID, protocol.SubmitPayload{
		ParticipantID: "bob",
		PhaseIndex:    0,
		Payload:       json.RawMessage(`"blue"`),
	})

	msg := readUntil(t, alice, protocol.MessageTypePhaseComplete)
	payload, err := protocol.ParsePayload(msg)
	if err != nil {
		t.Fatalf("parse phase_complete: %v", err)
	}
	complete := payload.(protocol.PhaseCompletePayload)
	if complete.PhaseIndex != 0 || complete.Count != 2 {
		t.Errorf("phase_complete = %+v", complete)
	}
}

func TestReconnectSupersedesOldConnection(t *testing.T) {
	rig := newGatewayRig(t)
	sessionID := rig.createSession(t, "", "alice", "bob")

	first := rig.dial(t, sessionID, "alice")
	readUntil(t, first, protocol.MessageTypePhaseState)

	second := rig.dial(t, sessionID, "alice")
	readUntil(t, second, protocol.MessageTypePhaseState)

	// The first socket gets a deliberate close so that client gives up
	// instead of reconnecting into a tug of war.
	first.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, _, err := first.ReadMessage()
		if err == nil {
			continue
		}
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Fatalf("first connection closed with %v, want normal closure", err)
		}
		break
	}
}

func TestRemovedParticipantGetsDedicatedCloseCode(t *testing.T) {
	rig := newGatewayRig(t)
	sessionID := rig.createSession(t, "", "alice", "bob")

	alice := rig.dial(t, sessionID, "alice")
	bob := rig.dial(t, sessionID, "bob")
	readUntil(t, alice, protocol.MessageTypePhaseState)
	readUntil(t, bob, protocol.MessageTypePhaseState)

	req, err := http.NewRequest(http.MethodDelete, rig.srv.URL+"/api/sessions/"+sessionID+"/participants/bob", nil)
	if err != nil {
		t.Fatalf("build delete request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("remove participant: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("remove status = %d", resp.StatusCode)
	}

	// Bob hears about the removal, then the socket closes with the removal
	// code so his client knows not to reconnect.
	readUntil(t, bob, protocol.MessageTypeParticipantRemoved)
	bob.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, _, err := bob.ReadMessage()
		if err == nil {
			continue
		}
		if !websocket.IsCloseError(err, protocol.CloseCodeRemoved) {
			t.Fatalf("bob's connection closed with %v, want code %d", err, protocol.CloseCodeRemoved)
		}
		break
	}

	// Alice stays connected and sees the same roster update.
	readUntil(t, alice, protocol.MessageTypeParticipantRemoved)
}

func TestDialRejections(t *testing.T) {
	rig := newGatewayRig(t)
	sessionID := rig.createSession(t, "", "alice")

	if _, err := rig.dialErr("nope", "alice"); err == nil {
		t.Error("dialing an unknown session succeeded")
	}
	if _, err := rig.dialErr(sessionID, "stranger"); err == nil {
		t.Error("dialing as a non-roster participant succeeded")
	}
	if conn, err := rig.dialErr(sessionID, "alice"); err != nil {
		t.Errorf("dialing as a roster participant failed: %v", err)
	} else {
		conn.Close()
	}
}

func TestStateEndpoint(t *testing.T) {
	rig := newGatewayRig(t)
	sessionID := rig.createSession(t, "", "alice", "bob")
	rig.start(t, sessionID)

	resp, err := http.Get(rig.srv.URL + "/api/sessions/" + sessionID + "/state")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("state status = %d", resp.StatusCode)
	}

	var view hub.StateView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if view.Status != protocol.StatusQuestion || view.PhaseIndex != 0 {
		t.Errorf("view = %+v", view)
	}
	if view.RemainingSeconds <= 0 || view.RemainingSeconds > 300 {
		t.Errorf("remaining = %d", view.RemainingSeconds)
	}

	// Starting twice conflicts.
	resp2, err := http.Post(rig.srv.URL+"/api/sessions/"+sessionID+"/start", "application/json", nil)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusConflict {
		t.Errorf("second start status = %d, want conflict", resp2.StatusCode)
	}

	resp3, err := http.Get(rig.srv.URL + "/api/sessions/missing/state")
	if err != nil {
		t.Fatalf("get missing state: %v", err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusNotFound {
		t.Errorf("missing session status = %d, want not found", resp3.StatusCode)
	}
}
