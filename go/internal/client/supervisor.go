// Package client implements the participant side of the session protocol: a
// supervised WebSocket connection to the hub and the phase state machine that
// follows the hub's decisions. All machine state is mutated from a single
// event loop; the supervisor owns the only goroutines that touch the socket.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/hotseat/go/internal/session/protocol"
)

// ErrNotConnected is returned by Send when no connection is open.
var ErrNotConnected = errors.New("not connected")

// Conn is the subset of a WebSocket connection the supervisor drives. It is
// satisfied by *websocket.Conn; tests substitute an in-memory fake.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens the transport for one connection attempt.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

type gorillaDialer struct {
	dialer *websocket.Dialer
}

func (d gorillaDialer) DialContext(ctx context.Context, rawURL string) (Conn, error) {
	conn, _, err := d.dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// ConnState is the lifecycle position of the supervised connection.
type ConnState int

const (
	ConnIdle ConnState = iota
	ConnConnecting
	ConnOpen
	ConnClosing
	ConnClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnIdle:
		return "idle"
	case ConnConnecting:
		return "connecting"
	case ConnOpen:
		return "open"
	case ConnClosing:
		return "closing"
	case ConnClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SupervisorConfig carries the connection endpoint and retry tuning.
type SupervisorConfig struct {
	BaseURL           string // e.g. ws://localhost:8080
	ParticipantID     string
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
}

func (c SupervisorConfig) withDefaults() SupervisorConfig {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 20 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	return c
}

// Supervisor owns at most one live connection to the hub for one
// (participant, session) pair. It heartbeats while the connection is open and
// schedules a single delayed reconnect after an abnormal closure. Closures
// with code 1000 or the removal code are deliberate and never reconnected.
type Supervisor struct {
	dialer Dialer
	clock  clockwork.Clock
	cfg    SupervisorConfig

	onMessage func(data []byte)
	onOpen    func(sessionID string)
	onClose   func(code int, reconnecting bool)

	mu            sync.Mutex
	state         ConnState
	sessionID     string
	conn          Conn
	gen           int
	done          chan struct{}
	desired       bool
	intentional   bool
	backoffArmed  bool
	backoffCancel chan struct{}
	lastHeartbeat time.Time

	writeMu sync.Mutex
}

// NewSupervisor creates a supervisor in the Idle state. A nil dialer uses the
// default WebSocket dialer; a nil clock uses the real clock.
func NewSupervisor(dialer Dialer, clk clockwork.Clock, cfg SupervisorConfig) *Supervisor {
	if dialer == nil {
		dialer = gorillaDialer{dialer: websocket.DefaultDialer}
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Supervisor{
		dialer: dialer,
		clock:  clk,
		cfg:    cfg.withDefaults(),
		state:  ConnIdle,
	}
}

// OnMessage sets the inbound frame callback. Set handlers before Connect.
func (s *Supervisor) OnMessage(fn func(data []byte)) { s.onMessage = fn }

// OnOpen sets the callback invoked once each time a connection becomes open,
// including after a reconnect.
func (s *Supervisor) OnOpen(fn func(sessionID string)) { s.onOpen = fn }

// OnClose sets the callback invoked when the connection is lost. reconnecting
// reports whether a reconnect attempt has been scheduled.
func (s *Supervisor) OnClose(fn func(code int, reconnecting bool)) { s.onClose = fn }

// Connect establishes the connection for the given session. Calling it again
// for the same session while connecting or open is a no-op. Calling it for a
// different session closes the current connection first.
func (s *Supervisor) Connect(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	if s.sessionID == sessionID && (s.state == ConnConnecting || s.state == ConnOpen) {
		s.mu.Unlock()
		return nil
	}
	if s.sessionID != "" && s.sessionID != sessionID && s.state != ConnIdle && s.state != ConnClosed {
		s.mu.Unlock()
		s.Disconnect("switching sessions")
		s.mu.Lock()
	}

	s.desired = true
	s.intentional = false
	s.sessionID = sessionID
	s.cancelBackoffLocked()
	s.state = ConnConnecting
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	return s.dial(ctx, gen, sessionID)
}

// Disconnect closes the connection on purpose. No reconnect will be
// scheduled, and any pending reconnect is cancelled.
func (s *Supervisor) Disconnect(reason string) {
	s.mu.Lock()
	s.desired = false
	s.intentional = true
	s.cancelBackoffLocked()
	if s.state == ConnIdle || s.state == ConnClosed {
		s.mu.Unlock()
		return
	}
	s.state = ConnClosing
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		s.writeMu.Lock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
		s.writeMu.Unlock()
	}

	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.state = ConnClosed
	s.mu.Unlock()

	log.Info().Str("reason", reason).Msg("disconnected")
}

// Send marshals and writes one envelope. It fails fast when the connection is
// not open.
func (s *Supervisor) Send(msg *protocol.Message) error {
	s.mu.Lock()
	if s.state != ConnOpen || s.conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	conn := s.conn
	s.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", msg.Type, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// State returns the current connection state.
func (s *Supervisor) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Session returns the session the supervisor is bound to.
func (s *Supervisor) Session() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// LastHeartbeat returns when the most recent liveness ping was written.
func (s *Supervisor) LastHeartbeat() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeartbeat
}

func (s *Supervisor) endpoint(sessionID string) string {
	q := url.Values{}
	q.Set("session_id", sessionID)
	q.Set("participant_id", s.cfg.ParticipantID)
	return s.cfg.BaseURL + "/ws/session?" + q.Encode()
}

func (s *Supervisor) dial(ctx context.Context, gen int, sessionID string) error {
	conn, err := s.dialer.DialContext(ctx, s.endpoint(sessionID))

	s.mu.Lock()
	if gen != s.gen || !s.desired {
		// Superseded or cancelled while the dial was in flight.
		s.mu.Unlock()
		if err == nil {
			conn.Close()
		}
		return nil
	}
	if err != nil {
		s.state = ConnClosed
		s.mu.Unlock()
		log.Warn().Err(err).Str("session_id", sessionID).Msg("dial failed")
		return fmt.Errorf("dial session %s: %w", sessionID, err)
	}

	s.conn = conn
	s.state = ConnOpen
	s.backoffArmed = false
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	log.Info().Str("session_id", sessionID).Msg("connected")
	if s.onOpen != nil {
		s.onOpen(sessionID)
	}

	go s.readLoop(gen, conn)
	go s.heartbeatLoop(gen, done)
	return nil
}

func (s *Supervisor) readLoop(gen int, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.connectionLost(gen, err)
			return
		}
		if s.onMessage != nil {
			s.onMessage(data)
		}
	}
}

// heartbeatLoop pings the hub at the configured interval for as long as this
// connection stays open. done is closed on teardown so the loop never
// outlives its connection.
func (s *Supervisor) heartbeatLoop(gen int, done chan struct{}) {
	ticker := s.clock.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
			msg, err := protocol.NewMessage(protocol.MessageTypePing, s.Session(), nil)
			if err != nil {
				continue
			}
			if err := s.Send(msg); err != nil {
				log.Debug().Err(err).Msg("heartbeat send failed")
				return
			}
			s.mu.Lock()
			if gen == s.gen {
				s.lastHeartbeat = s.clock.Now()
			}
			s.mu.Unlock()
		}
	}
}

// connectionLost finalizes a dead connection and applies the reconnect
// policy: one delayed attempt after an abnormal closure, nothing after a
// deliberate one.
func (s *Supervisor) connectionLost(gen int, readErr error) {
	code := websocket.CloseAbnormalClosure
	var closeErr *websocket.CloseError
	if errors.As(readErr, &closeErr) {
		code = closeErr.Code
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.state = ConnClosed
	if code == protocol.CloseCodeRemoved {
		s.desired = false
	}
	reconnecting := s.desired && !s.intentional && !protocol.DeliberateClose(code) && !s.backoffArmed
	var cancel chan struct{}
	if reconnecting {
		s.backoffArmed = true
		cancel = make(chan struct{})
		s.backoffCancel = cancel
	}
	sessionID := s.sessionID
	s.mu.Unlock()

	log.Info().
		Int("code", code).
		Bool("reconnecting", reconnecting).
		Str("session_id", sessionID).
		Msg("connection lost")

	if s.onClose != nil {
		s.onClose(code, reconnecting)
	}
	if reconnecting {
		go s.reconnectAfterDelay(cancel)
	}
}

func (s *Supervisor) reconnectAfterDelay(cancel chan struct{}) {
	select {
	case <-cancel:
		return
	case <-s.clock.After(s.cfg.ReconnectDelay):
	}

	s.mu.Lock()
	s.backoffArmed = false
	if !s.desired || s.state != ConnClosed {
		s.mu.Unlock()
		return
	}
	s.state = ConnConnecting
	s.gen++
	gen := s.gen
	sessionID := s.sessionID
	s.mu.Unlock()

	log.Info().Str("session_id", sessionID).Msg("reconnecting")
	if err := s.dial(context.Background(), gen, sessionID); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("reconnect failed")
	}
}

func (s *Supervisor) cancelBackoffLocked() {
	if s.backoffCancel != nil {
		close(s.backoffCancel)
		s.backoffCancel = nil
	}
	s.backoffArmed = false
}
