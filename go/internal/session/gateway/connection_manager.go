package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/hotseat/go/internal/session/hub"
	"github.com/mcdev12/hotseat/go/internal/session/protocol"
)

// ConnectionManager owns the WebSocket connections for live sessions. It is
// the hub's transport: session actors broadcast, address, and close
// connections through it without knowing anything about sockets.
type ConnectionManager struct {
	// Connections keyed by session, then by participant. One connection per
	// participant: a reconnect replaces the previous socket.
	sessionConnections map[string]map[string]*Connection
	mu                 sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	// All sends funnel through one channel so that broadcasts, direct
	// sends, and closes reach a connection in the order the hub issued them.
	sendCh chan sendRequest
}

// Connection represents one participant's WebSocket.
type Connection struct {
	ID            string
	SessionID     string
	ParticipantID string
	Conn          *websocket.Conn
	Manager       *ConnectionManager

	actor *hub.Actor

	// send carries ordered outbound work for writePump. Guarded by sendMu so
	// a teardown cannot close it mid-enqueue.
	send   chan outbound
	sendMu sync.Mutex
	closed bool
	once   sync.Once

	ConnectedAt time.Time
	LastPing    time.Time
}

// outbound is one unit of work for writePump: either a data frame or a close
// frame. A close frame is written after everything queued before it.
type outbound struct {
	data      []byte
	closeCode int
	reason    string
}

// sendRequest is the manager-level unit of work. ParticipantID narrows a send
// to one participant; CloseCode, when non-zero, closes instead of sending.
type sendRequest struct {
	SessionID     string
	ParticipantID string
	Msg           *protocol.Message
	CloseCode     int
	Reason        string
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration. The read
// timeout leaves room for two missed application pings (participants ping
// every 20 seconds).
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		sessionConnections: make(map[string]map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
		sendCh: make(chan sendRequest, 1024),
	}
}

// Start begins processing send requests. Blocks until ctx is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case req := <-cm.sendCh:
			cm.handleSend(req)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a WebSocket and wires it to
// the session's actor. An existing connection for the same participant is
// superseded: it gets a normal close so the old client does not reconnect.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, actor *hub.Actor, sessionID, participantID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return err
	}

	connection := &Connection{
		ID:            uuid.New().String(),
		SessionID:     sessionID,
		ParticipantID: participantID,
		Conn:          conn,
		Manager:       cm,
		actor:         actor,
		send:          make(chan outbound, 256),
		ConnectedAt:   time.Now(),
		LastPing:      time.Now(),
	}

	replaced := cm.registerConnection(connection)
	if replaced != nil {
		log.Info().
			Str("session_id", sessionID).
			Str("participant_id", participantID).
			Str("old_connection_id", replaced.ID).
			Msg("participant reconnected, superseding previous connection")
		replaced.enqueue(outbound{closeCode: protocol.CloseCodeNormal, reason: "superseded by newer connection"})
		replaced.teardown()
	}

	go connection.writePump()
	go connection.readPump()

	// The actor pushes a phase_state snapshot to the new connection, so
	// registration has to happen first.
	actor.ParticipantConnected(participantID)

	log.Info().
		Str("connection_id", connection.ID).
		Str("session_id", sessionID).
		Str("participant_id", participantID).
		Msg("WebSocket connection established")
	return nil
}

// registerConnection adds a connection and returns the one it replaced, if
// any.
func (cm *ConnectionManager) registerConnection(conn *Connection) *Connection {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.sessionConnections[conn.SessionID] == nil {
		cm.sessionConnections[conn.SessionID] = make(map[string]*Connection)
	}
	replaced := cm.sessionConnections[conn.SessionID][conn.ParticipantID]
	cm.sessionConnections[conn.SessionID][conn.ParticipantID] = conn

	log.Debug().
		Str("connection_id", conn.ID).
		Str("session_id", conn.SessionID).
		Int("session_connections", len(cm.sessionConnections[conn.SessionID])).
		Msg("connection registered")
	return replaced
}

// removeConnection drops the connection from the registry. Returns false when
// the registry already points at a newer connection for the participant.
func (cm *ConnectionManager) removeConnection(conn *Connection) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	participants, ok := cm.sessionConnections[conn.SessionID]
	if !ok {
		return false
	}
	current, ok := participants[conn.ParticipantID]
	if !ok || current != conn {
		return false
	}
	delete(participants, conn.ParticipantID)
	if len(participants) == 0 {
		delete(cm.sessionConnections, conn.SessionID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("session_id", conn.SessionID).
		Str("participant_id", conn.ParticipantID).
		Msg("connection unregistered")
	return true
}

// Broadcast sends a message to every connected participant of a session.
func (cm *ConnectionManager) Broadcast(sessionID string, msg *protocol.Message) {
	cm.submit(sendRequest{SessionID: sessionID, Msg: msg})
}

// SendTo sends a message to one participant of a session.
func (cm *ConnectionManager) SendTo(sessionID, participantID string, msg *protocol.Message) {
	cm.submit(sendRequest{SessionID: sessionID, ParticipantID: participantID, Msg: msg})
}

// Kick closes one participant's connection with the given close code, after
// everything already queued for it has been written.
func (cm *ConnectionManager) Kick(sessionID, participantID string, closeCode int) {
	cm.submit(sendRequest{SessionID: sessionID, ParticipantID: participantID, CloseCode: closeCode, Reason: "removed from session"})
}

// CloseAll closes every connection of a session with the given close code.
func (cm *ConnectionManager) CloseAll(sessionID string, closeCode int) {
	cm.submit(sendRequest{SessionID: sessionID, CloseCode: closeCode, Reason: "session over"})
}

func (cm *ConnectionManager) submit(req sendRequest) {
	select {
	case cm.sendCh <- req:
	default:
		log.Warn().
			Str("session_id", req.SessionID).
			Str("participant_id", req.ParticipantID).
			Msg("send channel full, dropping request")
	}
}

// handleSend fans one request out to the matching connections.
func (cm *ConnectionManager) handleSend(req sendRequest) {
	cm.mu.RLock()
	participants, exists := cm.sessionConnections[req.SessionID]
	if !exists {
		cm.mu.RUnlock()
		return
	}
	var targets []*Connection
	for participantID, conn := range participants {
		if req.ParticipantID != "" && participantID != req.ParticipantID {
			continue
		}
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	if req.CloseCode != 0 {
		for _, conn := range targets {
			conn.enqueue(outbound{closeCode: req.CloseCode, reason: req.Reason})
			conn.teardown()
		}
		return
	}

	// Marshal the message once
	data, err := json.Marshal(req.Msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal message for send")
		return
	}

	for _, conn := range targets {
		if !conn.enqueue(outbound{data: data}) {
			// Connection is slow/dead, close it
			log.Warn().
				Str("connection_id", conn.ID).
				Str("participant_id", conn.ParticipantID).
				Msg("connection send buffer full, closing connection")
			conn.teardown()
			conn.Conn.Close()
		}
	}
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	totalConnections := 0
	sessionCounts := make(map[string]int)
	for sessionID, participants := range cm.sessionConnections {
		count := len(participants)
		totalConnections += count
		sessionCounts[sessionID] = count
	}

	return map[string]interface{}{
		"total_connections":   totalConnections,
		"active_sessions":     len(cm.sessionConnections),
		"session_connections": sessionCounts,
	}
}

// enqueue queues outbound work for writePump. Returns false when the buffer
// is full or the connection is already torn down.
func (c *Connection) enqueue(out outbound) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- out:
		return true
	default:
		return false
	}
}

// teardown removes the connection from the registry and closes its send
// queue. writePump writes out whatever was queued first, close frames
// included. The actor hears about the disconnect only if this connection was
// still the participant's current one, so a superseded socket going away does
// not mark a freshly reconnected participant as offline.
func (c *Connection) teardown() {
	c.once.Do(func() {
		wasCurrent := c.Manager.removeConnection(c)
		c.sendMu.Lock()
		c.closed = true
		close(c.send)
		c.sendMu.Unlock()
		if wasCurrent && c.actor != nil {
			c.actor.ParticipantDisconnected(c.ParticipantID)
		}
	})
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.teardown()
		c.Conn.Close()
	}()

	for {
		select {
		case out, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Queue drained after teardown
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if out.closeCode != 0 {
				message := websocket.FormatCloseMessage(out.closeCode, out.reason)
				if err := c.Conn.WriteMessage(websocket.CloseMessage, message); err != nil {
					log.Debug().
						Err(err).
						Str("connection_id", c.ID).
						Msg("failed to write close frame")
				}
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, out.data); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the WebSocket connection.
func (c *Connection) readPump() {
	defer func() {
		c.teardown()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}
		c.handleInbound(data)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleInbound decodes one frame and hands it to the session actor. A frame
// that fails to decode is logged and dropped; the connection stays up.
func (c *Connection) handleInbound(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", c.ID).
			Str("participant_id", c.ParticipantID).
			Msg("dropping malformed frame")
		return
	}
	if msg.Type == "" {
		log.Warn().
			Str("connection_id", c.ID).
			Str("participant_id", c.ParticipantID).
			Msg("dropping frame with no type")
		return
	}
	if err := c.actor.Deliver(c.ParticipantID, &msg); err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Str("session_id", c.SessionID).
			Msg("message arrived after session closed")
	}
}
