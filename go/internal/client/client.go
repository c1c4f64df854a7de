package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/hotseat/go/internal/session/clock"
	"github.com/mcdev12/hotseat/go/internal/session/protocol"
)

// Config wires one participant to one session.
type Config struct {
	BaseURL       string // hub WebSocket endpoint, e.g. ws://localhost:8080
	SessionID     string
	ParticipantID string

	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	AutoContinueDelay time.Duration
	ReannounceWindow  time.Duration
	ResyncWindow      time.Duration

	// OnUpdate observes every machine state change. It runs on the client's
	// event loop, so it must not call back into the Client synchronously.
	OnUpdate func(Update)
	// OnOpen fires each time the connection becomes ready, including after a
	// reconnect.
	OnOpen func()
	// OnConnectionChange observes connection losses. reconnecting reports
	// whether a reconnect attempt is scheduled.
	OnConnectionChange func(code int, reconnecting bool)

	Dialer Dialer          // nil for the default WebSocket dialer
	Clock  clockwork.Clock // nil for the real clock
}

// Client runs the participant role end to end: the supervised connection, the
// message router, the clock synchronizer, and the phase state machine, all
// serialized through one event loop.
type Client struct {
	cfg        Config
	clock      clockwork.Clock
	sync       *clock.Synchronizer
	supervisor *Supervisor
	machine    *Machine
	router     *protocol.Router

	mailbox  chan interface{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewClient assembles a client. Call Start to connect and begin processing.
func NewClient(cfg Config) *Client {
	clk := cfg.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}

	c := &Client{
		cfg:     cfg,
		clock:   clk,
		sync:    clock.NewSynchronizer(clk),
		router:  protocol.NewRouter(),
		mailbox: make(chan interface{}, 256),
		done:    make(chan struct{}),
	}

	c.supervisor = NewSupervisor(cfg.Dialer, clk, SupervisorConfig{
		BaseURL:           cfg.BaseURL,
		ParticipantID:     cfg.ParticipantID,
		HeartbeatInterval: cfg.HeartbeatInterval,
		ReconnectDelay:    cfg.ReconnectDelay,
	})

	c.machine = NewMachine(clk, cfg.SessionID, cfg.ParticipantID, MachineConfig{
		AutoContinueDelay: cfg.AutoContinueDelay,
		ReannounceWindow:  cfg.ReannounceWindow,
		ResyncWindow:      cfg.ResyncWindow,
	}, c.sync, c.sendToHub, cfg.OnUpdate)

	for _, msgType := range []protocol.MessageType{
		protocol.MessageTypePhaseState,
		protocol.MessageTypePhaseStart,
		protocol.MessageTypeSubmissionAck,
		protocol.MessageTypePhaseComplete,
		protocol.MessageTypeResultsReady,
		protocol.MessageTypeAllReadyToContinue,
		protocol.MessageTypeSessionEnded,
		protocol.MessageTypeParticipantRemoved,
	} {
		c.router.Register(msgType, c.machine.HandleMessage)
	}

	c.supervisor.OnMessage(c.enqueueFrame)
	c.supervisor.OnOpen(func(sessionID string) {
		if cfg.OnOpen != nil {
			cfg.OnOpen()
		}
	})
	c.supervisor.OnClose(func(code int, reconnecting bool) {
		if cfg.OnConnectionChange != nil {
			cfg.OnConnectionChange(code, reconnecting)
		}
	})

	return c
}

// Router exposes the message router so external collaborators can register
// handlers for their own message types riding the same connection. Register
// before Start.
func (c *Client) Router() *protocol.Router {
	return c.router
}

// Start connects to the hub and runs the event loop until ctx is cancelled or
// Close is called. The initial dial failure is returned synchronously; later
// connection drops are handled by the reconnect policy.
func (c *Client) Start(ctx context.Context) error {
	go c.run(ctx)
	if err := c.supervisor.Connect(ctx, c.cfg.SessionID); err != nil {
		c.Close()
		return err
	}
	return nil
}

// Close disconnects on purpose and stops the event loop.
func (c *Client) Close() {
	c.supervisor.Disconnect("client closed")
	c.stopOnce.Do(func() { close(c.done) })
}

// Submit sends the participant's answer for the current phase.
func (c *Client) Submit(payload json.RawMessage) error {
	return c.doErr(func() error { return c.machine.Submit(payload) })
}

// Continue signals that the participant is done with the results view.
func (c *Client) Continue() error {
	return c.doErr(func() error { return c.machine.Continue() })
}

// RequestState asks the hub for a full snapshot.
func (c *Client) RequestState() {
	c.do(func() { c.machine.RequestState() })
}

// View returns the machine's current state. It also acts as a barrier: all
// frames enqueued before the call are applied before it returns.
func (c *Client) View() Update {
	ch := make(chan Update, 1)
	if !c.do(func() { ch <- c.machine.View() }) {
		return Update{Stage: StageIdle}
	}
	return <-ch
}

// Connection returns the supervised connection's state.
func (c *Client) Connection() ConnState {
	return c.supervisor.State()
}

func (c *Client) enqueueFrame(data []byte) {
	select {
	case c.mailbox <- data:
	case <-c.done:
	}
}

func (c *Client) do(fn func()) bool {
	select {
	case c.mailbox <- fn:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) doErr(fn func() error) error {
	ch := make(chan error, 1)
	if !c.do(func() { ch <- fn() }) {
		return ErrNotConnected
	}
	return <-ch
}

func (c *Client) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case <-c.done:
			return
		case item := <-c.mailbox:
			switch v := item.(type) {
			case []byte:
				c.handleFrame(v)
			case func():
				v()
			}
		case <-c.machine.AutoContinueChan():
			c.machine.AutoContinueElapsed()
		case <-c.machine.ReannounceChan():
			c.machine.ReannounceElapsed()
		case <-c.machine.ResyncChan():
			c.machine.ResyncElapsed()
		}
	}
}

// handleFrame decodes one inbound frame, feeds the clock synchronizer from
// its hub timestamp, and routes it.
func (c *Client) handleFrame(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Int("bytes", len(data)).Msg("failed to unmarshal frame")
		return
	}
	if msg.Type == "" {
		log.Error().Msg("frame missing message type")
		return
	}
	if msg.ServerTime != nil {
		c.sync.Observe(*msg.ServerTime)
	}
	c.router.DispatchMessage(&msg)
}

func (c *Client) sendToHub(msg *protocol.Message) {
	if err := c.supervisor.Send(msg); err != nil {
		log.Debug().Err(err).Str("type", string(msg.Type)).Msg("send failed")
	}
}
