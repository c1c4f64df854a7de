package protocol

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// Handler processes one decoded message. Handlers run on the caller's
// goroutine; both roles feed the router from a single loop, so handlers may
// mutate role state without locking.
type Handler func(msg *Message)

// Router decodes raw frames and dispatches them by message type. Messages
// with no registered handler go to the catch-all; malformed frames are logged
// and dropped without disturbing subsequent dispatches.
type Router struct {
	handlers map[MessageType]Handler
	catchAll Handler
}

// NewRouter creates a router with a logging catch-all.
func NewRouter() *Router {
	return &Router{
		handlers: make(map[MessageType]Handler),
		catchAll: func(msg *Message) {
			log.Debug().
				Str("type", string(msg.Type)).
				Str("session_id", msg.SessionID).
				Msg("no handler registered for message type")
		},
	}
}

// Register installs the handler for a message type, replacing any previous
// registration.
func (r *Router) Register(msgType MessageType, handler Handler) {
	r.handlers[msgType] = handler
}

// SetCatchAll replaces the default catch-all for unregistered message types.
func (r *Router) SetCatchAll(handler Handler) {
	r.catchAll = handler
}

// Dispatch decodes a raw frame and routes it. A frame that fails to decode is
// logged and dropped; later frames are unaffected.
func (r *Router) Dispatch(raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Error().Err(err).Int("bytes", len(raw)).Msg("failed to unmarshal message envelope")
		return
	}
	if msg.Type == "" {
		log.Error().Str("session_id", msg.SessionID).Msg("message envelope missing type")
		return
	}
	r.DispatchMessage(&msg)
}

// DispatchMessage routes an already-decoded envelope.
func (r *Router) DispatchMessage(msg *Message) {
	handler, ok := r.handlers[msg.Type]
	if !ok {
		r.catchAll(msg)
		return
	}
	handler(msg)
}
