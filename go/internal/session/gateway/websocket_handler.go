package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/hotseat/go/internal/session/hub"
)

// WebSocketHandler handles WebSocket upgrade requests for session connections
type WebSocketHandler struct {
	hub               *hub.Hub
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(h *hub.Hub, cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		hub:               h,
		connectionManager: cm,
	}
}

// HandleSessionConnection handles WebSocket connections for a specific
// session. Both session_id and participant_id are required, and the
// participant must be on the session's roster.
func (h *WebSocketHandler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	participantID := r.URL.Query().Get("participant_id")
	if participantID == "" {
		http.Error(w, "participant_id is required", http.StatusBadRequest)
		return
	}

	actor, ok := h.hub.Get(sessionID)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	view, err := actor.State()
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	onRoster := false
	for _, id := range view.Roster {
		if id == participantID {
			onRoster = true
			break
		}
	}
	if !onRoster {
		http.Error(w, "participant not in session roster", http.StatusForbidden)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, actor, sessionID, participantID); err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID).
			Str("participant_id", participantID).
			Msg("failed to upgrade WebSocket connection")
		// Upgrade has already written its own error response
		return
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.connectionManager.GetConnectionStats()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/session", h.HandleSessionConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
