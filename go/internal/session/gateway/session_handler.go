package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/hotseat/go/internal/session"
	"github.com/mcdev12/hotseat/go/internal/session/hub"
)

// SessionHandler serves the REST surface used by operators: creating
// sessions, starting them, inspecting their state, and removing
// participants. Participant traffic goes over the WebSocket, not here.
type SessionHandler struct {
	hub *hub.Hub
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(h *hub.Hub) *SessionHandler {
	return &SessionHandler{hub: h}
}

// CreateSessionRequest is the body of POST /api/sessions.
type CreateSessionRequest struct {
	SessionID    string         `json:"session_id,omitempty"`
	Participants []string       `json:"participants"`
	Script       session.Script `json:"script"`
}

// CreateSessionResponse is the body returned for a created session.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// HandleSessions handles the collection routes:
// POST /api/sessions creates a session, GET /api/sessions lists live ones.
func (h *SessionHandler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleCreate(w, r)
	case http.MethodGet:
		h.handleList(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SessionHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sessionID, err := h.hub.CreateSession(req.SessionID, req.Participants, &req.Script)
	if err != nil {
		if errors.Is(err, hub.ErrSessionExists) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(CreateSessionResponse{SessionID: sessionID}); err != nil {
		log.Error().Err(err).Msg("failed to encode create session response")
	}
}

func (h *SessionHandler) handleList(w http.ResponseWriter, r *http.Request) {
	views := make([]hub.StateView, 0)
	for _, id := range h.hub.Sessions() {
		actor, ok := h.hub.Get(id)
		if !ok {
			continue
		}
		view, err := actor.State()
		if err != nil {
			// Session ended between listing and querying
			continue
		}
		views = append(views, view)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(views); err != nil {
		log.Error().Err(err).Msg("failed to encode session list")
	}
}

// HandleSessionItem dispatches the per-session routes:
//
//	GET    /api/sessions/{id}/state
//	POST   /api/sessions/{id}/start
//	DELETE /api/sessions/{id}/participants/{participantId}
func (h *SessionHandler) HandleSessionItem(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/"), "/")
	if len(parts) < 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	sessionID := parts[0]

	switch {
	case len(parts) == 2 && parts[1] == "state" && r.Method == http.MethodGet:
		h.handleState(w, r, sessionID)
	case len(parts) == 2 && parts[1] == "start" && r.Method == http.MethodPost:
		h.handleStart(w, r, sessionID)
	case len(parts) == 3 && parts[1] == "participants" && r.Method == http.MethodDelete:
		h.handleRemoveParticipant(w, r, sessionID, parts[2])
	default:
		http.NotFound(w, r)
	}
}

func (h *SessionHandler) handleState(w http.ResponseWriter, r *http.Request, sessionID string) {
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

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(view); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to encode session state")
	}
}

func (h *SessionHandler) handleStart(w http.ResponseWriter, r *http.Request, sessionID string) {
	actor, ok := h.hub.Get(sessionID)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err := actor.Start(); err != nil {
		if errors.Is(err, hub.ErrSessionClosed) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) handleRemoveParticipant(w http.ResponseWriter, r *http.Request, sessionID, participantID string) {
	actor, ok := h.hub.Get(sessionID)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err := actor.Remove(participantID); err != nil {
		switch {
		case errors.Is(err, hub.ErrNotInRoster):
			http.Error(w, "participant not in session roster", http.StatusNotFound)
		case errors.Is(err, hub.ErrSessionClosed):
			http.Error(w, "session not found", http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterSessionRoutes registers the REST routes
func (h *SessionHandler) RegisterSessionRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/sessions", h.HandleSessions)
	mux.HandleFunc("/api/sessions/", h.HandleSessionItem)
}
