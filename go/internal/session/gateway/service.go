package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/hotseat/go/internal/session/hub"
)

// Service bundles the gateway: the WebSocket connection manager, the upgrade
// handler, and the REST surface. Creating it installs the connection manager
// as the hub's sender, so it must exist before any session does.
type Service struct {
	hub               *hub.Hub
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	sessionHandler    *SessionHandler
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates a new gateway service wired to the hub.
func NewService(h *hub.Hub, config Config) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig)
	h.SetSender(connectionManager)

	return &Service{
		hub:               h,
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(h, connectionManager),
		sessionHandler:    NewSessionHandler(h),
	}
}

// Start runs the gateway's send loop. Blocks until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting session gateway service")
	s.connectionManager.Start(ctx)
	log.Info().Msg("session gateway service stopped")
}

// RegisterRoutes registers the WebSocket and REST routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.sessionHandler.RegisterSessionRoutes(mux)
	log.Info().Msg("session gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "session_gateway"
	stats["status"] = "running"
	return stats
}
