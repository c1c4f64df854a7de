package hub_api_client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/mcdev12/hotseat/go/internal/session"
	"github.com/mcdev12/hotseat/go/internal/session/gateway"
	"github.com/mcdev12/hotseat/go/internal/session/hub"
)

// CreateSession registers a session with the hub and returns its id. An
// empty sessionID lets the hub assign one.
func (c *HubApiClient) CreateSession(ctx context.Context, sessionID string, participants []string, script *session.Script) (string, error) {
	req := gateway.CreateSessionRequest{
		SessionID:    sessionID,
		Participants: participants,
		Script:       *script,
	}
	body, err := c.PostJSON(ctx, SessionsEndpoint, req)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	var resp gateway.CreateSessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}

	return resp.SessionID, nil
}

// StartSession moves a lobby session into its first phase.
func (c *HubApiClient) StartSession(ctx context.Context, sessionID string) error {
	endpoint := fmt.Sprintf("%s/%s/start", SessionsEndpoint, url.PathEscape(sessionID))
	if _, err := c.Post(ctx, endpoint, nil); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	return nil
}

// GetSessionState fetches the hub's view of one session.
func (c *HubApiClient) GetSessionState(ctx context.Context, sessionID string) (*hub.StateView, error) {
	endpoint := fmt.Sprintf("%s/%s/state", SessionsEndpoint, url.PathEscape(sessionID))
	body, err := c.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get session state: %w", err)
	}

	var view hub.StateView
	if err := json.Unmarshal(body, &view); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}

	return &view, nil
}

// ListSessions fetches every live session on the hub.
func (c *HubApiClient) ListSessions(ctx context.Context) ([]hub.StateView, error) {
	body, err := c.Get(ctx, SessionsEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var views []hub.StateView
	if err := json.Unmarshal(body, &views); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}

	return views, nil
}

// RemoveParticipant drops a participant from the session roster. The hub
// notifies the remaining participants and closes the removed participant's
// connection.
func (c *HubApiClient) RemoveParticipant(ctx context.Context, sessionID, participantID string) error {
	endpoint := fmt.Sprintf("%s/%s/participants/%s",
		SessionsEndpoint, url.PathEscape(sessionID), url.PathEscape(participantID))
	if _, err := c.Delete(ctx, endpoint); err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}
	return nil
}
