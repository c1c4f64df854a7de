package hub_api_client

import (
	"github.com/mcdev12/hotseat/go/clients"
)

// HubApiClient talks to the hub's REST surface: session lifecycle and
// roster management. Participant traffic uses the WebSocket client, not
// this one.
type HubApiClient struct {
	*clients.BaseClient
}

func NewHubApiClient(baseURL string) *HubApiClient {
	return &HubApiClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}
}
