package hub_api_client

const (
	// API Endpoints
	SessionsEndpoint = "/api/sessions"
	HealthEndpoint   = "/health"
)
