// Package submission implements the client side of the collector protocol:
// event batches, user descriptions, settings documents and heartbeats.
package submission

import (
	"context"

	"courier/internal/constants"
	"courier/pkg/models"
)

// Unknown marks a response header that was absent or unparseable.
const Unknown = -1

type Response struct {
	Status             int
	Message            string
	RateLimitRemaining int
	SettingsVersion    int
}

func (r Response) Success() bool {
	return r.Status >= constants.HTTPStatusOKMin && r.Status < constants.HTTPStatusOKMax
}

type SettingsResponse struct {
	Response
	Settings *models.ServerSettings
}

type Client interface {
	SubmitEvents(ctx context.Context, events []*models.Event) (Response, error)
	SubmitUserDescription(ctx context.Context, referenceID string, description *models.UserDescription) (Response, error)
	GetSettings(ctx context.Context, version int) (SettingsResponse, error)
	SubmitHeartbeat(ctx context.Context, id string, closeSession bool) (Response, error)
}

// Endpoints supplies credentials and URLs at request time, so changes to the
// client configuration apply to the next request.
type Endpoints interface {
	APIKey() string
	ServerURL() string
	ConfigServerURL() string
	HeartbeatServerURL() string
}

// StaticEndpoints is a fixed Endpoints value.
type StaticEndpoints struct {
	Key       string
	Server    string
	Config    string
	Heartbeat string
}

func (e StaticEndpoints) APIKey() string    { return e.Key }
func (e StaticEndpoints) ServerURL() string { return e.Server }

func (e StaticEndpoints) ConfigServerURL() string {
	if e.Config == "" {
		return e.Server
	}
	return e.Config
}

func (e StaticEndpoints) HeartbeatServerURL() string {
	if e.Heartbeat == "" {
		return e.Server
	}
	return e.Heartbeat
}

func unknownResponse(status int, message string) Response {
	return Response{
		Status:             status,
		Message:            message,
		RateLimitRemaining: Unknown,
		SettingsVersion:    Unknown,
	}
}
