package submission

import (
	"context"

	"courier/pkg/models"
)

// VersionFunc receives the settings version advertised by a response.
type VersionFunc func(ctx context.Context, version int)

type observerClient struct {
	inner   Client
	observe VersionFunc
}

// WithSettingsObserver reports the settings version header of every event
// and user-description response to observe.
func WithSettingsObserver(inner Client, observe VersionFunc) Client {
	return &observerClient{inner: inner, observe: observe}
}

func (o *observerClient) SubmitEvents(ctx context.Context, events []*models.Event) (Response, error) {
	resp, err := o.inner.SubmitEvents(ctx, events)
	o.notify(ctx, resp, err)
	return resp, err
}

func (o *observerClient) SubmitUserDescription(ctx context.Context, referenceID string, description *models.UserDescription) (Response, error) {
	resp, err := o.inner.SubmitUserDescription(ctx, referenceID, description)
	o.notify(ctx, resp, err)
	return resp, err
}

func (o *observerClient) GetSettings(ctx context.Context, version int) (SettingsResponse, error) {
	return o.inner.GetSettings(ctx, version)
}

func (o *observerClient) SubmitHeartbeat(ctx context.Context, id string, closeSession bool) (Response, error) {
	return o.inner.SubmitHeartbeat(ctx, id, closeSession)
}

func (o *observerClient) notify(ctx context.Context, resp Response, err error) {
	if err != nil || o.observe == nil || resp.SettingsVersion == Unknown {
		return
	}
	o.observe(ctx, resp.SettingsVersion)
}
