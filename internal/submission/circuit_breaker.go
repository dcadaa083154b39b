package submission

import (
	"context"
	"errors"
	"net/http"

	"courier/pkg/circuitbreaker"
	"courier/pkg/models"
)

type breakerClient struct {
	inner   Client
	breaker *circuitbreaker.Breaker
}

// WithCircuitBreaker guards inner with breaker. Transport errors and 5xx
// responses count as failures. While the breaker is open requests are not
// attempted and a synthetic 503 is returned, which the queue treats as
// back-pressure.
func WithCircuitBreaker(inner Client, breaker *circuitbreaker.Breaker) Client {
	return &breakerClient{inner: inner, breaker: breaker}
}

func (b *breakerClient) SubmitEvents(ctx context.Context, events []*models.Event) (Response, error) {
	return b.execute(ctx, func() (Response, error) {
		return b.inner.SubmitEvents(ctx, events)
	})
}

func (b *breakerClient) SubmitUserDescription(ctx context.Context, referenceID string, description *models.UserDescription) (Response, error) {
	return b.execute(ctx, func() (Response, error) {
		return b.inner.SubmitUserDescription(ctx, referenceID, description)
	})
}

// GetSettings bypasses the breaker; settings fetches are rare and already
// retried by the settings manager.
func (b *breakerClient) GetSettings(ctx context.Context, version int) (SettingsResponse, error) {
	return b.inner.GetSettings(ctx, version)
}

func (b *breakerClient) SubmitHeartbeat(ctx context.Context, id string, closeSession bool) (Response, error) {
	return b.execute(ctx, func() (Response, error) {
		return b.inner.SubmitHeartbeat(ctx, id, closeSession)
	})
}

// serverError carries a 5xx response through the breaker as a failure.
type serverError struct {
	resp Response
}

func (e *serverError) Error() string {
	return "server failure: " + http.StatusText(e.resp.Status)
}

func (b *breakerClient) execute(ctx context.Context, fn func() (Response, error)) (Response, error) {
	var resp Response
	err := b.breaker.Do(ctx, func(context.Context) error {
		var err error
		resp, err = fn()
		if err == nil && resp.Status >= http.StatusInternalServerError {
			return &serverError{resp: resp}
		}
		return err
	})

	var failed *serverError
	switch {
	case err == nil:
		return resp, nil
	case errors.As(err, &failed):
		return failed.resp, nil
	case errors.Is(err, circuitbreaker.ErrOpen):
		return unknownResponse(http.StatusServiceUnavailable, "circuit breaker "+b.breaker.Name()+" is open"), nil
	default:
		return Response{}, err
	}
}
