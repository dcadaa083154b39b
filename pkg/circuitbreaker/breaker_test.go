package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterFailures(t *testing.T) {
	cfg := DefaultConfig("test-open")
	cfg.Timeout = time.Hour

	var transitions []gobreaker.State
	cfg.OnStateChange = func(_ string, _, to gobreaker.State) { transitions = append(transitions, to) }
	b := New(cfg)

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, b.Do(context.Background(), func(context.Context) error { return boom }), boom)
	}

	assert.True(t, b.IsOpen())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)

	called := false
	err := b.Do(context.Background(), func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreaker_CancelledContext(t *testing.T) {
	b := New(DefaultConfig("test-ctx"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_CancellationIsNotAFailure(t *testing.T) {
	cfg := DefaultConfig("test-cancel")
	cfg.Timeout = time.Hour
	b := New(cfg)

	for i := 0; i < 5; i++ {
		err := b.Do(context.Background(), func(context.Context) error { return context.Canceled })
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.False(t, b.IsOpen())
	assert.Equal(t, uint32(0), b.Counts().TotalFailures)
}

func TestRatioTrip(t *testing.T) {
	trip := RatioTrip(4, 0.5)
	assert.False(t, trip(gobreaker.Counts{}))
	assert.False(t, trip(gobreaker.Counts{Requests: 3, TotalFailures: 3}))
	assert.True(t, trip(gobreaker.Counts{Requests: 4, TotalFailures: 2}))
	assert.False(t, trip(gobreaker.Counts{Requests: 4, TotalFailures: 1}))
}
