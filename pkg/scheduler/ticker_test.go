package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestTicker_FiresUntilStopped(t *testing.T) {
	var calls int32
	ticker := NewTicker(5*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt32(&calls, 1)
	})

	ticker.Start()
	assert.True(t, ticker.Running())
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, time.Second, time.Millisecond)

	ticker.Stop()
	assert.False(t, ticker.Running())
	stopped := atomic.LoadInt32(&calls)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, atomic.LoadInt32(&calls))
}

func TestTicker_StopWithoutStart(t *testing.T) {
	ticker := NewTicker(time.Second, func(ctx context.Context) {})
	ticker.Stop()
	assert.Nil(t, ticker.StopAsync())
}

func TestTicker_ZeroIntervalNeverStarts(t *testing.T) {
	ticker := NewTicker(0, func(ctx context.Context) {})
	ticker.Start()
	assert.False(t, ticker.Running())
}

func TestTicker_RestartIsIdempotent(t *testing.T) {
	var calls int32
	ticker := NewTicker(5*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt32(&calls, 1)
	})
	ticker.Start()
	ticker.Start()
	ticker.Start()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 1 }, time.Second, time.Millisecond)
	ticker.Stop()
}
