// Package scheduler runs periodic background work with an explicit
// lifecycle. A Ticker owns exactly one goroutine between Start and Stop.
package scheduler

import (
	"context"
	"sync"
	"time"
)

type Func func(ctx context.Context)

type Ticker struct {
	interval time.Duration
	fn       Func

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewTicker(interval time.Duration, fn Func) *Ticker {
	return &Ticker{interval: interval, fn: fn}
}

// Start launches the loop. Calling Start on a running ticker restarts it so
// the next tick is a full interval away.
func (t *Ticker) Start() {
	t.Stop()

	if t.interval <= 0 || t.fn == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	t.mu.Lock()
	t.cancel = cancel
	t.done = done
	t.running = true
	t.mu.Unlock()

	go t.loop(ctx, done)
}

func (t *Ticker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			t.fn(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels the loop and waits for an in-progress tick to return. It is
// safe to call from inside the tick function only via StopAsync.
func (t *Ticker) Stop() {
	done := t.StopAsync()
	if done != nil {
		<-done
	}
}

// StopAsync cancels the loop without waiting and returns a channel closed
// once the goroutine exits (nil when nothing was running).
func (t *Ticker) StopAsync() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}
	t.cancel()
	t.running = false
	done := t.done
	t.cancel = nil
	t.done = nil
	return done
}

func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Ticker) Interval() time.Duration {
	return t.interval
}
