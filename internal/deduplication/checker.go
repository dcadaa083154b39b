// Package deduplication collapses identical errors raised in quick
// succession into one event carrying an occurrence count.
package deduplication

import (
	"context"
	"sync"
	"time"

	"courier/internal/constants"
	"courier/internal/core"
	"courier/pkg/metrics"
	"courier/pkg/models"
	"courier/pkg/scheduler"
)

const (
	PluginName     = "DuplicateCheckerPlugin"
	PluginPriority = 1010
)

type Options struct {
	Interval    time.Duration
	HistorySize int
	// IncludeErrorType makes errors of different types with the same
	// message and stack distinct.
	IncludeErrorType bool
}

func DefaultOptions() Options {
	return Options{
		Interval:    constants.DefaultDuplicateInterval,
		HistorySize: constants.DuplicateHistorySize,
	}
}

type seenHash struct {
	hash int32
	at   time.Time
}

type mergedEvent struct {
	hash  int32
	count int
	event *models.Event
}

// Checker is the pipeline plugin. The first occurrence of an error passes;
// repeats within the interval are cancelled and resubmitted by the flush
// ticker as one event with the aggregated count.
type Checker struct {
	opts Options

	mu      sync.Mutex
	history []seenHash
	merged  []*mergedEvent
	cfg     *core.Configuration

	ticker *scheduler.Ticker
}

func NewChecker(opts Options) *Checker {
	if opts.Interval <= 0 {
		opts.Interval = constants.DefaultDuplicateInterval
	}
	if opts.HistorySize < 1 {
		opts.HistorySize = constants.DuplicateHistorySize
	}
	c := &Checker{opts: opts}
	c.ticker = scheduler.NewTicker(opts.Interval, c.Flush)
	return c
}

func (c *Checker) Name() string  { return PluginName }
func (c *Checker) Priority() int { return PluginPriority }

func (c *Checker) Startup(_ context.Context, lc *core.LifecycleContext) error {
	c.mu.Lock()
	c.cfg = lc.Config
	c.mu.Unlock()

	c.ticker.Start()
	return nil
}

// Suspend stops the ticker and flushes pending merged events.
func (c *Checker) Suspend(ctx context.Context, lc *core.LifecycleContext) error {
	c.ticker.Stop()

	c.mu.Lock()
	if c.cfg == nil {
		c.cfg = lc.Config
	}
	c.mu.Unlock()

	c.Flush(ctx)
	return nil
}

func (c *Checker) Run(ctx context.Context, pc *core.PluginContext) error {
	info, ok := pc.Event.ErrorInfo()
	if !ok {
		return nil
	}
	hash := ErrorHash(info, c.opts.IncludeErrorType)
	if hash == 0 {
		return nil
	}

	now := pc.Config.Now()
	log := pc.Log()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg == nil {
		c.cfg = pc.Config
	}

	for _, m := range c.merged {
		if m.hash != hash {
			continue
		}
		m.count += occurrences(pc.Event)
		if pc.Event.Date.After(m.event.Date) {
			m.event.Date = pc.Event.Date
		}
		pc.Cancelled = true
		metrics.IncDuplicate("absorbed")
		log.InfowCtx(ctx, "Ignoring duplicate event",
			"hash", hash,
			"count", m.count,
		)
		return nil
	}

	cutoff := now.Add(-c.opts.Interval)
	for _, s := range c.history {
		if s.hash == hash && !s.at.Before(cutoff) {
			c.merged = append(c.merged, &mergedEvent{
				hash:  hash,
				count: occurrences(pc.Event),
				event: pc.Event,
			})
			pc.Cancelled = true
			metrics.IncDuplicate("merged")
			log.InfowCtx(ctx, "Adding event to duplicate list",
				"hash", hash,
			)
			return nil
		}
	}

	log.DebugwCtx(ctx, "Enqueueing event", "hash", hash)
	c.history = append(c.history, seenHash{hash: hash, at: now})
	if len(c.history) > c.opts.HistorySize {
		c.history = c.history[len(c.history)-c.opts.HistorySize:]
	}
	return nil
}

func occurrences(ev *models.Event) int {
	if ev.Count > 0 {
		return ev.Count
	}
	return 1
}

// Flush enqueues every pending merged event with its aggregated count,
// bypassing the pipeline.
func (c *Checker) Flush(ctx context.Context) {
	c.mu.Lock()
	pending := c.merged
	c.merged = nil
	cfg := c.cfg
	c.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	if cfg == nil || cfg.Queue() == nil {
		return
	}

	queue := cfg.Queue()
	for _, m := range pending {
		m.event.Count = m.count
		metrics.IncDuplicate("flushed")
		queue.Enqueue(ctx, m.event)
	}
}

// Pending reports how many merged events await the next flush.
func (c *Checker) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.merged)
}
