// Package queue holds finished events, persists them and drains them in
// batches to the submission client.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"courier/internal/constants"
	"courier/internal/core"
	"courier/internal/submission"
	apperrors "courier/pkg/errors"
	"courier/pkg/metrics"
	"courier/pkg/models"
	"courier/pkg/scheduler"
	"courier/pkg/tracing"
)

// EventsPostedHandler is called after every submission attempt. err is the
// transport error, if any.
type EventsPostedHandler func(events []*models.Event, resp submission.Response, err error)

type Options struct {
	MaxItems        int
	ProcessInterval time.Duration
	// Persist writes every queued event to the configured storage.
	Persist bool
	// RestoreBatchSizeAfter grows a batch size reduced by 413 responses back
	// toward its starting value after this many accepted batches in a row.
	// Zero disables recovery.
	RestoreBatchSizeAfter int
}

func DefaultOptions() Options {
	return Options{
		MaxItems:        constants.DefaultMaxQueueItems,
		ProcessInterval: constants.DefaultProcessInterval,
		Persist:         true,
	}
}

type item struct {
	key   string
	event *models.Event
}

type Queue struct {
	cfg       *core.Configuration
	opts      Options
	batchSize int

	mu                      sync.Mutex
	items                   []item
	lastKey                 int64
	loaded                  bool
	processing              bool
	suspendProcessingUntil  time.Time
	discardQueuedItemsUntil time.Time
	acceptedStreak          int
	handlers                []EventsPostedHandler

	ticker *scheduler.Ticker
}

func New(cfg *core.Configuration, opts Options) *Queue {
	if opts.MaxItems < 1 {
		opts.MaxItems = constants.DefaultMaxQueueItems
	}
	q := &Queue{
		cfg:       cfg,
		opts:      opts,
		batchSize: cfg.SubmissionBatchSize(),
	}
	q.ticker = scheduler.NewTicker(opts.ProcessInterval, q.onTick)
	return q
}

// StartProcessing starts the background drain loop.
func (q *Queue) StartProcessing() {
	q.ticker.Start()
}

func (q *Queue) StopProcessing() {
	q.ticker.Stop()
}

func (q *Queue) onTick(ctx context.Context) {
	if q.IsProcessingSuspended() || q.Len() == 0 {
		return
	}
	q.Process(ctx)
}

// OnEventsPosted registers h for every submission attempt.
func (q *Queue) OnEventsPosted(h EventsPostedHandler) {
	if h == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, h)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Events returns the queued events, oldest first.
func (q *Queue) Events() []*models.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*models.Event, len(q.items))
	for i, it := range q.items {
		out[i] = it.event
	}
	return out
}

func (q *Queue) Enqueue(ctx context.Context, event *models.Event) {
	log := q.cfg.Log()
	const notQueued = "The event will not be queued."

	if event == nil {
		return
	}
	if !q.cfg.Enabled() {
		metrics.IncEnqueue("disabled")
		log.InfowCtx(ctx, "Enqueue cancelled: configuration is disabled. "+notQueued)
		return
	}
	if !q.cfg.IsValid() {
		metrics.IncEnqueue("invalid_api_key")
		log.InfowCtx(ctx, "Enqueue cancelled: invalid api key. "+notQueued)
		return
	}

	raw, err := json.Marshal(event)
	if err != nil {
		metrics.IncEnqueue("unserializable")
		log.ErrorwCtx(ctx, "Unable to serialize event. "+notQueued,
			"error", err,
		)
		return
	}

	now := q.cfg.Now()
	q.ensureLoaded(ctx)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.discardingLocked(now) {
		metrics.IncEnqueue("discarded")
		log.InfowCtx(ctx, "Enqueue cancelled: queue is discarding new events. "+notQueued,
			"until", q.discardQueuedItemsUntil,
		)
		return
	}

	key := q.nextKeyLocked(now)
	if q.opts.Persist {
		if err := q.cfg.Storage().SetItem(ctx, key, string(raw)); err != nil {
			log.ErrorwCtx(ctx, "Error persisting queued event",
				"key", key,
				"error", err,
			)
		}
	}
	q.items = append(q.items, item{key: key, event: event})
	metrics.IncEnqueue("queued")

	for len(q.items) > q.opts.MaxItems {
		oldest := q.items[0]
		q.items = q.items[1:]
		q.removePersistedLocked(ctx, oldest.key)
		metrics.IncEnqueue("evicted")
		log.InfowCtx(ctx, "Removing oldest queued event",
			"key", oldest.key,
			"max_items", q.opts.MaxItems,
		)
	}
	metrics.SetQueueDepth(len(q.items))

	log.InfowCtx(ctx, "Enqueued event",
		"key", key,
		"type", event.Type,
	)
}

// Process submits one batch of the oldest queued events. Overlapping calls
// return immediately.
func (q *Queue) Process(ctx context.Context) {
	log := q.cfg.Log()
	const notProcessed = "The queue will not be processed."

	if !q.cfg.Enabled() {
		log.InfowCtx(ctx, "Configuration is disabled. "+notProcessed)
		return
	}
	if !q.cfg.IsValid() {
		log.InfowCtx(ctx, "Invalid api key. "+notProcessed)
		return
	}

	q.mu.Lock()
	if q.processing {
		q.mu.Unlock()
		return
	}
	q.processing = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.processing = false
		q.mu.Unlock()
	}()

	q.ensureLoaded(ctx)

	batchSize := q.cfg.SubmissionBatchSize()
	q.mu.Lock()
	n := len(q.items)
	if n > batchSize {
		n = batchSize
	}
	batch := make([]item, n)
	copy(batch, q.items[:n])
	q.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	ctx, span := tracing.StartSpan(ctx, tracing.TracerQueue, "queue.process")
	defer span.End()
	tracing.SetSpanAttributes(span, attribute.Int("courier.batch_size", len(batch)))

	events := make([]*models.Event, len(batch))
	for i, it := range batch {
		events[i] = it.event
	}

	log.InfowCtx(ctx, "Sending events",
		"count", len(events),
		"server_url", q.cfg.ServerURL(),
	)

	resp, err := q.submit(ctx, events)
	if err != nil {
		tracing.RecordError(span, err)
		log.ErrorwCtx(ctx, "Error processing queue",
			"error", err,
		)
		q.SuspendProcessing(ctx, 0, false, false)
	} else {
		tracing.SetSpanAttributes(span, attribute.Int("http.status_code", resp.Status))
		q.handleResponse(ctx, resp, batch)
	}

	q.eventsPosted(events, resp, err)
}

func (q *Queue) submit(ctx context.Context, events []*models.Event) (resp submission.Response, err error) {
	client := q.cfg.Submission()
	if client == nil {
		return submission.Response{}, fmt.Errorf("no submission client configured")
	}

	err = apperrors.Guard(func() error {
		var submitErr error
		resp, submitErr = client.SubmitEvents(ctx, events)
		return submitErr
	})
	return resp, err
}

func (q *Queue) handleResponse(ctx context.Context, resp submission.Response, batch []item) {
	log := q.cfg.Log()

	switch {
	case resp.Status == 202:
		log.InfowCtx(ctx, "Sent events", "count", len(batch))
		q.removeItems(ctx, batch)
		q.recordAccepted()

	case resp.Status == 429 || resp.RateLimitRemaining == 0 || resp.Status == 503:
		log.ErrorwCtx(ctx, "Server returned service unavailable",
			"status", resp.Status,
			"rate_limit_remaining", resp.RateLimitRemaining,
		)
		q.SuspendProcessing(ctx, 0, false, false)

	case resp.Status == 402:
		log.InfowCtx(ctx, "Too many events have been submitted, please upgrade your plan")
		q.SuspendProcessing(ctx, 0, true, true)

	case resp.Status == 401 || resp.Status == 403:
		log.InfowCtx(ctx, "Unable to authenticate, please check your configuration. The events will not be submitted",
			"status", resp.Status,
		)
		q.SuspendProcessing(ctx, constants.SuspendUnauthorized, false, false)
		q.removeItems(ctx, batch)

	case resp.Status == 400 || resp.Status == 404:
		log.ErrorwCtx(ctx, "Error while trying to submit data",
			"status", resp.Status,
			"message", resp.Message,
		)
		q.SuspendProcessing(ctx, constants.SuspendNotFound, false, false)
		q.removeItems(ctx, batch)

	case resp.Status == 413:
		const message = "Event submission discarded for being too large."
		q.mu.Lock()
		q.acceptedStreak = 0
		q.mu.Unlock()

		current := q.cfg.SubmissionBatchSize()
		if current > 1 {
			next := int(math.Round(float64(current) / constants.BatchShrinkFactor))
			if next < 1 {
				next = 1
			}
			q.cfg.SetSubmissionBatchSize(next)
			metrics.SetQueueBatchSize(next)
			log.ErrorwCtx(ctx, message+" The batch size will be reduced and the events retried",
				"batch_size", next,
			)
		} else {
			log.ErrorwCtx(ctx, message+" The events will be removed")
			q.removeItems(ctx, batch)
		}

	case resp.Success():
		q.removeItems(ctx, batch)
		q.recordAccepted()

	default:
		log.ErrorwCtx(ctx, "Error submitting events",
			"status", resp.Status,
			"message", resp.Message,
		)
		q.SuspendProcessing(ctx, 0, false, false)
	}
}

func (q *Queue) recordAccepted() {
	if q.opts.RestoreBatchSizeAfter <= 0 {
		return
	}
	current := q.cfg.SubmissionBatchSize()
	if current >= q.batchSize {
		return
	}

	q.mu.Lock()
	q.acceptedStreak++
	grow := q.acceptedStreak >= q.opts.RestoreBatchSizeAfter
	if grow {
		q.acceptedStreak = 0
	}
	q.mu.Unlock()

	if !grow {
		return
	}
	next := int(math.Ceil(float64(current) * constants.BatchShrinkFactor))
	if next > q.batchSize {
		next = q.batchSize
	}
	q.cfg.SetSubmissionBatchSize(next)
	metrics.SetQueueBatchSize(next)
	q.cfg.Log().Infow("Restoring submission batch size", "batch_size", next)
}

// SuspendProcessing pauses draining for duration; zero rounds up to the next
// 15 minute wall-clock boundary. discardFutureItems also drops new events
// for the same window and clearQueue removes everything queued now.
func (q *Queue) SuspendProcessing(ctx context.Context, duration time.Duration, discardFutureItems, clearQueue bool) {
	now := q.cfg.Now()
	if duration <= 0 {
		duration = defaultSuspendDuration(now)
	}
	until := now.Add(duration)

	q.cfg.Log().InfowCtx(ctx, "Suspending processing",
		"duration", duration,
		"until", until,
		"discard_future_items", discardFutureItems,
		"clear_queue", clearQueue,
	)

	if clearQueue {
		q.ensureLoaded(ctx)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.suspendProcessingUntil = until
	if discardFutureItems {
		q.discardQueuedItemsUntil = until
	}
	if clearQueue {
		for _, it := range q.items {
			q.removePersistedLocked(ctx, it.key)
		}
		q.items = nil
		metrics.SetQueueDepth(0)
	}
	metrics.SetQueueSuspended(true)
}

// defaultSuspendDuration is the time until the next quarter hour.
func defaultSuspendDuration(now time.Time) time.Duration {
	minute := now.Minute()
	next := (minute/constants.SuspendRoundingMinutes + 1) * constants.SuspendRoundingMinutes
	boundary := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), next, 0, 0, now.Location())
	return boundary.Sub(now)
}

func (q *Queue) IsProcessingSuspended() bool {
	now := q.cfg.Now()
	q.mu.Lock()
	defer q.mu.Unlock()
	suspended := now.Before(q.suspendProcessingUntil)
	if !suspended {
		metrics.SetQueueSuspended(false)
	}
	return suspended
}

func (q *Queue) IsDiscarding() bool {
	now := q.cfg.Now()
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.discardingLocked(now)
}

func (q *Queue) discardingLocked(now time.Time) bool {
	return now.Before(q.discardQueuedItemsUntil)
}

func (q *Queue) nextKeyLocked(now time.Time) string {
	millis := now.UnixMilli()
	if millis <= q.lastKey {
		millis = q.lastKey + 1
	}
	q.lastKey = millis
	return keyFor(millis)
}

func (q *Queue) removeItems(ctx context.Context, batch []item) {
	remove := make(map[string]struct{}, len(batch))
	for _, it := range batch {
		remove[it.key] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0]
	for _, it := range q.items {
		if _, ok := remove[it.key]; ok {
			q.removePersistedLocked(ctx, it.key)
			continue
		}
		kept = append(kept, it)
	}
	q.items = kept
	metrics.SetQueueDepth(len(q.items))
}

func (q *Queue) removePersistedLocked(ctx context.Context, key string) {
	if !q.opts.Persist {
		return
	}
	if err := q.cfg.Storage().RemoveItem(ctx, key); err != nil {
		q.cfg.Log().ErrorwCtx(ctx, "Error removing queued event from storage",
			"key", key,
			"error", err,
		)
	}
}

func (q *Queue) eventsPosted(events []*models.Event, resp submission.Response, err error) {
	q.mu.Lock()
	handlers := make([]EventsPostedHandler, len(q.handlers))
	copy(handlers, q.handlers)
	q.mu.Unlock()

	for _, h := range handlers {
		apperrors.Safely(func() { h(events, resp, err) }, func(perr error) {
			q.cfg.Log().Errorw("Error calling events posted handler", "error", perr)
		})
	}
}

// ensureLoaded reads events persisted by an earlier run, once.
func (q *Queue) ensureLoaded(ctx context.Context) {
	if !q.opts.Persist {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.loaded {
		return
	}
	q.loaded = true

	store := q.cfg.Storage()
	log := q.cfg.Log()

	keys, err := store.Keys(ctx)
	if err != nil {
		log.ErrorwCtx(ctx, "Error loading queued events", "error", err)
		return
	}

	type persisted struct {
		millis int64
		key    string
	}
	var found []persisted
	known := make(map[string]struct{}, len(q.items))
	for _, it := range q.items {
		known[it.key] = struct{}{}
	}
	for _, key := range keys {
		millis, ok := parseKey(key)
		if !ok {
			continue
		}
		if _, dup := known[key]; dup {
			continue
		}
		found = append(found, persisted{millis: millis, key: key})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].millis < found[j].millis })

	loaded := make([]item, 0, len(found))
	for _, p := range found {
		raw, ok, err := store.GetItem(ctx, p.key)
		if err != nil || !ok {
			log.ErrorwCtx(ctx, "Error reading queued event", "key", p.key, "error", err)
			continue
		}
		ev, err := models.UnmarshalEvent([]byte(raw))
		if err != nil {
			log.ErrorwCtx(ctx, "Removing unreadable queued event", "key", p.key, "error", err)
			if rerr := store.RemoveItem(ctx, p.key); rerr != nil {
				log.ErrorwCtx(ctx, "Error removing queued event from storage", "key", p.key, "error", rerr)
			}
			continue
		}
		loaded = append(loaded, item{key: p.key, event: ev})
		if p.millis > q.lastKey {
			q.lastKey = p.millis
		}
	}

	if len(loaded) > 0 {
		log.InfowCtx(ctx, "Loaded persisted events", "count", len(loaded))
	}

	q.items = append(loaded, q.items...)
	for len(q.items) > q.opts.MaxItems {
		q.removePersistedLocked(ctx, q.items[0].key)
		q.items = q.items[1:]
	}
	metrics.SetQueueDepth(len(q.items))
}

func keyFor(millis int64) string {
	return constants.QueueKeyPrefix + strconv.FormatInt(millis, 10) + constants.QueueKeySuffix
}

func parseKey(key string) (int64, bool) {
	if !strings.HasPrefix(key, constants.QueueKeyPrefix) || !strings.HasSuffix(key, constants.QueueKeySuffix) {
		return 0, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(key, constants.QueueKeyPrefix), constants.QueueKeySuffix)
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return millis, true
}
