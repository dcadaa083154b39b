// Package client is the public face of the library: it wires storage,
// transport, queue and plugins from configuration and offers the capture
// API.
package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"courier/internal/config"
	"courier/internal/constants"
	"courier/internal/core"
	"courier/internal/deduplication"
	"courier/internal/enrichment"
	"courier/internal/filtering"
	"courier/internal/logger"
	"courier/internal/queue"
	"courier/internal/session"
	"courier/internal/settings"
	"courier/internal/storage"
	"courier/internal/submission"
	"courier/pkg/bootstrap"
	"courier/pkg/circuitbreaker"
	apperrors "courier/pkg/errors"
	"courier/pkg/models"
	"courier/pkg/retry"
)

type Client struct {
	conf      *core.Configuration
	queue     *queue.Queue
	settings  *settings.Manager
	heartbeat *session.Heartbeat
	breaker   *circuitbreaker.Breaker
	log       logger.Logger

	closers []bootstrap.ShutdownFunc

	mu              sync.Mutex
	started         bool
	lastReferenceID string
}

func New(cfg *config.Config, log logger.Logger, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.NopLogger()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	conf := core.NewConfiguration(cfg.Client, cfg.Queue.BatchSize)
	conf.SetLogger(log)
	if o.clock != nil {
		conf.SetClock(o.clock)
	}
	if o.errorParser != nil {
		conf.SetErrorParser(o.errorParser)
	}

	c := &Client{conf: conf, log: log}

	store := o.storage
	if store == nil {
		connector := bootstrap.NewStorageConnector(cfg.Storage, log)
		s, closeFn, err := connector.Open()
		if err != nil {
			return nil, apperrors.ErrInvalidConfig.WithCause(err)
		}
		store = s
		c.closers = append(c.closers, closeFn)

		// A redis outage at startup is reported, not fatal.
		pingCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultHTTPTimeout)
		if err := connector.PingRedis(pingCtx); err != nil {
			log.Warnw("Queue storage is not reachable yet", "error", err)
		}
		cancel()
	}
	conf.SetStorage(store)

	policy := retryPolicy(cfg.Submission.Retry)
	c.settings = settings.NewManager(conf, policy, cfg.Client.SettingsPollInterval)

	transport, err := c.transport(cfg, o, policy)
	if err != nil {
		return nil, err
	}
	if cfg.CircuitBreaker.Enabled {
		c.breaker = circuitbreaker.New(breakerConfig(cfg.CircuitBreaker))
		transport = submission.WithCircuitBreaker(transport, c.breaker)
	}
	conf.SetSubmission(submission.WithSettingsObserver(transport, c.settings.CheckVersion))

	c.queue = queue.New(conf, queue.Options{
		MaxItems:              cfg.Queue.MaxItems,
		ProcessInterval:       cfg.Queue.ProcessInterval,
		Persist:               cfg.Queue.Persist,
		RestoreBatchSizeAfter: cfg.Queue.RestoreBatchSizeAfter,
	})
	conf.SetQueue(c.queue)

	for _, p := range enrichment.Defaults() {
		conf.AddPlugin(p)
	}
	conf.AddPlugin(session.IDManagement{})
	conf.AddPlugin(filtering.EventExclusion{})
	expressions, err := filtering.NewExpressionExclusion()
	if err != nil {
		return nil, apperrors.ErrInternal.WithCause(err)
	}
	conf.AddPlugin(expressions)

	if cfg.Deduplication.Enabled {
		conf.AddPlugin(deduplication.NewChecker(deduplication.Options{
			Interval:         cfg.Deduplication.Interval,
			HistorySize:      cfg.Deduplication.HistorySize,
			IncludeErrorType: cfg.Deduplication.IncludeErrorType,
		}))
	}
	if cfg.Session.Enabled {
		c.UseSessions(true, cfg.Session.HeartbeatInterval)
	}
	for _, p := range o.plugins {
		conf.AddPlugin(p)
	}

	return c, nil
}

func (c *Client) transport(cfg *config.Config, o *options, policy retry.Policy) (submission.Client, error) {
	if o.submission != nil {
		return o.submission, nil
	}

	switch cfg.Submission.Type {
	case "", constants.SubmissionTypeHTTP:
		httpOpts := []submission.HTTPOption{
			submission.WithCompression(cfg.Submission.Compress),
			submission.WithTimeout(cfg.Submission.Timeout),
		}
		if o.httpClient != nil {
			httpOpts = append(httpOpts, submission.WithHTTPClient(o.httpClient))
		}
		return submission.NewHTTPClient(c.conf, c.log, httpOpts...), nil
	case constants.SubmissionTypeKafka:
		k := submission.NewKafkaClient(cfg.Submission.Kafka, policy, c.log)
		c.closers = append(c.closers, func(context.Context) error { return k.Close() })
		return k, nil
	default:
		return nil, apperrors.ErrInvalidConfig.WithMessage("unknown submission type %q", cfg.Submission.Type)
	}
}

func retryPolicy(rc config.RetryConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts:     rc.MaxAttempts,
		InitialInterval: rc.InitialInterval,
		MaxInterval:     rc.MaxInterval,
		Multiplier:      rc.Multiplier,
		MaxElapsedTime:  rc.MaxElapsedTime,
	}
}

func breakerConfig(cb config.CircuitBreakerConfig) circuitbreaker.Config {
	out := circuitbreaker.DefaultConfig("submission")
	if cb.MaxRequests > 0 {
		out.MaxRequests = cb.MaxRequests
	}
	if cb.Interval > 0 {
		out.Interval = cb.Interval
	}
	if cb.Timeout > 0 {
		out.Timeout = cb.Timeout
	}
	if cb.FailureRatio > 0 {
		out.ReadyToTrip = circuitbreaker.RatioTrip(cb.MinRequests, cb.FailureRatio)
	}
	return out
}

// Config exposes the runtime configuration for plugins and setters.
func (c *Client) Config() *core.Configuration { return c.conf }

func (c *Client) Queue() *queue.Queue { return c.queue }

func (c *Client) Storage() storage.Storage { return c.conf.Storage() }

func (c *Client) Settings() *settings.Manager { return c.settings }

// Breaker is nil unless the circuit breaker is enabled.
func (c *Client) Breaker() *circuitbreaker.Breaker { return c.breaker }

// UseSessions turns session tracking on or off and registers the heartbeat
// plugin accordingly.
func (c *Client) UseSessions(enabled bool, heartbeat time.Duration) {
	c.conf.UseSessions(enabled, heartbeat)

	c.mu.Lock()
	defer c.mu.Unlock()
	if enabled {
		if c.heartbeat == nil {
			c.heartbeat = session.NewHeartbeat(0)
			c.conf.AddPlugin(c.heartbeat)
		}
		return
	}
	if c.heartbeat != nil {
		c.conf.RemovePlugin(c.heartbeat)
		c.heartbeat = nil
	}
}

// Startup applies cached settings, starts plugin background work and the
// queue ticker, and refreshes settings in the background. An unusable
// configuration is the only error it returns.
func (c *Client) Startup(ctx context.Context) error {
	if c.conf.Enabled() && !c.conf.IsValid() {
		return apperrors.ErrInvalidConfig.WithMessage("api key must be at least %d characters", constants.MinAPIKeyLength)
	}

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	c.settings.ApplySaved(ctx)
	core.Startup(ctx, c.lifecycle())
	c.queue.StartProcessing()
	c.settings.StartPolling()
	c.settings.UpdateAsync(ctx)

	if c.conf.SessionsEnabled() {
		c.SubmitSessionStart(ctx)
	}

	c.log.InfowCtx(ctx, "Client started",
		"server_url", c.conf.ServerURL(),
		"plugins", len(c.conf.Plugins()),
	)
	return nil
}

// Suspend ends the session, stops background work and drains one batch.
func (c *Client) Suspend(ctx context.Context) {
	c.mu.Lock()
	started := c.started
	c.started = false
	c.mu.Unlock()

	if started && c.conf.SessionsEnabled() {
		c.SubmitSessionEnd(ctx, "")
	}

	core.Suspend(ctx, c.lifecycle())
	c.queue.StopProcessing()
	c.settings.StopPolling()
	c.queue.Process(ctx)
}

func (c *Client) ProcessQueue(ctx context.Context) {
	c.queue.Process(ctx)
}

// Close suspends the client, waits for pending settings refreshes and
// releases storage and transport resources.
func (c *Client) Close(ctx context.Context) error {
	c.Suspend(ctx)
	c.settings.Wait()

	var result *multierror.Error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	c.closers = nil
	return result.ErrorOrNil()
}

func (c *Client) lifecycle() *core.LifecycleContext {
	return &core.LifecycleContext{Config: c.conf}
}

// SubmitEvent runs ev through the pipeline and queues it unless a plugin
// cancels it. The returned context shows the outcome.
func (c *Client) SubmitEvent(ctx context.Context, ev *models.Event, eventCtx *core.EventContext) *core.PluginContext {
	pc := core.NewPluginContext(c.conf, ev, eventCtx)
	if ev == nil {
		pc.Cancelled = true
		return pc
	}
	if !c.conf.Enabled() {
		c.log.InfowCtx(ctx, "Event submission is currently disabled")
		pc.Cancelled = true
		return pc
	}

	if ev.Date.IsZero() {
		ev.Date = c.conf.Now()
	}
	if ev.Data == nil {
		ev.Data = make(map[string]interface{})
	}

	core.Run(ctx, pc)
	if pc.Cancelled {
		return pc
	}

	if ev.Type == "" {
		ev.Type = models.EventTypeLog
	}
	if err := models.ValidateEvent(ev); err != nil {
		c.log.WarnwCtx(ctx, "Dropping invalid event", "error", err)
		pc.Cancelled = true
		return pc
	}

	if ev.ReferenceID != "" {
		c.mu.Lock()
		c.lastReferenceID = ev.ReferenceID
		c.mu.Unlock()
	}

	c.queue.Enqueue(ctx, ev)
	return pc
}

// LastReferenceID is the reference id of the most recently queued event.
func (c *Client) LastReferenceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReferenceID
}

func (c *Client) CreateEvent() *EventBuilder {
	return newEventBuilder(c, models.NewEvent(""), core.NewEventContext())
}

func (c *Client) CreateException(err error) *EventBuilder {
	return newEventBuilder(c, models.NewEvent(models.EventTypeError), core.NewEventContext().SetError(err))
}

// CreateLog builds a log event. level may be empty.
func (c *Client) CreateLog(source, message, level string) *EventBuilder {
	b := c.CreateEvent().SetType(models.EventTypeLog).SetSource(source).SetMessage(message)
	if level = strings.TrimSpace(level); level != "" {
		b.SetProperty(models.DataKeyLevel, level)
	}
	return b
}

func (c *Client) CreateFeatureUsage(feature string) *EventBuilder {
	return c.CreateEvent().SetType(models.EventTypeUsage).SetSource(feature)
}

func (c *Client) CreateNotFound(resource string) *EventBuilder {
	return c.CreateEvent().SetType(models.EventTypeNotFound).SetSource(resource)
}

func (c *Client) CreateSessionStart() *EventBuilder {
	return c.CreateEvent().SetType(models.EventTypeSession)
}

func (c *Client) SubmitException(ctx context.Context, err error) *core.PluginContext {
	return c.CreateException(err).Submit(ctx)
}

// SubmitUnhandledException records an error that escaped the host, e.g. a
// recovered panic. method names where it was caught.
func (c *Client) SubmitUnhandledException(ctx context.Context, err error, method string) *core.PluginContext {
	b := c.CreateException(err)
	b.Context.MarkAsUnhandledError().SetSubmissionMethod(method)
	return b.Submit(ctx)
}

func (c *Client) SubmitLog(ctx context.Context, source, message, level string) *core.PluginContext {
	return c.CreateLog(source, message, level).Submit(ctx)
}

func (c *Client) SubmitFeatureUsage(ctx context.Context, feature string) *core.PluginContext {
	return c.CreateFeatureUsage(feature).Submit(ctx)
}

func (c *Client) SubmitNotFound(ctx context.Context, resource string) *core.PluginContext {
	return c.CreateNotFound(resource).Submit(ctx)
}

func (c *Client) SubmitSessionStart(ctx context.Context) *core.PluginContext {
	return c.CreateSessionStart().Submit(ctx)
}

// SubmitSessionEnd closes the session identified by id, defaulting to the
// current session or the user identity.
func (c *Client) SubmitSessionEnd(ctx context.Context, id string) {
	c.sendHeartbeat(ctx, id, true)
}

func (c *Client) SubmitSessionHeartbeat(ctx context.Context, id string) {
	c.sendHeartbeat(ctx, id, false)
}

func (c *Client) sendHeartbeat(ctx context.Context, id string, closeSession bool) {
	if id == "" {
		id = c.conf.CurrentSessionID()
	}
	if id == "" {
		if user := c.conf.UserIdentity(); user != nil {
			id = user.Identity
		}
	}
	if id == "" || !c.conf.Enabled() || !c.conf.IsValid() {
		return
	}

	resp, err := c.conf.Submission().SubmitHeartbeat(ctx, id, closeSession)
	if err != nil {
		c.log.WarnwCtx(ctx, "Error submitting heartbeat", "close", closeSession, "error", err)
		return
	}
	if closeSession {
		if id == c.conf.CurrentSessionID() {
			c.conf.SetCurrentSessionID("")
		}
		c.mu.Lock()
		hb := c.heartbeat
		c.mu.Unlock()
		if hb != nil {
			if err := hb.Suspend(ctx, c.lifecycle()); err != nil {
				c.log.WarnwCtx(ctx, "Error stopping heartbeat", "session", id, "error", err)
			}
		}
	}
	if !resp.Success() {
		c.log.DebugwCtx(ctx, "Heartbeat rejected", "status", resp.Status, "message", resp.Message)
	}
}

// UpdateUserEmailAndDescription attaches what the user said to the event
// with referenceID.
func (c *Client) UpdateUserEmailAndDescription(ctx context.Context, referenceID, email, description string) {
	if referenceID == "" || (email == "" && description == "") {
		return
	}
	if !c.conf.Enabled() || !c.conf.IsValid() {
		c.log.InfowCtx(ctx, "User description will not be submitted: the client is disabled or has an invalid api key")
		return
	}

	resp, err := c.conf.Submission().SubmitUserDescription(ctx, referenceID, &models.UserDescription{
		EmailAddress: email,
		Description:  description,
	})
	if err != nil {
		c.log.WarnwCtx(ctx, "Error submitting user description", "reference_id", referenceID, "error", err)
		return
	}
	if !resp.Success() {
		c.log.InfowCtx(ctx, "Failed submitting user email and description",
			"reference_id", referenceID,
			"status", resp.Status,
			"message", resp.Message,
		)
	}
}

// IsInvalidConfig reports whether err came from Startup rejecting the
// configuration.
func IsInvalidConfig(err error) bool {
	return errors.Is(err, apperrors.ErrInvalidConfig)
}
