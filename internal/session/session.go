// Package session tracks the current session identifier and keeps the
// session alive with periodic heartbeats.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"courier/internal/core"
	"courier/pkg/models"
	"courier/pkg/scheduler"
)

const (
	IDManagementPriority = 25
	HeartbeatPriority    = 100

	// DataKeySessionReference links an event to the session it happened in.
	DataKeySessionReference = models.DataKeyEventReference + ":session"
)

func NewSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IDManagement assigns a fresh identifier to session start events, reuses
// it for heartbeats and session end, and references it from every other
// event while the session is open.
type IDManagement struct{}

func (IDManagement) Name() string  { return "SessionIdManagementPlugin" }
func (IDManagement) Priority() int { return IDManagementPriority }

func (IDManagement) Run(ctx context.Context, pc *core.PluginContext) error {
	cfg := pc.Config
	if !cfg.SessionsEnabled() {
		return nil
	}
	ev := pc.Event

	switch ev.Type {
	case models.EventTypeSession:
		id := NewSessionID()
		cfg.SetCurrentSessionID(id)
		if ev.ReferenceID == "" {
			ev.ReferenceID = id
		}
		pc.Log().DebugwCtx(ctx, "Started session", "session_id", id)
	case models.EventTypeSessionEnd, models.EventTypeHeartbeat:
		id := cfg.CurrentSessionID()
		if id != "" && ev.ReferenceID == "" {
			ev.ReferenceID = id
		}
		if ev.Type == models.EventTypeSessionEnd {
			cfg.SetCurrentSessionID("")
		}
	default:
		if id := cfg.CurrentSessionID(); id != "" {
			ev.SetDataIfAbsent(DataKeySessionReference, id)
		}
	}
	return nil
}

// Heartbeat sends a heartbeat for the last seen user identity every
// interval. A session end event stops it.
type Heartbeat struct {
	interval time.Duration

	mu       sync.Mutex
	cfg      *core.Configuration
	identity string
	ticker   *scheduler.Ticker
}

// NewHeartbeat builds the plugin. A zero interval uses the configuration's
// heartbeat interval.
func NewHeartbeat(interval time.Duration) *Heartbeat {
	return &Heartbeat{interval: interval}
}

func (*Heartbeat) Name() string  { return "HeartbeatPlugin" }
func (*Heartbeat) Priority() int { return HeartbeatPriority }

func (h *Heartbeat) Run(ctx context.Context, pc *core.PluginContext) error {
	if pc.Event.Type == models.EventTypeSessionEnd {
		h.stop()
		return nil
	}

	identity := userIdentity(pc)
	if identity == "" {
		return nil
	}

	interval := h.interval
	if interval <= 0 {
		interval = pc.Config.HeartbeatInterval()
	}

	h.mu.Lock()
	h.cfg = pc.Config
	changed := identity != h.identity
	h.identity = identity
	if h.ticker != nil && h.ticker.Interval() != interval {
		old := h.ticker
		h.ticker = nil
		h.mu.Unlock()
		old.Stop()
		h.mu.Lock()
		changed = true
	}
	if h.ticker == nil {
		h.ticker = scheduler.NewTicker(interval, h.beat)
		changed = true
	}
	ticker := h.ticker
	h.mu.Unlock()

	if changed || !ticker.Running() {
		pc.Log().DebugwCtx(ctx, "Scheduling heartbeat", "identity", identity, "interval", interval)
		ticker.Start()
	}
	return nil
}

func (h *Heartbeat) Suspend(context.Context, *core.LifecycleContext) error {
	h.stop()
	return nil
}

// Running reports whether a heartbeat is scheduled.
func (h *Heartbeat) Running() bool {
	h.mu.Lock()
	ticker := h.ticker
	h.mu.Unlock()
	return ticker != nil && ticker.Running()
}

func (h *Heartbeat) stop() {
	h.mu.Lock()
	ticker := h.ticker
	h.identity = ""
	h.mu.Unlock()
	if ticker != nil {
		ticker.Stop()
	}
}

func (h *Heartbeat) beat(ctx context.Context) {
	h.mu.Lock()
	cfg := h.cfg
	identity := h.identity
	h.mu.Unlock()

	if cfg == nil || identity == "" || cfg.Submission() == nil {
		return
	}
	if !cfg.Enabled() || !cfg.IsValid() {
		return
	}

	resp, err := cfg.Submission().SubmitHeartbeat(ctx, identity, false)
	if err != nil {
		cfg.Log().WarnwCtx(ctx, "Error submitting heartbeat", "identity", identity, "error", err)
		return
	}
	if !resp.Success() {
		cfg.Log().DebugwCtx(ctx, "Heartbeat rejected", "status", resp.Status, "message", resp.Message)
	}
}

func userIdentity(pc *core.PluginContext) string {
	if user, ok := pc.Event.UserInfo(); ok && user.Identity != "" {
		return user.Identity
	}
	if user := pc.Config.UserIdentity(); user != nil {
		return user.Identity
	}
	return ""
}
