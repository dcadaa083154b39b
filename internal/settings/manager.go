// Package settings keeps the client's copy of the server settings document
// current and cached in storage.
package settings

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"courier/internal/constants"
	"courier/internal/core"
	"courier/internal/submission"
	apperrors "courier/pkg/errors"
	"courier/pkg/metrics"
	"courier/pkg/models"
	"courier/pkg/retry"
	"courier/pkg/scheduler"
)

type Manager struct {
	cfg    *core.Configuration
	policy retry.Policy

	updating atomic.Bool
	pending  sync.WaitGroup
	ticker   *scheduler.Ticker

	mu      sync.Mutex
	lastErr error
}

// NewManager builds a manager. A positive pollInterval enables periodic
// refreshes between StartPolling and StopPolling.
func NewManager(cfg *core.Configuration, policy retry.Policy, pollInterval time.Duration) *Manager {
	m := &Manager{cfg: cfg, policy: policy}
	m.ticker = scheduler.NewTicker(pollInterval, func(ctx context.Context) {
		m.refresh(ctx, "poll")
	})
	return m
}

// ApplySaved loads the cached settings document into the configuration.
// A missing or malformed cache leaves the configuration untouched.
func (m *Manager) ApplySaved(ctx context.Context) {
	log := m.cfg.Log()

	value, ok, err := m.cfg.Storage().GetItem(ctx, constants.SettingsKey)
	if err != nil {
		log.WarnwCtx(ctx, "Unable to read saved settings", "error", err)
		return
	}
	if !ok || value == "" {
		return
	}

	var saved models.ServerSettings
	if err := json.Unmarshal([]byte(value), &saved); err != nil {
		log.WarnwCtx(ctx, "Ignoring malformed saved settings", "error", err)
		return
	}

	m.cfg.ApplyServerSettings(&saved)
	metrics.SetSettingsVersion(saved.Version)
	log.DebugwCtx(ctx, "Applied saved settings", "version", saved.Version)
}

// Update fetches settings newer than the cached version. Concurrent calls
// return immediately while one is in flight.
func (m *Manager) Update(ctx context.Context) error {
	if !m.updating.CompareAndSwap(false, true) {
		return nil
	}
	defer m.updating.Store(false)

	cfg := m.cfg
	log := cfg.Log()
	if !cfg.Enabled() {
		log.InfowCtx(ctx, "Configuration is disabled, settings will not be updated")
		return nil
	}
	if !cfg.IsValid() {
		log.InfowCtx(ctx, "Invalid API key, settings will not be updated")
		return nil
	}
	client := cfg.Submission()
	if client == nil {
		return nil
	}

	current := cfg.SettingsVersion()
	var resp submission.SettingsResponse

	err := retry.DoNotify(ctx, m.policy, func() error {
		var err error
		resp, err = client.GetSettings(ctx, current)
		if err != nil {
			return err
		}
		return classify(resp)
	}, func(attempt int, err error, next time.Duration) {
		metrics.IncRetryAttempt("settings")
		log.DebugwCtx(ctx, "Retrying settings request",
			"attempt", attempt,
			"next_delay", next,
			"error", err,
		)
	})
	if err != nil {
		log.WarnwCtx(ctx, "Error updating settings", "version", current, "error", err)
		return apperrors.ErrSettings.WithCause(err)
	}

	if resp.Status == http.StatusNotModified {
		log.DebugwCtx(ctx, "Settings are up to date", "version", current)
		return nil
	}

	cfg.ApplyServerSettings(resp.Settings)
	metrics.SetSettingsVersion(resp.Settings.Version)

	body, err := json.Marshal(resp.Settings)
	if err == nil {
		err = cfg.Storage().SetItem(ctx, constants.SettingsKey, string(body))
	}
	if err != nil {
		log.WarnwCtx(ctx, "Unable to save settings", "error", err)
	}

	log.InfowCtx(ctx, "Updated settings",
		"previous_version", current,
		"version", resp.Settings.Version,
	)
	return nil
}

func classify(resp submission.SettingsResponse) error {
	switch {
	case resp.Status == http.StatusNotModified:
		return nil
	case resp.Success() && resp.Settings != nil:
		return nil
	case resp.Success():
		return apperrors.ErrSettings.WithMessage("settings response has no document").AsFatal()
	case resp.Status == http.StatusTooManyRequests || resp.Status >= http.StatusInternalServerError || resp.Status == submission.Unknown:
		return apperrors.ErrSettings.WithDetail("status", resp.Status).AsRetryable()
	default:
		return apperrors.ErrSettings.WithDetail("status", resp.Status).AsFatal()
	}
}

// CheckVersion starts an asynchronous Update when version is newer than the
// cached settings.
func (m *Manager) CheckVersion(ctx context.Context, version int) {
	if version == submission.Unknown || version <= m.cfg.SettingsVersion() {
		return
	}

	m.cfg.Log().DebugwCtx(ctx, "Server settings changed",
		"cached_version", m.cfg.SettingsVersion(),
		"version", version,
	)

	m.UpdateAsync(ctx)
}

// UpdateAsync runs Update in the background. The refresh outlives ctx
// cancellation but keeps its values.
func (m *Manager) UpdateAsync(ctx context.Context) {
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		m.refresh(context.WithoutCancel(ctx), "version")
	}()
}

// refresh runs Update for a background trigger and keeps its outcome for
// LastError.
func (m *Manager) refresh(ctx context.Context, trigger string) {
	err := m.Update(ctx)
	if err != nil {
		m.cfg.Log().DebugwCtx(ctx, "Background settings refresh failed",
			"trigger", trigger,
			"error", err,
		)
	}

	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// LastError is the result of the most recent background refresh.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Wait blocks until asynchronous updates started by CheckVersion finish.
func (m *Manager) Wait() {
	m.pending.Wait()
}

func (m *Manager) StartPolling() {
	m.ticker.Start()
}

func (m *Manager) StopPolling() {
	m.ticker.Stop()
}
