package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"courier/internal/config"
	"courier/internal/core"
	"courier/internal/submission"
	"courier/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type heartbeatRecorder struct {
	mu    sync.Mutex
	beats []string
}

func (r *heartbeatRecorder) SubmitEvents(context.Context, []*models.Event) (submission.Response, error) {
	return submission.Response{Status: 202, RateLimitRemaining: submission.Unknown, SettingsVersion: submission.Unknown}, nil
}

func (r *heartbeatRecorder) SubmitUserDescription(context.Context, string, *models.UserDescription) (submission.Response, error) {
	return submission.Response{Status: 202, RateLimitRemaining: submission.Unknown, SettingsVersion: submission.Unknown}, nil
}

func (r *heartbeatRecorder) GetSettings(context.Context, int) (submission.SettingsResponse, error) {
	return submission.SettingsResponse{Response: submission.Response{Status: 304}}, nil
}

func (r *heartbeatRecorder) SubmitHeartbeat(_ context.Context, id string, _ bool) (submission.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beats = append(r.beats, id)
	return submission.Response{Status: 200, RateLimitRemaining: submission.Unknown, SettingsVersion: submission.Unknown}, nil
}

func (r *heartbeatRecorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.beats...)
}

func newConfig() *core.Configuration {
	client := config.Default().Client
	client.APIKey = "LhhP1C9gijpSKCslHHCvwdSIz298twx271nTest"
	return core.NewConfiguration(client, 0)
}

func run(t *testing.T, p core.Plugin, cfg *core.Configuration, ev *models.Event) {
	t.Helper()
	pc := core.NewPluginContext(cfg, ev, nil)
	require.NoError(t, p.Run(context.Background(), pc))
	require.False(t, pc.Cancelled)
}

func TestIDManagement(t *testing.T) {
	cfg := newConfig()
	cfg.UseSessions(true, 0)

	start := models.NewEvent(models.EventTypeSession)
	run(t, IDManagement{}, cfg, start)
	require.Len(t, start.ReferenceID, 32)
	assert.Equal(t, start.ReferenceID, cfg.CurrentSessionID())

	logEvent := models.NewEvent(models.EventTypeLog)
	run(t, IDManagement{}, cfg, logEvent)
	assert.Equal(t, start.ReferenceID, logEvent.Data[DataKeySessionReference])
	assert.Empty(t, logEvent.ReferenceID)

	heartbeat := models.NewEvent(models.EventTypeHeartbeat)
	run(t, IDManagement{}, cfg, heartbeat)
	assert.Equal(t, start.ReferenceID, heartbeat.ReferenceID)

	end := models.NewEvent(models.EventTypeSessionEnd)
	run(t, IDManagement{}, cfg, end)
	assert.Equal(t, start.ReferenceID, end.ReferenceID)
	assert.Empty(t, cfg.CurrentSessionID())

	after := models.NewEvent(models.EventTypeLog)
	run(t, IDManagement{}, cfg, after)
	assert.NotContains(t, after.Data, DataKeySessionReference)
}

func TestIDManagement_Disabled(t *testing.T) {
	cfg := newConfig()

	start := models.NewEvent(models.EventTypeSession)
	run(t, IDManagement{}, cfg, start)
	assert.Empty(t, start.ReferenceID)
	assert.Empty(t, cfg.CurrentSessionID())
}

func TestIDManagement_NewSessionEachStart(t *testing.T) {
	cfg := newConfig()
	cfg.UseSessions(true, 0)

	first := models.NewEvent(models.EventTypeSession)
	second := models.NewEvent(models.EventTypeSession)
	run(t, IDManagement{}, cfg, first)
	run(t, IDManagement{}, cfg, second)
	assert.NotEqual(t, first.ReferenceID, second.ReferenceID)
	assert.Equal(t, second.ReferenceID, cfg.CurrentSessionID())
}

func TestHeartbeat_SendsForIdentity(t *testing.T) {
	cfg := newConfig()
	recorder := &heartbeatRecorder{}
	cfg.SetSubmission(recorder)
	cfg.SetUserIdentity("jane@example.com", "Jane")

	hb := NewHeartbeat(10 * time.Millisecond)
	defer func() { _ = hb.Suspend(context.Background(), &core.LifecycleContext{Config: cfg}) }()

	run(t, hb, cfg, models.NewEvent(models.EventTypeLog))
	assert.True(t, hb.Running())

	assert.Eventually(t, func() bool { return len(recorder.ids()) >= 2 }, time.Second, 5*time.Millisecond)
	for _, id := range recorder.ids() {
		assert.Equal(t, "jane@example.com", id)
	}
}

func TestHeartbeat_EventIdentityWins(t *testing.T) {
	cfg := newConfig()
	recorder := &heartbeatRecorder{}
	cfg.SetSubmission(recorder)
	cfg.SetUserIdentity("configured", "")

	hb := NewHeartbeat(10 * time.Millisecond)
	defer func() { _ = hb.Suspend(context.Background(), &core.LifecycleContext{Config: cfg}) }()

	ev := models.NewEvent(models.EventTypeUsage)
	ev.SetData(models.DataKeyUser, &models.UserInfo{Identity: "from-event"})
	run(t, hb, cfg, ev)

	assert.Eventually(t, func() bool { return len(recorder.ids()) >= 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "from-event", recorder.ids()[0])
}

func TestHeartbeat_NoIdentity(t *testing.T) {
	cfg := newConfig()
	hb := NewHeartbeat(10 * time.Millisecond)

	run(t, hb, cfg, models.NewEvent(models.EventTypeLog))
	assert.False(t, hb.Running())
}

func TestHeartbeat_SessionEndStops(t *testing.T) {
	cfg := newConfig()
	cfg.SetSubmission(&heartbeatRecorder{})
	cfg.SetUserIdentity("jane", "")

	hb := NewHeartbeat(time.Hour)
	run(t, hb, cfg, models.NewEvent(models.EventTypeLog))
	require.True(t, hb.Running())

	run(t, hb, cfg, models.NewEvent(models.EventTypeSessionEnd))
	assert.False(t, hb.Running())
}

func TestHeartbeat_UsesConfiguredInterval(t *testing.T) {
	cfg := newConfig()
	cfg.UseSessions(true, 45*time.Second)
	cfg.SetUserIdentity("jane", "")

	hb := NewHeartbeat(0)
	defer func() { _ = hb.Suspend(context.Background(), &core.LifecycleContext{Config: cfg}) }()

	run(t, hb, cfg, models.NewEvent(models.EventTypeLog))
	require.NotNil(t, hb.ticker)
	assert.Equal(t, 45*time.Second, hb.ticker.Interval())
}
