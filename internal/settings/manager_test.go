package settings

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"courier/internal/config"
	"courier/internal/constants"
	"courier/internal/core"
	"courier/internal/submission"
	apperrors "courier/pkg/errors"
	"courier/pkg/models"
	"courier/pkg/retry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type settingsServer struct {
	mu        sync.Mutex
	responses []submission.SettingsResponse
	errs      []error
	versions  []int
	block     chan struct{}
}

func (s *settingsServer) SubmitEvents(context.Context, []*models.Event) (submission.Response, error) {
	return submission.Response{}, nil
}

func (s *settingsServer) SubmitUserDescription(context.Context, string, *models.UserDescription) (submission.Response, error) {
	return submission.Response{}, nil
}

func (s *settingsServer) SubmitHeartbeat(context.Context, string, bool) (submission.Response, error) {
	return submission.Response{}, nil
}

func (s *settingsServer) GetSettings(_ context.Context, version int) (submission.SettingsResponse, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions = append(s.versions, version)

	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	if err != nil {
		return submission.SettingsResponse{Response: status(submission.Unknown)}, err
	}
	if len(s.responses) == 0 {
		return submission.SettingsResponse{Response: status(304)}, nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *settingsServer) calls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.versions...)
}

func status(code int) submission.Response {
	return submission.Response{Status: code, RateLimitRemaining: submission.Unknown, SettingsVersion: submission.Unknown}
}

func document(version int, settings map[string]string) submission.SettingsResponse {
	return submission.SettingsResponse{
		Response: status(200),
		Settings: &models.ServerSettings{Version: version, Settings: settings},
	}
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, Multiplier: 2}
}

func newManager(server *settingsServer) (*Manager, *core.Configuration) {
	client := config.Default().Client
	client.APIKey = "LhhP1C9gijpSKCslHHCvwdSIz298twx271nTest"
	cfg := core.NewConfiguration(client, 0)
	cfg.SetSubmission(server)
	return NewManager(cfg, fastPolicy(), 0), cfg
}

func TestUpdate_AppliesAndPersists(t *testing.T) {
	server := &settingsServer{responses: []submission.SettingsResponse{
		document(4, map[string]string{"@@log:*": "info"}),
	}}
	m, cfg := newManager(server)

	require.NoError(t, m.Update(context.Background()))

	assert.Equal(t, 4, cfg.SettingsVersion())
	assert.Equal(t, "info", cfg.Settings()["@@log:*"])
	assert.Equal(t, []int{0}, server.calls())

	raw, ok, err := cfg.Storage().GetItem(context.Background(), constants.SettingsKey)
	require.NoError(t, err)
	require.True(t, ok)
	var saved models.ServerSettings
	require.NoError(t, json.Unmarshal([]byte(raw), &saved))
	assert.Equal(t, 4, saved.Version)

	require.NoError(t, m.Update(context.Background()))
	assert.Equal(t, []int{0, 4}, server.calls(), "next request carries the cached version")
	assert.Equal(t, 4, cfg.SettingsVersion(), "304 keeps the cache")
}

func TestUpdate_ReplacesDocument(t *testing.T) {
	server := &settingsServer{responses: []submission.SettingsResponse{
		document(1, map[string]string{"a": "1", "b": "2"}),
		document(2, map[string]string{"b": "3"}),
	}}
	m, cfg := newManager(server)

	require.NoError(t, m.Update(context.Background()))
	require.NoError(t, m.Update(context.Background()))
	assert.Equal(t, map[string]string{"b": "3"}, cfg.Settings())
}

func TestUpdate_RetriesTransientFailures(t *testing.T) {
	server := &settingsServer{
		errs:      []error{errors.New("connection reset"), nil},
		responses: []submission.SettingsResponse{{Response: status(503)}, document(7, nil)},
	}
	m, cfg := newManager(server)

	require.NoError(t, m.Update(context.Background()))
	assert.Len(t, server.calls(), 3)
	assert.Equal(t, 7, cfg.SettingsVersion())
}

func TestUpdate_StopsOnClientErrors(t *testing.T) {
	server := &settingsServer{responses: []submission.SettingsResponse{{Response: status(401)}}}
	m, cfg := newManager(server)

	assert.Error(t, m.Update(context.Background()))
	assert.Len(t, server.calls(), 1)
	assert.Equal(t, 0, cfg.SettingsVersion())
}

func TestUpdate_SkipsWhenUnusable(t *testing.T) {
	server := &settingsServer{}
	m, cfg := newManager(server)

	cfg.SetEnabled(false)
	require.NoError(t, m.Update(context.Background()))

	cfg.SetEnabled(true)
	cfg.SetAPIKey("short")
	require.NoError(t, m.Update(context.Background()))

	assert.Empty(t, server.calls())
}

func TestUpdate_NoOverlap(t *testing.T) {
	server := &settingsServer{block: make(chan struct{})}
	m, _ := newManager(server)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Update(context.Background())
	}()

	assert.Eventually(t, func() bool { return m.updating.Load() }, time.Second, time.Millisecond)
	require.NoError(t, m.Update(context.Background()))

	close(server.block)
	<-done
	assert.Len(t, server.calls(), 1)
}

func TestApplySaved(t *testing.T) {
	m, cfg := newManager(&settingsServer{})
	ctx := context.Background()

	m.ApplySaved(ctx)
	assert.Equal(t, 0, cfg.SettingsVersion())

	require.NoError(t, cfg.Storage().SetItem(ctx, constants.SettingsKey, "{not json"))
	m.ApplySaved(ctx)
	assert.Equal(t, 0, cfg.SettingsVersion())

	require.NoError(t, cfg.Storage().SetItem(ctx, constants.SettingsKey, `{"settings":{"@@DataExclusions":"*secret*"},"version":9}`))
	m.ApplySaved(ctx)
	assert.Equal(t, 9, cfg.SettingsVersion())
	assert.Contains(t, cfg.DataExclusions(), "*secret*")
}

func TestCheckVersion(t *testing.T) {
	server := &settingsServer{responses: []submission.SettingsResponse{document(3, nil)}}
	m, cfg := newManager(server)
	cfg.ApplyServerSettings(&models.ServerSettings{Version: 2})

	m.CheckVersion(context.Background(), submission.Unknown)
	m.CheckVersion(context.Background(), 2)
	m.CheckVersion(context.Background(), 1)
	m.Wait()
	assert.Empty(t, server.calls())

	m.CheckVersion(context.Background(), 3)
	m.Wait()
	assert.Equal(t, []int{2}, server.calls())
	assert.Equal(t, 3, cfg.SettingsVersion())
}

func TestCheckVersion_RecordsFailure(t *testing.T) {
	server := &settingsServer{errs: []error{
		errors.New("dial tcp: refused"),
		errors.New("dial tcp: refused"),
		errors.New("dial tcp: refused"),
	}}
	m, _ := newManager(server)

	m.CheckVersion(context.Background(), 5)
	m.Wait()
	require.Error(t, m.LastError())
	assert.ErrorIs(t, m.LastError(), apperrors.ErrSettings)

	server.mu.Lock()
	server.responses = []submission.SettingsResponse{document(5, nil)}
	server.mu.Unlock()
	m.CheckVersion(context.Background(), 5)
	m.Wait()
	assert.NoError(t, m.LastError())
}

func TestPolling(t *testing.T) {
	server := &settingsServer{}
	client := config.Default().Client
	client.APIKey = "LhhP1C9gijpSKCslHHCvwdSIz298twx271nTest"
	cfg := core.NewConfiguration(client, 0)
	cfg.SetSubmission(server)

	m := NewManager(cfg, fastPolicy(), 5*time.Millisecond)
	m.StartPolling()
	assert.Eventually(t, func() bool { return len(server.calls()) >= 2 }, time.Second, time.Millisecond)
	m.StopPolling()
}
