package submission

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/pkg/models"
)

const testKey = "LhhP1C9gijpSKCslHHCvwdSIz298twx271nTest"

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...HTTPOption) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(StaticEndpoints{Key: testKey, Server: srv.URL + "/"}, nil, opts...)
}

func TestHTTPClient_SubmitEvents(t *testing.T) {
	var got []*models.Event
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v2/events", r.URL.Path)
		assert.Equal(t, "Bearer "+testKey, r.Header.Get("Authorization"))
		assert.Equal(t, "courier-go/0.4.0", r.Header.Get("User-Agent"))
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("X-Courier-ConfigVersion", "5")
		w.Header().Set("X-RateLimit-Remaining", "99")
		w.WriteHeader(http.StatusAccepted)
	})

	ev := models.NewEvent(models.EventTypeLog)
	ev.Message = "hello"
	resp, err := client.SubmitEvents(context.Background(), []*models.Event{ev})

	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.Status)
	assert.True(t, resp.Success())
	assert.Equal(t, 5, resp.SettingsVersion)
	assert.Equal(t, 99, resp.RateLimitRemaining)
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Message)
}

func TestHTTPClient_MissingHeadersAreUnknown(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Courier-ConfigVersion", "abc")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"slow down"}`))
	})

	resp, err := client.SubmitEvents(context.Background(), nil)

	require.NoError(t, err)
	assert.False(t, resp.Success())
	assert.Equal(t, "slow down", resp.Message)
	assert.Equal(t, Unknown, resp.SettingsVersion)
	assert.Equal(t, Unknown, resp.RateLimitRemaining)
}

func TestHTTPClient_Compression(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip", r.Header.Get("Content-Encoding"))
		gz, err := gzip.NewReader(r.Body)
		require.NoError(t, err)
		body, err := io.ReadAll(gz)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"type":"usage"`)
		w.WriteHeader(http.StatusAccepted)
	}, WithCompression(true))

	resp, err := client.SubmitEvents(context.Background(), []*models.Event{models.NewEvent(models.EventTypeUsage)})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.Status)
}

func TestHTTPClient_SubmitUserDescription(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/events/by-ref/abc123/user-description", r.URL.Path)
		var d models.UserDescription
		require.NoError(t, json.NewDecoder(r.Body).Decode(&d))
		assert.Equal(t, "me@example.com", d.EmailAddress)
		w.WriteHeader(http.StatusAccepted)
	})

	resp, err := client.SubmitUserDescription(context.Background(), "abc123", &models.UserDescription{EmailAddress: "me@example.com"})
	require.NoError(t, err)
	assert.True(t, resp.Success())
}

func TestHTTPClient_GetSettings(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantSettings bool
		wantErr      bool
	}{
		{name: "ok", status: http.StatusOK, body: `{"version":3,"settings":{"@@log:*":"info"}}`, wantSettings: true},
		{name: "not modified", status: http.StatusNotModified},
		{name: "malformed", status: http.StatusOK, body: `{not json`, wantErr: true},
		{name: "server error", status: http.StatusInternalServerError, body: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v2/projects/config", r.URL.Path)
				assert.Equal(t, "2", r.URL.Query().Get("v"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			resp, err := client.GetSettings(context.Background(), 2)
			assert.Equal(t, tt.status, resp.Status)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, resp.Settings)
				return
			}
			require.NoError(t, err)
			if tt.wantSettings {
				require.NotNil(t, resp.Settings)
				assert.Equal(t, 3, resp.Settings.Version)
				assert.Equal(t, "info", resp.Settings.Settings["@@log:*"])
			} else {
				assert.Nil(t, resp.Settings)
			}
		})
	}
}

func TestHTTPClient_SubmitHeartbeat(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v2/events/session/heartbeat", r.URL.Path)
		assert.Equal(t, "session-1", r.URL.Query().Get("id"))
		assert.Equal(t, "true", r.URL.Query().Get("close"))
		w.WriteHeader(http.StatusOK)
	})

	resp, err := client.SubmitHeartbeat(context.Background(), "session-1", true)
	require.NoError(t, err)
	assert.True(t, resp.Success())
}

func TestHTTPClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := NewHTTPClient(StaticEndpoints{Key: testKey, Server: srv.URL}, nil)
	_, err := client.SubmitEvents(context.Background(), nil)
	require.Error(t, err)
}

func TestStaticEndpoints_Fallbacks(t *testing.T) {
	e := StaticEndpoints{Server: "http://a"}
	assert.Equal(t, "http://a", e.ConfigServerURL())
	assert.Equal(t, "http://a", e.HeartbeatServerURL())

	e = StaticEndpoints{Server: "http://a", Config: "http://c", Heartbeat: "http://h"}
	assert.Equal(t, "http://c", e.ConfigServerURL())
	assert.Equal(t, "http://h", e.HeartbeatServerURL())
}
