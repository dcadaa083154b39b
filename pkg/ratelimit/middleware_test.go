package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

func newRouter(store *Store) *gin.Engine {
	r := gin.New()
	r.Use(store.Middleware(APIKeyOrIP))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func get(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware_LimitsPerKey(t *testing.T) {
	store := NewStore(RateLimitConfig{RPS: 0.001, Burst: 2})
	defer store.Close()
	r := newRouter(store)

	w := get(r, "key-a")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	w = get(r, "key-a")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = get(r, "key-a")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")

	w = get(r, "key-b")
	assert.Equal(t, http.StatusOK, w.Code, "other keys have their own bucket")
	assert.Equal(t, 2, store.Len())
}

func TestMiddleware_AnonymousFallsBackToIP(t *testing.T) {
	store := NewStore(RateLimitConfig{RPS: 0.001, Burst: 1})
	defer store.Close()
	r := newRouter(store)

	assert.Equal(t, http.StatusOK, get(r, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "").Code)
	assert.Equal(t, http.StatusOK, get(r, "key-a").Code)
}

func TestStore_EvictsIdleBuckets(t *testing.T) {
	store := NewStore(RateLimitConfig{RPS: 1, Burst: 1, CleanupInterval: 5 * time.Millisecond, MaxAge: time.Minute})
	defer store.Close()

	now := time.Now()
	store.mu.Lock()
	store.now = func() time.Time { return now }
	store.mu.Unlock()

	allowed, _ := store.Allow("a")
	require.True(t, allowed)
	assert.Equal(t, 1, store.Len())

	store.mu.Lock()
	store.now = func() time.Time { return now.Add(2 * time.Minute) }
	store.mu.Unlock()

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestNewStore_Defaults(t *testing.T) {
	store := NewStore(RateLimitConfig{})
	defer store.Close()

	assert.Equal(t, DefaultConfig().RPS, store.config.RPS)
	assert.Equal(t, DefaultConfig().Burst, store.config.Burst)
	assert.Nil(t, store.cleanup)
}
