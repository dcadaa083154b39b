package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"courier/pkg/metrics"
	"courier/pkg/scheduler"
)

type Limiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	mu       sync.Mutex
}

type RateLimitConfig struct {
	RPS             float64
	Burst           int
	CleanupInterval time.Duration
	MaxAge          time.Duration
}

func DefaultConfig() RateLimitConfig {
	return RateLimitConfig{
		RPS:             10.0,
		Burst:           20,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

// KeyFunc picks the bucket a request is charged against.
type KeyFunc func(c *gin.Context) string

func ClientIPKey(c *gin.Context) string {
	ip := c.ClientIP()
	if ip == "" {
		ip = c.RemoteIP()
	}
	return ip
}

// APIKeyOrIP charges requests to their bearer token, falling back to the
// client address for anonymous traffic.
func APIKeyOrIP(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok && token != "" {
		return "key:" + token
	}
	return "ip:" + ClientIPKey(c)
}

// Store holds one token bucket per key. Idle buckets are evicted by a
// background ticker that runs until Close.
type Store struct {
	config   RateLimitConfig
	now      func() time.Time
	mu       sync.RWMutex
	limiters map[string]*Limiter
	cleanup  *scheduler.Ticker
}

func NewStore(config RateLimitConfig) *Store {
	d := DefaultConfig()
	if config.RPS <= 0 {
		config.RPS = d.RPS
	}
	if config.Burst <= 0 {
		config.Burst = d.Burst
	}
	if config.MaxAge <= 0 {
		config.MaxAge = d.MaxAge
	}

	s := &Store{
		config:   config,
		now:      time.Now,
		limiters: make(map[string]*Limiter),
	}
	if config.CleanupInterval > 0 {
		s.cleanup = scheduler.NewTicker(config.CleanupInterval, func(context.Context) { s.evict() })
		s.cleanup.Start()
	}
	return s
}

func (s *Store) Close() {
	if s.cleanup != nil {
		s.cleanup.Stop()
	}
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.limiters)
}

// Allow takes one token from key's bucket and reports how many are left.
func (s *Store) Allow(key string) (bool, int) {
	limiter := s.get(key)

	limiter.mu.Lock()
	limiter.lastSeen = s.now()
	limiter.mu.Unlock()

	allowed := limiter.limiter.Allow()
	remaining := int(limiter.limiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining
}

func (s *Store) get(key string) *Limiter {
	s.mu.RLock()
	limiter, exists := s.limiters[key]
	s.mu.RUnlock()
	if exists {
		return limiter
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, exists = s.limiters[key]
	if !exists {
		limiter = &Limiter{
			limiter:  rate.NewLimiter(rate.Limit(s.config.RPS), s.config.Burst),
			lastSeen: s.now(),
		}
		s.limiters[key] = limiter
	}
	return limiter
}

func (s *Store) evict() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, limiter := range s.limiters {
		limiter.mu.Lock()
		lastSeen := limiter.lastSeen
		limiter.mu.Unlock()
		if now.Sub(lastSeen) > s.config.MaxAge {
			delete(s.limiters, key)
		}
	}
}

func (s *Store) Middleware(key KeyFunc) gin.HandlerFunc {
	if key == nil {
		key = ClientIPKey
	}

	return func(c *gin.Context) {
		allowed, remaining := s.Allow(key(c))

		c.Header("X-RateLimit-Limit", formatRate(s.config.RPS))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			metrics.RateLimitRequestsTotal.WithLabelValues("limited").Inc()
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":      "rate limit exceeded",
				"error_code": "RATE_LIMIT_EXCEEDED",
			})
			c.Abort()
			return
		}

		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()
		c.Next()
	}
}

func formatRate(rps float64) string {
	return strconv.FormatFloat(rps, 'f', -1, 64)
}
