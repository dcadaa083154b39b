// Package collector is a development server speaking the collector side of
// the submission protocol. It keeps everything it receives in memory so
// the client can be exercised end to end without a hosted backend.
package collector

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"courier/internal/config"
	"courier/internal/logger"
	"courier/pkg/models"
	"courier/pkg/ratelimit"
)

type Heartbeat struct {
	ID       string    `json:"id"`
	Close    bool      `json:"close"`
	Received time.Time `json:"received"`
}

type Description struct {
	ReferenceID string                 `json:"reference_id"`
	Description models.UserDescription `json:"description"`
}

type Option func(*Server)

func WithTracing(serviceName string) Option {
	return func(s *Server) { s.tracingService = serviceName }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

type Server struct {
	cfg     config.CollectorConfig
	logger  logger.Logger
	keys    map[string]struct{}
	limiter *ratelimit.Store
	now     func() time.Time

	tracingService string
	forceStatus    atomic.Int32

	mu           sync.RWMutex
	settings     models.ServerSettings
	events       []*models.Event
	descriptions []Description
	heartbeats   []Heartbeat
}

func New(cfg config.CollectorConfig, log logger.Logger, opts ...Option) *Server {
	if log == nil {
		log = logger.NopLogger()
	}

	s := &Server{
		cfg:    cfg,
		logger: log,
		keys:   make(map[string]struct{}, len(cfg.APIKeys)),
		now:    time.Now,
		settings: models.ServerSettings{
			Version:  cfg.SettingsVersion,
			Settings: copySettings(cfg.Settings),
		},
	}
	for _, k := range cfg.APIKeys {
		s.keys[k] = struct{}{}
	}
	s.forceStatus.Store(int32(cfg.ForceStatus))

	if cfg.RateLimit.Enabled {
		s.limiter = ratelimit.NewStore(ratelimit.RateLimitConfig{
			RPS:             cfg.RateLimit.RPS,
			Burst:           cfg.RateLimit.Burst,
			CleanupInterval: cfg.RateLimit.CleanupInterval,
			MaxAge:          cfg.RateLimit.MaxAge,
		})
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the rate limiter's cleanup loop.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Close()
	}
}

// SetForceStatus makes every protocol route answer with status. Zero
// restores normal handling.
func (s *Server) SetForceStatus(status int) {
	s.forceStatus.Store(int32(status))
}

// UpdateSettings replaces the settings document and bumps its version.
func (s *Server) UpdateSettings(settings map[string]string) models.ServerSettings {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = models.ServerSettings{
		Version:  s.settings.Version + 1,
		Settings: copySettings(settings),
	}
	return s.settingsSnapshot()
}

func (s *Server) Settings() models.ServerSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settingsSnapshot()
}

func (s *Server) settingsSnapshot() models.ServerSettings {
	return models.ServerSettings{Version: s.settings.Version, Settings: copySettings(s.settings.Settings)}
}

func (s *Server) Events() []*models.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*models.Event(nil), s.events...)
}

func (s *Server) Descriptions() []Description {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Description(nil), s.descriptions...)
}

func (s *Server) Heartbeats() []Heartbeat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Heartbeat(nil), s.heartbeats...)
}

// Reset drops everything received so far. Settings are kept.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.descriptions = nil
	s.heartbeats = nil
}

func (s *Server) addEvents(events []*models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
}

func (s *Server) addDescription(d Description) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.descriptions = append(s.descriptions, d)
}

func (s *Server) addHeartbeat(h Heartbeat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats = append(s.heartbeats, h)
}

func (s *Server) authorized(key string) bool {
	if key == "" {
		return false
	}
	if len(s.keys) == 0 {
		return true
	}
	_, ok := s.keys[key]
	return ok
}

// Router builds the gin engine serving the protocol, health, metrics and
// the /_collector inspection routes.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	s.registerRoutes(router)
	return router
}

func copySettings(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
