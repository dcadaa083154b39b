package core

import (
	"strings"
	"sync"
	"time"

	"courier/internal/config"
	"courier/internal/constants"
	"courier/internal/logger"
	"courier/internal/storage"
	"courier/internal/submission"
	"courier/pkg/models"
)

// Configuration is the per-client state shared by every pipeline stage and
// the queue. Mutable fields are guarded; the last writer wins.
type Configuration struct {
	mu sync.RWMutex

	apiKey             string
	serverURL          string
	configServerURL    string
	heartbeatServerURL string
	enabled            bool

	submissionBatchSize int
	defaultTags         []string
	defaultData         map[string]interface{}
	dataExclusions      []string
	excludeExpressions  map[string]string

	settings        map[string]string
	settingsVersion int

	user             *models.UserInfo
	version          string
	useReferenceIDs  bool
	sessionsEnabled  bool
	heartbeat        time.Duration
	currentSessionID string

	plugins     *Registry
	storage     storage.Storage
	submission  submission.Client
	queue       Queue
	errorParser ErrorParser
	log         logger.Logger
	clock       func() time.Time
}

// NewConfiguration builds a configuration from the client section. Services
// default to in-memory storage, the default error parser and a no-op
// logger until replaced.
func NewConfiguration(cfg config.ClientConfig, batchSize int) *Configuration {
	c := &Configuration{
		apiKey:              strings.TrimSpace(cfg.APIKey),
		enabled:             cfg.Enabled,
		submissionBatchSize: batchSize,
		defaultTags:         append([]string(nil), cfg.DefaultTags...),
		defaultData:         make(map[string]interface{}, len(cfg.DefaultData)),
		dataExclusions:      append([]string(nil), cfg.DataExclusions...),
		excludeExpressions:  make(map[string]string, len(cfg.ExcludeExpressions)),
		settings:            map[string]string{},
		version:             cfg.Version,
		useReferenceIDs:     cfg.UseReferenceIDs,
		heartbeat:           constants.DefaultHeartbeatInterval,
		plugins:             NewRegistry(),
		storage:             storage.NewMemory(),
		errorParser:         DefaultErrorParser{},
		log:                 logger.NopLogger(),
		clock:               time.Now,
	}
	if c.submissionBatchSize < 1 {
		c.submissionBatchSize = constants.DefaultSubmissionBatchSize
	}

	c.setURLs(cfg.ServerURL, cfg.ConfigServerURL, cfg.HeartbeatServerURL)

	for k, v := range cfg.DefaultData {
		c.defaultData[k] = v
	}
	for k, v := range cfg.ExcludeExpressions {
		c.excludeExpressions[k] = v
	}
	if cfg.UserIdentity != "" {
		c.user = &models.UserInfo{Identity: cfg.UserIdentity, Name: cfg.UserName}
	}
	return c
}

func (c *Configuration) setURLs(server, configServer, heartbeat string) {
	if server == "" {
		server = constants.DefaultServerURL
	}
	c.serverURL = strings.TrimRight(server, "/")
	c.configServerURL = c.serverURL
	c.heartbeatServerURL = c.serverURL
	if configServer != "" {
		c.configServerURL = strings.TrimRight(configServer, "/")
	}
	if heartbeat != "" {
		c.heartbeatServerURL = strings.TrimRight(heartbeat, "/")
	}
}

func (c *Configuration) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

func (c *Configuration) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = strings.TrimSpace(key)
}

// IsValid reports whether the API key looks usable.
func (c *Configuration) IsValid() bool {
	return len(c.APIKey()) >= constants.MinAPIKeyLength
}

func (c *Configuration) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

func (c *Configuration) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

func (c *Configuration) ServerURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverURL
}

// SetServerURL points all three endpoints at url.
func (c *Configuration) SetServerURL(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setURLs(url, "", "")
}

func (c *Configuration) ConfigServerURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.configServerURL
}

func (c *Configuration) SetConfigServerURL(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configServerURL = strings.TrimRight(url, "/")
}

func (c *Configuration) HeartbeatServerURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.heartbeatServerURL
}

func (c *Configuration) SetHeartbeatServerURL(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heartbeatServerURL = strings.TrimRight(url, "/")
}

func (c *Configuration) SubmissionBatchSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.submissionBatchSize
}

func (c *Configuration) SetSubmissionBatchSize(size int) {
	if size < 1 {
		size = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submissionBatchSize = size
}

func (c *Configuration) DefaultTags() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.defaultTags...)
}

func (c *Configuration) AddDefaultTags(tags ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultTags = append(c.defaultTags, tags...)
}

func (c *Configuration) DefaultData() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]interface{}, len(c.defaultData))
	for k, v := range c.defaultData {
		out[k] = v
	}
	return out
}

func (c *Configuration) SetDefaultData(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultData[key] = value
}

// DataExclusions merges user exclusions with the comma separated server
// setting @@DataExclusions.
func (c *Configuration) DataExclusions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := append([]string(nil), c.dataExclusions...)
	if server, ok := c.settings[constants.SettingDataExclusions]; ok {
		for _, pattern := range strings.Split(server, ",") {
			if pattern = strings.TrimSpace(pattern); pattern != "" {
				out = append(out, pattern)
			}
		}
	}
	return out
}

func (c *Configuration) AddDataExclusions(patterns ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			c.dataExclusions = append(c.dataExclusions, p)
		}
	}
}

func (c *Configuration) ExcludeExpressions() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.excludeExpressions))
	for k, v := range c.excludeExpressions {
		out[k] = v
	}
	return out
}

func (c *Configuration) AddExcludeExpression(name, expression string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.excludeExpressions[name] = expression
}

// Settings returns a copy of the server settings currently applied.
func (c *Configuration) Settings() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.settings))
	for k, v := range c.settings {
		out[k] = v
	}
	return out
}

func (c *Configuration) SettingsVersion() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settingsVersion
}

// ApplyServerSettings replaces the applied settings document.
func (c *Configuration) ApplyServerSettings(s *models.ServerSettings) {
	if s == nil {
		return
	}
	settings := make(map[string]string, len(s.Settings))
	for k, v := range s.Settings {
		settings[k] = v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = settings
	c.settingsVersion = s.Version
}

func (c *Configuration) UserIdentity() *models.UserInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

func (c *Configuration) SetUserIdentity(identity, name string) {
	if identity == "" {
		c.SetUserInfo(nil)
		return
	}
	c.SetUserInfo(&models.UserInfo{Identity: identity, Name: name})
}

func (c *Configuration) SetUserInfo(user *models.UserInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = user
}

func (c *Configuration) Version() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func (c *Configuration) SetVersion(version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version = version
}

func (c *Configuration) ReferenceIDsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.useReferenceIDs
}

func (c *Configuration) UseReferenceIDs(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.useReferenceIDs = enabled
}

func (c *Configuration) SessionsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionsEnabled
}

// UseSessions turns automatic session tracking on or off. Heartbeat
// intervals below the minimum are raised to it; zero keeps the current one.
func (c *Configuration) UseSessions(enabled bool, heartbeat time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionsEnabled = enabled
	if heartbeat > 0 {
		if heartbeat < constants.MinHeartbeatInterval {
			heartbeat = constants.MinHeartbeatInterval
		}
		c.heartbeat = heartbeat
	}
}

func (c *Configuration) HeartbeatInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.heartbeat
}

func (c *Configuration) CurrentSessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentSessionID
}

func (c *Configuration) SetCurrentSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentSessionID = id
}

func (c *Configuration) Registry() *Registry {
	return c.plugins
}

func (c *Configuration) Plugins() []Registration {
	return c.plugins.Plugins()
}

func (c *Configuration) AddPlugin(p Plugin) string {
	return c.plugins.Add(p)
}

func (c *Configuration) AddPluginFunc(name string, priority int, fn PluginFunc) string {
	return c.plugins.AddFunc(name, priority, fn)
}

func (c *Configuration) RemovePlugin(p Plugin) bool {
	return c.plugins.Remove(p)
}

func (c *Configuration) RemovePluginByName(name string) bool {
	return c.plugins.RemoveByName(name)
}

func (c *Configuration) Storage() storage.Storage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.storage
}

func (c *Configuration) SetStorage(s storage.Storage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storage = s
}

func (c *Configuration) Submission() submission.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.submission
}

func (c *Configuration) SetSubmission(s submission.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submission = s
}

func (c *Configuration) Queue() Queue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queue
}

func (c *Configuration) SetQueue(q Queue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = q
}

func (c *Configuration) ErrorParser() ErrorParser {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errorParser
}

func (c *Configuration) SetErrorParser(p ErrorParser) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorParser = p
}

func (c *Configuration) Log() logger.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.log
}

func (c *Configuration) SetLogger(l logger.Logger) {
	if l == nil {
		l = logger.NopLogger()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = l
}

func (c *Configuration) Now() time.Time {
	c.mu.RLock()
	clock := c.clock
	c.mu.RUnlock()
	return clock()
}

// SetClock replaces the time source; tests use it to move time forward.
func (c *Configuration) SetClock(clock func() time.Time) {
	if clock == nil {
		clock = time.Now
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
}
