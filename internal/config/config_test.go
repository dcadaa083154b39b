package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "client:\n  api_key: LhhP1C9gijpSKCslHHCvwdSIz298twx271nTest\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "LhhP1C9gijpSKCslHHCvwdSIz298twx271nTest", cfg.Client.APIKey)
	assert.True(t, cfg.Client.Enabled)
	assert.Equal(t, 50, cfg.Queue.BatchSize)
	assert.Equal(t, 250, cfg.Queue.MaxItems)
	assert.Equal(t, 10*time.Second, cfg.Queue.ProcessInterval)
	assert.Equal(t, 30*time.Second, cfg.Deduplication.Interval)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "http", cfg.Submission.Type)
	assert.Equal(t, cfg.Client.ServerURL, cfg.Client.ConfigServerURL)
	assert.Equal(t, cfg.Client.ServerURL, cfg.Client.HeartbeatServerURL)
}

func TestDefault_EndpointsFollowServerURL(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.Client.ConfigServerURL)
	assert.Empty(t, cfg.Client.HeartbeatServerURL)
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeConfig(t, `
client:
  server_url: http://localhost:5000/
  heartbeat_server_url: http://heartbeat:5001
  default_tags: [a, b]
queue:
  batch_size: 10
storage:
  type: file
  file:
    path: /tmp/courier
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000", cfg.Client.ServerURL)
	assert.Equal(t, "http://localhost:5000", cfg.Client.ConfigServerURL)
	assert.Equal(t, "http://heartbeat:5001", cfg.Client.HeartbeatServerURL)
	assert.Equal(t, []string{"a", "b"}, cfg.Client.DefaultTags)
	assert.Equal(t, 10, cfg.Queue.BatchSize)
	assert.Equal(t, "/tmp/courier", cfg.Storage.File.Path)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("COURIER_API_KEY", "from-environment-key")
	t.Setenv("SUBMISSION_KAFKA_BROKERS", "k1:9092, k2:9092")

	path := writeConfig(t, "submission:\n  kafka:\n    events_topic: events\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-environment-key", cfg.Client.APIKey)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Submission.Kafka.Brokers)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidateStatic(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "zero batch size", mutate: func(c *Config) { c.Queue.BatchSize = 0 }, field: "queue.batch_size", wantErr: true},
		{name: "zero max items", mutate: func(c *Config) { c.Queue.MaxItems = 0 }, field: "queue.max_items", wantErr: true},
		{name: "relative server url", mutate: func(c *Config) { c.Client.ServerURL = "/api" }, field: "client.server_url", wantErr: true},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Type = "s3" }, field: "storage.type", wantErr: true},
		{name: "file storage without path", mutate: func(c *Config) { c.Storage.Type = "file" }, field: "storage.file.path", wantErr: true},
		{name: "redis storage without host", mutate: func(c *Config) { c.Storage.Type = "redis" }, field: "storage.redis.host", wantErr: true},
		{name: "kafka without brokers", mutate: func(c *Config) { c.Submission.Type = "kafka" }, field: "submission.kafka.brokers", wantErr: true},
		{name: "disabled dedup skips checks", mutate: func(c *Config) {
			c.Deduplication.Enabled = false
			c.Deduplication.Interval = 0
		}},
		{name: "bad collector port", mutate: func(c *Config) { c.Collector.Port = 70000 }, field: "collector.port", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := ValidateStatic(cfg)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidateStatic_ReportsEverySection(t *testing.T) {
	cfg := Default()
	cfg.Queue.BatchSize = 0
	cfg.Storage.Type = "nope"

	err := ValidateStatic(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue.batch_size")
	assert.Contains(t, err.Error(), "storage.type")
}

func TestKafkaConfig_WithDefaultTopics(t *testing.T) {
	k := KafkaConfig{EventsTopic: "courier.events"}.WithDefaultTopics()
	assert.Equal(t, "courier.events.descriptions", k.DescriptionsTopic)
	assert.Equal(t, "courier.events.heartbeats", k.HeartbeatsTopic)

	k = KafkaConfig{EventsTopic: "e", DescriptionsTopic: "d", HeartbeatsTopic: "h"}.WithDefaultTopics()
	assert.Equal(t, "d", k.DescriptionsTopic)
	assert.Equal(t, "h", k.HeartbeatsTopic)
}
