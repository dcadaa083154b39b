package config

import (
	"github.com/spf13/viper"

	"courier/internal/constants"
)

// Default returns a configuration with every default applied, for callers
// that build a client programmatically instead of from a file.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			ServerURL:            constants.DefaultServerURL,
			// Empty config and heartbeat URLs follow ServerURL.
			Enabled:              true,
			DataExclusions:       []string{},
			SettingsPollInterval: constants.DefaultSettingsPollInterval,
		},
		Queue: QueueConfig{
			BatchSize:       constants.DefaultSubmissionBatchSize,
			MaxItems:        constants.DefaultMaxQueueItems,
			ProcessInterval: constants.DefaultProcessInterval,
			Persist:         true,
		},
		Deduplication: DeduplicationConfig{
			Enabled:     true,
			Interval:    constants.DefaultDuplicateInterval,
			HistorySize: constants.DuplicateHistorySize,
		},
		Session: SessionConfig{
			HeartbeatInterval: constants.DefaultHeartbeatInterval,
		},
		Storage: StorageConfig{
			Type: constants.StorageTypeMemory,
		},
		Submission: SubmissionConfig{
			Type:    constants.SubmissionTypeHTTP,
			Timeout: constants.DefaultHTTPTimeout,
			Retry: RetryConfig{
				MaxAttempts:     3,
				InitialInterval: defaultRetryInitial,
				MaxInterval:     defaultRetryMax,
				Multiplier:      2.0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Collector: CollectorConfig{
			Port:            5000,
			SettingsVersion: 1,
			MaxPayloadBytes: 1 << 20,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("client.server_url", d.Client.ServerURL)
	v.SetDefault("client.config_server_url", "")
	v.SetDefault("client.heartbeat_server_url", "")
	v.SetDefault("client.enabled", d.Client.Enabled)
	v.SetDefault("client.settings_poll_interval", d.Client.SettingsPollInterval)

	v.SetDefault("queue.batch_size", d.Queue.BatchSize)
	v.SetDefault("queue.max_items", d.Queue.MaxItems)
	v.SetDefault("queue.process_interval", d.Queue.ProcessInterval)
	v.SetDefault("queue.persist", d.Queue.Persist)

	v.SetDefault("deduplication.enabled", d.Deduplication.Enabled)
	v.SetDefault("deduplication.interval", d.Deduplication.Interval)
	v.SetDefault("deduplication.history_size", d.Deduplication.HistorySize)

	v.SetDefault("session.heartbeat_interval", d.Session.HeartbeatInterval)

	v.SetDefault("storage.type", d.Storage.Type)
	v.SetDefault("storage.redis.port", 6379)

	v.SetDefault("submission.type", d.Submission.Type)
	v.SetDefault("submission.timeout", d.Submission.Timeout)
	v.SetDefault("submission.retry.max_attempts", d.Submission.Retry.MaxAttempts)
	v.SetDefault("submission.retry.initial_interval", d.Submission.Retry.InitialInterval)
	v.SetDefault("submission.retry.max_interval", d.Submission.Retry.MaxInterval)
	v.SetDefault("submission.retry.multiplier", d.Submission.Retry.Multiplier)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("collector.port", d.Collector.Port)
	v.SetDefault("collector.settings_version", d.Collector.SettingsVersion)
	v.SetDefault("collector.max_payload_bytes", d.Collector.MaxPayloadBytes)
}
