package config

import (
	"time"
)

type Config struct {
	Client         ClientConfig         `mapstructure:"client"`
	Queue          QueueConfig          `mapstructure:"queue"`
	Deduplication  DeduplicationConfig  `mapstructure:"deduplication"`
	Session        SessionConfig        `mapstructure:"session"`
	Storage        StorageConfig        `mapstructure:"storage"`
	Submission     SubmissionConfig     `mapstructure:"submission"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
	Server         ServerConfig         `mapstructure:"server"`
	Collector      CollectorConfig      `mapstructure:"collector"`
}

type ClientConfig struct {
	APIKey               string                 `mapstructure:"api_key"`
	ServerURL            string                 `mapstructure:"server_url"`
	ConfigServerURL      string                 `mapstructure:"config_server_url"`
	HeartbeatServerURL   string                 `mapstructure:"heartbeat_server_url"`
	Enabled              bool                   `mapstructure:"enabled"`
	DefaultTags          []string               `mapstructure:"default_tags"`
	DefaultData          map[string]interface{} `mapstructure:"default_data"`
	DataExclusions       []string               `mapstructure:"data_exclusions"`
	ExcludeExpressions   map[string]string      `mapstructure:"exclude_expressions"`
	UserIdentity         string                 `mapstructure:"user_identity"`
	UserName             string                 `mapstructure:"user_name"`
	Version              string                 `mapstructure:"version"`
	UseReferenceIDs      bool                   `mapstructure:"use_reference_ids"`
	SettingsPollInterval time.Duration          `mapstructure:"settings_poll_interval"`
}

type QueueConfig struct {
	BatchSize       int           `mapstructure:"batch_size"`
	MaxItems        int           `mapstructure:"max_items"`
	ProcessInterval time.Duration `mapstructure:"process_interval"`
	Persist         bool          `mapstructure:"persist"`
	// RestoreBatchSizeAfter grows a shrunken batch size back after this many
	// consecutive accepted batches. Zero keeps the reduced size.
	RestoreBatchSizeAfter int `mapstructure:"restore_batch_size_after"`
}

type DeduplicationConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Interval         time.Duration `mapstructure:"interval"`
	HistorySize      int           `mapstructure:"history_size"`
	IncludeErrorType bool          `mapstructure:"include_error_type"`
}

type SessionConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

type StorageConfig struct {
	Type  string             `mapstructure:"type"`
	File  FileStorageConfig  `mapstructure:"file"`
	Redis RedisStorageConfig `mapstructure:"redis"`
}

type FileStorageConfig struct {
	Path string `mapstructure:"path"`
}

type RedisStorageConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	Namespace string `mapstructure:"namespace"`
}

type SubmissionConfig struct {
	Type     string        `mapstructure:"type"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Compress bool          `mapstructure:"compress"`
	Retry    RetryConfig   `mapstructure:"retry"`
	Kafka    KafkaConfig   `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers           []string `mapstructure:"brokers"`
	EventsTopic       string   `mapstructure:"events_topic"`
	DescriptionsTopic string   `mapstructure:"descriptions_topic"`
	HeartbeatsTopic   string   `mapstructure:"heartbeats_topic"`
}

// WithDefaultTopics derives unset description and heartbeat topics from the
// events topic.
func (k KafkaConfig) WithDefaultTopics() KafkaConfig {
	if k.DescriptionsTopic == "" {
		k.DescriptionsTopic = k.EventsTopic + ".descriptions"
	}
	if k.HeartbeatsTopic == "" {
		k.HeartbeatsTopic = k.EventsTopic + ".heartbeats"
	}
	return k
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

// ServerConfig controls the metrics/health listener of long-running
// commands. Port 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type CollectorConfig struct {
	Port            int               `mapstructure:"port"`
	APIKeys         []string          `mapstructure:"api_keys"`
	SettingsVersion int               `mapstructure:"settings_version"`
	Settings        map[string]string `mapstructure:"settings"`
	MaxPayloadBytes int64             `mapstructure:"max_payload_bytes"`
	ForceStatus     int               `mapstructure:"force_status"`
	RateLimit       RateLimitConfig   `mapstructure:"rate_limit"`
	// Kafka, when brokers are set, makes the collector also ingest what the
	// Kafka transport publishes.
	Kafka        KafkaConfig `mapstructure:"kafka"`
	KafkaGroupID string      `mapstructure:"kafka_group_id"`
}

type RateLimitConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RPS             float64       `mapstructure:"rps"`
	Burst           int           `mapstructure:"burst"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxAge          time.Duration `mapstructure:"max_age"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
