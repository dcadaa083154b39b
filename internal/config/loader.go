package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultRetryInitial = 500 * time.Millisecond
	defaultRetryMax     = 5 * time.Second
)

func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.SetConfigFile(configFile)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(v, &cfg)
	applyDerivedDefaults(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("client.api_key", "CLIENT_API_KEY", "COURIER_API_KEY")
	v.BindEnv("client.server_url", "CLIENT_SERVER_URL", "COURIER_SERVER_URL")
	v.BindEnv("client.config_server_url", "CLIENT_CONFIG_SERVER_URL")
	v.BindEnv("client.heartbeat_server_url", "CLIENT_HEARTBEAT_SERVER_URL")
	v.BindEnv("client.enabled", "CLIENT_ENABLED")
	v.BindEnv("client.version", "CLIENT_VERSION")

	v.BindEnv("queue.batch_size", "QUEUE_BATCH_SIZE")
	v.BindEnv("queue.max_items", "QUEUE_MAX_ITEMS")
	v.BindEnv("queue.persist", "QUEUE_PERSIST")

	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.file.path", "STORAGE_FILE_PATH")
	v.BindEnv("storage.redis.host", "STORAGE_REDIS_HOST")
	v.BindEnv("storage.redis.port", "STORAGE_REDIS_PORT")
	v.BindEnv("storage.redis.password", "STORAGE_REDIS_PASSWORD")
	v.BindEnv("storage.redis.db", "STORAGE_REDIS_DB")

	v.BindEnv("submission.type", "SUBMISSION_TYPE")
	v.BindEnv("submission.kafka.brokers", "SUBMISSION_KAFKA_BROKERS")
	v.BindEnv("submission.kafka.events_topic", "SUBMISSION_KAFKA_EVENTS_TOPIC")

	v.BindEnv("server.port", "SERVER_PORT")

	v.BindEnv("logging.level", "LOGGING_LEVEL")
	v.BindEnv("logging.format", "LOGGING_FORMAT")

	v.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	v.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")

	v.BindEnv("collector.port", "COLLECTOR_PORT")
}

func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	if brokersEnv := v.GetString("SUBMISSION_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Submission.Kafka.Brokers = brokers
		}
	}

	if exclusions := v.GetString("CLIENT_DATA_EXCLUSIONS"); exclusions != "" {
		for _, exclusion := range strings.Split(exclusions, ",") {
			if exclusion = strings.TrimSpace(exclusion); exclusion != "" {
				cfg.Client.DataExclusions = append(cfg.Client.DataExclusions, exclusion)
			}
		}
	}
}

// applyDerivedDefaults fills values that default to other values.
func applyDerivedDefaults(cfg *Config) {
	cfg.Client.ServerURL = strings.TrimRight(cfg.Client.ServerURL, "/")
	if cfg.Client.ConfigServerURL == "" {
		cfg.Client.ConfigServerURL = cfg.Client.ServerURL
	}
	if cfg.Client.HeartbeatServerURL == "" {
		cfg.Client.HeartbeatServerURL = cfg.Client.ServerURL
	}
	cfg.Client.ConfigServerURL = strings.TrimRight(cfg.Client.ConfigServerURL, "/")
	cfg.Client.HeartbeatServerURL = strings.TrimRight(cfg.Client.HeartbeatServerURL, "/")
}
