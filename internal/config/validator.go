package config

import (
	"fmt"
	"net/url"

	"github.com/hashicorp/go-multierror"

	"courier/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateStatic checks the configuration shape. Every failing section is
// reported, not just the first one.
func ValidateStatic(cfg *Config) error {
	var result *multierror.Error

	for _, err := range []error{
		validateClient(cfg.Client),
		validateQueue(cfg.Queue),
		validateDeduplication(cfg.Deduplication),
		validateStorage(cfg.Storage),
		validateSubmission(cfg.Submission),
		validatePort("server.port", cfg.Server.Port, true),
		validatePort("collector.port", cfg.Collector.Port, true),
	} {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

func validateClient(cfg ClientConfig) error {
	for field, raw := range map[string]string{
		"client.server_url":           cfg.ServerURL,
		"client.config_server_url":    cfg.ConfigServerURL,
		"client.heartbeat_server_url": cfg.HeartbeatServerURL,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return &ValidationError{
				Field:   field,
				Message: fmt.Sprintf("must be an absolute URL, got %q", raw),
			}
		}
	}

	if cfg.SettingsPollInterval < 0 {
		return &ValidationError{
			Field:   "client.settings_poll_interval",
			Message: "settings_poll_interval must be non-negative",
		}
	}

	return nil
}

func validateQueue(cfg QueueConfig) error {
	if cfg.BatchSize < 1 {
		return &ValidationError{
			Field:   "queue.batch_size",
			Message: fmt.Sprintf("batch_size must be positive, got %d", cfg.BatchSize),
		}
	}

	if cfg.MaxItems < 1 {
		return &ValidationError{
			Field:   "queue.max_items",
			Message: fmt.Sprintf("max_items must be positive, got %d", cfg.MaxItems),
		}
	}

	if cfg.ProcessInterval < 0 {
		return &ValidationError{
			Field:   "queue.process_interval",
			Message: "process_interval must be non-negative",
		}
	}

	if cfg.RestoreBatchSizeAfter < 0 {
		return &ValidationError{
			Field:   "queue.restore_batch_size_after",
			Message: "restore_batch_size_after must be non-negative",
		}
	}

	return nil
}

func validateDeduplication(cfg DeduplicationConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.Interval <= 0 {
		return &ValidationError{
			Field:   "deduplication.interval",
			Message: "interval must be positive when deduplication is enabled",
		}
	}

	if cfg.HistorySize < 1 {
		return &ValidationError{
			Field:   "deduplication.history_size",
			Message: "history_size must be positive when deduplication is enabled",
		}
	}

	return nil
}

func validateStorage(cfg StorageConfig) error {
	switch cfg.Type {
	case constants.StorageTypeMemory:
		return nil
	case constants.StorageTypeFile:
		if cfg.File.Path == "" {
			return &ValidationError{
				Field:   "storage.file.path",
				Message: "path is required for file storage",
			}
		}
		return nil
	case constants.StorageTypeRedis:
		if cfg.Redis.Host == "" {
			return &ValidationError{
				Field:   "storage.redis.host",
				Message: "host is required for redis storage",
			}
		}
		return validatePort("storage.redis.port", cfg.Redis.Port, false)
	default:
		return &ValidationError{
			Field:   "storage.type",
			Message: fmt.Sprintf("unknown storage type: %s (supported: memory, file, redis)", cfg.Type),
		}
	}
}

func validateSubmission(cfg SubmissionConfig) error {
	switch cfg.Type {
	case constants.SubmissionTypeHTTP:
	case constants.SubmissionTypeKafka:
		if err := validateKafka(cfg.Kafka); err != nil {
			return err
		}
	default:
		return &ValidationError{
			Field:   "submission.type",
			Message: fmt.Sprintf("unknown submission type: %s (supported: http, kafka)", cfg.Type),
		}
	}

	if cfg.Timeout < 0 {
		return &ValidationError{
			Field:   "submission.timeout",
			Message: "timeout must be non-negative",
		}
	}

	return validateRetry(cfg.Retry)
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "submission.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("submission.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.EventsTopic == "" {
		return &ValidationError{
			Field:   "submission.kafka.events_topic",
			Message: "events topic is required",
		}
	}

	return nil
}

func validateRetry(cfg RetryConfig) error {
	if cfg.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "submission.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.InitialInterval < 0 {
		return &ValidationError{
			Field:   "submission.retry.initial_interval",
			Message: "initial_interval must be non-negative",
		}
	}

	if cfg.MaxInterval > 0 && cfg.InitialInterval > 0 && cfg.MaxInterval < cfg.InitialInterval {
		return &ValidationError{
			Field:   "submission.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Multiplier < 0 {
		return &ValidationError{
			Field:   "submission.retry.multiplier",
			Message: "multiplier must be non-negative",
		}
	}

	return nil
}

func validatePort(field string, port int, zeroAllowed bool) error {
	if port == 0 && zeroAllowed {
		return nil
	}
	if port < 1 || port > 65535 {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", port),
		}
	}
	return nil
}
