package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"courier/internal/config"
	"courier/internal/constants"
	"courier/internal/logger"
	"courier/internal/storage"
)

// StorageConnector opens the queue storage named by the configuration.
type StorageConnector struct {
	Config config.StorageConfig
	Logger logger.Logger

	// Redis is set once a redis backend was opened.
	Redis *redis.Client
}

func NewStorageConnector(cfg config.StorageConfig, log logger.Logger) *StorageConnector {
	return &StorageConnector{
		Config: cfg,
		Logger: log,
	}
}

// Open builds the backend. The returned ShutdownFunc is never nil.
func (sc *StorageConnector) Open() (storage.Storage, ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }

	switch sc.Config.Type {
	case "", constants.StorageTypeMemory:
		return storage.NewMemory(), noop, nil
	case constants.StorageTypeFile:
		fs, err := storage.NewFile(sc.Config.File.Path)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open file storage: %w", err)
		}
		sc.Logger.Infow("File storage opened", "path", fs.Dir())
		return fs, noop, nil
	case constants.StorageTypeRedis:
		rdb := sc.NewRedisClient()
		sc.Redis = rdb
		sc.Logger.Infow("Redis storage configured",
			"addr", rdb.Options().Addr,
			"namespace", sc.Config.Redis.Namespace,
		)
		return storage.NewRedis(rdb, sc.Config.Redis.Namespace), func(context.Context) error {
			if err := rdb.Close(); err != nil {
				return fmt.Errorf("redis close error: %w", err)
			}
			return nil
		}, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage type %q", sc.Config.Type)
	}
}

func (sc *StorageConnector) NewRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", sc.Config.Redis.Host, sc.Config.Redis.Port),
		Password: sc.Config.Redis.Password,
		DB:       sc.Config.Redis.DB,
	})
}

// PingRedis verifies the redis backend, if one is configured.
func (sc *StorageConnector) PingRedis(ctx context.Context) error {
	if sc.Redis == nil {
		return nil
	}
	if err := sc.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	sc.Logger.Info("Redis connected successfully")
	return nil
}
