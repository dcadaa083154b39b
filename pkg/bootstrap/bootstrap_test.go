package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/config"
	"courier/internal/logger"
	"courier/internal/storage"
)

func TestBase_ShutdownOrderAndErrors(t *testing.T) {
	b := NewBase(config.Default(), logger.NopLogger())

	var order []string
	b.OnShutdown(func(context.Context) error { order = append(order, "first"); return errors.New("first failed") })
	b.OnShutdown(func(context.Context) error { order = append(order, "second"); return nil })
	b.OnShutdown(func(context.Context) error { order = append(order, "third"); return errors.New("third failed") })

	err := b.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first failed")
	assert.Contains(t, err.Error(), "third failed")
	assert.Equal(t, []string{"third", "second", "first"}, order)

	assert.NoError(t, b.Shutdown(context.Background()), "functions run once")
}

func TestBase_InitTracingDisabled(t *testing.T) {
	b := NewBase(config.Default(), logger.NopLogger())
	require.NoError(t, b.InitTracing("courier-test"))
	assert.NoError(t, b.Shutdown(context.Background()))
}

func TestStorageConnector(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		s, closeFn, err := NewStorageConnector(config.StorageConfig{}, logger.NopLogger()).Open()
		require.NoError(t, err)
		assert.IsType(t, &storage.Memory{}, s)
		assert.NoError(t, closeFn(context.Background()))
	})

	t.Run("file", func(t *testing.T) {
		cfg := config.StorageConfig{Type: "file", File: config.FileStorageConfig{Path: t.TempDir()}}
		s, _, err := NewStorageConnector(cfg, logger.NopLogger()).Open()
		require.NoError(t, err)
		assert.IsType(t, &storage.File{}, s)
	})

	t.Run("redis", func(t *testing.T) {
		cfg := config.StorageConfig{Type: "redis", Redis: config.RedisStorageConfig{Host: "localhost", Port: 6379, Namespace: "test"}}
		sc := NewStorageConnector(cfg, logger.NopLogger())
		s, closeFn, err := sc.Open()
		require.NoError(t, err)
		assert.IsType(t, &storage.Redis{}, s)
		require.NotNil(t, sc.Redis)
		assert.Equal(t, "localhost:6379", sc.Redis.Options().Addr)
		assert.NoError(t, closeFn(context.Background()))
	})

	t.Run("unknown", func(t *testing.T) {
		_, closeFn, err := NewStorageConnector(config.StorageConfig{Type: "tape"}, logger.NopLogger()).Open()
		assert.Error(t, err)
		assert.NotNil(t, closeFn)
	})

	t.Run("ping without redis", func(t *testing.T) {
		assert.NoError(t, NewStorageConnector(config.StorageConfig{}, logger.NopLogger()).PingRedis(context.Background()))
	})
}
