package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "courier:storage"

// Redis keeps all items of one namespace in a single Redis hash so a
// namespace can be listed and cleared atomically.
type Redis struct {
	client *redis.Client
	key    string
}

func NewRedis(client *redis.Client, namespace string) *Redis {
	if namespace == "" {
		namespace = DefaultRedisKey
	}
	return &Redis{client: client, key: namespace}
}

// Client is the connection backing r, for health checks.
func (r *Redis) Client() *redis.Client { return r.client }

func (r *Redis) Length(ctx context.Context) (int, error) {
	n, err := r.client.HLen(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis HLEN failed: %w", err)
	}
	return int(n), nil
}

func (r *Redis) Keys(ctx context.Context) ([]string, error) {
	keys, err := r.client.HKeys(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis HKEYS failed: %w", err)
	}
	return sortedCopy(keys), nil
}

func (r *Redis) Key(ctx context.Context, index int) (string, bool, error) {
	keys, err := r.Keys(ctx)
	if err != nil {
		return "", false, err
	}
	key, ok := keyAt(keys, index)
	return key, ok, nil
}

func (r *Redis) GetItem(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.HGet(ctx, r.key, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis HGET failed: %w", err)
	}
	return value, true, nil
}

func (r *Redis) SetItem(ctx context.Context, key, value string) error {
	if err := r.client.HSet(ctx, r.key, key, value).Err(); err != nil {
		return fmt.Errorf("redis HSET failed: %w", err)
	}
	return nil
}

func (r *Redis) RemoveItem(ctx context.Context, key string) error {
	if err := r.client.HDel(ctx, r.key, key).Err(); err != nil {
		return fmt.Errorf("redis HDEL failed: %w", err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis DEL failed: %w", err)
	}
	return nil
}
