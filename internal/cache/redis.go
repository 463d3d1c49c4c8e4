package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"dev.helix.recall/internal/config"
)

// scanBatchSize bounds one SCAN page and one bulk DEL.
const scanBatchSize = 200

// RedisLevel is the shared level of the tiered cache. All errors it
// returns are logged and swallowed by the tiered cache; they never reach
// the calling operation.
type RedisLevel struct {
	client *redis.Client
}

// NewRedisLevel builds a shared level from config.
func NewRedisLevel(cfg config.RedisConfig) *RedisLevel {
	return &RedisLevel{client: redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})}
}

// NewRedisLevelFromClient wraps an existing client. Used by tests with
// miniredis.
func NewRedisLevelFromClient(client *redis.Client) *RedisLevel {
	return &RedisLevel{client: client}
}

// Get returns the raw payload for key, a miss flag, and any transport
// error.
func (r *RedisLevel) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set writes a payload with a TTL.
func (r *RedisLevel) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, data, ttl).Err()
}

// Delete removes keys.
func (r *RedisLevel) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// DeletePattern enumerates keys matching the glob pattern via SCAN and
// deletes them in bounded batches. Returns the number of keys deleted.
func (r *RedisLevel) DeletePattern(ctx context.Context, pattern string) (int, error) {
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return deleted, err
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// Ping checks connectivity.
func (r *RedisLevel) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *RedisLevel) Close() error {
	return r.client.Close()
}
