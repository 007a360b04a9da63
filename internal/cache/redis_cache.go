package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"subpromo/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewRedisClient creates a Redis client and verifies connectivity.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("Redis client connected")
	return rdb, nil
}

// RedisCache implements Cache on top of go-redis.
type RedisCache struct {
	client redis.Cmdable
	logger zerolog.Logger
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(client redis.Cmdable, logger zerolog.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		logger: logger.With().Str("component", "redis_cache").Logger(),
	}
}

// Get returns the raw value stored under key.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, &Error{Op: "get", Key: key, Err: err}
	}
	return data, nil
}

// Set stores value under key. A non-positive ttl is rejected so nothing is cached forever.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return &Error{Op: "set", Key: key, Err: fmt.Errorf("invalid ttl %s", ttl)}
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return &Error{Op: "set", Key: key, Err: err}
	}
	return nil
}

// maxDeletePasses bounds how often DeleteByPattern rescans a pattern whose
// keys keep appearing.
const maxDeletePasses = 16

// DeleteByPattern walks the keyspace with SCAN MATCH, batchSize keys per page,
// and unlinks each page. The walk is repeated until a pass removes nothing, so
// keys skipped by a cursor that shifted under the deletes are still removed.
// It returns the number of keys removed, including the ones removed before a
// failure.
func (c *RedisCache) DeleteByPattern(ctx context.Context, pattern string, batchSize int) (int, error) {
	if batchSize < 1 {
		batchSize = 1
	}

	deleted := 0
	for pass := 1; pass <= maxDeletePasses; pass++ {
		n, err := c.deletePass(ctx, pattern, int64(batchSize))
		deleted += n
		if err != nil {
			return deleted, err
		}
		if n == 0 {
			break
		}
	}

	c.logger.Debug().Str("pattern", pattern).Int("deleted", deleted).Msg("deleted keys by pattern")
	return deleted, nil
}

func (c *RedisCache) deletePass(ctx context.Context, pattern string, count int64) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, count).Result()
		if err != nil {
			return deleted, &Error{Op: "scan", Key: pattern, Err: err}
		}

		if len(keys) > 0 {
			n, err := c.client.Unlink(ctx, keys...).Result()
			if err != nil {
				return deleted, &Error{Op: "unlink", Key: pattern, Err: err}
			}
			deleted += int(n)
		}

		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}
