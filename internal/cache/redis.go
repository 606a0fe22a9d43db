package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/muzz-matching/internal/config"
	"github.com/oggyb/muzz-matching/internal/domain"
)

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	return c.Client.Del(ctx, keys...).Err()
}

// GetJSON decodes the value at key into dst.
// A missing key reports (false, nil).
func (c *RedisCache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v as JSON with the given TTL.
func (c *RedisCache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.Client.Set(ctx, key, raw, ttl).Err()
}

// KeyForScore generates the Redis key for a pair score.
// The pair is normalized so (a, b) and (b, a) share one entry.
func KeyForScore(version string, a, b uint64) string {
	low, high := domain.PairKey(a, b)
	return fmt.Sprintf("compatibility:%s:%d:%d", version, low, high)
}

// InvalidateUserScores drops every cached score involving userID, across
// scorer versions. Returns the number of keys removed.
func (c *RedisCache) InvalidateUserScores(ctx context.Context, userID uint64) (int, error) {
	removed := 0
	for _, pattern := range []string{
		fmt.Sprintf("compatibility:*:%d:*", userID),
		fmt.Sprintf("compatibility:*:*:%d", userID),
	} {
		iter := c.Client.Scan(ctx, 0, pattern, 100).Iterator()
		var batch []string
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return removed, err
		}
		if len(batch) == 0 {
			continue
		}
		n, err := c.Client.Del(ctx, batch...).Result()
		if err != nil {
			return removed, err
		}
		removed += int(n)
	}
	return removed, nil
}

// Publish sends a JSON-encoded message on channel.
func (c *RedisCache) Publish(ctx context.Context, channel string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return c.Client.Publish(ctx, channel, raw).Err()
}

// Enqueue pushes a JSON-encoded job onto the head of a list queue.
func (c *RedisCache) Enqueue(ctx context.Context, queue string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return c.Client.LPush(ctx, queue, raw).Err()
}
