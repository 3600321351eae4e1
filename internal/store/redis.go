// Package store holds the gateway's persistence collaborators: the
// Postgres-backed row store and the Redis-backed gauge sink.
package store

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisClient is a thin wrapper around go-redis. The auth credential
// cache (§4.5) is deliberately in-process, not Redis-backed — its
// cache-hit/expiry behavior is a tested invariant of internal/auth, and
// keeping it local avoids a network round trip on the hot authentication
// path. RedisClient's only caller is the rate limiter, which mirrors its
// in-process remaining-token gauge here for external inspection.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to redisURL and verifies connectivity with a
// ping.
func NewRedisClient(ctx context.Context, redisURL string) (*RedisClient, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// Close closes the underlying connection.
func (c *RedisClient) Close() error {
	return c.client.Close()
}

// SetGauge stores a gauge-style numeric reading, used to mirror the
// in-process rate-limit token count into Redis for external inspection.
func (c *RedisClient) SetGauge(ctx context.Context, key string, value float64) error {
	return c.client.Set(ctx, key, value, 0).Err()
}
