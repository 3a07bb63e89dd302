package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PriceCache is a short-lived read-through cache for resolved prices.
// Entries carry their own TTL and expire unilaterally.
type PriceCache struct {
	rdb *redis.Client
}

// New wraps an existing Redis client. Connection liveness is the caller's
// concern (the same client backs the job queue).
func New(rdb *redis.Client) *PriceCache {
	return &PriceCache{rdb: rdb}
}

// Connect creates a Redis client and verifies the server is reachable.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Get returns the cached value, or (nil, nil) on a miss.
func (c *PriceCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

// SetWithExpiry stores a value under key for the given TTL.
func (c *PriceCache) SetWithExpiry(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, val, ttl).Err()
}
