package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neexbeast/campwatch/internal/availability"
)

// DefaultTTL bounds how stale a cached month of availability may be.
const DefaultTTL = 5 * time.Minute

// key returns the cache key for a campground month.
func key(campgroundID string, month time.Time) string {
	return "availability:" + campgroundID + ":" + availability.FormatMonth(month)
}

// RedisCache stores normalized payloads in Redis.
type RedisCache struct {
	client *redis.Client
	codec  *Codec
	ttl    time.Duration
}

// NewRedisCache constructs a RedisCache. A non-positive ttl uses DefaultTTL.
func NewRedisCache(client *redis.Client, codec *Codec, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, codec: codec, ttl: ttl}
}

// Get retrieves a payload from cache.
// Returns nil, nil on a cache miss (not an error).
func (c *RedisCache) Get(ctx context.Context, campgroundID string, month time.Time) (*availability.Payload, error) {
	b, err := c.client.Get(ctx, key(campgroundID, month)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get for campground %s: %w", campgroundID, err)
	}

	p, err := c.codec.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("decoding cached payload for campground %s: %w", campgroundID, err)
	}
	return p, nil
}

// Set stores a payload with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, campgroundID string, month time.Time, p *availability.Payload) error {
	if p == nil {
		return nil
	}

	b, err := c.codec.Encode(p)
	if err != nil {
		return fmt.Errorf("encoding payload for campground %s: %w", campgroundID, err)
	}

	if err := c.client.Set(ctx, key(campgroundID, month), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set for campground %s: %w", campgroundID, err)
	}
	return nil
}

// Delete removes the cached month for a campground.
func (c *RedisCache) Delete(ctx context.Context, campgroundID string, month time.Time) error {
	if err := c.client.Del(ctx, key(campgroundID, month)).Err(); err != nil {
		return fmt.Errorf("cache delete for campground %s: %w", campgroundID, err)
	}
	return nil
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string, time.Time) (*availability.Payload, error) { return nil, nil }

func (Noop) Set(context.Context, string, time.Time, *availability.Payload) error { return nil }

func (Noop) Delete(context.Context, string, time.Time) error { return nil }
