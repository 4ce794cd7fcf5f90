package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coocood/freecache"

	"github.com/neexbeast/campwatch/internal/availability"
)

// minMemoryBytes is the smallest size freecache accepts.
const minMemoryBytes = 512 * 1024

// MemoryCache stores payloads in process memory.
type MemoryCache struct {
	cache      *freecache.Cache
	codec      *Codec
	ttlSeconds int
}

// NewMemoryCache constructs a MemoryCache holding up to sizeMB megabytes.
func NewMemoryCache(sizeMB int, codec *Codec, ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	size := max(sizeMB*1024*1024, minMemoryBytes)
	return &MemoryCache{
		cache:      freecache.NewCache(size),
		codec:      codec,
		ttlSeconds: max(int(ttl.Seconds()), 1),
	}
}

// Get returns nil, nil on a miss or an expired entry.
func (c *MemoryCache) Get(_ context.Context, campgroundID string, month time.Time) (*availability.Payload, error) {
	b, err := c.cache.Get([]byte(key(campgroundID, month)))
	if err != nil {
		if errors.Is(err, freecache.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("memory cache get for campground %s: %w", campgroundID, err)
	}

	p, err := c.codec.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("decoding cached payload for campground %s: %w", campgroundID, err)
	}
	return p, nil
}

func (c *MemoryCache) Set(_ context.Context, campgroundID string, month time.Time, p *availability.Payload) error {
	if p == nil {
		return nil
	}

	b, err := c.codec.Encode(p)
	if err != nil {
		return fmt.Errorf("encoding payload for campground %s: %w", campgroundID, err)
	}

	if err := c.cache.Set([]byte(key(campgroundID, month)), b, c.ttlSeconds); err != nil {
		return fmt.Errorf("memory cache set for campground %s: %w", campgroundID, err)
	}
	return nil
}

// Delete removes the cached month for a campground.
func (c *MemoryCache) Delete(_ context.Context, campgroundID string, month time.Time) error {
	c.cache.Del([]byte(key(campgroundID, month)))
	return nil
}
