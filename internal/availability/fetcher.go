package availability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// Fetcher is the interface satisfied by Client and CachedFetcher.
type Fetcher interface {
	Fetch(ctx context.Context, campgroundID string, month time.Time) (*Payload, error)
}

// PayloadCache stores normalized payloads. Get returns nil, nil on a miss.
type PayloadCache interface {
	Get(ctx context.Context, campgroundID string, month time.Time) (*Payload, error)
	Set(ctx context.Context, campgroundID string, month time.Time, p *Payload) error
	Delete(ctx context.Context, campgroundID string, month time.Time) error
}

// DefaultSharedFetchTimeout bounds a collapsed upstream fetch when no
// timeout is configured with WithFetchTimeout.
const DefaultSharedFetchTimeout = 60 * time.Second

// Observer counts cache lookups and upstream fetches.
type Observer interface {
	IncCacheHits()
	IncCacheMisses()
	IncFetches(result string)
}

type nopObserver struct{}

func (nopObserver) IncCacheHits()     {}
func (nopObserver) IncCacheMisses()   {}
func (nopObserver) IncFetches(string) {}

// CachedFetcher serves payloads from a cache and collapses concurrent fetches
// of the same campground and month into one upstream call.
// Cache failures are logged and bypassed. Fetch failures are never cached.
//
// The shared upstream call runs on a context detached from any one caller,
// so a caller that gives up only abandons its own wait.
type CachedFetcher struct {
	next    Fetcher
	cache   PayloadCache
	log     *slog.Logger
	obs     Observer
	timeout time.Duration
	group   singleflight.Group
}

// NewCachedFetcher wraps next with the given cache.
func NewCachedFetcher(next Fetcher, cache PayloadCache, log *slog.Logger) *CachedFetcher {
	if log == nil {
		log = slog.Default()
	}
	return &CachedFetcher{next: next, cache: cache, log: log, obs: nopObserver{}, timeout: DefaultSharedFetchTimeout}
}

// WithObserver attaches o to f and returns f.
func (f *CachedFetcher) WithObserver(o Observer) *CachedFetcher {
	if o != nil {
		f.obs = o
	}
	return f
}

// WithFetchTimeout bounds each shared upstream fetch by d and returns f.
func (f *CachedFetcher) WithFetchTimeout(d time.Duration) *CachedFetcher {
	if d > 0 {
		f.timeout = d
	}
	return f
}

// Fetch returns the cached payload or fetches, caches and returns a fresh one.
func (f *CachedFetcher) Fetch(ctx context.Context, campgroundID string, month time.Time) (*Payload, error) {
	month = MonthStart(month)

	cached, err := f.cache.Get(ctx, campgroundID, month)
	if err != nil {
		f.log.Warn("availability cache get failed", "campground_id", campgroundID, "err", err)
	}
	if cached != nil {
		f.obs.IncCacheHits()
		return cached, nil
	}
	f.obs.IncCacheMisses()

	return f.fetchShared(ctx, campgroundID, month)
}

// Refresh drops the cached month and fetches it again from upstream.
func (f *CachedFetcher) Refresh(ctx context.Context, campgroundID string, month time.Time) (*Payload, error) {
	month = MonthStart(month)

	if err := f.cache.Delete(ctx, campgroundID, month); err != nil {
		f.log.Warn("availability cache delete failed", "campground_id", campgroundID, "err", err)
	}

	return f.fetchShared(ctx, campgroundID, month)
}

func (f *CachedFetcher) fetchShared(ctx context.Context, campgroundID string, month time.Time) (*Payload, error) {
	key := fmt.Sprintf("%s:%s", campgroundID, FormatMonth(month))
	ch := f.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
		defer cancel()

		p, err := f.next.Fetch(fetchCtx, campgroundID, month)
		if err != nil {
			f.obs.IncFetches("failed")
			return nil, err
		}
		f.obs.IncFetches("ok")
		if err := f.cache.Set(fetchCtx, campgroundID, month, p); err != nil {
			f.log.Warn("availability cache set failed", "campground_id", campgroundID, "err", err)
		}
		return p, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for availability of campground %s: %w", campgroundID, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Payload), nil
	}
}
