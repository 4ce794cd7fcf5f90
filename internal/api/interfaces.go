package api

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/neexbeast/campwatch/internal/availability"
	"github.com/neexbeast/campwatch/internal/scheduler"
	"github.com/neexbeast/campwatch/internal/watcher"
)

// WatcherRepo defines the storage operations needed by handlers.
type WatcherRepo interface {
	Create(ctx context.Context, w *watcher.Watcher) (*watcher.Watcher, error)
	Get(ctx context.Context, id int64) (*watcher.Watcher, error)
	List(ctx context.Context) ([]*watcher.Watcher, error)
	Update(ctx context.Context, w *watcher.Watcher) (*watcher.Watcher, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// Engine defines the scheduler operations needed by handlers.
type Engine interface {
	Schedule(id int64, c watcher.Clock) error
	Cancel(id int64)
	Next(id int64) (time.Time, bool)
	RunOnce(ctx context.Context, id int64) scheduler.TickResult
	Len() int
}

// Refresher is implemented by fetchers that can bypass their cache.
type Refresher interface {
	Refresh(ctx context.Context, campgroundID string, month time.Time) (*availability.Payload, error)
}

// Searcher defines the campground search needed by handlers.
type Searcher interface {
	Search(ctx context.Context, query, lat, lon string) ([]availability.Campground, error)
}

// RequestRecorder receives per-route request metrics.
type RequestRecorder interface {
	IncRequestsTotal(route string, status int)
	ObserveRequestDuration(route string, d time.Duration)
}

// ReserveCal defines the ReserveCalifornia lookups needed by handlers.
type ReserveCal interface {
	Availability(ctx context.Context, parkID, facilityID string, start time.Time) (json.RawMessage, error)
	NextUpdate(ctx context.Context, parkID, facilityID string) (*time.Time, error)
}
