package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/neexbeast/campwatch/internal/availability"
)

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	repo     WatcherRepo
	engine   Engine
	fetcher  availability.Fetcher
	searcher Searcher
	log      *slog.Logger
	now      func() time.Time

	// reservecal routes are mounted only when set.
	reservecal ReserveCal
}

// NewHandlers constructs Handlers with all required dependencies.
func NewHandlers(repo WatcherRepo, engine Engine, fetcher availability.Fetcher, searcher Searcher, log *slog.Logger) *Handlers {
	return &Handlers{
		repo:     repo,
		engine:   engine,
		fetcher:  fetcher,
		searcher: searcher,
		log:      log,
		now:      time.Now,
	}
}

// WithClock overrides the time source used to resolve the default month.
func (h *Handlers) WithClock(now func() time.Time) *Handlers {
	h.now = now
	return h
}

// WithReserveCal enables the ReserveCalifornia lookups.
func (h *Handlers) WithReserveCal(rc ReserveCal) *Handlers {
	h.reservecal = rc
	return h
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// pathID parses the {id} URL parameter as a watcher id.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// fetchStatus maps an upstream failure to 502 and anything else to 500.
func fetchStatus(err error) int {
	if errors.Is(err, availability.ErrFetchFailed) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

type pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandlerFunc returns an http.HandlerFunc that checks db and redis
// connectivity and reports how many watchers are scheduled.
// A nil redis pinger is reported as "disabled".
func HealthHandlerFunc(db, redis pinger, scheduled func() int, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		dbStatus := "ok"
		redisStatus := "disabled"

		if err := db.Ping(ctx); err != nil {
			log.Error("health check: db ping failed", "err", err)
			dbStatus = "error"
			status = http.StatusServiceUnavailable
		}

		if redis != nil {
			redisStatus = "ok"
			if err := redis.Ping(ctx); err != nil {
				log.Error("health check: redis ping failed", "err", err)
				redisStatus = "error"
				status = http.StatusServiceUnavailable
			}
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}

		writeJSON(w, status, map[string]any{
			"status":    overall,
			"db":        dbStatus,
			"redis":     redisStatus,
			"scheduled": scheduled(),
		})
	}
}
