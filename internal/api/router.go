package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/cors"
)

// RouterConfig carries the settings NewRouter needs beyond the handlers.
type RouterConfig struct {
	Token            string
	CORSAllowOrigins []string

	// Metrics is mounted at /metrics when non-nil.
	Metrics  http.Handler
	Recorder RequestRecorder

	// RequestsPerMinute is the per-IP limit. Zero means 60.
	RequestsPerMinute int
}

// NewRouter builds and returns the Chi router with all routes configured.
// Health and metrics are unauthenticated; everything else requires bearer auth.
func NewRouter(handlers *Handlers, db, redis pinger, cfg RouterConfig, log *slog.Logger) *chi.Mux {
	limit := cfg.RequestsPerMinute
	if limit <= 0 {
		limit = 60
	}

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	if cfg.Recorder != nil {
		r.Use(RequestMetrics(cfg.Recorder))
	}
	if len(cfg.CORSAllowOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: cfg.CORSAllowOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		}).Handler)
	}
	r.Use(httprate.LimitByIP(limit, time.Minute))

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandlerFunc(db, redis, handlers.engine.Len, log))

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(cfg.Token))

			r.Post("/watchers", handlers.CreateWatcher)
			r.Get("/watchers", handlers.ListWatchers)
			r.Get("/watchers/{id}", handlers.GetWatcher)
			r.Put("/watchers/{id}", handlers.UpdateWatcher)
			r.Delete("/watchers/{id}", handlers.DeleteWatcher)
			r.Post("/watchers/{id}/run", handlers.RunWatcher)

			r.Get("/campgrounds", handlers.SearchCampgrounds)
			r.Get("/campgrounds/ranking", handlers.RankCampgrounds)
			r.Get("/campgrounds/{id}/difficulty", handlers.GetDifficulty)
			r.Get("/campgrounds/{id}/sites/ranking", handlers.GetSiteRanking)
			r.Get("/campgrounds/{id}/weekends", handlers.GetWeekends)

			if handlers.reservecal != nil {
				r.Get("/reservecal/availability", handlers.GetReserveCalAvailability)
				r.Get("/reservecal/update-time", handlers.GetReserveCalUpdateTime)
			}
		})
	})

	return r
}

// Ensure chi.Mux implements http.Handler.
var _ http.Handler = (*chi.Mux)(nil)
