package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/neexbeast/campwatch/internal/api"
	"github.com/neexbeast/campwatch/internal/availability"
	"github.com/neexbeast/campwatch/internal/cache"
	"github.com/neexbeast/campwatch/internal/config"
	"github.com/neexbeast/campwatch/internal/metrics"
	"github.com/neexbeast/campwatch/internal/notify"
	"github.com/neexbeast/campwatch/internal/reservecal"
	"github.com/neexbeast/campwatch/internal/scheduler"
	"github.com/neexbeast/campwatch/internal/storage"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx := context.Background()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Connect to PostgreSQL.
	pool, err := storage.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	applied, err := storage.RunMigrations(ctx, pool, cfg.MigrationsDir)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("migrations applied", "count", applied)

	// Redis is optional; it backs the payload cache when selected and is
	// pinged by the health check whenever configured.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() { _ = redisClient.Close() }()
	}

	recorder := metrics.New(cfg.MetricsEnabled)

	payloadCache, err := buildCache(cfg, redisClient)
	if err != nil {
		return err
	}

	client := availability.NewClientWithURLs(cfg.AvailabilityURL, cfg.SearchURL,
		availability.WithTimeout(cfg.FetchTimeout),
		availability.WithRateLimit(cfg.UpstreamRPS, 2),
		availability.WithAPIKey(cfg.RIDBAPIKey),
	)
	fetcher := availability.NewCachedFetcher(client, payloadCache, log).
		WithObserver(recorder).
		WithFetchTimeout(cfg.TickTimeout)

	var transport notify.Transport = notify.LogTransport{Log: log}
	if cfg.SMTPEnabled() {
		transport = notify.NewSMTPTransport(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}
	notifier := notify.NewNotifier(transport, log, recorder)

	repo := storage.NewRepository(pool)
	engine := scheduler.New(repo, fetcher, notifier, scheduler.Config{
		Location:           loc,
		MaxConcurrentTicks: int64(cfg.MaxConcurrentTicks),
		TickTimeout:        cfg.TickTimeout,
	}, scheduler.WithLogger(log), scheduler.WithRecorder(recorder))

	// Every stored watcher is rescheduled before the API accepts writes.
	if _, err := engine.Recover(ctx); err != nil {
		return fmt.Errorf("recovering schedules: %w", err)
	}
	engine.Start()

	rc := reservecal.NewClientWithURLs(cfg.ReserveCalAvailabilityURL, cfg.ReserveCalParkURL,
		reservecal.WithTimeout(cfg.FetchTimeout),
		reservecal.WithRateLimit(cfg.UpstreamRPS, 1),
		reservecal.WithLocation(loc),
	)
	handlers := api.NewHandlers(repo, engine, fetcher, client, log).WithReserveCal(rc)

	routerCfg := api.RouterConfig{
		Token:            cfg.BearerToken,
		CORSAllowOrigins: cfg.CORSAllowOrigins,
		Recorder:         recorder,
	}
	if p, ok := recorder.(*metrics.Prometheus); ok {
		routerCfg.Metrics = p.Handler()
	}

	var router http.Handler
	if redisClient != nil {
		router = api.NewRouter(handlers, pool, &redisPingerAdapter{client: redisClient}, routerCfg, log)
	} else {
		router = api.NewRouter(handlers, pool, nil, routerCfg, log)
	}

	port := strconv.Itoa(cfg.Port)
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.TickTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("server goroutine panicked", "recover", r)
				errCh <- fmt.Errorf("server panicked: %v", r)
			}
		}()
		log.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listening: %w", err)
		}
	}()

	select {
	case sig := <-quit:
		log.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	if err := engine.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stopping scheduler: %w", err)
	}

	log.Info("server shut down cleanly")
	return nil
}

func buildCache(cfg *config.Config, redisClient *redis.Client) (availability.PayloadCache, error) {
	if cfg.CacheBackend == config.CacheNone {
		return cache.Noop{}, nil
	}

	codec, err := cache.NewCodec()
	if err != nil {
		return nil, fmt.Errorf("creating cache codec: %w", err)
	}

	if cfg.CacheBackend == config.CacheRedis {
		return cache.NewRedisCache(redisClient, codec, cfg.CacheTTL), nil
	}
	return cache.NewMemoryCache(cfg.CacheSizeMB, codec, cfg.CacheTTL), nil
}

func logLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// redisPingerAdapter adapts redis.Client to the health check's pinger.
type redisPingerAdapter struct {
	client *redis.Client
}

func (r *redisPingerAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
