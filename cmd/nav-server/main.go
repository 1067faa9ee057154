package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"navdir/internal/clock"
	"navdir/internal/config"
	"navdir/internal/domain"
	"navdir/internal/handler"
	"navdir/internal/messaging"
	"navdir/internal/observability"
	"navdir/internal/repository/memory"
	"navdir/internal/repository/postgres"
	"navdir/internal/repository/redis"
	"navdir/internal/router"
	"navdir/internal/security"
	"navdir/internal/service"
	"navdir/internal/websocket"
)

// expiredSweeper is implemented by stores that keep expired rows around
// until they are swept.
type expiredSweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting nav server",
		slog.String("environment", cfg.Environment),
		slog.String("store", cfg.StoreBackend),
		slog.String("version", cfg.AppVersion))

	clk := clock.Real{}

	connCtx, connCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer connCancel()

	store, db, closeStore, err := openStore(connCtx, cfg, clk)
	if err != nil {
		slog.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStore()

	hub := websocket.NewHub()

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go func() {
		if err := hub.Run(hubCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()
	slog.Info("websocket hub started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var publisher domain.EventPublisher = hub
	var broker handler.BrokerStatus
	if cfg.RabbitMQURL != "" {
		rmqCtx, rmqCancel := context.WithTimeout(context.Background(), 60*time.Second)
		rmq, err := messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL)
		rmqCancel()
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()

		if err := messaging.NewEventConsumer(rmq, hub).Start(ctx); err != nil {
			slog.Error("failed to start event consumer", slog.String("error", err.Error()))
			os.Exit(1)
		}
		slog.Info("config event consumer started")

		publisher = rmq
		broker = rmq
	}

	limiter := service.NewLoginLimiter(store, service.LimiterConfig{
		Window:   cfg.LoginRateWindow(),
		MaxFails: cfg.LoginRateMaxFails(),
		Lock:     cfg.LoginRateLock(),
	}, clk)
	authService := service.NewAuthService(limiter, security.NewTokenCodec(clk), cfg.SessionTTL(), clk)
	documents := service.NewConfigService(store, domain.IsNavConfig, publisher, clk)

	var devDocuments *service.ConfigService
	if cfg.DevAdminEnabled() {
		devDocuments = service.NewConfigService(memory.NewKVStore(clk), domain.IsNavConfig, hub, clk)
		slog.Warn("development admin and loopback document store enabled")
	}

	if sweeper, ok := store.(expiredSweeper); ok && cfg.StoreCleanupInterval > 0 {
		go startStoreCleanup(ctx, sweeper, db, cfg.StoreCleanupInterval)
		slog.Info("store cleanup task started", slog.Duration("interval", cfg.StoreCleanupInterval))
	}

	routes := router.New(router.Deps{
		Config:       cfg,
		Auth:         authService,
		Documents:    documents,
		DevDocuments: devDocuments,
		Hub:          hub,
		Store:        store,
		DB:           db,
		Broker:       broker,
		Clock:        clk,
	})
	defer routes.Close()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      routes,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("nav server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	cancel()
	hubCancel()

	slog.Info("server stopped gracefully")
}

// openStore builds the key-value store selected by STORE_BACKEND. With no
// backend it returns a nil store: config reads and writes then fail with
// "store not configured" and login throttling is bypassed. db is only
// non-nil for the postgres backend.
func openStore(ctx context.Context, cfg *config.Config, clk clock.Clock) (domain.KVStore, *sql.DB, func(), error) {
	noop := func() {}

	switch cfg.StoreBackend {
	case config.StoreMemory:
		slog.Info("using in-memory store")
		return memory.NewKVStore(clk), nil, noop, nil

	case config.StoreRedis:
		client, err := config.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, noop, err
		}
		slog.Info("connected to redis")
		return redis.NewKVStore(client, cfg.RedisKeyPrefix), nil, func() { client.Close() }, nil

	case config.StorePostgres:
		db, err := config.NewPostgresConnection(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, noop, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, noop, err
		}
		store, err := postgres.NewKVStore(db, clk)
		if err != nil {
			db.Close()
			return nil, nil, noop, err
		}
		slog.Info("connected to postgresql")
		return store, db, func() {
			store.Close()
			db.Close()
		}, nil

	default:
		slog.Warn("no STORE_BACKEND configured, config document and login throttling are disabled")
		return nil, nil, noop, nil
	}
}

// startStoreCleanup periodically removes expired rate-limit records and
// refreshes the connection pool gauges.
func startStoreCleanup(ctx context.Context, sweeper expiredSweeper, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping store cleanup task")
			return
		case <-ticker.C:
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			count, err := sweeper.DeleteExpired(cleanupCtx)
			if err != nil {
				slog.Error("store cleanup failed", slog.String("error", err.Error()))
			} else {
				observability.StoreExpiredEntriesDeleted.Add(float64(count))
				slog.Info("store cleanup completed", slog.Int64("entries_deleted", count))
			}
			cancel()

			if db != nil {
				observability.RecordDBStats(db.Stats())
			}
		}
	}
}
