package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/example/ride-pool/internal/auth"
	"github.com/example/ride-pool/internal/config"
	"github.com/example/ride-pool/internal/dispatch"
	"github.com/example/ride-pool/internal/events"
	httpapi "github.com/example/ride-pool/internal/http"
	"github.com/example/ride-pool/internal/logging"
	"github.com/example/ride-pool/internal/notify"
	"github.com/example/ride-pool/internal/rides"
	"github.com/example/ride-pool/internal/search"
	"github.com/example/ride-pool/internal/storage"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger("ride-pool-api", cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store init failed", "store", cfg.Store, "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}()

	if err := seedUsers(ctx, cfg, store, logger); err != nil {
		logger.Error("user seed failed", "file", cfg.UsersSeedFile, "error", err)
		os.Exit(1)
	}

	registry := dispatch.NewRegistry()
	var hub dispatch.Hub = &dispatch.LocalHub{Registry: registry}
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rc.Close()
		redisHub := dispatch.NewRedisHub(rc, cfg.RedisChannelPrefix, registry, logger)
		go func() {
			if err := redisHub.Run(ctx); err != nil {
				logger.Error("realtime hub stopped", "error", err)
			}
		}()
		hub = redisHub
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := kp.Close(); err != nil {
				logger.Warn("kafka writer close failed", "error", err)
			}
		}()
		publisher = kp
	}

	notifier := notify.NewService(store, hub, logger, cfg.NotificationListLimit)
	janitor := notify.NewJanitor(store, cfg.NotificationJanitorPeriod, logger)
	go janitor.Start(ctx)

	limiter := httpapi.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 0)
	defer limiter.Stop()

	deps := httpapi.Deps{
		Rides:    rides.NewService(store, notifier, publisher, logger),
		Search:   search.NewEngine(store, store, cfg.SearchRadiusKm),
		Notify:   notifier,
		Users:    store,
		Verifier: auth.NewVerifier(cfg.JWTSecret),
		Registry: registry,
		Limiter:  limiter,
		Logger:   logger,

		AllowedOrigins: cfg.CORSAllowedOrigins,
	}
	if p, ok := store.(pinger); ok {
		deps.Ready = p.Ping
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(deps),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ride-pool api listening", "addr", cfg.HTTPAddr, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("ride-pool api stopped")
}

func openStore(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		pg, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		if cfg.RunMigrations {
			if err := pg.Migrate(); err != nil {
				_ = pg.Close(ctx)
				return nil, err
			}
			logger.Info("postgres migrations applied")
		}
		return pg, nil
	case config.StoreMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		m, err := storage.NewMongoStore(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := m.EnsureIndexes(connectCtx); err != nil {
			_ = m.Close(ctx)
			return nil, err
		}
		return m, nil
	case config.StoreMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// seedUsers applies USERS_SEED. Without it users come from the registration
// service sharing the database, which the memory store never has.
func seedUsers(ctx context.Context, cfg config.ServerConfig, store storage.UserStore, logger *slog.Logger) error {
	if cfg.UsersSeedFile == "" {
		if cfg.Store == config.StoreMemory {
			logger.Warn("no USERS_SEED set; the memory store has no users and joins will fail")
		}
		return nil
	}
	f, err := os.Open(cfg.UsersSeedFile)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := storage.SeedUsers(ctx, store, f)
	if err != nil {
		return err
	}
	logger.Info("users seeded", "file", cfg.UsersSeedFile, "created", n)
	return nil
}
