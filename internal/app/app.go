package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/sundayezeilo/digestlink/fingerprint"
	"github.com/sundayezeilo/digestlink/internal/config"
	"github.com/sundayezeilo/digestlink/internal/db"
	"github.com/sundayezeilo/digestlink/internal/server"
	"github.com/sundayezeilo/digestlink/internal/shortener"
)

const (
	connectAttempts = 3
	connectInterval = 2 * time.Second
)

// App holds the application dependencies and configuration.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    shortener.Store
	Resolver *shortener.Resolver
	Server   *server.Server
	Handler  *shortener.Handler

	closers []func() error
}

// New initializes and returns a new App instance with all dependencies wired up.
func New(ctx context.Context) (*App, error) {
	loadEnv()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return NewWithConfig(ctx, cfg, setupLogger(cfg.App.LogLevel))
}

// NewWithConfig wires the application from an already loaded configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	logger.Info("starting application",
		"env", cfg.App.Environment,
		"version", cfg.Observability.ServiceVersion,
		"store", cfg.Store.Driver,
		"digest", cfg.Shortener.DigestAlgorithm,
	)

	a := &App{Config: cfg, Logger: logger}

	store, err := a.openStore(ctx)
	if err != nil {
		_ = a.Shutdown()
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}

	hasher, err := fingerprint.New(fingerprint.Algorithm(cfg.Shortener.DigestAlgorithm))
	if err != nil {
		_ = a.Shutdown()
		return nil, err
	}

	resolver := shortener.NewResolver(store, &shortener.ResolverConfig{
		Hasher:       hasher,
		StoreTimeout: cfg.Store.Timeout,
		Logger:       logger,
	})
	handler := shortener.NewHandler(shortener.HandlerConfig{
		Service: resolver,
		Logger:  logger,
		BaseURL: cfg.Server.BaseURL,
	})

	a.Store = store
	a.Resolver = resolver
	a.Handler = handler
	a.Server = server.New(cfg, logger, handler, store)

	logger.Info("application initialized",
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	return a, nil
}

// Start starts the application server.
func (a *App) Start(ctx context.Context) error {
	if err := a.Server.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown releases store connections in reverse order of opening.
func (a *App) Shutdown() error {
	a.Logger.Info("shutting down application")

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil

	return errors.Join(errs...)
}

func (a *App) openStore(ctx context.Context) (shortener.Store, error) {
	cfg := a.Config

	switch cfg.Store.Driver {
	case config.DriverMemory:
		a.Logger.Warn("using in-memory store, records will not survive a restart")
		return shortener.NewMemoryStore(), nil

	case config.DriverPostgres:
		a.Logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		pool, err := db.Connect(ctx, db.PoolConfig{
			ConnectionString: cfg.Database.ConnectionString(),
			MaxConns:         cfg.Database.MaxConns,
			MinConns:         cfg.Database.MinConns,
			RetryAttempts:    connectAttempts,
			RetryInterval:    connectInterval,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error {
			pool.Close()
			a.Logger.Info("database connection closed")
			return nil
		})

		if err := db.Migrate(ctx, pool, a.Logger); err != nil {
			return nil, err
		}
		a.Logger.Info("database connection established")
		return shortener.NewPostgresStore(pool), nil

	case config.DriverRedis:
		client, err := db.OpenRedis(ctx, db.RedisConfig{
			URL:           cfg.Redis.URL,
			PoolSize:      cfg.Redis.PoolSize,
			RetryAttempts: connectAttempts,
			RetryInterval: connectInterval,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		a.Logger.Info("redis connection established", "prefix", cfg.Redis.Prefix)
		return shortener.NewRedisStore(client, cfg.Redis.Prefix), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// loadEnv loads .env file only in non-production environments.
func loadEnv() {
	env := os.Getenv("APP_ENV")
	if env == "development" || env == "test" {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("no .env file found.")
		}
	}
}

// setupLogger creates a structured logger based on the log level.
func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
