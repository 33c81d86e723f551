// Package main is the entry point for the storefront state server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vyrodovalexey/storefront-state/internal/auth"
	"github.com/vyrodovalexey/storefront-state/internal/config"
	"github.com/vyrodovalexey/storefront-state/internal/events"
	"github.com/vyrodovalexey/storefront-state/internal/remote"
	"github.com/vyrodovalexey/storefront-state/internal/server"
	"github.com/vyrodovalexey/storefront-state/internal/session"
	"github.com/vyrodovalexey/storefront-state/internal/shopper"
	"github.com/vyrodovalexey/storefront-state/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	// A missing .env is normal outside local development.
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		basicLogger, _ := zap.NewProduction()
		basicLogger.Error("failed to load configuration", zap.Error(err))
		return 1
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		basicLogger, _ := zap.NewProduction()
		basicLogger.Error("failed to initialize logger", zap.Error(err))
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()

	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		logger.Warn("failed to read .env file", zap.Error(envErr))
	}

	logger.Info("configuration loaded",
		zap.Int("server_port", cfg.ServerPort),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("shutdown_timeout", cfg.ShutdownTimeout),
		zap.Bool("metrics_enabled", cfg.MetricsEnabled),
		zap.String("auth_mode", cfg.AuthMode),
		zap.String("remote_base_url", cfg.RemoteBaseURL),
		zap.String("snapshot_backend", cfg.SnapshotBackend),
		zap.Bool("cart_remote_sync", cfg.CartRemoteSync),
	)

	authenticator, err := auth.New(auth.Settings{
		Mode:       cfg.AuthMode,
		BasicUsers: cfg.BasicAuthUsers,
		APIKeys:    cfg.APIKeys,
	})
	if err != nil {
		logger.Error("failed to create authenticator", zap.Error(err))
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshots, closeSnapshots, err := openSnapshots(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open snapshot store", zap.Error(err))
		return 1
	}
	defer func() {
		if err := closeSnapshots(); err != nil {
			logger.Warn("failed to close snapshot store", zap.Error(err))
		}
	}()

	client, err := remote.NewClient(cfg.RemoteBaseURL, logger,
		remote.WithHTTPClient(&http.Client{Timeout: cfg.RemoteTimeout}),
	)
	if err != nil {
		logger.Error("failed to create remote client", zap.Error(err))
		return 1
	}

	hub := events.NewHub()
	defer hub.Close()

	registry := shopper.NewRegistry(snapshots, client, hub, shopper.Config{
		TaxRate:        cfg.TaxRate,
		CartRemoteSync: cfg.CartRemoteSync,
		IdleTTL:        cfg.ShopperIdleTTL,
		TokenSource:    session.ContextTokenSource,
	}, logger)

	watcher, _ := snapshots.(store.Watcher)
	go func() {
		if err := registry.Run(ctx, watcher); err != nil {
			logger.Error("shopper registry stopped", zap.Error(err))
		}
	}()

	srv := server.New(cfg, logger, server.Deps{
		Shoppers:      registry,
		Catalog:       client,
		Events:        hub,
		Authenticator: authenticator,
		Ready:         readinessCheck(snapshots),
	})

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", zap.Error(err))
		return 1
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			return 1
		}
		cancel()
	}

	logger.Info("server stopped")
	return 0
}

// openSnapshots opens the configured snapshot backend and returns a function
// releasing it.
func openSnapshots(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.SnapshotBackend {
	case config.BackendMemory, "":
		logger.Info("snapshot backend: memory")
		return store.NewMemoryStore(), noop, nil
	case config.BackendFile:
		logger.Info("snapshot backend: file", zap.String("dir", cfg.SnapshotDir))
		fs, err := store.NewFileStore(cfg.SnapshotDir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening file snapshots: %w", err)
		}
		return fs, noop, nil
	case config.BackendRedis:
		logger.Info("snapshot backend: redis", zap.String("addr", cfg.RedisAddr))
		rs, err := store.NewRedisStore(ctx, store.RedisOptions{
			URL:      cfg.RedisURL,
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("opening redis snapshots: %w", err)
		}
		return rs, rs.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown snapshot backend: %s", cfg.SnapshotBackend)
	}
}

// readinessCheck pings backends that support it.
func readinessCheck(snapshots store.Store) func(context.Context) error {
	pinger, ok := snapshots.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	return pinger.Ping
}

// initLogger initializes a zap logger with the specified log level.
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	zapConfig := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapConfig.Build()
}
