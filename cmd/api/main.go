package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"checklist/api/internal/app"
	"checklist/api/internal/broadcast"
	"checklist/api/internal/config"
	"checklist/api/internal/logging"
	"checklist/api/internal/relay"
	"checklist/api/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "checklist api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dataStore, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := broadcast.NewHub(logger)
	defer hub.Close()

	group, groupCtx := errgroup.WithContext(ctx)
	readyChecks := map[string]func(context.Context) error{}

	var notifier interface{ Notify(context.Context) } = hub
	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("fanning out updates through redis", zap.String("channel", cfg.RedisChannel))
		redisRelay, err := relay.NewRedisRelay(cfg.RedisURL, cfg.RedisChannel, hub, logger)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisRelay.Close()
		group.Go(func() error { return redisRelay.Run(groupCtx) })
		// Serve only once our own publishes come back to local observers.
		waitCtx, cancelWait := context.WithTimeout(groupCtx, 10*time.Second)
		err = redisRelay.WaitReady(waitCtx)
		cancelWait()
		if err != nil {
			stop()
			if groupErr := group.Wait(); groupErr != nil {
				return fmt.Errorf("redis relay failed: %w", groupErr)
			}
			return err
		}
		readyChecks["relay"] = redisRelay.Ping
		notifier = redisRelay
	} else {
		logger.Info("fanning out updates in process")
	}

	service := app.New(dataStore, notifier, logger)
	httpServer := app.NewHTTPServer(service, hub, app.HTTPConfig{
		CORSOrigin:   cfg.CORSOrigin,
		StaticDir:    cfg.StaticDir,
		PingInterval: cfg.PushPingInterval,
		WriteTimeout: cfg.PushWriteTimeout,
		ReadyChecks:  readyChecks,
	}, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	group.Go(func() error {
		logger.Info("checklist api listening", zap.String("addr", cfg.Addr), zap.String("store", cfg.Store))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		// Closing the hub ends every push connection, which Shutdown does not track.
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown error", zap.Error(err))
		}
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, func(), error) {
	if cfg.Store == "memory" {
		logger.Warn("using in-memory store; data is lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}

	dialect := store.DialectSQLite
	dsn := cfg.SQLitePath
	if cfg.Store == "postgres" {
		dialect = store.DialectPostgres
		dsn = cfg.DatabaseURL
	} else if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	db, err := store.Open(ctx, dialect, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	migrations, err := store.Migrations(dialect, cfg.MigrationsDir)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	if err := store.ApplyMigrations(ctx, db, dialect, migrations); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrations failed: %w", err)
	}
	return store.NewSQLStore(db, dialect), func() { _ = db.Close() }, nil
}
