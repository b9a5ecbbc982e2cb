package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/vigil/internal/api"
	"github.com/Harshitk-cp/vigil/internal/buildconfig"
	"github.com/Harshitk-cp/vigil/internal/config"
	"github.com/Harshitk-cp/vigil/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	_ = config.Load()

	logger, err := config.NewLogger()
	if err != nil {
		logger = zap.Must(zap.NewProduction())
		logger.Warn("invalid log level, using info", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	var pool *pgxpool.Pool
	if dbURL := config.DatabaseURL(); dbURL != "" {
		pool, err = pgxpool.New(ctx, dbURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Fatal("failed to ping database", zap.Error(err))
		}
		logger.Info("connected to database")
	} else {
		logger.Warn("DATABASE_URL not set, policies and strategic memory are kept in memory")
	}

	runs, err := store.NewRunStore(config.RunStateDir(), logger)
	if err != nil {
		logger.Fatal("failed to open run store", zap.Error(err))
	}
	defer func() { _ = runs.Close() }()

	app, err := api.NewApp(api.Options{DB: pool, Runs: runs}, logger)
	if err != nil {
		logger.Fatal("failed to build app", zap.Error(err))
	}

	policy, err := app.Policies.Load(ctx)
	if err != nil {
		logger.Fatal("failed to load decision policy", zap.Error(err))
	}
	logger.Info("decision policy loaded", zap.Int("version", policy.Version))

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if app.FileKnowledge != nil {
		if err := app.FileKnowledge.Watch(watchCtx); err != nil {
			logger.Warn("knowledge hot reload disabled", zap.Error(err))
		}
	}

	// Start background services
	app.Tuner.Start()
	app.Retention.Start()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr), zap.String("version", buildconfig.Version()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// Stop background services
	stopWatch()
	app.Tuner.Stop()
	app.Retention.Stop()
	app.Investigator.Wait()

	logger.Info("server stopped")
}
