package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/convergelabs/beliefd/internal/api"
	"github.com/convergelabs/beliefd/internal/config"
	"github.com/convergelabs/beliefd/internal/store"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	if err := config.Load(); err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx := context.Background()

	kv, err := openStore(ctx, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer func() { _ = kv.Close() }()

	app := api.NewApp(kv, logger, api.Options{})

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:    addr,
		Handler: app.Router,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func openStore(ctx context.Context, logger *zap.Logger) (store.KV, error) {
	backend := config.StoreBackend()

	switch backend {
	case "postgres":
		dbURL := config.DatabaseURL()
		if dbURL == "" {
			logger.Fatal("DATABASE_URL is required for the postgres backend")
		}
		kv, err := store.NewPostgresKV(ctx, dbURL)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to database")
		return kv, nil
	case "memory":
		logger.Info("using in-memory store")
		return store.NewInMemoryKV(), nil
	default:
		path := config.BadgerPath()
		kv, err := store.NewBadgerKV(path)
		if err != nil {
			return nil, err
		}
		logger.Info("opened badger store", zap.String("path", path))
		return kv, nil
	}
}
