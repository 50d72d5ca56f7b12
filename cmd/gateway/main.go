package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/duonganhthu43/ai-gateway/internal/config"
	"github.com/duonganhthu43/ai-gateway/internal/provider"
	"github.com/duonganhthu43/ai-gateway/internal/server"
	"github.com/duonganhthu43/ai-gateway/internal/storage"
	"github.com/duonganhthu43/ai-gateway/internal/storage/memory"
	"github.com/duonganhthu43/ai-gateway/internal/storage/sqlite"
	"github.com/duonganhthu43/ai-gateway/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdownTracer, err := telemetry.InitTracer("ai-gateway", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open thread store: %v", err)
	}
	if store != nil {
		defer store.Close()
	}

	registry, err := provider.NewRegistry(cfg.Providers, cfg.Routing)
	if err != nil {
		log.Fatalf("Failed to configure providers: %v", err)
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithModelLister(registry),
	}
	if store != nil {
		opts = append(opts, server.WithThreadStore(store))
	}
	srv := server.New(cfg.Server.Port, registry, opts...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("gateway started",
		slog.Int("port", cfg.Server.Port),
		slog.String("storage", cfg.Storage.Type),
		slog.Int("providers", len(cfg.Providers)),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
		return
	case <-sigChan:
	}

	logger.Info("shutdown signal received, stopping gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("gateway shutdown complete")
}

// openStore builds the configured thread store; "none" disables
// persistence entirely.
func openStore(cfg *config.Config) (storage.ThreadStore, error) {
	switch cfg.Storage.Type {
	case "sqlite":
		path := cfg.Storage.SQLite.Path
		if path == "" {
			path = "./data/gateway.db"
		}
		return sqlite.New(path)
	case "memory", "":
		return memory.New(), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}
