// TruthSource offline agent. Runs next to an edge deployment (field
// sales laptop, warehouse workstation), keeps a durable local queue of
// record operations while the backend is unreachable, and replays them
// in order once the connection monitor sees the link come back.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/truthsource/backend/internal/infrastructure/config"
	"github.com/truthsource/backend/internal/infrastructure/logger"
	"github.com/truthsource/backend/internal/offline"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting TruthSource offline agent",
		zap.String("store_path", cfg.Agent.StorePath),
		zap.String("backend", cfg.Agent.APIBaseURL))

	// Durable queue storage. SyncWrites stays on so queued operations
	// survive a crash before the link comes back.
	store, err := offline.OpenBadgerStore(offline.DefaultBadgerStoreConfig(cfg.Agent.StorePath), log)
	if err != nil {
		log.Fatal("Failed to open offline store", zap.Error(err))
	}

	// Replay target and probe endpoint, one client for both.
	records, err := offline.NewHTTPRecordStore(offline.HTTPRecordStoreConfig{
		BaseURL: cfg.Agent.APIBaseURL,
		Token:   cfg.Agent.APIToken,
	})
	if err != nil {
		log.Fatal("Failed to create record store", zap.Error(err))
	}

	monitor, err := offline.NewConnectionMonitor(offline.MonitorConfig{
		ProbeInterval: cfg.Agent.ProbeInterval,
		ProbeTimeout:  cfg.Agent.ProbeTimeout,
	}, records, log)
	if err != nil {
		log.Fatal("Failed to create connection monitor", zap.Error(err))
	}

	// Construction subscribes the queue to the monitor, so the first
	// successful probe flushes whatever a previous run left behind.
	queue := offline.NewQueue(store, records, monitor, offline.QueueOptions{
		MaxRetries: cfg.Agent.MaxRetries,
		Logger:     log,
	})

	if err := monitor.Start(context.Background()); err != nil {
		log.Fatal("Failed to start connection monitor", zap.Error(err))
	}

	log.Info("Offline agent started",
		zap.Duration("probe_interval", cfg.Agent.ProbeInterval),
		zap.Int("max_retries", cfg.Agent.MaxRetries))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down offline agent...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop probing first so no flush starts mid-shutdown, then wait for
	// any in-flight flush, then release the store.
	if err := monitor.Stop(shutdownCtx); err != nil {
		log.Error("Connection monitor shutdown error", zap.Error(err))
	}
	if err := queue.Close(); err != nil {
		log.Error("Queue close error", zap.Error(err))
	}
	if err := store.Close(); err != nil {
		log.Error("Offline store close error", zap.Error(err))
	}

	log.Info("Offline agent exited gracefully")
}
