// handlers_serve.go implements the serve command: configuration loading,
// component wiring, the HTTP listener, scheduled maintenance, and graceful
// shutdown.
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

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/cortex/internal/config"
	"github.com/haasonsaas/cortex/internal/ingest"
	"github.com/haasonsaas/cortex/internal/learning"
	"github.com/haasonsaas/cortex/internal/memory"
	"github.com/haasonsaas/cortex/internal/observability"
	"github.com/haasonsaas/cortex/internal/pipeline"
)

// shutdownTimeout bounds graceful shutdown after SIGINT/SIGTERM.
const shutdownTimeout = 30 * time.Second

func runServe(ctx context.Context, configPath string, debug bool) error {
	// Adjust log level if debug mode is enabled.
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	slog.Info("starting Cortex",
		"version", version,
		"commit", commit,
		"config", configPath,
		"debug", debug,
	)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	logger := observability.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	metrics := observability.NewMetrics()
	tracer, tracerShutdown := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		EnableInsecure: cfg.Tracing.Insecure,
	})

	store, err := buildStore(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}

	engine, err := learning.NewEngine(cfg.Learning, learning.Options{
		Store:   store,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		store.Close()
		return fmt.Errorf("init learning engine: %w", err)
	}

	processor, err := pipeline.NewProcessor(cfg.Pipeline, pipeline.Options{
		Store:   store,
		Fetcher: ingest.NewMultiFetcher(cfg.Ingest),
		Learner: engine,
		Logger:  logger,
		Metrics: metrics,
		Tracer:  tracer,
	})
	if err != nil {
		store.Close()
		return fmt.Errorf("init pipeline: %w", err)
	}

	engine.Start()

	api := &apiServer{
		store:     store,
		engine:    engine,
		processor: processor,
		logger:    logger,
		metrics:   metrics,
		tracer:    tracer,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           api.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	scheduler := startMaintenance(ctx, cfg, store, metrics, logger)

	// Create a context that cancels on shutdown signals.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	logger.Info("Cortex started",
		"addr", addr,
		"storage", cfg.Storage.Path,
		"embedding_provider", store.ProviderName(),
		"maintenance", cfg.Maintenance.Enabled,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
	}
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	engine.Close()
	if err := store.Close(); err != nil {
		logger.Warn("store close failed", "error", err)
	}
	if err := tracerShutdown(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown failed", "error", err)
	}

	logger.Info("Cortex stopped")
	return nil
}

// startMaintenance schedules the periodic consolidate+prune pass. Returns
// nil when maintenance is disabled or the schedule does not parse.
func startMaintenance(ctx context.Context, cfg *config.Config, store *memory.Store, metrics *observability.Metrics, logger *slog.Logger) *cron.Cron {
	if !cfg.Maintenance.Enabled {
		return nil
	}

	scheduler := cron.New()
	_, err := scheduler.AddFunc(cfg.Maintenance.Schedule, func() {
		result, err := store.Consolidate(ctx)
		if err != nil {
			logger.Warn("scheduled consolidation failed", "error", err)
			return
		}
		pruned, err := store.PruneWeakRelationships(ctx, cfg.Maintenance.PruneMinStrength)
		if err != nil {
			logger.Warn("scheduled prune failed", "error", err)
			return
		}

		stats := store.Stats()
		metrics.UpdateStoreGauges(stats.NodeCount, stats.RelationshipCount, stats.CacheHitRate)
		logger.Info("maintenance pass complete",
			"merged", result.Merged,
			"relationships_created", result.RelationshipsCreated,
			"pruned", pruned,
			"nodes", stats.NodeCount,
		)
	})
	if err != nil {
		logger.Warn("invalid maintenance schedule, maintenance disabled",
			"schedule", cfg.Maintenance.Schedule, "error", err)
		return nil
	}

	scheduler.Start()
	return scheduler
}
