// handlers.go contains the one-shot command handlers and the shared
// runtime assembly used by every command.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/haasonsaas/cortex/internal/config"
	"github.com/haasonsaas/cortex/internal/ingest"
	"github.com/haasonsaas/cortex/internal/learning"
	"github.com/haasonsaas/cortex/internal/memory"
	"github.com/haasonsaas/cortex/internal/memory/backend"
	sqlitebackend "github.com/haasonsaas/cortex/internal/memory/backend/sqlite"
	"github.com/haasonsaas/cortex/internal/memory/embeddings"
	"github.com/haasonsaas/cortex/internal/memory/embeddings/openai"
	"github.com/haasonsaas/cortex/internal/observability"
	"github.com/haasonsaas/cortex/internal/pipeline"
	"github.com/haasonsaas/cortex/pkg/models"
)

// loadConfig loads the config file. A missing file at the default path is
// not an error for one-shot commands; built-in defaults apply.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil && path == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

// buildStore assembles the memory store from config: SQLite when a storage
// path is set, the external embedding provider when one is configured.
// metrics is nil for one-shot commands.
func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*memory.Store, error) {
	var be backend.Backend
	if cfg.Storage.Path != "" {
		sb, err := sqlitebackend.New(sqlitebackend.Config{Path: cfg.Storage.Path})
		if err != nil {
			return nil, fmt.Errorf("open sqlite backend: %w", err)
		}
		be = sb
	}

	var provider embeddings.Provider
	if cfg.Embeddings.Provider == "openai" {
		p, err := openai.New(openai.Config{
			APIKey:  cfg.Embeddings.APIKey,
			BaseURL: cfg.Embeddings.BaseURL,
			Model:   cfg.Embeddings.Model,
		})
		if err != nil {
			if be != nil {
				be.Close()
			}
			return nil, fmt.Errorf("init embedding provider: %w", err)
		}
		provider = p
	}

	store, err := memory.New(ctx, cfg.Memory, memory.Options{
		Provider: provider,
		Backend:  be,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		if be != nil {
			be.Close()
		}
		return nil, fmt.Errorf("init memory store: %w", err)
	}
	return store, nil
}

// runtime bundles the components a command needs. One-shot commands build
// it without metrics or tracing; serve wires those in itself.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *memory.Store
	engine    *learning.Engine
	processor *pipeline.Processor
}

func newRuntime(ctx context.Context, configPath string) (*runtime, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging)

	store, err := buildStore(ctx, cfg, logger, nil)
	if err != nil {
		return nil, err
	}

	engine, err := learning.NewEngine(cfg.Learning, learning.Options{
		Store:  store,
		Logger: logger,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init learning engine: %w", err)
	}

	processor, err := pipeline.NewProcessor(cfg.Pipeline, pipeline.Options{
		Store:   store,
		Fetcher: ingest.NewMultiFetcher(cfg.Ingest),
		Learner: engine,
		Logger:  logger,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init pipeline: %w", err)
	}

	// The worker runs for the whole command; close drains it, so one-shot
	// feedback and query interactions are absorbed before the store closes.
	engine.Start()

	return &runtime{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		engine:    engine,
		processor: processor,
	}, nil
}

func (r *runtime) close() {
	r.engine.Close()
	if err := r.store.Close(); err != nil {
		r.logger.Warn("store close failed", "error", err)
	}
}

// printJSON writes v to stdout with indentation for CLI readability.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runQuery(ctx context.Context, configPath, query string, threshold float64, files, urls []string) error {
	rt, err := newRuntime(ctx, configPath)
	if err != nil {
		return err
	}
	defer rt.close()

	req := &models.KnowledgeRequest{
		Query:               query,
		ConfidenceThreshold: threshold,
	}
	for _, f := range files {
		req.Sources = append(req.Sources, models.Source{Type: models.SourceDocument, Location: f})
	}
	for _, u := range urls {
		req.Sources = append(req.Sources, models.Source{Type: models.SourceWeb, Location: u})
	}

	resp := rt.processor.Process(ctx, req)
	return printJSON(resp)
}

func runStore(ctx context.Context, configPath, content string, tags []string, source string) error {
	rt, err := newRuntime(ctx, configPath)
	if err != nil {
		return err
	}
	defer rt.close()

	id, err := rt.store.Store(ctx, content, map[string]any{"source": source}, tags)
	if err != nil {
		return fmt.Errorf("store content: %w", err)
	}
	return printJSON(map[string]string{"id": id})
}

func runFeedback(ctx context.Context, configPath, query string, score float64, helpful *bool, correction string) error {
	rt, err := newRuntime(ctx, configPath)
	if err != nil {
		return err
	}
	defer rt.close()

	result, err := rt.engine.SubmitFeedback(ctx, &models.Feedback{
		Query:      query,
		Score:      score,
		Helpful:    helpful,
		Correction: correction,
	})
	if err != nil {
		return fmt.Errorf("submit feedback: %w", err)
	}
	return printJSON(result)
}

func runStats(ctx context.Context, configPath string) error {
	rt, err := newRuntime(ctx, configPath)
	if err != nil {
		return err
	}
	defer rt.close()

	return printJSON(rt.store.Stats())
}

func runConsolidate(ctx context.Context, configPath string) error {
	rt, err := newRuntime(ctx, configPath)
	if err != nil {
		return err
	}
	defer rt.close()

	result, err := rt.store.Consolidate(ctx)
	if err != nil {
		return fmt.Errorf("consolidate: %w", err)
	}
	return printJSON(result)
}

func runPrune(ctx context.Context, configPath string, minStrength float64) error {
	rt, err := newRuntime(ctx, configPath)
	if err != nil {
		return err
	}
	defer rt.close()

	if minStrength == 0 {
		minStrength = rt.cfg.Maintenance.PruneMinStrength
	}
	pruned, err := rt.store.PruneWeakRelationships(ctx, minStrength)
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}
	return printJSON(map[string]int{"pruned": pruned})
}
