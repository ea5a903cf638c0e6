// Package main provides the CLI entry point for the Cortex knowledge engine.
//
// Cortex stores knowledge as an embedded vector memory with a relationship
// graph, answers queries through a five-stage processing pipeline, and
// improves itself from interaction feedback via a continuous learning engine.
//
// # Basic Usage
//
// Start the server:
//
//	cortex serve --config cortex.yaml
//
// Ask a one-shot question against the configured store:
//
//	cortex query "how does leader election work"
//
// Store knowledge directly:
//
//	cortex store "Raft elects a leader per term" --tag consensus
//
// # Environment Variables
//
// Configuration values in the YAML/JSON5 config file are expanded from the
// environment, so secrets can be referenced as ${OPENAI_API_KEY} rather
// than written into the file.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"     // Semantic version (e.g., "v1.0.0")
	commit  = "none"    // Git commit SHA
	date    = "unknown" // Build timestamp
)

func main() {
	// Default to structured JSON logging; serve replaces this with the
	// configured logger once the config file is loaded.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// This is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cortex",
		Short: "Cortex - knowledge memory and learning engine",
		Long: `Cortex answers questions from an embedded knowledge store.

Stored content is embedded, linked into a relationship graph, and retrieved
by blended semantic relevance. Queries run through an extract, analyze,
synthesize, validate, learn pipeline, and feedback continuously tunes
response strategies.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		// SilenceUsage prevents printing usage on every error.
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildQueryCmd(),
		buildStoreCmd(),
		buildFeedbackCmd(),
		buildStatsCmd(),
		buildConsolidateCmd(),
		buildPruneCmd(),
	)

	return rootCmd
}
