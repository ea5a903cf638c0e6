// commands.go contains the cobra command definitions and their flag
// configurations. Each builder creates a command and wires it to its
// handler in handlers.go / handlers_serve.go.
package main

import (
	"github.com/spf13/cobra"
)

// defaultConfigPath is used when --config is not given. A missing file is
// fine for one-shot commands; they fall back to built-in defaults.
const defaultConfigPath = "cortex.yaml"

// buildServeCmd creates the "serve" command that starts the HTTP service.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Cortex HTTP service",
		Long: `Start the Cortex service with the configured store and pipeline.

The server exposes:
  POST /v1/query     - run a knowledge request through the pipeline
  POST /v1/store     - store content as a new memory node
  POST /v1/feedback  - submit feedback to the learning engine
  GET  /v1/stats     - store and learning statistics
  GET  /healthz      - liveness probe
  GET  /metrics      - Prometheus metrics

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  cortex serve

  # Start with custom config
  cortex serve --config /etc/cortex/production.yaml

  # Start with debug logging
  cortex serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to YAML/JSON5 configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

// buildQueryCmd creates the "query" command for one-shot questions.
func buildQueryCmd() *cobra.Command {
	var (
		configPath string
		threshold  float64
		files      []string
		urls       []string
	)

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Run one knowledge request through the pipeline",
		Args:  cobra.ExactArgs(1),
		Example: `  cortex query "how does log compaction work"
  cortex query "summarize the incident" --file notes.txt --url https://example.com/postmortem`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), configPath, args[0], threshold, files, urls)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to YAML/JSON5 configuration file")
	cmd.Flags().Float64Var(&threshold, "threshold", 0,
		"Minimum acceptable confidence (responses below it are flagged, not withheld)")
	cmd.Flags().StringSliceVar(&files, "file", nil,
		"Document source to merge into extraction (repeatable)")
	cmd.Flags().StringSliceVar(&urls, "url", nil,
		"Web source to merge into extraction (repeatable)")

	return cmd
}

// buildStoreCmd creates the "store" command for writing knowledge directly.
func buildStoreCmd() *cobra.Command {
	var (
		configPath string
		tags       []string
		source     string
	)

	cmd := &cobra.Command{
		Use:   "store <content>",
		Short: "Store content as a new memory node",
		Args:  cobra.ExactArgs(1),
		Example: `  cortex store "Raft elects one leader per term" --tag consensus
  cortex store "refunds take 5-7 business days" --source support-kb`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStore(cmd.Context(), configPath, args[0], tags, source)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to YAML/JSON5 configuration file")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag for the new node (repeatable)")
	cmd.Flags().StringVar(&source, "source", "cli", "Source label recorded in node metadata")

	return cmd
}

// buildFeedbackCmd creates the "feedback" command for one-shot feedback.
func buildFeedbackCmd() *cobra.Command {
	var (
		configPath string
		score      float64
		helpful    bool
		notHelpful bool
		correction string
	)

	cmd := &cobra.Command{
		Use:   "feedback <query>",
		Short: "Submit feedback about an earlier response",
		Args:  cobra.ExactArgs(1),
		Example: `  cortex feedback "how long do refunds take" --helpful
  cortex feedback "how long do refunds take" --correction "refunds take 14 days"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var h *bool
			switch {
			case helpful:
				v := true
				h = &v
			case notHelpful:
				v := false
				h = &v
			}
			return runFeedback(cmd.Context(), configPath, args[0], score, h, correction)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to YAML/JSON5 configuration file")
	cmd.Flags().Float64Var(&score, "score", 0, "Feedback polarity in -1..1")
	cmd.Flags().BoolVar(&helpful, "helpful", false, "Mark the response helpful")
	cmd.Flags().BoolVar(&notHelpful, "not-helpful", false, "Mark the response unhelpful")
	cmd.Flags().StringVar(&correction, "correction", "", "Corrected answer to store as knowledge")

	return cmd
}

// buildStatsCmd creates the "stats" command.
func buildStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print store statistics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to YAML/JSON5 configuration file")

	return cmd
}

// buildConsolidateCmd creates the "consolidate" command.
func buildConsolidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Merge near-duplicate nodes and link semantic neighbors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsolidate(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to YAML/JSON5 configuration file")

	return cmd
}

// buildPruneCmd creates the "prune" command.
func buildPruneCmd() *cobra.Command {
	var (
		configPath  string
		minStrength float64
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove relationships weaker than the configured threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(cmd.Context(), configPath, minStrength)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to YAML/JSON5 configuration file")
	cmd.Flags().Float64Var(&minStrength, "min-strength", 0,
		"Prune threshold override (0 uses the configured value)")

	return cmd
}
