// Package config loads and validates the cortex configuration from YAML
// or JSON5 files, expanding environment variable references before
// parsing.
package config

import (
	"fmt"

	"github.com/haasonsaas/cortex/internal/ingest"
	"github.com/haasonsaas/cortex/internal/learning"
	"github.com/haasonsaas/cortex/internal/memory"
	"github.com/haasonsaas/cortex/internal/memory/embeddings"
	"github.com/haasonsaas/cortex/internal/observability"
	"github.com/haasonsaas/cortex/internal/pipeline"
)

// Config is the main configuration structure for cortex.
type Config struct {
	Server      ServerConfig            `yaml:"server"`
	Storage     StorageConfig           `yaml:"storage"`
	Embeddings  embeddings.Config       `yaml:"embeddings"`
	Memory      memory.Config           `yaml:"memory"`
	Ingest      ingest.Config           `yaml:"ingest"`
	Pipeline    pipeline.Config         `yaml:"pipeline"`
	Learning    learning.Config         `yaml:"learning"`
	Maintenance MaintenanceConfig       `yaml:"maintenance"`
	Logging     observability.LogConfig `yaml:"logging"`
	Tracing     TracingConfig           `yaml:"tracing"`
}

// ServerConfig configures the HTTP API surface.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig configures durable persistence. An empty path keeps
// everything in process memory (nothing survives a restart).
type StorageConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path"`
}

// MaintenanceConfig schedules periodic store upkeep.
type MaintenanceConfig struct {
	// Enabled turns the cron schedule on in serve mode.
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression for the consolidate+prune pass.
	Schedule string `yaml:"schedule"`

	// PruneMinStrength is the threshold below which edges are pruned.
	PruneMinStrength float64 `yaml:"prune_min_strength"`
}

// TracingConfig configures the OTLP trace exporter. An empty endpoint
// disables tracing.
type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	ServiceName  string  `yaml:"service_name"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// ApplyDefaults fills zero fields across all sections.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Embeddings.Provider == "" {
		c.Embeddings.Provider = "fallback"
	}
	if c.Maintenance.Schedule == "" {
		c.Maintenance.Schedule = "@every 1h"
	}
	if c.Maintenance.PruneMinStrength == 0 {
		c.Maintenance.PruneMinStrength = 0.1
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "cortex"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	c.Memory.ApplyDefaults()
	c.Ingest.ApplyDefaults()
	c.Pipeline.ApplyDefaults()
	c.Learning.ApplyDefaults()
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Embeddings.Provider {
	case "fallback", "openai":
	default:
		return fmt.Errorf("embeddings.provider %q is not supported", c.Embeddings.Provider)
	}
	if c.Embeddings.Provider == "openai" && c.Embeddings.APIKey == "" {
		return fmt.Errorf("embeddings.api_key is required for the openai provider")
	}
	if c.Memory.LinkThreshold < 0 || c.Memory.LinkThreshold > 1 {
		return fmt.Errorf("memory.link_threshold must be in [0,1]")
	}
	if c.Memory.MergeThreshold < 0 || c.Memory.MergeThreshold > 1 {
		return fmt.Errorf("memory.merge_threshold must be in [0,1]")
	}
	if c.Learning.DriftThreshold < 0 || c.Learning.DriftThreshold > 1 {
		return fmt.Errorf("learning.drift_threshold must be in [0,1]")
	}
	if c.Maintenance.PruneMinStrength < 0 || c.Maintenance.PruneMinStrength > 1 {
		return fmt.Errorf("maintenance.prune_min_strength must be in [0,1]")
	}
	return nil
}
