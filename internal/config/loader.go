package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// Load reads and parses the configuration file. YAML is the default
// format; .json and .json5 files go through the JSON5 parser. Environment
// variable references ($VAR, ${VAR}) are expanded before parsing.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data, path)
}

// Parse decodes configuration bytes, using the path hint to pick a
// format, then applies defaults and validates.
func Parse(data []byte, pathHint string) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	payload := []byte(expanded)
	format := strings.ToLower(filepath.Ext(pathHint))
	if format == ".json" || format == ".json5" {
		// JSON5 decodes into a raw map first; re-encoding as YAML routes
		// both formats through the same yaml-tagged struct fields.
		var raw map[string]any
		if err := json5.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		reencoded, err := yaml.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize config: %w", err)
		}
		payload = reencoded
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns a ready-to-use configuration with all defaults applied,
// for commands run without a config file.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}
