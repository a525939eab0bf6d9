// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/relens-ai/relens/services/relens/telemetry"
)

// Config is the relens CLI configuration, loaded from ~/.relens.yaml or
// the --config path. Every field has a working default so a missing file
// is not an error.
type Config struct {
	// Project is the project scope for all records.
	Project string `yaml:"project"`

	// Repo is the git repository path.
	Repo string `yaml:"repo"`

	// StoreDir is the BadgerDB directory for envelopes, snapshots, and
	// branches.
	StoreDir string `yaml:"store_dir"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`

	// LogDir enables file logging when set.
	LogDir string `yaml:"log_dir"`

	Weaviate struct {
		// URL of the Weaviate instance. Empty means the in-memory
		// similarity index.
		URL string `yaml:"url"`
	} `yaml:"weaviate"`

	Embedder struct {
		// Backend is "openai" or "hash".
		Backend string `yaml:"backend"`

		// Model overrides EMBEDDING_MODEL for the openai backend.
		Model string `yaml:"model"`

		// Endpoint overrides EMBEDDING_BASE_URL for the openai backend.
		Endpoint string `yaml:"endpoint"`
	} `yaml:"embedder"`

	Telemetry telemetry.Config `yaml:"telemetry"`
}

// defaultConfig returns the zero-setup configuration: current directory
// repo, local store, in-memory index, hash embedder.
func defaultConfig() Config {
	var cfg Config
	cfg.Project = ""
	cfg.Repo = "."
	cfg.StoreDir = "~/.relens/store"
	cfg.LogLevel = "info"
	cfg.Embedder.Backend = "hash"
	cfg.Telemetry = telemetry.DefaultConfig()
	cfg.Telemetry.TraceExporter = "none"
	cfg.Telemetry.MetricExporter = "none"
	return cfg
}

// defaultConfigPath is ~/.relens.yaml, or "" when home is unknown.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".relens.yaml")
}

// loadConfig reads the YAML config at path, layered over defaults. A
// missing file at the default path is fine; an explicit --config path
// that does not exist is an error.
func loadConfig(path string, explicit bool) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// expandHome expands a leading ~ against the user's home directory.
func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
