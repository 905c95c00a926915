// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the zombie analysis service configuration from
// YAML, with defaults suitable for a single-node deployment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Semantic SemanticConfig `yaml:"semantic"`
	Roots    RootsConfig    `yaml:"roots"`
	Reach    ReachConfig    `yaml:"reach"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	// ListenAddr is the bind address, e.g. ":8087".
	ListenAddr string `yaml:"listen_addr"`

	// MetricsPath serves Prometheus metrics. Empty disables it.
	MetricsPath string `yaml:"metrics_path"`

	// ShutdownGrace bounds graceful shutdown.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// StoreConfig controls durable state.
type StoreConfig struct {
	// DataDir holds the fact cache database.
	DataDir string `yaml:"data_dir"`

	// SnapshotPath is where generation snapshots are written. Empty
	// disables snapshotting.
	SnapshotPath string `yaml:"snapshot_path"`

	// SyncWrites forces fsync on every cache write.
	SyncWrites bool `yaml:"sync_writes"`

	// GCInterval is the value log GC period. Zero disables GC.
	GCInterval time.Duration `yaml:"gc_interval"`
}

// WatchTarget names one repository checkout to watch for staleness.
type WatchTarget struct {
	RepoID string `yaml:"repo_id"`
	Root   string `yaml:"root"`
}

// IngestConfig controls the ingestion pipeline.
type IngestConfig struct {
	// Workers bounds the concurrent collect phase.
	Workers int `yaml:"workers"`

	// RefreshInterval is how often the refresh loop drains the dirty
	// tracker.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// Watch lists repository checkouts to track with fsnotify.
	Watch []WatchTarget `yaml:"watch"`
}

// SemanticConfig toggles individual semantic detectors.
type SemanticConfig struct {
	ORM              bool `yaml:"orm"`
	StoredProcedures bool `yaml:"stored_procedures"`
	Scheduler        bool `yaml:"scheduler"`
	SQLAccess        bool `yaml:"sql_access"`
}

// RootsConfig mirrors the root designation rules.
type RootsConfig struct {
	IDs                  []string `yaml:"ids"`
	NamePatterns         []string `yaml:"name_patterns"`
	Annotations          []string `yaml:"annotations"`
	TreatExportedAsRoots bool     `yaml:"treat_exported_as_roots"`
	DisableBuiltins      bool     `yaml:"disable_builtins"`
	IncludeTests         bool     `yaml:"include_tests"`
}

// ReachConfig bounds reachability analysis.
type ReachConfig struct {
	// MaxSteps caps edge expansions per run. Zero means unbounded.
	MaxSteps int `yaml:"max_steps"`

	// Timeout caps wall-clock time per run. Zero means unbounded.
	Timeout time.Duration `yaml:"timeout"`

	// MinConfidence drops edges below the threshold during traversal.
	MinConfidence float64 `yaml:"min_confidence"`

	// Workers bounds parallel frontier expansion.
	Workers int `yaml:"workers"`
}

// Default returns the single-node defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:    ":8087",
			MetricsPath:   "/metrics",
			ShutdownGrace: 10 * time.Second,
		},
		Store: StoreConfig{
			DataDir:      "data/facts",
			SnapshotPath: "data/graph.snapshot",
			SyncWrites:   true,
			GCInterval:   5 * time.Minute,
		},
		Ingest: IngestConfig{
			Workers:         8,
			RefreshInterval: 30 * time.Second,
		},
		Semantic: SemanticConfig{
			ORM:              true,
			StoredProcedures: true,
			Scheduler:        true,
			SQLAccess:        true,
		},
		Reach: ReachConfig{},
	}
}

// Load reads and validates a configuration file. A missing file is not
// an error: defaults are returned so `zombiegraph serve` works out of
// the box.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr must not be empty")
	}
	if c.Ingest.Workers < 0 {
		return fmt.Errorf("ingest.workers must not be negative")
	}
	if c.Reach.MinConfidence < 0 || c.Reach.MinConfidence > 1 {
		return fmt.Errorf("reach.min_confidence must be within [0,1]")
	}
	for i, w := range c.Ingest.Watch {
		if w.RepoID == "" || w.Root == "" {
			return fmt.Errorf("ingest.watch[%d]: repo_id and root are required", i)
		}
	}
	return nil
}

// WriteDefault creates a default config file at path, creating parent
// directories as needed. Used on first run.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
