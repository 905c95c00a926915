// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	zombie "github.com/AleutianAI/ZombieGraph/services/zombie"
	"github.com/AleutianAI/ZombieGraph/services/zombie/config"
	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
)

var buildCmd = &cobra.Command{
	Use:   "build [fact files...]",
	Short: "Build the graph from fact files and write a snapshot",
	Long: `Reads one or more JSON fact files (each holding a FileFacts object
or an array of them), merges them into the fact cache, rebuilds the
dependency graph, and writes a generation snapshot.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBuildCommand,
}

func runBuildCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigWithOverrides()
	if err != nil {
		return err
	}

	var files []*fact.FileFacts
	for _, path := range args {
		batch, err := readFactFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		files = append(files, batch...)
	}

	svc, err := zombie.NewService(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer svc.Close()

	report, err := svc.Build(cmd.Context(), files)
	if err != nil {
		return err
	}
	if cfg.Store.SnapshotPath != "" {
		if err := svc.WriteSnapshot(); err != nil {
			return err
		}
	}

	return printJSON(report)
}

// readFactFile parses a JSON fact file holding either one FileFacts
// object or an array of them.
func readFactFile(path string) ([]*fact.FileFacts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var many []*fact.FileFacts
	if err := json.Unmarshal(data, &many); err == nil {
		return many, nil
	}
	var one fact.FileFacts
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("neither a FileFacts object nor an array: %w", err)
	}
	return []*fact.FileFacts{&one}, nil
}

func loadConfigWithOverrides() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if snapshotPath != "" {
		cfg.Store.SnapshotPath = snapshotPath
	}
	return cfg, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
