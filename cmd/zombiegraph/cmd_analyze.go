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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ZombieGraph/services/zombie/query"
	"github.com/AleutianAI/ZombieGraph/services/zombie/store"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Summarize a generation snapshot",
	Long: `Loads a snapshot and prints the liveness summary: how many symbols
are live, dead code, orphaned, unreachable, and excluded, plus graph
shape statistics.`,
	Args: cobra.NoArgs,
	RunE: runAnalyzeCommand,
}

func runAnalyzeCommand(cmd *cobra.Command, args []string) error {
	gen, err := loadSnapshotGeneration()
	if err != nil {
		return err
	}

	stats := gen.Graph.Stats()
	fmt.Printf("Generation %s (created %s)\n", gen.ID, gen.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  symbols: %d  edges: %d  roots: %d\n",
		stats.NumNodes, stats.NumEdges, len(gen.Reach.Roots))
	fmt.Printf("  live: %d\n", gen.Reach.Summary.Live)
	fmt.Printf("  dead_code: %d\n", gen.Reach.Summary.DeadCode)
	fmt.Printf("  orphaned: %d\n", gen.Reach.Summary.Orphaned)
	fmt.Printf("  unreachable: %d\n", gen.Reach.Summary.Unreachable)
	if gen.Reach.Summary.Excluded > 0 {
		fmt.Printf("  excluded: %d\n", gen.Reach.Summary.Excluded)
	}
	for name, count := range stats.EdgesByType {
		fmt.Printf("  edges[%s]: %d\n", name, count)
	}
	return nil
}

// loadSnapshotGeneration resolves the snapshot path from flags or
// config and loads it.
func loadSnapshotGeneration() (*query.Generation, error) {
	cfg, err := loadConfigWithOverrides()
	if err != nil {
		return nil, err
	}
	if cfg.Store.SnapshotPath == "" {
		return nil, fmt.Errorf("no snapshot path: pass --snapshot or set store.snapshot_path")
	}
	return store.LoadSnapshot(cfg.Store.SnapshotPath)
}
