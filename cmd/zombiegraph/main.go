// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command zombiegraph analyzes cross-repository dependency graphs for
// unreachable code.
//
// Usage:
//
//	zombiegraph build facts/*.json        # one-shot build + snapshot
//	zombiegraph analyze                   # summarize a snapshot
//	zombiegraph query zombies dead_code   # list dead code
//	zombiegraph serve                     # run the HTTP API
//
// Example requests against a running server:
//
//	curl http://localhost:8087/v1/zombie/health
//	curl -X POST http://localhost:8087/v1/zombie/build \
//	  -H "Content-Type: application/json" \
//	  -d @facts-batch.json
//	curl "http://localhost:8087/v1/zombie/zombies?class=dead_code"
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	snapshotPath string
)

var rootCmd = &cobra.Command{
	Use:   "zombiegraph",
	Short: "Cross-repository unreachable-code analysis",
	Long: `zombiegraph builds a dependency graph from externally produced
per-file facts, infers semantic links (ORM mappings, stored procedures,
scheduler entries, SQL table access), and classifies every symbol as
live, dead code, orphaned, or unreachable.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML configuration")
	rootCmd.PersistentFlags().StringVar(&snapshotPath, "snapshot", "", "Snapshot path override")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(serveCmd)
}
