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
	"github.com/AleutianAI/ZombieGraph/services/zombie/reach"
)

var (
	queryLimit int
	queryDepth int
)

var queryCmd = &cobra.Command{
	Use:   "query <deps|dependents|path|zombies> <symbol-id|class>",
	Short: "Query a generation snapshot",
	Long: `Runs a read-only query against a snapshot:

  deps <id>        transitive dependencies of a symbol
  dependents <id>  transitive dependents of a symbol
  path <id>        shortest path to the nearest root
  zombies <class>  symbols in a liveness class (live, dead_code,
                   orphaned, unreachable, excluded)`,
	Args: cobra.ExactArgs(2),
	RunE: runQueryCommand,
}

func init() {
	queryCmd.Flags().IntVar(&queryLimit, "limit", 0, "Maximum results")
	queryCmd.Flags().IntVar(&queryDepth, "depth", 0, "Maximum traversal depth")
}

func runQueryCommand(cmd *cobra.Command, args []string) error {
	gen, err := loadSnapshotGeneration()
	if err != nil {
		return err
	}
	holder := query.NewHolder()
	holder.Swap(gen)
	engine := query.NewEngine(holder)

	var opts []query.Option
	if queryLimit > 0 {
		opts = append(opts, query.WithLimit(queryLimit))
	}
	if queryDepth > 0 {
		opts = append(opts, query.WithMaxDepth(queryDepth))
	}

	ctx := cmd.Context()
	op, arg := args[0], args[1]
	switch op {
	case "deps":
		result, err := engine.Dependencies(ctx, arg, opts...)
		if err != nil {
			return err
		}
		return printJSON(result)
	case "dependents":
		result, err := engine.Dependents(ctx, arg, opts...)
		if err != nil {
			return err
		}
		return printJSON(result)
	case "path":
		result, err := engine.PathToNearestRoot(ctx, arg)
		if err != nil {
			return err
		}
		return printJSON(result)
	case "zombies":
		class, ok := reach.ParseClass(arg)
		if !ok {
			return fmt.Errorf("unknown class %q", arg)
		}
		result, err := engine.ListByClass(ctx, class, opts...)
		if err != nil {
			return err
		}
		return printJSON(result)
	default:
		return fmt.Errorf("unknown query operation %q", op)
	}
}
