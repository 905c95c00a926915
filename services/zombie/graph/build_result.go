// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"fmt"

	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
	"github.com/AleutianAI/ZombieGraph/services/zombie/symtab"
)

// FileError records a fact set that failed validation or ingestion. The
// build continues past file errors; callers inspect them afterwards.
type FileError struct {
	SourceKey string
	Err       error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file %s: %v", e.SourceKey, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// EdgeError records an edge that was rejected during resolution
// (self-loop, limit exceeded). The offending reference is dropped.
type EdgeError struct {
	FromID string
	Target string
	Kind   fact.RefKind
	Err    error
}

func (e *EdgeError) Error() string {
	return fmt.Sprintf("edge %s -[%s]-> %s: %v", e.FromID, e.Kind, e.Target, e.Err)
}

func (e *EdgeError) Unwrap() error { return e.Err }

// DanglingReference records a reference whose target could not be
// resolved to any interned symbol. Dangling references never become
// edges; they surface here so extractor gaps are visible.
type DanglingReference struct {
	FromID     string        `json:"from_id"`
	TargetName string        `json:"target_name"`
	Kind       fact.RefKind  `json:"kind"`
	Location   fact.Location `json:"location"`
}

// BuildStats summarizes one build.
type BuildStats struct {
	FilesProcessed   int   `json:"files_processed"`
	SymbolsInterned  int   `json:"symbols_interned"`
	EdgesCreated     int   `json:"edges_created"`
	DanglingRefs     int   `json:"dangling_refs"`
	AmbiguousResolve int   `json:"ambiguous_resolves"`
	DuplicateIDs     int   `json:"duplicate_ids"`
	DurationMilli    int64 `json:"duration_ms"`
}

// BuildResult is the outcome of a graph build: the frozen graph and
// table, plus every diagnostic collected along the way.
//
// Incomplete is set when the build was cancelled mid-flight; the graph is
// still frozen and internally consistent, but covers only the files
// processed before cancellation.
type BuildResult struct {
	Graph      *Graph
	Table      *symtab.Snapshot
	FileErrors []*FileError
	EdgeErrors []*EdgeError
	Dangling   []DanglingReference
	Stats      BuildStats
	Incomplete bool
}

// HasErrors reports whether any file or edge diagnostics were collected.
func (r *BuildResult) HasErrors() bool {
	return len(r.FileErrors) > 0 || len(r.EdgeErrors) > 0
}

// TotalErrors returns the combined diagnostic count.
func (r *BuildResult) TotalErrors() int {
	return len(r.FileErrors) + len(r.EdgeErrors)
}

// Success reports a complete build with no diagnostics.
func (r *BuildResult) Success() bool {
	return !r.Incomplete && !r.HasErrors()
}
