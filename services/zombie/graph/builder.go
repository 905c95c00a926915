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
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
	"github.com/AleutianAI/ZombieGraph/services/zombie/symtab"
)

// contextCheckInterval is how many items are processed between context
// cancellation checks in tight loops.
const contextCheckInterval = 100

// ambiguousConfidence is the confidence assigned to edges whose target
// resolved only by tie-break among multiple candidates. Kept below
// StrongConfidence so downstream consumers can discount them.
const ambiguousConfidence = 0.6

// resolverContext tags edges produced by name resolution, as opposed to
// semantic detectors.
const resolverContext = "resolver"

// BuilderOptions configure a Builder.
type BuilderOptions struct {
	GraphOptions []Option
	Logger       *slog.Logger
}

// BuilderOption mutates BuilderOptions.
type BuilderOption func(*BuilderOptions)

// WithGraphOptions forwards options to the graphs the builder creates.
func WithGraphOptions(opts ...Option) BuilderOption {
	return func(o *BuilderOptions) { o.GraphOptions = append(o.GraphOptions, opts...) }
}

// WithLogger overrides the builder's logger.
func WithLogger(l *slog.Logger) BuilderOption {
	return func(o *BuilderOptions) {
		if l != nil {
			o.Logger = l
		}
	}
}

// Builder turns fact sets into a frozen dependency graph.
//
// The build runs in two phases with a barrier between them. Collect
// interns every symbol from every file into the symbol table; Resolve
// converts references to edges against the complete table. The barrier is
// what makes cross-file references resolve regardless of file order, and
// it is where semantic detectors run (they see the full table and may add
// phantom symbols before it freezes).
//
// A Builder is stateless and safe for concurrent use; all per-build state
// lives in the arguments.
type Builder struct {
	opts BuilderOptions
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	o := BuilderOptions{Logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Builder{opts: o}
}

// CollectFile validates one fact set and interns its symbols.
//
// Description:
//
//	Phase-one ingestion for a single file. Safe to call from multiple
//	goroutines over the same table; the ingestion coordinator fans files
//	out to a worker pool.
//
// Outputs:
//
//	error - Validation failure; the file contributed nothing.
func (b *Builder) CollectFile(table *symtab.Table, facts *fact.FileFacts) error {
	if err := facts.Validate(); err != nil {
		return err
	}
	for i := range facts.Symbols {
		if _, _, err := table.Intern(facts.Symbols[i]); err != nil {
			return err
		}
	}
	return nil
}

// Resolve runs phase two: reference-to-edge conversion over a frozen
// table, appending edges to a building-state graph.
//
// Description:
//
//	Resolution prefers an exact canonical-ID or qualified-name match,
//	then narrows same-name candidates by repository, then by file, then
//	by declaration order. A resolution that survives only by tie-break
//	is recorded as ambiguous and its edge confidence reduced below the
//	strong threshold. Targets with no candidates become dangling
//	diagnostics, never edges.
//
// Inputs:
//
//	ctx - Cancellation; checked every contextCheckInterval references.
//	snap - The frozen symbol table.
//	g - Building-state graph to append edges to.
//	files - The fact sets whose references to resolve.
//	r - Result accumulating diagnostics and stats.
//
// Outputs:
//
//	error - ErrBuildCancelled when the context fired; r.Incomplete is
//	set and already-resolved edges remain valid.
func (b *Builder) Resolve(ctx context.Context, snap *symtab.Snapshot, g *Graph, files []*fact.FileFacts, r *BuildResult) error {
	processed := 0
	for _, f := range files {
		sourceKey := f.SourceKey()
		for i := range f.References {
			if processed%contextCheckInterval == 0 {
				select {
				case <-ctx.Done():
					r.Incomplete = true
					return ErrBuildCancelled
				default:
				}
			}
			processed++
			b.resolveReference(snap, g, sourceKey, &f.References[i], r)
		}
	}
	return nil
}

func (b *Builder) resolveReference(snap *symtab.Snapshot, g *Graph, sourceKey string, ref *fact.Reference, r *BuildResult) {
	fromIdx, ok := snap.Lookup(ref.FromID)
	if !ok {
		// Referrer itself unknown: its file failed collection.
		r.Dangling = append(r.Dangling, DanglingReference{
			FromID:     ref.FromID,
			TargetName: ref.TargetName,
			Kind:       ref.Kind,
			Location:   ref.Location,
		})
		return
	}

	toIdx, ambiguous, found := b.resolveTarget(snap, fromIdx, ref)
	if !found {
		r.Dangling = append(r.Dangling, DanglingReference{
			FromID:     ref.FromID,
			TargetName: ref.TargetName,
			Kind:       ref.Kind,
			Location:   ref.Location,
		})
		return
	}
	if toIdx == fromIdx {
		// Recursive self-references are legal in source but carry no
		// reachability information.
		return
	}

	confidence := ref.Confidence
	if confidence == 0 {
		confidence = 1.0
	}
	if ambiguous {
		confidence = min(confidence, ambiguousConfidence)
		r.Stats.AmbiguousResolve++
	}

	edgeType, err := refKindToEdgeType(ref.Kind)
	if err != nil {
		r.EdgeErrors = append(r.EdgeErrors, &EdgeError{
			FromID: ref.FromID, Target: ref.TargetName, Kind: ref.Kind, Err: err,
		})
		return
	}

	err = g.AddEdge(Edge{
		From:       fromIdx,
		To:         toIdx,
		Type:       edgeType,
		Confidence: confidence,
		Context:    resolverContext,
		SourceFile: sourceKey,
		Location:   ref.Location,
	})
	if err != nil {
		r.EdgeErrors = append(r.EdgeErrors, &EdgeError{
			FromID: ref.FromID, Target: ref.TargetName, Kind: ref.Kind, Err: err,
		})
	}
}

// resolveTarget finds the best symbol index for a reference target.
func (b *Builder) resolveTarget(snap *symtab.Snapshot, from uint32, ref *fact.Reference) (idx uint32, ambiguous, found bool) {
	if ref.TargetQualified != "" {
		if idx, ok := snap.Lookup(ref.TargetQualified); ok {
			return idx, false, true
		}
		if c := snap.ByName(ref.TargetQualified); len(c) > 0 {
			return pickCandidate(snap, from, c)
		}
	}
	if c := snap.ByName(ref.TargetName); len(c) > 0 {
		return pickCandidate(snap, from, c)
	}
	return 0, false, false
}

// pickCandidate narrows same-name candidates: same repo beats other
// repos, same file beats other files, then lowest declaration order.
func pickCandidate(snap *symtab.Snapshot, from uint32, candidates []uint32) (uint32, bool, bool) {
	if len(candidates) == 1 {
		return candidates[0], false, true
	}
	referrer, _ := snap.SymbolAt(from)
	refPath := fact.NormalizePath(referrer.FilePath)

	best := candidates[0]
	bestTier := candidateTier(snap, referrer.RepoID, refPath, best)
	tied := 1
	for _, c := range candidates[1:] {
		tier := candidateTier(snap, referrer.RepoID, refPath, c)
		switch {
		case tier < bestTier:
			best, bestTier, tied = c, tier, 1
		case tier == bestTier:
			tied++
			if c < best {
				best = c
			}
		}
	}
	return best, tied > 1, true
}

func candidateTier(snap *symtab.Snapshot, repo, path string, idx uint32) int {
	s, _ := snap.SymbolAt(idx)
	if s.RepoID == repo {
		if fact.NormalizePath(s.FilePath) == path {
			return 0
		}
		return 1
	}
	return 2
}

func refKindToEdgeType(k fact.RefKind) (EdgeType, error) {
	switch k {
	case fact.RefCall:
		return EdgeCalls, nil
	case fact.RefImport:
		return EdgeImports, nil
	case fact.RefExtends:
		return EdgeExtends, nil
	case fact.RefImplements:
		return EdgeImplements, nil
	case fact.RefUsesType:
		return EdgeUses, nil
	case fact.RefReads:
		return EdgeReads, nil
	case fact.RefWrites:
		return EdgeWrites, nil
	case fact.RefReference:
		return EdgeReferences, nil
	default:
		return 0, fmt.Errorf("%w: reference kind %q", ErrInvalidEdgeType, k)
	}
}

// Build runs the full pipeline over a set of fact files: collect, freeze
// the table, resolve, freeze the graph.
//
// Description:
//
//	Convenience entry point for callers that do not need the phase
//	barrier exposed (tests, one-shot CLI builds). The ingestion
//	coordinator uses the split CollectFile/Resolve pieces instead so it
//	can run semantic detectors at the barrier.
//
// Outputs:
//
//	*BuildResult - Always non-nil with a frozen graph; per-file failures
//	and unresolved references are diagnostics on the result.
//	error - Only for conditions that prevent producing any graph at all.
func (b *Builder) Build(ctx context.Context, files []*fact.FileFacts) (*BuildResult, error) {
	start := time.Now()
	ctx, span := startBuildSpan(ctx, len(files))
	defer span.End()

	table := symtab.New()
	result := &BuildResult{}

	for _, f := range files {
		if err := b.CollectFile(table, f); err != nil {
			result.FileErrors = append(result.FileErrors, &FileError{SourceKey: f.SourceKey(), Err: err})
			b.opts.Logger.Warn("Skipping fact file", "source", f.SourceKey(), "error", err)
			continue
		}
		result.Stats.FilesProcessed++
	}

	snap := table.Freeze()
	result.Table = snap
	result.Stats.SymbolsInterned = snap.Len()
	result.Stats.DuplicateIDs = len(snap.Duplicates())

	g, err := New(snap, b.opts.GraphOptions...)
	if err != nil {
		return nil, err
	}

	if err := b.Resolve(ctx, snap, g, files, result); err != nil {
		b.opts.Logger.Warn("Build cancelled during resolution", "resolved_edges", g.NumEdges())
	}

	if err := g.Freeze(); err != nil {
		return nil, fmt.Errorf("freezing graph: %w", err)
	}
	result.Graph = g
	result.Stats.EdgesCreated = g.NumEdges()
	result.Stats.DanglingRefs = len(result.Dangling)
	result.Stats.DurationMilli = time.Since(start).Milliseconds()

	setBuildSpanResult(span, result)
	recordBuildMetrics(ctx, time.Since(start), snap.Len(), g.NumEdges(), len(result.Dangling), !result.Incomplete)

	b.opts.Logger.Info("Graph build complete",
		"files", result.Stats.FilesProcessed,
		"nodes", result.Stats.SymbolsInterned,
		"edges", result.Stats.EdgesCreated,
		"dangling", result.Stats.DanglingRefs,
		"duration_ms", result.Stats.DurationMilli,
		"incomplete", result.Incomplete)
	return result, nil
}
