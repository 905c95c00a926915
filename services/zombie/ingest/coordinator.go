// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest drives the analysis pipeline end to end: accept fact
// batches from external producers, persist them, and rebuild the
// dependency graph into a fresh query generation.
//
// # Pipeline Phases
//
// Every rebuild runs the same phase sequence:
//
//  1. Collect: intern every symbol from the cached facts into a fresh
//     symbol table (concurrent, bounded by Workers).
//  2. Barrier: run semantic detectors against the still-mutable table,
//     so unresolved stored procedures can be interned as phantoms.
//  3. Freeze the table, build and resolve the edge set, apply semantic
//     links, freeze the graph.
//  4. Detect roots, run reachability, classify.
//  5. Publish the generation with an atomic holder swap.
//
// # Ownership Model
//
// The coordinator owns nothing durable: the fact cache and the
// generation holder are injected and outlive it. Generations it
// publishes become immutable shared state.
//
// # Thread Safety
//
// A rebuild mutex serializes Ingest/RemoveFiles/Rebuild; queries
// against the holder are never blocked.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
	"github.com/AleutianAI/ZombieGraph/services/zombie/graph"
	"github.com/AleutianAI/ZombieGraph/services/zombie/query"
	"github.com/AleutianAI/ZombieGraph/services/zombie/reach"
	"github.com/AleutianAI/ZombieGraph/services/zombie/roots"
	"github.com/AleutianAI/ZombieGraph/services/zombie/semantic"
	"github.com/AleutianAI/ZombieGraph/services/zombie/store"
	"github.com/AleutianAI/ZombieGraph/services/zombie/symtab"
)

// Report summarizes one rebuild for callers and API responses.
type Report struct {
	GenerationID   string        `json:"generation_id"`
	FilesIngested  int           `json:"files_ingested"`
	FilesUnchanged int           `json:"files_unchanged"`
	FilesRemoved   int           `json:"files_removed"`
	FilesFailed    int           `json:"files_failed"`
	Symbols        int           `json:"symbols"`
	Edges          int           `json:"edges"`
	SemanticLinks  int           `json:"semantic_links"`
	Phantoms       int           `json:"phantoms"`
	Dangling       int           `json:"dangling_references"`
	Duplicates     int           `json:"duplicate_ids"`
	Roots          int           `json:"roots"`
	Summary        reach.Summary `json:"summary"`
	DurationMilli  int64         `json:"duration_ms"`
}

// Options configures a Coordinator.
type Options struct {
	Workers   int
	Semantic  semantic.Config
	Roots     roots.Config
	GraphOpts []graph.Option
	ReachOpts []reach.Option
	Logger    *slog.Logger
}

// Option mutates coordinator options.
type Option func(*Options)

// WithWorkers bounds the concurrent collect phase. Values below 1 keep
// the default (GOMAXPROCS, capped at 8).
func WithWorkers(n int) Option {
	return func(o *Options) {
		if n >= 1 {
			o.Workers = n
		}
	}
}

// WithSemanticConfig selects which semantic detectors run.
func WithSemanticConfig(cfg semantic.Config) Option {
	return func(o *Options) { o.Semantic = cfg }
}

// WithRootConfig sets the root designation rules.
func WithRootConfig(cfg roots.Config) Option {
	return func(o *Options) { o.Roots = cfg }
}

// WithGraphOptions forwards options to graph construction.
func WithGraphOptions(opts ...graph.Option) Option {
	return func(o *Options) { o.GraphOpts = append(o.GraphOpts, opts...) }
}

// WithReachOptions forwards options to the reachability analyzer.
func WithReachOptions(opts ...reach.Option) Option {
	return func(o *Options) { o.ReachOpts = append(o.ReachOpts, opts...) }
}

// WithCoordinatorLogger overrides the logger.
func WithCoordinatorLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// Coordinator runs the ingestion pipeline against a fact cache and
// publishes generations to a holder.
type Coordinator struct {
	cache  *store.FactCache
	holder *query.Holder
	opts   Options

	mu sync.Mutex // serializes rebuilds
}

// NewCoordinator wires a pipeline over the given cache and holder.
func NewCoordinator(cache *store.FactCache, holder *query.Holder, opts ...Option) *Coordinator {
	workers := runtime.GOMAXPROCS(0)
	if workers > 8 {
		workers = 8
	}
	o := Options{
		Workers:  workers,
		Semantic: semantic.DefaultConfig(),
		Logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Coordinator{cache: cache, holder: holder, opts: o}
}

// Ingest persists a batch of fact files and rebuilds the generation.
//
// Description:
//
//	Each file is validated and written to the fact cache; files whose
//	content hash matches the cached entry are counted as unchanged.
//	Invalid files are rejected individually and do not abort the
//	batch. If at least one file changed and a generation is already
//	published, only the changed files are merged onto it; the first
//	ingest (or a failed merge) runs a full rebuild. An all-unchanged
//	batch skips the rebuild and reports the current generation.
func (c *Coordinator) Ingest(ctx context.Context, batch []*fact.FileFacts) (*Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		statsMu   sync.Mutex
		changed   []*fact.FileFacts
		unchanged int
		failed    int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for _, ff := range batch {
		g.Go(func() error {
			fresh, err := c.cache.Put(gctx, ff)
			statsMu.Lock()
			defer statsMu.Unlock()
			switch {
			case err != nil:
				failed++
				c.opts.Logger.Warn("Rejecting fact file",
					"source", ff.SourceKey(), "error", err)
			case fresh:
				changed = append(changed, ff)
			default:
				unchanged++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(changed) == 0 {
		report := &Report{FilesUnchanged: unchanged, FilesFailed: failed}
		if gen, err := c.holder.Current(); err == nil {
			report.GenerationID = gen.ID
		}
		c.opts.Logger.Info("Ingest batch unchanged, skipping rebuild",
			"unchanged", unchanged, "failed", failed)
		return report, nil
	}

	report, err := c.refreshLocked(ctx, changed)
	if err != nil {
		return nil, err
	}
	report.FilesIngested = len(changed)
	report.FilesUnchanged = unchanged
	report.FilesFailed += failed
	return report, nil
}

// refreshLocked publishes a new generation for a changed-file batch,
// merging onto the current generation when one exists. A merge failure
// degrades to a full rebuild rather than failing the ingest.
func (c *Coordinator) refreshLocked(ctx context.Context, changed []*fact.FileFacts) (*Report, error) {
	cur, err := c.holder.Current()
	if err != nil {
		return c.rebuildLocked(ctx)
	}
	report, err := c.mergeLocked(ctx, cur, changed)
	if err != nil {
		c.opts.Logger.Warn("Incremental merge failed, rebuilding from scratch",
			"error", err)
		return c.rebuildLocked(ctx)
	}
	return report, nil
}

// mergeLocked re-ingests only the changed files on top of the current
// generation.
//
// Description:
//
//	The published snapshot thaws back into a mutable table and the
//	frozen graph is cloned. Each changed file's previous contribution
//	is removed (edges stripped, declared symbols tombstoned), then only
//	the changed files are re-collected, re-linked, and re-resolved
//	against the merged table. Symbols the changed files still declare
//	are restored; symbols they no longer declare stay tombstoned and
//	classify as excluded until the next full rebuild reassigns indices.
//	Root candidates detected from unchanged files in earlier runs are
//	carried through the previous root set.
func (c *Coordinator) mergeLocked(ctx context.Context, cur *query.Generation, changed []*fact.FileFacts) (*Report, error) {
	start := time.Now()

	table := symtab.NewFromSnapshot(cur.Table)
	gr, err := cur.Graph.Clone()
	if err != nil {
		return nil, err
	}

	builder := graph.NewBuilder(
		graph.WithGraphOptions(c.opts.GraphOpts...),
		graph.WithLogger(c.opts.Logger),
	)
	result := &graph.BuildResult{}

	for _, ff := range changed {
		if err := gr.RemoveSourceFile(ff.SourceKey()); err != nil {
			return nil, err
		}
	}
	for _, ff := range changed {
		if err := builder.CollectFile(table, ff); err != nil {
			result.FileErrors = append(result.FileErrors,
				&graph.FileError{SourceKey: ff.SourceKey(), Err: err})
			continue
		}
		for i := range ff.Symbols {
			if idx, ok := table.Lookup(ff.Symbols[i].ID); ok {
				if err := gr.RestoreNode(idx); err != nil {
					return nil, err
				}
			}
		}
	}

	linker := semantic.NewLinker(c.opts.Semantic, semantic.WithLinkerLogger(c.opts.Logger))
	corpus := semantic.NewCorpus(table, changed,
		semantic.WithBaseline(cur.Table.Symbols()))
	semResult, err := linker.Run(ctx, corpus)
	if err != nil {
		return nil, err
	}

	snap := table.Freeze()
	if err := gr.Rebase(snap); err != nil {
		return nil, err
	}
	if err := builder.Resolve(ctx, snap, gr, changed, result); err != nil {
		return nil, err
	}
	applied, err := semantic.ApplyLinks(snap, gr, semResult.Links)
	if err != nil {
		return nil, err
	}
	if err := gr.Freeze(); err != nil {
		return nil, err
	}

	candidates := semResult.RootCandidates
	for _, r := range cur.Reach.Roots {
		if r.Rule == "semantic:candidate" {
			candidates = append(candidates, r.ID)
		}
	}
	rootSet := roots.Detect(snap, c.opts.Roots, candidates)
	reachResult, err := reach.New(append(c.opts.ReachOpts,
		reach.WithAnalyzerLogger(c.opts.Logger))...).Run(ctx, gr, rootSet)
	if err != nil {
		return nil, err
	}

	gen := query.NewGeneration(gr, snap, reachResult)
	c.holder.Swap(gen)

	report := &Report{
		GenerationID:  gen.ID,
		FilesFailed:   len(result.FileErrors),
		Symbols:       snap.Len(),
		Edges:         gr.NumEdges(),
		SemanticLinks: applied,
		Phantoms:      semResult.PhantomsCreated,
		Dangling:      len(result.Dangling),
		Duplicates:    len(snap.Duplicates()),
		Roots:         len(rootSet),
		Summary:       reachResult.Summary,
		DurationMilli: time.Since(start).Milliseconds(),
	}
	c.opts.Logger.Info("Generation merged",
		"generation", gen.ID,
		"changed_files", len(changed),
		"symbols", report.Symbols,
		"edges", report.Edges,
		"semantic_links", report.SemanticLinks,
		"roots", report.Roots,
		"live", report.Summary.Live,
		"dead_code", report.Summary.DeadCode,
		"duration_ms", report.DurationMilli)
	return report, nil
}

// RemoveFiles drops cached facts for deleted source files and rebuilds.
func (c *Coordinator) RemoveFiles(ctx context.Context, repoID string, paths []string) (*Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, p := range paths {
		existed, err := c.cache.Delete(ctx, repoID, p)
		if err != nil {
			return nil, fmt.Errorf("remove %s::%s: %w", repoID, p, err)
		}
		if existed {
			removed++
		}
	}
	if removed == 0 {
		report := &Report{}
		if gen, err := c.holder.Current(); err == nil {
			report.GenerationID = gen.ID
		}
		return report, nil
	}

	report, err := c.rebuildLocked(ctx)
	if err != nil {
		return nil, err
	}
	report.FilesRemoved = removed
	return report, nil
}

// Rebuild regenerates the graph from the fact cache and publishes it.
func (c *Coordinator) Rebuild(ctx context.Context) (*Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rebuildLocked(ctx)
}

func (c *Coordinator) rebuildLocked(ctx context.Context) (*Report, error) {
	start := time.Now()

	var files []*fact.FileFacts
	err := c.cache.Walk(ctx, func(ff *fact.FileFacts) error {
		files = append(files, ff)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load cached facts: %w", err)
	}

	builder := graph.NewBuilder(
		graph.WithGraphOptions(c.opts.GraphOpts...),
		graph.WithLogger(c.opts.Logger),
	)
	result := &graph.BuildResult{}

	// Collect phase: interning is shard-locked, so files fan out.
	table := symtab.New()
	var fileErrMu sync.Mutex
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(c.opts.Workers)
	for _, ff := range files {
		eg.Go(func() error {
			if err := ectx.Err(); err != nil {
				return err
			}
			if err := builder.CollectFile(table, ff); err != nil {
				fileErrMu.Lock()
				result.FileErrors = append(result.FileErrors,
					&graph.FileError{SourceKey: ff.SourceKey(), Err: err})
				fileErrMu.Unlock()
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	// Phase barrier: detectors may intern phantom symbols, so they run
	// before the table freezes.
	linker := semantic.NewLinker(c.opts.Semantic, semantic.WithLinkerLogger(c.opts.Logger))
	semResult, err := linker.Run(ctx, semantic.NewCorpus(table, files))
	if err != nil {
		return nil, err
	}

	snap := table.Freeze()
	gr, err := graph.New(snap, c.opts.GraphOpts...)
	if err != nil {
		return nil, err
	}
	if err := builder.Resolve(ctx, snap, gr, files, result); err != nil {
		return nil, err
	}
	applied, err := semantic.ApplyLinks(snap, gr, semResult.Links)
	if err != nil {
		return nil, err
	}
	if err := gr.Freeze(); err != nil {
		return nil, err
	}

	rootSet := roots.Detect(snap, c.opts.Roots, semResult.RootCandidates)
	reachResult, err := reach.New(append(c.opts.ReachOpts,
		reach.WithAnalyzerLogger(c.opts.Logger))...).Run(ctx, gr, rootSet)
	if err != nil {
		return nil, err
	}

	gen := query.NewGeneration(gr, snap, reachResult)
	c.holder.Swap(gen)

	report := &Report{
		GenerationID:  gen.ID,
		FilesFailed:   len(result.FileErrors),
		Symbols:       snap.Len(),
		Edges:         gr.NumEdges(),
		SemanticLinks: applied,
		Phantoms:      semResult.PhantomsCreated,
		Dangling:      len(result.Dangling),
		Duplicates:    len(snap.Duplicates()),
		Roots:         len(rootSet),
		Summary:       reachResult.Summary,
		DurationMilli: time.Since(start).Milliseconds(),
	}
	c.opts.Logger.Info("Generation published",
		"generation", gen.ID,
		"files", len(files),
		"symbols", report.Symbols,
		"edges", report.Edges,
		"semantic_links", report.SemanticLinks,
		"roots", report.Roots,
		"live", report.Summary.Live,
		"dead_code", report.Summary.DeadCode,
		"duration_ms", report.DurationMilli)
	return report, nil
}

// SyncDirty reconciles a dirty tracker against the cache and rebuilds
// if anything changed.
//
// Description:
//
//	Removed files are deleted from the fact cache. Modified files only
//	mark staleness here; their refreshed facts arrive through Ingest
//	from the external producers, so they are logged and cleared.
//	Rebuilds only when at least one deletion took effect.
func (c *Coordinator) SyncDirty(ctx context.Context, tracker *DirtyTracker) (*Report, error) {
	entries := tracker.Entries()
	if len(entries) == 0 {
		return nil, nil
	}

	c.mu.Lock()
	removed := 0
	for _, e := range entries {
		if !e.Removed {
			c.opts.Logger.Debug("Source file stale, awaiting fresh facts",
				"repo", e.RepoID, "path", e.Path, "source", e.Source)
			continue
		}
		existed, err := c.cache.Delete(ctx, e.RepoID, e.Path)
		if err != nil {
			c.mu.Unlock()
			return nil, err
		}
		if existed {
			removed++
		}
	}

	var report *Report
	if removed > 0 {
		var err error
		report, err = c.rebuildLocked(ctx)
		if err != nil {
			c.mu.Unlock()
			return nil, err
		}
		report.FilesRemoved = removed
	}
	c.mu.Unlock()

	tracker.Clear(entries)
	return report, nil
}
