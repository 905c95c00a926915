// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reach computes multi-source reachability over a frozen
// dependency graph and classifies every symbol as live, dead code,
// orphaned, or unreachable.
//
// # Determinism
//
// The traversal is level-synchronous BFS with the frontier sorted at
// every layer, so the same graph and root set always produce the same
// distances and classifications, regardless of worker scheduling.
//
// # Thread Safety
//
// An Analyzer is stateless and safe for concurrent Run calls. A Result
// is mutated by Resume and must not be shared until complete.
package reach

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/ZombieGraph/services/zombie/graph"
	"github.com/AleutianAI/ZombieGraph/services/zombie/roots"
)

const (
	// parallelThreshold is the frontier size above which a layer is
	// expanded by the worker pool instead of inline.
	parallelThreshold = 256

	// maxParallelWorkers caps the layer-expansion pool.
	maxParallelWorkers = 8
)

// Options configure a reachability run.
type Options struct {
	// EdgeMask selects which edge types the traversal follows.
	EdgeMask graph.TypeMask
	// MinConfidence drops edges below the threshold. Zero follows all.
	MinConfidence float64
	// MaxSteps bounds the number of nodes visited before the run
	// checkpoints. Zero means unbounded.
	MaxSteps int
	// Timeout bounds wall-clock time, checked at layer boundaries.
	// Zero means unbounded.
	Timeout time.Duration
	// Workers caps layer-expansion parallelism. Zero picks a default
	// from GOMAXPROCS.
	Workers int

	Logger *slog.Logger
}

// Option mutates Options.
type Option func(*Options)

// WithEdgeMask restricts traversal to the given edge types.
func WithEdgeMask(m graph.TypeMask) Option {
	return func(o *Options) { o.EdgeMask = m }
}

// WithMinConfidence ignores edges below the threshold.
func WithMinConfidence(c float64) Option {
	return func(o *Options) { o.MinConfidence = c }
}

// WithMaxSteps sets the traversal step budget.
func WithMaxSteps(n int) Option {
	return func(o *Options) { o.MaxSteps = n }
}

// WithTimeout sets the wall-clock budget.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithWorkers caps layer-expansion parallelism.
func WithWorkers(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Workers = n
		}
	}
}

// WithAnalyzerLogger overrides the logger.
func WithAnalyzerLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// Analyzer runs reachability analyses.
type Analyzer struct {
	opts Options
}

// New creates an Analyzer.
func New(opts ...Option) *Analyzer {
	o := Options{EdgeMask: graph.AllEdgeTypes, Logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Workers == 0 {
		o.Workers = min(maxParallelWorkers, runtime.GOMAXPROCS(0))
	}
	return &Analyzer{opts: o}
}

// Run executes a multi-source BFS from the root set and classifies the
// graph.
//
// Description:
//
//	Distances start at 0 on every root. Each layer is expanded in
//	ascending index order; when the budget (steps or wall clock) runs
//	out, the run stops at the last completed layer and returns a
//	partial result carrying a checkpoint. Complete runs carry the full
//	per-node classification.
//
// Inputs:
//
//	ctx - Cancellation, checked at layer boundaries.
//	g - A frozen graph.
//	rootSet - Roots from roots.Detect; may be empty (everything is then
//	a zombie candidate).
//
// Outputs:
//
//	*Result - Partial or complete.
//	error - ErrGraphNotFrozen, or context cancellation.
func (a *Analyzer) Run(ctx context.Context, g *graph.Graph, rootSet []roots.Root) (*Result, error) {
	if g.State() != graph.StateFrozen {
		return nil, graph.ErrGraphNotFrozen
	}
	n := g.NumNodes()

	result := &Result{
		RunID:   uuid.NewString(),
		Roots:   append([]roots.Root(nil), rootSet...),
		Dist:    make([]int32, n),
		visited: NewBitset(n),
	}
	for i := range result.Dist {
		result.Dist[i] = -1
	}

	frontier := make([]uint32, 0, len(rootSet))
	for _, r := range rootSet {
		if int(r.Index) >= n || g.NodeRemoved(r.Index) {
			continue
		}
		if !result.visited.Get(r.Index) {
			result.visited.Set(r.Index)
			result.Dist[r.Index] = 0
			frontier = append(frontier, r.Index)
			result.StepsUsed++
		}
	}
	sort.Slice(frontier, func(i, j int) bool { return frontier[i] < frontier[j] })

	result.Checkpoint = &Checkpoint{Frontier: frontier, Level: 0, Steps: result.StepsUsed}
	result.Partial = true
	return a.Resume(ctx, g, result)
}

// Resume continues a partial run from its checkpoint until completion or
// the next budget exhaustion. Budgets are re-applied fresh: a resumed run
// gets a full MaxSteps/Timeout allowance of its own.
func (a *Analyzer) Resume(ctx context.Context, g *graph.Graph, r *Result) (*Result, error) {
	if !r.Partial || r.Checkpoint == nil {
		return r, nil
	}
	start := time.Now()
	ctx, span := startAnalyzeSpan(ctx, len(r.Roots))
	defer span.End()

	var deadline time.Time
	if a.opts.Timeout > 0 {
		deadline = start.Add(a.opts.Timeout)
	}
	stepsThisRun := 0

	frontier := r.Checkpoint.Frontier
	level := r.Checkpoint.Level

	for len(frontier) > 0 {
		select {
		case <-ctx.Done():
			r.Checkpoint = &Checkpoint{Frontier: frontier, Level: level, Steps: r.StepsUsed}
			return r, fmt.Errorf("reachability cancelled at level %d: %w", level, ctx.Err())
		default:
		}
		if a.budgetExhausted(stepsThisRun, deadline) {
			r.Checkpoint = &Checkpoint{Frontier: frontier, Level: level, Steps: r.StepsUsed}
			r.DurationMilli += time.Since(start).Milliseconds()
			a.opts.Logger.Info("Reachability checkpointed",
				"run_id", r.RunID, "level", level, "steps", r.StepsUsed, "frontier", len(frontier))
			recordAnalyzeMetrics(ctx, time.Since(start), r.StepsUsed, true)
			return r, nil
		}

		var next []uint32
		if len(frontier) >= parallelThreshold && a.opts.Workers > 1 {
			next = a.expandParallel(g, r, frontier)
		} else {
			next = a.expandSequential(g, r, frontier)
		}

		// Mark and assign distances at the layer barrier; workers only
		// read the visited set, so discovery stays race-free and the
		// sort keeps iteration order canonical.
		sort.Slice(next, func(i, j int) bool { return next[i] < next[j] })
		dedup := next[:0]
		for _, idx := range next {
			if r.visited.Get(idx) {
				continue
			}
			r.visited.Set(idx)
			r.Dist[idx] = level + 1
			dedup = append(dedup, idx)
		}
		next = dedup

		stepsThisRun += len(next)
		r.StepsUsed += len(next)
		level++
		frontier = next
	}

	r.Partial = false
	r.Checkpoint = nil
	a.classify(g, r)
	r.DurationMilli += time.Since(start).Milliseconds()

	setAnalyzeSpanResult(span, r)
	recordAnalyzeMetrics(ctx, time.Since(start), r.StepsUsed, false)
	a.opts.Logger.Info("Reachability complete",
		"run_id", r.RunID,
		"roots", len(r.Roots),
		"live", r.Summary.Live,
		"dead_code", r.Summary.DeadCode,
		"orphaned", r.Summary.Orphaned,
		"unreachable", r.Summary.Unreachable,
		"steps", r.StepsUsed,
		"duration_ms", r.DurationMilli)
	return r, nil
}

func (a *Analyzer) budgetExhausted(stepsThisRun int, deadline time.Time) bool {
	if a.opts.MaxSteps > 0 && stepsThisRun >= a.opts.MaxSteps {
		return true
	}
	if !deadline.IsZero() && time.Now().After(deadline) {
		return true
	}
	return false
}

// followEdge applies the edge-type mask and confidence floor.
func (a *Analyzer) followEdge(e *graph.Edge) bool {
	if !a.opts.EdgeMask.Has(e.Type) {
		return false
	}
	return e.Confidence >= a.opts.MinConfidence
}

func (a *Analyzer) expandSequential(g *graph.Graph, r *Result, frontier []uint32) []uint32 {
	var next []uint32
	for _, node := range frontier {
		g.EachOutgoing(node, func(e *graph.Edge) bool {
			if a.followEdge(e) && !r.visited.Get(e.To) && !g.NodeRemoved(e.To) {
				next = append(next, e.To)
			}
			return true
		})
	}
	return next
}

// expandParallel fans frontier chunks out to a bounded worker pool. Each
// worker appends to a private slice; the caller merges. Workers never
// write shared state, so duplicates across chunks are expected and get
// collapsed at the layer barrier.
func (a *Analyzer) expandParallel(g *graph.Graph, r *Result, frontier []uint32) []uint32 {
	workers := a.opts.Workers
	chunkSize := (len(frontier) + workers - 1) / workers
	locals := make([][]uint32, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunkSize
		if lo >= len(frontier) {
			break
		}
		hi := min(lo+chunkSize, len(frontier))
		wg.Add(1)
		go func(w int, chunk []uint32) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					a.opts.Logger.Error("Panic in reachability worker",
						"worker", w, "panic", rec)
				}
			}()
			var local []uint32
			for _, node := range chunk {
				g.EachOutgoing(node, func(e *graph.Edge) bool {
					if a.followEdge(e) && !r.visited.Get(e.To) && !g.NodeRemoved(e.To) {
						local = append(local, e.To)
					}
					return true
				})
			}
			locals[w] = local
		}(w, frontier[lo:hi])
	}
	wg.Wait()

	var next []uint32
	for _, local := range locals {
		next = append(next, local...)
	}
	return next
}
