// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/AleutianAI/ZombieGraph/services/zombie/graph"
	"github.com/AleutianAI/ZombieGraph/services/zombie/symtab"
)

// DetectorError records a detector that failed. The run continues with
// the remaining detectors.
type DetectorError struct {
	Detector string
	Err      error
}

func (e *DetectorError) Error() string {
	return fmt.Sprintf("detector %s: %v", e.Detector, e.Err)
}

func (e *DetectorError) Unwrap() error { return e.Err }

// Result accumulates the output of one linker run.
type Result struct {
	Links           []Link
	Unresolved      []Unresolved
	RootCandidates  []string
	PhantomsCreated int
	PerDetector     map[string]int
	Errors          []*DetectorError
	DurationMilli   int64
}

// Linker runs the configured detectors over a corpus.
type Linker struct {
	detectors []Detector
	logger    *slog.Logger
}

// LinkerOption mutates a Linker under construction.
type LinkerOption func(*Linker)

// WithLinkerLogger overrides the linker's logger.
func WithLinkerLogger(l *slog.Logger) LinkerOption {
	return func(lk *Linker) {
		if l != nil {
			lk.logger = l
		}
	}
}

// WithDetector appends a custom detector after the built-in set.
func WithDetector(d Detector) LinkerOption {
	return func(lk *Linker) { lk.detectors = append(lk.detectors, d) }
}

// NewLinker builds a Linker with the built-in detectors enabled per
// config, in a fixed deterministic order.
func NewLinker(cfg Config, opts ...LinkerOption) *Linker {
	lk := &Linker{logger: slog.Default()}
	if cfg.ORM {
		lk.detectors = append(lk.detectors, &ormDetector{})
	}
	if cfg.StoredProcedures {
		lk.detectors = append(lk.detectors, &procedureDetector{})
	}
	if cfg.Scheduler {
		lk.detectors = append(lk.detectors, &schedulerDetector{})
	}
	if cfg.SQLAccess {
		lk.detectors = append(lk.detectors, &sqlAccessDetector{})
	}
	for _, opt := range opts {
		opt(lk)
	}
	return lk
}

// Run executes every detector against the corpus.
//
// Description:
//
//	Called at the ingestion phase barrier: all symbols are interned, the
//	table is not yet frozen, so detectors may add phantom symbols. The
//	emitted links are sorted so downstream edge creation is independent
//	of detector internals.
//
// Outputs:
//
//	*Result - Always non-nil; detector failures are recorded on it.
//	error - Only context cancellation.
func (lk *Linker) Run(ctx context.Context, c *Corpus) (*Result, error) {
	start := time.Now()
	ctx, span := startLinkSpan(ctx, len(lk.detectors))
	defer span.End()

	result := &Result{PerDetector: make(map[string]int)}
	for _, d := range lk.detectors {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}
		before := len(result.Links)
		if err := d.Detect(ctx, c, result); err != nil {
			lk.logger.Warn("Semantic detector failed", "detector", d.Name(), "error", err)
			result.Errors = append(result.Errors, &DetectorError{Detector: d.Name(), Err: err})
			continue
		}
		result.PerDetector[d.Name()] = len(result.Links) - before
		lk.logger.Debug("Semantic detector finished",
			"detector", d.Name(), "links", len(result.Links)-before)
	}

	sort.Slice(result.Links, func(i, j int) bool {
		a, b := &result.Links[i], &result.Links[j]
		if a.FromID != b.FromID {
			return a.FromID < b.FromID
		}
		if a.ToID != b.ToID {
			return a.ToID < b.ToID
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Detector < b.Detector
	})
	sort.Strings(result.RootCandidates)

	result.DurationMilli = time.Since(start).Milliseconds()
	recordLinkMetrics(ctx, time.Since(start), len(result.Links), result.PhantomsCreated)
	setLinkSpanResult(span, result)
	lk.logger.Info("Semantic linking complete",
		"links", len(result.Links),
		"phantoms", result.PhantomsCreated,
		"unresolved", len(result.Unresolved),
		"duration_ms", result.DurationMilli)
	return result, nil
}

// ApplyLinks converts detector links to graph edges against the frozen
// table. Links whose endpoints are missing from the table (which would
// indicate a detector bug) are dropped with a warning rather than
// becoming dangling edges.
func ApplyLinks(snap *symtab.Snapshot, g *graph.Graph, links []Link) (applied int, err error) {
	for i := range links {
		l := &links[i]
		from, okFrom := snap.Lookup(l.FromID)
		to, okTo := snap.Lookup(l.ToID)
		if !okFrom || !okTo {
			slog.Warn("Semantic link endpoint missing from table",
				"detector", l.Detector, "from", l.FromID, "to", l.ToID)
			continue
		}
		if from == to {
			continue
		}
		addErr := g.AddEdge(graph.Edge{
			From:       from,
			To:         to,
			Type:       l.Type,
			Confidence: l.Confidence,
			Context:    l.Detector,
			SourceFile: l.SourceFile,
			Location:   l.Location,
		})
		if addErr != nil {
			return applied, fmt.Errorf("applying %s link: %w", l.Detector, addErr)
		}
		applied++
	}
	return applied, nil
}
