// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package query answers dependency, dependent, path-to-root, and
// classification questions over immutable analysis generations.
//
// # Concurrency Model
//
// A Generation bundles one frozen graph with its table and reachability
// result. Rebuilds produce a new Generation and swap it in atomically;
// queries running against the previous generation keep their pointer and
// finish against a consistent view. Nothing is ever mutated in place.
package query

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/ZombieGraph/services/zombie/graph"
	"github.com/AleutianAI/ZombieGraph/services/zombie/reach"
	"github.com/AleutianAI/ZombieGraph/services/zombie/symtab"
)

var (
	// ErrNoGeneration is returned before the first build completes.
	ErrNoGeneration = errors.New("no analysis generation available")

	// ErrSymbolNotFound is returned for IDs absent from the generation.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrIncompleteAnalysis is returned for classification queries on a
	// generation whose reachability run is still partial.
	ErrIncompleteAnalysis = errors.New("reachability analysis incomplete")
)

// Generation is one immutable analysis epoch.
type Generation struct {
	ID        string
	Graph     *graph.Graph
	Table     *symtab.Snapshot
	Reach     *reach.Result
	CreatedAt time.Time
}

// NewGeneration wraps a frozen graph and its analysis into a generation.
func NewGeneration(g *graph.Graph, table *symtab.Snapshot, r *reach.Result) *Generation {
	return &Generation{
		ID:        uuid.NewString(),
		Graph:     g,
		Table:     table,
		Reach:     r,
		CreatedAt: time.Now().UTC(),
	}
}

// Holder publishes the current generation with an atomic pointer swap.
type Holder struct {
	current atomic.Pointer[Generation]
}

// NewHolder creates an empty holder.
func NewHolder() *Holder { return &Holder{} }

// Current returns the live generation, or ErrNoGeneration.
func (h *Holder) Current() (*Generation, error) {
	gen := h.current.Load()
	if gen == nil {
		return nil, ErrNoGeneration
	}
	return gen, nil
}

// Swap publishes a new generation and returns the previous one (nil on
// first publish). In-flight queries holding the old pointer are
// unaffected.
func (h *Holder) Swap(gen *Generation) *Generation {
	return h.current.Swap(gen)
}
