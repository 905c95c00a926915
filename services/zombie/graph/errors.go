// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph provides the cross-repository dependency graph at the
// heart of the zombie-code engine: compact-index nodes backed by a frozen
// symbol table, typed edges with confidence and provenance, and the
// builder that resolves extractor references into edges.
//
// # Ownership Model
//
// The package OWNS: edge storage, adjacency indexes, edge deduplication,
// and reference resolution. It does NOT own: symbol storage (symtab),
// semantic link inference (semantic), reachability (reach), or
// persistence (store).
//
// # Thread Safety
//
// A Graph in the building state is guarded by an internal mutex and safe
// for concurrent AddEdge calls. After Freeze the graph is immutable and
// safe for unsynchronized concurrent reads. Mutating calls on a frozen
// graph return ErrGraphFrozen.
//
// # Lifecycle
//
//	g := graph.New(tableSnapshot)
//	g.AddEdge(...)        // building
//	err := g.Freeze()     // seal: sort, dedup, index, validate
//	g.EachOutgoing(...)   // read-only
package graph

import "errors"

var (
	// ErrGraphFrozen is returned when attempting to modify a frozen graph.
	ErrGraphFrozen = errors.New("graph is frozen")

	// ErrGraphNotFrozen is returned by read paths that require a sealed
	// graph (adjacency indexes exist only after Freeze).
	ErrGraphNotFrozen = errors.New("graph is not frozen")

	// ErrNodeNotFound is returned when a node index or symbol ID does not
	// exist in the graph.
	ErrNodeNotFound = errors.New("node not found in graph")

	// ErrSelfLoop is returned for an edge whose endpoints are the same
	// node. Self-dependencies carry no reachability information.
	ErrSelfLoop = errors.New("edge is a self-loop")

	// ErrInvalidConfidence is returned for an edge confidence outside [0,1].
	ErrInvalidConfidence = errors.New("edge confidence outside [0,1]")

	// ErrInvalidEdgeType is returned for an unknown edge type value.
	ErrInvalidEdgeType = errors.New("invalid edge type")

	// ErrMaxEdgesExceeded is returned when the configured edge limit is hit.
	ErrMaxEdgesExceeded = errors.New("maximum edge count exceeded")

	// ErrMaxNodesExceeded is returned when the symbol table exceeds the
	// configured node limit at graph construction.
	ErrMaxNodesExceeded = errors.New("maximum node count exceeded")

	// ErrBuildCancelled is returned when a build is cancelled via context.
	ErrBuildCancelled = errors.New("graph build cancelled")
)
