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
	"sort"
	"sync"

	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
	"github.com/AleutianAI/ZombieGraph/services/zombie/symtab"
)

// EdgeType classifies a dependency edge.
type EdgeType uint8

const (
	// EdgeCalls: function/method invocation.
	EdgeCalls EdgeType = iota
	// EdgeImports: module or package import.
	EdgeImports
	// EdgeExtends: class inheritance.
	EdgeExtends
	// EdgeImplements: interface implementation.
	EdgeImplements
	// EdgeUses: type usage (fields, parameters, locals).
	EdgeUses
	// EdgeReferences: generic reference that fits no narrower type.
	EdgeReferences
	// EdgeReads: read access to a table or data entity.
	EdgeReads
	// EdgeWrites: write access to a table or data entity.
	EdgeWrites
	// EdgeQueries: SQL access whose statement kind is unknown.
	EdgeQueries
	// EdgeInvokes: stored-procedure invocation.
	EdgeInvokes
	// EdgeTriggers: scheduler entry triggering a job symbol.
	EdgeTriggers
	// EdgeMaps: ORM mapping from an entity class to a table.
	EdgeMaps

	// NumEdgeTypes is the number of valid edge types, for sizing
	// per-type index arrays.
	NumEdgeTypes
)

var edgeTypeNames = map[EdgeType]string{
	EdgeCalls:      "calls",
	EdgeImports:    "imports",
	EdgeExtends:    "extends",
	EdgeImplements: "implements",
	EdgeUses:       "uses",
	EdgeReferences: "references",
	EdgeReads:      "reads",
	EdgeWrites:     "writes",
	EdgeQueries:    "queries",
	EdgeInvokes:    "invokes",
	EdgeTriggers:   "triggers",
	EdgeMaps:       "maps",
}

// String returns the edge type name, or "unknown(N)" for invalid values.
func (t EdgeType) String() string {
	if name, ok := edgeTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// Valid reports whether t is a defined edge type.
func (t EdgeType) Valid() bool { return t < NumEdgeTypes }

// ParseEdgeType converts a name back to an EdgeType.
func ParseEdgeType(name string) (EdgeType, error) {
	for t, n := range edgeTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidEdgeType, name)
}

// TypeMask selects a subset of edge types for traversal. The zero value
// selects nothing; AllEdgeTypes selects everything.
type TypeMask uint16

// AllEdgeTypes selects every defined edge type.
const AllEdgeTypes TypeMask = 1<<NumEdgeTypes - 1

// MaskOf builds a TypeMask from individual edge types.
func MaskOf(types ...EdgeType) TypeMask {
	var m TypeMask
	for _, t := range types {
		m |= 1 << t
	}
	return m
}

// Has reports whether the mask includes t.
func (m TypeMask) Has(t EdgeType) bool { return m&(1<<t) != 0 }

// StrongConfidence is the threshold above which an edge is considered a
// reliable dependency rather than a heuristic guess.
const StrongConfidence = 0.7

// Edge is a typed, directed dependency between two symbol indices.
//
// Context names the resolver or detector that produced the edge
// ("resolver", "orm", "sql", ...); it participates in deduplication so
// two detectors can independently assert the same relationship.
// SourceFile is the "repo::path" key of the file whose facts contributed
// the edge, used for per-file removal during incremental refresh.
type Edge struct {
	From       uint32
	To         uint32
	Type       EdgeType
	Confidence float64
	Context    string
	SourceFile string
	Location   fact.Location
}

// Strong reports whether the edge meets the StrongConfidence threshold.
func (e *Edge) Strong() bool { return e.Confidence >= StrongConfidence }

func (e *Edge) validate(numNodes int) error {
	if !e.Type.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidEdgeType, e.Type)
	}
	if e.From == e.To {
		return fmt.Errorf("%w: node %d", ErrSelfLoop, e.From)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidConfidence, e.Confidence)
	}
	if int(e.From) >= numNodes || int(e.To) >= numNodes {
		return fmt.Errorf("%w: edge %d->%d with %d nodes", ErrNodeNotFound, e.From, e.To, numNodes)
	}
	return nil
}

type edgeKey struct {
	from, to uint32
	typ      EdgeType
	context  string
}

// State is the graph lifecycle state.
type State int32

const (
	// StateBuilding allows mutation.
	StateBuilding State = iota
	// StateFrozen is immutable and indexed.
	StateFrozen
)

// Stats summarizes a frozen graph.
type Stats struct {
	NumNodes     int            `json:"num_nodes"`
	NumEdges     int            `json:"num_edges"`
	EdgesByType  map[string]int `json:"edges_by_type"`
	OrphanNodes  int            `json:"orphan_nodes"`
	RemovedNodes int            `json:"removed_nodes"`
	MaxOutDegree int            `json:"max_out_degree"`
}

// Options configure graph construction limits.
type Options struct {
	MaxNodes int
	MaxEdges int
}

// Option mutates Options.
type Option func(*Options)

// DefaultMaxNodes and DefaultMaxEdges bound a single generation. Sized
// for the million-node target with headroom.
const (
	DefaultMaxNodes = 2_000_000
	DefaultMaxEdges = 20_000_000
)

// WithMaxNodes overrides the node limit.
func WithMaxNodes(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxNodes = n
		}
	}
}

// WithMaxEdges overrides the edge limit.
func WithMaxEdges(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxEdges = n
		}
	}
}

// Graph is the dependency graph over a frozen symbol table. Node
// identity is the table's compact index; the graph stores only edges
// and adjacency.
type Graph struct {
	mu    sync.Mutex
	state State
	opts  Options

	table *symtab.Snapshot
	edges []Edge
	dedup map[edgeKey]struct{}

	removed map[uint32]struct{}

	// CSR adjacency, valid only when frozen. outAdj/inAdj hold indexes
	// into edges, grouped per node by the offset arrays.
	outOffsets []uint32
	outAdj     []uint32
	inOffsets  []uint32
	inAdj      []uint32

	edgesByType [NumEdgeTypes][]uint32
	edgesByFile map[string][]uint32

	removedBits []uint64
}

// New creates a building-state graph over a frozen symbol table.
func New(table *symtab.Snapshot, opts ...Option) (*Graph, error) {
	o := Options{MaxNodes: DefaultMaxNodes, MaxEdges: DefaultMaxEdges}
	for _, opt := range opts {
		opt(&o)
	}
	if table.Len() > o.MaxNodes {
		return nil, fmt.Errorf("%w: %d > %d", ErrMaxNodesExceeded, table.Len(), o.MaxNodes)
	}
	return &Graph{
		state:       StateBuilding,
		opts:        o,
		table:       table,
		dedup:       make(map[edgeKey]struct{}),
		removed:     make(map[uint32]struct{}),
		edgesByFile: make(map[string][]uint32),
	}, nil
}

// Table returns the symbol table snapshot backing this graph.
func (g *Graph) Table() *symtab.Snapshot { return g.table }

// State returns the current lifecycle state.
func (g *Graph) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// AddEdge inserts an edge during the building phase.
//
// Description:
//
//	Validates the edge (type, endpoints, confidence, self-loop) and
//	inserts it unless an edge with the same (from, to, type, context)
//	already exists, in which case the call is a silent no-op. Duplicate
//	tolerance is what makes re-ingestion of identical facts idempotent.
//
// Outputs:
//
//	error - ErrGraphFrozen, ErrMaxEdgesExceeded, or a validation error.
//
// Thread Safety:
//
//	Safe for concurrent use while building.
func (g *Graph) AddEdge(e Edge) error {
	if err := e.validate(g.table.Len()); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateBuilding {
		return ErrGraphFrozen
	}
	key := edgeKey{from: e.From, to: e.To, typ: e.Type, context: e.Context}
	if _, dup := g.dedup[key]; dup {
		return nil
	}
	if len(g.edges) >= g.opts.MaxEdges {
		return fmt.Errorf("%w: %d", ErrMaxEdgesExceeded, g.opts.MaxEdges)
	}
	g.dedup[key] = struct{}{}
	g.edges = append(g.edges, e)
	return nil
}

// RemoveSourceFile drops every edge contributed by the given source file
// ("repo::path") and tombstones the symbols declared in it. Used by
// incremental refresh before re-ingesting a changed file's facts.
// Building state only.
func (g *Graph) RemoveSourceFile(sourceKey string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateBuilding {
		return ErrGraphFrozen
	}
	for _, idx := range g.table.ByFile(sourceKey) {
		g.removed[idx] = struct{}{}
	}
	kept := g.edges[:0]
	for _, e := range g.edges {
		if e.SourceFile == sourceKey {
			delete(g.dedup, edgeKey{from: e.From, to: e.To, typ: e.Type, context: e.Context})
			continue
		}
		kept = append(kept, e)
	}
	g.edges = kept
	return nil
}

// RestoreNode clears the tombstone on a symbol, if any. Incremental
// refresh calls this for symbols re-declared by a changed file after
// RemoveSourceFile tombstoned the file's previous declarations. Building
// state only.
func (g *Graph) RestoreNode(idx uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateBuilding {
		return ErrGraphFrozen
	}
	delete(g.removed, idx)
	return nil
}

// Rebase swaps the graph's symbol table for a superset snapshot so edges
// may target symbols interned after the original freeze. The new
// snapshot must preserve every existing index. Building state only.
func (g *Graph) Rebase(snap *symtab.Snapshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateBuilding {
		return ErrGraphFrozen
	}
	if snap.Len() < g.table.Len() {
		return fmt.Errorf("%w: rebase snapshot has %d symbols, graph table has %d",
			ErrNodeNotFound, snap.Len(), g.table.Len())
	}
	g.table = snap
	return nil
}

// Freeze seals the graph: deterministically sorts edges, drops edges
// touching tombstoned nodes, builds forward/reverse CSR adjacency and the
// per-type and per-file indexes, and transitions to StateFrozen.
//
// Freeze is not idempotent; calling it twice returns ErrGraphFrozen.
func (g *Graph) Freeze() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateBuilding {
		return ErrGraphFrozen
	}

	n := g.table.Len()
	g.removedBits = make([]uint64, (n+63)/64)
	for idx := range g.removed {
		g.removedBits[idx/64] |= 1 << (idx % 64)
	}

	if len(g.removed) > 0 {
		kept := g.edges[:0]
		for _, e := range g.edges {
			if g.nodeRemoved(e.From) || g.nodeRemoved(e.To) {
				continue
			}
			kept = append(kept, e)
		}
		g.edges = kept
	}

	// Deterministic edge order independent of ingestion scheduling.
	sort.Slice(g.edges, func(i, j int) bool {
		a, b := &g.edges[i], &g.edges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Context < b.Context
	})

	g.outOffsets = make([]uint32, n+1)
	g.inOffsets = make([]uint32, n+1)
	for i := range g.edges {
		e := &g.edges[i]
		g.outOffsets[e.From+1]++
		g.inOffsets[e.To+1]++
	}
	for i := 0; i < n; i++ {
		g.outOffsets[i+1] += g.outOffsets[i]
		g.inOffsets[i+1] += g.inOffsets[i]
	}
	g.outAdj = make([]uint32, len(g.edges))
	g.inAdj = make([]uint32, len(g.edges))
	outCursor := make([]uint32, n)
	inCursor := make([]uint32, n)
	for i := range g.edges {
		e := &g.edges[i]
		g.outAdj[g.outOffsets[e.From]+outCursor[e.From]] = uint32(i)
		outCursor[e.From]++
		g.inAdj[g.inOffsets[e.To]+inCursor[e.To]] = uint32(i)
		inCursor[e.To]++

		g.edgesByType[e.Type] = append(g.edgesByType[e.Type], uint32(i))
		if e.SourceFile != "" {
			g.edgesByFile[e.SourceFile] = append(g.edgesByFile[e.SourceFile], uint32(i))
		}
	}

	g.dedup = nil
	g.state = StateFrozen
	return nil
}

func (g *Graph) nodeRemoved(idx uint32) bool {
	word := idx / 64
	if int(word) >= len(g.removedBits) {
		return false
	}
	return g.removedBits[word]&(1<<(idx%64)) != 0
}

// NodeRemoved reports whether the node was tombstoned before Freeze.
// Valid on frozen graphs only.
func (g *Graph) NodeRemoved(idx uint32) bool { return g.nodeRemoved(idx) }

// NumNodes returns the symbol table size (including tombstoned nodes).
func (g *Graph) NumNodes() int { return g.table.Len() }

// NumEdges returns the edge count. On a frozen graph this is the deduped,
// post-removal count.
func (g *Graph) NumEdges() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.edges)
}

// EdgeAt returns a pointer to the edge at a dense edge index. Frozen
// graphs only; the caller must not mutate the edge.
func (g *Graph) EdgeAt(i uint32) *Edge { return &g.edges[i] }

// EachOutgoing invokes fn for each outgoing edge of node, in the frozen
// deterministic order, until fn returns false. Frozen graphs only.
func (g *Graph) EachOutgoing(node uint32, fn func(e *Edge) bool) {
	if int(node) >= len(g.outOffsets)-1 {
		return
	}
	for _, ei := range g.outAdj[g.outOffsets[node]:g.outOffsets[node+1]] {
		if !fn(&g.edges[ei]) {
			return
		}
	}
}

// EachIncoming invokes fn for each incoming edge of node until fn
// returns false. Frozen graphs only.
func (g *Graph) EachIncoming(node uint32, fn func(e *Edge) bool) {
	if int(node) >= len(g.inOffsets)-1 {
		return
	}
	for _, ei := range g.inAdj[g.inOffsets[node]:g.inOffsets[node+1]] {
		if !fn(&g.edges[ei]) {
			return
		}
	}
}

// OutDegree returns the outgoing edge count of node on a frozen graph.
func (g *Graph) OutDegree(node uint32) int {
	if int(node) >= len(g.outOffsets)-1 {
		return 0
	}
	return int(g.outOffsets[node+1] - g.outOffsets[node])
}

// InDegree returns the incoming edge count of node on a frozen graph.
func (g *Graph) InDegree(node uint32) int {
	if int(node) >= len(g.inOffsets)-1 {
		return 0
	}
	return int(g.inOffsets[node+1] - g.inOffsets[node])
}

// OutgoingEdges returns a defensive copy of node's outgoing edges.
func (g *Graph) OutgoingEdges(node uint32) []Edge {
	var out []Edge
	g.EachOutgoing(node, func(e *Edge) bool {
		out = append(out, *e)
		return true
	})
	return out
}

// IncomingEdges returns a defensive copy of node's incoming edges.
func (g *Graph) IncomingEdges(node uint32) []Edge {
	var out []Edge
	g.EachIncoming(node, func(e *Edge) bool {
		out = append(out, *e)
		return true
	})
	return out
}

// EdgesByType returns a defensive copy of all edges of one type. Frozen
// graphs only.
func (g *Graph) EdgesByType(t EdgeType) []Edge {
	if !t.Valid() {
		return nil
	}
	idxs := g.edgesByType[t]
	out := make([]Edge, 0, len(idxs))
	for _, ei := range idxs {
		out = append(out, g.edges[ei])
	}
	return out
}

// EdgesByFile returns a defensive copy of all edges contributed by one
// source file ("repo::path"). Frozen graphs only.
func (g *Graph) EdgesByFile(sourceKey string) []Edge {
	idxs := g.edgesByFile[sourceKey]
	out := make([]Edge, 0, len(idxs))
	for _, ei := range idxs {
		out = append(out, g.edges[ei])
	}
	return out
}

// Edges returns a defensive copy of the full edge list in frozen order.
func (g *Graph) Edges() []Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Clone returns a building-state copy of a frozen graph over the same
// symbol table, for incremental rebuilds. Indexes are not copied; the
// clone re-derives them at its own Freeze.
func (g *Graph) Clone() (*Graph, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateFrozen {
		return nil, ErrGraphNotFrozen
	}
	clone := &Graph{
		state:       StateBuilding,
		opts:        g.opts,
		table:       g.table,
		edges:       make([]Edge, len(g.edges)),
		dedup:       make(map[edgeKey]struct{}, len(g.edges)),
		removed:     make(map[uint32]struct{}, len(g.removed)),
		edgesByFile: make(map[string][]uint32),
	}
	copy(clone.edges, g.edges)
	for _, e := range clone.edges {
		clone.dedup[edgeKey{from: e.From, to: e.To, typ: e.Type, context: e.Context}] = struct{}{}
	}
	for idx := range g.removed {
		clone.removed[idx] = struct{}{}
	}
	return clone, nil
}

// Stats computes summary statistics for a frozen graph.
func (g *Graph) Stats() Stats {
	s := Stats{
		NumNodes:     g.table.Len(),
		NumEdges:     len(g.edges),
		EdgesByType:  make(map[string]int),
		RemovedNodes: len(g.removed),
	}
	for t := EdgeType(0); t < NumEdgeTypes; t++ {
		if n := len(g.edgesByType[t]); n > 0 {
			s.EdgesByType[t.String()] = n
		}
	}
	for i := 0; i < s.NumNodes; i++ {
		idx := uint32(i)
		if g.nodeRemoved(idx) {
			continue
		}
		out := g.OutDegree(idx)
		if out > s.MaxOutDegree {
			s.MaxOutDegree = out
		}
		if out == 0 && g.InDegree(idx) == 0 {
			s.OrphanNodes++
		}
	}
	return s
}
