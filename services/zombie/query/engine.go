// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
	"github.com/AleutianAI/ZombieGraph/services/zombie/graph"
	"github.com/AleutianAI/ZombieGraph/services/zombie/reach"
	"github.com/AleutianAI/ZombieGraph/services/zombie/roots"
)

// Node is one symbol in a query result, with its classification and the
// depth at which the traversal found it.
type Node struct {
	Index    uint32          `json:"index"`
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Kind     fact.SymbolKind `json:"kind"`
	FilePath string          `json:"file_path"`
	Class    string          `json:"class,omitempty"`
	Depth    int32           `json:"depth"`
}

// TraversalResult is the outcome of a dependency/dependent walk or a
// class listing.
type TraversalResult struct {
	Origin       string `json:"origin,omitempty"`
	GenerationID string `json:"generation_id"`
	Nodes        []Node `json:"nodes"`
	Truncated    bool   `json:"truncated"`
}

// PathResult is the outcome of PathToNearestRoot. Length is the edge
// count from origin to the root, or -1 when no root can reach the
// symbol (Nodes is then empty). The path runs origin-first: each next
// node is a caller of the previous one, ending at the root.
type PathResult struct {
	Origin       string     `json:"origin"`
	GenerationID string     `json:"generation_id"`
	RootID       string     `json:"root_id,omitempty"`
	RootKind     roots.Kind `json:"root_kind,omitempty"`
	Nodes        []Node     `json:"nodes,omitempty"`
	Length       int        `json:"length"`
}

type cacheKey struct {
	op         string
	generation string
	id         string
	limit      int
	depth      int
	offset     int
	mask       graph.TypeMask
}

// Engine answers read-only queries against the holder's current
// generation. Hot results are cached per generation.
type Engine struct {
	holder *Holder
	cache  *lruCache[cacheKey, any]
	logger *slog.Logger
}

// EngineOption mutates an Engine under construction.
type EngineOption func(*Engine)

// WithCacheSize overrides the result cache capacity.
func WithCacheSize(n int) EngineOption {
	return func(e *Engine) { e.cache = newLRUCache[cacheKey, any](n) }
}

// WithEngineLogger overrides the logger.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates a query engine over a generation holder.
func NewEngine(holder *Holder, opts ...EngineOption) *Engine {
	e := &Engine{
		holder: holder,
		cache:  newLRUCache[cacheKey, any](1024),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dependencies returns the transitive outgoing closure of a symbol, to
// the configured depth and limit.
func (e *Engine) Dependencies(ctx context.Context, id string, opts ...Option) (*TraversalResult, error) {
	return e.traverse(ctx, "Dependencies", id, false, opts)
}

// Dependents returns the transitive incoming closure of a symbol: every
// symbol that depends on it, directly or through intermediaries.
func (e *Engine) Dependents(ctx context.Context, id string, opts ...Option) (*TraversalResult, error) {
	return e.traverse(ctx, "Dependents", id, true, opts)
}

func (e *Engine) traverse(ctx context.Context, op, id string, reverse bool, optList []Option) (result *TraversalResult, err error) {
	start := time.Now()
	ctx, span := startQuerySpan(ctx, op, id)
	defer span.End()
	defer func() { recordQueryMetrics(ctx, op, time.Since(start), err) }()

	gen, err := e.holder.Current()
	if err != nil {
		return nil, err
	}
	opts := buildOptions(optList)

	key := cacheKey{op: op, generation: gen.ID, id: id,
		limit: opts.Limit, depth: opts.MaxDepth, mask: opts.EdgeMask}
	if cached, ok := e.cache.Get(key); ok {
		return cached.(*TraversalResult), nil
	}

	origin, ok := gen.Table.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, id)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	result = &TraversalResult{Origin: id, GenerationID: gen.ID}

	type queueItem struct {
		idx   uint32
		depth int32
	}
	visited := reach.NewBitset(gen.Graph.NumNodes())
	visited.Set(origin)
	queue := []queueItem{{idx: origin, depth: 0}}
	processed := 0

	for len(queue) > 0 {
		if processed%contextCheckInterval == 0 {
			select {
			case <-ctx.Done():
				result.Truncated = true
				return result, nil
			default:
			}
		}
		processed++

		item := queue[0]
		queue = queue[1:]
		if item.depth >= int32(opts.MaxDepth) {
			continue
		}

		truncated := false
		visit := func(eg *graph.Edge) bool {
			next := eg.To
			if reverse {
				next = eg.From
			}
			if !opts.EdgeMask.Has(eg.Type) || visited.Get(next) || gen.Graph.NodeRemoved(next) {
				return true
			}
			if len(result.Nodes) >= opts.Limit {
				truncated = true
				return false
			}
			visited.Set(next)
			result.Nodes = append(result.Nodes, e.node(gen, next, item.depth+1))
			queue = append(queue, queueItem{idx: next, depth: item.depth + 1})
			return true
		}
		if reverse {
			gen.Graph.EachIncoming(item.idx, visit)
		} else {
			gen.Graph.EachOutgoing(item.idx, visit)
		}
		if truncated {
			result.Truncated = true
			break
		}
	}

	e.cache.Set(key, result)
	return result, nil
}

// PathToNearestRoot finds the shortest chain of callers from a symbol
// back to any root of the current generation.
//
// Description:
//
//	BFS over incoming edges from the symbol; the first root index
//	encountered is, by BFS invariant, a nearest one. Ties break on the
//	deterministic frozen edge order. An isolated or root-unreachable
//	symbol yields Length -1, not an error: "nothing reaches this" is a
//	valid answer, and for zombies the expected one.
func (e *Engine) PathToNearestRoot(ctx context.Context, id string) (result *PathResult, err error) {
	start := time.Now()
	ctx, span := startQuerySpan(ctx, "PathToNearestRoot", id)
	defer span.End()
	defer func() { recordQueryMetrics(ctx, "PathToNearestRoot", time.Since(start), err) }()

	gen, err := e.holder.Current()
	if err != nil {
		return nil, err
	}

	key := cacheKey{op: "PathToNearestRoot", generation: gen.ID, id: id}
	if cached, ok := e.cache.Get(key); ok {
		return cached.(*PathResult), nil
	}

	origin, ok := gen.Table.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, id)
	}

	rootByIndex := make(map[uint32]roots.Root, len(gen.Reach.Roots))
	for _, r := range gen.Reach.Roots {
		rootByIndex[r.Index] = r
	}

	result = &PathResult{Origin: id, GenerationID: gen.ID, Length: -1}

	if root, isRoot := rootByIndex[origin]; isRoot {
		result.RootID = root.ID
		result.RootKind = root.Kind
		result.Nodes = []Node{e.node(gen, origin, 0)}
		result.Length = 0
		e.cache.Set(key, result)
		return result, nil
	}

	visited := reach.NewBitset(gen.Graph.NumNodes())
	visited.Set(origin)
	parent := make(map[uint32]uint32)
	queue := []uint32{origin}
	var foundRoot *roots.Root
	processed := 0

	for len(queue) > 0 && foundRoot == nil {
		if processed%contextCheckInterval == 0 {
			select {
			case <-ctx.Done():
				return result, nil
			default:
			}
		}
		processed++

		node := queue[0]
		queue = queue[1:]
		gen.Graph.EachIncoming(node, func(eg *graph.Edge) bool {
			caller := eg.From
			if visited.Get(caller) || gen.Graph.NodeRemoved(caller) {
				return true
			}
			visited.Set(caller)
			parent[caller] = node
			if r, isRoot := rootByIndex[caller]; isRoot {
				foundRoot = &r
				return false
			}
			queue = append(queue, caller)
			return true
		})
	}

	if foundRoot != nil {
		// Walk root -> origin through the parent links, emitting
		// origin-first.
		var chain []uint32
		for at := foundRoot.Index; ; at = parent[at] {
			chain = append(chain, at)
			if at == origin {
				break
			}
		}
		for i := len(chain) - 1; i >= 0; i-- {
			result.Nodes = append(result.Nodes, e.node(gen, chain[i], int32(len(chain)-1-i)))
		}
		result.RootID = foundRoot.ID
		result.RootKind = foundRoot.Kind
		result.Length = len(chain) - 1
	}

	e.cache.Set(key, result)
	return result, nil
}

// Classification returns the liveness class of one symbol.
func (e *Engine) Classification(id string) (reach.Class, error) {
	gen, err := e.holder.Current()
	if err != nil {
		return 0, err
	}
	idx, ok := gen.Table.Lookup(id)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrSymbolNotFound, id)
	}
	class, ok := gen.Reach.ClassOf(idx)
	if !ok {
		return 0, ErrIncompleteAnalysis
	}
	return class, nil
}

// ListByClass pages through every symbol in a class, in index order.
func (e *Engine) ListByClass(ctx context.Context, class reach.Class, opts ...Option) (result *TraversalResult, err error) {
	start := time.Now()
	ctx, span := startQuerySpan(ctx, "ListByClass", class.String())
	defer span.End()
	defer func() { recordQueryMetrics(ctx, "ListByClass", time.Since(start), err) }()

	gen, err := e.holder.Current()
	if err != nil {
		return nil, err
	}
	if gen.Reach.Classes == nil {
		return nil, ErrIncompleteAnalysis
	}
	o := buildOptions(opts)

	key := cacheKey{op: "ListByClass", generation: gen.ID, id: class.String(),
		limit: o.Limit, offset: o.Offset}
	if cached, ok := e.cache.Get(key); ok {
		return cached.(*TraversalResult), nil
	}

	result = &TraversalResult{GenerationID: gen.ID}
	matched := 0
	for i, c := range gen.Reach.Classes {
		if c != class {
			continue
		}
		matched++
		if matched <= o.Offset {
			continue
		}
		if len(result.Nodes) >= o.Limit {
			result.Truncated = true
			break
		}
		result.Nodes = append(result.Nodes, e.node(gen, uint32(i), gen.Reach.Dist[i]))
	}

	e.cache.Set(key, result)
	return result, nil
}

// CacheStats exposes hit/miss counters for the result cache.
func (e *Engine) CacheStats() (hits, misses int64) {
	return e.cache.Stats()
}

func (e *Engine) node(gen *Generation, idx uint32, depth int32) Node {
	s, _ := gen.Table.SymbolAt(idx)
	n := Node{
		Index:    idx,
		ID:       s.ID,
		Name:     s.Name,
		Kind:     s.Kind,
		FilePath: s.FilePath,
		Depth:    depth,
	}
	if class, ok := gen.Reach.ClassOf(idx); ok {
		n.Class = class.String()
	}
	return n
}
