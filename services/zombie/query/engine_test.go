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
	"errors"
	"fmt"
	"testing"

	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
	"github.com/AleutianAI/ZombieGraph/services/zombie/graph"
	"github.com/AleutianAI/ZombieGraph/services/zombie/reach"
	"github.com/AleutianAI/ZombieGraph/services/zombie/roots"
	"github.com/AleutianAI/ZombieGraph/services/zombie/symtab"
)

func nodeID(i int) string {
	return fact.GenerateID("r", "f.go", fmt.Sprintf("n%d", i))
}

// buildGeneration freezes a calls-edge graph over numNodes nodes, runs
// reachability from the given roots, and publishes a generation.
func buildGeneration(t *testing.T, numNodes int, edges [][2]uint32, rootIdx []uint32) (*Holder, *Generation) {
	t.Helper()
	tab := symtab.New()
	for i := 0; i < numNodes; i++ {
		_, _, err := tab.Intern(fact.Symbol{
			ID:       nodeID(i),
			Name:     fmt.Sprintf("n%d", i),
			Kind:     fact.KindFunction,
			RepoID:   "r",
			FilePath: "f.go",
		})
		if err != nil {
			t.Fatalf("intern: %v", err)
		}
	}
	snap := tab.Freeze()
	g, err := graph.New(snap)
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	for _, e := range edges {
		if err := g.AddEdge(graph.Edge{From: e[0], To: e[1], Type: graph.EdgeCalls, Confidence: 1}); err != nil {
			t.Fatalf("edge: %v", err)
		}
	}
	if err := g.Freeze(); err != nil {
		t.Fatalf("freeze: %v", err)
	}

	rs := make([]roots.Root, 0, len(rootIdx))
	for _, idx := range rootIdx {
		rs = append(rs, roots.Root{Index: idx, ID: nodeID(int(idx)), Kind: roots.KindMain, Rule: "test"})
	}
	result, err := reach.New().Run(context.Background(), g, rs)
	if err != nil {
		t.Fatalf("reach: %v", err)
	}

	holder := NewHolder()
	gen := NewGeneration(g, snap, result)
	holder.Swap(gen)
	return holder, gen
}

func TestDependencies(t *testing.T) {
	// 0 -> 1 -> 2 -> 3, 0 -> 4
	holder, _ := buildGeneration(t, 5,
		[][2]uint32{{0, 1}, {1, 2}, {2, 3}, {0, 4}}, []uint32{0})
	e := NewEngine(holder)

	t.Run("transitive closure", func(t *testing.T) {
		r, err := e.Dependencies(context.Background(), nodeID(0))
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(r.Nodes) != 4 {
			t.Fatalf("expected 4 dependencies, got %d", len(r.Nodes))
		}
		if r.Nodes[0].Depth != 1 {
			t.Errorf("first hop depth: %d", r.Nodes[0].Depth)
		}
	})

	t.Run("depth limit", func(t *testing.T) {
		r, err := e.Dependencies(context.Background(), nodeID(0), WithMaxDepth(1))
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(r.Nodes) != 2 {
			t.Errorf("expected direct deps only, got %d", len(r.Nodes))
		}
	})

	t.Run("limit truncates", func(t *testing.T) {
		r, err := e.Dependencies(context.Background(), nodeID(0), WithLimit(1))
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(r.Nodes) != 1 || !r.Truncated {
			t.Errorf("expected truncated single result, got %d truncated=%v", len(r.Nodes), r.Truncated)
		}
	})

	t.Run("unknown symbol", func(t *testing.T) {
		_, err := e.Dependencies(context.Background(), "r::f.go::ghost")
		if !errors.Is(err, ErrSymbolNotFound) {
			t.Errorf("expected ErrSymbolNotFound, got %v", err)
		}
	})

	t.Run("classes attached", func(t *testing.T) {
		r, err := e.Dependencies(context.Background(), nodeID(0))
		if err != nil {
			t.Fatal(err)
		}
		for _, n := range r.Nodes {
			if n.Class != "live" {
				t.Errorf("node %s: expected live, got %q", n.Name, n.Class)
			}
		}
	})
}

func TestDependents(t *testing.T) {
	holder, _ := buildGeneration(t, 4,
		[][2]uint32{{0, 2}, {1, 2}, {2, 3}}, []uint32{0})
	e := NewEngine(holder)

	r, err := e.Dependents(context.Background(), nodeID(3))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(r.Nodes) != 3 {
		t.Fatalf("expected 3 dependents, got %d", len(r.Nodes))
	}
	if r.Nodes[0].Index != 2 || r.Nodes[0].Depth != 1 {
		t.Errorf("expected direct dependent first, got %+v", r.Nodes[0])
	}
}

func TestPathToNearestRoot(t *testing.T) {
	t.Run("shortest path found", func(t *testing.T) {
		// Roots 0 and 3. 0 -> 1 -> 2; 3 -> 2. Nearest root of 2 is 3.
		holder, _ := buildGeneration(t, 4,
			[][2]uint32{{0, 1}, {1, 2}, {3, 2}}, []uint32{0, 3})
		e := NewEngine(holder)

		r, err := e.PathToNearestRoot(context.Background(), nodeID(2))
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if r.Length != 1 {
			t.Fatalf("expected length 1, got %d", r.Length)
		}
		if r.RootID != nodeID(3) {
			t.Errorf("expected nearest root n3, got %s", r.RootID)
		}
		if len(r.Nodes) != 2 || r.Nodes[0].ID != nodeID(2) || r.Nodes[1].ID != nodeID(3) {
			t.Errorf("unexpected path: %+v", r.Nodes)
		}
	})

	t.Run("root itself has zero path", func(t *testing.T) {
		holder, _ := buildGeneration(t, 2, [][2]uint32{{0, 1}}, []uint32{0})
		e := NewEngine(holder)
		r, err := e.PathToNearestRoot(context.Background(), nodeID(0))
		if err != nil {
			t.Fatal(err)
		}
		if r.Length != 0 || len(r.Nodes) != 1 {
			t.Errorf("expected zero-length path, got %+v", r)
		}
	})

	t.Run("isolated symbol is no-path not error", func(t *testing.T) {
		holder, _ := buildGeneration(t, 3, [][2]uint32{{0, 1}}, []uint32{0})
		e := NewEngine(holder)
		r, err := e.PathToNearestRoot(context.Background(), nodeID(2))
		if err != nil {
			t.Fatalf("isolated symbol must not error: %v", err)
		}
		if r.Length != -1 || len(r.Nodes) != 0 {
			t.Errorf("expected no-path result, got %+v", r)
		}
	})
}

func TestListByClass(t *testing.T) {
	// 0 (root) -> 1. Dead chain 2 -> 3, isolated 4.
	holder, _ := buildGeneration(t, 5,
		[][2]uint32{{0, 1}, {2, 3}}, []uint32{0})
	e := NewEngine(holder)

	t.Run("lists dead code", func(t *testing.T) {
		r, err := e.ListByClass(context.Background(), reach.ClassDeadCode)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(r.Nodes) != 2 || r.Nodes[0].Index != 2 || r.Nodes[1].Index != 4 {
			t.Errorf("expected nodes 2 and 4 dead, got %+v", r.Nodes)
		}
	})

	t.Run("lists orphaned", func(t *testing.T) {
		r, err := e.ListByClass(context.Background(), reach.ClassOrphaned)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(r.Nodes) != 1 || r.Nodes[0].Index != 3 {
			t.Errorf("expected node 3 orphaned, got %+v", r.Nodes)
		}
	})

	t.Run("pagination", func(t *testing.T) {
		r, err := e.ListByClass(context.Background(), reach.ClassLive, WithLimit(1))
		if err != nil {
			t.Fatal(err)
		}
		if len(r.Nodes) != 1 || !r.Truncated {
			t.Fatalf("expected truncated page, got %+v", r)
		}
		r2, err := e.ListByClass(context.Background(), reach.ClassLive, WithLimit(1), WithOffset(1))
		if err != nil {
			t.Fatal(err)
		}
		if len(r2.Nodes) != 1 || r2.Nodes[0].Index == r.Nodes[0].Index {
			t.Errorf("expected distinct second page, got %+v", r2.Nodes)
		}
	})
}

func TestGenerationSwap(t *testing.T) {
	holder, gen1 := buildGeneration(t, 2, [][2]uint32{{0, 1}}, []uint32{0})
	e := NewEngine(holder)

	r1, err := e.Dependencies(context.Background(), nodeID(0))
	if err != nil {
		t.Fatal(err)
	}
	if r1.GenerationID != gen1.ID {
		t.Errorf("expected generation %s, got %s", gen1.ID, r1.GenerationID)
	}

	// Publish a new generation with an extra edge.
	holder2, gen2 := buildGeneration(t, 3, [][2]uint32{{0, 1}, {1, 2}}, []uint32{0})
	_ = holder2
	old := holder.Swap(gen2)
	if old != gen1 {
		t.Error("swap did not return previous generation")
	}

	r2, err := e.Dependencies(context.Background(), nodeID(0))
	if err != nil {
		t.Fatal(err)
	}
	if r2.GenerationID != gen2.ID || len(r2.Nodes) != 2 {
		t.Errorf("expected new generation results, got gen=%s nodes=%d", r2.GenerationID, len(r2.Nodes))
	}

	// The old generation object remains queryable by holders of the
	// pointer (in-flight queries).
	if _, ok := gen1.Table.Lookup(nodeID(0)); !ok {
		t.Error("old generation table lost")
	}
}

func TestNoGeneration(t *testing.T) {
	e := NewEngine(NewHolder())
	if _, err := e.Dependencies(context.Background(), "x"); !errors.Is(err, ErrNoGeneration) {
		t.Errorf("expected ErrNoGeneration, got %v", err)
	}
}

func TestOptionClamping(t *testing.T) {
	o := buildOptions([]Option{WithLimit(99999999), WithMaxDepth(5000)})
	if o.Limit != MaxLimit {
		t.Errorf("limit not clamped: %d", o.Limit)
	}
	if o.MaxDepth != MaxTraversalDepth {
		t.Errorf("depth not clamped: %d", o.MaxDepth)
	}
	o = buildOptions([]Option{WithLimit(-1), WithMaxDepth(0)})
	if o.Limit != DefaultLimit || o.MaxDepth != DefaultMaxDepth {
		t.Errorf("invalid values should fall back to defaults: %+v", o)
	}
}
