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
	"errors"
	"fmt"
	"testing"

	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
	"github.com/AleutianAI/ZombieGraph/services/zombie/symtab"
)

// testTable interns n symbols named fn0..fn(n-1) in r::f.go and freezes.
func testTable(t *testing.T, n int) *symtab.Snapshot {
	t.Helper()
	tab := symtab.New()
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("fn%d", i)
		_, _, err := tab.Intern(fact.Symbol{
			ID:       fact.GenerateID("r", "f.go", name),
			Name:     name,
			Kind:     fact.KindFunction,
			RepoID:   "r",
			FilePath: "f.go",
		})
		if err != nil {
			t.Fatalf("intern: %v", err)
		}
	}
	return tab.Freeze()
}

func TestEdgeTypeString(t *testing.T) {
	if EdgeCalls.String() != "calls" {
		t.Errorf("expected calls, got %s", EdgeCalls.String())
	}
	if EdgeType(200).String() != "unknown(200)" {
		t.Errorf("unexpected name for invalid type: %s", EdgeType(200).String())
	}
	parsed, err := ParseEdgeType("invokes")
	if err != nil || parsed != EdgeInvokes {
		t.Errorf("expected EdgeInvokes, got %v (%v)", parsed, err)
	}
	if _, err := ParseEdgeType("bogus"); !errors.Is(err, ErrInvalidEdgeType) {
		t.Errorf("expected ErrInvalidEdgeType, got %v", err)
	}
}

func TestTypeMask(t *testing.T) {
	m := MaskOf(EdgeCalls, EdgeInvokes)
	if !m.Has(EdgeCalls) || !m.Has(EdgeInvokes) {
		t.Error("mask missing selected types")
	}
	if m.Has(EdgeImports) {
		t.Error("mask includes unselected type")
	}
	for tt := EdgeType(0); tt < NumEdgeTypes; tt++ {
		if !AllEdgeTypes.Has(tt) {
			t.Errorf("AllEdgeTypes missing %s", tt)
		}
	}
}

func TestAddEdge(t *testing.T) {
	t.Run("rejects self loop", func(t *testing.T) {
		g, _ := New(testTable(t, 3))
		err := g.AddEdge(Edge{From: 1, To: 1, Type: EdgeCalls, Confidence: 1})
		if !errors.Is(err, ErrSelfLoop) {
			t.Errorf("expected ErrSelfLoop, got %v", err)
		}
	})

	t.Run("rejects confidence out of range", func(t *testing.T) {
		g, _ := New(testTable(t, 3))
		err := g.AddEdge(Edge{From: 0, To: 1, Type: EdgeCalls, Confidence: 1.2})
		if !errors.Is(err, ErrInvalidConfidence) {
			t.Errorf("expected ErrInvalidConfidence, got %v", err)
		}
	})

	t.Run("rejects out of range endpoint", func(t *testing.T) {
		g, _ := New(testTable(t, 3))
		err := g.AddEdge(Edge{From: 0, To: 7, Type: EdgeCalls, Confidence: 1})
		if !errors.Is(err, ErrNodeNotFound) {
			t.Errorf("expected ErrNodeNotFound, got %v", err)
		}
	})

	t.Run("dedups on from-to-type-context", func(t *testing.T) {
		g, _ := New(testTable(t, 3))
		e := Edge{From: 0, To: 1, Type: EdgeCalls, Confidence: 1, Context: "resolver"}
		if err := g.AddEdge(e); err != nil {
			t.Fatalf("first add: %v", err)
		}
		if err := g.AddEdge(e); err != nil {
			t.Fatalf("duplicate add: %v", err)
		}
		other := e
		other.Context = "sql"
		if err := g.AddEdge(other); err != nil {
			t.Fatalf("distinct context add: %v", err)
		}
		if err := g.Freeze(); err != nil {
			t.Fatalf("freeze: %v", err)
		}
		if g.NumEdges() != 2 {
			t.Errorf("expected 2 edges after dedup, got %d", g.NumEdges())
		}
	})

	t.Run("enforces edge limit", func(t *testing.T) {
		g, _ := New(testTable(t, 4), WithMaxEdges(1))
		if err := g.AddEdge(Edge{From: 0, To: 1, Type: EdgeCalls, Confidence: 1}); err != nil {
			t.Fatalf("first add: %v", err)
		}
		err := g.AddEdge(Edge{From: 0, To: 2, Type: EdgeCalls, Confidence: 1})
		if !errors.Is(err, ErrMaxEdgesExceeded) {
			t.Errorf("expected ErrMaxEdgesExceeded, got %v", err)
		}
	})

	t.Run("frozen graph rejects mutation", func(t *testing.T) {
		g, _ := New(testTable(t, 3))
		if err := g.Freeze(); err != nil {
			t.Fatalf("freeze: %v", err)
		}
		err := g.AddEdge(Edge{From: 0, To: 1, Type: EdgeCalls, Confidence: 1})
		if !errors.Is(err, ErrGraphFrozen) {
			t.Errorf("expected ErrGraphFrozen, got %v", err)
		}
	})
}

func TestFreezeAdjacency(t *testing.T) {
	g, _ := New(testTable(t, 5))
	// Insert deliberately out of order.
	edges := []Edge{
		{From: 2, To: 3, Type: EdgeCalls, Confidence: 1},
		{From: 0, To: 2, Type: EdgeCalls, Confidence: 1},
		{From: 0, To: 1, Type: EdgeCalls, Confidence: 1},
		{From: 3, To: 1, Type: EdgeReads, Confidence: 0.9},
	}
	for _, e := range edges {
		if err := g.AddEdge(e); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if err := g.Freeze(); err != nil {
		t.Fatalf("freeze: %v", err)
	}

	t.Run("outgoing edges sorted by target", func(t *testing.T) {
		var targets []uint32
		g.EachOutgoing(0, func(e *Edge) bool {
			targets = append(targets, e.To)
			return true
		})
		if len(targets) != 2 || targets[0] != 1 || targets[1] != 2 {
			t.Errorf("expected [1 2], got %v", targets)
		}
	})

	t.Run("incoming edges reachable", func(t *testing.T) {
		var froms []uint32
		g.EachIncoming(1, func(e *Edge) bool {
			froms = append(froms, e.From)
			return true
		})
		if len(froms) != 2 {
			t.Errorf("expected 2 incoming for node 1, got %v", froms)
		}
	})

	t.Run("degrees", func(t *testing.T) {
		if g.OutDegree(0) != 2 || g.InDegree(3) != 1 || g.OutDegree(4) != 0 {
			t.Errorf("unexpected degrees: out(0)=%d in(3)=%d out(4)=%d",
				g.OutDegree(0), g.InDegree(3), g.OutDegree(4))
		}
	})

	t.Run("edges by type", func(t *testing.T) {
		if got := len(g.EdgesByType(EdgeReads)); got != 1 {
			t.Errorf("expected 1 reads edge, got %d", got)
		}
		if got := len(g.EdgesByType(EdgeCalls)); got != 3 {
			t.Errorf("expected 3 calls edges, got %d", got)
		}
	})
}

func TestRemoveSourceFile(t *testing.T) {
	tab := symtab.New()
	mk := func(path, name string) fact.Symbol {
		return fact.Symbol{
			ID: fact.GenerateID("r", path, name), Name: name,
			Kind: fact.KindFunction, RepoID: "r", FilePath: path,
		}
	}
	for _, s := range []fact.Symbol{mk("a.go", "fa"), mk("b.go", "fb"), mk("c.go", "fc")} {
		if _, _, err := tab.Intern(s); err != nil {
			t.Fatalf("intern: %v", err)
		}
	}
	snap := tab.Freeze()
	g, _ := New(snap)
	if err := g.AddEdge(Edge{From: 0, To: 1, Type: EdgeCalls, Confidence: 1, SourceFile: "r::a.go"}); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge(Edge{From: 2, To: 1, Type: EdgeCalls, Confidence: 1, SourceFile: "r::c.go"}); err != nil {
		t.Fatal(err)
	}
	if err := g.RemoveSourceFile("r::a.go"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := g.Freeze(); err != nil {
		t.Fatalf("freeze: %v", err)
	}

	if !g.NodeRemoved(0) {
		t.Error("expected node 0 tombstoned")
	}
	if g.NodeRemoved(1) || g.NodeRemoved(2) {
		t.Error("unexpected tombstones")
	}
	if g.NumEdges() != 1 {
		t.Errorf("expected 1 surviving edge, got %d", g.NumEdges())
	}
	if got := len(g.EdgesByFile("r::c.go")); got != 1 {
		t.Errorf("expected c.go edge to survive, got %d", got)
	}
}

func TestClone(t *testing.T) {
	g, _ := New(testTable(t, 3))
	if _, err := g.Clone(); !errors.Is(err, ErrGraphNotFrozen) {
		t.Errorf("expected ErrGraphNotFrozen for building graph, got %v", err)
	}
	if err := g.AddEdge(Edge{From: 0, To: 1, Type: EdgeCalls, Confidence: 1, Context: "resolver"}); err != nil {
		t.Fatal(err)
	}
	if err := g.Freeze(); err != nil {
		t.Fatal(err)
	}

	clone, err := g.Clone()
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	// Duplicate of an existing edge stays deduped in the clone.
	if err := clone.AddEdge(Edge{From: 0, To: 1, Type: EdgeCalls, Confidence: 1, Context: "resolver"}); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if err := clone.AddEdge(Edge{From: 1, To: 2, Type: EdgeCalls, Confidence: 1}); err != nil {
		t.Fatalf("new edge: %v", err)
	}
	if err := clone.Freeze(); err != nil {
		t.Fatalf("freeze clone: %v", err)
	}
	if clone.NumEdges() != 2 {
		t.Errorf("expected clone to have 2 edges, got %d", clone.NumEdges())
	}
	if g.NumEdges() != 1 {
		t.Errorf("original mutated: %d edges", g.NumEdges())
	}
}

func TestRestoreNode(t *testing.T) {
	tab := symtab.New()
	mk := func(path, name string) fact.Symbol {
		return fact.Symbol{
			ID: fact.GenerateID("r", path, name), Name: name,
			Kind: fact.KindFunction, RepoID: "r", FilePath: path,
		}
	}
	for _, s := range []fact.Symbol{mk("a.go", "fa"), mk("a.go", "fb")} {
		if _, _, err := tab.Intern(s); err != nil {
			t.Fatalf("intern: %v", err)
		}
	}
	g, _ := New(tab.Freeze())
	if err := g.RemoveSourceFile("r::a.go"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := g.RestoreNode(0); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if err := g.Freeze(); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if g.NodeRemoved(0) {
		t.Error("expected node 0 restored")
	}
	if !g.NodeRemoved(1) {
		t.Error("expected node 1 to stay tombstoned")
	}
	if err := g.RestoreNode(1); !errors.Is(err, ErrGraphFrozen) {
		t.Errorf("expected ErrGraphFrozen after freeze, got %v", err)
	}
}

func TestRebase(t *testing.T) {
	g, _ := New(testTable(t, 2))
	if err := g.AddEdge(Edge{From: 0, To: 1, Type: EdgeCalls, Confidence: 1}); err != nil {
		t.Fatal(err)
	}
	// Edge to an index beyond the current table must fail until rebased.
	if err := g.AddEdge(Edge{From: 0, To: 2, Type: EdgeCalls, Confidence: 1}); err == nil {
		t.Fatal("expected out-of-range edge to fail before rebase")
	}

	bigger := testTable(t, 3)
	if err := g.Rebase(bigger); err != nil {
		t.Fatalf("rebase: %v", err)
	}
	if err := g.AddEdge(Edge{From: 0, To: 2, Type: EdgeCalls, Confidence: 1}); err != nil {
		t.Fatalf("edge after rebase: %v", err)
	}
	if err := g.Freeze(); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if g.NumNodes() != 3 || g.NumEdges() != 2 {
		t.Errorf("expected 3 nodes and 2 edges, got %d/%d", g.NumNodes(), g.NumEdges())
	}

	smaller, _ := New(testTable(t, 3))
	if err := smaller.Rebase(testTable(t, 1)); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound for shrinking rebase, got %v", err)
	}
}

func TestStats(t *testing.T) {
	g, _ := New(testTable(t, 4))
	if err := g.AddEdge(Edge{From: 0, To: 1, Type: EdgeCalls, Confidence: 1}); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge(Edge{From: 0, To: 2, Type: EdgeReads, Confidence: 1}); err != nil {
		t.Fatal(err)
	}
	if err := g.Freeze(); err != nil {
		t.Fatal(err)
	}
	s := g.Stats()
	if s.NumNodes != 4 || s.NumEdges != 2 {
		t.Errorf("unexpected counts: %+v", s)
	}
	if s.OrphanNodes != 1 {
		t.Errorf("expected 1 orphan (fn3), got %d", s.OrphanNodes)
	}
	if s.MaxOutDegree != 2 {
		t.Errorf("expected max out degree 2, got %d", s.MaxOutDegree)
	}
	if s.EdgesByType["calls"] != 1 || s.EdgesByType["reads"] != 1 {
		t.Errorf("unexpected per-type counts: %v", s.EdgesByType)
	}
}
