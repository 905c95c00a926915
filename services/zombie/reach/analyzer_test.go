// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reach

import (
	"context"
	"fmt"
	"testing"

	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
	"github.com/AleutianAI/ZombieGraph/services/zombie/graph"
	"github.com/AleutianAI/ZombieGraph/services/zombie/roots"
	"github.com/AleutianAI/ZombieGraph/services/zombie/semantic"
	"github.com/AleutianAI/ZombieGraph/services/zombie/symtab"
)

type edge struct {
	from, to uint32
	typ      graph.EdgeType
}

// buildGraph freezes a graph over named nodes with calls edges by
// default. Node i is named n<i> in r::f.go.
func buildGraph(t *testing.T, numNodes int, edges []edge) *graph.Graph {
	t.Helper()
	tab := symtab.New()
	for i := 0; i < numNodes; i++ {
		name := fmt.Sprintf("n%d", i)
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
	g, err := graph.New(tab.Freeze())
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	for _, e := range edges {
		typ := e.typ
		if err := g.AddEdge(graph.Edge{From: e.from, To: e.to, Type: typ, Confidence: 1}); err != nil {
			t.Fatalf("edge %d->%d: %v", e.from, e.to, err)
		}
	}
	if err := g.Freeze(); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	return g
}

func rootAt(idx uint32) roots.Root {
	return roots.Root{Index: idx, ID: fmt.Sprintf("r::f.go::n%d", idx), Kind: roots.KindMain, Rule: "test"}
}

func TestRun(t *testing.T) {
	t.Run("isolated node is dead code", func(t *testing.T) {
		// main(0) -> a(1) -> b(2); d(3) has no edges. Root: main.
		g := buildGraph(t, 4, []edge{
			{0, 1, graph.EdgeCalls},
			{1, 2, graph.EdgeCalls},
		})
		r, err := New().Run(context.Background(), g, []roots.Root{rootAt(0)})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if r.Partial {
			t.Fatal("expected complete run")
		}
		for idx, want := range map[uint32]Class{0: ClassLive, 1: ClassLive, 2: ClassLive, 3: ClassDeadCode} {
			if got, _ := r.ClassOf(idx); got != want {
				t.Errorf("node %d: expected %s, got %s", idx, want, got)
			}
		}
		if r.Dist[2] != 2 {
			t.Errorf("expected dist(b)=2, got %d", r.Dist[2])
		}
		if r.Dist[3] != -1 {
			t.Errorf("expected unreached d, got dist %d", r.Dist[3])
		}
	})

	t.Run("uncalled caller of live code is unreachable", func(t *testing.T) {
		// main(0) -> a(1); c(2) -> a(1). Root: main. c's target is
		// live, c itself is not, and nothing feeds c.
		g := buildGraph(t, 3, []edge{
			{0, 1, graph.EdgeCalls},
			{2, 1, graph.EdgeCalls},
		})
		r, err := New().Run(context.Background(), g, []roots.Root{rootAt(0)})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		for idx, want := range map[uint32]Class{0: ClassLive, 1: ClassLive, 2: ClassUnreachable} {
			if got, _ := r.ClassOf(idx); got != want {
				t.Errorf("node %d: expected %s, got %s", idx, want, got)
			}
		}
	})

	t.Run("dead cycle members are orphaned", func(t *testing.T) {
		// Root 0 alone. Cluster: 1 -> 2 -> 3, 3 -> 1 (cycle). Every
		// member's incoming edges come from unreached nodes.
		g := buildGraph(t, 4, []edge{
			{1, 2, graph.EdgeCalls},
			{2, 3, graph.EdgeCalls},
			{3, 1, graph.EdgeCalls},
		})
		r, err := New().Run(context.Background(), g, []roots.Root{rootAt(0)})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		for _, idx := range []uint32{1, 2, 3} {
			if got, _ := r.ClassOf(idx); got != ClassOrphaned {
				t.Errorf("cluster node %d: expected orphaned, got %s", idx, got)
			}
		}
		if got, _ := r.ClassOf(0); got != ClassLive {
			t.Errorf("root misclassified: %s", got)
		}
		if r.Summary.Orphaned != 3 || r.Summary.Live != 1 {
			t.Errorf("unexpected summary: %+v", r.Summary)
		}
	})

	t.Run("dead chain splits entry and body", func(t *testing.T) {
		// Root 0 alone; 1 -> 2. The entry of the dead chain is dead
		// code, the node it keeps alive is orphaned.
		g := buildGraph(t, 3, []edge{{1, 2, graph.EdgeCalls}})
		r, err := New().Run(context.Background(), g, []roots.Root{rootAt(0)})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if got, _ := r.ClassOf(1); got != ClassDeadCode {
			t.Errorf("chain entry: expected dead_code, got %s", got)
		}
		if got, _ := r.ClassOf(2); got != ClassOrphaned {
			t.Errorf("chain body: expected orphaned, got %s", got)
		}
	})

	t.Run("empty root set leaves everything unreached", func(t *testing.T) {
		g := buildGraph(t, 2, []edge{{0, 1, graph.EdgeCalls}})
		r, err := New().Run(context.Background(), g, nil)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if r.Summary.Live != 0 {
			t.Errorf("expected no live nodes, got %d", r.Summary.Live)
		}
		if got, _ := r.ClassOf(0); got != ClassDeadCode {
			t.Errorf("expected 0 dead code, got %s", got)
		}
		if got, _ := r.ClassOf(1); got != ClassOrphaned {
			t.Errorf("expected 1 orphaned (only dead callers), got %s", got)
		}
	})

	t.Run("multi source distances take nearest root", func(t *testing.T) {
		// 0 -> 1 -> 2, root at 0 and 2.
		g := buildGraph(t, 3, []edge{
			{0, 1, graph.EdgeCalls},
			{1, 2, graph.EdgeCalls},
		})
		r, err := New().Run(context.Background(), g, []roots.Root{rootAt(0), rootAt(2)})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if r.Dist[2] != 0 {
			t.Errorf("root distance should be 0, got %d", r.Dist[2])
		}
	})

	t.Run("edge mask restricts traversal", func(t *testing.T) {
		g := buildGraph(t, 3, []edge{
			{0, 1, graph.EdgeCalls},
			{0, 2, graph.EdgeImports},
		})
		r, err := New(WithEdgeMask(graph.MaskOf(graph.EdgeCalls))).
			Run(context.Background(), g, []roots.Root{rootAt(0)})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if !r.Reached(1) || r.Reached(2) {
			t.Errorf("mask not applied: reached(1)=%v reached(2)=%v", r.Reached(1), r.Reached(2))
		}
	})

	t.Run("unfrozen graph rejected", func(t *testing.T) {
		tab := symtab.New()
		g, _ := graph.New(tab.Freeze())
		if _, err := New().Run(context.Background(), g, nil); err != graph.ErrGraphNotFrozen {
			t.Errorf("expected ErrGraphNotFrozen, got %v", err)
		}
	})
}

func TestPhantomNeverDead(t *testing.T) {
	tab := symtab.New()
	caller := fact.Symbol{
		ID: fact.GenerateID("r", "a.go", "caller"), Name: "caller",
		Kind: fact.KindFunction, RepoID: "r", FilePath: "a.go",
	}
	phantom := fact.Symbol{
		ID: fact.GenerateID(semantic.PhantomRepo, "procedures", "sp_x"), Name: "sp_x",
		Kind: fact.KindProcedure, RepoID: semantic.PhantomRepo, FilePath: "procedures",
		Metadata: map[string]string{semantic.PhantomMetadataKey: "true"},
	}
	for _, s := range []fact.Symbol{caller, phantom} {
		if _, _, err := tab.Intern(s); err != nil {
			t.Fatal(err)
		}
	}
	g, _ := graph.New(tab.Freeze())
	if err := g.AddEdge(graph.Edge{From: 0, To: 1, Type: graph.EdgeInvokes, Confidence: 0.75}); err != nil {
		t.Fatal(err)
	}
	if err := g.Freeze(); err != nil {
		t.Fatal(err)
	}

	t.Run("phantom live when caller live", func(t *testing.T) {
		r, err := New().Run(context.Background(), g, []roots.Root{{Index: 0, ID: caller.ID}})
		if err != nil {
			t.Fatal(err)
		}
		if got, _ := r.ClassOf(1); got != ClassLive {
			t.Errorf("expected phantom live, got %s", got)
		}
	})

	t.Run("unreached phantom never dead code", func(t *testing.T) {
		r, err := New().Run(context.Background(), g, nil)
		if err != nil {
			t.Fatal(err)
		}
		if got, _ := r.ClassOf(1); got != ClassUnreachable {
			t.Errorf("expected unreachable phantom, got %s", got)
		}
	})
}

// chainGraph builds 0 -> 1 -> ... -> n-1.
func chainGraph(t *testing.T, n int) *graph.Graph {
	edges := make([]edge, 0, n-1)
	for i := 0; i < n-1; i++ {
		edges = append(edges, edge{uint32(i), uint32(i + 1), graph.EdgeCalls})
	}
	return buildGraph(t, n, edges)
}

func TestBudgetAndResume(t *testing.T) {
	g := chainGraph(t, 50)

	a := New(WithMaxSteps(10))
	r, err := a.Run(context.Background(), g, []roots.Root{rootAt(0)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !r.Partial || r.Checkpoint == nil {
		t.Fatal("expected partial result with checkpoint")
	}
	if r.Classes != nil {
		t.Error("partial result must not be classified")
	}

	resumes := 0
	for r.Partial {
		resumes++
		if resumes > 20 {
			t.Fatal("resume did not converge")
		}
		if r, err = a.Resume(context.Background(), g, r); err != nil {
			t.Fatalf("resume %d: %v", resumes, err)
		}
	}

	full, err := New().Run(context.Background(), g, []roots.Root{rootAt(0)})
	if err != nil {
		t.Fatalf("unbudgeted run: %v", err)
	}
	for i := range full.Dist {
		if full.Dist[i] != r.Dist[i] {
			t.Errorf("node %d: resumed dist %d vs full %d", i, r.Dist[i], full.Dist[i])
		}
		if full.Classes[i] != r.Classes[i] {
			t.Errorf("node %d: resumed class %s vs full %s", i, r.Classes[i], full.Classes[i])
		}
	}
}

func TestDeterminism(t *testing.T) {
	// Wide graph to force the parallel expansion path.
	n := 1200
	edges := make([]edge, 0, n)
	for i := 1; i < n; i++ {
		edges = append(edges, edge{0, uint32(i), graph.EdgeCalls})
	}
	// A second layer with irregular fan-in.
	for i := 1; i < n-1; i += 7 {
		edges = append(edges, edge{uint32(i), uint32(i + 1), graph.EdgeCalls})
	}
	g := buildGraph(t, n, edges)

	r1, err := New(WithWorkers(8)).Run(context.Background(), g, []roots.Root{rootAt(0)})
	if err != nil {
		t.Fatal(err)
	}
	r2, err := New(WithWorkers(2)).Run(context.Background(), g, []roots.Root{rootAt(0)})
	if err != nil {
		t.Fatal(err)
	}
	for i := range r1.Dist {
		if r1.Dist[i] != r2.Dist[i] {
			t.Fatalf("node %d: dist differs across worker counts: %d vs %d", i, r1.Dist[i], r2.Dist[i])
		}
	}
}

func TestMonotonicity(t *testing.T) {
	base := []edge{{0, 1, graph.EdgeCalls}, {2, 3, graph.EdgeCalls}}
	g1 := buildGraph(t, 4, base)
	g2 := buildGraph(t, 4, append(append([]edge{}, base...), edge{1, 2, graph.EdgeCalls}))

	r1, err := New().Run(context.Background(), g1, []roots.Root{rootAt(0)})
	if err != nil {
		t.Fatal(err)
	}
	r2, err := New().Run(context.Background(), g2, []roots.Root{rootAt(0)})
	if err != nil {
		t.Fatal(err)
	}
	// Adding an edge never shrinks the reachable set.
	for i := uint32(0); i < 4; i++ {
		if r1.Reached(i) && !r2.Reached(i) {
			t.Errorf("node %d lost reachability after adding an edge", i)
		}
	}
	if r2.Summary.Live < r1.Summary.Live {
		t.Errorf("live count shrank: %d -> %d", r1.Summary.Live, r2.Summary.Live)
	}
}

func TestNodesInClass(t *testing.T) {
	g := buildGraph(t, 4, []edge{{0, 1, graph.EdgeCalls}, {2, 3, graph.EdgeCalls}})
	r, err := New().Run(context.Background(), g, []roots.Root{rootAt(0)})
	if err != nil {
		t.Fatal(err)
	}
	live := r.NodesInClass(ClassLive)
	if len(live) != 2 || live[0] != 0 || live[1] != 1 {
		t.Errorf("unexpected live set: %v", live)
	}
}
