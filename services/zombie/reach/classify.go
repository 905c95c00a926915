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
	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
	"github.com/AleutianAI/ZombieGraph/services/zombie/graph"
	"github.com/AleutianAI/ZombieGraph/services/zombie/semantic"
)

// classify assigns a class to every node of a completely traversed graph.
//
// Unreached nodes split three ways. A node with no incoming edges and
// nothing outgoing into the live set is dead code: nothing feeds it and
// removing it cannot sever a live path. A node whose incoming edges all
// originate from other unreached nodes is orphaned: it only exists for
// the sake of dead callers. Everything else unreached is plain
// unreachable, notably a node with no callers whose own targets are
// live, since its removal is what severed those targets' extra path.
// Phantoms are never dead code or orphaned: they stand for database-side
// entities whose liveness the engine cannot see.
func (a *Analyzer) classify(g *graph.Graph, r *Result) {
	n := g.NumNodes()
	table := g.Table()
	r.Classes = make([]Class, n)
	r.Summary = Summary{}

	for i := 0; i < n; i++ {
		idx := uint32(i)
		switch {
		case g.NodeRemoved(idx):
			r.Classes[idx] = ClassExcluded
			r.Summary.Excluded++
		case r.visited.Get(idx):
			r.Classes[idx] = ClassLive
			r.Summary.Live++
		default:
			r.Classes[idx] = a.classifyUnreached(g, table.Symbols(), r, idx)
			switch r.Classes[idx] {
			case ClassDeadCode:
				r.Summary.DeadCode++
			case ClassOrphaned:
				r.Summary.Orphaned++
			default:
				r.Summary.Unreachable++
			}
		}
	}
}

func (a *Analyzer) classifyUnreached(g *graph.Graph, symbols []fact.Symbol, r *Result, idx uint32) Class {
	if int(idx) < len(symbols) && semantic.IsPhantom(&symbols[idx]) {
		return ClassUnreachable
	}
	liveIncoming := false
	hasIncoming := false
	g.EachIncoming(idx, func(e *graph.Edge) bool {
		if g.NodeRemoved(e.From) {
			return true
		}
		hasIncoming = true
		if r.visited.Get(e.From) {
			// Possible when the traversal filtered this edge out
			// (confidence or type mask); the node is not part of a
			// purely dead structure then.
			liveIncoming = true
			return false
		}
		return true
	})
	if liveIncoming {
		return ClassUnreachable
	}
	if hasIncoming {
		return ClassOrphaned
	}
	liveOutgoing := false
	g.EachOutgoing(idx, func(e *graph.Edge) bool {
		if r.visited.Get(e.To) && !g.NodeRemoved(e.To) {
			liveOutgoing = true
			return false
		}
		return true
	})
	if liveOutgoing {
		return ClassUnreachable
	}
	return ClassDeadCode
}
