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
	"github.com/AleutianAI/ZombieGraph/services/zombie/roots"
)

// Class is the liveness classification of one symbol.
type Class uint8

const (
	// ClassLive: reachable from at least one root.
	ClassLive Class = iota
	// ClassDeadCode: unreachable with no incoming edges and no outgoing
	// edge into the live set. These are the classic zombies: nothing
	// feeds them and deleting them cannot sever a live path.
	ClassDeadCode
	// ClassOrphaned: unreachable and every incoming edge originates from
	// another unreachable node. Only dead callers keep it around.
	ClassOrphaned
	// ClassUnreachable: unreachable without qualifying as dead code or
	// orphan (e.g. an uncalled caller of live code, or a phantom).
	ClassUnreachable
	// ClassExcluded: tombstoned by an incremental removal; not analyzed.
	ClassExcluded
)

var classNames = map[Class]string{
	ClassLive:        "live",
	ClassDeadCode:    "dead_code",
	ClassOrphaned:    "orphaned",
	ClassUnreachable: "unreachable",
	ClassExcluded:    "excluded",
}

// String returns the class name.
func (c Class) String() string {
	if n, ok := classNames[c]; ok {
		return n
	}
	return "unknown"
}

// ParseClass converts a class name back to a Class.
func ParseClass(name string) (Class, bool) {
	for c, n := range classNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}

// Summary holds per-class node counts.
type Summary struct {
	Live        int `json:"live"`
	DeadCode    int `json:"dead_code"`
	Orphaned    int `json:"orphaned"`
	Unreachable int `json:"unreachable"`
	Excluded    int `json:"excluded"`
}

// Checkpoint captures traversal state after a completed BFS layer so an
// exhausted run can continue exactly where it stopped.
type Checkpoint struct {
	Frontier []uint32 `json:"frontier"`
	Level    int32    `json:"level"`
	Steps    int      `json:"steps"`
}

// Result is the outcome of a reachability run over one frozen graph.
//
// Dist holds the BFS distance from the nearest root, -1 for unreached
// nodes. Classes is nil while Partial is true; classification happens
// only once the traversal has covered the whole reachable set.
type Result struct {
	RunID   string       `json:"run_id"`
	Roots   []roots.Root `json:"roots"`
	Dist    []int32      `json:"dist"`
	Classes []Class      `json:"classes,omitempty"`
	Summary Summary      `json:"summary"`

	Partial    bool        `json:"partial"`
	Checkpoint *Checkpoint `json:"checkpoint,omitempty"`

	StepsUsed     int   `json:"steps_used"`
	DurationMilli int64 `json:"duration_ms"`

	visited Bitset
}

// Rehydrate rebuilds the internal reached set from Dist. Needed after a
// Result is restored from a snapshot, where only exported fields
// survive serialization.
func (r *Result) Rehydrate() {
	r.visited = NewBitset(len(r.Dist))
	for i, d := range r.Dist {
		if d >= 0 {
			r.visited.Set(uint32(i))
		}
	}
}

// Reached reports whether a node was reached from the root set.
func (r *Result) Reached(idx uint32) bool {
	return r.visited.Get(idx)
}

// ClassOf returns the classification of a node. Valid only on complete
// results.
func (r *Result) ClassOf(idx uint32) (Class, bool) {
	if r.Classes == nil || int(idx) >= len(r.Classes) {
		return 0, false
	}
	return r.Classes[idx], true
}

// NodesInClass returns the indices of every node in the given class, in
// ascending order. Valid only on complete results.
func (r *Result) NodesInClass(c Class) []uint32 {
	var out []uint32
	for i, cl := range r.Classes {
		if cl == c {
			out = append(out, uint32(i))
		}
	}
	return out
}
