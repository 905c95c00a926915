// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
)

// DirtyEntry records one source file needing attention before the
// graph can be trusted again.
type DirtyEntry struct {
	// RepoID and Path identify the file in fact-cache terms.
	RepoID string
	Path   string

	// Removed marks a deletion: the cached facts must be dropped
	// rather than refreshed.
	Removed bool

	// Source indicates how the file became dirty ("watcher", "api",
	// "manual").
	Source string

	MarkedAt time.Time
}

func (e DirtyEntry) sourceKey() string {
	return e.RepoID + "::" + fact.NormalizePath(e.Path)
}

// DirtyTracker accumulates changed source files between refresh
// cycles.
//
// Description:
//
//	Watchers and API callers mark files dirty; the refresh loop drains
//	the set, reconciles the fact cache, and clears what it processed.
//	A removal always wins over a prior modification mark for the same
//	file.
//
// Thread Safety:
//
//	All methods are safe for concurrent use.
type DirtyTracker struct {
	mu      sync.RWMutex
	entries map[string]DirtyEntry // source key -> entry
}

// NewDirtyTracker creates an empty tracker.
func NewDirtyTracker() *DirtyTracker {
	return &DirtyTracker{entries: make(map[string]DirtyEntry)}
}

// MarkDirty records a modified file.
func (d *DirtyTracker) MarkDirty(repoID, path, source string) {
	d.mark(DirtyEntry{RepoID: repoID, Path: path, Source: source})
}

// MarkRemoved records a deleted file.
func (d *DirtyTracker) MarkRemoved(repoID, path, source string) {
	d.mark(DirtyEntry{RepoID: repoID, Path: path, Source: source, Removed: true})
}

func (d *DirtyTracker) mark(e DirtyEntry) {
	e.MarkedAt = time.Now()
	key := e.sourceKey()

	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.entries[key]; ok && prev.Removed && !e.Removed {
		// A re-created file supersedes its deletion.
		e.Removed = false
	}
	d.entries[key] = e
}

// HasDirty reports whether any files await processing.
func (d *DirtyTracker) HasDirty() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries) > 0
}

// Count returns the number of dirty files.
func (d *DirtyTracker) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Entries returns the dirty set sorted by source key, without clearing
// it. Call Clear after the entries have been processed.
func (d *DirtyTracker) Entries() []DirtyEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]DirtyEntry, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].sourceKey() < out[j].sourceKey() })
	return out
}

// Clear removes processed entries. An entry marked again since it was
// read (newer MarkedAt) survives, so late changes are never lost.
func (d *DirtyTracker) Clear(processed []DirtyEntry) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	cleared := 0
	for _, e := range processed {
		key := e.sourceKey()
		if cur, ok := d.entries[key]; ok && !cur.MarkedAt.After(e.MarkedAt) {
			delete(d.entries, key)
			cleared++
		}
	}
	return cleared
}

// ClearAll empties the tracker and returns how many entries it held.
func (d *DirtyTracker) ClearAll() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.entries)
	d.entries = make(map[string]DirtyEntry)
	return n
}
