// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package symtab

import (
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
)

// numShards is the fixed shard count for the interning map. Power of two
// so the shard selector is a mask, sized so a few dozen ingestion workers
// rarely collide.
const numShards = 64

// DuplicateID records a symbol ID interned from two different files. The
// first registration wins; the collision is surfaced as a diagnostic so
// extractor bugs are visible without failing the build.
type DuplicateID struct {
	ID        string
	Index     uint32
	FirstFile string
	OtherFile string
}

type shard struct {
	mu   sync.Mutex
	byID map[string]uint32
}

// Table is the mutable, concurrently-internable symbol registry.
type Table struct {
	shards [numShards]shard

	mu      sync.Mutex
	symbols []fact.Symbol
	dups    []DuplicateID

	frozen atomic.Bool
}

// New creates an empty symbol table.
func New() *Table {
	t := &Table{}
	for i := range t.shards {
		t.shards[i].byID = make(map[string]uint32)
	}
	return t
}

// NewFromSnapshot thaws a frozen snapshot back into a mutable table.
//
// Description:
//
//	Rebuilds the interning state over the snapshot's symbols so an
//	incremental refresh can intern new symbols on top of a published
//	generation. Every existing symbol keeps its index; the snapshot
//	itself is not touched.
//
// Outputs:
//
//	*Table - A fresh mutable table whose first Len() indices mirror the
//	snapshot exactly.
//
// Thread Safety:
//
//	Standalone constructor; the returned table is safe for concurrent
//	use like any other.
func NewFromSnapshot(snap *Snapshot) *Table {
	t := New()
	t.symbols = make([]fact.Symbol, len(snap.symbols))
	copy(t.symbols, snap.symbols)
	t.dups = make([]DuplicateID, len(snap.dups))
	copy(t.dups, snap.dups)
	for id, idx := range snap.byID {
		t.shards[shardFor(id)].byID[id] = idx
	}
	return t
}

func shardFor(id string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(id))
	return h.Sum32() & (numShards - 1)
}

// Intern registers a symbol and returns its compact index.
//
// Description:
//
//	Assigns indices densely in first-intern order. Re-interning an
//	identical ID from the same file keeps the index and refreshes the
//	stored payload, so a file re-ingested incrementally carries its
//	updated annotations and locations without growing the table. The
//	same ID arriving from a different file keeps the first registration
//	and records a DuplicateID diagnostic.
//
// Inputs:
//
//	sym - The symbol to register. ID must be canonical (fact.GenerateID).
//
// Outputs:
//
//	uint32 - The symbol's index, valid for the table's lifetime.
//	bool - True if this call created the entry.
//	error - ErrTableFrozen after Freeze.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (t *Table) Intern(sym fact.Symbol) (uint32, bool, error) {
	if t.frozen.Load() {
		return 0, false, ErrTableFrozen
	}

	sh := &t.shards[shardFor(sym.ID)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if idx, ok := sh.byID[sym.ID]; ok {
		t.mu.Lock()
		existing := t.symbols[idx]
		if existing.RepoID != sym.RepoID || fact.NormalizePath(existing.FilePath) != fact.NormalizePath(sym.FilePath) {
			t.dups = append(t.dups, DuplicateID{
				ID:        sym.ID,
				Index:     idx,
				FirstFile: existing.FilePath,
				OtherFile: sym.FilePath,
			})
		} else {
			t.symbols[idx] = sym
		}
		t.mu.Unlock()
		return idx, false, nil
	}

	t.mu.Lock()
	idx := uint32(len(t.symbols))
	t.symbols = append(t.symbols, sym)
	t.mu.Unlock()

	sh.byID[sym.ID] = idx
	return idx, true, nil
}

// Lookup returns the index for a canonical ID, if interned.
func (t *Table) Lookup(id string) (uint32, bool) {
	sh := &t.shards[shardFor(id)]
	sh.mu.Lock()
	idx, ok := sh.byID[id]
	sh.mu.Unlock()
	return idx, ok
}

// Len returns the number of interned symbols.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.symbols)
}

// Duplicates returns a copy of the duplicate-ID diagnostics collected so
// far.
func (t *Table) Duplicates() []DuplicateID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]DuplicateID, len(t.dups))
	copy(out, t.dups)
	return out
}

// Freeze seals the table and builds the immutable Snapshot used by the
// graph, reachability, and query layers. Interning after Freeze fails
// with ErrTableFrozen. Freeze is idempotent in effect but each call
// builds a fresh Snapshot; callers freeze exactly once at the phase
// barrier.
func (t *Table) Freeze() *Snapshot {
	t.frozen.Store(true)

	t.mu.Lock()
	symbols := make([]fact.Symbol, len(t.symbols))
	copy(symbols, t.symbols)
	dups := make([]DuplicateID, len(t.dups))
	copy(dups, t.dups)
	t.mu.Unlock()

	snap := &Snapshot{
		symbols: symbols,
		dups:    dups,
		byID:    make(map[string]uint32, len(symbols)),
		byName:  make(map[string][]uint32),
		byFile:  make(map[string][]uint32),
	}
	for i := range symbols {
		s := &symbols[i]
		idx := uint32(i)
		snap.byID[s.ID] = idx
		snap.byName[s.Name] = append(snap.byName[s.Name], idx)
		key := s.RepoID + "::" + fact.NormalizePath(s.FilePath)
		snap.byFile[key] = append(snap.byFile[key], idx)
		if s.QualifiedName != "" && s.QualifiedName != s.Name {
			snap.byName[s.QualifiedName] = append(snap.byName[s.QualifiedName], idx)
		}
	}
	return snap
}

// Snapshot is the frozen, read-only view of a symbol table. Indices are
// dense: valid indices are [0, Len()).
type Snapshot struct {
	symbols []fact.Symbol
	dups    []DuplicateID
	byID    map[string]uint32
	byName  map[string][]uint32
	byFile  map[string][]uint32
}

// Len returns the number of symbols in the snapshot.
func (s *Snapshot) Len() int { return len(s.symbols) }

// Lookup returns the index for a canonical ID.
func (s *Snapshot) Lookup(id string) (uint32, bool) {
	idx, ok := s.byID[id]
	return idx, ok
}

// SymbolAt returns the symbol at an index. The second return is false for
// out-of-range indices.
func (s *Snapshot) SymbolAt(idx uint32) (fact.Symbol, bool) {
	if int(idx) >= len(s.symbols) {
		return fact.Symbol{}, false
	}
	return s.symbols[idx], true
}

// ByName returns the indices of all symbols with the given simple or
// qualified name. The returned slice is a defensive copy.
func (s *Snapshot) ByName(name string) []uint32 {
	found := s.byName[name]
	if len(found) == 0 {
		return nil
	}
	out := make([]uint32, len(found))
	copy(out, found)
	return out
}

// ByFile returns the indices of all symbols declared in the given file,
// keyed by "repo::path" (see fact.FileFacts.SourceKey). Defensive copy.
func (s *Snapshot) ByFile(sourceKey string) []uint32 {
	found := s.byFile[sourceKey]
	if len(found) == 0 {
		return nil
	}
	out := make([]uint32, len(found))
	copy(out, found)
	return out
}

// Duplicates returns the duplicate-ID diagnostics captured at freeze time.
func (s *Snapshot) Duplicates() []DuplicateID {
	out := make([]DuplicateID, len(s.dups))
	copy(out, s.dups)
	return out
}

// Symbols returns the dense symbol slice. Callers must treat it as
// read-only; it is shared with the snapshot itself.
func (s *Snapshot) Symbols() []fact.Symbol { return s.symbols }
