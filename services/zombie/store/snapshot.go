// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"bufio"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
	"github.com/AleutianAI/ZombieGraph/services/zombie/graph"
	"github.com/AleutianAI/ZombieGraph/services/zombie/query"
	"github.com/AleutianAI/ZombieGraph/services/zombie/reach"
	"github.com/AleutianAI/ZombieGraph/services/zombie/symtab"
)

// snapshotMagic identifies a generation snapshot file.
var snapshotMagic = [4]byte{'Z', 'G', 'R', 'F'}

// SchemaVersion is bumped whenever the snapshot payload layout changes.
// Loading a snapshot with any other version fails with
// ErrSchemaMismatch; callers then rebuild from the fact cache.
const SchemaVersion uint16 = 1

// snapshotPayload is the gob body of a snapshot file. Symbols are
// stored in dense index order so re-interning them reproduces the same
// indices the edges and reachability arrays refer to.
type snapshotPayload struct {
	GenerationID string
	CreatedAt    time.Time
	Symbols      []fact.Symbol
	Edges        []graph.Edge
	Reach        reach.Result
}

// WriteSnapshot serializes one complete generation to path.
//
// Description:
//
//	Writes to a temporary file in the target directory, fsyncs, then
//	atomically renames over path. A crash mid-write leaves the
//	previous snapshot intact. Partial generations are rejected:
//	snapshotting only makes sense once classification has run.
//
// Thread Safety: Safe to call concurrently for distinct paths.
func WriteSnapshot(path string, gen *query.Generation) error {
	if gen == nil || gen.Graph == nil || gen.Table == nil || gen.Reach == nil {
		return errors.New("incomplete generation")
	}
	if gen.Reach.Partial {
		return errors.New("cannot snapshot a partial reachability result")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	w := bufio.NewWriter(tmp)
	if _, err := w.Write(snapshotMagic[:]); err != nil {
		return fmt.Errorf("write snapshot header: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, SchemaVersion); err != nil {
		return fmt.Errorf("write snapshot header: %w", err)
	}

	payload := snapshotPayload{
		GenerationID: gen.ID,
		CreatedAt:    gen.CreatedAt,
		Symbols:      gen.Table.Symbols(),
		Edges:        gen.Graph.Edges(),
		Reach:        *gen.Reach,
	}
	if err := gob.NewEncoder(w).Encode(&payload); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return syncDir(dir)
}

// LoadSnapshot reads a snapshot and reconstructs a queryable
// generation: symbols re-interned, graph rebuilt and frozen, the
// reachability result rehydrated. The restored generation keeps the ID
// and timestamp it was written with.
func LoadSnapshot(path string) (*query.Generation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: short header", ErrCorruptSnapshot)
	}
	if magic != snapshotMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptSnapshot, magic[:])
	}
	var version uint16
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: short header", ErrCorruptSnapshot)
	}
	if version != SchemaVersion {
		return nil, fmt.Errorf("%w: file is v%d, binary expects v%d", ErrSchemaMismatch, version, SchemaVersion)
	}

	var payload snapshotPayload
	if err := gob.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	tab := symtab.New()
	for i := range payload.Symbols {
		if _, _, err := tab.Intern(payload.Symbols[i]); err != nil {
			return nil, fmt.Errorf("%w: restore symbol %s: %v", ErrCorruptSnapshot, payload.Symbols[i].ID, err)
		}
	}
	snap := tab.Freeze()

	g, err := graph.New(snap)
	if err != nil {
		return nil, err
	}
	for i := range payload.Edges {
		if err := g.AddEdge(payload.Edges[i]); err != nil {
			return nil, fmt.Errorf("%w: restore edge %d: %v", ErrCorruptSnapshot, i, err)
		}
	}
	if err := g.Freeze(); err != nil {
		return nil, err
	}

	result := payload.Reach
	if len(result.Dist) != snap.Len() {
		return nil, fmt.Errorf("%w: reach arrays cover %d nodes, table has %d",
			ErrCorruptSnapshot, len(result.Dist), snap.Len())
	}
	result.Rehydrate()

	return &query.Generation{
		ID:        payload.GenerationID,
		Graph:     g,
		Table:     snap,
		Reach:     &result,
		CreatedAt: payload.CreatedAt,
	}, nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return nil
	}
	defer d.Close()
	// Directory fsync is best effort; some filesystems reject it.
	_ = d.Sync()
	return nil
}
