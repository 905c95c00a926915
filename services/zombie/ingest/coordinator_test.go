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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
	"github.com/AleutianAI/ZombieGraph/services/zombie/query"
	"github.com/AleutianAI/ZombieGraph/services/zombie/reach"
	"github.com/AleutianAI/ZombieGraph/services/zombie/store"
)

func newTestCoordinator(t *testing.T, opts ...Option) (*Coordinator, *query.Holder) {
	t.Helper()
	cache, err := store.OpenFactCache(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	holder := query.NewHolder()
	return NewCoordinator(cache, holder, opts...), holder
}

func funcSymbol(repo, path, name string) fact.Symbol {
	return fact.Symbol{
		ID:       fact.GenerateID(repo, path, name),
		Name:     name,
		Kind:     fact.KindFunction,
		RepoID:   repo,
		FilePath: path,
	}
}

func callRef(repo, path, from, target string) fact.Reference {
	return fact.Reference{
		FromID:     fact.GenerateID(repo, path, from),
		TargetName: target,
		Kind:       fact.RefCall,
	}
}

// serviceFacts models a small service: main calls handler, handler
// calls helper; legacyEntry and legacyImpl form a dead cluster.
func serviceFacts() []*fact.FileFacts {
	return []*fact.FileFacts{
		{
			RepoID:   "svc-a",
			FilePath: "cmd/main.go",
			Symbols:  []fact.Symbol{funcSymbol("svc-a", "cmd/main.go", "main")},
			References: []fact.Reference{
				callRef("svc-a", "cmd/main.go", "main", "handler"),
			},
		},
		{
			RepoID:   "svc-a",
			FilePath: "internal/handler.go",
			Symbols: []fact.Symbol{
				funcSymbol("svc-a", "internal/handler.go", "handler"),
				funcSymbol("svc-a", "internal/handler.go", "helper"),
			},
			References: []fact.Reference{
				callRef("svc-a", "internal/handler.go", "handler", "helper"),
			},
		},
		{
			RepoID:   "svc-a",
			FilePath: "internal/legacy.go",
			Symbols: []fact.Symbol{
				funcSymbol("svc-a", "internal/legacy.go", "legacyEntry"),
				funcSymbol("svc-a", "internal/legacy.go", "legacyImpl"),
			},
			References: []fact.Reference{
				callRef("svc-a", "internal/legacy.go", "legacyEntry", "legacyImpl"),
			},
		},
	}
}

func TestIngestBuildsGeneration(t *testing.T) {
	c, holder := newTestCoordinator(t)
	ctx := context.Background()

	report, err := c.Ingest(ctx, serviceFacts())
	require.NoError(t, err)

	assert.Equal(t, 3, report.FilesIngested)
	assert.Equal(t, 5, report.Symbols)
	assert.Equal(t, 2, report.Edges)
	assert.Equal(t, 1, report.Roots, "main should be a builtin root")
	assert.Equal(t, 3, report.Summary.Live, "main, handler, helper")
	assert.Equal(t, 1, report.Summary.DeadCode, "legacyEntry heads the dead cluster")
	assert.Equal(t, 1, report.Summary.Orphaned, "legacyImpl only has a dead caller")
	assert.Zero(t, report.Summary.Unreachable)

	gen, err := holder.Current()
	require.NoError(t, err)
	assert.Equal(t, report.GenerationID, gen.ID)

	engine := query.NewEngine(holder)
	class, err := engine.Classification(fact.GenerateID("svc-a", "internal/legacy.go", "legacyEntry"))
	require.NoError(t, err)
	assert.Equal(t, reach.ClassDeadCode, class)
	class, err = engine.Classification(fact.GenerateID("svc-a", "internal/legacy.go", "legacyImpl"))
	require.NoError(t, err)
	assert.Equal(t, reach.ClassOrphaned, class)
}

func TestIngestIdempotent(t *testing.T) {
	c, holder := newTestCoordinator(t)
	ctx := context.Background()

	first, err := c.Ingest(ctx, serviceFacts())
	require.NoError(t, err)

	// Same batch again: nothing changed, no rebuild, same generation.
	second, err := c.Ingest(ctx, serviceFacts())
	require.NoError(t, err)
	assert.Zero(t, second.FilesIngested)
	assert.Equal(t, 3, second.FilesUnchanged)
	assert.Equal(t, first.GenerationID, second.GenerationID)

	gen, err := holder.Current()
	require.NoError(t, err)
	assert.Equal(t, first.GenerationID, gen.ID)
}

func TestIngestRejectsInvalidFileOnly(t *testing.T) {
	c, _ := newTestCoordinator(t)

	batch := serviceFacts()
	batch = append(batch, &fact.FileFacts{
		RepoID:   "svc-a",
		FilePath: "../../etc/passwd",
	})
	report, err := c.Ingest(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 3, report.FilesIngested)
	assert.Equal(t, 1, report.FilesFailed)
	assert.Equal(t, 5, report.Symbols, "valid files still build")
}

func TestRemoveFilesRebuilds(t *testing.T) {
	c, holder := newTestCoordinator(t)
	ctx := context.Background()

	first, err := c.Ingest(ctx, serviceFacts())
	require.NoError(t, err)

	report, err := c.RemoveFiles(ctx, "svc-a", []string{"internal/legacy.go"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesRemoved)
	assert.NotEqual(t, first.GenerationID, report.GenerationID)
	assert.Equal(t, 3, report.Symbols, "legacy symbols gone")
	assert.Zero(t, report.Summary.DeadCode)

	gen, err := holder.Current()
	require.NoError(t, err)
	_, ok := gen.Table.Lookup(fact.GenerateID("svc-a", "internal/legacy.go", "legacyEntry"))
	assert.False(t, ok)

	// Removing a file that is not cached is a no-op.
	again, err := c.RemoveFiles(ctx, "svc-a", []string{"internal/legacy.go"})
	require.NoError(t, err)
	assert.Zero(t, again.FilesRemoved)
	assert.Equal(t, report.GenerationID, again.GenerationID)
}

func TestIngestMergesChangedFile(t *testing.T) {
	c, holder := newTestCoordinator(t)
	ctx := context.Background()

	first, err := c.Ingest(ctx, serviceFacts())
	require.NoError(t, err)

	// legacy.go rewritten: legacyEntry deleted, legacyImpl now calls the
	// live handler.
	changed := &fact.FileFacts{
		RepoID:   "svc-a",
		FilePath: "internal/legacy.go",
		Symbols: []fact.Symbol{
			funcSymbol("svc-a", "internal/legacy.go", "legacyImpl"),
		},
		References: []fact.Reference{
			callRef("svc-a", "internal/legacy.go", "legacyImpl", "handler"),
		},
	}
	report, err := c.Ingest(ctx, []*fact.FileFacts{changed})
	require.NoError(t, err)

	assert.Equal(t, 1, report.FilesIngested)
	assert.NotEqual(t, first.GenerationID, report.GenerationID)
	assert.Equal(t, 5, report.Symbols, "merged table keeps the tombstoned entry")
	assert.Equal(t, 3, report.Edges, "old legacy edge replaced, unchanged edges kept")
	assert.Equal(t, 3, report.Summary.Live)
	assert.Equal(t, 1, report.Summary.Unreachable, "legacyImpl now calls into the live set")
	assert.Equal(t, 1, report.Summary.Excluded, "deleted legacyEntry is tombstoned")
	assert.Zero(t, report.Summary.DeadCode)

	engine := query.NewEngine(holder)
	class, err := engine.Classification(fact.GenerateID("svc-a", "internal/legacy.go", "legacyImpl"))
	require.NoError(t, err)
	assert.Equal(t, reach.ClassUnreachable, class)
	class, err = engine.Classification(fact.GenerateID("svc-a", "internal/legacy.go", "legacyEntry"))
	require.NoError(t, err)
	assert.Equal(t, reach.ClassExcluded, class)
}

func TestIngestMergeAddsSymbols(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Ingest(ctx, serviceFacts())
	require.NoError(t, err)

	// handler.go rewritten with a new helper called from handler.
	changed := &fact.FileFacts{
		RepoID:   "svc-a",
		FilePath: "internal/handler.go",
		Symbols: []fact.Symbol{
			funcSymbol("svc-a", "internal/handler.go", "handler"),
			funcSymbol("svc-a", "internal/handler.go", "helper"),
			funcSymbol("svc-a", "internal/handler.go", "helperNew"),
		},
		References: []fact.Reference{
			callRef("svc-a", "internal/handler.go", "handler", "helper"),
			callRef("svc-a", "internal/handler.go", "handler", "helperNew"),
		},
	}
	report, err := c.Ingest(ctx, []*fact.FileFacts{changed})
	require.NoError(t, err)

	assert.Equal(t, 6, report.Symbols, "new symbol joins the merged table")
	assert.Equal(t, 4, report.Summary.Live, "main, handler, helper, helperNew")
	assert.Zero(t, report.Summary.Excluded, "every prior symbol re-declared")
	assert.Equal(t, 1, report.Summary.DeadCode)
	assert.Equal(t, 1, report.Summary.Orphaned)
}

func TestIngestWithSemanticFragments(t *testing.T) {
	c, _ := newTestCoordinator(t)

	batch := serviceFacts()
	batch = append(batch, &fact.FileFacts{
		RepoID:   "svc-a",
		FilePath: "internal/repo.go",
		Symbols: []fact.Symbol{
			funcSymbol("svc-a", "internal/repo.go", "saveOrder"),
		},
		Fragments: []fact.Fragment{
			{
				Kind:    fact.FragmentProcedureCall,
				OwnerID: fact.GenerateID("svc-a", "internal/repo.go", "saveOrder"),
				Text:    "CALL billing.settle_order",
			},
		},
	})

	report, err := c.Ingest(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Phantoms, "undeclared procedure becomes a phantom")
	assert.Equal(t, 1, report.SemanticLinks)
	assert.Equal(t, 7, report.Symbols, "5 service symbols + saveOrder + phantom")
}

func TestDirtyTracker(t *testing.T) {
	d := NewDirtyTracker()

	t.Run("removal wins over modification", func(t *testing.T) {
		d.MarkDirty("svc-a", "a.go", "watcher")
		d.MarkRemoved("svc-a", "a.go", "watcher")
		entries := d.Entries()
		require.Len(t, entries, 1)
		assert.True(t, entries[0].Removed)
	})

	t.Run("recreate supersedes removal", func(t *testing.T) {
		d.MarkDirty("svc-a", "a.go", "watcher")
		entries := d.Entries()
		require.Len(t, entries, 1)
		assert.False(t, entries[0].Removed)
	})

	t.Run("clear is snapshot-safe", func(t *testing.T) {
		entries := d.Entries()
		// A newer mark for the same file survives the clear.
		d.MarkRemoved("svc-a", "a.go", "manual")
		cleared := d.Clear(entries)
		assert.Zero(t, cleared)
		assert.True(t, d.HasDirty())

		assert.Equal(t, 1, d.ClearAll())
		assert.False(t, d.HasDirty())
	})
}

func TestSyncDirtyRemovals(t *testing.T) {
	c, holder := newTestCoordinator(t)
	ctx := context.Background()

	first, err := c.Ingest(ctx, serviceFacts())
	require.NoError(t, err)

	tracker := NewDirtyTracker()
	tracker.MarkRemoved("svc-a", "internal/legacy.go", "watcher")
	tracker.MarkDirty("svc-a", "internal/handler.go", "watcher")

	report, err := c.SyncDirty(ctx, tracker)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.FilesRemoved)
	assert.NotEqual(t, first.GenerationID, report.GenerationID)
	assert.False(t, tracker.HasDirty(), "processed entries cleared")

	gen, err := holder.Current()
	require.NoError(t, err)
	assert.Equal(t, report.GenerationID, gen.ID)

	// Nothing dirty: no rebuild.
	report, err = c.SyncDirty(ctx, tracker)
	require.NoError(t, err)
	assert.Nil(t, report)
}

func TestTrackerHandler(t *testing.T) {
	tracker := NewDirtyTracker()
	handler := TrackerHandler(tracker)

	handler([]Change{
		{RepoID: "svc-a", Path: "a.go", Op: OpWrite},
		{RepoID: "svc-a", Path: "b.go", Op: OpRemove},
		{RepoID: "svc-a", Path: "c.go", Op: OpRename},
	})

	entries := tracker.Entries()
	require.Len(t, entries, 3)
	assert.False(t, entries[0].Removed)
	assert.True(t, entries[1].Removed)
	assert.True(t, entries[2].Removed)
	for _, e := range entries {
		assert.Equal(t, "watcher", e.Source)
	}
}

func TestDedupeChanges(t *testing.T) {
	changes := []Change{
		{Path: "a.go", Op: OpCreate},
		{Path: "b.go", Op: OpWrite},
		{Path: "a.go", Op: OpWrite},
		{Path: "a.go", Op: OpRemove},
	}
	deduped := dedupeChanges(changes)
	require.Len(t, deduped, 2)
	assert.Equal(t, OpRemove, deduped[0].Op, "last event per path wins")
	assert.Equal(t, "b.go", deduped[1].Path)
}
