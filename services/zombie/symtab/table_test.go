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
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
)

func testSymbol(repo, path, name string) fact.Symbol {
	return fact.Symbol{
		ID:       fact.GenerateID(repo, path, name),
		Name:     name,
		Kind:     fact.KindFunction,
		RepoID:   repo,
		FilePath: path,
	}
}

func TestIntern(t *testing.T) {
	t.Run("assigns dense indices in order", func(t *testing.T) {
		tab := New()
		for i := 0; i < 5; i++ {
			idx, created, err := tab.Intern(testSymbol("r", "f.go", fmt.Sprintf("fn%d", i)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !created {
				t.Errorf("symbol %d: expected created", i)
			}
			if idx != uint32(i) {
				t.Errorf("expected index %d, got %d", i, idx)
			}
		}
		if tab.Len() != 5 {
			t.Errorf("expected 5 symbols, got %d", tab.Len())
		}
	})

	t.Run("same file re-intern is idempotent", func(t *testing.T) {
		tab := New()
		s := testSymbol("r", "f.go", "fn")
		first, _, _ := tab.Intern(s)
		second, created, err := tab.Intern(s)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if created {
			t.Error("expected re-intern to not create")
		}
		if first != second {
			t.Errorf("expected stable index, got %d then %d", first, second)
		}
		if len(tab.Duplicates()) != 0 {
			t.Errorf("expected no duplicate diagnostics, got %d", len(tab.Duplicates()))
		}
	})

	t.Run("cross-file collision keeps first and records diagnostic", func(t *testing.T) {
		tab := New()
		a := testSymbol("r", "a.go", "fn")
		b := a
		b.FilePath = "b.go"
		// b still claims a's ID.
		firstIdx, _, _ := tab.Intern(a)
		idx, created, err := tab.Intern(b)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if created || idx != firstIdx {
			t.Errorf("expected collision to resolve to first index %d, got %d (created=%v)", firstIdx, idx, created)
		}
		dups := tab.Duplicates()
		if len(dups) != 1 {
			t.Fatalf("expected 1 duplicate diagnostic, got %d", len(dups))
		}
		if dups[0].FirstFile != "a.go" || dups[0].OtherFile != "b.go" {
			t.Errorf("unexpected diagnostic: %+v", dups[0])
		}
	})

	t.Run("frozen table rejects intern", func(t *testing.T) {
		tab := New()
		tab.Freeze()
		_, _, err := tab.Intern(testSymbol("r", "f.go", "fn"))
		if !errors.Is(err, ErrTableFrozen) {
			t.Errorf("expected ErrTableFrozen, got %v", err)
		}
	})

	t.Run("concurrent intern is consistent", func(t *testing.T) {
		tab := New()
		const workers = 8
		const perWorker = 200
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					path := fmt.Sprintf("file%d.go", w)
					if _, _, err := tab.Intern(testSymbol("r", path, fmt.Sprintf("fn%d", i))); err != nil {
						t.Errorf("worker %d: %v", w, err)
						return
					}
				}
			}(w)
		}
		wg.Wait()
		if tab.Len() != workers*perWorker {
			t.Errorf("expected %d symbols, got %d", workers*perWorker, tab.Len())
		}
		snap := tab.Freeze()
		seen := make(map[uint32]bool)
		for w := 0; w < workers; w++ {
			for i := 0; i < perWorker; i++ {
				id := fact.GenerateID("r", fmt.Sprintf("file%d.go", w), fmt.Sprintf("fn%d", i))
				idx, ok := snap.Lookup(id)
				if !ok {
					t.Fatalf("missing symbol %s", id)
				}
				if seen[idx] {
					t.Fatalf("index %d assigned twice", idx)
				}
				seen[idx] = true
			}
		}
	})
}

func TestSnapshot(t *testing.T) {
	tab := New()
	a := testSymbol("r", "a.go", "Handler")
	a.QualifiedName = "pkg.Handler"
	b := testSymbol("r", "b.go", "Handler")
	c := testSymbol("r", "a.go", "helper")
	for _, s := range []fact.Symbol{a, b, c} {
		if _, _, err := tab.Intern(s); err != nil {
			t.Fatalf("intern: %v", err)
		}
	}
	snap := tab.Freeze()

	t.Run("lookup and symbol round trip", func(t *testing.T) {
		idx, ok := snap.Lookup(a.ID)
		if !ok {
			t.Fatal("expected lookup to succeed")
		}
		got, ok := snap.SymbolAt(idx)
		if !ok || got.ID != a.ID {
			t.Errorf("expected %s, got %+v", a.ID, got)
		}
	})

	t.Run("by name includes qualified alias", func(t *testing.T) {
		if got := len(snap.ByName("Handler")); got != 2 {
			t.Errorf("expected 2 Handler symbols, got %d", got)
		}
		if got := len(snap.ByName("pkg.Handler")); got != 1 {
			t.Errorf("expected 1 qualified match, got %d", got)
		}
	})

	t.Run("by file groups declarations", func(t *testing.T) {
		if got := len(snap.ByFile("r::a.go")); got != 2 {
			t.Errorf("expected 2 symbols in a.go, got %d", got)
		}
	})

	t.Run("out of range index", func(t *testing.T) {
		if _, ok := snap.SymbolAt(99); ok {
			t.Error("expected out-of-range index to fail")
		}
	})
}

func TestNewFromSnapshot(t *testing.T) {
	tab := New()
	a := testSymbol("r", "a.go", "Handler")
	b := testSymbol("r", "b.go", "helper")
	for _, s := range []fact.Symbol{a, b} {
		if _, _, err := tab.Intern(s); err != nil {
			t.Fatalf("intern: %v", err)
		}
	}
	snap := tab.Freeze()

	thawed := NewFromSnapshot(snap)

	t.Run("existing symbols keep their indices", func(t *testing.T) {
		idx, ok := thawed.Lookup(a.ID)
		if !ok || idx != 0 {
			t.Errorf("expected index 0 for %s, got %d ok=%v", a.ID, idx, ok)
		}
		idx, ok = thawed.Lookup(b.ID)
		if !ok || idx != 1 {
			t.Errorf("expected index 1 for %s, got %d ok=%v", b.ID, idx, ok)
		}
	})

	t.Run("accepts new interns after existing ones", func(t *testing.T) {
		c := testSymbol("r", "c.go", "added")
		idx, created, err := thawed.Intern(c)
		if err != nil {
			t.Fatalf("intern: %v", err)
		}
		if !created || idx != 2 {
			t.Errorf("expected new index 2, got %d created=%v", idx, created)
		}
	})

	t.Run("same file reintern refreshes the payload", func(t *testing.T) {
		updated := a
		updated.Annotations = []string{"@Scheduled"}
		idx, created, err := thawed.Intern(updated)
		if err != nil {
			t.Fatalf("intern: %v", err)
		}
		if created || idx != 0 {
			t.Errorf("expected existing index 0, got %d created=%v", idx, created)
		}
		refreshed := thawed.Freeze()
		got, ok := refreshed.SymbolAt(0)
		if !ok || len(got.Annotations) != 1 {
			t.Errorf("expected refreshed annotations, got %+v", got)
		}
	})

	t.Run("source snapshot untouched", func(t *testing.T) {
		if snap.Len() != 2 {
			t.Errorf("expected original snapshot to stay at 2 symbols, got %d", snap.Len())
		}
		if got, _ := snap.SymbolAt(0); len(got.Annotations) != 0 {
			t.Errorf("expected original payload preserved, got %+v", got)
		}
	})
}
