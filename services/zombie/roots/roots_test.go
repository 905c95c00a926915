// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package roots

import (
	"testing"

	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
	"github.com/AleutianAI/ZombieGraph/services/zombie/symtab"
)

func freezeSymbols(t *testing.T, symbols ...fact.Symbol) *symtab.Snapshot {
	t.Helper()
	tab := symtab.New()
	for _, s := range symbols {
		if _, _, err := tab.Intern(s); err != nil {
			t.Fatalf("intern: %v", err)
		}
	}
	return tab.Freeze()
}

func fn(repo, path, name string) fact.Symbol {
	return fact.Symbol{
		ID: fact.GenerateID(repo, path, name), Name: name,
		Kind: fact.KindFunction, RepoID: repo, FilePath: path,
	}
}

func TestDetect(t *testing.T) {
	t.Run("explicit ID designation", func(t *testing.T) {
		helper := fn("r", "a.go", "helper")
		snap := freezeSymbols(t, helper)
		rs := Detect(snap, Config{IDs: []string{helper.ID}}, nil)
		if len(rs) != 1 || rs[0].Kind != KindCustom || rs[0].Rule != "config:id" {
			t.Fatalf("unexpected roots: %+v", rs)
		}
	})

	t.Run("main function is builtin root", func(t *testing.T) {
		snap := freezeSymbols(t, fn("r", "cmd/app/main.go", "main"), fn("r", "lib.go", "helper"))
		rs := Detect(snap, Config{}, nil)
		if len(rs) != 1 || rs[0].Kind != KindMain {
			t.Fatalf("expected only main root, got %+v", rs)
		}
	})

	t.Run("controller annotation", func(t *testing.T) {
		ctrl := fact.Symbol{
			ID: fact.GenerateID("r", "UserController.java", "UserController"),
			Name: "UserController", Kind: fact.KindClass, RepoID: "r",
			FilePath:    "UserController.java",
			Annotations: []string{`@RestController`, `@RequestMapping("/users")`},
		}
		snap := freezeSymbols(t, ctrl)
		rs := Detect(snap, Config{}, nil)
		if len(rs) != 1 || rs[0].Kind != KindController {
			t.Fatalf("expected controller root, got %+v", rs)
		}
	})

	t.Run("scheduled annotation", func(t *testing.T) {
		job := fact.Symbol{
			ID: fact.GenerateID("r", "Jobs.java", "nightly"), Name: "nightly",
			Kind: fact.KindMethod, RepoID: "r", FilePath: "Jobs.java",
			Annotations: []string{`@Scheduled(cron = "0 0 3 * * *")`},
		}
		snap := freezeSymbols(t, job)
		rs := Detect(snap, Config{}, nil)
		if len(rs) != 1 || rs[0].Kind != KindScheduler {
			t.Fatalf("expected scheduler root, got %+v", rs)
		}
	})

	t.Run("name pattern glob", func(t *testing.T) {
		h := fn("r", "h.go", "HandleLogin")
		other := fn("r", "h.go", "validate")
		snap := freezeSymbols(t, h, other)
		rs := Detect(snap, Config{NamePatterns: []string{"Handle*"}, DisableBuiltins: true}, nil)
		if len(rs) != 1 || rs[0].ID != h.ID {
			t.Fatalf("expected pattern root, got %+v", rs)
		}
	})

	t.Run("semantic candidates become scheduler roots", func(t *testing.T) {
		job := fn("r", "jobs.go", "rollup")
		snap := freezeSymbols(t, job)
		rs := Detect(snap, Config{}, []string{job.ID})
		if len(rs) != 1 || rs[0].Kind != KindScheduler || rs[0].Rule != "semantic:candidate" {
			t.Fatalf("expected candidate root, got %+v", rs)
		}
	})

	t.Run("exported symbols only when configured", func(t *testing.T) {
		exp := fn("r", "lib.go", "Exported")
		exp.Exported = true
		snap := freezeSymbols(t, exp)
		if rs := Detect(snap, Config{}, nil); len(rs) != 0 {
			t.Fatalf("exported should not be root by default, got %+v", rs)
		}
		rs := Detect(snap, Config{TreatExportedAsRoots: true}, nil)
		if len(rs) != 1 || rs[0].Kind != KindLibrary {
			t.Fatalf("expected library root, got %+v", rs)
		}
	})

	t.Run("tests only when configured", func(t *testing.T) {
		tf := fn("r", "a_test.go", "TestThing")
		snap := freezeSymbols(t, tf)
		if rs := Detect(snap, Config{}, nil); len(rs) != 0 {
			t.Fatalf("test should not be root by default, got %+v", rs)
		}
		if rs := Detect(snap, Config{IncludeTests: true}, nil); len(rs) != 1 || rs[0].Kind != KindTest {
			t.Fatalf("expected test root, got %+v", rs)
		}
	})

	t.Run("first rule wins and output sorted", func(t *testing.T) {
		m := fn("r", "main.go", "main")
		h := fn("r", "h.go", "HandleX")
		snap := freezeSymbols(t, h, m)
		rs := Detect(snap, Config{IDs: []string{m.ID}, NamePatterns: []string{"Handle*"}}, nil)
		if len(rs) != 2 {
			t.Fatalf("expected 2 roots, got %+v", rs)
		}
		if rs[0].Index > rs[1].Index {
			t.Error("roots not sorted by index")
		}
		for _, r := range rs {
			if r.ID == m.ID && r.Rule != "config:id" {
				t.Errorf("explicit ID should take precedence, got rule %s", r.Rule)
			}
		}
	})
}
