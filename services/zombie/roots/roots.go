// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package roots decides which symbols are entry points for reachability:
// code the outside world invokes even though no ingested code references
// it. Roots come from explicit configuration, built-in annotation and
// naming patterns, and semantic-detector candidates (scheduler targets).
package roots

import (
	"path"
	"sort"
	"strings"

	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
	"github.com/AleutianAI/ZombieGraph/services/zombie/symtab"
)

// Kind classifies why a symbol is a root.
type Kind string

const (
	KindMain        Kind = "main"
	KindController  Kind = "controller"
	KindEndpoint    Kind = "endpoint"
	KindScheduler   Kind = "scheduler"
	KindListener    Kind = "listener"
	KindCommandLine Kind = "command_line"
	KindTest        Kind = "test"
	KindLibrary     Kind = "library"
	KindCustom      Kind = "custom"
)

// Root is one entry point with its provenance.
type Root struct {
	Index uint32 `json:"index"`
	ID    string `json:"id"`
	Kind  Kind   `json:"kind"`
	Rule  string `json:"rule"`
}

// Config is the user-facing root designation surface.
//
// IDs pin individual symbols. NamePatterns are path.Match globs applied
// to the qualified name (falling back to the simple name). Annotations
// add custom markers to the built-in set. TreatExportedAsRoots makes
// every exported symbol a library root, for analyzing a codebase that is
// consumed externally; off by default because it hides most zombies.
type Config struct {
	IDs                  []string `yaml:"ids"`
	NamePatterns         []string `yaml:"name_patterns"`
	Annotations          []string `yaml:"annotations"`
	TreatExportedAsRoots bool     `yaml:"treat_exported_as_roots"`
	DisableBuiltins      bool     `yaml:"disable_builtins"`
	IncludeTests         bool     `yaml:"include_tests"`
}

// Detect computes the deterministic root set for a frozen table.
//
// Description:
//
//	Applies, in precedence order: explicit IDs, name patterns, custom
//	and built-in annotation markers, built-in structural rules (main
//	functions, endpoint symbols, test naming), semantic candidates, and
//	finally the exported-as-library rule. A symbol matches at most once;
//	the first rule to claim it records the provenance. The result is
//	sorted by index, which makes every downstream traversal
//	deterministic.
//
// Inputs:
//
//	snap - The frozen symbol table.
//	cfg - Root designation config.
//	candidates - Canonical IDs proposed by semantic detectors.
//
// Outputs:
//
//	[]Root - Sorted by index, no duplicates.
func Detect(snap *symtab.Snapshot, cfg Config, candidates []string) []Root {
	claimed := make(map[uint32]Root)

	claim := func(idx uint32, id string, kind Kind, rule string) {
		if _, taken := claimed[idx]; !taken {
			claimed[idx] = Root{Index: idx, ID: id, Kind: kind, Rule: rule}
		}
	}

	for _, id := range cfg.IDs {
		if idx, ok := snap.Lookup(id); ok {
			claim(idx, id, KindCustom, "config:id")
		}
	}

	symbols := snap.Symbols()
	for i := range symbols {
		s := &symbols[i]
		idx := uint32(i)

		for _, pattern := range cfg.NamePatterns {
			name := s.QualifiedName
			if name == "" {
				name = s.Name
			}
			if ok, _ := path.Match(pattern, name); ok {
				claim(idx, s.ID, KindCustom, "config:pattern:"+pattern)
			}
		}

		for _, marker := range cfg.Annotations {
			if hasAnnotation(s, marker) {
				claim(idx, s.ID, KindCustom, "config:annotation:"+marker)
			}
		}

		if !cfg.DisableBuiltins {
			if kind, rule, ok := matchBuiltin(s, cfg.IncludeTests); ok {
				claim(idx, s.ID, kind, rule)
			}
		}
	}

	for _, id := range candidates {
		if idx, ok := snap.Lookup(id); ok {
			claim(idx, id, KindScheduler, "semantic:candidate")
		}
	}

	if cfg.TreatExportedAsRoots {
		for i := range symbols {
			s := &symbols[i]
			if s.Exported {
				claim(uint32(i), s.ID, KindLibrary, "exported")
			}
		}
	}

	out := make([]Root, 0, len(claimed))
	for _, r := range claimed {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Indices projects a root set to its sorted node indices.
func Indices(rs []Root) []uint32 {
	out := make([]uint32, len(rs))
	for i, r := range rs {
		out[i] = r.Index
	}
	return out
}

func hasAnnotation(s *fact.Symbol, marker string) bool {
	for _, a := range s.Annotations {
		if strings.Contains(a, marker) {
			return true
		}
	}
	return false
}
