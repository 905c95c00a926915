// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package semantic infers dependency edges that no syntactic reference
// expresses: ORM entity-to-table mappings, stored-procedure invocations,
// scheduler triggers, and raw SQL table access. Detectors run at the
// ingestion phase barrier, after every file's symbols are interned and
// before the symbol table freezes, so they see the complete corpus and
// may still add phantom symbols for entities that exist only on the
// database side.
//
// # Thread Safety
//
// A Linker is safe for concurrent Run calls; all mutable state lives in
// the per-run Corpus and Result. Detectors themselves must be stateless.
package semantic

import (
	"context"
	"strings"

	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
	"github.com/AleutianAI/ZombieGraph/services/zombie/graph"
	"github.com/AleutianAI/ZombieGraph/services/zombie/symtab"
)

// Link is a detector-asserted dependency between two canonical symbol
// IDs. Links are converted to graph edges after the table freezes.
type Link struct {
	FromID     string
	ToID       string
	Type       graph.EdgeType
	Confidence float64
	Detector   string
	SourceFile string
	Location   fact.Location
}

// Unresolved records fragment evidence whose target could not be matched
// to any symbol (e.g. a SQL statement touching an unknown table). Like
// dangling references, these never become edges.
type Unresolved struct {
	Detector   string        `json:"detector"`
	OwnerID    string        `json:"owner_id"`
	TargetName string        `json:"target_name"`
	Location   fact.Location `json:"location"`
}

// Detector mines the corpus for one category of semantic link.
//
// Detect must be deterministic for a given corpus and may intern phantom
// symbols through the corpus table. Errors abort only the failing
// detector; the linker continues with the rest.
type Detector interface {
	Name() string
	Detect(ctx context.Context, c *Corpus, out *Result) error
}

// Config gates individual detectors.
type Config struct {
	ORM              bool `yaml:"orm"`
	StoredProcedures bool `yaml:"stored_procedures"`
	Scheduler        bool `yaml:"scheduler"`
	SQLAccess        bool `yaml:"sql_access"`
}

// DefaultConfig enables every detector.
func DefaultConfig() Config {
	return Config{ORM: true, StoredProcedures: true, Scheduler: true, SQLAccess: true}
}

// Corpus is the complete fact set a detector run sees, with lazy-free
// name indexes built once at construction. Lookups are case-insensitive
// because database identifiers routinely differ in case between SQL text
// and declarations.
type Corpus struct {
	Table *symtab.Table
	Files []*fact.FileFacts

	symbolsByID      map[string]fact.Symbol
	symbolsByName    map[string][]fact.Symbol
	tablesByName     map[string]fact.Symbol
	proceduresByName map[string]fact.Symbol

	baseline []fact.Symbol
}

// CorpusOption configures corpus construction.
type CorpusOption func(*Corpus)

// WithBaseline indexes symbols carried over from an earlier generation
// so detectors running on a partial corpus (only re-ingested files)
// still resolve tables, procedures, and jobs declared elsewhere.
// Baseline symbols declared in one of the corpus's own files are
// skipped; the fresh facts supersede them.
func WithBaseline(symbols []fact.Symbol) CorpusOption {
	return func(c *Corpus) {
		c.baseline = symbols
	}
}

// NewCorpus indexes the fact files for detector lookups.
func NewCorpus(table *symtab.Table, files []*fact.FileFacts, opts ...CorpusOption) *Corpus {
	c := &Corpus{
		Table:            table,
		Files:            files,
		symbolsByID:      make(map[string]fact.Symbol),
		symbolsByName:    make(map[string][]fact.Symbol),
		tablesByName:     make(map[string]fact.Symbol),
		proceduresByName: make(map[string]fact.Symbol),
	}
	for _, o := range opts {
		o(c)
	}
	for _, f := range files {
		for _, s := range f.Symbols {
			c.indexSymbol(s)
		}
	}
	if len(c.baseline) > 0 {
		superseded := make(map[string]struct{}, len(files))
		for _, f := range files {
			superseded[f.SourceKey()] = struct{}{}
		}
		for _, s := range c.baseline {
			key := s.RepoID + "::" + fact.NormalizePath(s.FilePath)
			if _, skip := superseded[key]; skip {
				continue
			}
			c.indexSymbol(s)
		}
	}
	return c
}

// indexSymbol registers one symbol under both its simple and qualified
// names. Earlier registrations win for the by-ID and table/procedure
// indexes, which keeps file facts ahead of baseline carryover.
func (c *Corpus) indexSymbol(s fact.Symbol) {
	if _, exists := c.symbolsByID[s.ID]; exists {
		return
	}
	c.symbolsByID[s.ID] = s
	lower := strings.ToLower(s.Name)
	c.symbolsByName[lower] = append(c.symbolsByName[lower], s)
	if q := strings.ToLower(s.QualifiedName); q != "" && q != lower {
		c.symbolsByName[q] = append(c.symbolsByName[q], s)
	}
	switch s.Kind {
	case fact.KindTable:
		if _, exists := c.tablesByName[lower]; !exists {
			c.tablesByName[lower] = s
		}
	case fact.KindProcedure:
		if _, exists := c.proceduresByName[lower]; !exists {
			c.proceduresByName[lower] = s
		}
	}
}

// LookupTable resolves a table name, falling back to the unqualified name
// when a schema prefix ("dbo.users") finds nothing.
func (c *Corpus) LookupTable(name string) (fact.Symbol, bool) {
	lower := strings.ToLower(name)
	if s, ok := c.tablesByName[lower]; ok {
		return s, true
	}
	if i := strings.LastIndexByte(lower, '.'); i >= 0 {
		if s, ok := c.tablesByName[lower[i+1:]]; ok {
			return s, true
		}
	}
	return fact.Symbol{}, false
}

// LookupProcedure resolves a stored-procedure name, schema-prefix
// tolerant like LookupTable.
func (c *Corpus) LookupProcedure(name string) (fact.Symbol, bool) {
	lower := strings.ToLower(name)
	if s, ok := c.proceduresByName[lower]; ok {
		return s, true
	}
	if i := strings.LastIndexByte(lower, '.'); i >= 0 {
		if s, ok := c.proceduresByName[lower[i+1:]]; ok {
			return s, true
		}
	}
	return fact.Symbol{}, false
}

// LookupSymbols returns all symbols with the given name, any kind.
func (c *Corpus) LookupSymbols(name string) []fact.Symbol {
	return c.symbolsByName[strings.ToLower(name)]
}

// SymbolByID resolves a canonical ID to its declaring symbol.
func (c *Corpus) SymbolByID(id string) (fact.Symbol, bool) {
	s, ok := c.symbolsByID[id]
	return s, ok
}
