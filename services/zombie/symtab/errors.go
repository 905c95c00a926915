// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package symtab provides the interning symbol table that maps canonical
// symbol IDs to the compact uint32 indices the graph and reachability
// layers operate on.
//
// # Ownership Model
//
// A Table is created by the ingestion coordinator, shared by ingestion
// workers during the collect phase, and frozen into an immutable Snapshot
// at the phase barrier. The Snapshot is owned by the generation it belongs
// to and is never mutated.
//
// # Thread Safety
//
// Table is safe for concurrent interning; internal state is sharded by ID
// hash so workers touching different files rarely contend. Snapshot is
// immutable and safe for unsynchronized concurrent reads.
//
// # Lifecycle
//
//	t := symtab.New()
//	idx, created, err := t.Intern(sym)   // concurrent, collect phase
//	snap := t.Freeze()                   // phase barrier
//	sym := snap.SymbolAt(idx)            // query phase
package symtab

import "errors"

var (
	// ErrTableFrozen is returned by Intern after Freeze has been called.
	ErrTableFrozen = errors.New("symbol table is frozen")

	// ErrNotFound is returned when a symbol ID or index does not exist.
	ErrNotFound = errors.New("symbol not found")
)
