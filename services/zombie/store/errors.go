// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists analysis state across process restarts.
//
// Two durable artifacts live here:
//
//   - The fact cache: a BadgerDB keyspace holding the last accepted
//     FileFacts per source file, keyed facts/<repo>/<path>. Incremental
//     refreshes merge changed files into this cache and rebuild the
//     graph from it, so a restart never needs the original fact
//     producers.
//   - Snapshots: a single-file binary serialization of one complete
//     analysis generation (symbols, edges, roots, reachability), used
//     for fast startup. A snapshot whose schema version does not match
//     the binary is rejected with ErrSchemaMismatch and the caller
//     falls back to a full rebuild from the fact cache.
//
// # Ownership Model
//
// Store owns the BadgerDB handle and all files under its directory.
// Loaded generations are handed off to the query holder and become
// immutable shared state.
//
// # Thread Safety
//
// FactCache methods are safe for concurrent use. WriteSnapshot and
// LoadSnapshot operate on independent files and are safe to call
// concurrently with cache traffic; concurrent writers of the SAME
// snapshot path serialize through the atomic rename.
package store

import "errors"

var (
	// ErrSchemaMismatch is returned when a snapshot was written by a
	// different schema version. The caller should rebuild from facts.
	ErrSchemaMismatch = errors.New("snapshot schema version mismatch")

	// ErrCorruptSnapshot is returned when a snapshot file fails
	// structural validation (bad magic, truncated payload).
	ErrCorruptSnapshot = errors.New("corrupt snapshot file")

	// ErrFactsNotFound is returned when no cached facts exist for a
	// source file.
	ErrFactsNotFound = errors.New("facts not found")
)
