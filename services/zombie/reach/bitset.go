// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reach

import "math/bits"

// Bitset is a fixed-size bitmap over compact node indices. One bit per
// node keeps the visited set for a million-node graph in ~128 KiB, which
// is what makes whole-graph traversal fit the memory budget.
type Bitset []uint64

// NewBitset allocates a bitset covering n indices.
func NewBitset(n int) Bitset {
	return make(Bitset, (n+63)/64)
}

// Set marks index i.
func (b Bitset) Set(i uint32) {
	b[i/64] |= 1 << (i % 64)
}

// Get reports whether index i is marked.
func (b Bitset) Get(i uint32) bool {
	w := i / 64
	if int(w) >= len(b) {
		return false
	}
	return b[w]&(1<<(i%64)) != 0
}

// Count returns the number of marked indices.
func (b Bitset) Count() int {
	total := 0
	for _, w := range b {
		total += bits.OnesCount64(w)
	}
	return total
}

// Clone returns an independent copy.
func (b Bitset) Clone() Bitset {
	out := make(Bitset, len(b))
	copy(out, b)
	return out
}
