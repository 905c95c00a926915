// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import (
	"time"

	"github.com/AleutianAI/ZombieGraph/services/zombie/graph"
)

const (
	// DefaultLimit bounds result sets when the caller does not specify.
	DefaultLimit = 1000
	// MaxLimit is the hard ceiling; larger requests are clamped.
	MaxLimit = 10000
	// DefaultMaxDepth bounds transitive traversals by default.
	DefaultMaxDepth = 10
	// MaxTraversalDepth is the hard depth ceiling.
	MaxTraversalDepth = 100
	// contextCheckInterval is how many nodes are expanded between
	// context cancellation checks.
	contextCheckInterval = 100
)

// Options configure a single query. Values outside the valid range are
// clamped, never rejected: an over-limit request degrades to the ceiling
// instead of erroring.
type Options struct {
	Limit    int
	MaxDepth int
	Timeout  time.Duration
	EdgeMask graph.TypeMask
	Offset   int
}

// Option mutates Options.
type Option func(*Options)

// WithLimit caps the number of returned nodes (clamped to [1, MaxLimit]).
func WithLimit(n int) Option {
	return func(o *Options) {
		switch {
		case n < 1:
			o.Limit = DefaultLimit
		case n > MaxLimit:
			o.Limit = MaxLimit
		default:
			o.Limit = n
		}
	}
}

// WithMaxDepth caps traversal depth (clamped to [1, MaxTraversalDepth]).
func WithMaxDepth(d int) Option {
	return func(o *Options) {
		switch {
		case d < 1:
			o.MaxDepth = DefaultMaxDepth
		case d > MaxTraversalDepth:
			o.MaxDepth = MaxTraversalDepth
		default:
			o.MaxDepth = d
		}
	}
}

// WithQueryTimeout bounds the query's wall-clock time.
func WithQueryTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

// WithEdgeTypes restricts traversal to the given edge types.
func WithEdgeTypes(types ...graph.EdgeType) Option {
	return func(o *Options) { o.EdgeMask = graph.MaskOf(types...) }
}

// WithOffset skips the first n results (pagination for ListByClass).
func WithOffset(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Offset = n
		}
	}
}

func buildOptions(opts []Option) Options {
	o := Options{
		Limit:    DefaultLimit,
		MaxDepth: DefaultMaxDepth,
		EdgeMask: graph.AllEdgeTypes,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
