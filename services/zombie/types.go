// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package zombie

import (
	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
	"github.com/AleutianAI/ZombieGraph/services/zombie/graph"
	"github.com/AleutianAI/ZombieGraph/services/zombie/ingest"
	"github.com/AleutianAI/ZombieGraph/services/zombie/query"
	"github.com/AleutianAI/ZombieGraph/services/zombie/reach"
)

// BuildRequest is the body of POST /v1/zombie/build: a batch of fact
// files from external producers.
type BuildRequest struct {
	Files []*fact.FileFacts `json:"files" binding:"required"`
}

// BuildResponse reports the rebuild outcome.
type BuildResponse struct {
	Report *ingest.Report `json:"report"`
}

// RefreshRequest is the body of POST /v1/zombie/refresh: changed facts
// plus files known to be deleted.
type RefreshRequest struct {
	Changed []*fact.FileFacts `json:"changed,omitempty"`
	RepoID  string            `json:"repo_id,omitempty"`
	Removed []string          `json:"removed,omitempty"`
}

// SymbolResponse describes one symbol with its classification.
type SymbolResponse struct {
	Symbol       fact.Symbol `json:"symbol"`
	Class        string      `json:"class,omitempty"`
	Distance     int32       `json:"distance"`
	OutDegree    int         `json:"out_degree"`
	InDegree     int         `json:"in_degree"`
	GenerationID string      `json:"generation_id"`
}

// ZombiesResponse lists symbols in one liveness class.
type ZombiesResponse struct {
	Class  string                 `json:"class"`
	Result *query.TraversalResult `json:"result"`
}

// StatsResponse summarizes the current generation.
type StatsResponse struct {
	GenerationID string        `json:"generation_id"`
	CreatedAt    string        `json:"created_at"`
	Graph        graph.Stats   `json:"graph"`
	Summary      reach.Summary `json:"summary"`
	Roots        int           `json:"roots"`
	CachedFiles  int           `json:"cached_files"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is returned by GET /ready.
type ReadyResponse struct {
	Ready        bool   `json:"ready"`
	GenerationID string `json:"generation_id,omitempty"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`
}
