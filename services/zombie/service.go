// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package zombie exposes the unreachable-code analysis pipeline as a
// long-running service: fact ingestion, incremental refresh, snapshot
// persistence, and read-only graph queries over an HTTP API.
package zombie

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/AleutianAI/ZombieGraph/services/zombie/config"
	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
	"github.com/AleutianAI/ZombieGraph/services/zombie/ingest"
	"github.com/AleutianAI/ZombieGraph/services/zombie/query"
	"github.com/AleutianAI/ZombieGraph/services/zombie/reach"
	"github.com/AleutianAI/ZombieGraph/services/zombie/roots"
	"github.com/AleutianAI/ZombieGraph/services/zombie/semantic"
	"github.com/AleutianAI/ZombieGraph/services/zombie/store"
)

// ServiceVersion is the zombie analysis service version.
const ServiceVersion = "0.1.0"

// ErrUnknownClass is returned when a class query names a class that
// does not exist.
var ErrUnknownClass = errors.New("unknown liveness class")

// Service owns the analysis pipeline and its durable state.
//
// # Lifecycle
//
// NewService opens the fact cache and, when a snapshot exists, restores
// the last generation from it; a stale or corrupt snapshot falls back
// to a rebuild from cached facts. Start launches the watchers and the
// refresh loop. Close stops everything and releases the cache.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use.
type Service struct {
	cfg         config.Config
	cache       *store.FactCache
	holder      *query.Holder
	coordinator *ingest.Coordinator
	engine      *query.Engine
	tracker     *ingest.DirtyTracker
	refresher   *ingest.Refresher
	watchers    []*ingest.RepoWatcher
	logger      *slog.Logger

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	closeErr  error
}

// NewService builds a service from configuration.
func NewService(cfg config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cache, err := store.OpenFactCache(store.Config{
		Path:       cfg.Store.DataDir,
		SyncWrites: cfg.Store.SyncWrites,
		GCInterval: cfg.Store.GCInterval,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open fact cache: %w", err)
	}

	holder := query.NewHolder()
	tracker := ingest.NewDirtyTracker()
	coordinator := ingest.NewCoordinator(cache, holder,
		ingest.WithWorkers(cfg.Ingest.Workers),
		ingest.WithSemanticConfig(semantic.Config{
			ORM:              cfg.Semantic.ORM,
			StoredProcedures: cfg.Semantic.StoredProcedures,
			Scheduler:        cfg.Semantic.Scheduler,
			SQLAccess:        cfg.Semantic.SQLAccess,
		}),
		ingest.WithRootConfig(roots.Config{
			IDs:                  cfg.Roots.IDs,
			NamePatterns:         cfg.Roots.NamePatterns,
			Annotations:          cfg.Roots.Annotations,
			TreatExportedAsRoots: cfg.Roots.TreatExportedAsRoots,
			DisableBuiltins:      cfg.Roots.DisableBuiltins,
			IncludeTests:         cfg.Roots.IncludeTests,
		}),
		ingest.WithReachOptions(reachOptions(cfg.Reach)...),
		ingest.WithCoordinatorLogger(logger),
	)

	s := &Service{
		cfg:         cfg,
		cache:       cache,
		holder:      holder,
		coordinator: coordinator,
		engine:      query.NewEngine(holder, query.WithEngineLogger(logger)),
		tracker:     tracker,
		refresher:   ingest.NewRefresher(coordinator, tracker, cfg.Ingest.RefreshInterval, logger),
		logger:      logger,
	}

	if err := s.restore(context.Background()); err != nil {
		cache.Close()
		return nil, err
	}
	return s, nil
}

func reachOptions(cfg config.ReachConfig) []reach.Option {
	var opts []reach.Option
	if cfg.MaxSteps > 0 {
		opts = append(opts, reach.WithMaxSteps(cfg.MaxSteps))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, reach.WithTimeout(cfg.Timeout))
	}
	if cfg.MinConfidence > 0 {
		opts = append(opts, reach.WithMinConfidence(cfg.MinConfidence))
	}
	if cfg.Workers > 0 {
		opts = append(opts, reach.WithWorkers(cfg.Workers))
	}
	return opts
}

// restore brings the holder to a usable state on startup: snapshot
// first, cached facts second, empty otherwise.
func (s *Service) restore(ctx context.Context) error {
	if s.cfg.Store.SnapshotPath != "" {
		gen, err := store.LoadSnapshot(s.cfg.Store.SnapshotPath)
		switch {
		case err == nil:
			s.holder.Swap(gen)
			s.logger.Info("Restored generation from snapshot",
				"generation", gen.ID, "symbols", gen.Table.Len())
			return nil
		case os.IsNotExist(err):
			// First run.
		case errors.Is(err, store.ErrSchemaMismatch), errors.Is(err, store.ErrCorruptSnapshot):
			s.logger.Warn("Snapshot unusable, rebuilding from facts", "error", err)
		default:
			return fmt.Errorf("load snapshot: %w", err)
		}
	}

	n, err := s.cache.Count(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		s.logger.Info("Starting with empty analysis state")
		return nil
	}
	report, err := s.coordinator.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("rebuild from cached facts: %w", err)
	}
	s.logger.Info("Rebuilt generation from fact cache",
		"generation", report.GenerationID, "files", n)
	return nil
}

// Start launches the repo watchers and refresh loop. Safe to call once;
// subsequent calls are no-ops.
func (s *Service) Start(ctx context.Context) error {
	var startErr error
	s.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel

		for _, target := range s.cfg.Ingest.Watch {
			w, err := ingest.NewRepoWatcher(target.RepoID, target.Root,
				ingest.TrackerHandler(s.tracker), nil)
			if err != nil {
				startErr = fmt.Errorf("watch %s: %w", target.RepoID, err)
				return
			}
			if err := w.Start(runCtx); err != nil {
				startErr = fmt.Errorf("watch %s: %w", target.RepoID, err)
				return
			}
			s.watchers = append(s.watchers, w)
			s.logger.Info("Watching repository", "repo", target.RepoID, "root", target.Root)
		}

		go s.refresher.Run(runCtx)
	})
	return startErr
}

// Close stops watchers and the refresh loop and closes the cache.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		for _, w := range s.watchers {
			w.Stop()
		}
		s.closeErr = s.cache.Close()
	})
	return s.closeErr
}

// Build ingests a fact batch and rebuilds the generation.
func (s *Service) Build(ctx context.Context, files []*fact.FileFacts) (*ingest.Report, error) {
	return s.coordinator.Ingest(ctx, files)
}

// Refresh applies changed facts and deletions in one pass.
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (*ingest.Report, error) {
	if len(req.Removed) > 0 {
		if _, err := s.coordinator.RemoveFiles(ctx, req.RepoID, req.Removed); err != nil {
			return nil, err
		}
	}
	if len(req.Changed) > 0 {
		return s.coordinator.Ingest(ctx, req.Changed)
	}
	report := &ingest.Report{FilesRemoved: len(req.Removed)}
	if gen, err := s.holder.Current(); err == nil {
		report.GenerationID = gen.ID
	}
	return report, nil
}

// Symbol returns one symbol with its classification and degrees.
func (s *Service) Symbol(id string) (*SymbolResponse, error) {
	gen, err := s.holder.Current()
	if err != nil {
		return nil, err
	}
	idx, ok := gen.Table.Lookup(id)
	if !ok {
		return nil, query.ErrSymbolNotFound
	}
	sym, _ := gen.Table.SymbolAt(idx)

	resp := &SymbolResponse{
		Symbol:       sym,
		Distance:     gen.Reach.Dist[idx],
		OutDegree:    gen.Graph.OutDegree(idx),
		InDegree:     gen.Graph.InDegree(idx),
		GenerationID: gen.ID,
	}
	if class, ok := gen.Reach.ClassOf(idx); ok {
		resp.Class = class.String()
	}
	return resp, nil
}

// Dependencies proxies the query engine.
func (s *Service) Dependencies(ctx context.Context, id string, opts ...query.Option) (*query.TraversalResult, error) {
	return s.engine.Dependencies(ctx, id, opts...)
}

// Dependents proxies the query engine.
func (s *Service) Dependents(ctx context.Context, id string, opts ...query.Option) (*query.TraversalResult, error) {
	return s.engine.Dependents(ctx, id, opts...)
}

// PathToNearestRoot proxies the query engine.
func (s *Service) PathToNearestRoot(ctx context.Context, id string) (*query.PathResult, error) {
	return s.engine.PathToNearestRoot(ctx, id)
}

// Zombies lists symbols in one liveness class by name.
func (s *Service) Zombies(ctx context.Context, className string, opts ...query.Option) (*ZombiesResponse, error) {
	class, ok := reach.ParseClass(className)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, className)
	}
	result, err := s.engine.ListByClass(ctx, class, opts...)
	if err != nil {
		return nil, err
	}
	return &ZombiesResponse{Class: className, Result: result}, nil
}

// Stats summarizes the current generation and cache.
func (s *Service) Stats(ctx context.Context) (*StatsResponse, error) {
	gen, err := s.holder.Current()
	if err != nil {
		return nil, err
	}
	cached, err := s.cache.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsResponse{
		GenerationID: gen.ID,
		CreatedAt:    gen.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		Graph:        gen.Graph.Stats(),
		Summary:      gen.Reach.Summary,
		Roots:        len(gen.Reach.Roots),
		CachedFiles:  cached,
	}, nil
}

// Ready reports whether a generation is queryable.
func (s *Service) Ready() (string, bool) {
	gen, err := s.holder.Current()
	if err != nil {
		return "", false
	}
	return gen.ID, true
}

// WriteSnapshot persists the current generation to the configured
// snapshot path.
func (s *Service) WriteSnapshot() error {
	if s.cfg.Store.SnapshotPath == "" {
		return errors.New("snapshotting disabled: no snapshot path configured")
	}
	gen, err := s.holder.Current()
	if err != nil {
		return err
	}
	if err := store.WriteSnapshot(s.cfg.Store.SnapshotPath, gen); err != nil {
		return err
	}
	s.logger.Info("Snapshot written",
		"path", s.cfg.Store.SnapshotPath, "generation", gen.ID)
	return nil
}
