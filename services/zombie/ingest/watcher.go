// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeOp is the kind of filesystem change observed.
type ChangeOp int

const (
	OpCreate ChangeOp = iota
	OpWrite
	OpRemove
	OpRename
)

func (op ChangeOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Change is one debounced filesystem event, expressed in fact-cache
// terms: the path is relative to the watched repo root.
type Change struct {
	RepoID string
	Path   string
	Op     ChangeOp
	Time   time.Time
}

// ChangeHandler receives debounced change batches.
type ChangeHandler func(changes []Change)

// WatcherOptions configures a RepoWatcher.
type WatcherOptions struct {
	// DebounceWindow is how long to wait for more changes before
	// delivering a batch. Default: 250ms.
	DebounceWindow time.Duration

	// IgnorePatterns name directories and file globs to skip.
	IgnorePatterns []string

	// BufferSize is the size of the event buffer channel. Default: 1024.
	BufferSize int

	Logger *slog.Logger
}

// DefaultWatcherOptions returns sensible defaults.
func DefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{
		DebounceWindow: 250 * time.Millisecond,
		IgnorePatterns: []string{".git", "node_modules", ".idea", "target", "build", "*.swp", "*.tmp", "__pycache__"},
		BufferSize:     1024,
	}
}

// RepoWatcher watches one repository checkout and reports stale source
// files in debounced batches.
//
// # Debouncing
//
// Events collect into a buffer; when the debounce window passes
// without new events, the batch is deduplicated (last event per path
// wins) and handed to the handler from a single goroutine. Editors
// that write-and-rename produce one change, not five.
//
// # Thread Safety
//
// Safe for concurrent use.
type RepoWatcher struct {
	repoID  string
	root    string
	watcher *fsnotify.Watcher
	handler ChangeHandler
	opts    WatcherOptions

	changes  chan Change
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	watching bool
}

// NewRepoWatcher creates a watcher for one repo checkout. The handler
// is called with batched changes; call Start to begin watching.
func NewRepoWatcher(repoID, root string, handler ChangeHandler, opts *WatcherOptions) (*RepoWatcher, error) {
	o := DefaultWatcherOptions()
	if opts != nil {
		o = *opts
		if o.DebounceWindow <= 0 {
			o.DebounceWindow = 250 * time.Millisecond
		}
		if o.BufferSize <= 0 {
			o.BufferSize = 1024
		}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &RepoWatcher{
		repoID:  repoID,
		root:    root,
		watcher: fsw,
		handler: handler,
		opts:    o,
		changes: make(chan Change, o.BufferSize),
		done:    make(chan struct{}),
	}, nil
}

// TrackerHandler adapts a DirtyTracker into a ChangeHandler: removals
// and renames mark deletion, everything else marks modification.
func TrackerHandler(tracker *DirtyTracker) ChangeHandler {
	return func(changes []Change) {
		for _, ch := range changes {
			if ch.Op == OpRemove || ch.Op == OpRename {
				tracker.MarkRemoved(ch.RepoID, ch.Path, "watcher")
			} else {
				tracker.MarkDirty(ch.RepoID, ch.Path, "watcher")
			}
		}
	}
}

// Start begins watching the repo root recursively. Both internal
// goroutines exit when Stop is called or the context is cancelled.
func (w *RepoWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop halts the watcher. Safe to call multiple times.
func (w *RepoWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching reports whether the watcher is active.
func (w *RepoWatcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

func (w *RepoWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.shouldIgnore(path) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *RepoWatcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range w.opts.IgnorePatterns {
		if base == pattern {
			return true
		}
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		if strings.Contains(pattern, string(filepath.Separator)) && strings.Contains(path, pattern) {
			return true
		}
	}
	return false
}

// relPath converts an absolute event path to the repo-relative form
// used as the fact-cache key.
func (w *RepoWatcher) relPath(abs string) (string, bool) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *RepoWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.shouldIgnore(event.Name) {
				continue
			}
			rel, ok := w.relPath(event.Name)
			if !ok {
				continue
			}

			change := Change{
				RepoID: w.repoID,
				Path:   rel,
				Op:     convertOp(event.Op),
				Time:   time.Now(),
			}
			select {
			case w.changes <- change:
			default:
				w.opts.Logger.Warn("Watcher buffer full, dropping change",
					"repo", w.repoID, "path", rel)
			}

			// New directories need their own watch.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.watcher.Add(event.Name)
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.opts.Logger.Warn("Watcher error", "repo", w.repoID, "error", err)
		}
	}
}

func convertOp(op fsnotify.Op) ChangeOp {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Remove):
		return OpRemove
	case op.Has(fsnotify.Rename):
		return OpRename
	default:
		return OpWrite
	}
}

func (w *RepoWatcher) debounceLoop(ctx context.Context) {
	var batch []Change
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 {
			deduped := dedupeChanges(batch)
			if len(deduped) > 0 && w.handler != nil {
				w.handler(deduped)
			}
			batch = batch[:0]
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case change := <-w.changes:
			batch = append(batch, change)
			if timer == nil {
				timer = time.NewTimer(w.opts.DebounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(w.opts.DebounceWindow)
			}
		case <-timerC:
			flush()
		}
	}
}

// dedupeChanges keeps the most recent change per path.
func dedupeChanges(changes []Change) []Change {
	seen := make(map[string]int)
	result := make([]Change, 0, len(changes))
	for _, change := range changes {
		if idx, ok := seen[change.Path]; ok {
			result[idx] = change
		} else {
			seen[change.Path] = len(result)
			result = append(result, change)
		}
	}
	return result
}

// Refresher periodically drains a dirty tracker into the coordinator.
type Refresher struct {
	coordinator *Coordinator
	tracker     *DirtyTracker
	interval    time.Duration
	trigger     chan struct{}
	logger      *slog.Logger
}

// NewRefresher creates a refresh loop. Interval values below 1s are
// raised to 1s to keep rebuild pressure sane.
func NewRefresher(c *Coordinator, tracker *DirtyTracker, interval time.Duration, logger *slog.Logger) *Refresher {
	if interval < time.Second {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		coordinator: c,
		tracker:     tracker,
		interval:    interval,
		trigger:     make(chan struct{}, 1),
		logger:      logger,
	}
}

// Trigger requests an immediate refresh cycle. Non-blocking.
func (r *Refresher) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run processes refresh cycles until the context is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.trigger:
		}

		if !r.tracker.HasDirty() {
			continue
		}
		report, err := r.coordinator.SyncDirty(ctx, r.tracker)
		if err != nil {
			r.logger.Error("Refresh cycle failed", "error", err)
			continue
		}
		if report != nil {
			r.logger.Info("Refresh cycle rebuilt generation",
				"generation", report.GenerationID,
				"removed", report.FilesRemoved)
		}
	}
}
