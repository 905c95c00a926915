// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging configures structured logging for ZombieGraph binaries.
//
// The package builds a *slog.Logger from an Options struct and fans
// records out to up to two destinations:
//
//   - stderr, in text or JSON format (text by default, for CLI use)
//   - an optional date-stamped log file, always JSON
//
// # Basic Usage
//
//	logger, closeFn, err := logging.Setup(logging.Options{
//	    Level:   "info",
//	    Service: "zombiegraph",
//	})
//	if err != nil { ... }
//	defer closeFn()
//	slog.SetDefault(logger)
//
// # Thread Safety
//
// The returned *slog.Logger is safe for concurrent use. Setup itself
// is not; call it once at process start.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Options configures Setup. The zero value produces an Info-level text
// logger on stderr with no file output.
type Options struct {
	// Level is the minimum level: "debug", "info", "warn", or "error".
	// Empty means "info".
	Level string

	// JSON switches stderr output to JSON. File output is always JSON
	// regardless of this setting.
	JSON bool

	// LogDir enables file logging. When set, a file named
	// "{service}_{YYYY-MM-DD}.log" is created inside it (the directory
	// is created with 0750 permissions if missing). Supports a leading
	// ~ for the user's home directory.
	LogDir string

	// Service is attached to every record as the "service" attribute
	// and used in the log file name. Empty means "zombiegraph".
	Service string

	// Quiet suppresses stderr output. Only useful together with LogDir.
	Quiet bool
}

// Setup builds a logger per opts and returns it together with a close
// function that syncs and closes the log file, if any. The close
// function is never nil.
func Setup(opts Options) (*slog.Logger, func() error, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	service := opts.Service
	if service == "" {
		service = "zombiegraph"
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handlers []slog.Handler
	closeFn := func() error { return nil }

	if !opts.Quiet {
		if opts.JSON {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, handlerOpts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, handlerOpts))
		}
	}

	if opts.LogDir != "" {
		dir := expandPath(opts.LogDir)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("create log dir %s: %w", dir, err)
		}
		name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
		file, err := os.OpenFile(filepath.Join(dir, name),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(file, handlerOpts))
		closeFn = func() error {
			if err := file.Sync(); err != nil {
				file.Close()
				return fmt.Errorf("sync log file: %w", err)
			}
			return file.Close()
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		// Quiet with no file still needs a valid handler.
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.Level(127),
		})
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	handler = handler.WithAttrs([]slog.Attr{slog.String("service", service)})
	return slog.New(handler), closeFn, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// multiHandler fans a record out to every enabled handler, so stderr
// and the log file can carry different formats.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}
