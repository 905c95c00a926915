// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/ZombieGraph/pkg/logging"
	"github.com/AleutianAI/ZombieGraph/pkg/telemetry"
	zombie "github.com/AleutianAI/ZombieGraph/services/zombie"
)

var (
	serveDebug   bool
	serveLogDir  string
	serveLogJSON bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the zombie analysis HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServeCommand,
}

func init() {
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug mode")
	serveCmd.Flags().StringVar(&serveLogDir, "log-dir", "", "Write JSON logs to this directory")
	serveCmd.Flags().BoolVar(&serveLogJSON, "log-json", false, "Emit JSON logs on stderr")
}

func runServeCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigWithOverrides()
	if err != nil {
		return err
	}

	if serveDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logLevel := "info"
	if serveDebug {
		logLevel = "debug"
	}
	logger, closeLogs, err := logging.Setup(logging.Options{
		Level:   logLevel,
		JSON:    serveLogJSON,
		LogDir:  serveLogDir,
		Service: "zombiegraph",
	})
	if err != nil {
		return err
	}
	defer closeLogs()
	slog.SetDefault(logger)

	ctx := cmd.Context()
	metricsHandler, telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "zombiegraph",
		ServiceVersion: zombie.ServiceVersion,
		Environment:    envOr("ZOMBIEGRAPH_ENV", "development"),
	})
	if err != nil {
		return err
	}
	defer telemetryShutdown(context.Background())

	svc, err := zombie.NewService(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Start(ctx); err != nil {
		return err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("zombiegraph"))
	if serveDebug {
		router.Use(gin.Logger())
	}

	zombie.RegisterRoutes(router.Group("/v1"), zombie.NewHandlers(svc))
	if cfg.Server.MetricsPath != "" {
		router.GET(cfg.Server.MetricsPath, gin.WrapH(metricsHandler))
	}

	server := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Zombie analysis API listening",
			"addr", cfg.Server.ListenAddr, "version", zombie.ServiceVersion)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		slog.Info("Shutting down", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("Shutting down", "reason", "context cancelled")
	}

	// Persist the current generation so the next start is instant.
	if cfg.Store.SnapshotPath != "" {
		if err := svc.WriteSnapshot(); err != nil {
			slog.Warn("Shutdown snapshot failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
