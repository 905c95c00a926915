// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("zombiegraph.graph")
	meter  = otel.Meter("zombiegraph.graph")

	metricsOnce sync.Once

	buildLatency  metric.Float64Histogram
	buildTotal    metric.Int64Counter
	nodesInterned metric.Int64Histogram
	edgesCreated  metric.Int64Histogram
	danglingRefs  metric.Int64Histogram
)

func initMetrics() {
	metricsOnce.Do(func() {
		var err error
		buildLatency, err = meter.Float64Histogram(
			"graph_build_duration_seconds",
			metric.WithDescription("Duration of graph builds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			slog.Warn("Failed to create build latency histogram", "error", err)
		}
		buildTotal, err = meter.Int64Counter(
			"graph_builds_total",
			metric.WithDescription("Total graph builds by result"),
		)
		if err != nil {
			slog.Warn("Failed to create build counter", "error", err)
		}
		nodesInterned, err = meter.Int64Histogram(
			"graph_nodes_interned",
			metric.WithDescription("Nodes interned per build"),
		)
		if err != nil {
			slog.Warn("Failed to create nodes histogram", "error", err)
		}
		edgesCreated, err = meter.Int64Histogram(
			"graph_edges_created",
			metric.WithDescription("Edges created per build"),
		)
		if err != nil {
			slog.Warn("Failed to create edges histogram", "error", err)
		}
		danglingRefs, err = meter.Int64Histogram(
			"graph_dangling_references",
			metric.WithDescription("Unresolved references per build"),
		)
		if err != nil {
			slog.Warn("Failed to create dangling histogram", "error", err)
		}
	})
}

func recordBuildMetrics(ctx context.Context, d time.Duration, nodes, edges, dangling int, success bool) {
	initMetrics()
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	if buildLatency != nil {
		buildLatency.Record(ctx, d.Seconds(), attrs)
	}
	if buildTotal != nil {
		buildTotal.Add(ctx, 1, attrs)
	}
	if nodesInterned != nil {
		nodesInterned.Record(ctx, int64(nodes))
	}
	if edgesCreated != nil {
		edgesCreated.Record(ctx, int64(edges))
	}
	if danglingRefs != nil {
		danglingRefs.Record(ctx, int64(dangling))
	}
}

func startBuildSpan(ctx context.Context, files int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "graph.Build",
		trace.WithAttributes(attribute.Int("files", files)))
}

func setBuildSpanResult(span trace.Span, r *BuildResult) {
	span.SetAttributes(
		attribute.Int("nodes", r.Stats.SymbolsInterned),
		attribute.Int("edges", r.Stats.EdgesCreated),
		attribute.Int("dangling", len(r.Dangling)),
		attribute.Int("file_errors", len(r.FileErrors)),
		attribute.Bool("incomplete", r.Incomplete),
	)
}
