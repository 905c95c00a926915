// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package semantic

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
	tracer = otel.Tracer("zombiegraph.semantic")
	meter  = otel.Meter("zombiegraph.semantic")

	metricsOnce sync.Once

	linkLatency     metric.Float64Histogram
	linksCreated    metric.Int64Histogram
	phantomsCreated metric.Int64Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		var err error
		linkLatency, err = meter.Float64Histogram(
			"semantic_link_duration_seconds",
			metric.WithDescription("Duration of semantic linker runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			slog.Warn("Failed to create link latency histogram", "error", err)
		}
		linksCreated, err = meter.Int64Histogram(
			"semantic_links_created",
			metric.WithDescription("Links emitted per run"),
		)
		if err != nil {
			slog.Warn("Failed to create links histogram", "error", err)
		}
		phantomsCreated, err = meter.Int64Counter(
			"semantic_phantom_nodes_total",
			metric.WithDescription("Phantom symbols created for undeclared targets"),
		)
		if err != nil {
			slog.Warn("Failed to create phantom counter", "error", err)
		}
	})
}

func recordLinkMetrics(ctx context.Context, d time.Duration, links, phantoms int) {
	initMetrics()
	if linkLatency != nil {
		linkLatency.Record(ctx, d.Seconds())
	}
	if linksCreated != nil {
		linksCreated.Record(ctx, int64(links))
	}
	if phantomsCreated != nil && phantoms > 0 {
		phantomsCreated.Add(ctx, int64(phantoms))
	}
}

func startLinkSpan(ctx context.Context, detectors int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "semantic.Run",
		trace.WithAttributes(attribute.Int("detectors", detectors)))
}

func setLinkSpanResult(span trace.Span, r *Result) {
	span.SetAttributes(
		attribute.Int("links", len(r.Links)),
		attribute.Int("phantoms", r.PhantomsCreated),
		attribute.Int("unresolved", len(r.Unresolved)),
		attribute.Int("detector_errors", len(r.Errors)),
	)
}
