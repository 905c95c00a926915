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
	tracer = otel.Tracer("zombiegraph.reach")
	meter  = otel.Meter("zombiegraph.reach")

	metricsOnce sync.Once

	analyzeLatency metric.Float64Histogram
	analyzeSteps   metric.Int64Histogram
	analyzeTotal   metric.Int64Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		var err error
		analyzeLatency, err = meter.Float64Histogram(
			"reach_analyze_duration_seconds",
			metric.WithDescription("Duration of reachability runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			slog.Warn("Failed to create analyze latency histogram", "error", err)
		}
		analyzeSteps, err = meter.Int64Histogram(
			"reach_analyze_steps",
			metric.WithDescription("Nodes visited per run"),
		)
		if err != nil {
			slog.Warn("Failed to create steps histogram", "error", err)
		}
		analyzeTotal, err = meter.Int64Counter(
			"reach_analyze_total",
			metric.WithDescription("Reachability runs by outcome"),
		)
		if err != nil {
			slog.Warn("Failed to create analyze counter", "error", err)
		}
	})
}

func recordAnalyzeMetrics(ctx context.Context, d time.Duration, steps int, partial bool) {
	initMetrics()
	attrs := metric.WithAttributes(attribute.Bool("partial", partial))
	if analyzeLatency != nil {
		analyzeLatency.Record(ctx, d.Seconds(), attrs)
	}
	if analyzeSteps != nil {
		analyzeSteps.Record(ctx, int64(steps))
	}
	if analyzeTotal != nil {
		analyzeTotal.Add(ctx, 1, attrs)
	}
}

func startAnalyzeSpan(ctx context.Context, numRoots int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "reach.Analyze",
		trace.WithAttributes(attribute.Int("roots", numRoots)))
}

func setAnalyzeSpanResult(span trace.Span, r *Result) {
	span.SetAttributes(
		attribute.String("run_id", r.RunID),
		attribute.Int("live", r.Summary.Live),
		attribute.Int("dead_code", r.Summary.DeadCode),
		attribute.Int("orphaned", r.Summary.Orphaned),
		attribute.Int("unreachable", r.Summary.Unreachable),
		attribute.Bool("partial", r.Partial),
	)
}
