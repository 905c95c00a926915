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
	tracer = otel.Tracer("zombiegraph.query")
	meter  = otel.Meter("zombiegraph.query")

	metricsOnce sync.Once

	queryLatency metric.Float64Histogram
	queryTotal   metric.Int64Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		var err error
		queryLatency, err = meter.Float64Histogram(
			"query_duration_seconds",
			metric.WithDescription("Query latency by operation"),
			metric.WithUnit("s"),
		)
		if err != nil {
			slog.Warn("Failed to create query latency histogram", "error", err)
		}
		queryTotal, err = meter.Int64Counter(
			"query_total",
			metric.WithDescription("Queries by operation and outcome"),
		)
		if err != nil {
			slog.Warn("Failed to create query counter", "error", err)
		}
	})
}

func recordQueryMetrics(ctx context.Context, op string, d time.Duration, err error) {
	initMetrics()
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.Bool("success", err == nil),
	)
	if queryLatency != nil {
		queryLatency.Record(ctx, d.Seconds(), attrs)
	}
	if queryTotal != nil {
		queryTotal.Add(ctx, 1, attrs)
	}
}

func startQuerySpan(ctx context.Context, op, id string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "query."+op,
		trace.WithAttributes(attribute.String("symbol_id", id)))
}
