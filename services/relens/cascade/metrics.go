// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cascade

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for cascade propagation.
var (
	tracer = otel.Tracer("relens.cascade")
	meter  = otel.Meter("relens.cascade")
)

var (
	propagateLatency metric.Float64Histogram
	nodesVisited     metric.Int64Counter
	edgesTraversed   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		propagateLatency, err = meter.Float64Histogram(
			"cascade_propagate_duration_seconds",
			metric.WithDescription("Duration of cascade propagation runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesVisited, err = meter.Int64Counter(
			"cascade_nodes_visited_total",
			metric.WithDescription("Total nodes visited during cascade propagation"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		edgesTraversed, err = meter.Int64Counter(
			"cascade_edges_traversed_total",
			metric.WithDescription("Total edges traversed during cascade propagation"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

// startPropagateSpan creates a span for one propagation run.
func startPropagateSpan(ctx context.Context, project string, dirty int, maxDepth int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Propagator.Propagate",
		trace.WithAttributes(
			attribute.String("cascade.project", project),
			attribute.Int("cascade.dirty_chunks", dirty),
			attribute.Int("cascade.max_depth", maxDepth),
		))
}

// recordPropagation records metrics for a completed run.
func recordPropagation(ctx context.Context, seconds float64, stats Stats) {
	if initMetrics() != nil {
		return
	}
	propagateLatency.Record(ctx, seconds)
	nodesVisited.Add(ctx, int64(stats.NodesVisited))
	edgesTraversed.Add(ctx, int64(stats.EdgesTraversed))
}
