// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simindex

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("relens.simindex")
	meter  = otel.Meter("relens.simindex")

	metricsOnce   sync.Once
	searchLatency metric.Float64Histogram
	searchHits    metric.Int64Counter
	embedCalls    metric.Int64Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		var err error
		searchLatency, err = meter.Float64Histogram(
			"simindex_search_duration_seconds",
			metric.WithDescription("Latency of similarity searches"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otel.Handle(err)
		}
		searchHits, err = meter.Int64Counter(
			"simindex_search_hits_total",
			metric.WithDescription("Hits returned by similarity searches after filtering"),
		)
		if err != nil {
			otel.Handle(err)
		}
		embedCalls, err = meter.Int64Counter(
			"simindex_embed_calls_total",
			metric.WithDescription("Embedding requests issued"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

func recordSearch(ctx context.Context, backend string, elapsed time.Duration, hits int) {
	initMetrics()
	attrs := metric.WithAttributes(attribute.String("backend", backend))
	if searchLatency != nil {
		searchLatency.Record(ctx, elapsed.Seconds(), attrs)
	}
	if searchHits != nil {
		searchHits.Add(ctx, int64(hits), attrs)
	}
}

func recordEmbed(ctx context.Context, backend string) {
	initMetrics()
	if embedCalls != nil {
		embedCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend)))
	}
}
