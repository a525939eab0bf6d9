// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package relocate

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/relens-ai/relens/services/relens/model"
)

var (
	tracer = otel.Tracer("relens.relocate")
	meter  = otel.Meter("relens.relocate")

	metricsOnce     sync.Once
	relocateLatency metric.Float64Histogram
	outcomeCounter  metric.Int64Counter
	strategyCounter metric.Int64Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		var err error
		relocateLatency, err = meter.Float64Histogram(
			"relocate_duration_seconds",
			metric.WithDescription("Latency of single-finding relocation"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otel.Handle(err)
		}
		outcomeCounter, err = meter.Int64Counter(
			"relocate_outcomes_total",
			metric.WithDescription("Relocation outcomes by status and method"),
		)
		if err != nil {
			otel.Handle(err)
		}
		strategyCounter, err = meter.Int64Counter(
			"relocate_strategy_attempts_total",
			metric.WithDescription("Strategy attempts by name and acceptance"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

func recordOutcome(ctx context.Context, res model.RelocationResult, elapsed time.Duration) {
	initMetrics()
	if relocateLatency != nil {
		relocateLatency.Record(ctx, elapsed.Seconds())
	}
	if outcomeCounter != nil {
		outcomeCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", res.Status.String()),
			attribute.String("method", res.Method.String()),
		))
	}
	if strategyCounter != nil {
		for _, attempt := range res.StrategiesTried {
			strategyCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("strategy", attempt.Strategy),
				attribute.Bool("accepted", attempt.Accepted),
			))
		}
	}
}
