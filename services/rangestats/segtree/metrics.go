// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package segtree

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level tracer and meter for segment tree operations.
var (
	tracer = otel.Tracer("rangestats.segtree")
	meter  = otel.Meter("rangestats.segtree")
)

var (
	buildLatency     metric.Float64Histogram
	buildSize        metric.Int64Histogram
	queryTotal       metric.Int64Counter
	queryLatency     metric.Float64Histogram
	updateTotal      metric.Int64Counter
	validationErrors metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"segtree_build_duration_seconds",
			metric.WithDescription("Duration of segment tree construction"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		buildSize, err = meter.Int64Histogram(
			"segtree_build_size",
			metric.WithDescription("Number of leaves per constructed segment tree"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queryTotal, err = meter.Int64Counter(
			"segtree_queries_total",
			metric.WithDescription("Total range queries by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queryLatency, err = meter.Float64Histogram(
			"segtree_query_duration_seconds",
			metric.WithDescription("Duration of range queries"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		updateTotal, err = meter.Int64Counter(
			"segtree_updates_total",
			metric.WithDescription("Total point updates by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		validationErrors, err = meter.Int64Counter(
			"segtree_validation_errors_total",
			metric.WithDescription("Segment trees that failed invariant validation"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBuildMetrics records metrics for a construction.
func recordBuildMetrics(ctx context.Context, size int, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	buildLatency.Record(ctx, duration.Seconds())
	buildSize.Record(ctx, int64(size))
}

// recordQueryMetrics records metrics for a range query.
func recordQueryMetrics(ctx context.Context, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	queryTotal.Add(ctx, 1, attrs)
	if success {
		queryLatency.Record(ctx, duration.Seconds())
	}
}

// recordUpdateMetrics records metrics for a point update.
func recordUpdateMetrics(ctx context.Context, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	updateTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

func recordValidationError(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	validationErrors.Add(ctx, 1)
}
