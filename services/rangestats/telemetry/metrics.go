// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics contains pre-defined metrics for the rangestats service.
//
// Description:
//
//	HTTP request metrics plus dataset lifecycle metrics. All metric names
//	use the "rangestats_" prefix.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// --- HTTP Metrics ---

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal metric.Int64Counter

	// HTTPRequestDuration records HTTP request duration in seconds.
	HTTPRequestDuration metric.Float64Histogram

	// HTTPActiveRequests tracks in-flight HTTP requests.
	HTTPActiveRequests metric.Int64UpDownCounter

	// --- Dataset Metrics ---

	// DatasetOpsTotal counts dataset operations by operation and status.
	DatasetOpsTotal metric.Int64Counter

	// DatasetValues observes the total number of values held.
	DatasetValues metric.Int64ObservableGauge
}

// NewMetrics registers all pre-defined metrics with meter.
//
// Example:
//
//	metrics, err := telemetry.NewMetrics(otel.Meter("rangestats"))
//	if err != nil {
//	    return fmt.Errorf("create metrics: %w", err)
//	}
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"rangestats_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_requests_total: %w", err)
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"rangestats_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_request_duration: %w", err)
	}

	m.HTTPActiveRequests, err = meter.Int64UpDownCounter(
		"rangestats_http_active_requests",
		metric.WithDescription("Currently active HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_active_requests: %w", err)
	}

	m.DatasetOpsTotal, err = meter.Int64Counter(
		"rangestats_dataset_operations_total",
		metric.WithDescription("Total dataset operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create dataset_operations_total: %w", err)
	}

	return m, nil
}

// RegisterDatasetValues registers a callback reporting the number of values
// held across all datasets. The callback runs on every collection.
func (m *Metrics) RegisterDatasetValues(meter metric.Meter, valuesFunc func() int64) (metric.Registration, error) {
	var err error
	m.DatasetValues, err = meter.Int64ObservableGauge(
		"rangestats_dataset_values",
		metric.WithDescription("Values held across all datasets"),
		metric.WithUnit("{value}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create dataset_values: %w", err)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.DatasetValues, valuesFunc())
		return nil
	}, m.DatasetValues)
}
