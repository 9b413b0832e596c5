// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rangestats

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/AleutianAI/rangestats/services/rangestats/segtree"
	"github.com/AleutianAI/rangestats/services/rangestats/telemetry"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(DefaultServiceConfig())
}

func TestService_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	info, err := svc.Create(ctx, "basic", []float64{4, 8, 6, 2})
	require.NoError(t, err)
	assert.Equal(t, "basic", info.Name)
	assert.Equal(t, 4, info.Len)
	assert.Equal(t, int64(1), info.Version)
	assert.NotEmpty(t, info.CacheKey)
	assert.Equal(t, []float64{4, 8, 6, 2}, info.Values)

	got, err := svc.Get(ctx, "basic")
	require.NoError(t, err)
	assert.Equal(t, info.CacheKey, got.CacheKey)
	assert.Equal(t, info.Values, got.Values)
}

func TestService_Create_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		config  ServiceConfig
		dsName  string
		values  []float64
		wantErr error
	}{
		{"empty name", DefaultServiceConfig(), "", []float64{1}, ErrInvalidName},
		{"name with slash", DefaultServiceConfig(), "a/b", []float64{1}, ErrInvalidName},
		{"name too long", DefaultServiceConfig(), strings.Repeat("x", 65), []float64{1}, ErrInvalidName},
		{"too large", ServiceConfig{MaxDatasetSize: 2, MaxDatasets: 10}, "big", []float64{1, 2, 3}, ErrDatasetTooLarge},
		{"NaN value", DefaultServiceConfig(), "nan", []float64{1, math.NaN()}, ErrNonFiniteValue},
		{"infinite value", DefaultServiceConfig(), "inf", []float64{math.Inf(-1)}, ErrNonFiniteValue},
		{"square overflows", DefaultServiceConfig(), "big", []float64{1e200, 1}, ErrNonFiniteValue},
		{"negative square overflows", DefaultServiceConfig(), "big", []float64{-1e155}, ErrNonFiniteValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			_, err := svc.Create(ctx, tt.dsName, tt.values)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, svc.Count())
		})
	}
}

func TestService_Create_Duplicate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Create(ctx, "dup", []float64{1})
	require.NoError(t, err)

	_, err = svc.Create(ctx, "dup", []float64{2})
	assert.ErrorIs(t, err, ErrDatasetExists)

	info, err := svc.Get(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, info.Values, "failed create leaves the original")
}

func TestService_TooManyDatasets(t *testing.T) {
	ctx := context.Background()
	svc := NewService(ServiceConfig{MaxDatasetSize: 10, MaxDatasets: 2})

	_, err := svc.Create(ctx, "a", []float64{1})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "b", []float64{1})
	require.NoError(t, err)

	_, err = svc.Create(ctx, "c", []float64{1})
	assert.ErrorIs(t, err, ErrTooManyDatasets)

	// Replacing an existing dataset does not count against the limit.
	_, err = svc.Replace(ctx, "a", []float64{5, 6})
	assert.NoError(t, err)
}

func TestService_Replace(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	created, err := svc.Replace(ctx, "r", []float64{1, 2})
	require.NoError(t, err, "replace creates when absent")

	replaced, err := svc.Replace(ctx, "r", []float64{10, 20, 30})
	require.NoError(t, err)
	assert.Equal(t, 3, replaced.Len)
	assert.NotEqual(t, created.CacheKey, replaced.CacheKey)
	assert.Equal(t, created.CreatedAt, replaced.CreatedAt)

	sum, err := svc.Summarize(ctx, "r", 0, 2)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, sum.Mean, 1e-12)
}

func TestService_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := svc.Create(ctx, name, []float64{1, 2, 3})
		require.NoError(t, err)
	}

	list := svc.List()
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "mid", list[1].Name)
	assert.Equal(t, "zeta", list[2].Name)
	assert.Equal(t, int64(9), svc.TotalValues())

	require.NoError(t, svc.Delete(ctx, "mid"))
	assert.ErrorIs(t, svc.Delete(ctx, "mid"), ErrDatasetNotFound)
	assert.Equal(t, 2, svc.Count())

	_, err := svc.Get(ctx, "mid")
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestService_BasicScenario(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Create(ctx, "basic", []float64{4, 8, 6, 2})
	require.NoError(t, err)

	sum, err := svc.Summarize(ctx, "basic", 0, 3)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, sum.Mean, 1e-12)
	assert.InDelta(t, 5.0, sum.Variance, 1e-12)

	res, err := svc.Update(ctx, "basic", 1, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Version)

	sum, err = svc.Summarize(ctx, "basic", 0, 3)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, sum.Mean, 1e-12)
	assert.InDelta(t, 2.0, sum.Variance, 1e-12)

	info, err := svc.Get(ctx, "basic")
	require.NoError(t, err)
	assert.Equal(t, res.CacheKey, info.CacheKey)
	assert.Equal(t, []float64{4, 4, 6, 2}, info.Values)
}

func TestService_Update_Errors(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Create(ctx, "d", []float64{1, 2, 3})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "empty", []float64{})
	require.NoError(t, err)

	_, err = svc.Update(ctx, "missing", 0, 1)
	assert.ErrorIs(t, err, ErrDatasetNotFound)

	_, err = svc.Update(ctx, "d", 3, 1)
	assert.ErrorIs(t, err, segtree.ErrInvalidIndex)

	_, err = svc.Update(ctx, "d", 0, math.NaN())
	assert.ErrorIs(t, err, ErrNonFiniteValue)

	_, err = svc.Update(ctx, "d", 0, 1e200)
	assert.ErrorIs(t, err, ErrNonFiniteValue)

	_, err = svc.Update(ctx, "empty", 0, 1)
	assert.ErrorIs(t, err, segtree.ErrEmptyStructure)
	assert.ErrorIs(t, err, segtree.ErrInvalidIndex)

	info, err := svc.Get(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Version, "rejected updates leave the version")
}

func TestService_Summarize_Overflow(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Create(ctx, "huge", []float64{1e154, 1e154, 3})
	require.NoError(t, err)

	_, err = svc.Summarize(ctx, "huge", 0, 1)
	assert.ErrorIs(t, err, ErrNumericOverflow)

	sum, err := svc.Summarize(ctx, "huge", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Count)
	assert.False(t, math.IsInf(sum.Variance, 0))
}

func TestService_Summarize_Errors(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Create(ctx, "d", []float64{1, 2, 3})
	require.NoError(t, err)

	_, err = svc.Summarize(ctx, "d", 2, 1)
	assert.ErrorIs(t, err, segtree.ErrInvalidIndex)

	_, err = svc.Summarize(ctx, "d", -1, 1)
	assert.ErrorIs(t, err, segtree.ErrInvalidIndex)

	_, err = svc.Summarize(ctx, "nope", 0, 0)
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestService_Dump(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Create(ctx, "d", []float64{4, 8, 6, 2})
	require.NoError(t, err)

	dump, err := svc.Dump(ctx, "d")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dump, "[0,3] sum=20 sumsq=120 n=4"), dump)

	_, err = svc.Dump(ctx, "nope")
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestService_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	values := make([]float64, 256)
	for i := range values {
		values[i] = float64(i)
	}
	_, err := svc.Create(ctx, "c", values)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, _ = svc.Update(ctx, "c", (w*31+i)%256, float64(i))
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				sum, err := svc.Summarize(ctx, "c", 0, 255)
				if assert.NoError(t, err) {
					assert.Equal(t, 256, sum.Count)
				}
			}
		}()
	}
	wg.Wait()

	info, err := svc.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, int64(801), info.Version)

	var want float64
	for _, v := range info.Values {
		want += v
	}
	sum, err := svc.Summarize(ctx, "c", 0, 255)
	require.NoError(t, err)
	assert.InDelta(t, want, sum.Sum, 1e-9)
}

func TestService_WithMetrics(t *testing.T) {
	ctx := context.Background()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })

	metrics, err := telemetry.NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	svc := newTestService(t).WithMetrics(metrics)
	_, err = svc.Create(ctx, "m", []float64{1, 2})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "m", []float64{1, 2})
	require.Error(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "rangestats_dataset_operations_total" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				op, _ := dp.Attributes.Value(attribute.Key("operation"))
				status, _ := dp.Attributes.Value(attribute.Key("status"))
				counts[fmt.Sprintf("%s/%s", op.AsString(), status.AsString())] += dp.Value
			}
		}
	}

	assert.Equal(t, int64(1), counts["create/success"])
	assert.Equal(t, int64(1), counts["create/error"])
}
