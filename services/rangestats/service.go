// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rangestats serves range statistics over named datasets.
//
// Each dataset is a segtree.SegmentTree guarded by its own RWMutex, so
// queries on one dataset never wait for updates on another. The package
// also provides the HTTP handlers, the dataset file format, and the file
// watcher that keeps file-backed datasets current.
package rangestats

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/rangestats/services/rangestats/segtree"
	"github.com/AleutianAI/rangestats/services/rangestats/telemetry"
)

var tracer = otel.Tracer("rangestats.service")

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ServiceConfig configures the rangestats service.
type ServiceConfig struct {
	// MaxDatasetSize caps the number of values per dataset.
	// Default: 1,000,000
	MaxDatasetSize int

	// MaxDatasets caps the number of registered datasets.
	// Default: 1024
	MaxDatasets int
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxDatasetSize: 1_000_000,
		MaxDatasets:    1024,
	}
}

// dataset is a registry entry. mu serializes writers against readers of
// tree; the tree itself holds no lock.
type dataset struct {
	mu        sync.RWMutex
	name      string
	tree      *segtree.SegmentTree
	createdAt time.Time
	updatedAt time.Time
}

// Service is the rangestats service.
//
// Thread Safety:
//
//	All methods are safe for concurrent use. The registry lock is held only
//	for map access; tree work happens under the per-dataset lock.
type Service struct {
	config  ServiceConfig
	metrics *telemetry.Metrics

	mu       sync.RWMutex
	datasets map[string]*dataset
}

// NewService creates an empty service.
func NewService(config ServiceConfig) *Service {
	return &Service{
		config:   config,
		datasets: make(map[string]*dataset),
	}
}

// WithMetrics enables dataset operation counters.
func (s *Service) WithMetrics(m *telemetry.Metrics) *Service {
	s.metrics = m
	return s
}

// Create registers a new dataset built from values.
//
// Outputs:
//
//	DatasetInfo - The registered dataset.
//	error - ErrInvalidName, ErrDatasetTooLarge, ErrNonFiniteValue,
//	        ErrTooManyDatasets, or ErrDatasetExists.
func (s *Service) Create(ctx context.Context, name string, values []float64) (DatasetInfo, error) {
	return s.store(ctx, "create", name, values, false)
}

// Replace registers values under name, swapping out any existing tree.
// Readers holding the old tree finish against it.
func (s *Service) Replace(ctx context.Context, name string, values []float64) (DatasetInfo, error) {
	return s.store(ctx, "replace", name, values, true)
}

func (s *Service) store(ctx context.Context, op, name string, values []float64, replace bool) (info DatasetInfo, err error) {
	ctx, span := tracer.Start(ctx, "Service."+op,
		trace.WithAttributes(
			attribute.String("dataset", name),
			attribute.Int("values", len(values)),
		),
	)
	defer func() { s.finish(ctx, span, op, err) }()

	if err := validateName(name); err != nil {
		return DatasetInfo{}, err
	}
	if len(values) > s.config.MaxDatasetSize {
		return DatasetInfo{}, fmt.Errorf("%w: %d values (max %d)", ErrDatasetTooLarge, len(values), s.config.MaxDatasetSize)
	}
	for i, v := range values {
		if err := checkFinite(v); err != nil {
			return DatasetInfo{}, fmt.Errorf("value %d: %w", i, err)
		}
	}

	// Build outside every lock.
	tree, err := segtree.NewSegmentTree(ctx, values)
	if err != nil {
		return DatasetInfo{}, fmt.Errorf("build %q: %w", name, err)
	}

	now := time.Now()

	s.mu.Lock()
	ds, exists := s.datasets[name]
	switch {
	case exists && !replace:
		s.mu.Unlock()
		return DatasetInfo{}, fmt.Errorf("%w: %q", ErrDatasetExists, name)
	case !exists && len(s.datasets) >= s.config.MaxDatasets:
		s.mu.Unlock()
		return DatasetInfo{}, fmt.Errorf("%w: limit is %d", ErrTooManyDatasets, s.config.MaxDatasets)
	case !exists:
		ds = &dataset{name: name, tree: tree, createdAt: now, updatedAt: now}
		s.datasets[name] = ds
		s.mu.Unlock()
		slog.Info("dataset created", "dataset", name, "len", len(values))
		return ds.readInfo(), nil
	}

	// Lock order is registry then dataset, so a concurrent Delete cannot
	// orphan the swap.
	ds.mu.Lock()
	ds.tree = tree
	ds.updatedAt = now
	ds.mu.Unlock()
	s.mu.Unlock()

	slog.Info("dataset replaced", "dataset", name, "len", len(values))
	return ds.readInfo(), nil
}

// Get returns a snapshot of the named dataset.
func (s *Service) Get(ctx context.Context, name string) (DatasetInfo, error) {
	_, span := tracer.Start(ctx, "Service.Get", trace.WithAttributes(attribute.String("dataset", name)))
	defer span.End()

	ds, err := s.lookup(name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "not found")
		return DatasetInfo{}, err
	}
	return ds.readInfo(), nil
}

// List returns summaries of every dataset, sorted by name.
func (s *Service) List() []DatasetSummary {
	s.mu.RLock()
	all := make([]*dataset, 0, len(s.datasets))
	for _, ds := range s.datasets {
		all = append(all, ds)
	}
	s.mu.RUnlock()

	out := make([]DatasetSummary, 0, len(all))
	for _, ds := range all {
		ds.mu.RLock()
		out = append(out, DatasetSummary{
			Name:      ds.name,
			Len:       ds.tree.Len(),
			Version:   ds.tree.Version(),
			UpdatedAt: ds.updatedAt,
		})
		ds.mu.RUnlock()
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Delete removes the named dataset.
func (s *Service) Delete(ctx context.Context, name string) (err error) {
	ctx, span := tracer.Start(ctx, "Service.Delete", trace.WithAttributes(attribute.String("dataset", name)))
	defer func() { s.finish(ctx, span, "delete", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.datasets[name]; !ok {
		return fmt.Errorf("%w: %q", ErrDatasetNotFound, name)
	}
	delete(s.datasets, name)
	slog.Info("dataset deleted", "dataset", name)
	return nil
}

// Update sets element index of the named dataset to value.
//
// Outputs:
//
//	UpdateResult - The new dataset version and its cache key.
//	error - ErrDatasetNotFound, or segtree.ErrInvalidIndex (also
//	        segtree.ErrEmptyStructure for an empty dataset).
func (s *Service) Update(ctx context.Context, name string, index int, value float64) (res UpdateResult, err error) {
	ctx, span := tracer.Start(ctx, "Service.Update",
		trace.WithAttributes(
			attribute.String("dataset", name),
			attribute.Int("index", index),
		),
	)
	defer func() { s.finish(ctx, span, "update", err) }()

	if err := checkFinite(value); err != nil {
		return UpdateResult{}, err
	}

	ds, err := s.lookup(name)
	if err != nil {
		return UpdateResult{}, err
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	if err := ds.tree.Update(ctx, index, value); err != nil {
		return UpdateResult{}, fmt.Errorf("update %q: %w", name, err)
	}
	ds.updatedAt = time.Now()

	return UpdateResult{
		Name:     name,
		Index:    index,
		Value:    value,
		Version:  ds.tree.Version(),
		CacheKey: ds.tree.CacheKey(),
	}, nil
}

// Summarize returns the statistics of elements left..right of the named
// dataset.
func (s *Service) Summarize(ctx context.Context, name string, left, right int) (sum segtree.Summary, err error) {
	ctx, span := tracer.Start(ctx, "Service.Summarize",
		trace.WithAttributes(
			attribute.String("dataset", name),
			attribute.Int("left", left),
			attribute.Int("right", right),
		),
	)
	defer func() { s.finish(ctx, span, "summarize", err) }()

	ds, err := s.lookup(name)
	if err != nil {
		return segtree.Summary{}, err
	}

	ds.mu.RLock()
	defer ds.mu.RUnlock()

	sum, err = ds.tree.Summarize(ctx, left, right)
	if err != nil {
		return segtree.Summary{}, fmt.Errorf("summarize %q: %w", name, err)
	}
	if err := checkSummary(sum); err != nil {
		return segtree.Summary{}, fmt.Errorf("summarize %q: %w", name, err)
	}
	return sum, nil
}

// Dump returns the debug dump of the named dataset's tree.
func (s *Service) Dump(ctx context.Context, name string) (string, error) {
	_, span := tracer.Start(ctx, "Service.Dump", trace.WithAttributes(attribute.String("dataset", name)))
	defer span.End()

	ds, err := s.lookup(name)
	if err != nil {
		return "", err
	}

	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.tree.Dump(), nil
}

// Count returns the number of registered datasets.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.datasets)
}

// TotalValues returns the number of values across all datasets.
func (s *Service) TotalValues() int64 {
	s.mu.RLock()
	all := make([]*dataset, 0, len(s.datasets))
	for _, ds := range s.datasets {
		all = append(all, ds)
	}
	s.mu.RUnlock()

	var total int64
	for _, ds := range all {
		ds.mu.RLock()
		total += int64(ds.tree.Len())
		ds.mu.RUnlock()
	}
	return total
}

func (s *Service) lookup(name string) (*dataset, error) {
	s.mu.RLock()
	ds, ok := s.datasets[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDatasetNotFound, name)
	}
	return ds, nil
}

// finish closes span and counts the operation.
func (s *Service) finish(ctx context.Context, span trace.Span, op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	if s.metrics != nil {
		s.metrics.DatasetOpsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("status", status),
		))
	}
}

// info builds a DatasetInfo. Caller must hold ds.mu or own ds exclusively.
func (ds *dataset) info() DatasetInfo {
	return DatasetInfo{
		Name:      ds.name,
		Len:       ds.tree.Len(),
		Version:   ds.tree.Version(),
		CacheKey:  ds.tree.CacheKey(),
		Values:    ds.tree.Values(),
		CreatedAt: ds.createdAt,
		UpdatedAt: ds.updatedAt,
	}
}

func (ds *dataset) readInfo() DatasetInfo {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.info()
}

// checkFinite rejects NaN and infinities, which JSON cannot carry, and
// values whose square overflows the sum of squares.
func checkFinite(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %v", ErrNonFiniteValue, v)
	}
	if math.IsInf(v*v, 0) {
		return fmt.Errorf("%w: %v squared overflows", ErrNonFiniteValue, v)
	}
	return nil
}

// checkSummary rejects summaries whose sums overflowed across many values.
func checkSummary(sum segtree.Summary) error {
	for _, v := range []float64{sum.Sum, sum.Mean, sum.Variance, sum.StdDev, sum.CoefficientOfVariation} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: [%d,%d]", ErrNumericOverflow, sum.Left, sum.Right)
		}
	}
	return nil
}

func validateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
