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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/rangestats/services/rangestats/segtree"
)

// Windows splits the named dataset into consecutive windows of size
// elements and summarizes each one.
//
// Description:
//
//	Windows are [0,size-1], [size,2*size-1], ... with a shorter final
//	window when size does not divide the length. Each window costs one
//	O(log n) range query. The report also names the windows with the
//	lowest and highest variance.
//
// Inputs:
//
//	name - Dataset name.
//	size - Window length. Must be >= 1.
//
// Outputs:
//
//	WindowReport - Per-window summaries plus extremes.
//	error - ErrDatasetNotFound, ErrInvalidWindow, ErrNumericOverflow, or
//	        segtree.ErrEmptyStructure for an empty dataset.
//
// Thread Safety: Holds the dataset read lock for the whole scan, so every
// window reflects the same version.
func (s *Service) Windows(ctx context.Context, name string, size int) (report WindowReport, err error) {
	ctx, span := tracer.Start(ctx, "Service.Windows",
		trace.WithAttributes(
			attribute.String("dataset", name),
			attribute.Int("size", size),
		),
	)
	defer func() { s.finish(ctx, span, "windows", err) }()

	if size < 1 {
		return WindowReport{}, fmt.Errorf("%w: got %d", ErrInvalidWindow, size)
	}

	ds, err := s.lookup(name)
	if err != nil {
		return WindowReport{}, err
	}

	ds.mu.RLock()
	defer ds.mu.RUnlock()

	n := ds.tree.Len()
	if n == 0 {
		return WindowReport{}, fmt.Errorf("windows %q: %w: %w", name, segtree.ErrEmptyStructure, segtree.ErrInvalidIndex)
	}

	// A window longer than the dataset covers all of it; clamping keeps the
	// index arithmetic below from overflowing.
	step := min(size, n)

	windows := make([]Window, 0, n/step+1)
	for left := 0; left < n; left += step {
		right := min(left+step-1, n-1)
		sum, err := ds.tree.Summarize(ctx, left, right)
		if err != nil {
			return WindowReport{}, fmt.Errorf("windows %q [%d,%d]: %w", name, left, right, err)
		}
		if err := checkSummary(sum); err != nil {
			return WindowReport{}, fmt.Errorf("windows %q [%d,%d]: %w", name, left, right, err)
		}
		windows = append(windows, Window{Number: len(windows) + 1, Summary: sum})
	}

	span.SetAttributes(attribute.Int("windows", len(windows)))

	stable, volatile := windows[0], windows[0]
	for _, w := range windows[1:] {
		if w.Variance < stable.Variance {
			stable = w
		}
		if w.Variance > volatile.Variance {
			volatile = w
		}
	}

	return WindowReport{
		Name:         name,
		Size:         size,
		Windows:      windows,
		MostStable:   stable,
		MostVolatile: volatile,
	}, nil
}
