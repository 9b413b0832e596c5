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
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"math/bits"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxSize is the largest input NewSegmentTree accepts.
const MaxSize = math.MaxInt32 / 4

// SegmentTree answers count, sum, mean and variance over index ranges.
//
// Description:
//
//	An implicit binary tree of Aggregate values over a fixed-length slice
//	of float64. Construction is O(N); range queries and point updates are
//	O(log N).
//
// Invariants:
//   - len(data) == size and len(tree) == 4*size
//   - tree[0] covers [0, size-1]; children of node i are 2i+1 and 2i+2
//   - A node covering [l, r] with l < r equals
//     Merge(node(l, mid), node(mid+1, r)) where mid = l + (r-l)/2
//   - A leaf covering [i, i] equals Leaf(data[i])
//   - version increments on each successful Update
//
// Thread Safety:
//   - No internal locking. See the package documentation.
//   - Query counters are atomic so concurrent readers do not race.
type SegmentTree struct {
	data []float64   // Current values, indices 0..size-1
	tree []Aggregate // Implicit tree, 4*size slots
	size int

	// Metadata
	version     int64
	buildTime   time.Duration
	queryCount  atomic.Int64
	updateCount int64
}

// SegmentTreeStats contains statistics about the segment tree.
type SegmentTreeStats struct {
	Size        int           `json:"size"`         // Number of leaves
	TreeSize    int           `json:"tree_size"`    // Allocated node slots
	Height      int           `json:"height"`       // Levels from root to deepest leaf
	BuildTime   time.Duration `json:"build_time"`   // Construction time
	QueryCount  int64         `json:"query_count"`  // Successful queries performed
	UpdateCount int64         `json:"update_count"` // Successful updates performed
	Version     int64         `json:"version"`      // Current version
	MemoryBytes int           `json:"memory_bytes"` // Approximate memory usage
}

// NewSegmentTree builds a segment tree over values.
//
// Description:
//
//	Copies values and builds the tree by recursive halving. An empty slice
//	is accepted and yields a tree that rejects every query and update with
//	ErrEmptyStructure.
//
// Algorithm:
//
//	Time:  O(N) where N = len(values)
//	Space: O(N) - 4N aggregates plus a copy of values
//
// Inputs:
//   - ctx: Context for tracing. Must not be nil.
//   - values: Initial values. The caller keeps ownership of the slice.
//
// Outputs:
//   - *SegmentTree: Constructed tree. Never nil on success.
//   - error: Non-nil if ctx is nil or values is too large.
//
// Example:
//
//	tree, err := segtree.NewSegmentTree(ctx, []float64{4, 8, 6, 2})
//	if err != nil {
//	    return fmt.Errorf("build segment tree: %w", err)
//	}
//	variance, _ := tree.QueryVariance(ctx, 0, 3) // 5.0
//
// Thread Safety: Safe for concurrent use with different inputs.
func NewSegmentTree(ctx context.Context, values []float64) (*SegmentTree, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if len(values) > MaxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrArrayTooLarge, len(values), MaxSize)
	}

	ctx, span := tracer.Start(ctx, "segtree.NewSegmentTree",
		trace.WithAttributes(attribute.Int("size", len(values))),
	)
	defer span.End()

	start := time.Now()
	size := len(values)
	data := make([]float64, size)
	copy(data, values)

	st := &SegmentTree{
		data:    data,
		tree:    make([]Aggregate, 4*size),
		size:    size,
		version: 1,
	}

	if size > 0 {
		span.AddEvent("building_tree")
		st.build(0, 0, size-1)
	}
	st.buildTime = time.Since(start)

	if err := st.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		recordValidationError(ctx)
		slog.Error("segment tree validation failed",
			slog.Int("size", size),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("segment tree validation: %w", err)
	}

	span.SetAttributes(
		attribute.Int("height", st.height()),
		attribute.Int64("build_time_us", st.buildTime.Microseconds()),
		attribute.Int("memory_bytes", st.MemoryUsage()),
	)
	recordBuildMetrics(ctx, size, st.buildTime)

	slog.Debug("segment tree constructed",
		slog.Int("size", size),
		slog.Int("height", st.height()),
		slog.Duration("build_time", st.buildTime),
	)

	span.SetStatus(codes.Ok, "segment tree constructed")
	return st, nil
}

// build fills node, which covers [left, right], and its whole subtree.
func (st *SegmentTree) build(node, left, right int) {
	if left == right {
		st.tree[node] = Leaf(st.data[left])
		return
	}

	mid := left + (right-left)/2
	st.build(2*node+1, left, mid)
	st.build(2*node+2, mid+1, right)
	st.tree[node] = Merge(st.tree[2*node+1], st.tree[2*node+2])
}

// Len returns the number of values in the tree.
func (st *SegmentTree) Len() int {
	return st.size
}

// Query returns the aggregate of [left, right] (inclusive).
//
// Description:
//
//	The single traversal every range statistic is derived from. The result
//	is a value; it does not alias tree storage.
//
// Algorithm:
//
//	Time:  O(log N)
//	Space: O(log N) recursion depth
//
// Inputs:
//   - ctx: Context for tracing. Must not be nil.
//   - left: Left boundary (0-indexed, inclusive). Must be in [0, Len()).
//   - right: Right boundary (0-indexed, inclusive). Must be in [left, Len()).
//
// Outputs:
//   - Aggregate: Sum, sum of squares and count over the range.
//   - error: ErrInvalidIndex or ErrEmptyStructure if the range is invalid.
//
// Thread Safety: Safe for concurrent reads; not concurrent with Update.
func (st *SegmentTree) Query(ctx context.Context, left, right int) (Aggregate, error) {
	if ctx == nil {
		return Neutral(), ErrNilContext
	}

	ctx, span := tracer.Start(ctx, "segtree.SegmentTree.Query",
		trace.WithAttributes(
			attribute.Int("left", left),
			attribute.Int("right", right),
		),
	)
	defer span.End()

	if err := st.validateRange(left, right); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordQueryMetrics(ctx, 0, false)
		return Neutral(), err
	}

	start := time.Now()
	result := st.queryRec(0, 0, st.size-1, left, right)
	st.queryCount.Add(1)
	recordQueryMetrics(ctx, time.Since(start), true)

	span.SetAttributes(attribute.Int("count", result.Count))
	span.SetStatus(codes.Ok, "query complete")
	return result, nil
}

// validateRange validates query range bounds.
func (st *SegmentTree) validateRange(left, right int) error {
	if st.size == 0 {
		return emptyStructureError(fmt.Sprintf("query [%d,%d]", left, right))
	}
	if left < 0 || left >= st.size {
		return fmt.Errorf("%w: left index %d out of bounds [0,%d)", ErrInvalidIndex, left, st.size)
	}
	if right < 0 || right >= st.size {
		return fmt.Errorf("%w: right index %d out of bounds [0,%d)", ErrInvalidIndex, right, st.size)
	}
	if left > right {
		return fmt.Errorf("%w: left %d > right %d", ErrInvalidIndex, left, right)
	}
	return nil
}

// queryRec aggregates [qL, qR] within node covering [nodeL, nodeR].
func (st *SegmentTree) queryRec(node, nodeL, nodeR, qL, qR int) Aggregate {
	// No overlap
	if qR < nodeL || qL > nodeR {
		return Neutral()
	}

	// Fully contained
	if qL <= nodeL && nodeR <= qR {
		return st.tree[node]
	}

	mid := nodeL + (nodeR-nodeL)/2
	leftResult := st.queryRec(2*node+1, nodeL, mid, qL, qR)
	rightResult := st.queryRec(2*node+2, mid+1, nodeR, qL, qR)
	return Merge(leftResult, rightResult)
}

// Summarize returns every statistic of [left, right] from one traversal.
func (st *SegmentTree) Summarize(ctx context.Context, left, right int) (Summary, error) {
	agg, err := st.Query(ctx, left, right)
	if err != nil {
		return Summary{}, err
	}
	return agg.Summarize(left, right), nil
}

// QuerySum returns the sum of [left, right].
func (st *SegmentTree) QuerySum(ctx context.Context, left, right int) (float64, error) {
	agg, err := st.Query(ctx, left, right)
	if err != nil {
		return 0, err
	}
	return agg.Sum, nil
}

// QueryMean returns the mean of [left, right].
func (st *SegmentTree) QueryMean(ctx context.Context, left, right int) (float64, error) {
	agg, err := st.Query(ctx, left, right)
	if err != nil {
		return 0, err
	}
	return agg.Mean(), nil
}

// QueryVariance returns the population variance of [left, right].
func (st *SegmentTree) QueryVariance(ctx context.Context, left, right int) (float64, error) {
	agg, err := st.Query(ctx, left, right)
	if err != nil {
		return 0, err
	}
	return agg.Variance(), nil
}

// QueryStdDev returns the population standard deviation of [left, right].
func (st *SegmentTree) QueryStdDev(ctx context.Context, left, right int) (float64, error) {
	agg, err := st.Query(ctx, left, right)
	if err != nil {
		return 0, err
	}
	return agg.StdDev(), nil
}

// Update sets values[index] = value and recomputes the path to the root.
//
// Description:
//
//	The stored value is replaced first, then the leaf and every ancestor
//	are recomputed on the way back up. The tree invariant holds again
//	before Update returns. Any float64 is accepted as value.
//
// Algorithm:
//
//	Time:  O(log N)
//	Space: O(log N) recursion depth
//
// Inputs:
//   - ctx: Context for tracing. Must not be nil.
//   - index: Index to update (0-indexed). Must be in [0, Len()).
//   - value: New value.
//
// Outputs:
//   - error: ErrInvalidIndex or ErrEmptyStructure if index is invalid. The
//     tree is not modified on error.
//
// Example:
//
//	err := tree.Update(ctx, 1, 4) // [4,8,6,2] -> [4,4,6,2]
//
// Thread Safety: NOT safe for concurrent use. Caller must synchronize.
func (st *SegmentTree) Update(ctx context.Context, index int, value float64) error {
	if ctx == nil {
		return ErrNilContext
	}

	ctx, span := tracer.Start(ctx, "segtree.SegmentTree.Update",
		trace.WithAttributes(
			attribute.Int("index", index),
			attribute.Float64("value", value),
		),
	)
	defer span.End()

	if err := st.validateIndex(index); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordUpdateMetrics(ctx, false)
		return err
	}

	st.data[index] = value
	st.updateRec(0, 0, st.size-1, index, value)
	st.updateCount++
	st.version++
	recordUpdateMetrics(ctx, true)

	span.SetAttributes(attribute.Int64("version", st.version))
	span.SetStatus(codes.Ok, "update complete")
	return nil
}

// validateIndex validates a point index.
func (st *SegmentTree) validateIndex(index int) error {
	if st.size == 0 {
		return emptyStructureError(fmt.Sprintf("update index %d", index))
	}
	if index < 0 || index >= st.size {
		return fmt.Errorf("%w: index %d out of bounds [0,%d)", ErrInvalidIndex, index, st.size)
	}
	return nil
}

// updateRec replaces the leaf for index under node covering [nodeL, nodeR].
func (st *SegmentTree) updateRec(node, nodeL, nodeR, index int, value float64) {
	if nodeL == nodeR {
		st.tree[node] = Leaf(value)
		return
	}

	mid := nodeL + (nodeR-nodeL)/2
	if index <= mid {
		st.updateRec(2*node+1, nodeL, mid, index, value)
	} else {
		st.updateRec(2*node+2, mid+1, nodeR, index, value)
	}

	st.tree[node] = Merge(st.tree[2*node+1], st.tree[2*node+2])
}

// Values returns a copy of the current values.
func (st *SegmentTree) Values() []float64 {
	out := make([]float64, st.size)
	copy(out, st.data)
	return out
}

// Validate checks segment tree invariants.
//
// Description:
//
//	Verifies:
//	- Data and node arrays have the expected sizes
//	- Every leaf equals Leaf(data[i])
//	- Every internal node equals Merge of its children
//
// Merge is deterministic, so the comparison is bitwise.
//
// Complexity: O(N) time
//
// Thread Safety: Read-only; not concurrent with Update.
func (st *SegmentTree) Validate() error {
	if len(st.data) != st.size {
		return fmt.Errorf("data size mismatch: got %d, expected %d", len(st.data), st.size)
	}
	if len(st.tree) != 4*st.size {
		return fmt.Errorf("tree size mismatch: got %d, expected %d", len(st.tree), 4*st.size)
	}
	if st.size == 0 {
		return nil
	}
	return st.validateRec(0, 0, st.size-1)
}

func (st *SegmentTree) validateRec(node, left, right int) error {
	if left == right {
		if want := Leaf(st.data[left]); !st.tree[node].identical(want) {
			return fmt.Errorf("leaf %d [%d,%d]: got {%v}, expected {%v}", node, left, right, st.tree[node], want)
		}
		return nil
	}

	mid := left + (right-left)/2
	if err := st.validateRec(2*node+1, left, mid); err != nil {
		return err
	}
	if err := st.validateRec(2*node+2, mid+1, right); err != nil {
		return err
	}

	if want := Merge(st.tree[2*node+1], st.tree[2*node+2]); !st.tree[node].identical(want) {
		return fmt.Errorf("node %d [%d,%d]: got {%v}, merge of children is {%v}", node, left, right, st.tree[node], want)
	}
	return nil
}

// height returns the number of levels from the root to the deepest leaf.
func (st *SegmentTree) height() int {
	if st.size == 0 {
		return 0
	}
	return bits.Len(uint(st.size-1)) + 1
}

// Stats returns statistics about the segment tree.
func (st *SegmentTree) Stats() SegmentTreeStats {
	return SegmentTreeStats{
		Size:        st.size,
		TreeSize:    len(st.tree),
		Height:      st.height(),
		BuildTime:   st.buildTime,
		QueryCount:  st.queryCount.Load(),
		UpdateCount: st.updateCount,
		Version:     st.version,
		MemoryBytes: st.MemoryUsage(),
	}
}

// Version returns the current version. It starts at 1 and increments on
// every successful Update.
func (st *SegmentTree) Version() int64 {
	return st.version
}

// MemoryUsage estimates memory usage in bytes.
func (st *SegmentTree) MemoryUsage() int {
	treeBytes := len(st.tree) * 24 // float64 + float64 + int
	dataBytes := len(st.data) * 8
	structOverhead := 128

	return treeBytes + dataBytes + structOverhead
}

// CacheKey generates a cache key for the current contents.
//
// Description:
//
//	Deterministic over size, version and values. Two trees holding the
//	same values at the same version produce the same key.
func (st *SegmentTree) CacheKey() string {
	h := sha256.New()

	binary.Write(h, binary.LittleEndian, int64(st.size))
	binary.Write(h, binary.LittleEndian, st.version)
	for _, v := range st.data {
		binary.Write(h, binary.LittleEndian, math.Float64bits(v))
	}

	return fmt.Sprintf("segtree:%x:v%d", h.Sum(nil)[:16], st.version)
}
