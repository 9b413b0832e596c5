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
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tolerance = 1e-9

// Helper function to create test array
func makeTestArray(size int) []float64 {
	arr := make([]float64, size)
	for i := range arr {
		arr[i] = float64(i + 1)
	}
	return arr
}

// Helper function to create a random array from a fixed seed
func makeRandomArray(rng *rand.Rand, size int) []float64 {
	arr := make([]float64, size)
	for i := range arr {
		arr[i] = rng.Float64()*200 - 100
	}
	return arr
}

// naive computes the aggregate of arr[left..right] by scanning.
func naive(arr []float64, left, right int) Aggregate {
	agg := Neutral()
	for i := left; i <= right; i++ {
		agg = Merge(agg, Leaf(arr[i]))
	}
	return agg
}

func newTree(t *testing.T, arr []float64) *SegmentTree {
	t.Helper()
	tree, err := NewSegmentTree(context.Background(), arr)
	require.NoError(t, err)
	require.NotNil(t, tree)
	return tree
}

// =============================================================================
// Construction
// =============================================================================

func TestNewSegmentTree_ValidInput(t *testing.T) {
	tree := newTree(t, []float64{3, 1, 4, 2, 5, 7, 6, 8})

	assert.Equal(t, 8, tree.Len())
	assert.Equal(t, 32, len(tree.tree))
	assert.Equal(t, int64(1), tree.Version())
	assert.NoError(t, tree.Validate())
}

func TestNewSegmentTree_CopiesInput(t *testing.T) {
	arr := []float64{1, 2, 3}
	tree := newTree(t, arr)

	arr[0] = 100
	sum, err := tree.QuerySum(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 6.0, sum)
}

func TestNewSegmentTree_Sizes(t *testing.T) {
	sizes := []int{1, 2, 3, 4, 5, 7, 8, 9, 13, 16, 17, 100, 1000}
	for _, size := range sizes {
		arr := makeTestArray(size)
		tree := newTree(t, arr)

		assert.NoError(t, tree.Validate(), "size=%d", size)

		sum, err := tree.QuerySum(context.Background(), 0, size-1)
		require.NoError(t, err, "size=%d", size)
		assert.Equal(t, float64(size*(size+1)/2), sum, "size=%d", size)
	}
}

func TestNewSegmentTree_Empty(t *testing.T) {
	for _, arr := range [][]float64{nil, {}} {
		tree := newTree(t, arr)
		assert.Equal(t, 0, tree.Len())
		assert.Empty(t, tree.Values())
		assert.NoError(t, tree.Validate())
	}
}

func TestNewSegmentTree_NilContext(t *testing.T) {
	_, err := NewSegmentTree(nil, []float64{1, 2, 3}) //nolint:staticcheck
	assert.ErrorIs(t, err, ErrNilContext)
}

// =============================================================================
// Concrete scenarios
// =============================================================================

func TestSegmentTree_Scenario_FullRange(t *testing.T) {
	ctx := context.Background()
	tree := newTree(t, []float64{4, 8, 6, 2})

	variance, err := tree.QueryVariance(ctx, 0, 3)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, variance, tolerance)

	mean, err := tree.QueryMean(ctx, 0, 3)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, mean, tolerance)

	// Continues with a point update
	require.NoError(t, tree.Update(ctx, 1, 4))
	variance, err = tree.QueryVariance(ctx, 0, 3)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, variance, tolerance)
}

func TestSegmentTree_Scenario_SubRange(t *testing.T) {
	ctx := context.Background()
	tree := newTree(t, []float64{4, 8, 6, 2})

	sum, err := tree.QuerySum(ctx, 1, 2)
	require.NoError(t, err)
	assert.InDelta(t, 14.0, sum, tolerance)

	mean, err := tree.QueryMean(ctx, 1, 2)
	require.NoError(t, err)
	assert.InDelta(t, 7.0, mean, tolerance)

	variance, err := tree.QueryVariance(ctx, 1, 2)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, variance, tolerance)
}

func TestSegmentTree_Scenario_Empty(t *testing.T) {
	ctx := context.Background()
	tree := newTree(t, []float64{})

	_, err := tree.QueryVariance(ctx, 0, 0)
	assert.ErrorIs(t, err, ErrEmptyStructure)
	assert.ErrorIs(t, err, ErrInvalidIndex)

	_, err = tree.QuerySum(ctx, 0, 0)
	assert.ErrorIs(t, err, ErrEmptyStructure)

	err = tree.Update(ctx, 0, 1)
	assert.ErrorIs(t, err, ErrEmptyStructure)
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

func TestSegmentTree_Scenario_SingleElement(t *testing.T) {
	ctx := context.Background()
	tree := newTree(t, []float64{5})

	variance, err := tree.QueryVariance(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, variance)

	require.NoError(t, tree.Update(ctx, 0, 9))

	mean, err := tree.QueryMean(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 9.0, mean)
}

// =============================================================================
// Queries
// =============================================================================

func TestSegmentTree_Query_SubRanges(t *testing.T) {
	arr := []float64{3, 1, 4, 2, 5, 7, 6, 8}
	tree := newTree(t, arr)

	tests := []struct {
		left     int
		right    int
		expected float64
	}{
		{0, 3, 10}, // 3+1+4+2
		{2, 5, 18}, // 4+2+5+7
		{4, 7, 26}, // 5+7+6+8
		{1, 3, 7},  // 1+4+2
		{0, 7, 36},
		{6, 6, 6},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("[%d,%d]", tt.left, tt.right), func(t *testing.T) {
			agg, err := tree.Query(context.Background(), tt.left, tt.right)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, agg.Sum)
			assert.Equal(t, tt.right-tt.left+1, agg.Count)
		})
	}
}

func TestSegmentTree_Query_MatchesScan(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	for _, size := range []int{1, 2, 3, 10, 31, 64, 257} {
		arr := makeRandomArray(rng, size)
		tree := newTree(t, arr)

		for left := 0; left < size; left++ {
			for right := left; right < size; right += 1 + size/16 {
				want := naive(arr, left, right)
				got, err := tree.Query(ctx, left, right)
				require.NoError(t, err)

				assert.Equal(t, want.Count, got.Count, "size=%d [%d,%d]", size, left, right)
				assert.InDelta(t, want.Sum, got.Sum, tolerance*float64(size)*100, "size=%d [%d,%d]", size, left, right)
				assert.InDelta(t, want.Variance(), got.Variance(), 1e-6, "size=%d [%d,%d]", size, left, right)
			}
		}
	}
}

func TestSegmentTree_Summarize_SingleTraversal(t *testing.T) {
	tree := newTree(t, []float64{4, 8, 6, 2})
	before := tree.Stats().QueryCount

	s, err := tree.Summarize(context.Background(), 0, 3)
	require.NoError(t, err)

	assert.Equal(t, before+1, tree.Stats().QueryCount)
	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 20.0, s.Sum, tolerance)
	assert.InDelta(t, 5.0, s.Mean, tolerance)
	assert.InDelta(t, 5.0, s.Variance, tolerance)
	assert.InDelta(t, math.Sqrt(5), s.StdDev, tolerance)
}

func TestSegmentTree_QueryStdDev(t *testing.T) {
	tree := newTree(t, []float64{2, 4, 4, 4, 5, 5, 7, 9})
	std, err := tree.QueryStdDev(context.Background(), 0, 7)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, std, tolerance)
}

func TestSegmentTree_Query_InvalidRanges(t *testing.T) {
	tree := newTree(t, makeTestArray(5))

	tests := []struct {
		name  string
		left  int
		right int
	}{
		{"negative left", -1, 2},
		{"left out of bounds", 5, 5},
		{"negative right", 0, -1},
		{"right out of bounds", 0, 5},
		{"inverted", 3, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tree.Query(context.Background(), tt.left, tt.right)
			assert.ErrorIs(t, err, ErrInvalidIndex)
			assert.False(t, errors.Is(err, ErrEmptyStructure))

			_, err = tree.QueryVariance(context.Background(), tt.left, tt.right)
			assert.ErrorIs(t, err, ErrInvalidIndex)
		})
	}
}

func TestSegmentTree_Query_NilContext(t *testing.T) {
	tree := newTree(t, makeTestArray(3))
	_, err := tree.Query(nil, 0, 2) //nolint:staticcheck
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestSegmentTree_Query_FailedCallNotCounted(t *testing.T) {
	tree := newTree(t, makeTestArray(3))
	_, _ = tree.Query(context.Background(), 2, 1)
	assert.Equal(t, int64(0), tree.Stats().QueryCount)
}

// =============================================================================
// Updates
// =============================================================================

func TestSegmentTree_Update_SingleElement(t *testing.T) {
	ctx := context.Background()
	tree := newTree(t, []float64{1, 2, 3, 4, 5})

	require.NoError(t, tree.Update(ctx, 2, 10))

	sum, err := tree.QuerySum(ctx, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, 22.0, sum) // 1+2+10+4+5

	val, err := tree.QueryMean(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 10.0, val)

	assert.Equal(t, []float64{1, 2, 10, 4, 5}, tree.Values())
	assert.Equal(t, int64(2), tree.Version())
	assert.NoError(t, tree.Validate())
}

func TestSegmentTree_Update_AffectsOnlyCoveringRanges(t *testing.T) {
	ctx := context.Background()
	arr := makeTestArray(9)
	tree := newTree(t, arr)

	type span struct{ left, right int }
	ranges := []span{{0, 8}, {0, 3}, {4, 8}, {3, 5}, {5, 8}, {4, 4}, {0, 0}}

	before := make(map[span]float64)
	for _, r := range ranges {
		sum, err := tree.QuerySum(ctx, r.left, r.right)
		require.NoError(t, err)
		before[r] = sum
	}

	const index = 4
	oldValue := arr[index]
	newValue := -7.5
	require.NoError(t, tree.Update(ctx, index, newValue))
	assert.Equal(t, newValue, tree.Values()[index])

	for _, r := range ranges {
		sum, err := tree.QuerySum(ctx, r.left, r.right)
		require.NoError(t, err)
		if r.left <= index && index <= r.right {
			assert.InDelta(t, before[r]-oldValue+newValue, sum, tolerance, "range %v", r)
		} else {
			assert.Equal(t, before[r], sum, "range %v", r)
		}
	}
}

func TestSegmentTree_Update_InvalidIndex(t *testing.T) {
	ctx := context.Background()
	tree := newTree(t, []float64{1, 2, 3})
	key := tree.CacheKey()

	for _, index := range []int{-1, 3, 100} {
		t.Run(fmt.Sprintf("index=%d", index), func(t *testing.T) {
			err := tree.Update(ctx, index, 42)
			assert.ErrorIs(t, err, ErrInvalidIndex)
		})
	}

	// Rejected calls leave the tree untouched
	assert.Equal(t, []float64{1, 2, 3}, tree.Values())
	assert.Equal(t, int64(1), tree.Version())
	assert.Equal(t, key, tree.CacheKey())
	assert.NoError(t, tree.Validate())
}

func TestSegmentTree_Update_NilContext(t *testing.T) {
	tree := newTree(t, []float64{1})
	err := tree.Update(nil, 0, 2) //nolint:staticcheck
	assert.ErrorIs(t, err, ErrNilContext)
	assert.Equal(t, []float64{1}, tree.Values())
}

func TestSegmentTree_Update_SpecialValues(t *testing.T) {
	ctx := context.Background()
	tree := newTree(t, []float64{1, 2, 3})

	require.NoError(t, tree.Update(ctx, 1, math.NaN()))
	assert.NoError(t, tree.Validate())

	sum, err := tree.QuerySum(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, sum)

	sum, err = tree.QuerySum(ctx, 0, 2)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(sum))
}

// =============================================================================
// Properties
// =============================================================================

func TestSegmentTree_Property_SplitMerge(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(11))
	arr := makeRandomArray(rng, 50)
	tree := newTree(t, arr)

	total, err := tree.Query(ctx, 0, len(arr)-1)
	require.NoError(t, err)

	for k := 0; k < len(arr)-1; k++ {
		left, err := tree.Query(ctx, 0, k)
		require.NoError(t, err)
		right, err := tree.Query(ctx, k+1, len(arr)-1)
		require.NoError(t, err)

		merged := Merge(left, right)
		assert.Equal(t, total.Count, merged.Count, "k=%d", k)
		assert.InDelta(t, total.Sum, merged.Sum, tolerance*1e3, "k=%d", k)
		assert.InDelta(t, total.SumOfSquares, merged.SumOfSquares, tolerance*1e5, "k=%d", k)
	}
}

func TestSegmentTree_Property_VarianceNonNegative(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(13))

	arrays := [][]float64{
		makeRandomArray(rng, 40),
		{0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1},
		{1e8, 1e8 + 1e-8, 1e8, 1e8},
		{-3, -3, -3},
	}

	for _, arr := range arrays {
		tree := newTree(t, arr)
		for left := 0; left < len(arr); left++ {
			for right := left; right < len(arr); right++ {
				v, err := tree.QueryVariance(ctx, left, right)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, v, 0.0, "[%d,%d]", left, right)
			}
		}
	}
}

func TestSegmentTree_Property_SingleElementRanges(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(17))
	arr := makeRandomArray(rng, 33)
	tree := newTree(t, arr)

	for i, v := range tree.Values() {
		variance, err := tree.QueryVariance(ctx, i, i)
		require.NoError(t, err)
		assert.Equal(t, 0.0, variance, "i=%d", i)

		mean, err := tree.QueryMean(ctx, i, i)
		require.NoError(t, err)
		assert.Equal(t, v, mean, "i=%d", i)
	}
}

func TestSegmentTree_Property_RebuildEquivalence(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(19))

	for _, size := range []int{1, 2, 5, 16, 37} {
		source := makeRandomArray(rng, size)
		target := makeRandomArray(rng, size)

		updated := newTree(t, source)
		for _, i := range rng.Perm(size) {
			require.NoError(t, updated.Update(ctx, i, target[i]))
		}
		fresh := newTree(t, target)

		assert.Equal(t, fresh.Values(), updated.Values(), "size=%d", size)
		assert.NoError(t, updated.Validate())

		for left := 0; left < size; left++ {
			for right := left; right < size; right++ {
				want, err := fresh.Summarize(ctx, left, right)
				require.NoError(t, err)
				got, err := updated.Summarize(ctx, left, right)
				require.NoError(t, err)

				assert.InDelta(t, want.Sum, got.Sum, tolerance, "size=%d [%d,%d]", size, left, right)
				assert.InDelta(t, want.Mean, got.Mean, tolerance, "size=%d [%d,%d]", size, left, right)
				assert.InDelta(t, want.Variance, got.Variance, tolerance, "size=%d [%d,%d]", size, left, right)
			}
		}
	}
}

// =============================================================================
// Accessors and metadata
// =============================================================================

func TestSegmentTree_Values_DefensiveCopy(t *testing.T) {
	tree := newTree(t, []float64{1, 2, 3})

	values := tree.Values()
	values[0] = 99

	assert.Equal(t, []float64{1, 2, 3}, tree.Values())
	sum, err := tree.QuerySum(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, sum)
}

func TestSegmentTree_Validate_DetectsCorruption(t *testing.T) {
	tree := newTree(t, makeTestArray(6))
	require.NoError(t, tree.Validate())

	tree.tree[0] = Leaf(1)
	assert.Error(t, tree.Validate())

	tree = newTree(t, makeTestArray(6))
	tree.data[2] = 100 // leaf no longer matches data
	assert.Error(t, tree.Validate())
}

func TestSegmentTree_Stats(t *testing.T) {
	ctx := context.Background()
	tree := newTree(t, makeTestArray(5))

	_, err := tree.QuerySum(ctx, 0, 4)
	require.NoError(t, err)
	require.NoError(t, tree.Update(ctx, 0, 3))

	stats := tree.Stats()
	assert.Equal(t, 5, stats.Size)
	assert.Equal(t, 20, stats.TreeSize)
	assert.Equal(t, 4, stats.Height)
	assert.Equal(t, int64(1), stats.QueryCount)
	assert.Equal(t, int64(1), stats.UpdateCount)
	assert.Equal(t, int64(2), stats.Version)
	assert.Greater(t, stats.MemoryBytes, 0)
}

func TestSegmentTree_Height(t *testing.T) {
	tests := []struct {
		size   int
		height int
	}{
		{0, 0}, {1, 1}, {2, 2}, {3, 3}, {4, 3}, {5, 4}, {8, 4}, {9, 5},
	}
	for _, tt := range tests {
		tree := newTree(t, makeTestArray(tt.size))
		assert.Equal(t, tt.height, tree.Stats().Height, "size=%d", tt.size)
	}
}

func TestSegmentTree_CacheKey(t *testing.T) {
	ctx := context.Background()
	a := newTree(t, []float64{1, 2, 3})
	b := newTree(t, []float64{1, 2, 3})
	c := newTree(t, []float64{1, 2, 4})

	assert.Equal(t, a.CacheKey(), b.CacheKey())
	assert.NotEqual(t, a.CacheKey(), c.CacheKey())
	assert.Contains(t, a.CacheKey(), ":v1")

	require.NoError(t, a.Update(ctx, 2, 4))
	assert.NotEqual(t, b.CacheKey(), a.CacheKey())
	assert.Contains(t, a.CacheKey(), ":v2")
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkSegmentTree_Query(b *testing.B) {
	ctx := context.Background()
	tree, _ := NewSegmentTree(ctx, makeTestArray(1<<16))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		left := i % (1 << 15)
		_, _ = tree.Query(ctx, left, left+(1<<14))
	}
}

func BenchmarkSegmentTree_Update(b *testing.B) {
	ctx := context.Background()
	tree, _ := NewSegmentTree(ctx, makeTestArray(1<<16))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tree.Update(ctx, i%(1<<16), float64(i))
	}
}
