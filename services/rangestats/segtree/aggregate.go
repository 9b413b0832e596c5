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
	"fmt"
	"math"
)

// Aggregate summarizes a contiguous index range.
//
// Description:
//
//	Holds the sum, sum of squares and element count of a range. Mean and
//	variance are derived on demand, so two aggregates can be combined with
//	Merge without re-reading the elements.
//
// Invariants:
//   - Count >= 0
//   - SumOfSquares/Count >= (Sum/Count)^2 up to floating-point error
//   - The zero value is the neutral aggregate (zero elements)
//
// Aggregates are values. They are replaced, never mutated in place.
type Aggregate struct {
	Sum          float64 `json:"sum"`
	SumOfSquares float64 `json:"sum_of_squares"`
	Count        int     `json:"count"`
}

// Neutral returns the identity element for Merge.
func Neutral() Aggregate {
	return Aggregate{}
}

// Leaf returns the aggregate of the single value v.
func Leaf(v float64) Aggregate {
	return Aggregate{Sum: v, SumOfSquares: v * v, Count: 1}
}

// Merge combines the aggregates of two disjoint ranges.
//
// Merge is associative and commutative, and Merge(Neutral(), x) == x.
//
// Thread Safety: Safe for concurrent use (pure function).
func Merge(a, b Aggregate) Aggregate {
	return Aggregate{
		Sum:          a.Sum + b.Sum,
		SumOfSquares: a.SumOfSquares + b.SumOfSquares,
		Count:        a.Count + b.Count,
	}
}

// IsNeutral reports whether the aggregate covers zero elements.
func (a Aggregate) IsNeutral() bool {
	return a.Count == 0
}

// Mean returns Sum/Count, or 0 when Count is 0.
//
// Zero for an empty aggregate is a convention. The true mean of zero
// elements is undefined.
func (a Aggregate) Mean() float64 {
	if a.Count == 0 {
		return 0
	}
	return a.Sum / float64(a.Count)
}

// Variance returns the population variance E[X²] - (E[X])².
//
// Description:
//
//	Returns 0 for an empty aggregate (convention). Otherwise the result is
//	clamped at 0: floating-point cancellation can make the difference
//	slightly negative when the true variance is (close to) zero.
func (a Aggregate) Variance() float64 {
	if a.Count == 0 {
		return 0
	}
	n := float64(a.Count)
	mean := a.Sum / n
	variance := a.SumOfSquares/n - mean*mean
	if variance < 0 {
		return 0
	}
	return variance
}

// StdDev returns the population standard deviation.
func (a Aggregate) StdDev() float64 {
	return math.Sqrt(a.Variance())
}

// CoefficientOfVariation returns StdDev/|Mean| as a percentage.
//
// Returns 0 when the mean is 0.
func (a Aggregate) CoefficientOfVariation() float64 {
	mean := a.Mean()
	if mean == 0 {
		return 0
	}
	return a.StdDev() / math.Abs(mean) * 100
}

// identical reports bitwise equality, so NaN sums compare equal to themselves.
func (a Aggregate) identical(b Aggregate) bool {
	return a.Count == b.Count &&
		math.Float64bits(a.Sum) == math.Float64bits(b.Sum) &&
		math.Float64bits(a.SumOfSquares) == math.Float64bits(b.SumOfSquares)
}

// String returns a compact diagnostic rendering.
func (a Aggregate) String() string {
	return fmt.Sprintf("sum=%g sumsq=%g n=%d var=%.4f", a.Sum, a.SumOfSquares, a.Count, a.Variance())
}

// Summary projects an aggregate for the range [Left, Right].
type Summary struct {
	Left                   int     `json:"left"`
	Right                  int     `json:"right"`
	Count                  int     `json:"count"`
	Sum                    float64 `json:"sum"`
	Mean                   float64 `json:"mean"`
	Variance               float64 `json:"variance"`
	StdDev                 float64 `json:"std_dev"`
	CoefficientOfVariation float64 `json:"coefficient_of_variation"`
}

// Summarize projects the aggregate of [left, right] into a Summary.
func (a Aggregate) Summarize(left, right int) Summary {
	return Summary{
		Left:                   left,
		Right:                  right,
		Count:                  a.Count,
		Sum:                    a.Sum,
		Mean:                   a.Mean(),
		Variance:               a.Variance(),
		StdDev:                 a.StdDev(),
		CoefficientOfVariation: a.CoefficientOfVariation(),
	}
}
