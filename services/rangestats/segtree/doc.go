// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package segtree provides a segment tree for statistical range queries.
//
// The tree stores, for every node, the Aggregate (sum, sum of squares,
// count) of the contiguous index range it covers. Any range's count, sum,
// mean and variance are derived from a single O(log N) traversal, and a
// point update recomputes only the O(log N) nodes on the root-to-leaf path.
//
// # Layout
//
// The tree is implicit and array-backed. Node 0 is the root and covers
// [0, N-1]; the children of node i are 2i+1 and 2i+2. A node covering
// [left, right] splits at mid = left + (right-left)/2, so the lower half
// gets the extra element when the length is odd. Ranges are computed during
// recursion and never stored. The node array has 4N slots.
//
// # Empty-Range Conventions
//
// Mean and variance of an Aggregate with Count == 0 are both reported as 0.
// This is a policy, not a mathematical fact: the mean of zero elements is
// undefined. Public queries never produce an empty aggregate because range
// bounds are validated before the traversal starts.
//
// # Errors
//
// Out-of-range indices and inverted ranges return ErrInvalidIndex. Any query
// or update on a tree built from an empty slice returns ErrEmptyStructure,
// which also matches ErrInvalidIndex via errors.Is. A rejected call leaves
// the tree unchanged.
//
// # Thread Safety
//
// SegmentTree has no internal synchronization. Concurrent Update calls, or
// a query concurrent with an Update, are data races. Callers that share a
// tree across goroutines must serialize access themselves, for example with
// a sync.RWMutex held for writing around Update and for reading around
// queries. Queries on their own may run concurrently.
package segtree
