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
	"errors"
	"fmt"
)

// Sentinel errors for segment tree operations.
var (
	// ErrInvalidIndex is returned when an index lies outside [0, N-1] or a
	// query range has left > right.
	ErrInvalidIndex = errors.New("invalid index")

	// ErrEmptyStructure is returned for any query or update on a tree built
	// from an empty slice. Errors carrying it also match ErrInvalidIndex.
	ErrEmptyStructure = errors.New("segment tree is empty")

	// ErrArrayTooLarge is returned when the input cannot be addressed by a
	// 4N node array.
	ErrArrayTooLarge = errors.New("array size exceeds maximum")

	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("ctx must not be nil")
)

// emptyStructureError reports an operation on an empty tree.
func emptyStructureError(op string) error {
	return fmt.Errorf("%s: %w: %w", op, ErrEmptyStructure, ErrInvalidIndex)
}
