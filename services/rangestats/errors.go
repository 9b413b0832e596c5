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

import "errors"

// Sentinel errors for the rangestats service.
var (
	// ErrDatasetNotFound indicates no dataset is registered under the name.
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrDatasetExists indicates Create was called for a registered name.
	ErrDatasetExists = errors.New("dataset already exists")

	// ErrInvalidName indicates a dataset name outside [a-zA-Z0-9_-]{1,64}.
	ErrInvalidName = errors.New("invalid dataset name")

	// ErrDatasetTooLarge indicates the value count exceeds MaxDatasetSize.
	ErrDatasetTooLarge = errors.New("dataset exceeds maximum size")

	// ErrTooManyDatasets indicates the registry is at MaxDatasets.
	ErrTooManyDatasets = errors.New("too many datasets")

	// ErrNonFiniteValue indicates a NaN or infinite value, or one whose
	// square is infinite.
	ErrNonFiniteValue = errors.New("value must be finite")

	// ErrNumericOverflow indicates range statistics that overflow float64.
	ErrNumericOverflow = errors.New("range statistics overflow")

	// ErrInvalidWindow indicates a window size below 1.
	ErrInvalidWindow = errors.New("window size must be at least 1")
)
