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
	"time"

	"github.com/AleutianAI/rangestats/services/rangestats/segtree"
)

// DatasetInfo is a point-in-time snapshot of a dataset.
type DatasetInfo struct {
	// Name is the dataset's registry key.
	Name string `json:"name"`

	// Len is the number of values.
	Len int `json:"len"`

	// Version increments on every successful update.
	Version int64 `json:"version"`

	// CacheKey changes whenever the contents change. Served as the ETag.
	CacheKey string `json:"cache_key"`

	// Values is a copy of the current values.
	Values []float64 `json:"values"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DatasetSummary is the list view of a dataset.
type DatasetSummary struct {
	Name      string    `json:"name"`
	Len       int       `json:"len"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateResult reports a successful point update.
type UpdateResult struct {
	Name     string  `json:"name"`
	Index    int     `json:"index"`
	Value    float64 `json:"value"`
	Version  int64   `json:"version"`
	CacheKey string  `json:"cache_key"`
}

// Window is the summary of one fixed-size window.
type Window struct {
	// Number is the 1-based window position.
	Number int `json:"number"`

	segtree.Summary
}

// WindowReport splits a dataset into consecutive windows of Size elements.
// The last window is shorter when Size does not divide the length.
type WindowReport struct {
	Name    string   `json:"name"`
	Size    int      `json:"size"`
	Windows []Window `json:"windows"`

	// MostStable is the window with the lowest variance (first on ties).
	MostStable Window `json:"most_stable"`

	// MostVolatile is the window with the highest variance (first on ties).
	MostVolatile Window `json:"most_volatile"`
}

// --- HTTP request and response types ---

// CreateDatasetRequest is the body of POST /v1/rangestats/datasets.
type CreateDatasetRequest struct {
	// Name must match [a-zA-Z0-9_-]{1,64}.
	Name string `json:"name" binding:"required,max=64"`

	// Values may be empty; queries on an empty dataset fail.
	Values []float64 `json:"values" binding:"required"`
}

// ReplaceDatasetRequest is the body of PUT /v1/rangestats/datasets/:name.
type ReplaceDatasetRequest struct {
	Values []float64 `json:"values" binding:"required"`
}

// UpdateValueRequest is the body of PUT .../values/:index.
type UpdateValueRequest struct {
	// Value is a pointer so a literal 0 is distinguishable from absent.
	Value *float64 `json:"value" binding:"required"`
}

// SummaryQuery binds ?left=&right= for the summary endpoint.
type SummaryQuery struct {
	Left  *int `form:"left" binding:"required"`
	Right *int `form:"right" binding:"required"`
}

// WindowsQuery binds ?size= for the windows endpoint.
type WindowsQuery struct {
	Size int `form:"size" binding:"required,min=1"`
}

// ListDatasetsResponse is returned by GET /v1/rangestats/datasets.
type ListDatasetsResponse struct {
	Datasets []DatasetSummary `json:"datasets"`
	Count    int              `json:"count"`
}

// DumpResponse is returned by GET .../dump.
type DumpResponse struct {
	Name string `json:"name"`
	Dump string `json:"dump"`
}

// HealthResponse is returned by GET /v1/rangestats/health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Datasets int    `json:"datasets"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code,omitempty"`

	// RequestID correlates the response with server logs.
	RequestID string `json:"request_id,omitempty"`
}
