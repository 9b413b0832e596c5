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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/rangestats/services/rangestats/segtree"
)

// ServiceVersion is the rangestats API version.
const ServiceVersion = "1.0.0"

// Handlers contains the HTTP handlers for the rangestats API.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleHealth handles GET /v1/rangestats/health.
//
// Response:
//
//	200 OK: HealthResponse
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "healthy",
		Version:  ServiceVersion,
		Datasets: h.svc.Count(),
	})
}

// HandleListDatasets handles GET /v1/rangestats/datasets.
//
// Response:
//
//	200 OK: ListDatasetsResponse
func (h *Handlers) HandleListDatasets(c *gin.Context) {
	datasets := h.svc.List()
	c.JSON(http.StatusOK, ListDatasetsResponse{
		Datasets: datasets,
		Count:    len(datasets),
	})
}

// HandleCreateDataset handles POST /v1/rangestats/datasets.
//
// Request Body:
//
//	CreateDatasetRequest
//
// Response:
//
//	201 Created: DatasetInfo
//	400 Bad Request: Invalid body, name, or values
//	409 Conflict: Name already registered
//	413 Request Entity Too Large: Too many values
func (h *Handlers) HandleCreateDataset(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCreateDataset")

	var req CreateDatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, logger, requestID, "Invalid request body", err)
		return
	}

	info, err := h.svc.Create(c.Request.Context(), req.Name, req.Values)
	if err != nil {
		writeError(c, logger, requestID, err)
		return
	}

	logger.Info("Dataset created", "dataset", info.Name, "len", info.Len)
	c.Header("ETag", etag(info.CacheKey))
	c.JSON(http.StatusCreated, info)
}

// HandleGetDataset handles GET /v1/rangestats/datasets/:name.
//
// Description:
//
//	Returns the dataset's values and metadata. The ETag is the tree's cache
//	key; a matching If-None-Match yields 304 with no body.
//
// Response:
//
//	200 OK: DatasetInfo
//	304 Not Modified
//	404 Not Found
func (h *Handlers) HandleGetDataset(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetDataset")

	info, err := h.svc.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, logger, requestID, err)
		return
	}

	tag := etag(info.CacheKey)
	c.Header("ETag", tag)
	if c.GetHeader("If-None-Match") == tag {
		c.Status(http.StatusNotModified)
		return
	}
	c.JSON(http.StatusOK, info)
}

// HandleReplaceDataset handles PUT /v1/rangestats/datasets/:name.
//
// Response:
//
//	200 OK: DatasetInfo
//	400 Bad Request: Invalid body, name, or values
func (h *Handlers) HandleReplaceDataset(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleReplaceDataset")

	var req ReplaceDatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, logger, requestID, "Invalid request body", err)
		return
	}

	info, err := h.svc.Replace(c.Request.Context(), c.Param("name"), req.Values)
	if err != nil {
		writeError(c, logger, requestID, err)
		return
	}

	logger.Info("Dataset replaced", "dataset", info.Name, "len", info.Len)
	c.Header("ETag", etag(info.CacheKey))
	c.JSON(http.StatusOK, info)
}

// HandleDeleteDataset handles DELETE /v1/rangestats/datasets/:name.
//
// Response:
//
//	204 No Content
//	404 Not Found
func (h *Handlers) HandleDeleteDataset(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDeleteDataset")

	if err := h.svc.Delete(c.Request.Context(), c.Param("name")); err != nil {
		writeError(c, logger, requestID, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleUpdateValue handles PUT /v1/rangestats/datasets/:name/values/:index.
//
// Request Body:
//
//	UpdateValueRequest
//
// Response:
//
//	200 OK: UpdateResult
//	400 Bad Request: INVALID_INDEX, EMPTY_STRUCTURE, or invalid body
//	404 Not Found
func (h *Handlers) HandleUpdateValue(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleUpdateValue")

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, logger, requestID, "index must be an integer", err)
		return
	}

	var req UpdateValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, logger, requestID, "Invalid request body", err)
		return
	}

	res, err := h.svc.Update(c.Request.Context(), c.Param("name"), index, *req.Value)
	if err != nil {
		writeError(c, logger, requestID, err)
		return
	}

	c.Header("ETag", etag(res.CacheKey))
	c.JSON(http.StatusOK, res)
}

// HandleSummary handles GET /v1/rangestats/datasets/:name/summary.
//
// Query Parameters:
//
//	left: First index, inclusive (required)
//	right: Last index, inclusive (required)
//
// Response:
//
//	200 OK: segtree.Summary
//	400 Bad Request: INVALID_INDEX, EMPTY_STRUCTURE, or missing parameters
//	404 Not Found
//	422 Unprocessable Entity: NUMERIC_OVERFLOW
func (h *Handlers) HandleSummary(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSummary")

	var q SummaryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, logger, requestID, "left and right must be integers", err)
		return
	}

	sum, err := h.svc.Summarize(c.Request.Context(), c.Param("name"), *q.Left, *q.Right)
	if err != nil {
		writeError(c, logger, requestID, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// HandleWindows handles GET /v1/rangestats/datasets/:name/windows.
//
// Query Parameters:
//
//	size: Window length, >= 1 (required)
//
// Response:
//
//	200 OK: WindowReport
//	400 Bad Request: INVALID_WINDOW, EMPTY_STRUCTURE
//	404 Not Found
func (h *Handlers) HandleWindows(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleWindows")

	var q WindowsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		logger.Warn("Invalid window size", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "size must be an integer >= 1",
			Code:      "INVALID_WINDOW",
			RequestID: requestID,
		})
		return
	}

	report, err := h.svc.Windows(c.Request.Context(), c.Param("name"), q.Size)
	if err != nil {
		writeError(c, logger, requestID, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// HandleDump handles GET /v1/rangestats/datasets/:name/dump.
//
// Description:
//
//	Returns the tree dump as JSON, or as text/plain when the client sends
//	Accept: text/plain.
func (h *Handlers) HandleDump(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDump")

	name := c.Param("name")
	dump, err := h.svc.Dump(c.Request.Context(), name)
	if err != nil {
		writeError(c, logger, requestID, err)
		return
	}

	if c.NegotiateFormat(gin.MIMEJSON, gin.MIMEPlain) == gin.MIMEPlain {
		c.String(http.StatusOK, dump)
		return
	}
	c.JSON(http.StatusOK, DumpResponse{Name: name, Dump: dump})
}

// errorStatus maps service and tree errors to an HTTP status and code.
// ErrEmptyStructure is checked before ErrInvalidIndex because empty-tree
// errors match both.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrDatasetNotFound):
		return http.StatusNotFound, "DATASET_NOT_FOUND"
	case errors.Is(err, ErrDatasetExists):
		return http.StatusConflict, "DATASET_EXISTS"
	case errors.Is(err, ErrInvalidName):
		return http.StatusBadRequest, "INVALID_NAME"
	case errors.Is(err, ErrDatasetTooLarge), errors.Is(err, segtree.ErrArrayTooLarge):
		return http.StatusRequestEntityTooLarge, "DATASET_TOO_LARGE"
	case errors.Is(err, ErrTooManyDatasets):
		return http.StatusInsufficientStorage, "TOO_MANY_DATASETS"
	case errors.Is(err, ErrNonFiniteValue):
		return http.StatusBadRequest, "NON_FINITE_VALUE"
	case errors.Is(err, ErrNumericOverflow):
		return http.StatusUnprocessableEntity, "NUMERIC_OVERFLOW"
	case errors.Is(err, ErrInvalidWindow):
		return http.StatusBadRequest, "INVALID_WINDOW"
	case errors.Is(err, segtree.ErrEmptyStructure):
		return http.StatusBadRequest, "EMPTY_STRUCTURE"
	case errors.Is(err, segtree.ErrInvalidIndex):
		return http.StatusBadRequest, "INVALID_INDEX"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// writeError logs err and writes the mapped ErrorResponse.
func writeError(c *gin.Context, logger *slog.Logger, requestID string, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "error", err, "code", code)
	} else {
		logger.Warn("Request rejected", "error", err, "code", code)
	}
	c.JSON(status, ErrorResponse{
		Error:     err.Error(),
		Code:      code,
		RequestID: requestID,
	})
}

func badRequest(c *gin.Context, logger *slog.Logger, requestID, msg string, err error) {
	logger.Warn(msg, "error", err)
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:     msg,
		Code:      "INVALID_REQUEST",
		RequestID: requestID,
	})
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

func etag(cacheKey string) string {
	return fmt.Sprintf("%q", cacheKey)
}
