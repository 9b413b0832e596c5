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
	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/rangestats/services/rangestats/telemetry"
)

// RouterOptions configures NewRouter. Zero values disable the feature.
type RouterOptions struct {
	// ServiceName enables otelgin tracing under this name.
	ServiceName string

	// Metrics enables HTTP request metrics.
	Metrics *telemetry.Metrics

	// RateLimiter enables per-client rate limiting.
	RateLimiter *RateLimiter
}

// NewRouter builds the gin engine serving the rangestats API.
//
// Middleware order: recovery, tracing, metrics, rate limiting. Rejected
// requests are still traced and counted.
func NewRouter(svc *Service, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	if opts.ServiceName != "" {
		router.Use(telemetry.TracingMiddleware(opts.ServiceName))
	}
	if opts.Metrics != nil {
		router.Use(telemetry.MetricsMiddleware(opts.Metrics))
	}
	if opts.RateLimiter != nil {
		router.Use(opts.RateLimiter.Middleware())
	}

	v1 := router.Group("/v1")
	RegisterRoutes(v1, NewHandlers(svc))
	return router
}
