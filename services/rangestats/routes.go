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
)

// RegisterRoutes registers all rangestats routes with the router.
//
// Description:
//
//	Registers all /v1/rangestats/* endpoints with the given Gin router
//	group. The router group should already have any required middleware
//	applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	GET    /v1/rangestats/health
//	GET    /v1/rangestats/datasets
//	POST   /v1/rangestats/datasets
//	GET    /v1/rangestats/datasets/:name
//	PUT    /v1/rangestats/datasets/:name
//	DELETE /v1/rangestats/datasets/:name
//	PUT    /v1/rangestats/datasets/:name/values/:index
//	GET    /v1/rangestats/datasets/:name/summary?left=&right=
//	GET    /v1/rangestats/datasets/:name/windows?size=
//	GET    /v1/rangestats/datasets/:name/dump
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	rs := rg.Group("/rangestats")
	{
		rs.GET("/health", handlers.HandleHealth)

		rs.GET("/datasets", handlers.HandleListDatasets)
		rs.POST("/datasets", handlers.HandleCreateDataset)

		ds := rs.Group("/datasets/:name")
		{
			ds.GET("", handlers.HandleGetDataset)
			ds.PUT("", handlers.HandleReplaceDataset)
			ds.DELETE("", handlers.HandleDeleteDataset)
			ds.PUT("/values/:index", handlers.HandleUpdateValue)
			ds.GET("/summary", handlers.HandleSummary)
			ds.GET("/windows", handlers.HandleWindows)
			ds.GET("/dump", handlers.HandleDump)
		}
	}
}
