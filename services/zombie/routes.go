// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package zombie

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all zombie analysis routes with the router.
//
// Routes are grouped under /zombie relative to the given group, so the
// conventional mounting is:
//
//	v1 := router.Group("/v1")
//	zombie.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	z := rg.Group("/zombie")
	{
		// Graph lifecycle
		z.POST("/build", handlers.HandleBuild)
		z.POST("/refresh", handlers.HandleRefresh)
		z.POST("/snapshot", handlers.HandleSnapshot)

		// Symbol queries
		// Symbol IDs embed file paths, so the route is a catch-all.
		z.GET("/symbol/*id", handlers.HandleSymbol)
		z.GET("/dependencies", handlers.HandleDependencies)
		z.GET("/dependents", handlers.HandleDependents)
		z.GET("/path-to-root", handlers.HandlePathToRoot)

		// Liveness queries
		z.GET("/zombies", handlers.HandleZombies)
		z.GET("/stats", handlers.HandleStats)

		// Health checks
		z.GET("/health", handlers.HandleHealth)
		z.GET("/ready", handlers.HandleReady)
	}
}
