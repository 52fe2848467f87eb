// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rigmatch

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"
)

// RegisterRoutes registers all /v1/rigmatch routes with the router.
//
// Description:
//
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/rigmatch/resolve - Resolve every source node against a target rig
//	POST /v1/rigmatch/transfer - Copy components onto target rigs
//	POST /v1/rigmatch/slots/match - Match a material slot by name
//	GET  /v1/rigmatch/batches - List journaled batches
//	GET  /v1/rigmatch/batches/:id - Get a journaled batch report
//	GET  /v1/rigmatch/health - Health check
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	rm := rg.Group("/rigmatch")
	{
		rm.POST("/resolve", handlers.HandleResolve)
		rm.POST("/transfer", handlers.HandleTransfer)
		rm.POST("/slots/match", handlers.HandleSlotMatch)

		rm.GET("/batches", handlers.HandleListBatches)
		rm.GET("/batches/:id", handlers.HandleGetBatch)

		rm.GET("/health", handlers.HandleHealth)
	}
}

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// ServiceName labels otelgin spans.
	ServiceName string

	// RateLimit is the sustained requests per second. Zero disables limiting.
	RateLimit float64

	// Burst is the limiter bucket size. Defaults to RateLimit rounded up.
	Burst int

	// AccessLog enables gin's request logger.
	AccessLog bool
}

// NewRouter builds the engine served by `rigmatch serve`: recovery,
// tracing, request IDs, metrics, rate limiting, the API under /v1 and
// Prometheus metrics on /metrics.
func NewRouter(handlers *Handlers, cfg RouterConfig) *gin.Engine {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "rigmatch"
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	if cfg.AccessLog {
		router.Use(gin.Logger())
	}
	router.Use(RequestIDMiddleware())
	router.Use(MetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RateLimit + 0.999)
		}
		v1.Use(RateLimitMiddleware(rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)))
	}
	RegisterRoutes(v1, handlers)
	return router
}
