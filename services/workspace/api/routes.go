// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes a workspace over HTTP with gin.
//
// Routes live under /v1/workspace. Reads always see one consistent solution
// snapshot; writes go through the workspace's edit operations and publish a
// new solution.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianWorkspace/services/workspace"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/telemetry"
)

// RegisterRoutes mounts the workspace routes on rg.
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	ws := rg.Group("/workspace")
	{
		ws.GET("/health", handlers.HandleHealth)
		ws.GET("/diagnostics", handlers.HandleDiagnostics)

		ws.GET("/projects", handlers.HandleListProjects)
		ws.GET("/projects/:id", handlers.HandleGetProject)
		ws.GET("/projects/:id/compilation", handlers.HandleGetCompilation)

		ws.GET("/documents/:id", handlers.HandleGetDocument)
		ws.PUT("/documents/:id/text", handlers.HandleUpdateText)
		ws.POST("/documents/:id/patch", handlers.HandlePatch)
	}
}

// NewRouter builds a gin engine with tracing, HTTP metrics, and the workspace
// routes. /metrics is mounted when the Prometheus exporter is active.
//
// # Inputs
//
//   - ws: Workspace to serve.
//   - serviceName: Span service name for otelgin.
//   - logger: Request logger. Nil uses slog.Default().
//
// # Outputs
//
//   - *gin.Engine: Ready to serve.
//   - error: Instrument creation failures.
func NewRouter(ws *workspace.Workspace, serviceName string, logger *slog.Logger) (*gin.Engine, error) {
	metrics, err := telemetry.NewHTTPMetrics(nil)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(telemetry.GinMetrics(metrics))

	if h := telemetry.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	}
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no such route", Code: "NOT_FOUND"})
	})

	RegisterRoutes(router.Group("/v1"), NewHandlers(ws, logger))
	return router, nil
}
