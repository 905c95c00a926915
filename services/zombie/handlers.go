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
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/ZombieGraph/services/zombie/query"
)

// Handlers contains the HTTP handlers for the zombie analysis service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleBuild handles POST /v1/zombie/build.
//
// Description:
//
//	Ingests a batch of fact files, rebuilds the dependency graph, and
//	publishes a new generation. Unchanged files are detected by
//	content hash and skip the rebuild entirely.
//
// Response:
//
//	200 OK: BuildResponse
//	400 Bad Request: Validation error
//	500 Internal Server Error: Pipeline failure
func (h *Handlers) HandleBuild(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleBuild")

	var req BuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if len(req.Files) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "files must not be empty",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	logger.Info("Ingesting fact batch", "files", len(req.Files))
	report, err := h.svc.Build(c.Request.Context(), req.Files)
	if err != nil {
		logger.Error("Build failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "BUILD_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, BuildResponse{Report: report})
}

// HandleRefresh handles POST /v1/zombie/refresh.
func (h *Handlers) HandleRefresh(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRefresh")

	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if len(req.Removed) > 0 && req.RepoID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "repo_id is required when removed paths are given",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	report, err := h.svc.Refresh(c.Request.Context(), req)
	if err != nil {
		logger.Error("Refresh failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "REFRESH_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, BuildResponse{Report: report})
}

// HandleSymbol handles GET /v1/zombie/symbol/*id. The wildcard keeps
// the file-path component of the symbol ID intact.
func (h *Handlers) HandleSymbol(c *gin.Context) {
	resp, err := h.svc.Symbol(strings.TrimPrefix(c.Param("id"), "/"))
	if err != nil {
		h.renderQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleDependencies handles GET /v1/zombie/dependencies.
//
// Query Parameters:
//
//	id - Symbol ID (required).
//	depth - Maximum traversal depth.
//	limit - Maximum results.
func (h *Handlers) HandleDependencies(c *gin.Context) {
	h.handleTraversal(c, h.svc.Dependencies)
}

// HandleDependents handles GET /v1/zombie/dependents.
func (h *Handlers) HandleDependents(c *gin.Context) {
	h.handleTraversal(c, h.svc.Dependents)
}

func (h *Handlers) handleTraversal(
	c *gin.Context,
	fn func(ctx context.Context, id string, opts ...query.Option) (*query.TraversalResult, error),
) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "id query parameter is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	result, err := fn(c.Request.Context(), id, paramOptions(c)...)
	if err != nil {
		h.renderQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandlePathToRoot handles GET /v1/zombie/path-to-root.
func (h *Handlers) HandlePathToRoot(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "id query parameter is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	result, err := h.svc.PathToNearestRoot(c.Request.Context(), id)
	if err != nil {
		h.renderQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleZombies handles GET /v1/zombie/zombies.
//
// Query Parameters:
//
//	class - Liveness class name (default "dead_code").
//	limit, offset - Pagination.
func (h *Handlers) HandleZombies(c *gin.Context) {
	className := c.DefaultQuery("class", "dead_code")

	resp, err := h.svc.Zombies(c.Request.Context(), className, paramOptions(c)...)
	if err != nil {
		if errors.Is(err, ErrUnknownClass) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: err.Error(),
				Code:  "UNKNOWN_CLASS",
			})
			return
		}
		h.renderQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleStats handles GET /v1/zombie/stats.
func (h *Handlers) HandleStats(c *gin.Context) {
	resp, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		h.renderQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleSnapshot handles POST /v1/zombie/snapshot.
func (h *Handlers) HandleSnapshot(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSnapshot")

	if err := h.svc.WriteSnapshot(); err != nil {
		if errors.Is(err, query.ErrNoGeneration) {
			h.renderQueryError(c, err)
			return
		}
		logger.Error("Snapshot failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "SNAPSHOT_FAILED",
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleHealth handles GET /v1/zombie/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: ServiceVersion})
}

// HandleReady handles GET /v1/zombie/ready. Returns 503 until the
// first generation is published.
func (h *Handlers) HandleReady(c *gin.Context) {
	genID, ready := h.svc.Ready()
	if !ready {
		c.JSON(http.StatusServiceUnavailable, ReadyResponse{Ready: false})
		return
	}
	c.JSON(http.StatusOK, ReadyResponse{Ready: true, GenerationID: genID})
}

// renderQueryError maps query-layer sentinels onto HTTP statuses.
func (h *Handlers) renderQueryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, query.ErrNoGeneration):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "no analysis generation available yet",
			Code:  "NOT_READY",
		})
	case errors.Is(err, query.ErrSymbolNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "symbol not found",
			Code:  "SYMBOL_NOT_FOUND",
		})
	case errors.Is(err, query.ErrIncompleteAnalysis):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: "reachability analysis incomplete",
			Code:  "ANALYSIS_INCOMPLETE",
		})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "QUERY_FAILED",
		})
	}
}

// paramOptions converts pagination query parameters to engine options.
func paramOptions(c *gin.Context) []query.Option {
	var opts []query.Option
	if v, err := strconv.Atoi(c.Query("limit")); err == nil {
		opts = append(opts, query.WithLimit(v))
	}
	if v, err := strconv.Atoi(c.Query("depth")); err == nil {
		opts = append(opts, query.WithMaxDepth(v))
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil {
		opts = append(opts, query.WithOffset(v))
	}
	return opts
}

func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
