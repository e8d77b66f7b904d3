package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/analysis-delivery/internal/api/dto"
	"github.com/cuongbtq/analysis-delivery/internal/domain"
	"github.com/cuongbtq/analysis-delivery/internal/gateway"
	"github.com/gin-gonic/gin"
)

// SubmitAnalysis handles POST /api/v1/analyses
// Hands a screenplay to the engine and records a private, pending analysis
func (h *AnalysisHandler) SubmitAnalysis(c *gin.Context) {
	var req dto.SubmitAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
		return
	}

	job, err := h.gateway.Submit(c.Request.Context(), viewerFrom(c), domain.Submission{
		Title: req.Title,
		Text:  req.ScreenplayText,
		Genre: req.Genre,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, toAnalysisDTO(job))
}

// ListAnalyses handles GET /api/v1/analyses
// Lists the caller's analyses newest first with cursor pagination
func (h *AnalysisHandler) ListAnalyses(c *gin.Context) {
	var req dto.ListAnalysesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid query parameters"})
		return
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid cursor"})
		return
	}

	page, err := h.gateway.List(c.Request.Context(), viewerFrom(c), req.PageSize, cursor)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := dto.ListAnalysesResponse{Analyses: make([]dto.AnalysisDTO, len(page.Jobs))}
	for i, job := range page.Jobs {
		resp.Analyses[i] = toAnalysisDTO(job)
	}
	if page.NextCursor != nil {
		resp.NextCursor = EncodeJobCursor(page.NextCursor)
	}

	c.JSON(http.StatusOK, resp)
}

// GetResult handles GET /api/v1/analyses/:analysis_id/result
func (h *AnalysisHandler) GetResult(c *gin.Context) {
	payload, err := h.gateway.Result(c.Request.Context(), viewerFrom(c), c.Param("analysis_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

// GetPublicResult handles GET /api/v1/public/:token
// Anonymous read of a published analysis
func (h *AnalysisHandler) GetPublicResult(c *gin.Context) {
	payload, err := h.gateway.PublicResult(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

// StreamProgress handles GET /api/v1/analyses/:analysis_id/progress
// Relays live progress as server-sent events
func (h *AnalysisHandler) StreamProgress(c *gin.Context) {
	jobID := c.Param("analysis_id")
	sink := &sseSink{c: c}

	err := h.gateway.Progress(c.Request.Context(), viewerFrom(c), jobID, sink)
	if err == nil {
		return
	}
	if !sink.started {
		h.respondError(c, err)
		return
	}

	// Headers are gone; the client already holds whatever terminal event was sent.
	h.logger.Debug("Progress stream ended early",
		slog.String("analysis_id", jobID),
		slog.Any("error", err),
	)
}

// SetVisibility handles PATCH /api/v1/analyses/:analysis_id/visibility
func (h *AnalysisHandler) SetVisibility(c *gin.Context) {
	var req dto.SetVisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
		return
	}

	job, err := h.gateway.SetVisibility(c.Request.Context(), viewerFrom(c), c.Param("analysis_id"), *req.Public)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toAnalysisDTO(job))
}

func viewerFrom(c *gin.Context) gateway.Viewer {
	return gateway.Viewer{UserID: c.GetString(ViewerKey)}
}

func toAnalysisDTO(job *domain.Job) dto.AnalysisDTO {
	out := dto.AnalysisDTO{
		AnalysisID:   job.ID,
		Title:        job.Title,
		Status:       job.Status.String(),
		Visibility:   job.Visibility.String(),
		ShareToken:   job.ShareToken,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    job.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if job.SharedAt != nil {
		sharedAt := job.SharedAt.UTC().Format(time.RFC3339)
		out.SharedAt = &sharedAt
	}
	return out
}
