package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/analysis-delivery/internal/api/dto"
	"github.com/cuongbtq/analysis-delivery/internal/domain"
	"github.com/gin-gonic/gin"
)

// respondError maps a gateway error onto a status and a fixed message.
// Causes are logged, never returned.
func (h *AnalysisHandler) respondError(c *gin.Context, err error) {
	status, msg := classify(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			slog.String("path", c.FullPath()),
			slog.Any("error", err),
		)
		_ = c.Error(err)
	}
	c.JSON(status, dto.ErrorResponse{Error: msg})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrAccessDenied):
		return http.StatusForbidden, "access denied"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "analysis not found"
	case errors.Is(err, domain.ErrNotReady):
		return http.StatusConflict, "analysis not ready"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, "analysis engine unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
