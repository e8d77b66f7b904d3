package router

import (
	"net/http"

	"github.com/cuongbtq/analysis-delivery/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "analysis-delivery-api",
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "analysis-delivery-api",
		})
	})

	analysisHandler := handler.NewAnalysisHandler(deps)

	v1 := r.Group("/api/v1")
	{
		analyses := v1.Group("/analyses", IdentityMiddleware())
		{
			// POST /api/v1/analyses - Submit a screenplay for analysis
			analyses.POST("", analysisHandler.SubmitAnalysis)

			// GET /api/v1/analyses - List the caller's analyses
			analyses.GET("", analysisHandler.ListAnalyses)

			// GET /api/v1/analyses/:analysis_id/progress - Live progress (SSE)
			analyses.GET("/:analysis_id/progress", analysisHandler.StreamProgress)

			// GET /api/v1/analyses/:analysis_id/result - Terminal result
			analyses.GET("/:analysis_id/result", analysisHandler.GetResult)

			// PATCH /api/v1/analyses/:analysis_id/visibility - Publish or unpublish
			analyses.PATCH("/:analysis_id/visibility", analysisHandler.SetVisibility)
		}

		// GET /api/v1/public/:token - Anonymous read of a published analysis
		v1.GET("/public/:token", analysisHandler.GetPublicResult)
	}

	return r
}
