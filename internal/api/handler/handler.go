package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/analysis-delivery/internal/domain"
	"github.com/cuongbtq/analysis-delivery/internal/gateway"
	"github.com/cuongbtq/analysis-delivery/internal/relay"
	"github.com/cuongbtq/analysis-delivery/internal/storage"
)

// ViewerKey is the gin context key holding the caller's user ID
const ViewerKey = "viewer_id"

// Gateway is the delivery surface the handlers expose over HTTP
type Gateway interface {
	Submit(ctx context.Context, viewer gateway.Viewer, sub domain.Submission) (*domain.Job, error)
	List(ctx context.Context, viewer gateway.Viewer, pageSize int, cursor *storage.JobCursor) (*gateway.Page, error)
	Result(ctx context.Context, viewer gateway.Viewer, jobID string) ([]byte, error)
	PublicResult(ctx context.Context, token string) ([]byte, error)
	Progress(ctx context.Context, viewer gateway.Viewer, jobID string, sink relay.Sink) error
	SetVisibility(ctx context.Context, viewer gateway.Viewer, jobID string, public bool) (*domain.Job, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger  *slog.Logger
	Gateway Gateway
	// Health reports backing store reachability; nil means always healthy
	Health func(ctx context.Context) error
}

// AnalysisHandler handles analysis delivery HTTP requests
type AnalysisHandler struct {
	logger  *slog.Logger
	gateway Gateway
}

// NewAnalysisHandler creates a new AnalysisHandler instance
func NewAnalysisHandler(deps *Dependencies) *AnalysisHandler {
	return &AnalysisHandler{
		logger:  deps.Logger,
		gateway: deps.Gateway,
	}
}
