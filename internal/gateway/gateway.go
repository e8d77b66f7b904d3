package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/analysis-delivery/internal/access"
	"github.com/cuongbtq/analysis-delivery/internal/domain"
	"github.com/cuongbtq/analysis-delivery/internal/relay"
	"github.com/cuongbtq/analysis-delivery/internal/result"
	"github.com/cuongbtq/analysis-delivery/internal/storage"
)

const defaultStatusTimeout = 3 * time.Second

// Engine is the part of the analysis engine the gateway drives directly
type Engine interface {
	Submit(ctx context.Context, sub domain.Submission) (string, error)
	GetStatus(ctx context.Context, jobID string) (domain.StatusUpdate, error)
}

// Results serves terminal-state payloads
type Results interface {
	GetResult(ctx context.Context, job *domain.Job, scope result.Scope) ([]byte, error)
	Invalidate(jobID string) int
}

// Relay streams live progress for a non-terminal job
type Relay interface {
	Run(ctx context.Context, jobID string, sink relay.Sink) (relay.State, error)
}

// Viewer is the caller of a gateway operation. An empty UserID is anonymous.
type Viewer struct {
	UserID string
}

// IsAnonymous reports whether the viewer has no identity
func (v Viewer) IsAnonymous() bool {
	return v.UserID == ""
}

// Page is one page of an owner's jobs
type Page struct {
	Jobs       []*domain.Job
	NextCursor *storage.JobCursor
}

// Dependencies are the collaborators a Gateway routes through
type Dependencies struct {
	Store   storage.JobStore
	Access  *access.Controller
	Results Results
	Relay   Relay
	Engine  Engine
	Clock   domain.Clock
}

// Config holds gateway tuning
type Config struct {
	StatusTimeout time.Duration
}

// Gateway routes each viewer request through access control to result
// assembly or the progress relay
type Gateway struct {
	store   storage.JobStore
	access  *access.Controller
	results Results
	relay   Relay
	engine  Engine
	clock   domain.Clock
	cfg     Config
	logger  *slog.Logger
}

// New creates a new Gateway
func New(deps Dependencies, cfg Config, logger *slog.Logger) *Gateway {
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = defaultStatusTimeout
	}
	if deps.Clock == nil {
		deps.Clock = domain.SystemClock{}
	}
	return &Gateway{
		store:   deps.Store,
		access:  deps.Access,
		results: deps.Results,
		relay:   deps.Relay,
		engine:  deps.Engine,
		clock:   deps.Clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// Submit hands a document to the engine and records a pending, private job
func (g *Gateway) Submit(ctx context.Context, viewer Viewer, sub domain.Submission) (*domain.Job, error) {
	if viewer.IsAnonymous() {
		return nil, domain.ErrAccessDenied
	}
	sub.OwnerID = viewer.UserID
	sub.Title = strings.TrimSpace(sub.Title)
	if sub.Title == "" || strings.TrimSpace(sub.Text) == "" {
		return nil, fmt.Errorf("%w: title and text are required", domain.ErrInvalidInput)
	}

	jobID, err := g.engine.Submit(ctx, sub)
	if err != nil {
		return nil, err
	}

	job := domain.NewJob(jobID, viewer.UserID, sub.Title, g.clock.Now())
	if err := g.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to record job: %w", err)
	}

	g.logger.Info("Analysis submitted",
		slog.String("job_id", job.ID),
		slog.String("owner_id", job.OwnerID),
	)

	return job, nil
}

// List returns one page of the viewer's own jobs, newest first
func (g *Gateway) List(ctx context.Context, viewer Viewer, pageSize int, cursor *storage.JobCursor) (*Page, error) {
	if viewer.IsAnonymous() {
		return nil, domain.ErrAccessDenied
	}
	if pageSize <= 0 {
		pageSize = storage.DefaultPageSize
	}
	if pageSize > storage.MaxPageSize {
		pageSize = storage.MaxPageSize
	}

	jobs, err := g.store.ListByOwner(ctx, storage.JobFilter{
		OwnerID:  viewer.UserID,
		PageSize: pageSize,
		Cursor:   cursor,
	})
	if err != nil {
		return nil, err
	}

	page := &Page{Jobs: jobs}
	if len(jobs) > pageSize {
		page.Jobs = jobs[:pageSize]
		last := page.Jobs[pageSize-1]
		page.NextCursor = &storage.JobCursor{CreatedAt: last.CreatedAt, JobID: last.ID}
	}
	return page, nil
}

// Result returns the owner-scoped payload of a terminal job
func (g *Gateway) Result(ctx context.Context, viewer Viewer, jobID string) ([]byte, error) {
	job, err := g.loadOwned(ctx, viewer, jobID)
	if err != nil {
		return nil, err
	}
	job = g.refreshStatus(ctx, job)

	return g.results.GetResult(ctx, job, result.OwnerScope(viewer.UserID))
}

// PublicResult returns the public payload of the job bound to token
func (g *Gateway) PublicResult(ctx context.Context, token string) ([]byte, error) {
	job, err := g.access.AuthorizePublicView(ctx, token)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			g.logger.Error("Failed to resolve share token", slog.Any("error", err))
		}
		return nil, err
	}
	job = g.refreshStatus(ctx, job)

	return g.results.GetResult(ctx, job, result.PublicScope(token))
}

// Progress streams a job's progress to sink. A job that is already terminal
// gets a single terminal event. An error before anything is sent means the
// request was refused.
func (g *Gateway) Progress(ctx context.Context, viewer Viewer, jobID string, sink relay.Sink) error {
	job, err := g.loadOwned(ctx, viewer, jobID)
	if err != nil {
		return err
	}
	job = g.refreshStatus(ctx, job)

	if job.Status.IsTerminal() {
		return sink.Send(terminalEvent(job, g.clock.Now()))
	}

	state, err := g.relay.Run(ctx, job.ID, sink)
	g.logger.Debug("Progress session ended",
		slog.String("job_id", job.ID),
		slog.String("state", state.String()),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// SetVisibility lets the owner publish or unpublish a job's result
func (g *Gateway) SetVisibility(ctx context.Context, viewer Viewer, jobID string, public bool) (*domain.Job, error) {
	if viewer.IsAnonymous() {
		return nil, domain.ErrAccessDenied
	}

	job, err := g.access.SetVisibility(ctx, jobID, viewer.UserID, public)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrForbidden) {
			g.logger.Debug("Visibility change denied", slog.String("job_id", jobID), slog.Any("error", err))
			return nil, domain.ErrAccessDenied
		}
		return nil, err
	}

	g.results.Invalidate(jobID)
	return job, nil
}

// loadOwned folds every authorization failure into ErrAccessDenied
func (g *Gateway) loadOwned(ctx context.Context, viewer Viewer, jobID string) (*domain.Job, error) {
	if viewer.IsAnonymous() {
		return nil, domain.ErrAccessDenied
	}

	job, err := g.store.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrAccessDenied
		}
		return nil, err
	}

	if err := g.access.AuthorizeOwnerView(viewer.UserID, job); err != nil {
		return nil, domain.ErrAccessDenied
	}
	return job, nil
}

// refreshStatus asks the engine about a non-terminal job and records any
// forward transition. Engine or store failures leave the stored status in use.
func (g *Gateway) refreshStatus(ctx context.Context, job *domain.Job) *domain.Job {
	if job.Status.IsTerminal() {
		return job
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.StatusTimeout)
	defer cancel()

	update, err := g.engine.GetStatus(ctx, job.ID)
	if err != nil {
		g.logger.Debug("Status refresh skipped", slog.String("job_id", job.ID), slog.Any("error", err))
		return job
	}
	if !job.Status.CanAdvanceTo(update.Status) {
		return job
	}

	updated, err := g.store.AdvanceStatus(ctx, job.ID, update.Status, update.ErrorMessage)
	if err != nil {
		g.logger.Warn("Failed to record status change",
			slog.String("job_id", job.ID),
			slog.String("status", update.Status.String()),
			slog.Any("error", err),
		)
		return job
	}
	return updated
}

func terminalEvent(job *domain.Job, now time.Time) domain.ProgressEvent {
	if job.Status == domain.StatusError {
		msg := job.ErrorMessage
		if msg == "" {
			msg = "Analysis failed"
		}
		return domain.NewErrorEvent(msg, now)
	}
	return domain.ProgressEvent{
		Kind:      domain.EventComplete,
		Stage:     "complete",
		Progress:  100,
		Message:   "Analysis complete",
		Timestamp: now,
	}
}
