package access

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/analysis-delivery/internal/domain"
)

// Store is the durable job metadata needed for access decisions
type Store interface {
	GetByShareToken(ctx context.Context, token string) (*domain.Job, error)
	// UpdateVisibility loads the job, applies mutate and persists the result atomically
	// with respect to other updates of the same job.
	UpdateVisibility(ctx context.Context, jobID string, mutate func(job *domain.Job) error) (*domain.Job, error)
}

// Controller enforces owner and share-token access to jobs
type Controller struct {
	store    Store
	clock    domain.Clock
	newToken TokenGenerator
	logger   *slog.Logger
}

// Option configures a Controller
type Option func(*Controller)

// WithTokenGenerator overrides share token generation
func WithTokenGenerator(gen TokenGenerator) Option {
	return func(c *Controller) {
		c.newToken = gen
	}
}

// WithClock overrides the clock used for shared_at
func WithClock(clock domain.Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

// NewController creates a new Controller
func NewController(store Store, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		store:    store,
		clock:    domain.SystemClock{},
		newToken: GenerateToken,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthorizeOwnerView allows the viewer iff they own the job
func (c *Controller) AuthorizeOwnerView(viewerID string, job *domain.Job) error {
	if job == nil || viewerID == "" || viewerID != job.OwnerID {
		return domain.ErrForbidden
	}
	return nil
}

// AuthorizePublicView resolves token to a job that is currently public and bound to it.
// Every kind of mismatch is reported as domain.ErrNotFound.
func (c *Controller) AuthorizePublicView(ctx context.Context, token string) (*domain.Job, error) {
	if token == "" {
		return nil, domain.ErrNotFound
	}

	job, err := c.store.GetByShareToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve share token: %w", err)
	}

	if job == nil || !job.IsPublic() ||
		subtle.ConstantTimeCompare([]byte(job.ShareToken), []byte(token)) != 1 {
		return nil, domain.ErrNotFound
	}

	return job, nil
}

// SetVisibility toggles public access for a job owned by ownerID.
// Making a public job public again keeps its token; going private clears it.
func (c *Controller) SetVisibility(ctx context.Context, jobID, ownerID string, public bool) (*domain.Job, error) {
	job, err := c.store.UpdateVisibility(ctx, jobID, func(job *domain.Job) error {
		if err := c.AuthorizeOwnerView(ownerID, job); err != nil {
			return err
		}

		now := c.clock.Now()
		if !public {
			job.Unpublish(now)
			return nil
		}
		if job.IsPublic() {
			return nil
		}

		token, err := c.newToken()
		if err != nil {
			return err
		}
		job.Publish(token, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Analysis visibility updated",
		slog.String("job_id", jobID),
		slog.String("visibility", job.Visibility.String()),
	)

	return job, nil
}
