package storage

import (
	"context"
	"time"

	"github.com/cuongbtq/analysis-delivery/internal/domain"
)

// DefaultPageSize and MaxPageSize bound owner listings
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// JobStore is the durable store for analysis job metadata
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, jobID string) (*domain.Job, error)
	GetByShareToken(ctx context.Context, token string) (*domain.Job, error)
	ListByOwner(ctx context.Context, filter JobFilter) ([]*domain.Job, error)
	UpdateVisibility(ctx context.Context, jobID string, mutate func(job *domain.Job) error) (*domain.Job, error)
	AdvanceStatus(ctx context.Context, jobID string, next domain.Status, errorMessage string) (*domain.Job, error)
	SaveSnapshot(ctx context.Context, jobID string, snapshot []byte) error
}

// JobFilter selects one page of an owner's jobs, newest first
type JobFilter struct {
	OwnerID  string
	PageSize int
	Cursor   *JobCursor
}

// JobCursor is the keyset position after which the next page starts
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// Before reports whether a job sorts after the cursor in newest-first order
func (c *JobCursor) Before(job *domain.Job) bool {
	if c == nil {
		return true
	}
	if job.CreatedAt.Equal(c.CreatedAt) {
		return job.ID < c.JobID
	}
	return job.CreatedAt.Before(c.CreatedAt)
}
