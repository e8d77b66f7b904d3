package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cuongbtq/analysis-delivery/internal/domain"
)

// Memory is an in-process JobStore for local runs and tests.
// Every method hands out clones so callers never share state with the store.
type Memory struct {
	mu    sync.RWMutex
	jobs  map[string]*domain.Job
	clock domain.Clock
}

// NewMemory creates an empty Memory store
func NewMemory(clock domain.Clock) *Memory {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Memory{
		jobs:  make(map[string]*domain.Job),
		clock: clock,
	}
}

// Create inserts a new job record
func (m *Memory) Create(_ context.Context, job *domain.Job) error {
	if err := job.CheckInvariant(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.ID]; exists {
		return fmt.Errorf("failed to create job %s: %w", job.ID, domain.ErrDuplicate)
	}
	if job.ShareToken != "" {
		if _, ok := m.findByToken(job.ShareToken); ok {
			return fmt.Errorf("failed to create job %s: share token: %w", job.ID, domain.ErrDuplicate)
		}
	}
	m.jobs[job.ID] = job.Clone()
	return nil
}

// GetByID retrieves a job by its ID
func (m *Memory) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

// GetByShareToken retrieves the job currently bound to token
func (m *Memory) GetByShareToken(_ context.Context, token string) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.findByToken(token)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

// ListByOwner lists one page of an owner's jobs, newest first, plus one extra row
func (m *Memory) ListByOwner(_ context.Context, filter JobFilter) ([]*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var jobs []*domain.Job
	for _, job := range m.jobs {
		if job.OwnerID == filter.OwnerID && filter.Cursor.Before(job) {
			jobs = append(jobs, job)
		}
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	if len(jobs) > filter.PageSize+1 {
		jobs = jobs[:filter.PageSize+1]
	}

	out := make([]*domain.Job, len(jobs))
	for i, job := range jobs {
		out[i] = job.Clone()
	}
	return out, nil
}

// UpdateVisibility applies mutate to a copy and commits it only if it succeeds
func (m *Memory) UpdateVisibility(_ context.Context, jobID string, mutate func(job *domain.Job) error) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}

	job := current.Clone()
	if err := mutate(job); err != nil {
		return nil, err
	}
	if err := job.CheckInvariant(); err != nil {
		return nil, err
	}
	if job.ShareToken != "" && job.ShareToken != current.ShareToken {
		if _, taken := m.findByToken(job.ShareToken); taken {
			return nil, fmt.Errorf("failed to update visibility: duplicate share token")
		}
	}

	m.jobs[jobID] = job
	return job.Clone(), nil
}

// AdvanceStatus moves a job's status forward
func (m *Memory) AdvanceStatus(_ context.Context, jobID string, next domain.Status, errorMessage string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}

	job := current.Clone()
	if _, err := job.Advance(next, errorMessage, m.clock.Now()); err != nil {
		return nil, err
	}

	m.jobs[jobID] = job
	return job.Clone(), nil
}

// SaveSnapshot records the last good engine payload of a completed job
func (m *Memory) SaveSnapshot(_ context.Context, jobID string, snapshot []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.Status != domain.StatusCompleted {
		return nil
	}
	job.ResultSnapshot = append([]byte(nil), snapshot...)
	return nil
}

func (m *Memory) findByToken(token string) (*domain.Job, bool) {
	if token == "" {
		return nil, false
	}
	for _, job := range m.jobs {
		if job.ShareToken == token {
			return job, true
		}
	}
	return nil, false
}
