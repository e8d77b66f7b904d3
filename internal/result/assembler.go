package result

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/analysis-delivery/internal/cache"
	"github.com/cuongbtq/analysis-delivery/internal/domain"
	"golang.org/x/sync/singleflight"
)

// Source fetches a job's report from the analysis engine
type Source interface {
	GetResult(ctx context.Context, jobID string) (*domain.Report, error)
}

// SnapshotStore persists the last good engine payload of a completed job
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, jobID string, snapshot []byte) error
}

// Assembler serves terminal-state results from cache, the engine, or the durable snapshot
type Assembler struct {
	cache     *cache.Store[Key, []byte]
	source    Source
	snapshots SnapshotStore
	group     singleflight.Group
	logger    *slog.Logger
}

// NewAssembler creates a new Assembler
func NewAssembler(store *cache.Store[Key, []byte], source Source, snapshots SnapshotStore, logger *slog.Logger) *Assembler {
	return &Assembler{
		cache:     store,
		source:    source,
		snapshots: snapshots,
		logger:    logger,
	}
}

// GetResult returns the payload of job as seen from scope. The caller must
// already have authorized the viewer for job.
func (a *Assembler) GetResult(ctx context.Context, job *domain.Job, scope Scope) ([]byte, error) {
	if job == nil {
		return nil, domain.ErrNotFound
	}
	if !job.Status.IsTerminal() {
		return nil, domain.ErrNotReady
	}

	key := Key{JobID: job.ID, Scope: scope}
	if payload, ok := a.cache.Get(key); ok {
		a.logger.Debug("Result cache hit", slog.String("job_id", job.ID))
		return payload, nil
	}

	// Concurrent misses for the same key share one engine fetch. The shared
	// fetch outlives any single viewer; each viewer still honours its own ctx.
	ch := a.group.DoChan(key.String(), func() (interface{}, error) {
		return a.assemble(context.WithoutCancel(ctx), job, key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// Invalidate drops every cached payload of a job, across all scopes
func (a *Assembler) Invalidate(jobID string) int {
	return a.cache.DeleteFunc(func(k Key) bool {
		return k.JobID == jobID
	})
}

func (a *Assembler) assemble(ctx context.Context, job *domain.Job, key Key) ([]byte, error) {
	report, err := a.source.GetResult(ctx, job.ID)
	if err != nil {
		return a.fallback(job, key, err)
	}

	payload, err := Merge(report.Fields, job, key.Scope, report.ErrorMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to merge result: %w", err)
	}

	if job.Status == domain.StatusCompleted {
		a.cache.Put(key, payload)
		a.saveSnapshot(ctx, job, report.Fields)
	}

	a.logger.Debug("Result assembled from engine",
		slog.String("job_id", job.ID),
		slog.String("status", job.Status.String()),
	)

	return payload, nil
}

// fallback serves the durable snapshot when the engine cannot. Snapshot
// payloads are not cached so the next read retries the engine.
func (a *Assembler) fallback(job *domain.Job, key Key, cause error) ([]byte, error) {
	if len(job.ResultSnapshot) == 0 {
		if errors.Is(cause, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		if errors.Is(cause, domain.ErrUpstreamUnavailable) {
			return nil, cause
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, cause)
	}

	var fields map[string]any
	if err := json.Unmarshal(job.ResultSnapshot, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode result snapshot: %w", err)
	}

	a.logger.Warn("Engine unavailable, serving result snapshot",
		slog.String("job_id", job.ID),
		slog.Any("error", cause),
	)

	payload, err := Merge(fields, job, key.Scope, "")
	if err != nil {
		return nil, fmt.Errorf("failed to merge result snapshot: %w", err)
	}
	return payload, nil
}

func (a *Assembler) saveSnapshot(ctx context.Context, job *domain.Job, fields map[string]any) {
	snapshot, err := json.Marshal(fields)
	if err != nil {
		a.logger.Warn("Failed to encode result snapshot",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		return
	}
	if bytes.Equal(snapshot, job.ResultSnapshot) {
		return
	}

	if err := a.snapshots.SaveSnapshot(ctx, job.ID, snapshot); err != nil {
		a.logger.Warn("Failed to save result snapshot",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
	}
}
