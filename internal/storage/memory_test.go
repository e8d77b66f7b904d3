package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cuongbtq/analysis-delivery/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(nil)
	job := domain.NewJob("job-1", "user-1", "Draft", time.Now())

	require.NoError(t, store.Create(ctx, job))
	assert.ErrorIs(t, store.Create(ctx, job), domain.ErrDuplicate)

	got, err := store.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.OwnerID)

	got.Title = "mutated"
	again, err := store.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "Draft", again.Title)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemory_UpdateVisibility(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(nil)
	require.NoError(t, store.Create(ctx, domain.NewJob("job-1", "user-1", "Draft", time.Now())))

	updated, err := store.UpdateVisibility(ctx, "job-1", func(job *domain.Job) error {
		job.Publish("token-1", time.Now())
		return nil
	})
	require.NoError(t, err)
	assert.True(t, updated.IsPublic())

	byToken, err := store.GetByShareToken(ctx, "token-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", byToken.ID)

	t.Run("failed mutation is not persisted", func(t *testing.T) {
		_, err := store.UpdateVisibility(ctx, "job-1", func(job *domain.Job) error {
			job.Unpublish(time.Now())
			return domain.ErrForbidden
		})
		assert.ErrorIs(t, err, domain.ErrForbidden)

		job, err := store.GetByID(ctx, "job-1")
		require.NoError(t, err)
		assert.True(t, job.IsPublic())
	})

	t.Run("invariant violation is rejected", func(t *testing.T) {
		_, err := store.UpdateVisibility(ctx, "job-1", func(job *domain.Job) error {
			job.ShareToken = ""
			return nil
		})
		assert.ErrorIs(t, err, domain.ErrInvariantViolated)
	})
}

func TestMemory_AdvanceStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(nil)
	require.NoError(t, store.Create(ctx, domain.NewJob("job-1", "user-1", "Draft", time.Now())))

	job, err := store.AdvanceStatus(ctx, "job-1", domain.StatusCompleted, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, job.Status)

	_, err = store.AdvanceStatus(ctx, "job-1", domain.StatusProcessing, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, store.SaveSnapshot(ctx, "job-1", []byte(`{"score":9}`)))
	job, err = store.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"score":9}`, string(job.ResultSnapshot))
}

func TestMemory_SaveSnapshotIgnoresNonTerminal(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(nil)
	require.NoError(t, store.Create(ctx, domain.NewJob("job-1", "user-1", "Draft", time.Now())))

	require.NoError(t, store.SaveSnapshot(ctx, "job-1", []byte(`{}`)))
	job, err := store.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Nil(t, job.ResultSnapshot)
}

func TestMemory_ListByOwner(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(nil)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		job := domain.NewJob(fmt.Sprintf("job-%d", i), "user-1", "Draft", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.Create(ctx, job))
	}
	require.NoError(t, store.Create(ctx, domain.NewJob("other", "user-2", "Draft", base)))

	page, err := store.ListByOwner(ctx, JobFilter{OwnerID: "user-1", PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "job-4", page[0].ID)
	assert.Equal(t, "job-3", page[1].ID)

	cursor := &JobCursor{CreatedAt: page[1].CreatedAt, JobID: page[1].ID}
	page, err = store.ListByOwner(ctx, JobFilter{OwnerID: "user-1", PageSize: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "job-2", page[0].ID)
}
