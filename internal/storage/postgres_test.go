package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cuongbtq/analysis-delivery/internal/domain"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "unique violation", err: &pq.Error{Code: "23505"}, want: true},
		{name: "wrapped unique violation", err: fmt.Errorf("exec: %w", &pq.Error{Code: "23505"}), want: true},
		{name: "check violation", err: &pq.Error{Code: "23514"}, want: false},
		{name: "plain error", err: errors.New("connection reset"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}

func TestJobRow_ToDomain(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("public job", func(t *testing.T) {
		row := jobRow{
			ID:         "text_1",
			OwnerID:    "user-1",
			Title:      "Draft",
			Status:     "completed",
			Visibility: "public",
			ShareToken: sql.NullString{String: "tok", Valid: true},
			SharedAt:   sql.NullTime{Time: now, Valid: true},
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		job, err := row.toDomain()
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, job.Status)
		assert.True(t, job.IsPublic())
		assert.Equal(t, "tok", job.ShareToken)
		require.NotNil(t, job.SharedAt)
		assert.Equal(t, now, *job.SharedAt)
	})

	t.Run("private job has no shared_at", func(t *testing.T) {
		row := jobRow{ID: "text_2", Status: "pending", Visibility: "private", CreatedAt: now, UpdatedAt: now}

		job, err := row.toDomain()
		require.NoError(t, err)
		assert.False(t, job.IsPublic())
		assert.Nil(t, job.SharedAt)
	})

	t.Run("unknown status", func(t *testing.T) {
		row := jobRow{ID: "text_3", Status: "RUNNING", Visibility: "private"}

		_, err := row.toDomain()
		assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	})

	t.Run("unknown visibility", func(t *testing.T) {
		row := jobRow{ID: "text_4", Status: "pending", Visibility: "unlisted"}

		_, err := row.toDomain()
		assert.ErrorIs(t, err, domain.ErrInvalidVisibility)
	})
}
