package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/analysis-delivery/internal/domain"
	"github.com/cuongbtq/analysis-delivery/shared/postgresql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint failure
const uniqueViolation = pq.ErrorCode("23505")

const jobColumns = `id, owner_id, title, status, error_message, visibility,
	share_token, shared_at, result_snapshot, created_at, updated_at`

// listColumns skips the snapshot, which listings never need
const listColumns = `id, owner_id, title, status, error_message, visibility,
	share_token, shared_at, created_at, updated_at`

type jobRow struct {
	ID             string         `db:"id"`
	OwnerID        string         `db:"owner_id"`
	Title          string         `db:"title"`
	Status         string         `db:"status"`
	ErrorMessage   sql.NullString `db:"error_message"`
	Visibility     string         `db:"visibility"`
	ShareToken     sql.NullString `db:"share_token"`
	SharedAt       sql.NullTime   `db:"shared_at"`
	ResultSnapshot []byte         `db:"result_snapshot"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r *jobRow) toDomain() (*domain.Job, error) {
	status, err := domain.ParseStatus(r.Status)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", r.ID, err)
	}
	visibility, err := domain.ParseVisibility(r.Visibility)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", r.ID, err)
	}

	job := &domain.Job{
		ID:             r.ID,
		OwnerID:        r.OwnerID,
		Title:          r.Title,
		Status:         status,
		ErrorMessage:   r.ErrorMessage.String,
		Visibility:     visibility,
		ShareToken:     r.ShareToken.String,
		ResultSnapshot: r.ResultSnapshot,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.SharedAt.Valid {
		sharedAt := r.SharedAt.Time
		job.SharedAt = &sharedAt
	}
	return job, nil
}

// Postgres stores analysis jobs in PostgreSQL
type Postgres struct {
	db     *sqlx.DB
	clock  domain.Clock
	logger *slog.Logger
}

// NewPostgres creates a new Postgres store
func NewPostgres(pg *postgresql.Client, logger *slog.Logger) *Postgres {
	return &Postgres{
		db:     pg.GetDB(),
		clock:  domain.SystemClock{},
		logger: logger,
	}
}

// Create inserts a new job record
func (s *Postgres) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO analyses (
			id, owner_id, title, status, visibility,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.OwnerID,
		job.Title,
		job.Status,
		job.Visibility,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create job %s: %w", job.ID, domain.ErrDuplicate)
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetByID retrieves a job by its ID
func (s *Postgres) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM analyses WHERE id = $1`
	return s.getOne(ctx, s.db, query, jobID)
}

// GetByShareToken retrieves the job currently bound to token
func (s *Postgres) GetByShareToken(ctx context.Context, token string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM analyses WHERE share_token = $1`
	return s.getOne(ctx, s.db, query, token)
}

// ListByOwner lists one page of an owner's jobs, newest first.
// It fetches one extra row so callers can tell whether more pages exist.
func (s *Postgres) ListByOwner(ctx context.Context, filter JobFilter) ([]*domain.Job, error) {
	query := `SELECT ` + listColumns + ` FROM analyses WHERE owner_id = $1`
	args := []interface{}{filter.OwnerID}
	argIdx := 2

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*domain.Job, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// UpdateVisibility applies mutate under a row lock so concurrent toggles of the
// same job serialize; the table constraint rejects any token/visibility mismatch.
func (s *Postgres) UpdateVisibility(ctx context.Context, jobID string, mutate func(job *domain.Job) error) (*domain.Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	job, err := s.getOne(ctx, tx, `SELECT `+jobColumns+` FROM analyses WHERE id = $1 FOR UPDATE`, jobID)
	if err != nil {
		return nil, err
	}

	if err := mutate(job); err != nil {
		return nil, err
	}
	if err := job.CheckInvariant(); err != nil {
		return nil, err
	}

	query := `
		UPDATE analyses
		SET visibility = $2,
		    share_token = $3,
		    shared_at = $4,
		    updated_at = $5
		WHERE id = $1
	`
	_, err = tx.ExecContext(ctx, query,
		job.ID,
		job.Visibility,
		nullString(job.ShareToken),
		nullTime(job.SharedAt),
		job.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("failed to update visibility: share token: %w", domain.ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to update visibility: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit visibility update: %w", err)
	}

	return job, nil
}

// AdvanceStatus moves a job's status forward; backward or post-terminal moves are rejected
func (s *Postgres) AdvanceStatus(ctx context.Context, jobID string, next domain.Status, errorMessage string) (*domain.Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	job, err := s.getOne(ctx, tx, `SELECT `+jobColumns+` FROM analyses WHERE id = $1 FOR UPDATE`, jobID)
	if err != nil {
		return nil, err
	}

	changed, err := job.Advance(next, errorMessage, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !changed {
		return job, nil
	}

	query := `
		UPDATE analyses
		SET status = $2,
		    error_message = $3,
		    updated_at = $4
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, query, job.ID, job.Status, nullString(job.ErrorMessage), job.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to update job status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", job.Status.String()),
	)

	return job, nil
}

// SaveSnapshot records the last good engine payload of a completed job
func (s *Postgres) SaveSnapshot(ctx context.Context, jobID string, snapshot []byte) error {
	query := `
		UPDATE analyses
		SET result_snapshot = $2
		WHERE id = $1 AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, jobID, snapshot, domain.StatusCompleted)
	if err != nil {
		return fmt.Errorf("failed to save result snapshot: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		s.logger.Warn("Result snapshot not saved - job missing or not completed",
			slog.String("job_id", jobID),
		)
	}

	return nil
}

func (s *Postgres) getOne(ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) (*domain.Job, error) {
	var row jobRow
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return row.toDomain()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
