package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/analysis-delivery/internal/domain"
)

// processUpdate applies one status message. Stale or repeated messages are
// accepted without change.
func (w *Worker) processUpdate(ctx context.Context, msg *statusMessage) error {
	update := msg.Update

	ctx, cancel := context.WithTimeout(ctx, w.updateTimeout)
	defer cancel()

	job, err := w.store.AdvanceStatus(ctx, update.JobID, update.Status, update.ErrorMessage)
	switch {
	case err == nil:
		w.logger.Info("Analysis status synced",
			slog.String("job_id", job.ID),
			slog.String("status", job.Status.String()),
		)
		return nil

	case errors.Is(err, domain.ErrInvalidTransition):
		w.logger.Debug("Ignoring stale status message",
			slog.String("job_id", update.JobID),
			slog.String("status", update.Status.String()),
		)
		return nil

	case errors.Is(err, domain.ErrNotFound):
		// The engine can report before the submitting request has recorded
		// the job; give it one redelivery.
		if !msg.Delivery.Redelivered {
			return domain.NewRetryableError(fmt.Errorf("job %s not recorded yet: %w", update.JobID, err))
		}
		return fmt.Errorf("job %s: %w", update.JobID, err)

	default:
		return domain.NewRetryableError(fmt.Errorf("failed to advance status: %w", err))
	}
}
