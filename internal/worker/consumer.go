package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/analysis-delivery/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// statusMessage is one decoded delivery waiting for the pool
type statusMessage struct {
	Update   domain.StatusUpdate
	Delivery amqp.Delivery
}

// setupConsumer sets up RabbitMQ consumer with QoS and returns delivery channel
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	// prefetch bounds unacknowledged messages held by this consumer
	if err := w.source.SetQos(w.prefetchCount); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	w.logger.Info("RabbitMQ QoS configured",
		slog.Int("prefetch_count", w.prefetchCount),
	)

	deliveries, err := w.source.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
		slog.String("queue", w.queueName),
	)

	return deliveries, nil
}

// startMessageDispatcher decodes deliveries and hands them to the worker pool.
// It closes the pool's channel when it returns.
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer close(w.messages)

	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case <-w.stopChan:
			w.logger.Info("Message dispatcher stopped - stopChan closed")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			update, err := decodeStatusUpdate(delivery.Body)
			if err != nil {
				w.logger.Error("Discarding invalid status message",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				// Malformed messages go to the dead-letter queue, if any
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK invalid message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			select {
			case w.messages <- &statusMessage{Update: update, Delivery: delivery}:
				w.logger.Debug("Status message dispatched to worker pool",
					slog.String("job_id", update.JobID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching")
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			}
		}
	}
}

func decodeStatusUpdate(body []byte) (domain.StatusUpdate, error) {
	var raw struct {
		JobID        string `json:"analysis_id"`
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.StatusUpdate{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if raw.JobID == "" {
		return domain.StatusUpdate{}, fmt.Errorf("%w: analysis_id is required", domain.ErrInvalidPayload)
	}

	status, err := domain.ParseStatus(raw.Status)
	if err != nil {
		return domain.StatusUpdate{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	return domain.StatusUpdate{
		JobID:        raw.JobID,
		Status:       status,
		ErrorMessage: raw.ErrorMessage,
	}, nil
}
