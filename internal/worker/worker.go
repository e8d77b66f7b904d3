package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/analysis-delivery/internal/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultUpdateTimeout = 10 * time.Second

// StatusStore records status transitions reported by the engine
type StatusStore interface {
	AdvanceStatus(ctx context.Context, jobID string, next domain.Status, errorMessage string) (*domain.Job, error)
}

// MessageSource delivers engine status messages
type MessageSource interface {
	SetQos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Store         StatusStore
	Source        MessageSource
	QueueName     string
	Concurrency   int
	PrefetchCount int
	UpdateTimeout time.Duration
}

// Worker applies engine status messages to the durable store
type Worker struct {
	logger        *slog.Logger
	store         StatusStore
	source        MessageSource
	queueName     string
	workerID      string
	concurrency   int
	prefetchCount int
	updateTimeout time.Duration
	messages      chan *statusMessage
	wg            sync.WaitGroup
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency
	}
	updateTimeout := cfg.UpdateTimeout
	if updateTimeout <= 0 {
		updateTimeout = defaultUpdateTimeout
	}

	return &Worker{
		logger:        cfg.Logger,
		store:         cfg.Store,
		source:        cfg.Source,
		queueName:     cfg.QueueName,
		workerID:      "status-sync-" + uuid.New().String()[:8],
		concurrency:   concurrency,
		prefetchCount: prefetch,
		updateTimeout: updateTimeout,
		messages:      make(chan *statusMessage, concurrency),
		stopChan:      make(chan struct{}),
	}
}

// Start consumes status messages until ctx is canceled or the broker
// closes the delivery channel
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("update_timeout", w.updateTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker after in-flight messages finish
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
