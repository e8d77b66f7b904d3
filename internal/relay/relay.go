package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cuongbtq/analysis-delivery/internal/domain"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultIdleThreshold  = 10 * time.Second

	msgEngineUnavailable = "Analysis engine is unavailable"
	msgConnectionLost    = "Lost connection to analysis engine"
)

// State is the lifecycle position of one relay session
type State int

// Session states
const (
	StateConnecting State = iota
	StateStreaming
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateStreaming:
		return "STREAMING"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Source opens the engine's event stream for a job
type Source interface {
	StreamProgress(ctx context.Context, jobID string) (domain.ProgressStream, error)
}

// Sink delivers events to one client
type Sink interface {
	Send(ev domain.ProgressEvent) error
}

// Config holds relay tuning
type Config struct {
	ConnectTimeout time.Duration
	IdleThreshold  time.Duration
	Clock          domain.Clock
}

// Relay forwards engine progress events to clients
type Relay struct {
	source Source
	cfg    Config
	logger *slog.Logger
}

// New creates a new Relay
func New(source Source, cfg Config, logger *slog.Logger) *Relay {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = defaultIdleThreshold
	}
	if cfg.Clock == nil {
		cfg.Clock = domain.SystemClock{}
	}
	return &Relay{source: source, cfg: cfg, logger: logger}
}

type readResult struct {
	ev  domain.ProgressEvent
	err error
}

// Run relays jobID's progress to sink until a terminal event has been
// delivered, the client goes away, or the sink fails. Every path that still
// has a client ends with exactly one terminal event. The returned error is
// non-nil only when the client could not be served.
func (r *Relay) Run(ctx context.Context, jobID string, sink Sink) (State, error) {
	logger := r.logger.With(slog.String("job_id", jobID))

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Debug("Relay connecting", slog.String("state", StateConnecting.String()))
	stream, err := r.connect(sessionCtx, cancel, jobID)
	if err != nil {
		if ctx.Err() != nil {
			return StateFailed, ctx.Err()
		}
		logger.Warn("Failed to open engine progress stream", slog.Any("error", err))
		return StateFailed, r.emit(sink, domain.NewErrorEvent(msgEngineUnavailable, r.cfg.Clock.Now()))
	}

	logger.Debug("Relay streaming", slog.String("state", StateStreaming.String()))

	events := make(chan readResult)
	g, gctx := errgroup.WithContext(sessionCtx)
	g.Go(func() error {
		for {
			ev, err := stream.Next()
			select {
			case events <- readResult{ev: ev, err: err}:
			case <-gctx.Done():
				return nil
			}
			if err != nil {
				return nil
			}
		}
	})

	// Closing the stream unblocks a pending Next so the reader always exits.
	defer func() {
		cancel()
		if err := stream.Close(); err != nil {
			logger.Debug("Failed to close engine stream", slog.Any("error", err))
		}
		_ = g.Wait()
	}()

	idle := time.NewTimer(r.cfg.IdleThreshold)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Client disconnected, cancelling upstream")
			return StateFailed, ctx.Err()

		case res := <-events:
			if state, done, err := r.handle(ctx, logger, sink, res); done {
				return state, err
			}
			idle.Reset(r.cfg.IdleThreshold)

		case <-idle.C:
			// An engine event that is already waiting wins over a heartbeat.
			select {
			case res := <-events:
				if state, done, err := r.handle(ctx, logger, sink, res); done {
					return state, err
				}
			default:
				if err := r.emit(sink, domain.NewHeartbeat(r.cfg.Clock.Now())); err != nil {
					return StateFailed, err
				}
			}
			idle.Reset(r.cfg.IdleThreshold)
		}
	}
}

// connect opens the upstream stream within the connect timeout. The stream
// stays bound to ctx after connecting.
func (r *Relay) connect(ctx context.Context, cancel context.CancelFunc, jobID string) (domain.ProgressStream, error) {
	timer := time.AfterFunc(r.cfg.ConnectTimeout, cancel)

	stream, err := r.source.StreamProgress(ctx, jobID)
	if !timer.Stop() {
		if stream != nil {
			_ = stream.Close()
		}
		return nil, fmt.Errorf("%w: connect timed out after %s", domain.ErrUpstreamUnavailable, r.cfg.ConnectTimeout)
	}
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// handle processes one upstream read and reports whether the session is over
func (r *Relay) handle(ctx context.Context, logger *slog.Logger, sink Sink, res readResult) (State, bool, error) {
	if res.err != nil {
		if errors.Is(res.err, io.EOF) {
			logger.Debug("Engine stream ended")
			return StateCompleted, true, r.emit(sink, domain.NewCompleteEvent(r.cfg.Clock.Now()))
		}
		if ctx.Err() != nil {
			return StateFailed, true, ctx.Err()
		}
		logger.Warn("Engine progress stream failed", slog.Any("error", res.err))
		return StateFailed, true, r.emit(sink, domain.NewErrorEvent(msgConnectionLost, r.cfg.Clock.Now()))
	}

	if err := sink.Send(res.ev); err != nil {
		return StateFailed, true, fmt.Errorf("failed to deliver event: %w", err)
	}

	switch res.ev.Kind {
	case domain.EventComplete:
		return StateCompleted, true, nil
	case domain.EventError:
		return StateFailed, true, nil
	default:
		return StateStreaming, false, nil
	}
}

func (r *Relay) emit(sink Sink, ev domain.ProgressEvent) error {
	if err := sink.Send(ev); err != nil {
		return fmt.Errorf("failed to deliver %s event: %w", ev.Kind, err)
	}
	return nil
}
