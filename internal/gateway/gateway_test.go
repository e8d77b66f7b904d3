package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuongbtq/analysis-delivery/internal/access"
	"github.com/cuongbtq/analysis-delivery/internal/cache"
	"github.com/cuongbtq/analysis-delivery/internal/domain"
	"github.com/cuongbtq/analysis-delivery/internal/relay"
	"github.com/cuongbtq/analysis-delivery/internal/result"
	"github.com/cuongbtq/analysis-delivery/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedStream struct {
	events chan domain.ProgressEvent
	closed chan struct{}
	once   sync.Once
}

func (s *scriptedStream) Next() (domain.ProgressEvent, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return domain.ProgressEvent{}, io.EOF
		}
		return ev, nil
	case <-s.closed:
		return domain.ProgressEvent{}, errors.New("closed")
	}
}

func (s *scriptedStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fakeEngine struct {
	mu          sync.Mutex
	seq         int
	statuses    map[string]domain.StatusUpdate
	fields      map[string]map[string]any
	down        bool
	resultCalls atomic.Int32
	stream      func() *scriptedStream
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		statuses: make(map[string]domain.StatusUpdate),
		fields:   make(map[string]map[string]any),
	}
}

func (e *fakeEngine) Submit(_ context.Context, sub domain.Submission) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.down {
		return "", domain.ErrUpstreamUnavailable
	}
	e.seq++
	id := fmt.Sprintf("text_%d", e.seq)
	e.statuses[id] = domain.StatusUpdate{JobID: id, Status: domain.StatusProcessing}
	return id, nil
}

func (e *fakeEngine) GetStatus(_ context.Context, jobID string) (domain.StatusUpdate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.down {
		return domain.StatusUpdate{}, domain.ErrUpstreamUnavailable
	}
	update, ok := e.statuses[jobID]
	if !ok {
		return domain.StatusUpdate{}, domain.ErrNotFound
	}
	return update, nil
}

func (e *fakeEngine) GetResult(_ context.Context, jobID string) (*domain.Report, error) {
	e.resultCalls.Add(1)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.down {
		return nil, domain.ErrUpstreamUnavailable
	}
	update := e.statuses[jobID]
	return &domain.Report{JobID: jobID, Status: update.Status, Fields: e.fields[jobID], ErrorMessage: update.ErrorMessage}, nil
}

func (e *fakeEngine) StreamProgress(_ context.Context, _ string) (domain.ProgressStream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.down || e.stream == nil {
		return nil, domain.ErrUpstreamUnavailable
	}
	return e.stream(), nil
}

func (e *fakeEngine) complete(jobID string, fields map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statuses[jobID] = domain.StatusUpdate{JobID: jobID, Status: domain.StatusCompleted}
	e.fields[jobID] = fields
}

func (e *fakeEngine) setDown(down bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.down = down
}

type sinkRecorder struct {
	mu     sync.Mutex
	events []domain.ProgressEvent
}

func (s *sinkRecorder) Send(ev domain.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

type fixture struct {
	gw     *Gateway
	store  *storage.Memory
	engine *fakeEngine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemory(nil)
	engine := newFakeEngine()

	results := result.NewAssembler(
		cache.New[result.Key, []byte](cache.Config{TTL: 5 * time.Minute, MaxEntries: 50}),
		engine, store, logger,
	)
	progress := relay.New(engine, relay.Config{ConnectTimeout: 100 * time.Millisecond, IdleThreshold: 20 * time.Millisecond}, logger)

	gw := New(Dependencies{
		Store:   store,
		Access:  access.NewController(store, logger),
		Results: results,
		Relay:   progress,
		Engine:  engine,
	}, Config{StatusTimeout: time.Second}, logger)

	return &fixture{gw: gw, store: store, engine: engine}
}

func (f *fixture) submit(t *testing.T, owner string) *domain.Job {
	t.Helper()
	job, err := f.gw.Submit(context.Background(), Viewer{UserID: owner}, domain.Submission{Title: "Draft", Text: "FADE IN:"})
	require.NoError(t, err)
	return job
}

func TestGateway_Submit(t *testing.T) {
	f := newFixture(t)

	job := f.submit(t, "user-1")
	assert.Equal(t, domain.StatusPending, job.Status)
	assert.Equal(t, domain.VisibilityPrivate, job.Visibility)
	assert.Equal(t, "user-1", job.OwnerID)

	stored, err := f.store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, stored.ID)

	t.Run("anonymous", func(t *testing.T) {
		_, err := f.gw.Submit(context.Background(), Viewer{}, domain.Submission{Title: "x", Text: "y"})
		assert.ErrorIs(t, err, domain.ErrAccessDenied)
	})

	t.Run("missing text", func(t *testing.T) {
		_, err := f.gw.Submit(context.Background(), Viewer{UserID: "user-1"}, domain.Submission{Title: "x", Text: "  "})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("engine down", func(t *testing.T) {
		f.engine.setDown(true)
		defer f.engine.setDown(false)
		_, err := f.gw.Submit(context.Background(), Viewer{UserID: "user-1"}, domain.Submission{Title: "x", Text: "y"})
		assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	})
}

func TestGateway_List(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.submit(t, "user-1")
	}
	f.submit(t, "user-2")

	viewer := Viewer{UserID: "user-1"}
	page, err := f.gw.List(context.Background(), viewer, 3, nil)
	require.NoError(t, err)
	require.Len(t, page.Jobs, 3)
	require.NotNil(t, page.NextCursor)

	next, err := f.gw.List(context.Background(), viewer, 3, page.NextCursor)
	require.NoError(t, err)
	assert.Len(t, next.Jobs, 2)
	assert.Nil(t, next.NextCursor)

	for _, job := range append(page.Jobs, next.Jobs...) {
		assert.Equal(t, "user-1", job.OwnerID)
	}
}

func TestGateway_UniformDenial(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, "user-1")
	f.engine.complete(job.ID, map[string]any{"overall_score": 8.0})

	tests := []struct {
		name   string
		viewer Viewer
		jobID  string
	}{
		{name: "anonymous", viewer: Viewer{}, jobID: job.ID},
		{name: "not the owner", viewer: Viewer{UserID: "user-2"}, jobID: job.ID},
		{name: "unknown job", viewer: Viewer{UserID: "user-2"}, jobID: "missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.gw.Result(context.Background(), tt.viewer, tt.jobID)
			assert.ErrorIs(t, err, domain.ErrAccessDenied)

			err = f.gw.Progress(context.Background(), tt.viewer, tt.jobID, &sinkRecorder{})
			assert.ErrorIs(t, err, domain.ErrAccessDenied)

			_, err = f.gw.SetVisibility(context.Background(), tt.viewer, tt.jobID, true)
			assert.ErrorIs(t, err, domain.ErrAccessDenied)
		})
	}
}

func TestGateway_ResultCacheMissThenHit(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, "user-1")
	viewer := Viewer{UserID: "user-1"}

	_, err := f.gw.Result(context.Background(), viewer, job.ID)
	assert.ErrorIs(t, err, domain.ErrNotReady)

	f.engine.complete(job.ID, map[string]any{"overall_score": 8.0, "logline": "A heist."})

	first, err := f.gw.Result(context.Background(), viewer, job.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.engine.resultCalls.Load())

	second, err := f.gw.Result(context.Background(), viewer, job.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), f.engine.resultCalls.Load())

	stored, err := f.store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.NotEmpty(t, stored.ResultSnapshot)
}

func TestGateway_ShareTokenLifecycle(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, "user-1")
	f.engine.complete(job.ID, map[string]any{"overall_score": 8.0})
	owner := Viewer{UserID: "user-1"}

	shared, err := f.gw.SetVisibility(context.Background(), owner, job.ID, true)
	require.NoError(t, err)
	token := shared.ShareToken
	require.NotEmpty(t, token)

	payload, err := f.gw.PublicResult(context.Background(), token)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(payload, &out))
	assert.Equal(t, 8.0, out["overall_score"])
	assert.NotContains(t, out, "owner_id")
	assert.NotContains(t, out, "share_token")

	_, err = f.gw.SetVisibility(context.Background(), owner, job.ID, false)
	require.NoError(t, err)

	_, err = f.gw.PublicResult(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrNotFound, "cached public payload must not outlive the token")

	reshared, err := f.gw.SetVisibility(context.Background(), owner, job.ID, true)
	require.NoError(t, err)
	assert.NotEqual(t, token, reshared.ShareToken)
}

func TestGateway_OwnerResultReflectsVisibility(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, "user-1")
	f.engine.complete(job.ID, map[string]any{})
	owner := Viewer{UserID: "user-1"}

	decode := func() map[string]any {
		payload, err := f.gw.Result(context.Background(), owner, job.ID)
		require.NoError(t, err)
		var out map[string]any
		require.NoError(t, json.Unmarshal(payload, &out))
		return out
	}

	assert.Equal(t, "private", decode()["visibility"])

	shared, err := f.gw.SetVisibility(context.Background(), owner, job.ID, true)
	require.NoError(t, err)

	out := decode()
	assert.Equal(t, "public", out["visibility"])
	assert.Equal(t, shared.ShareToken, out["share_token"])
}

func TestGateway_SnapshotFallback(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, "user-1")
	f.engine.complete(job.ID, map[string]any{"overall_score": 8.0})
	owner := Viewer{UserID: "user-1"}

	_, err := f.gw.Result(context.Background(), owner, job.ID)
	require.NoError(t, err)

	// Drop the cached copy so the next read has to go to the engine.
	_, err = f.gw.SetVisibility(context.Background(), owner, job.ID, false)
	require.NoError(t, err)
	f.engine.setDown(true)

	payload, err := f.gw.Result(context.Background(), owner, job.ID)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(payload, &out))
	assert.Equal(t, 8.0, out["overall_score"])
}

func TestGateway_Progress(t *testing.T) {
	t.Run("live job is relayed", func(t *testing.T) {
		f := newFixture(t)
		job := f.submit(t, "user-1")
		f.engine.stream = func() *scriptedStream {
			s := &scriptedStream{events: make(chan domain.ProgressEvent, 4), closed: make(chan struct{})}
			s.events <- domain.ProgressEvent{Kind: domain.EventProgress, Stage: "starting", Progress: 5}
			s.events <- domain.ProgressEvent{Kind: domain.EventProgress, Stage: "analysis", Progress: 60}
			close(s.events)
			return s
		}

		sink := &sinkRecorder{}
		require.NoError(t, f.gw.Progress(context.Background(), Viewer{UserID: "user-1"}, job.ID, sink))

		require.Len(t, sink.events, 3)
		assert.Equal(t, "starting", sink.events[0].Stage)
		assert.Equal(t, "analysis", sink.events[1].Stage)
		assert.Equal(t, domain.EventComplete, sink.events[2].Kind)
	})

	t.Run("terminal job gets one terminal event", func(t *testing.T) {
		f := newFixture(t)
		job := f.submit(t, "user-1")
		f.engine.complete(job.ID, nil)

		sink := &sinkRecorder{}
		require.NoError(t, f.gw.Progress(context.Background(), Viewer{UserID: "user-1"}, job.ID, sink))

		require.Len(t, sink.events, 1)
		assert.Equal(t, domain.EventComplete, sink.events[0].Kind)
	})

	t.Run("engine unavailable yields error event", func(t *testing.T) {
		f := newFixture(t)
		job := f.submit(t, "user-1")
		f.engine.setDown(true)

		sink := &sinkRecorder{}
		require.NoError(t, f.gw.Progress(context.Background(), Viewer{UserID: "user-1"}, job.ID, sink))

		require.Len(t, sink.events, 1)
		assert.Equal(t, domain.EventError, sink.events[0].Kind)
	})
}

func TestGateway_ConcurrentToggleKeepsInvariant(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t, "user-1")
	owner := Viewer{UserID: "user-1"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(public bool) {
			defer wg.Done()
			_, err := f.gw.SetVisibility(context.Background(), owner, job.ID, public)
			assert.NoError(t, err)
		}(i%2 == 0)
	}
	wg.Wait()

	stored, err := f.store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.NoError(t, stored.CheckInvariant())
}
