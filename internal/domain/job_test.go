package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_CanAdvanceTo(t *testing.T) {
	tests := []struct {
		name     string
		from     Status
		to       Status
		expected bool
	}{
		{name: "pending to processing", from: StatusPending, to: StatusProcessing, expected: true},
		{name: "pending to completed", from: StatusPending, to: StatusCompleted, expected: true},
		{name: "processing to error", from: StatusProcessing, to: StatusError, expected: true},
		{name: "processing to pending", from: StatusProcessing, to: StatusPending, expected: false},
		{name: "completed to error", from: StatusCompleted, to: StatusError, expected: false},
		{name: "error to completed", from: StatusError, to: StatusCompleted, expected: false},
		{name: "same status", from: StatusProcessing, to: StatusProcessing, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.from.CanAdvanceTo(tt.to))
		})
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("completed")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, s)
	assert.True(t, s.IsTerminal())

	_, err = ParseStatus("COMPLETED")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = ParseVisibility("shared")
	assert.ErrorIs(t, err, ErrInvalidVisibility)
}

func TestJob_Advance(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	job := NewJob("job-1", "user-1", "Draft", now)

	changed, err := job.Advance(StatusProcessing, "", now.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = job.Advance(StatusProcessing, "", now.Add(2*time.Second))
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = job.Advance(StatusError, "engine crashed", now.Add(3*time.Second))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "engine crashed", job.ErrorMessage)

	_, err = job.Advance(StatusProcessing, "", now.Add(4*time.Second))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusError, job.Status)
}

func TestJob_PublishUnpublish(t *testing.T) {
	now := time.Now()
	job := NewJob("job-1", "user-1", "Draft", now)
	require.NoError(t, job.CheckInvariant())

	assert.True(t, job.Publish("token-a", now))
	require.NoError(t, job.CheckInvariant())
	require.NotNil(t, job.SharedAt)

	assert.False(t, job.Publish("token-b", now.Add(time.Minute)))
	assert.Equal(t, "token-a", job.ShareToken)

	job.Unpublish(now)
	require.NoError(t, job.CheckInvariant())
	assert.Empty(t, job.ShareToken)
	assert.Nil(t, job.SharedAt)

	job.ShareToken = "dangling"
	assert.ErrorIs(t, job.CheckInvariant(), ErrInvariantViolated)
}

func TestJob_Clone(t *testing.T) {
	now := time.Now()
	job := NewJob("job-1", "user-1", "Draft", now)
	job.Publish("token", now)
	job.ResultSnapshot = json.RawMessage(`{"score":7}`)

	c := job.Clone()
	c.ResultSnapshot[2] = 'x'
	*c.SharedAt = now.Add(time.Hour)

	assert.Equal(t, `{"score":7}`, string(job.ResultSnapshot))
	assert.Equal(t, now, *job.SharedAt)
}

func TestProgressEvent_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		kind     EventKind
		progress int
		message  string
	}{
		{
			name:     "progress record",
			input:    `{"stage":"claude_analysis","progress":40,"message":"Analyzing","details":{"model":"x"},"timestamp":1700000000.5}`,
			kind:     EventProgress,
			progress: 40,
			message:  "Analyzing",
		},
		{
			name:  "heartbeat record",
			input: `{"heartbeat":true,"timestamp":1700000001}`,
			kind:  EventHeartbeat,
		},
		{
			name:     "final record",
			input:    `{"stage":"complete","progress":100,"message":"Stream ended"}`,
			kind:     EventComplete,
			progress: 100,
			message:  "Stream ended",
		},
		{
			name:    "error record",
			input:   `{"stage":"error","message":"Analysis failed","timestamp":1700000002}`,
			kind:    EventError,
			message: "Analysis failed",
		},
		{
			name:    "error field only",
			input:   `{"error":"boom"}`,
			kind:    EventError,
			message: "boom",
		},
		{
			name:     "progress clamped",
			input:    `{"stage":"x","progress":140}`,
			kind:     EventProgress,
			progress: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ev ProgressEvent
			require.NoError(t, json.Unmarshal([]byte(tt.input), &ev))
			assert.Equal(t, tt.kind, ev.Kind)
			assert.Equal(t, tt.progress, ev.Progress)
			assert.Equal(t, tt.message, ev.Message)
		})
	}
}

func TestProgressEvent_MarshalJSON(t *testing.T) {
	ts := time.Unix(1700000000, 0)

	data, err := json.Marshal(NewHeartbeat(ts))
	require.NoError(t, err)
	assert.JSONEq(t, `{"heartbeat":true,"timestamp":1700000000}`, string(data))

	data, err = json.Marshal(NewErrorEvent("Lost connection", ts))
	require.NoError(t, err)
	assert.JSONEq(t, `{"stage":"error","message":"Lost connection","error":"Lost connection","timestamp":1700000000}`, string(data))

	data, err = json.Marshal(NewCompleteEvent(ts))
	require.NoError(t, err)
	assert.JSONEq(t, `{"stage":"complete","progress":100,"message":"Stream ended","timestamp":1700000000}`, string(data))
}
