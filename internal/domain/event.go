package domain

import (
	"encoding/json"
	"math"
	"time"
)

// EventKind distinguishes progress records on the wire
type EventKind string

// Event kinds
const (
	EventProgress  EventKind = "progress"
	EventHeartbeat EventKind = "heartbeat"
	EventError     EventKind = "error"
	EventComplete  EventKind = "complete"
)

// ProgressEvent is one ordered message on a job's progress stream. It is never persisted.
type ProgressEvent struct {
	Kind      EventKind
	Stage     string
	Progress  int
	Message   string
	Details   map[string]any
	Timestamp time.Time
}

// NewHeartbeat creates a content-free liveness event
func NewHeartbeat(now time.Time) ProgressEvent {
	return ProgressEvent{Kind: EventHeartbeat, Timestamp: now}
}

// NewErrorEvent creates a terminal error event with a human-readable message
func NewErrorEvent(message string, now time.Time) ProgressEvent {
	return ProgressEvent{Kind: EventError, Stage: "error", Message: message, Timestamp: now}
}

// NewCompleteEvent creates the terminal event sent when a stream ends cleanly
func NewCompleteEvent(now time.Time) ProgressEvent {
	return ProgressEvent{
		Kind:      EventComplete,
		Stage:     "complete",
		Progress:  100,
		Message:   "Stream ended",
		Timestamp: now,
	}
}

// IsTerminal reports whether the event ends the stream
func (e ProgressEvent) IsTerminal() bool {
	return e.Kind == EventError || e.Kind == EventComplete
}

type wireEvent struct {
	Stage     string         `json:"stage,omitempty"`
	Progress  *float64       `json:"progress,omitempty"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Heartbeat bool           `json:"heartbeat,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp float64        `json:"timestamp"`
}

// MarshalJSON encodes the event in the engine's record format
func (e ProgressEvent) MarshalJSON() ([]byte, error) {
	w := wireEvent{Timestamp: toUnixSeconds(e.Timestamp)}

	switch e.Kind {
	case EventHeartbeat:
		w.Heartbeat = true
	case EventError:
		w.Stage = "error"
		w.Message = e.Message
		w.Error = e.Message
	default:
		progress := float64(e.Progress)
		w.Stage = e.Stage
		w.Progress = &progress
		w.Message = e.Message
		w.Details = e.Details
	}

	return json.Marshal(w)
}

// UnmarshalJSON decodes an engine record and classifies it
func (e *ProgressEvent) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*e = ProgressEvent{
		Stage:     w.Stage,
		Message:   w.Message,
		Details:   w.Details,
		Timestamp: fromUnixSeconds(w.Timestamp),
	}
	if w.Progress != nil {
		e.Progress = int(math.Round(min(max(*w.Progress, 0), 100)))
	}

	switch {
	case w.Heartbeat:
		e.Kind = EventHeartbeat
	case w.Error != "" || w.Stage == "error":
		e.Kind = EventError
		if e.Message == "" {
			e.Message = w.Error
		}
	case w.Stage == "complete" || w.Stage == "completed":
		e.Kind = EventComplete
	default:
		e.Kind = EventProgress
	}

	return nil
}

func toUnixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnixSeconds(sec float64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*float64(time.Second)))
}

// ProgressStream is an ordered source of progress events. Next returns io.EOF
// once the upstream ends cleanly.
type ProgressStream interface {
	Next() (ProgressEvent, error)
	Close() error
}
