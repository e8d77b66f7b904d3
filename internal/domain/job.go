package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Job tracks one submitted document's analysis lifecycle
type Job struct {
	ID             string
	OwnerID        string
	Title          string
	Status         Status
	ErrorMessage   string
	Visibility     Visibility
	ShareToken     string // empty iff Visibility is private
	SharedAt       *time.Time
	ResultSnapshot json.RawMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewJob creates a pending, private job
func NewJob(id, ownerID, title string, now time.Time) *Job {
	return &Job{
		ID:         id,
		OwnerID:    ownerID,
		Title:      title,
		Status:     StatusPending,
		Visibility: VisibilityPrivate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Advance moves the job forward to next. Re-applying the current status is a no-op.
func (j *Job) Advance(next Status, errorMessage string, now time.Time) (bool, error) {
	if next == j.Status {
		return false, nil
	}
	if !j.Status.CanAdvanceTo(next) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, next)
	}

	j.Status = next
	if next == StatusError {
		j.ErrorMessage = errorMessage
	}
	j.UpdatedAt = now
	return true, nil
}

// IsPublic reports whether the job is viewable through its share token
func (j *Job) IsPublic() bool {
	return j.Visibility == VisibilityPublic
}

// Publish binds token to the job. An already public job keeps its token.
func (j *Job) Publish(token string, now time.Time) bool {
	if j.IsPublic() {
		return false
	}

	sharedAt := now
	j.Visibility = VisibilityPublic
	j.ShareToken = token
	j.SharedAt = &sharedAt
	j.UpdatedAt = now
	return true
}

// Unpublish clears the token and shared_at unconditionally
func (j *Job) Unpublish(now time.Time) {
	j.Visibility = VisibilityPrivate
	j.ShareToken = ""
	j.SharedAt = nil
	j.UpdatedAt = now
}

// CheckInvariant verifies (share_token present) <=> (visibility public)
func (j *Job) CheckInvariant() error {
	if (j.ShareToken != "") != j.IsPublic() {
		return fmt.Errorf("%w: job %s visibility=%s", ErrInvariantViolated, j.ID, j.Visibility)
	}
	return nil
}

// Clone returns a deep copy of the job
func (j *Job) Clone() *Job {
	c := *j
	if j.SharedAt != nil {
		sharedAt := *j.SharedAt
		c.SharedAt = &sharedAt
	}
	if j.ResultSnapshot != nil {
		c.ResultSnapshot = append(json.RawMessage(nil), j.ResultSnapshot...)
	}
	return &c
}

// Submission is a document handed to the analysis engine
type Submission struct {
	OwnerID string
	Title   string
	Text    string
	Genre   string
}

// StatusUpdate is a status report for one job, from the engine or its event feed
type StatusUpdate struct {
	JobID        string `json:"analysis_id"`
	Status       Status `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Report is the engine's view of a job: its status and analytical content
type Report struct {
	JobID        string
	Status       Status
	Fields       map[string]any
	ErrorMessage string
}
