package domain

import "errors"

var (
	// ErrNotFound is returned when a job cannot be found or a share token is no longer bound
	ErrNotFound = errors.New("analysis not found")

	// ErrForbidden is returned when a viewer does not own the job
	ErrForbidden = errors.New("forbidden")

	// ErrAccessDenied is the uniform outcome of any authorization failure on the owner path
	ErrAccessDenied = errors.New("access denied")

	// ErrNotReady is returned when a result is requested before the job is terminal
	ErrNotReady = errors.New("analysis not ready")

	// ErrUpstreamUnavailable is returned when the analysis engine is unreachable or erroring
	ErrUpstreamUnavailable = errors.New("analysis engine unavailable")

	// ErrInvalidTransition is returned when a status change would move backward
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidStatus is returned for an unknown status string
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidVisibility is returned for an unknown visibility string
	ErrInvalidVisibility = errors.New("invalid visibility")

	// ErrInvariantViolated is returned when visibility and share token disagree
	ErrInvariantViolated = errors.New("share token does not match visibility")

	// ErrInvalidInput is returned when a submission or request parameter is malformed
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicate is returned when a job ID or share token is already taken
	ErrDuplicate = errors.New("duplicate analysis")

	// ErrInvalidPayload is returned when a status message cannot be decoded
	ErrInvalidPayload = errors.New("invalid status payload")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
