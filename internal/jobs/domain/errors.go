package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when another runner started the job first
	ErrJobAlreadyClaimed = errors.New("job already claimed or executing")

	// ErrInvalidKey is returned when the automation key does not match
	ErrInvalidKey = errors.New("invalid batch key")

	// ErrAccountNotFound is returned when a failure-tracked account row is missing
	ErrAccountNotFound = errors.New("account not found")

	// ErrUserNotFound is returned when the job's user is missing
	ErrUserNotFound = errors.New("user not found")
)

// JobError reports a job that cannot be dispatched, such as an unknown type
type JobError struct {
	Message string
}

func (e *JobError) Error() string {
	return e.Message
}

// NewJobError creates a JobError with a formatted message
func NewJobError(format string, args ...any) error {
	return &JobError{Message: fmt.Sprintf(format, args...)}
}

// ExternalAPIError reports a failure talking to a remote service, or a job that
// is refused before it runs
type ExternalAPIError struct {
	Message string
	Err     error
}

func (e *ExternalAPIError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ExternalAPIError) Unwrap() error {
	return e.Err
}

// NewExternalAPIError creates an ExternalAPIError
func NewExternalAPIError(message string) error {
	return &ExternalAPIError{Message: message}
}

// CloudFlareError is raised when a remote API sits behind a CloudFlare challenge
type CloudFlareError struct{ Message string }

func (e *CloudFlareError) Error() string { return "CloudFlare: " + e.Message }

// Transient marks the failure as not the account's fault
func (e *CloudFlareError) Transient() string { return "CloudFlare" }

// IncapsulaError is raised when a remote API sits behind an Incapsula challenge
type IncapsulaError struct{ Message string }

func (e *IncapsulaError) Error() string { return "Incapsula: " + e.Message }

// Transient marks the failure as not the account's fault
func (e *IncapsulaError) Transient() string { return "Incapsula" }

// BlockchainError is raised when a blockchain explorer is unavailable
type BlockchainError struct{ Message string }

func (e *BlockchainError) Error() string { return "Blockchain: " + e.Message }

// Transient marks the failure as not the account's fault
func (e *BlockchainError) Transient() string { return "Blockchain" }

// CanceledError is a run interrupted by the operator, such as a shutdown signal
type CanceledError struct{ Err error }

func (e *CanceledError) Error() string { return "Interrupted: " + e.Err.Error() }

func (e *CanceledError) Unwrap() error { return e.Err }

// Transient marks the failure as not the account's fault
func (e *CanceledError) Transient() string { return "Canceled" }

// TransientKind returns the kind name when err is a failure that must not be
// counted against the account
func TransientKind(err error) (string, bool) {
	var t interface{ Transient() string }
	if errors.As(err, &t) {
		return t.Transient(), true
	}
	return "", false
}

// WrappedJobError is what a failed run returns once the job has been recorded
type WrappedJobError struct {
	JobID int64
	Err   error
}

func (e *WrappedJobError) Error() string {
	return fmt.Sprintf("job %d failed: %s", e.JobID, e.Err.Error())
}

func (e *WrappedJobError) Unwrap() error {
	return e.Err
}

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
