package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransientKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind string
		wantOK   bool
	}{
		{name: "cloudflare", err: &CloudFlareError{Message: "challenge"}, wantKind: "CloudFlare", wantOK: true},
		{name: "incapsula", err: &IncapsulaError{Message: "blocked"}, wantKind: "Incapsula", wantOK: true},
		{name: "blockchain", err: &BlockchainError{Message: "explorer down"}, wantKind: "Blockchain", wantOK: true},
		{name: "wrapped cloudflare", err: fmt.Errorf("fetch balance: %w", &CloudFlareError{}), wantKind: "CloudFlare", wantOK: true},
		{name: "inside job wrapper", err: &WrappedJobError{JobID: 3, Err: &BlockchainError{}}, wantKind: "Blockchain", wantOK: true},
		{name: "canceled", err: &WrappedJobError{JobID: 4, Err: &CanceledError{Err: context.Canceled}}, wantKind: "Canceled", wantOK: true},
		{name: "external api", err: NewExternalAPIError("bad json"), wantOK: false},
		{name: "plain", err: errors.New("boom"), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := TransientKind(tt.err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantKind, kind)
		})
	}
}

func TestWrappedJobError(t *testing.T) {
	inner := NewJobError("Unknown job type '%s'", "nope")
	err := &WrappedJobError{JobID: 12, Err: inner}

	assert.Equal(t, "job 12 failed: Unknown job type 'nope'", err.Error())

	var jobErr *JobError
	assert.True(t, errors.As(err, &jobErr))
}

func TestExternalAPIError(t *testing.T) {
	assert.Equal(t, "Local timeout", NewExternalAPIError("Local timeout").Error())

	cause := errors.New("context deadline exceeded")
	err := &ExternalAPIError{Message: "Local timeout", Err: cause}
	assert.Equal(t, "Local timeout: context deadline exceeded", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestJob_State(t *testing.T) {
	assert.Equal(t, StatePending, (&Job{}).State())
	assert.Equal(t, StateExecuting, (&Job{IsExecuting: true}).State())
	assert.Equal(t, StateExecuted, (&Job{IsExecuted: true}).State())
	assert.Equal(t, StateFailed, (&Job{IsExecuted: true, IsError: true}).State())
}
