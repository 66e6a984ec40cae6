package script

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuongbtq/openclerk/internal/jobs/domain"
	"github.com/cuongbtq/openclerk/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
}

func newTestRunner(t *testing.T) (*Runner, string) {
	t.Helper()
	dir := t.TempDir()
	return NewRunner(dir, logger.NewNop().Logger), dir
}

func TestRunner_Exists(t *testing.T) {
	r, dir := newTestRunner(t)
	writeScript(t, dir, "addresses/nmc", "exit 0")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	assert.True(t, r.Exists("addresses/nmc"))
	assert.False(t, r.Exists("addresses/dog"))
	assert.False(t, r.Exists("notes.txt"))
}

func TestHandler_PassesJobEnvironment(t *testing.T) {
	r, dir := newTestRunner(t)
	out := filepath.Join(dir, "env.out")
	writeScript(t, dir, "addresses/discovered", `echo "$JOB_ID $JOB_TYPE $USER_ID $ARG_ID $CURRENCY" > `+out)

	job := &domain.Job{ID: 7, JobType: "address_btc", UserID: 3, ArgID: 11}
	err := r.Handler("addresses/discovered", map[string]string{"CURRENCY": "btc"}).Run(context.Background(), job)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "7 address_btc 3 11 btc\n", string(data))
}

func TestHandler_ExitStatuses(t *testing.T) {
	r, dir := newTestRunner(t)

	tests := []struct {
		name    string
		body    string
		check   func(t *testing.T, err error)
		message string
	}{
		{
			name:    "cloudflare",
			body:    "echo 'challenge page' >&2; exit 64",
			message: "CloudFlare: challenge page",
			check: func(t *testing.T, err error) {
				var target *domain.CloudFlareError
				assert.True(t, errors.As(err, &target))
			},
		},
		{
			name:    "incapsula",
			body:    "exit 65",
			message: "Incapsula: script incapsula exited with status 65",
			check: func(t *testing.T, err error) {
				var target *domain.IncapsulaError
				assert.True(t, errors.As(err, &target))
			},
		},
		{
			name:    "blockchain",
			body:    "echo 'explorer down' >&2; exit 66",
			message: "Blockchain: explorer down",
			check: func(t *testing.T, err error) {
				_, ok := domain.TransientKind(err)
				assert.True(t, ok)
			},
		},
		{
			name:    "external api",
			body:    "echo 'first' >&2; echo 'Invalid API key' >&2; exit 67",
			message: "Invalid API key",
			check: func(t *testing.T, err error) {
				var target *domain.ExternalAPIError
				assert.True(t, errors.As(err, &target))
			},
		},
		{
			name:    "generic",
			body:    "echo 'boom' >&2; exit 1",
			message: "boom",
			check: func(t *testing.T, err error) {
				_, ok := domain.TransientKind(err)
				assert.False(t, ok)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeScript(t, dir, tt.name, tt.body)
			err := r.Handler(tt.name, nil).Run(context.Background(), &domain.Job{ID: 1, JobType: tt.name})
			require.Error(t, err)
			assert.Equal(t, tt.message, err.Error())
			tt.check(t, err)
		})
	}
}

func TestHandler_Timeout(t *testing.T) {
	r, dir := newTestRunner(t)
	writeScript(t, dir, "slow", "sleep 5")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := r.Handler("slow", nil).Run(ctx, &domain.Job{ID: 1, JobType: "slow"})
	require.Error(t, err)

	var apiErr *domain.ExternalAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Local timeout", apiErr.Message)
}

func TestHandler_MissingScript(t *testing.T) {
	r, _ := newTestRunner(t)
	err := r.Handler("bitstamp", nil).Run(context.Background(), &domain.Job{ID: 1})

	var jobErr *domain.JobError
	require.True(t, errors.As(err, &jobErr))
	assert.Equal(t, "Could not find script bitstamp", jobErr.Message)
}
