// Package script runs the external per-exchange job scripts.
//
// A script receives the job through environment variables and reports the
// kind of failure through its exit status:
//
//	0   success
//	64  CloudFlare challenge
//	65  Incapsula challenge
//	66  blockchain explorer unavailable
//	67  remote API error
//	*   any other failure
//
// The last non-empty line written to stderr becomes the error message.
package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/openclerk/internal/jobs/domain"
	"github.com/cuongbtq/openclerk/internal/jobs/registry"
)

// Exit statuses with a meaning beyond plain failure
const (
	ExitCloudFlare  = 64
	ExitIncapsula   = 65
	ExitBlockchain  = 66
	ExitExternalAPI = 67
)

// Runner resolves script names below Dir
type Runner struct {
	dir    string
	logger *slog.Logger
}

// NewRunner creates a Runner for scripts stored in dir
func NewRunner(dir string, logger *slog.Logger) *Runner {
	return &Runner{dir: dir, logger: logger}
}

// Exists reports whether script names an executable file
func (r *Runner) Exists(script string) bool {
	info, err := os.Stat(r.path(script))
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}

// Handler returns a handler that runs script with vars added to the environment
func (r *Runner) Handler(script string, vars map[string]string) registry.Handler {
	return &handler{runner: r, script: script, vars: vars}
}

func (r *Runner) path(script string) string {
	return filepath.Join(r.dir, filepath.FromSlash(script))
}

type handler struct {
	runner *Runner
	script string
	vars   map[string]string
}

func (h *handler) Run(ctx context.Context, job *domain.Job) error {
	path := h.runner.path(h.script)
	if !h.runner.Exists(h.script) {
		return domain.NewJobError("Could not find script %s", h.script)
	}

	cmd := exec.CommandContext(ctx, path)
	cmd.Dir = h.runner.dir
	cmd.Env = append(os.Environ(),
		"JOB_ID="+strconv.FormatInt(job.ID, 10),
		"JOB_TYPE="+job.JobType,
		"USER_ID="+strconv.FormatInt(job.UserID, 10),
		"ARG_ID="+strconv.FormatInt(job.ArgID, 10),
	)
	for k, v := range h.vars {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	h.runner.logger.Debug("Script finished",
		slog.String("script", h.script),
		slog.Int64("job_id", job.ID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("stdout_bytes", stdout.Len()),
	)

	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &domain.ExternalAPIError{Message: "Local timeout", Err: ctx.Err()}
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("failed to run script %s: %w", h.script, err)
	}

	return classify(h.script, exitErr.ExitCode(), lastLine(stderr.String()))
}

// classify turns an exit status into the matching error type
func classify(script string, code int, message string) error {
	if message == "" {
		message = fmt.Sprintf("script %s exited with status %d", script, code)
	}

	switch code {
	case ExitCloudFlare:
		return &domain.CloudFlareError{Message: message}
	case ExitIncapsula:
		return &domain.IncapsulaError{Message: message}
	case ExitBlockchain:
		return &domain.BlockchainError{Message: message}
	case ExitExternalAPI:
		return domain.NewExternalAPIError(message)
	default:
		return errors.New(message)
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
