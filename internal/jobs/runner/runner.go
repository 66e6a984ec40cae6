// Package runner picks the next eligible job and executes it.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/openclerk/internal/jobs/domain"
	"github.com/cuongbtq/openclerk/internal/jobs/registry"
	"github.com/cuongbtq/openclerk/internal/observability"
)

// Outcome summarises a runner invocation
type Outcome string

const (
	OutcomeNoJob          Outcome = "no_job"
	OutcomeTooManyRunning Outcome = "too_many_running"
	OutcomeDisabled       Outcome = "disabled"
	OutcomeAlreadyClaimed Outcome = "already_claimed"
	OutcomeSuccess        Outcome = "success"
	OutcomeFailed         Outcome = "failed"
)

// JobStore is the job table as the runner uses it
type JobStore interface {
	GetJobByID(ctx context.Context, jobID int64) (*domain.Job, error)
	ReapTimedOut(ctx context.Context, now time.Time, timeout, testTimeout time.Duration) (int64, error)
	CountExecuting(ctx context.Context) (int, error)
	ListRunnable(ctx context.Context, jobTypes []string, limit int) ([]domain.Job, error)
	LastExecutedSince(ctx context.Context, jobType string, since time.Time) (*domain.Job, error)
	ClaimJob(ctx context.Context, job *domain.Job, now time.Time) error
	CompleteJob(ctx context.Context, jobID int64, isError bool, now time.Time) error
}

// Resolver finds the handler of a job type
type Resolver interface {
	Resolve(jobType string) (registry.Handler, error)
}

// FailureRecorder updates account failure counters after a run
type FailureRecorder interface {
	Record(ctx context.Context, job *domain.Job, runErr error) error
}

// KeyVerifier checks the automation key
type KeyVerifier interface {
	Verify(key string) error
}

// Config holds the site settings that govern job selection
type Config struct {
	JobsEnabled        bool
	MaximumJobsRunning int
	MaxJobExecutions   int
	JobTimeout         time.Duration
	TestJobTimeout     time.Duration
	CandidateLimit     int

	// Throttle is the minimum interval between two executions of a job type
	Throttle map[string]time.Duration

	Now func() time.Time
}

// Defaults applied by New for zero values
const (
	DefaultMaximumJobsRunning = 10
	DefaultMaxJobExecutions   = 5
	DefaultJobTimeout         = 5 * time.Minute
	DefaultTestJobTimeout     = time.Minute
	DefaultCandidateLimit     = 20
)

// Options restrict a single invocation
type Options struct {
	JobTypes []string
	JobID    int64
	Force    bool
}

// Result describes what an invocation did
type Result struct {
	Outcome  Outcome
	Job      *domain.Job
	Duration time.Duration
}

// Runner executes at most one job per Run call
type Runner struct {
	store    JobStore
	handlers Resolver
	tracker  FailureRecorder
	keys     KeyVerifier
	config   Config
	logger   *slog.Logger
}

// New creates a Runner
func New(store JobStore, handlers Resolver, tracker FailureRecorder, keys KeyVerifier, config Config, logger *slog.Logger) *Runner {
	if config.MaximumJobsRunning <= 0 {
		config.MaximumJobsRunning = DefaultMaximumJobsRunning
	}
	if config.MaxJobExecutions <= 0 {
		config.MaxJobExecutions = DefaultMaxJobExecutions
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = DefaultJobTimeout
	}
	if config.TestJobTimeout <= 0 {
		config.TestJobTimeout = DefaultTestJobTimeout
	}
	if config.CandidateLimit <= 0 {
		config.CandidateLimit = DefaultCandidateLimit
	}
	if config.Now == nil {
		config.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Runner{
		store:    store,
		handlers: handlers,
		tracker:  tracker,
		keys:     keys,
		config:   config,
		logger:   logger,
	}
}

// Authorize checks the automation key presented by a caller
func (r *Runner) Authorize(key string) error {
	if r.keys == nil {
		return domain.ErrInvalidKey
	}
	return r.keys.Verify(key)
}

// Run selects one job and executes it. A job that failed is still completed
// and recorded; the failure is then returned as a *domain.WrappedJobError.
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	result, err := r.run(ctx, opts)
	if result != nil {
		result.Duration = time.Since(start)
		observability.RunnerOutcomes.WithLabelValues(string(result.Outcome)).Inc()
	}
	return result, err
}

func (r *Runner) run(ctx context.Context, opts Options) (*Result, error) {
	var job *domain.Job

	if opts.JobID != 0 {
		// an explicit job runs even if it was already executed
		j, err := r.store.GetJobByID(ctx, opts.JobID)
		if errors.Is(err, domain.ErrJobNotFound) {
			r.logger.Info("No job to execute", slog.Int64("job_id", opts.JobID))
			return &Result{Outcome: OutcomeNoJob}, nil
		}
		if err != nil {
			return nil, err
		}
		job = j
	} else {
		j, outcome, err := r.selectJob(ctx, opts.JobTypes)
		if err != nil {
			return nil, err
		}
		if outcome != "" {
			return &Result{Outcome: outcome}, nil
		}
		job = j
	}

	if job == nil {
		r.logger.Info("No job to execute")
		return &Result{Outcome: OutcomeNoJob}, nil
	}

	if !r.config.JobsEnabled {
		r.logger.Info("Job execution disabled", slog.String("setting", "jobs_enabled"))
		return &Result{Outcome: OutcomeDisabled, Job: job}, nil
	}

	return r.execute(ctx, job, opts.Force)
}

// selectJob reaps crashed jobs, applies the running cap and returns the first
// candidate that is not throttled
func (r *Runner) selectJob(ctx context.Context, jobTypes []string) (*domain.Job, Outcome, error) {
	now := r.config.Now()

	reaped, err := r.store.ReapTimedOut(ctx, now, r.config.JobTimeout, r.config.TestJobTimeout)
	if err != nil {
		return nil, "", err
	}
	observability.JobsReaped.Add(float64(reaped))

	running, err := r.store.CountExecuting(ctx)
	if err != nil {
		return nil, "", err
	}
	if running >= r.config.MaximumJobsRunning {
		r.logger.Info("Not running any more jobs: too many jobs are running already",
			slog.Int("running", running),
			slog.Int("maximum_jobs_running", r.config.MaximumJobsRunning),
		)
		return nil, OutcomeTooManyRunning, nil
	}

	candidates, err := r.store.ListRunnable(ctx, jobTypes, r.config.CandidateLimit)
	if err != nil {
		return nil, "", err
	}

	for i := range candidates {
		job := &candidates[i]
		throttle, ok := r.config.Throttle[job.JobType]
		if !ok || throttle <= 0 {
			return job, "", nil
		}

		early, err := r.store.LastExecutedSince(ctx, job.JobType, now.Add(-throttle))
		if err != nil {
			return nil, "", err
		}
		if early == nil {
			return job, "", nil
		}

		r.logger.Info("Cannot run job: another job of this type ran too recently",
			slog.Int64("job_id", job.ID),
			slog.String("job_type", job.JobType),
			slog.Int64("recent_job_id", early.ID),
			slog.Duration("throttle", throttle),
		)
	}

	return nil, "", nil
}

func (r *Runner) execute(ctx context.Context, job *domain.Job, force bool) (*Result, error) {
	logger := r.logger.With(
		slog.Int64("job_id", job.ID),
		slog.String("job_type", job.JobType),
		slog.Int64("user_id", job.UserID),
		slog.Int64("arg_id", job.ArgID),
	)
	logger.Info("Executing job",
		slog.Int("priority", job.Priority),
		slog.Int("execution_count", job.ExecutionCount),
		slog.Bool("force", force),
	)

	start := time.Now()
	runErr := r.guard(job, force)
	if runErr != nil {
		logger.Warn("Job refused before running", slog.String("error", runErr.Error()))
	} else {
		if err := r.store.ClaimJob(ctx, job, r.config.Now()); err != nil {
			if errors.Is(err, domain.ErrJobAlreadyClaimed) {
				return &Result{Outcome: OutcomeAlreadyClaimed, Job: job}, err
			}
			return nil, err
		}
		runErr = r.dispatch(ctx, job)
	}
	elapsed := time.Since(start)

	// completion and accounting must happen even when the caller gave up
	bookkeeping := context.WithoutCancel(ctx)

	if err := r.store.CompleteJob(bookkeeping, job.ID, runErr != nil, r.config.Now()); err != nil {
		return nil, err
	}
	job.IsExecuted = true
	job.IsExecuting = false
	job.IsError = runErr != nil

	if err := r.tracker.Record(bookkeeping, job, runErr); err != nil {
		logger.Error("Failed to record account failure", slog.String("error", err.Error()))
	}

	status := OutcomeSuccess
	if runErr != nil {
		status = OutcomeFailed
	}
	observability.JobsProcessed.WithLabelValues(job.JobType, string(status)).Inc()
	observability.JobDuration.WithLabelValues(job.JobType).Observe(elapsed.Seconds())

	result := &Result{Outcome: status, Job: job}
	var canceled *domain.CanceledError
	if errors.As(runErr, &canceled) {
		logger.Warn("Job interrupted",
			slog.String("error", runErr.Error()),
			slog.Duration("duration", elapsed),
		)
		return result, &domain.WrappedJobError{JobID: job.ID, Err: runErr}
	}
	if runErr != nil {
		logger.Error("Job failed",
			slog.String("error", runErr.Error()),
			slog.Duration("duration", elapsed),
		)
		return result, &domain.WrappedJobError{JobID: job.ID, Err: runErr}
	}

	logger.Info("Job successful", slog.Duration("duration", elapsed))
	return result, nil
}

// guard refuses jobs that already failed beyond recovery unless forced
func (r *Runner) guard(job *domain.Job, force bool) error {
	if force {
		return nil
	}
	if job.IsTestJob && job.IsError {
		if job.IsTimeout {
			return domain.NewExternalAPIError("Local timeout")
		}
		return domain.NewExternalAPIError("Job failed for an unknown reason")
	}
	if job.ExecutionCount >= r.config.MaxJobExecutions {
		return domain.NewExternalAPIError("An uncaught error occured multiple times")
	}
	return nil
}

func (r *Runner) dispatch(ctx context.Context, job *domain.Job) (err error) {
	handler, err := r.handlers.Resolve(job.JobType)
	if err != nil {
		return err
	}

	timeout := r.config.JobTimeout
	if job.IsTestJob {
		timeout = r.config.TestJobTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job handler panicked: %v", p)
		}
	}()

	err = handler.Run(ctx, job)

	if err == nil {
		return nil
	}

	var apiErr *domain.ExternalAPIError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.As(err, &apiErr):
		return &domain.ExternalAPIError{Message: "Local timeout", Err: err}
	case errors.Is(ctx.Err(), context.Canceled):
		return &domain.CanceledError{Err: err}
	}
	return err
}
