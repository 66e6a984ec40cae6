package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/openclerk/internal/jobs/domain"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `id, job_type, user_id, arg_id, priority, is_executing, is_executed, is_error,
	is_timeout, is_test_job, is_recent, execution_count, execution_started, executed_at, created_at`

// Storage handles all database operations on the jobs table
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// Enqueue inserts a pending job
func (s *Storage) Enqueue(ctx context.Context, j *domain.NewJob, now time.Time) (*domain.Job, error) {
	query := s.db.Rebind(`
		INSERT INTO jobs (job_type, user_id, arg_id, priority, is_test_job, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`)

	var id int64
	if err := s.db.QueryRowxContext(ctx, query, j.JobType, j.UserID, j.ArgID, j.Priority, j.IsTestJob, now).Scan(&id); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	job, err := s.GetJobByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Job enqueued",
		slog.Int64("job_id", job.ID),
		slog.String("job_type", job.JobType),
		slog.Int("priority", job.Priority),
	)

	return job, nil
}

// GetJobByID retrieves a job from the database by its ID
func (s *Storage) GetJobByID(ctx context.Context, jobID int64) (*domain.Job, error) {
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`)

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// ReapTimedOut marks executing jobs that started too long ago as timed out errors
func (s *Storage) ReapTimedOut(ctx context.Context, now time.Time, timeout, testTimeout time.Duration) (int64, error) {
	query := s.db.Rebind(`
		UPDATE jobs
		SET is_executing = FALSE,
		    execution_count = execution_count + 1,
		    is_error = TRUE,
		    is_timeout = TRUE
		WHERE is_executing = TRUE
		  AND ((is_test_job = FALSE AND execution_started < ?)
		    OR (is_test_job = TRUE AND execution_started < ?))
	`)

	result, err := s.db.ExecContext(ctx, query, now.Add(-timeout), now.Add(-testTimeout))
	if err != nil {
		return 0, fmt.Errorf("failed to reap timed out jobs: %w", err)
	}

	reaped, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if reaped > 0 {
		s.logger.Warn("Marked crashed jobs as timed out",
			slog.Int64("count", reaped),
		)
	}

	return reaped, nil
}

// CountExecuting returns the number of jobs currently flagged as executing
func (s *Storage) CountExecuting(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM jobs WHERE is_executing = TRUE`); err != nil {
		return 0, fmt.Errorf("failed to count executing jobs: %w", err)
	}
	return count, nil
}

// ListRunnable returns pending jobs in execution order, optionally restricted to job types
func (s *Storage) ListRunnable(ctx context.Context, jobTypes []string, limit int) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE is_executed = FALSE AND is_executing = FALSE`
	args := []any{}

	if len(jobTypes) > 0 {
		query += ` AND job_type IN (?)`
		args = append(args, jobTypes)
	}

	query += ` ORDER BY priority ASC, id ASC LIMIT ?`
	args = append(args, limit)

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build runnable query: %w", err)
	}

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list runnable jobs: %w", err)
	}
	return jobs, nil
}

// LastExecutedSince returns an executed job of the type that finished after since, or nil
func (s *Storage) LastExecutedSince(ctx context.Context, jobType string, since time.Time) (*domain.Job, error) {
	query := s.db.Rebind(`
		SELECT ` + jobColumns + ` FROM jobs
		WHERE is_executed = TRUE AND job_type = ? AND executed_at > ?
		LIMIT 1
	`)

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, jobType, since); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find recent job: %w", err)
	}
	return &job, nil
}

// ClaimJob marks the job as executing, provided no other runner did so first.
// Older jobs of the same (job_type, user_id, arg_id) group stop being recent.
func (s *Storage) ClaimJob(ctx context.Context, job *domain.Job, now time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		UPDATE jobs SET is_recent = FALSE
		WHERE is_recent = TRUE AND job_type = ? AND user_id = ? AND arg_id = ?
	`), job.JobType, job.UserID, job.ArgID)
	if err != nil {
		return fmt.Errorf("failed to clear recent jobs: %w", err)
	}

	result, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE jobs
		SET is_executing = TRUE,
		    execution_count = execution_count + 1,
		    is_recent = TRUE,
		    execution_started = ?
		WHERE id = ? AND is_executing = FALSE
	`), now, job.ID)
	if err != nil {
		return fmt.Errorf("failed to claim job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Failed to claim job - already executing",
			slog.Int64("job_id", job.ID),
		)
		return domain.ErrJobAlreadyClaimed
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit claim: %w", err)
	}

	job.IsExecuting = true
	job.IsRecent = true
	job.ExecutionCount++
	started := now
	job.ExecutionStarted = &started

	s.logger.Debug("Job claimed",
		slog.Int64("job_id", job.ID),
		slog.String("job_type", job.JobType),
		slog.Int("execution_count", job.ExecutionCount),
	)

	return nil
}

// CompleteJob removes the job from the queue, recording whether it failed
func (s *Storage) CompleteJob(ctx context.Context, jobID int64, isError bool, now time.Time) error {
	query := s.db.Rebind(`
		UPDATE jobs
		SET is_executed = TRUE,
		    is_executing = FALSE,
		    is_error = ?,
		    executed_at = ?
		WHERE id = ?
	`)

	if _, err := s.db.ExecContext(ctx, query, isError, now, jobID); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	s.logger.Debug("Job completed",
		slog.Int64("job_id", jobID),
		slog.Bool("is_error", isError),
	)

	return nil
}

// JobFilter narrows the admin job listing
type JobFilter struct {
	UserID   int64
	JobType  string
	State    string
	PageSize int
	BeforeID int64
}

// ListJobs lists jobs newest first, fetching one extra row so callers can detect more pages
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []any{}

	if filter.UserID != 0 {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}

	if filter.JobType != "" {
		query += ` AND job_type = ?`
		args = append(args, filter.JobType)
	}

	switch filter.State {
	case "":
	case domain.StatePending:
		query += ` AND is_executed = FALSE AND is_executing = FALSE`
	case domain.StateExecuting:
		query += ` AND is_executing = TRUE`
	case domain.StateExecuted:
		query += ` AND is_executed = TRUE AND is_error = FALSE`
	case domain.StateFailed:
		query += ` AND is_executed = TRUE AND is_error = TRUE`
	default:
		return nil, fmt.Errorf("unknown job state: %s", filter.State)
	}

	if filter.BeforeID > 0 {
		query += ` AND id < ?`
		args = append(args, filter.BeforeID)
	}

	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}
