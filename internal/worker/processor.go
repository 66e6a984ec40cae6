package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cuongbtq/openclerk/internal/jobs/domain"
	"github.com/cuongbtq/openclerk/internal/jobs/runner"
)

// processRequest performs one runner invocation. A job that ran and failed
// has already been recorded, so it is reported as handled.
func (w *Worker) processRequest(ctx context.Context, req *domain.RunRequest) error {
	result, err := w.runner.Run(ctx, runner.Options{
		JobTypes: req.JobTypes,
		JobID:    req.JobID,
		Force:    req.Force,
	})

	var wrapped *domain.WrappedJobError
	switch {
	case err == nil:
	case errors.As(err, &wrapped):
		// the runner already logged and recorded the failure
		return nil
	case errors.Is(err, domain.ErrJobAlreadyClaimed):
		w.logger.Warn("Job already claimed, skipping",
			slog.Int64("job_id", req.JobID),
		)
		return err
	default:
		w.logger.Error("Runner invocation failed",
			slog.String("source", req.Source),
			slog.Int64("job_id", req.JobID),
			slog.String("error", err.Error()),
		)
		return domain.NewRetryableError(err)
	}

	if req.JobID != 0 && result.Outcome == runner.OutcomeNoJob {
		return domain.ErrJobNotFound
	}

	if result.Outcome != runner.OutcomeNoJob {
		attrs := []any{
			slog.String("source", req.Source),
			slog.String("outcome", string(result.Outcome)),
			slog.Duration("duration", result.Duration),
		}
		if result.Job != nil {
			attrs = append(attrs, slog.Int64("job_id", result.Job.ID), slog.String("job_type", result.Job.JobType))
		}
		w.logger.Debug("Runner invocation finished", attrs...)
	}

	return nil
}
