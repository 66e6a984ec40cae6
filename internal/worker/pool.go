package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/openclerk/internal/jobs/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	logger := w.logger.With(slog.String("worker_name", workerName))
	logger.Debug("Worker goroutine started")

	for {
		select {
		case <-w.stopChan:
			logger.Debug("Worker goroutine stopping - stopChan closed")
			return

		case <-ctx.Done():
			logger.Debug("Worker goroutine stopping - context canceled")
			return

		case req, ok := <-w.jobsChan:
			if !ok {
				return
			}

			err := w.processRequest(ctx, req)
			if req.Source != sourceQueue {
				continue
			}
			w.settle(logger, req, err)
		}
	}
}

// settle acks or nacks the delivery behind a queued request
func (w *Worker) settle(logger *slog.Logger, req *domain.RunRequest, err error) {
	acker := w.acker()
	if acker == nil {
		logger.Error("Failed to get RabbitMQ channel for ACK/NACK",
			slog.Int64("job_id", req.JobID),
		)
		return
	}

	if err == nil {
		if ackErr := acker.Ack(req.DeliveryTag, false); ackErr != nil {
			logger.Error("Failed to ACK message",
				slog.Int64("job_id", req.JobID),
				slog.String("error", ackErr.Error()),
			)
		}
		return
	}

	requeue := shouldRequeue(err)
	if nackErr := acker.Nack(req.DeliveryTag, false, requeue); nackErr != nil {
		logger.Error("Failed to NACK message",
			slog.Int64("job_id", req.JobID),
			slog.String("error", nackErr.Error()),
		)
		return
	}

	logger.Info("Message NACKed",
		slog.Int64("job_id", req.JobID),
		slog.Bool("requeue", requeue),
		slog.String("error", err.Error()),
	)
}

// shouldRequeue decides whether a failed run request goes back on the queue
func shouldRequeue(err error) bool {
	// another runner has the job
	if errors.Is(err, domain.ErrJobAlreadyClaimed) {
		return false
	}

	if errors.Is(err, domain.ErrJobNotFound) {
		return false
	}

	var retryableErr *domain.RetryableError
	return errors.As(err, &retryableErr)
}
