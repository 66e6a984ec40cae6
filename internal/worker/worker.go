package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/openclerk/internal/jobs/domain"
	"github.com/cuongbtq/openclerk/internal/jobs/runner"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	sourcePoll  = "poll"
	sourceQueue = "queue"
)

// JobRunner executes one runner invocation
type JobRunner interface {
	Run(ctx context.Context, opts runner.Options) (*runner.Result, error)
}

// MessageSource is the RabbitMQ client as the worker uses it
type MessageSource interface {
	GetChannel() *amqp.Channel
	Consume(queue, consumerTag string) (<-chan amqp.Delivery, error)
}

// Acknowledger settles queue deliveries; *amqp.Channel implements it
type Acknowledger interface {
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple, requeue bool) error
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Runner        JobRunner
	RabbitClient  MessageSource
	Queue         string
	PrefetchCount int
	Concurrency   int
	PollInterval  time.Duration
	JobTypes      []string
}

// Worker replaces the cron entry that invoked the batch runner: it polls on
// an interval and also runs the requests published on the run queue
type Worker struct {
	logger        *slog.Logger
	runner        JobRunner
	rabbitClient  MessageSource
	acker         func() Acknowledger
	queue         string
	prefetchCount int
	concurrency   int
	pollInterval  time.Duration
	jobTypes      []string
	workerID      string
	jobsChan      chan *domain.RunRequest
	wg            sync.WaitGroup
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency
	}

	w := &Worker{
		logger:        cfg.Logger,
		runner:        cfg.Runner,
		rabbitClient:  cfg.RabbitClient,
		queue:         cfg.Queue,
		prefetchCount: prefetch,
		concurrency:   concurrency,
		pollInterval:  cfg.PollInterval,
		jobTypes:      cfg.JobTypes,
		workerID:      "worker-" + uuid.NewString(),
		jobsChan:      make(chan *domain.RunRequest),
		stopChan:      make(chan struct{}),
	}
	w.acker = func() Acknowledger {
		if w.rabbitClient == nil {
			return nil
		}
		if ch := w.rabbitClient.GetChannel(); ch != nil {
			return ch
		}
		return nil
	}
	return w
}

// Start runs the pool, the poller and the queue consumer until ctx is done
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("poll_interval", w.pollInterval),
		slog.Any("job_types", w.jobTypes),
	)

	w.spawnWorkerPool(ctx)

	if w.pollInterval > 0 {
		w.wg.Add(1)
		go w.startPoller(ctx)
	}

	if w.rabbitClient != nil {
		deliveries, err := w.setupConsumer()
		if err != nil {
			return err
		}
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.startMessageDispatcher(ctx, deliveries)
		}()
	}

	select {
	case <-ctx.Done():
		w.logger.Info("Worker context canceled, stopping...")
	case <-w.stopChan:
	}

	return nil
}

// Stop gracefully stops the worker, waiting for running jobs to finish
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}

// startPoller offers a "run the next job" request on every tick. A tick is
// dropped when every pool goroutine is busy.
func (w *Worker) startPoller(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			req := &domain.RunRequest{JobTypes: w.jobTypes, Source: sourcePoll}
			select {
			case w.jobsChan <- req:
			default:
				w.logger.Debug("All runners busy, skipping poll")
			}
		}
	}
}
