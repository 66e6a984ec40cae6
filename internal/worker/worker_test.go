package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/openclerk/internal/jobs/domain"
	"github.com/cuongbtq/openclerk/internal/jobs/runner"
	"github.com/cuongbtq/openclerk/shared/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu     sync.Mutex
	calls  []runner.Options
	result *runner.Result
	err    error
}

func (f *fakeRunner) Run(_ context.Context, opts runner.Options) (*runner.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, opts)
	return f.result, f.err
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type settlement struct {
	tag     uint64
	ack     bool
	requeue bool
}

type fakeAcker struct {
	mu      sync.Mutex
	settled []settlement
}

func (f *fakeAcker) Ack(tag uint64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled = append(f.settled, settlement{tag: tag, ack: true})
	return nil
}

func (f *fakeAcker) Nack(tag uint64, _ bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled = append(f.settled, settlement{tag: tag, requeue: requeue})
	return nil
}

func (f *fakeAcker) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func (f *fakeAcker) all() []settlement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]settlement(nil), f.settled...)
}

func newTestWorker(r JobRunner, acker *fakeAcker) *Worker {
	w := NewWorker(&Config{
		Logger:      logger.NewNop().Logger,
		Runner:      r,
		Concurrency: 1,
	})
	w.acker = func() Acknowledger { return acker }
	return w
}

func TestShouldRequeue(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "claimed", err: domain.ErrJobAlreadyClaimed, want: false},
		{name: "wrapped claimed", err: fmt.Errorf("run: %w", domain.ErrJobAlreadyClaimed), want: false},
		{name: "not found", err: domain.ErrJobNotFound, want: false},
		{name: "retryable", err: domain.NewRetryableError(errors.New("db down")), want: true},
		{name: "unknown", err: errors.New("boom"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldRequeue(tt.err))
		})
	}
}

func TestProcessRequest(t *testing.T) {
	job := &domain.Job{ID: 5, JobType: "ticker"}

	tests := []struct {
		name    string
		req     *domain.RunRequest
		result  *runner.Result
		err     error
		wantErr error
		retry   bool
	}{
		{name: "success", req: &domain.RunRequest{JobID: 5}, result: &runner.Result{Outcome: runner.OutcomeSuccess, Job: job}},
		{name: "handled failure", req: &domain.RunRequest{JobID: 5}, result: &runner.Result{Outcome: runner.OutcomeFailed, Job: job}, err: &domain.WrappedJobError{JobID: 5, Err: errors.New("x")}},
		{name: "claimed", req: &domain.RunRequest{JobID: 5}, result: &runner.Result{Outcome: runner.OutcomeAlreadyClaimed}, err: domain.ErrJobAlreadyClaimed, wantErr: domain.ErrJobAlreadyClaimed},
		{name: "missing job", req: &domain.RunRequest{JobID: 9}, result: &runner.Result{Outcome: runner.OutcomeNoJob}, wantErr: domain.ErrJobNotFound},
		{name: "idle poll", req: &domain.RunRequest{}, result: &runner.Result{Outcome: runner.OutcomeNoJob}},
		{name: "storage error", req: &domain.RunRequest{}, err: errors.New("connection refused"), retry: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRunner{result: tt.result, err: tt.err}
			w := newTestWorker(r, &fakeAcker{})

			err := w.processRequest(context.Background(), tt.req)
			switch {
			case tt.retry:
				var retryable *domain.RetryableError
				assert.True(t, errors.As(err, &retryable))
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				assert.NoError(t, err)
			}
			require.Len(t, r.calls, 1)
			assert.Equal(t, tt.req.JobID, r.calls[0].JobID)
		})
	}
}

func TestParseRunRequest(t *testing.T) {
	req, err := parseRunRequest(amqp.Delivery{Body: []byte(`{"job_id": 12, "force": true}`), DeliveryTag: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(12), req.JobID)
	assert.True(t, req.Force)
	assert.Equal(t, uint64(3), req.DeliveryTag)
	assert.Equal(t, sourceQueue, req.Source)

	_, err = parseRunRequest(amqp.Delivery{Body: []byte(`not json`)})
	assert.Error(t, err)

	_, err = parseRunRequest(amqp.Delivery{Body: []byte(`{"job_id": -1}`)})
	assert.Error(t, err)
}

func TestDispatcher_SettlesDeliveries(t *testing.T) {
	acker := &fakeAcker{}
	r := &fakeRunner{result: &runner.Result{Outcome: runner.OutcomeAlreadyClaimed}, err: domain.ErrJobAlreadyClaimed}
	w := newTestWorker(r, acker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.spawnWorkerPool(ctx)

	deliveries := make(chan amqp.Delivery, 2)
	deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, Body: []byte(`garbage`)}
	deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 2, Body: []byte(`{"job_id": 5}`)}
	close(deliveries)

	w.startMessageDispatcher(ctx, deliveries)

	require.Eventually(t, func() bool { return len(acker.all()) == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []settlement{{tag: 1}, {tag: 2}}, acker.all())

	w.Stop()
}

func TestDispatcher_AcksHandledFailures(t *testing.T) {
	acker := &fakeAcker{}
	r := &fakeRunner{
		result: &runner.Result{Outcome: runner.OutcomeFailed, Job: &domain.Job{ID: 7}},
		err:    &domain.WrappedJobError{JobID: 7, Err: errors.New("Invalid API key")},
	}
	w := newTestWorker(r, acker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.spawnWorkerPool(ctx)

	deliveries := make(chan amqp.Delivery, 1)
	deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 4, Body: []byte(`{"job_id": 7}`)}
	close(deliveries)
	w.startMessageDispatcher(ctx, deliveries)

	require.Eventually(t, func() bool { return len(acker.all()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, settlement{tag: 4, ack: true}, acker.all()[0])

	w.Stop()
}

func TestStart_PollsRunner(t *testing.T) {
	r := &fakeRunner{result: &runner.Result{Outcome: runner.OutcomeNoJob}}
	w := NewWorker(&Config{
		Logger:       logger.NewNop().Logger,
		Runner:       r,
		Concurrency:  2,
		PollInterval: 10 * time.Millisecond,
		JobTypes:     []string{"ticker"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return r.callCount() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	w.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, []string{"ticker"}, r.calls[0].JobTypes)
	assert.Zero(t, r.calls[0].JobID)
}
