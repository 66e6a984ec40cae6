package observability

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openclerk_jobs_enqueued_total",
		Help: "The total number of queued jobs",
	}, []string{"type"})

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openclerk_jobs_processed_total",
		Help: "The total number of executed jobs",
	}, []string{"type", "status"}) // status: success, failed

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "openclerk_job_duration_seconds",
		Help:    "Duration of job execution.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"type"})

	RunnerOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openclerk_runner_outcomes_total",
		Help: "Runner invocations by outcome",
	}, []string{"outcome"})

	JobsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "openclerk_jobs_reaped_total",
		Help: "Executing jobs marked as timed out",
	})

	AccountFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openclerk_account_failures_total",
		Help: "Account failures counted against the account",
	}, []string{"exchange"})

	AccountsDisabled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openclerk_accounts_disabled_total",
		Help: "Accounts disabled after repeated failures",
	}, []string{"exchange"})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openclerk_notifications_sent_total",
		Help: "Failure notifications handed to the notifier",
	}, []string{"template", "status"})
)

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer serves /metrics on addr until ctx is cancelled
func StartMetricsServer(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}
