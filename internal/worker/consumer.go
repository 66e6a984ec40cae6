package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/openclerk/internal/jobs/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer sets up RabbitMQ consumer with QoS and returns delivery channel
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	channel := w.rabbitClient.GetChannel()
	if channel == nil {
		return nil, fmt.Errorf("rabbitmq channel is nil")
	}

	// per-consumer prefetch, no byte limit
	if err := channel.Qos(w.prefetchCount, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := w.rabbitClient.Consume(w.queue, w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
		slog.String("queue", w.queue),
		slog.Int("prefetch_count", w.prefetchCount),
	)

	return deliveries, nil
}

// parseRunRequest decodes a queued run request
func parseRunRequest(delivery amqp.Delivery) (*domain.RunRequest, error) {
	var req domain.RunRequest
	if err := json.Unmarshal(delivery.Body, &req); err != nil {
		return nil, fmt.Errorf("failed to parse run request: %w", err)
	}
	if req.JobID < 0 {
		return nil, fmt.Errorf("invalid job_id: %d", req.JobID)
	}
	req.DeliveryTag = delivery.DeliveryTag
	req.Source = sourceQueue
	return &req, nil
}

// startMessageDispatcher listens to RabbitMQ deliveries and dispatches them to the worker pool
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case <-w.stopChan:
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			req, err := parseRunRequest(delivery)
			if err != nil {
				w.logger.Error("Discarding malformed run request",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				// malformed messages go to the dead letter exchange, if any
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			select {
			case w.jobsChan <- req:
				w.logger.Debug("Run request dispatched to worker pool",
					slog.Int64("job_id", req.JobID),
					slog.Uint64("delivery_tag", req.DeliveryTag),
				)
			case <-ctx.Done():
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			}
		}
	}
}
