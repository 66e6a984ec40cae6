// Package notify hands user notifications to the external mailer.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/openclerk/internal/observability"
	"github.com/cuongbtq/openclerk/shared/rabbitmq"
)

// TemplateFailure is the mail template for repeatedly failing accounts
const TemplateFailure = "failure"

// Notification is the message published for the mailer
type Notification struct {
	Template  string            `json:"template"`
	UserID    int64             `json:"user_id"`
	To        string            `json:"to"`
	Arguments map[string]string `json:"arguments"`
}

// Notifier delivers a notification
type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
}

// Publisher is the part of the RabbitMQ client the notifier needs
type Publisher interface {
	PublishJSON(ctx context.Context, route rabbitmq.Route, v any) error
}

// RabbitNotifier publishes notifications to an exchange
type RabbitNotifier struct {
	publisher Publisher
	route     rabbitmq.Route
	logger    *slog.Logger
}

// NewRabbitNotifier creates a notifier publishing on route
func NewRabbitNotifier(publisher Publisher, route rabbitmq.Route, logger *slog.Logger) *RabbitNotifier {
	return &RabbitNotifier{publisher: publisher, route: route, logger: logger}
}

// Notify publishes n
func (r *RabbitNotifier) Notify(ctx context.Context, n *Notification) error {
	if err := r.publisher.PublishJSON(ctx, r.route, n); err != nil {
		observability.NotificationsSent.WithLabelValues(n.Template, "failed").Inc()
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	observability.NotificationsSent.WithLabelValues(n.Template, "published").Inc()
	r.logger.Info("Notification published",
		slog.String("template", n.Template),
		slog.Int64("user_id", n.UserID),
		slog.String("exchange", r.route.Exchange),
	)
	return nil
}

// LogNotifier only logs notifications, for deployments without a mailer
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs n
func (l *LogNotifier) Notify(_ context.Context, n *Notification) error {
	observability.NotificationsSent.WithLabelValues(n.Template, "logged").Inc()
	l.logger.Info("Notification not delivered: no mailer configured",
		slog.String("template", n.Template),
		slog.Int64("user_id", n.UserID),
		slog.String("to", n.To),
		slog.Any("arguments", n.Arguments),
	)
	return nil
}
