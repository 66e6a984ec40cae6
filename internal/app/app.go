// Package app wires configuration into the clients and services shared by
// the commands.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/openclerk/internal/batchkey"
	"github.com/cuongbtq/openclerk/internal/config"
	"github.com/cuongbtq/openclerk/internal/jobs/accounts"
	"github.com/cuongbtq/openclerk/internal/jobs/registry"
	"github.com/cuongbtq/openclerk/internal/jobs/runner"
	"github.com/cuongbtq/openclerk/internal/jobs/script"
	"github.com/cuongbtq/openclerk/internal/jobs/storage"
	"github.com/cuongbtq/openclerk/internal/notify"
	"github.com/cuongbtq/openclerk/internal/schema"
	"github.com/cuongbtq/openclerk/shared/database"
	"github.com/cuongbtq/openclerk/shared/logger"
	"github.com/cuongbtq/openclerk/shared/rabbitmq"
	"github.com/jmoiron/sqlx"
)

// NewLogger initializes and configures the application logger
func NewLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// OpenDatabase connects to the configured database and, when enabled,
// creates the schema
func OpenDatabase(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*database.Client, error) {
	client, err := database.NewClient(&database.Config{
		Driver:          cfg.Driver,
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := schema.Apply(ctx, client.GetDB(), accounts.NewCatalog().Tables()); err != nil {
			client.Close()
			return nil, err
		}
		logger.Info("Database schema applied")
	}

	return client, nil
}

// OpenRabbitMQ connects to RabbitMQ and declares both bindings. It returns
// nil without error when RabbitMQ is disabled.
func OpenRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var bindings []rabbitmq.Binding
	for _, b := range []config.BindingConfig{cfg.RunRequests, cfg.Notifications} {
		if b.Exchange == "" {
			continue
		}
		bindings = append(bindings, toBinding(b))
	}

	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		Bindings:           bindings,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}

// Route returns the publish route of a configured binding
func Route(b config.BindingConfig) rabbitmq.Route {
	return toBinding(b).Route()
}

func toBinding(b config.BindingConfig) rabbitmq.Binding {
	return rabbitmq.Binding{
		Exchange:     b.Exchange,
		ExchangeType: b.Type,
		Queue:        b.Queue,
		RoutingKey:   b.RoutingKey,
		Durable:      b.Durable,
	}
}

// NewNotifier publishes failure notifications when a notifications exchange
// is configured, and logs them otherwise
func NewNotifier(cfg *config.RabbitMQConfig, client *rabbitmq.Client, logger *slog.Logger) notify.Notifier {
	if client == nil || cfg.Notifications.Exchange == "" {
		return notify.NewLogNotifier(logger)
	}
	return notify.NewRabbitNotifier(client, Route(cfg.Notifications), logger)
}

// NewRegistry builds the job type registry backed by the scripts directory
func NewRegistry(cfg *config.Config, logger *slog.Logger) *registry.Registry {
	return registry.NewDefault(script.NewRunner(cfg.Scripts.Dir, logger), cfg.Discovery)
}

// NewRunner assembles the batch runner
func NewRunner(cfg *config.Config, db *sqlx.DB, notifier notify.Notifier, logger *slog.Logger) (*runner.Runner, error) {
	keys, err := batchkey.NewVerifier(cfg.Batch.AutomatedKeyHash)
	if err != nil {
		return nil, err
	}

	catalog := accounts.NewCatalog()
	tracker := accounts.NewTracker(
		catalog,
		accounts.NewStore(db, catalog),
		accounts.NewUserStore(db),
		notifier,
		accounts.TrackerConfig{
			Limits:  cfg.Batch.MaxFailures,
			BaseURL: cfg.App.BaseURL,
		},
		logger,
	)

	runnerCfg := runner.Config{
		JobsEnabled:        cfg.Batch.Enabled(),
		MaximumJobsRunning: cfg.Batch.MaximumJobsRunning,
		MaxJobExecutions:   cfg.Batch.MaxJobExecutions,
		JobTimeout:         cfg.Batch.JobTimeout,
		TestJobTimeout:     cfg.Batch.TestJobTimeout,
		CandidateLimit:     cfg.Batch.CandidateLimit,
		Throttle:           cfg.Batch.Throttle,
	}

	return runner.New(
		storage.NewStorage(db, logger),
		NewRegistry(cfg, logger),
		tracker,
		keys,
		runnerCfg,
		logger,
	), nil
}

// Describe is a one-line summary of the job settings for startup logs
func Describe(cfg *config.Config) []any {
	return []any{
		slog.Bool("jobs_enabled", cfg.Batch.Enabled()),
		slog.String("scripts_dir", cfg.Scripts.Dir),
		slog.String("database_driver", cfg.Database.Driver),
		slog.Int("throttled_types", len(cfg.Batch.Throttle)),
	}
}
