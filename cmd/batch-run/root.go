package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/openclerk/internal/app"
	"github.com/cuongbtq/openclerk/internal/batchkey"
	"github.com/cuongbtq/openclerk/internal/config"
	"github.com/cuongbtq/openclerk/internal/jobs/domain"
	"github.com/spf13/cobra"
)

func defaultConfigPath() string {
	if path := os.Getenv("BATCH_RUN_CONFIG_PATH"); path != "" {
		return path
	}
	return "configs/batch-run/config.yaml"
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "batch-run KEY [JOB_TYPES|-] [JOB_ID|-] [FORCE|-]",
		Short: "Run the next eligible job once",
		Long: "Selects one eligible job and executes it.\n" +
			"JOB_TYPES is a comma separated list of job types, JOB_ID runs one job,\n" +
			"and any FORCE value skips the execution guards. Use - to leave an argument unset.",
		Args:          cobra.RangeArgs(1, 4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := parseArgs(args)
			if err != nil {
				return err
			}
			return runOnce(cmd.Context(), configPath, inv)
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Path to configuration file")

	cmd.AddCommand(newHashKeyCmd())
	return cmd
}

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key KEY",
		Short: "Print the bcrypt hash to store as batch.automated_key_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := batchkey.Hash(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func runOnce(parent context.Context, configPath string, inv *invocation) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateBatchConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := app.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := app.OpenDatabase(ctx, &cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	rabbitClient, err := app.OpenRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		// notifications fall back to the log
		appLogger.Warn("RabbitMQ unavailable", slog.String("error", err.Error()))
		rabbitClient = nil
	}
	if rabbitClient != nil {
		defer rabbitClient.Close()
	}

	r, err := app.NewRunner(cfg, dbClient.GetDB(), app.NewNotifier(&cfg.RabbitMQ, rabbitClient, appLogger.Logger), appLogger.Logger)
	if err != nil {
		return err
	}

	if err := r.Authorize(inv.key); err != nil {
		if errors.Is(err, domain.ErrInvalidKey) {
			return errors.New("invalid automated key")
		}
		return err
	}

	result, err := r.Run(ctx, inv.options)
	if result != nil {
		appLogger.Info("Batch run finished",
			slog.String("outcome", string(result.Outcome)),
			slog.Duration("duration", result.Duration),
		)
		if result.Job != nil {
			fmt.Printf("%s job %d (%s)\n", result.Outcome, result.Job.ID, result.Job.JobType)
		} else {
			fmt.Println(result.Outcome)
		}
	}
	return err
}
