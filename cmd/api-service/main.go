package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/openclerk/internal/api/handler"
	"github.com/cuongbtq/openclerk/internal/api/router"
	"github.com/cuongbtq/openclerk/internal/app"
	"github.com/cuongbtq/openclerk/internal/batchkey"
	"github.com/cuongbtq/openclerk/internal/config"
	"github.com/cuongbtq/openclerk/internal/finance"
	"github.com/cuongbtq/openclerk/internal/graphs"
	"github.com/cuongbtq/openclerk/internal/jobs/accounts"
	"github.com/cuongbtq/openclerk/internal/jobs/storage"
	"github.com/cuongbtq/openclerk/shared/database"
	"github.com/cuongbtq/openclerk/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := app.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := app.OpenDatabase(context.Background(), &cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	rabbitClient, err := app.OpenRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	if rabbitClient != nil {
		defer rabbitClient.Close()
		appLogger.Info("RabbitMQ connection established")
	} else {
		appLogger.Warn("RabbitMQ disabled, job run requests are unavailable")
	}

	deps, err := newDependencies(cfg, appLogger.Logger, dbClient, rabbitClient)
	if err != nil {
		return err
	}

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	r := router.SetupRouter(deps)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		appLogger.Error("Server failed to start", slog.Any("error", err))
		return err
	}

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// newDependencies wires the services behind the HTTP handlers
func newDependencies(cfg *config.Config, logger *slog.Logger, dbClient *database.Client, rabbitClient *rabbitmq.Client) (*handler.Dependencies, error) {
	db := dbClient.GetDB()
	catalog := accounts.NewCatalog()
	now := func() time.Time { return time.Now().UTC() }

	deps := &handler.Dependencies{
		Logger:   logger,
		DBClient: dbClient,
		Jobs:     storage.NewStorage(db, logger),
		JobTypes: app.NewRegistry(cfg, logger),
		RunRoute: app.Route(cfg.RabbitMQ.RunRequests),
		Finance: finance.NewService(
			finance.NewStorage(db),
			catalog,
			accounts.NewStore(db, catalog),
			finance.Config{
				Currencies:        cfg.Finance.Currencies,
				AddressCurrencies: cfg.Discovery.AddressCurrencies,
				Now:               now,
			},
			logger,
		),
		Graphs: graphs.NewService(db, cfg.Graphs.Types, now, logger),
		Now:    now,
	}

	if rabbitClient != nil {
		deps.Publisher = rabbitClient
	}

	if cfg.Batch.AutomatedKeyHash != "" {
		keys, err := batchkey.NewVerifier(cfg.Batch.AutomatedKeyHash)
		if err != nil {
			return nil, fmt.Errorf("invalid batch key hash: %w", err)
		}
		deps.Keys = keys
	} else {
		logger.Warn("No automated key configured, job admin routes are locked")
	}

	return deps, nil
}
