package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/cuongbtq/openclerk/internal/jobs/accounts"
	"github.com/cuongbtq/openclerk/internal/jobs/registry"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// envRef matches ${VAR}. Bare $ is left alone so bcrypt hashes survive.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig       `yaml:"server"`
	Database  DatabaseConfig     `yaml:"database"`
	RabbitMQ  RabbitMQConfig     `yaml:"rabbitmq"`
	Logging   LoggingConfig      `yaml:"logging"`
	App       AppConfig          `yaml:"app"`
	Worker    WorkerConfig       `yaml:"worker"`
	Batch     BatchConfig        `yaml:"batch"`
	Scripts   ScriptsConfig      `yaml:"scripts"`
	Discovery registry.Discovery `yaml:"discovery"`
	Finance   FinanceConfig      `yaml:"finance"`
	Graphs    GraphsConfig       `yaml:"graphs"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	Path            string        `yaml:"path"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Enabled       bool             `yaml:"enabled"`
	Host          string           `yaml:"host"`
	Port          int              `yaml:"port"`
	User          string           `yaml:"user"`
	Password      string           `yaml:"password"`
	VHost         string           `yaml:"vhost"`
	RunRequests   BindingConfig    `yaml:"run_requests"`
	Notifications BindingConfig    `yaml:"notifications"`
	Connection    ConnectionConfig `yaml:"connection"`
	Publish       PublishConfig    `yaml:"publish"`
	Consumer      ConsumerConfig   `yaml:"consumer"`
}

// BindingConfig declares one exchange and, optionally, the queue bound to it
type BindingConfig struct {
	Exchange   string `yaml:"exchange"`
	Type       string `yaml:"type"`
	Queue      string `yaml:"queue"`
	RoutingKey string `yaml:"routing_key"`
	Durable    bool   `yaml:"durable"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	BaseURL     string `yaml:"base_url"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	JobTypes        []string      `yaml:"job_types"`
	MetricsAddr     string        `yaml:"metrics_addr"`
}

// BatchConfig holds the settings of the batch runner
type BatchConfig struct {
	AutomatedKeyHash   string                   `yaml:"automated_key_hash"`
	JobsEnabled        *bool                    `yaml:"jobs_enabled"`
	MaximumJobsRunning int                      `yaml:"maximum_jobs_running"`
	MaxJobExecutions   int                      `yaml:"max_job_executions"`
	JobTimeout         time.Duration            `yaml:"job_timeout"`
	TestJobTimeout     time.Duration            `yaml:"test_job_timeout"`
	CandidateLimit     int                      `yaml:"candidate_limit"`
	Throttle           map[string]time.Duration `yaml:"throttle"`
	MaxFailures        accounts.Limits          `yaml:"max_failures"`
}

// Enabled reports whether jobs may run; unset means enabled
func (b BatchConfig) Enabled() bool {
	return b.JobsEnabled == nil || *b.JobsEnabled
}

// ScriptsConfig locates the per-exchange job scripts
type ScriptsConfig struct {
	Dir string `yaml:"dir"`
}

// FinanceConfig holds the transactions page settings
type FinanceConfig struct {
	Currencies []string `yaml:"currencies"`
}

// GraphsConfig holds the graph page settings
type GraphsConfig struct {
	Types []string `yaml:"types"`
}

// Load reads and parses the configuration file. ${VAR} references are
// expanded from the environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(expandEnv(data), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		return []byte(os.Getenv(string(ref[2 : len(ref)-1])))
	})
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 1
	}
	if c.Worker.ShutdownTimeout <= 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// ValidateAPIConfig checks the settings the API service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if c.RabbitMQ.Enabled {
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
		if c.RabbitMQ.RunRequests.Exchange == "" {
			return fmt.Errorf("rabbitmq run_requests exchange is required")
		}
	}

	return nil
}

// ValidateWorkerConfig checks the settings the worker daemon needs
func (c *Config) ValidateWorkerConfig() error {
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.PollInterval < 0 {
		return fmt.Errorf("worker poll_interval must not be negative")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Worker.PollInterval == 0 && !c.RabbitMQ.Enabled {
		return fmt.Errorf("worker needs a poll_interval or an enabled rabbitmq run queue")
	}

	if c.RabbitMQ.Enabled {
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
		if c.RabbitMQ.RunRequests.Queue == "" {
			return fmt.Errorf("rabbitmq run_requests queue is required")
		}
	}

	return c.ValidateBatchConfig()
}

// ValidateBatchConfig checks the settings every batch runner needs
func (c *Config) ValidateBatchConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if c.Batch.AutomatedKeyHash == "" {
		return fmt.Errorf("batch automated_key_hash is required")
	}

	if c.Batch.MaximumJobsRunning < 0 || c.Batch.MaxJobExecutions < 0 || c.Batch.CandidateLimit < 0 {
		return fmt.Errorf("batch limits must not be negative")
	}

	if c.Batch.JobTimeout < 0 || c.Batch.TestJobTimeout < 0 {
		return fmt.Errorf("batch timeouts must not be negative")
	}

	if c.Batch.MaxFailures.Free < 0 || c.Batch.MaxFailures.Premium < 0 {
		return fmt.Errorf("batch max_failures must not be negative")
	}

	for jobType, interval := range c.Batch.Throttle {
		if interval <= 0 {
			return fmt.Errorf("batch throttle for %s must be greater than 0", jobType)
		}
	}

	if c.Scripts.Dir == "" {
		return fmt.Errorf("scripts dir is required")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite3")
		}
		return nil
	case "postgres", "pgx":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	return nil
}
