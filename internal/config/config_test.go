package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, "localhost", cfg.Database.Host)
			assert.Equal(t, 5432, cfg.Database.Port)
			assert.Equal(t, "openclerk", cfg.Database.Database)
			assert.Equal(t, "openclerk.jobs", cfg.RabbitMQ.RunRequests.Exchange)
			assert.Equal(t, "openclerk.run_requests", cfg.RabbitMQ.RunRequests.Queue)
			assert.Equal(t, "topic", cfg.RabbitMQ.Notifications.Type)
			assert.Equal(t, "openclerk", cfg.App.Name)
			assert.Equal(t, 30*time.Second, cfg.Worker.PollInterval)
			assert.Equal(t, []string{"ticker", "bitstamp"}, cfg.Worker.JobTypes)
			assert.Equal(t, 4*time.Minute, cfg.Batch.JobTimeout)
			assert.Equal(t, map[string]time.Duration{"ticker": time.Minute, "blockcount_btc": 10 * time.Minute}, cfg.Batch.Throttle)
			assert.Equal(t, 3, cfg.Batch.MaxFailures.Free)
			assert.Equal(t, 9, cfg.Batch.MaxFailures.Premium)
			assert.False(t, cfg.Batch.Enabled())
			assert.Equal(t, "$2a$12$abcdefghijklmnopqrstuu", cfg.Batch.AutomatedKeyHash)
			assert.Equal(t, []string{"btc", "ltc"}, cfg.Discovery.AddressCurrencies)
			assert.Equal(t, []string{"btc", "usd"}, cfg.Finance.Currencies)
		})
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("OPENCLERK_TEST_DB_PASSWORD", "s3cret")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Password)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("testdata/minimal.yaml")
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 1, cfg.Worker.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Worker.ShutdownTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Batch.Enabled())
	assert.NoError(t, cfg.ValidateBatchConfig())
	assert.NoError(t, cfg.ValidateWorkerConfig())
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     5432,
			Database: "openclerk",
		},
		RabbitMQ: RabbitMQConfig{
			Enabled:     true,
			Host:        "localhost",
			Port:        5672,
			RunRequests: BindingConfig{Exchange: "openclerk.jobs", Queue: "openclerk.run_requests"},
		},
		Worker: WorkerConfig{
			Concurrency:     2,
			PollInterval:    time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Batch:   BatchConfig{AutomatedKeyHash: "$2a$12$hash"},
		Scripts: ScriptsConfig{Dir: "/opt/openclerk/jobs"},
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "invalid server port - too low", mutate: func(c *Config) { c.Server.Port = 0 }, errString: "invalid server port"},
		{name: "invalid server port - too high", mutate: func(c *Config) { c.Server.Port = 70000 }, errString: "invalid server port"},
		{name: "empty database host", mutate: func(c *Config) { c.Database.Host = "" }, errString: "database host is required"},
		{name: "invalid database port", mutate: func(c *Config) { c.Database.Port = 0 }, errString: "invalid database port"},
		{name: "empty database name", mutate: func(c *Config) { c.Database.Database = "" }, errString: "database name is required"},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, errString: "unsupported database driver"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Database.Driver = "sqlite3" }, errString: "database path is required"},
		{name: "sqlite with path", mutate: func(c *Config) { c.Database = DatabaseConfig{Driver: "sqlite3", Path: "openclerk.db"} }},
		{name: "empty rabbitmq host", mutate: func(c *Config) { c.RabbitMQ.Host = "" }, errString: "rabbitmq host is required"},
		{name: "rabbitmq disabled", mutate: func(c *Config) { c.RabbitMQ = RabbitMQConfig{} }},
		{name: "missing run exchange", mutate: func(c *Config) { c.RabbitMQ.RunRequests.Exchange = "" }, errString: "run_requests exchange is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "zero concurrency", mutate: func(c *Config) { c.Worker.Concurrency = 0 }, errString: "worker concurrency"},
		{name: "negative poll interval", mutate: func(c *Config) { c.Worker.PollInterval = -time.Second }, errString: "poll_interval must not be negative"},
		{name: "zero shutdown timeout", mutate: func(c *Config) { c.Worker.ShutdownTimeout = 0 }, errString: "shutdown_timeout"},
		{name: "nothing to do", mutate: func(c *Config) { c.Worker.PollInterval = 0; c.RabbitMQ.Enabled = false }, errString: "needs a poll_interval"},
		{name: "queue only", mutate: func(c *Config) { c.Worker.PollInterval = 0 }},
		{name: "missing run queue", mutate: func(c *Config) { c.RabbitMQ.RunRequests.Queue = "" }, errString: "run_requests queue is required"},
		{name: "missing key hash", mutate: func(c *Config) { c.Batch.AutomatedKeyHash = "" }, errString: "automated_key_hash is required"},
		{name: "negative limits", mutate: func(c *Config) { c.Batch.MaximumJobsRunning = -1 }, errString: "limits must not be negative"},
		{name: "negative max failures", mutate: func(c *Config) { c.Batch.MaxFailures.Premium = -1 }, errString: "max_failures"},
		{name: "zero throttle", mutate: func(c *Config) { c.Batch.Throttle = map[string]time.Duration{"ticker": 0} }, errString: "throttle for ticker"},
		{name: "missing scripts dir", mutate: func(c *Config) { c.Scripts.Dir = "" }, errString: "scripts dir is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestLoad_ShippedConfigs(t *testing.T) {
	t.Setenv("OPENCLERK_DB_HOST", "db")
	t.Setenv("OPENCLERK_RABBITMQ_HOST", "mq")
	t.Setenv("OPENCLERK_AUTOMATED_KEY_HASH", "$2a$10$abcdefghijklmnopqrstuu")

	tests := []struct {
		path     string
		validate func(c *Config) error
	}{
		{path: "../../configs/api-service/config.yaml", validate: (*Config).ValidateAPIConfig},
		{path: "../../configs/worker-service/config.yaml", validate: (*Config).ValidateWorkerConfig},
		{path: "../../configs/batch-run/config.yaml", validate: (*Config).ValidateBatchConfig},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			cfg, err := Load(tt.path)
			require.NoError(t, err)
			require.NoError(t, tt.validate(cfg))

			// the reaper window matches the handler deadline
			assert.Equal(t, 5*time.Minute, cfg.Batch.JobTimeout)
			assert.Equal(t, time.Minute, cfg.Batch.TestJobTimeout)
			assert.Equal(t, "$2a$10$abcdefghijklmnopqrstuu", cfg.Batch.AutomatedKeyHash)
		})
	}
}
