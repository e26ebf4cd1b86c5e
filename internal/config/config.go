// Package config loads the outboxd binary's runtime configuration from a
// YAML file and environment variable overrides. The outbox core itself never
// reads configuration files; it only ever sees an already-built Config
// struct handed to it by the entrypoint.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full set of knobs outboxd needs at startup.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// DatabaseConfig points at the primary/replica Postgres endpoints.
type DatabaseConfig struct {
	PrimaryDSN         string `mapstructure:"primary_dsn"`
	ReplicaDSN         string `mapstructure:"replica_dsn"`
	MaxOpenConnections int    `mapstructure:"max_open_connections"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections"`
	OutboxTable        string `mapstructure:"outbox_table"`
	EntityTable        string `mapstructure:"entity_table"`
}

// DispatcherConfig mirrors outbox.Config's tunable knobs.
type DispatcherConfig struct {
	WorkerCount         int           `mapstructure:"worker_count"`
	BatchSize           int           `mapstructure:"batch_size"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	BackoffBase         time.Duration `mapstructure:"backoff_base"`
	BackoffMax          time.Duration `mapstructure:"backoff_max"`
	MaxRetries          int           `mapstructure:"max_retries"`
	ZombieThreshold     time.Duration `mapstructure:"zombie_threshold"`
	SubmitTimeout       time.Duration `mapstructure:"submit_timeout"`
	ZombieSweepInterval time.Duration `mapstructure:"zombie_sweep_interval"`
	EnableWorker        bool          `mapstructure:"enable_worker"`
}

// LedgerConfig configures the reference solanarpc.Client adapter.
type LedgerConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	// SignerSeedBase64 is the fee-payer's ed25519 seed, base64-encoded so it
	// survives a YAML file or environment variable without colliding with
	// base58's alphabet or shell quoting conventions.
	SignerSeedBase64 string `mapstructure:"signer_seed_base64"`
}

// LoggingConfig configures the zaplog adapter.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads outboxd.yaml from /etc/outboxd/ or the working directory,
// applies OUTBOXD_-prefixed environment overrides, and unmarshals into a
// Config. A missing config file is not an error; defaults plus environment
// variables are enough to run.
func Load() (*Config, error) {
	viper.SetConfigName("outboxd")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/outboxd/")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("OUTBOXD")
	viper.AutomaticEnv()

	viper.SetDefault("database.max_open_connections", 25)
	viper.SetDefault("database.max_idle_connections", 5)
	viper.SetDefault("database.outbox_table", "outbox_entries")
	viper.SetDefault("database.entity_table", "domain_entities")

	viper.SetDefault("dispatcher.worker_count", 4)
	viper.SetDefault("dispatcher.batch_size", 10)
	viper.SetDefault("dispatcher.poll_interval", "1s")
	viper.SetDefault("dispatcher.backoff_base", "1s")
	viper.SetDefault("dispatcher.backoff_max", "5m")
	viper.SetDefault("dispatcher.max_retries", 10)
	viper.SetDefault("dispatcher.zombie_threshold", "5m")
	viper.SetDefault("dispatcher.submit_timeout", "30s")
	viper.SetDefault("dispatcher.zombie_sweep_interval", "30s")
	viper.SetDefault("dispatcher.enable_worker", true)

	viper.SetDefault("logging.level", "info")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &cfg, nil
}
