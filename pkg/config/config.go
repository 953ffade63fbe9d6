// Package config provides the unified configuration system for fieldpipe.
// It defines a single Config structure covering the source API client, the
// tenant store, the warehouse sink, scheduling and observability, loaded
// from YAML with environment variable overrides.
//
// Example usage:
//
//	cfg, err := config.Load("configs/fieldpipe.yml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level engine configuration.
type Config struct {
	// API settings for the upstream field-service REST API
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Tenants configures the tenant credential and watermark store
	Tenants TenantStoreConfig `mapstructure:"tenants" yaml:"tenants"`

	// Warehouse configures the batch sink
	Warehouse WarehouseConfig `mapstructure:"warehouse" yaml:"warehouse"`

	// Schedule configures cron-driven runs
	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`

	// Logging configures the global logger
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// APIConfig contains client settings for the upstream API. Retry and
// throttle defaults mirror the upstream rate-limit guidance.
type APIConfig struct {
	// MaxRetries is the maximum number of retry attempts per call
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	// ThrottleSleep is the unconditional pause after each successful call
	ThrottleSleep time.Duration `mapstructure:"throttle_sleep" yaml:"throttle_sleep"`
	// BatchSize bounds how many IDs go into one batch-get call
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`
	// InlineResolveCap is the observed (not documented) cap on records the
	// API inlines in a search response; informational, never pagination math
	InlineResolveCap int `mapstructure:"inline_resolve_cap" yaml:"inline_resolve_cap"`
	// RequestTimeout bounds a single HTTP request
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// TenantStoreConfig selects and configures the tenant store backend.
type TenantStoreConfig struct {
	// Backend is "file" or "postgres"
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Path to the YAML credentials file (file backend)
	Path string `mapstructure:"path" yaml:"path"`
	// DSN for the postgres backend
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// WarehouseConfig selects and configures the sink adapter.
type WarehouseConfig struct {
	// Kind is "snowflake" or "bigquery"
	Kind string `mapstructure:"kind" yaml:"kind"`
	// Database is the target database (snowflake) or GCP project (bigquery)
	Database string `mapstructure:"database" yaml:"database"`
	// Schema is the target schema (snowflake) or dataset (bigquery)
	Schema string `mapstructure:"schema" yaml:"schema"`

	// Snowflake connection settings
	Account   string `mapstructure:"account" yaml:"account"`
	User      string `mapstructure:"user" yaml:"user"`
	Password  string `mapstructure:"password" yaml:"password"`
	Role      string `mapstructure:"role" yaml:"role"`
	Warehouse string `mapstructure:"warehouse" yaml:"warehouse"`

	// BigQuery settings
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`

	// InsertChunkSize bounds rows per INSERT statement
	InsertChunkSize int `mapstructure:"insert_chunk_size" yaml:"insert_chunk_size"`
}

// ScheduleConfig holds the cron expressions for the standing jobs.
type ScheduleConfig struct {
	// Nightly runs dimensions then facts
	Nightly string `mapstructure:"nightly" yaml:"nightly"`
	// Hourly runs the hot tables (appointment, payment)
	Hourly string `mapstructure:"hourly" yaml:"hourly"`
	// Timezone for cron evaluation
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
}

// LoggingConfig mirrors logger.Config.
type LoggingConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
	Encoding    string `mapstructure:"encoding" yaml:"encoding"`
}

// MetricsConfig configures the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// Load reads the engine configuration from a YAML file. Environment
// variables override file values (FIELDPIPE_WAREHOUSE_PASSWORD overrides
// warehouse.password).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("FIELDPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// Default returns a Config populated with defaults only.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.retry_delay", time.Second)
	v.SetDefault("api.throttle_sleep", 500*time.Millisecond)
	v.SetDefault("api.batch_size", 1000)
	v.SetDefault("api.inline_resolve_cap", 1000)
	v.SetDefault("api.request_timeout", 30*time.Second)

	v.SetDefault("tenants.backend", "file")
	v.SetDefault("tenants.path", "configs/office_credentials.yml")

	v.SetDefault("warehouse.kind", "snowflake")
	v.SetDefault("warehouse.database", "raw")
	v.SetDefault("warehouse.schema", "fieldroutes")
	v.SetDefault("warehouse.insert_chunk_size", 500)

	v.SetDefault("schedule.nightly", "0 1 * * *")
	v.SetDefault("schedule.hourly", "5 * * * *")
	v.SetDefault("schedule.timezone", "America/Denver")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen", ":9464")
}

// Validate validates the configuration for correctness.
func (c *Config) Validate() error {
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("api.max_retries cannot be negative")
	}
	if c.API.BatchSize <= 0 {
		return fmt.Errorf("api.batch_size must be positive")
	}
	if c.API.RetryDelay < 0 {
		return fmt.Errorf("api.retry_delay cannot be negative")
	}
	switch c.Tenants.Backend {
	case "file":
		if c.Tenants.Path == "" {
			return fmt.Errorf("tenants.path is required for the file backend")
		}
	case "postgres":
		if c.Tenants.DSN == "" {
			return fmt.Errorf("tenants.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown tenants.backend %q", c.Tenants.Backend)
	}
	switch c.Warehouse.Kind {
	case "snowflake", "bigquery":
	default:
		return fmt.Errorf("unknown warehouse.kind %q", c.Warehouse.Kind)
	}
	return nil
}
