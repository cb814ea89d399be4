// Package config provides configuration management for the TrustChecker
// orchestration core.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like REDIS_ADDR, SERVER_PORT)
// 3. Default values
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Bus      BusConfig      `mapstructure:"bus"`
	DLQ      DLQConfig      `mapstructure:"dlq"`
	Saga     SagaConfig     `mapstructure:"saga"`
	Log      LogConfig      `mapstructure:"log"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// ServerConfig contains the diagnostics HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RedisConfig contains Redis connection settings. An empty Addr selects the
// in-memory backends for the bus, DLQ, and query cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis backend is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// DatabaseConfig contains PostgreSQL settings for the read-side view
// builders. The core owns no tables; this pool is read-only aggregation.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns int32 `mapstructure:"max_conns"`
	MinConns int32 `mapstructure:"min_conns"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// BusConfig contains event bus delivery settings.
type BusConfig struct {
	MaxRetries        int             `mapstructure:"max_retries"`
	RetryBackoff      []time.Duration `mapstructure:"retry_backoff"`
	BatchSize         int             `mapstructure:"batch_size"`
	BlockTimeout      time.Duration   `mapstructure:"block_timeout"`
	MaxStreamLength   int64           `mapstructure:"max_stream_length"`
	ValidateOnPublish bool            `mapstructure:"validate_on_publish"`
}

// DLQConfig contains dead letter queue retention settings.
type DLQConfig struct {
	MaxAge    time.Duration `mapstructure:"max_age"`
	MemoryCap int           `mapstructure:"memory_cap"`
}

// SagaConfig contains saga orchestrator settings.
type SagaConfig struct {
	ArchiveSize int `mapstructure:"archive_size"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// WorkerConfig contains worker pool sizing.
type WorkerConfig struct {
	GeneralPoolSize int `mapstructure:"general_pool_size"`
	PollerPoolSize  int `mapstructure:"poller_pool_size"`
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/trustchecker")

	// Environment variable override, no prefix: REDIS_ADDR, SERVER_PORT,
	// BUS_MAX_RETRIES, LOG_LEVEL and so on.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file is optional, use defaults and env vars.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	if c.Bus.MaxRetries < 1 {
		return fmt.Errorf("bus.max_retries must be at least 1")
	}
	if len(c.Bus.RetryBackoff) == 0 {
		return fmt.Errorf("bus.retry_backoff must not be empty")
	}
	if c.Bus.BatchSize < 1 {
		return fmt.Errorf("bus.batch_size must be at least 1")
	}
	if c.Saga.ArchiveSize < 1 {
		return fmt.Errorf("saga.archive_size must be at least 1")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Redis (empty addr = in-memory backends)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Database (read-side aggregation only)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "trustchecker")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "trustchecker")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)

	// Event bus delivery policy
	v.SetDefault("bus.max_retries", 3)
	v.SetDefault("bus.retry_backoff", []string{"1s", "5s", "15s"})
	v.SetDefault("bus.batch_size", 10)
	v.SetDefault("bus.block_timeout", "2s")
	v.SetDefault("bus.max_stream_length", 10000)
	v.SetDefault("bus.validate_on_publish", true)

	// DLQ retention
	v.SetDefault("dlq.max_age", "720h") // 30 days
	v.SetDefault("dlq.memory_cap", 1000)

	// Saga
	v.SetDefault("saga.archive_size", 100)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Worker pools
	v.SetDefault("worker.general_pool_size", 100)
	v.SetDefault("worker.poller_pool_size", 64)
}
