package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete boltbridge configuration
type Config struct {
	Backend      BackendConfig      `mapstructure:"backend"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Server       ServerConfig       `mapstructure:"server"`
	Store        StoreConfig        `mapstructure:"store"`
	Files        FilesConfig        `mapstructure:"files"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// BackendConfig controls the client for the downstream bolt.diy backend
type BackendConfig struct {
	// URL is the base URL of the implementation backend
	URL string `mapstructure:"url"`
	// Retries is the number of additional attempts after a failed request.
	// Total attempts per call = retries + 1.
	Retries int `mapstructure:"retries"`
	// RetryDelayMs is the fixed delay between attempts (no backoff)
	RetryDelayMs int `mapstructure:"retry_delay_ms"`
	// RequestTimeoutMs bounds each individual HTTP attempt
	RequestTimeoutMs int `mapstructure:"request_timeout_ms"`
}

// OrchestratorConfig controls the per-task polling loop
type OrchestratorConfig struct {
	// PollIntervalSeconds is the delay between status polls
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	// MaxPollAttempts caps the number of polls before the task is failed
	// with a timeout error (default 30 * 10s = a 5-minute ceiling)
	MaxPollAttempts int `mapstructure:"max_poll_attempts"`
}

// ServerConfig controls the HTTP API server
type ServerConfig struct {
	// Port is the TCP port the API listens on
	Port int `mapstructure:"port"`
	// ShutdownTimeoutSeconds bounds graceful shutdown
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// StoreConfig controls the task store
type StoreConfig struct {
	// Driver selects the store implementation: "postgres" or "memory"
	Driver string `mapstructure:"driver"`
	// DSN is the Postgres connection string (ignored by the memory driver)
	DSN string `mapstructure:"dsn"`
}

// FilesConfig controls result-file materialization
type FilesConfig struct {
	// Dir is the root directory the local uploader writes files under
	Dir string `mapstructure:"dir"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level"`
	// File is the log file path; empty logs to stderr
	File string `mapstructure:"file"`
}

// RetryDelay returns the inter-attempt delay as a time.Duration
func (c *BackendConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// RequestTimeout returns the per-attempt timeout as a time.Duration
func (c *BackendConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// PollInterval returns the poll interval as a time.Duration
func (c *OrchestratorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// ShutdownTimeout returns the graceful-shutdown budget as a time.Duration
func (c *ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:              "http://localhost:5173",
			Retries:          3,
			RetryDelayMs:     1000,
			RequestTimeoutMs: 30000,
		},
		Orchestrator: OrchestratorConfig{
			PollIntervalSeconds: 10,
			MaxPollAttempts:     30,
		},
		Server: ServerConfig{
			Port:                   8080,
			ShutdownTimeoutSeconds: 10,
		},
		Store: StoreConfig{
			Driver: "postgres",
		},
		Files: FilesConfig{
			Dir: "data/files",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Backend defaults
	viper.SetDefault("backend.url", defaults.Backend.URL)
	viper.SetDefault("backend.retries", defaults.Backend.Retries)
	viper.SetDefault("backend.retry_delay_ms", defaults.Backend.RetryDelayMs)
	viper.SetDefault("backend.request_timeout_ms", defaults.Backend.RequestTimeoutMs)

	// Orchestrator defaults
	viper.SetDefault("orchestrator.poll_interval_seconds", defaults.Orchestrator.PollIntervalSeconds)
	viper.SetDefault("orchestrator.max_poll_attempts", defaults.Orchestrator.MaxPollAttempts)

	// Server defaults
	viper.SetDefault("server.port", defaults.Server.Port)
	viper.SetDefault("server.shutdown_timeout_seconds", defaults.Server.ShutdownTimeoutSeconds)

	// Store defaults
	viper.SetDefault("store.driver", defaults.Store.Driver)
	viper.SetDefault("store.dsn", defaults.Store.DSN)

	// Files defaults
	viper.SetDefault("files.dir", defaults.Files.Dir)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.file", defaults.Logging.File)
}

// Load unmarshals the current viper state into a Config
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
