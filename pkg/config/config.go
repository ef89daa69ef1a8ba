// Package config loads the static run configuration from the environment
// and validates it before any network activity happens.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultBaseURL is the records API endpoint used when none is configured.
const DefaultBaseURL = "https://api.dataset.example"

// Error is a fatal configuration problem, detected at startup.
type Error struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Config is the static configuration of one sync run.
type Config struct {
	// BaseURL of the records API.
	BaseURL string

	// Token is the mandatory API credential.
	Token string

	// PageSize is the fixed page size for every request.
	PageSize int

	// MaxConcurrency bounds the worker pool.
	MaxConcurrency int

	// RequestTimeout per page fetch.
	RequestTimeout time.Duration

	// RequestsPerSecond throttles outgoing requests when > 0.
	RequestsPerSecond float64

	// DataDir holds the snapshot artifacts and version record.
	DataDir string

	// RedisURL enables the distributed run lock when non-empty.
	RedisURL string

	// MetricsAddr serves Prometheus metrics during the run when non-empty.
	MetricsAddr string

	// LogLevel for the global logger.
	LogLevel string

	// PrettyLogs switches from JSON to console log output.
	PrettyLogs bool
}

// FromEnv builds the configuration from DATASET_SYNC_* variables and
// validates it.
func FromEnv() (*Config, error) {
	cfg := &Config{
		BaseURL:  getEnv("DATASET_SYNC_BASE_URL", DefaultBaseURL),
		Token:    os.Getenv("DATASET_SYNC_TOKEN"),
		DataDir:  getEnv("DATASET_SYNC_DATA_DIR", "data"),
		RedisURL: os.Getenv("DATASET_SYNC_REDIS_URL"),

		MetricsAddr: os.Getenv("DATASET_SYNC_METRICS_ADDR"),
		LogLevel:    getEnv("DATASET_SYNC_LOG_LEVEL", "info"),
		PrettyLogs:  os.Getenv("DATASET_SYNC_PRETTY_LOGS") == "true",
	}

	var err error
	if cfg.PageSize, err = getEnvInt("DATASET_SYNC_PAGE_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrency, err = getEnvInt("DATASET_SYNC_MAX_CONCURRENCY", 5); err != nil {
		return nil, err
	}

	timeoutSecs, err := getEnvInt("DATASET_SYNC_TIMEOUT", 30)
	if err != nil {
		return nil, err
	}
	cfg.RequestTimeout = time.Duration(timeoutSecs) * time.Second

	if raw := os.Getenv("DATASET_SYNC_RPS"); raw != "" {
		rps, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, &Error{Field: "DATASET_SYNC_RPS", Reason: "not a number: " + raw}
		}
		cfg.RequestsPerSecond = rps
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration. A missing token is fatal here, before
// any request is made.
func (c *Config) Validate() error {
	if c.Token == "" {
		return &Error{Field: "DATASET_SYNC_TOKEN", Reason: "api token is required"}
	}
	if c.BaseURL == "" {
		return &Error{Field: "DATASET_SYNC_BASE_URL", Reason: "base URL must not be empty"}
	}
	if c.PageSize <= 0 {
		return &Error{Field: "DATASET_SYNC_PAGE_SIZE", Reason: "must be > 0"}
	}
	if c.MaxConcurrency <= 0 {
		return &Error{Field: "DATASET_SYNC_MAX_CONCURRENCY", Reason: "must be > 0"}
	}
	return nil
}

// JSONPath is the structured snapshot location.
func (c *Config) JSONPath() string {
	return filepath.Join(c.DataDir, "data.json")
}

// CSVPath is the tabular snapshot location.
func (c *Config) CSVPath() string {
	return filepath.Join(c.DataDir, "data.csv")
}

// VersionPath is the version record location.
func (c *Config) VersionPath() string {
	return filepath.Join(c.DataDir, "version.json")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &Error{Field: key, Reason: "not an integer: " + raw}
	}
	return v, nil
}
