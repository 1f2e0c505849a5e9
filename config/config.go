// Package config provides application configuration loading and the
// MetaWatcher that keeps a live Config in sync with a meta file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Meta     MetaConfig     `yaml:"meta"`
	Data     DataConfig     `yaml:"data"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures snapshot storage.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	DSN    string `yaml:"dsn"`
}

// MetaConfig configures the served meta file.
type MetaConfig struct {
	File       string `yaml:"file"`       // json, yaml or cbor meta file; empty serves an empty config
	Descriptor string `yaml:"descriptor"` // optional descriptor meta file validating writes
	Watch      bool   `yaml:"watch"`      // reload the file when it changes
}

// DataConfig configures the served data tree.
type DataConfig struct {
	Dir         string `yaml:"dir"`         // files under dir become lazy data items
	Concurrency int    `yaml:"concurrency"` // parallel computations when preloading
	Preload     bool   `yaml:"preload"`     // compute every item at startup
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // Enable /metrics endpoint
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return finish(&cfg)
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	DATAFORGE_SERVER_HOST       - Server host (default: 0.0.0.0)
//	DATAFORGE_SERVER_PORT       - Server port (default: 8080)
//	DATAFORGE_DATABASE_DRIVER   - sqlite or memory (default: sqlite)
//	DATAFORGE_DATABASE_DSN      - Database path (default: dataforge.db)
//	DATAFORGE_META_FILE         - Meta file to serve
//	DATAFORGE_META_DESCRIPTOR   - Descriptor file validating writes
//	DATAFORGE_META_WATCH        - Reload the meta file on change
//	DATAFORGE_DATA_DIR          - Directory served as a data tree
//	DATAFORGE_DATA_CONCURRENCY  - Parallel computations when preloading (default: 4)
//	DATAFORGE_DATA_PRELOAD      - Compute every item at startup
//	DATAFORGE_LOG_LEVEL         - Log level: debug, info, warn, error (default: info)
//	DATAFORGE_LOG_FORMAT        - Log format: json or console (default: json)
//	DATAFORGE_METRICS_ENABLED   - Enable /metrics endpoint
func LoadFromEnv() (*Config, error) {
	return finish(&Config{})
}

// LoadWithFallback loads path when it exists, else the environment.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)
	setDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies DATAFORGE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("DATAFORGE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("DATAFORGE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATAFORGE_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("DATAFORGE_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Database configuration
	if v := os.Getenv("DATAFORGE_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("DATAFORGE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Meta configuration
	if v := os.Getenv("DATAFORGE_META_FILE"); v != "" {
		cfg.Meta.File = v
	}
	if v := os.Getenv("DATAFORGE_META_DESCRIPTOR"); v != "" {
		cfg.Meta.Descriptor = v
	}
	if v := os.Getenv("DATAFORGE_META_WATCH"); v != "" {
		cfg.Meta.Watch = parseBool(v)
	}

	// Data configuration
	if v := os.Getenv("DATAFORGE_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("DATAFORGE_DATA_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Data.Concurrency = n
		}
	}
	if v := os.Getenv("DATAFORGE_DATA_PRELOAD"); v != "" {
		cfg.Data.Preload = parseBool(v)
	}

	// Logging configuration
	if v := os.Getenv("DATAFORGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DATAFORGE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("DATAFORGE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "dataforge.db"
	}

	if cfg.Data.Concurrency == 0 {
		cfg.Data.Concurrency = 4
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}

	validDrivers := map[string]bool{"sqlite": true, "memory": true}
	if !validDrivers[cfg.Database.Driver] {
		return fmt.Errorf("database.driver must be 'sqlite' or 'memory', got %q", cfg.Database.Driver)
	}

	if cfg.Meta.Watch && cfg.Meta.File == "" {
		return fmt.Errorf("meta.file is required when meta.watch is set")
	}

	if cfg.Data.Concurrency < 0 {
		return fmt.Errorf("data.concurrency must not be negative")
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	return nil
}
