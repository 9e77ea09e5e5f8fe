// Package config loads service configuration from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"devices-api/internal/database"
	"devices-api/internal/logging"
)

// EnvConfigPath names the variable holding the YAML config path.
const EnvConfigPath = "DEVICES_CONFIG"

// Config is the full service configuration.
type Config struct {
	HTTPAddr        string         `yaml:"http_addr"`
	ShutdownTimeout time.Duration  `yaml:"shutdown_timeout"`
	Database        DatabaseConfig `yaml:"database"`
	Log             logging.Config `yaml:"log"`
	Auth            AuthConfig     `yaml:"auth"`
	NATS            NATSConfig     `yaml:"nats"`
	Audit           AuditConfig    `yaml:"audit"`
}

// DatabaseConfig selects the SQL driver and connection.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// AuthConfig enables bearer-token auth when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// NATSConfig enables event publishing when URL is set.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// AuditConfig toggles the audit log.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr:        ":8080",
		ShutdownTimeout: 10 * time.Second,
		Database: DatabaseConfig{
			Driver:       database.DriverPostgres,
			MaxOpenConns: 10,
		},
		Log:   logging.Config{Level: "info", Output: "stdout"},
		NATS:  NATSConfig{SubjectPrefix: "devices"},
		Audit: AuditConfig{Enabled: true},
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (or $DEVICES_CONFIG when path is empty), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case database.DriverPostgres, database.DriverSQLite:
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("config: DATABASE_URL is required")
	}
	if c.HTTPAddr == "" {
		return errors.New("config: http address is required")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("config: shutdown timeout must be positive")
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.ShutdownTimeout = getenvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	cfg.Database.Driver = getenvDefault("DATABASE_DRIVER", cfg.Database.Driver)
	cfg.Database.URL = getenvDefault("PG_DSN", cfg.Database.URL)
	cfg.Database.URL = getenvDefault("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxOpenConns = getenvIntDefault("DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)

	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Output = getenvDefault("LOG_OUTPUT", cfg.Log.Output)

	cfg.Auth.JWTSecret = getenvDefault("AUTH_JWT_SECRET", cfg.Auth.JWTSecret)

	cfg.NATS.URL = getenvDefault("NATS_URL", cfg.NATS.URL)
	cfg.NATS.SubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)

	cfg.Audit.Enabled = getenvBoolDefault("AUDIT_ENABLED", cfg.Audit.Enabled)
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
