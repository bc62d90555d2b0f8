// Package config loads runtime settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/govalues/money"
	"github.com/joho/godotenv"

	"github.com/tinoosan/bookkeeper/internal/dictionary"
	"github.com/tinoosan/bookkeeper/internal/service/mapping"
)

// Backend names a storage implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
)

// Config is the application configuration.
type Config struct {
	// DatabaseURL selects the backend: postgres:// or postgresql:// for pgx,
	// sqlite://path or file:path for SQLite, empty for the in-memory store.
	DatabaseURL          string
	HTTPAddr             string
	LogLevel             string
	LogFormat            string
	FunctionalCurrency   string
	DefaultParentAccount string
	MappingPrecedence    mapping.Precedence
}

// Load reads configuration from environment variables after loading a .env file.
// A missing .env in the working directory is ignored; an explicit path must exist.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	precedence, err := mapping.ParsePrecedence(os.Getenv("MAPPING_PRECEDENCE"))
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		HTTPAddr:             getEnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		FunctionalCurrency:   strings.ToUpper(getEnvOrDefault("FUNCTIONAL_CURRENCY", "USD")),
		DefaultParentAccount: getEnvOrDefault("DEFAULT_PARENT_ACCOUNT", dictionary.DefaultParentAccount),
		MappingPrecedence:    precedence,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a command.
func (c *Config) Validate() error {
	if _, err := money.ParseCurr(c.FunctionalCurrency); err != nil {
		return fmt.Errorf("invalid FUNCTIONAL_CURRENCY %q: %w", c.FunctionalCurrency, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q: want json or text", c.LogFormat)
	}
	if strings.TrimSpace(c.DefaultParentAccount) == "" {
		return fmt.Errorf("DEFAULT_PARENT_ACCOUNT must not be empty")
	}
	if _, _, err := c.Backend(); err != nil {
		return err
	}
	return nil
}

// Backend reports which storage DatabaseURL selects and the DSN or file path to open.
func (c *Config) Backend() (Backend, string, error) {
	u := strings.TrimSpace(c.DatabaseURL)
	switch {
	case u == "":
		return BackendMemory, "", nil
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return BackendPostgres, u, nil
	case strings.HasPrefix(u, "sqlite://"):
		return BackendSQLite, strings.TrimPrefix(u, "sqlite://"), nil
	case strings.HasPrefix(u, "file:"):
		return BackendSQLite, strings.TrimPrefix(u, "file:"), nil
	}
	return "", "", fmt.Errorf("unsupported DATABASE_URL scheme in %q", u)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
