package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for voxtro-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (database password, provider API key) must only come from environment
// variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// AI provider configuration
	AI AIConfig `yaml:"ai"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"voxtro"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"voxtro_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// AIConfig holds language-model provider settings shared by all tenants.
// The pricing table and fallback chains are constructed once at startup from
// these values plus built-in defaults, and passed explicitly into the
// components that need them.
type AIConfig struct {
	// APIKey is the server-side provider key used when a tenant has not
	// connected their own.
	APIKey string `yaml:"-" env:"OPENAI_API_KEY"` // Secret - not in YAML

	// Endpoint is the chat-completions base URL.
	Endpoint string `yaml:"endpoint" env:"AI_ENDPOINT" env-default:"https://api.openai.com/v1"`

	// DefaultModel is used when an assistant has no model configured and as
	// the fallback row in the pricing table.
	DefaultModel string `yaml:"default_model" env:"AI_DEFAULT_MODEL" env-default:"gpt-4o-mini"`

	// RequestTimeoutSeconds bounds a single provider call.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" env:"AI_REQUEST_TIMEOUT_SECONDS" env-default:"60"`

	// ToolTimeoutSeconds bounds a single action (tool) HTTP call.
	ToolTimeoutSeconds int `yaml:"tool_timeout_seconds" env:"AI_TOOL_TIMEOUT_SECONDS" env-default:"30"`

	// MaxRetries is the number of attempts per candidate model before the
	// orchestrator moves on to the next one.
	MaxRetries int `yaml:"max_retries" env:"AI_MAX_RETRIES" env-default:"3"`

	// MaxBackoffSeconds caps any single wait between attempts.
	MaxBackoffSeconds int `yaml:"max_backoff_seconds" env:"AI_MAX_BACKOFF_SECONDS" env-default:"60"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. If config.yaml does not exist, configuration comes from the
// environment alone. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if cfg.AI.MaxRetries < 1 {
		return nil, fmt.Errorf("ai.max_retries must be at least 1")
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
