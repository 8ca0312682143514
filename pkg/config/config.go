package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigPath is read by Load.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for mysql-insight.
// Configuration can come from a YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"PORT" env-default:"8000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// RequestTimeoutSeconds bounds one HTTP request or one CLI command.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" env:"REQUEST_TIMEOUT_SECONDS" env-default:"300"`
	IdleTimeoutSeconds    int `yaml:"idle_timeout_seconds" env:"IDLE_TIMEOUT_SECONDS" env-default:"120"`

	MySQL   MySQLConfig   `yaml:"mysql"`
	Secrets SecretsConfig `yaml:"secrets"`
}

// MySQLConfig tunes the per-request MySQL sessions.
type MySQLConfig struct {
	StatementTimeoutMs    int    `yaml:"statement_timeout_ms" env:"MYSQL_STATEMENT_TIMEOUT_MS" env-default:"30000"`
	ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds" env:"MYSQL_CONNECT_TIMEOUT_SECONDS" env-default:"10"`
	ConnectRetries        int    `yaml:"connect_retries" env:"MYSQL_CONNECT_RETRIES" env-default:"3"`
	MaxRows               int    `yaml:"max_rows" env:"MYSQL_MAX_ROWS" env-default:"100"`
	DefaultRegion         string `yaml:"default_region" env:"DEFAULT_REGION" env-default:"us-west-2"`
}

// SecretsConfig locates the credentials file.
type SecretsConfig struct {
	Path string `yaml:"path" env:"SECRETS_FILE" env-default:"secrets.yaml"`
	// Key unseals "enc:" passwords. Generate with: openssl rand -base64 32
	Key string `yaml:"-" env:"SECRETS_KEY"` // Secret - not in YAML
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFrom(DefaultConfigPath, version)
}

// LoadFrom reads configuration from path. When the file does not exist,
// configuration comes from environment variables and defaults only.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("port %q must be a number between 1 and 65535", c.Port)
	}
	if c.MySQL.MaxRows < 1 {
		return fmt.Errorf("mysql.max_rows must be positive")
	}
	if c.MySQL.StatementTimeoutMs < 0 {
		return fmt.Errorf("mysql.statement_timeout_ms must not be negative")
	}
	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	// Readability is checked by tls.LoadX509KeyPair at startup.
	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// TLSEnabled reports whether the server should listen with HTTPS.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertPath != "" && c.TLSKeyPath != ""
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return c.BindAddr + ":" + c.Port
}
