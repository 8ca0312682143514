package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"), "1.2.3")
	require.NoError(t, err)

	assert.Equal(t, "1.2.3", cfg.Version)
	assert.Equal(t, "0.0.0.0", cfg.BindAddr)
	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 300, cfg.RequestTimeoutSeconds)
	assert.Equal(t, 120, cfg.IdleTimeoutSeconds)

	assert.Equal(t, 30000, cfg.MySQL.StatementTimeoutMs)
	assert.Equal(t, 10, cfg.MySQL.ConnectTimeoutSeconds)
	assert.Equal(t, 3, cfg.MySQL.ConnectRetries)
	assert.Equal(t, 100, cfg.MySQL.MaxRows)
	assert.Equal(t, "us-west-2", cfg.MySQL.DefaultRegion)

	assert.Equal(t, "secrets.yaml", cfg.Secrets.Path)
	assert.Empty(t, cfg.Secrets.Key)
	assert.False(t, cfg.TLSEnabled())
	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
}

func TestLoadFrom_YAML(t *testing.T) {
	path := writeConfig(t, `
port: "9000"
env: production
log_level: debug
mysql:
  statement_timeout_ms: 5000
  max_rows: 25
  default_region: eu-central-1
secrets:
  path: /etc/insight/secrets.yaml
`)

	cfg, err := LoadFrom(path, "dev")
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5000, cfg.MySQL.StatementTimeoutMs)
	assert.Equal(t, 25, cfg.MySQL.MaxRows)
	assert.Equal(t, "eu-central-1", cfg.MySQL.DefaultRegion)
	assert.Equal(t, "/etc/insight/secrets.yaml", cfg.Secrets.Path)
	// Unset fields keep their defaults.
	assert.Equal(t, 10, cfg.MySQL.ConnectTimeoutSeconds)
}

func TestLoadFrom_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "port: \"9000\"\nenv: production\nmysql:\n  default_region: eu-central-1\n")

	t.Setenv("PORT", "9443")
	t.Setenv("ENVIRONMENT", "staging")
	t.Setenv("DEFAULT_REGION", "ap-south-1")
	t.Setenv("MYSQL_STATEMENT_TIMEOUT_MS", "1500")
	t.Setenv("SECRETS_KEY", "from-env")

	cfg, err := LoadFrom(path, "dev")
	require.NoError(t, err)
	assert.Equal(t, "9443", cfg.Port)
	assert.Equal(t, "staging", cfg.Env)
	assert.Equal(t, "ap-south-1", cfg.MySQL.DefaultRegion)
	assert.Equal(t, 1500, cfg.MySQL.StatementTimeoutMs)
	assert.Equal(t, "from-env", cfg.Secrets.Key)
}

func TestLoadFrom_SecretsKeyNotReadFromYAML(t *testing.T) {
	path := writeConfig(t, "secrets:\n  key: in-yaml\n")

	cfg, err := LoadFrom(path, "dev")
	require.NoError(t, err)
	assert.Empty(t, cfg.Secrets.Key)
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errText string
	}{
		{"non-numeric port", "port: abc\n", "port \"abc\""},
		{"port out of range", "port: \"70000\"\n", "between 1 and 65535"},
		{"negative max rows", "mysql:\n  max_rows: -5\n", "max_rows must be positive"},
		{"negative timeout", "mysql:\n  statement_timeout_ms: -1\n", "must not be negative"},
		{"malformed yaml", "port: [\n", "failed to read"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(writeConfig(t, tt.content), "dev")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}

func TestValidateTLS(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certPath, []byte("cert"), 0o600))
	require.NoError(t, os.WriteFile(keyPath, []byte("key"), 0o600))

	tests := []struct {
		name    string
		cert    string
		key     string
		errText string
	}{
		{name: "none"},
		{name: "both provided", cert: certPath, key: keyPath},
		{name: "only cert", cert: certPath, errText: "must be provided together"},
		{name: "only key", key: keyPath, errText: "must be provided together"},
		{name: "cert missing", cert: filepath.Join(dir, "nope.pem"), key: keyPath, errText: "TLS cert file does not exist"},
		{name: "key missing", cert: certPath, key: filepath.Join(dir, "nope.pem"), errText: "TLS key file does not exist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{TLSCertPath: tt.cert, TLSKeyPath: tt.key}
			err := cfg.validateTLS()
			if tt.errText == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}

func TestLoadFrom_TLSFromEnv(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certPath, []byte("cert"), 0o600))
	require.NoError(t, os.WriteFile(keyPath, []byte("key"), 0o600))

	t.Setenv("TLS_CERT_PATH", certPath)
	t.Setenv("TLS_KEY_PATH", keyPath)

	cfg, err := LoadFrom(filepath.Join(dir, "missing.yaml"), "dev")
	require.NoError(t, err)
	assert.True(t, cfg.TLSEnabled())
}
