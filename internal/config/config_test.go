package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.False(t, cfg.Debug)
	assert.Equal(t, DefaultMaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, 0, cfg.HeartbeatInterval)
	assert.NotEmpty(t, cfg.QueueFile)

	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, DefaultAllowedMethods, cfg.CORS.AllowedMethods)
	assert.Equal(t, DefaultCORSMaxAge, cfg.CORS.MaxAge)
	assert.False(t, cfg.CORS.AllowCredentials)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)

	require.NoError(t, Validate(cfg))
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
host: 127.0.0.1
port: 9000
max_message_size: 1024
auth_key: hunter2
cors:
  allowed_origins:
    - https://app.example
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 1024, cfg.MaxMessageSize)
	assert.Equal(t, "hunter2", cfg.AuthKey)
	assert.Equal(t, []string{"https://app.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Unset keys keep their defaults.
	assert.Equal(t, DefaultCORSMaxAge, cfg.CORS.MaxAge)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Port = 0 }},
		{"port too large", func(c *Config) { c.Port = 70000 }},
		{"empty host", func(c *Config) { c.Host = "" }},
		{"non-positive message size", func(c *Config) { c.MaxMessageSize = 0 }},
		{"negative heartbeat", func(c *Config) { c.HeartbeatInterval = -1 }},
		{"empty queue file", func(c *Config) { c.QueueFile = "" }},
		{"relative health path", func(c *Config) { c.HealthCheckPath = "health" }},
		{"empty origin entry", func(c *Config) { c.CORS.AllowedOrigins = []string{""} }},
		{"negative cors max age", func(c *Config) { c.CORS.MaxAge = -1 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestValidateAccepts(t *testing.T) {
	cfg := Default()
	cfg.HealthCheckPath = "/health"
	cfg.HeartbeatInterval = 30
	cfg.CORS.AllowedOrigins = []string{"https://a.example", "*.b.example"}
	assert.NoError(t, Validate(cfg))
}
