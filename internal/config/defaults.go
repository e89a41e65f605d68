// Package config provides centralized default configuration values.
package config

import (
	"os"
	"path/filepath"
)

// Server defaults.
const (
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 6001
	DefaultMaxMessageSize = 65536
	DefaultCORSMaxAge     = 86400
)

// DefaultAllowedMethods is the standard method set offered in CORS
// preflight responses.
var DefaultAllowedMethods = []string{
	"GET",
	"POST",
	"PUT",
	"DELETE",
	"OPTIONS",
	"PATCH",
	"HEAD",
}

// DefaultAllowedHeaders is the standard header set offered in CORS
// preflight responses.
var DefaultAllowedHeaders = []string{
	"Content-Type",
	"Authorization",
	"X-Requested-With",
}

// DefaultQueueFile returns the default IPC queue file location.
func DefaultQueueFile() string {
	return filepath.Join(os.TempDir(), "sockd-queue.jsonl")
}

// GetConfigDir returns the user config directory for sockd.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".sockd"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
