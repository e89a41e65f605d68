package config

import (
	"fmt"
	"strings"
)

// Validate validates the configuration.
func Validate(cfg *Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}

	if cfg.Host == "" {
		return fmt.Errorf("host must not be empty")
	}

	if cfg.MaxMessageSize <= 0 {
		return fmt.Errorf("max_message_size must be positive, got %d", cfg.MaxMessageSize)
	}

	if cfg.HeartbeatInterval < 0 {
		return fmt.Errorf("heartbeat_interval must not be negative, got %d", cfg.HeartbeatInterval)
	}

	if cfg.QueueFile == "" {
		return fmt.Errorf("queue_file must not be empty")
	}

	if cfg.HealthCheckPath != "" && !strings.HasPrefix(cfg.HealthCheckPath, "/") {
		return fmt.Errorf("health_check_path must begin with '/', got %q", cfg.HealthCheckPath)
	}

	if err := validateCORS(&cfg.CORS); err != nil {
		return err
	}

	if err := validateLogging(&cfg.Logging); err != nil {
		return err
	}

	return nil
}

func validateCORS(cfg *CORSConfig) error {
	for _, origin := range cfg.AllowedOrigins {
		if origin == "" {
			return fmt.Errorf("cors.allowed_origins must not contain empty entries")
		}
	}

	if cfg.MaxAge < 0 {
		return fmt.Errorf("cors.max_age must not be negative, got %d", cfg.MaxAge)
	}

	return nil
}

func validateLogging(cfg *LoggingConfig) error {
	switch cfg.Level {
	case "", "trace", "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return fmt.Errorf("logging.level must be a zerolog level, got %q", cfg.Level)
	}

	switch cfg.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be 'console' or 'json', got %q", cfg.Format)
	}

	return nil
}
