// Package config handles configuration management for sockd.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the server.
type Config struct {
	Host              string        `mapstructure:"host" yaml:"host"`
	Port              int           `mapstructure:"port" yaml:"port"`
	Debug             bool          `mapstructure:"debug" yaml:"debug"`
	MaxMessageSize    int           `mapstructure:"max_message_size" yaml:"max_message_size"`
	AuthKey           string        `mapstructure:"auth_key" yaml:"auth_key,omitempty"`
	QueueFile         string        `mapstructure:"queue_file" yaml:"queue_file"`
	HealthCheckPath   string        `mapstructure:"health_check_path" yaml:"health_check_path,omitempty"`
	HeartbeatInterval int           `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	TrustedProxies    []string      `mapstructure:"trusted_proxies" yaml:"trusted_proxies,omitempty"`
	CORS              CORSConfig    `mapstructure:"cors" yaml:"cors"`
	Logging           LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// CORSConfig holds the handshake and HTTP CORS allow-lists.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers" yaml:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age" yaml:"max_age"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load loads configuration from files and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default search paths
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.sockd")
		v.AddConfigPath("/etc/sockd")
	}

	// Environment variable prefix
	v.SetEnvPrefix("SOCKD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file (optional - not an error if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("host", DefaultHost)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("debug", false)
	v.SetDefault("max_message_size", DefaultMaxMessageSize)
	v.SetDefault("heartbeat_interval", 0)
	v.SetDefault("queue_file", DefaultQueueFile())

	// CORS defaults
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", DefaultAllowedMethods)
	v.SetDefault("cors.allowed_headers", DefaultAllowedHeaders)
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", DefaultCORSMaxAge)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Default returns the configuration with every default applied and no file
// or environment input.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults always unmarshal; treat a failure as a programming error.
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &cfg
}
