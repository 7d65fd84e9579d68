package config

import "time"

// Config represents the complete application configuration. Values come from,
// in increasing precedence: built-in defaults, the YAML config file,
// DOCGATE_* environment variables and command-line flags.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Workers int           `mapstructure:"workers"`
}

// APIConfig describes the remote registry and how to reach it.
type APIConfig struct {
	BaseURL        string          `mapstructure:"base_url"`
	ConnectTimeout time.Duration   `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration   `mapstructure:"read_timeout"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig caps outbound calls to Amount per Unit. Unit accepts a
// name (second, minute, ...) or a Go duration string such as "500ms".
type RateLimitConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Unit    string `mapstructure:"unit"`
	Amount  int    `mapstructure:"amount"`
}

// ServerConfig contains HTTP relay configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
	// Journal controls whether submissions are recorded.
	Journal bool `mapstructure:"journal"`
}

// RedisConfig enables a quota shared across processes. Empty Addr keeps the
// quota in-process.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Valid values: simple, structured
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}
