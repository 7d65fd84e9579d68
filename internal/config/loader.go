// Package config provides centralized configuration management for docgate.
// A viper instance collects the config file, DOCGATE_* environment variables
// and bound flags; Load decodes the merged settings into a typed Config.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/docgate/docgate/internal/client"
	"github.com/docgate/docgate/internal/core/engine"
)

const (
	// AppName names the config, data and cache directories.
	AppName = "docgate"
	// EnvPrefix prefixes every environment override, e.g. DOCGATE_API_BASE_URL.
	EnvPrefix = "DOCGATE"
)

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// SetDefaults registers the built-in defaults on v. Every key that can be
// overridden from the environment must have a default here.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", client.DefaultBaseURL)
	v.SetDefault("api.connect_timeout", "10s")
	v.SetDefault("api.read_timeout", "30s")
	v.SetDefault("api.rate_limit.enabled", true)
	v.SetDefault("api.rate_limit.unit", "second")
	v.SetDefault("api.rate_limit.amount", 1)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 4<<20)

	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")
	v.SetDefault("store.journal", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "docgate:quota")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("workers", 4)
}

// NewViper returns a viper instance with defaults and environment binding
// applied. Nested keys map to env names with "." replaced by "_".
func NewViper() *viper.Viper {
	v := viper.New()
	BindEnv(v)
	SetDefaults(v)
	return v
}

// BindEnv wires DOCGATE_* environment variables into v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes the merged settings of v into a Config and makes it the
// current configuration.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = NewViper()
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	setConfig(cfg)
	return cfg, nil
}

// Validate checks the settings needed to build a client.
func (c *Config) Validate() error {
	_, err := c.ClientConfig()
	return err
}

// ClientConfig converts the api section into a client.Config. A disabled rate
// limit yields a plain, ungated client.
func (c *Config) ClientConfig() (*client.Config, error) {
	if c == nil {
		return nil, &client.ConfigurationError{Field: "config", Message: "is required"}
	}

	cfg := &client.Config{
		BaseURL:        strings.TrimSpace(c.API.BaseURL),
		ConnectTimeout: c.API.ConnectTimeout,
		ReadTimeout:    c.API.ReadTimeout,
	}

	if c.API.RateLimit.Enabled {
		unit, err := engine.ParseUnit(c.API.RateLimit.Unit)
		if err != nil {
			return nil, &client.ConfigurationError{Field: "rate_limit.unit", Message: "unknown time unit", Err: err}
		}
		cfg.RateLimit = &client.RateLimitConfig{Unit: unit, Amount: c.API.RateLimit.Amount}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultConfigDir returns the XDG-compliant config directory.
func DefaultConfigDir() string {
	return gfconfig.GetAppConfigDir(AppName)
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := DefaultConfigDir()
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(AppName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}
