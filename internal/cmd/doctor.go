package cmd

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/docgate/docgate/internal/client"
	"github.com/docgate/docgate/internal/config"
	"github.com/docgate/docgate/internal/observability"
)

const doctorTotalChecks = 7

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Check configuration, the registry endpoint, the local store and the shared quota backend.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		log := observability.CLILogger

		log.Info("=== " + appIdentity.BinaryName + " doctor ===")
		log.Info("")

		healthy := true
		step := func(n int, label string) string {
			return fmt.Sprintf("[%d/%d] %s...", n, doctorTotalChecks, label)
		}

		version := crucible.GetVersion()
		log.Info(fmt.Sprintf("%s ✅ %s %s/%s", step(1, "Checking runtime"), runtime.Version(), runtime.GOOS, runtime.GOARCH),
			zap.String("go_version", runtime.Version()),
			zap.String("gofulmen_version", version.Gofulmen))

		configPath := config.DefaultConfigPath()
		if cfgFile != "" {
			configPath = cfgFile
		}
		if fileExists(configPath) {
			log.Info(fmt.Sprintf("%s ✅ %s", step(2, "Checking config file"), configPath))
		} else {
			log.Info(fmt.Sprintf("%s ➖ %s (not present, using defaults)", step(2, "Checking config file"), configPath))
		}

		cfg, err := loadConfig(cmd)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			log.Error(fmt.Sprintf("%s ❌ %v", step(3, "Validating settings"), err))
			return err
		}
		log.Info(fmt.Sprintf("%s ✅ %s", step(3, "Validating settings"), describeRateLimit(cfg.API.RateLimit)))

		timeout := cfg.API.ConnectTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		if addr, err := probeRegistry(ctx, cfg.API.BaseURL, timeout); err != nil {
			log.Warn(fmt.Sprintf("%s ⚠️  %v", step(4, "Reaching registry"), err))
			healthy = false
		} else {
			log.Info(fmt.Sprintf("%s ✅ %s", step(4, "Reaching registry"), addr))
		}

		log.Info(fmt.Sprintf("%s %s", step(5, "Checking database"), describeStoreFile(cfg.Store)))

		db, err := openStore(ctx, cfg)
		if err != nil {
			log.Warn(fmt.Sprintf("%s ⚠️  cannot open store", step(6, "Checking journal")), zap.Error(err))
			healthy = false
		} else {
			count, countErr := db.CountSubmissions(ctx)
			if countErr != nil {
				log.Warn(fmt.Sprintf("%s ⚠️  cannot read journal", step(6, "Checking journal")), zap.Error(countErr))
				healthy = false
			} else {
				log.Info(fmt.Sprintf("%s ✅ %d submissions recorded", step(6, "Checking journal"), count))
			}
			_ = db.Close()
		}

		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			log.Info(fmt.Sprintf("%s ➖ not configured (quota is per process)", step(7, "Checking shared quota")))
		} else if err := pingRedis(ctx, cfg.Redis); err != nil {
			log.Warn(fmt.Sprintf("%s ⚠️  %s: %v", step(7, "Checking shared quota"), cfg.Redis.Addr, err))
			healthy = false
		} else {
			log.Info(fmt.Sprintf("%s ✅ %s", step(7, "Checking shared quota"), cfg.Redis.Addr))
		}

		log.Info("")
		if healthy {
			log.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", appIdentity.BinaryName))
		} else {
			log.Warn("⚠️  Some checks failed. Review the output above for details.")
		}
		return nil
	},
}

var (
	doctorInitForce   bool
	doctorResetConfig bool
	doctorResetData   bool
	doctorResetAll    bool
)

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}

		if _, err := os.Stat(configPath); err == nil && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}

		content, err := buildInitConfig()
		if err != nil {
			return err
		}

		if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		if err := os.WriteFile(configPath, content, 0o644); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}

		observability.CLILogger.Info("Config initialized", zap.String("path", configPath))
		return nil
	},
}

var doctorResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset user configuration and/or data",
	RunE: func(cmd *cobra.Command, args []string) error {
		if doctorResetAll {
			doctorResetConfig = true
			doctorResetData = true
		}

		if !doctorResetConfig && !doctorResetData {
			return fmt.Errorf("specify --config, --data, or --all")
		}

		if doctorResetConfig {
			if err := removeIfPresent("Config", config.DefaultConfigPath()); err != nil {
				return err
			}
		}

		if doctorResetData {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Store.URL != "" {
				return fmt.Errorf("remote store configured; database reset is not supported")
			}
			absPath, _ := filepath.Abs(cfg.Store.Path)
			if err := removeIfPresent("Database", absPath); err != nil {
				return err
			}
		}

		return nil
	},
}

var doctorValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the current config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if cfgFile != "" {
			configPath = cfgFile
		}
		if _, err := os.Stat(configPath); err != nil {
			return fmt.Errorf("config file not found: %s: %w", configPath, err)
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		observability.CLILogger.Info("Config is valid", zap.String("path", configPath))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.AddCommand(doctorInitCmd)
	doctorCmd.AddCommand(doctorResetCmd)
	doctorCmd.AddCommand(doctorValidateCmd)

	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "overwrite existing config file")

	doctorResetCmd.Flags().BoolVar(&doctorResetConfig, "config", false, "remove user config file")
	doctorResetCmd.Flags().BoolVar(&doctorResetData, "data", false, "remove local database")
	doctorResetCmd.Flags().BoolVar(&doctorResetAll, "all", false, "remove config and data")
}

// probeRegistry dials the registry host without sending a request, so no
// quota is spent.
func probeRegistry(ctx context.Context, baseURL string, timeout time.Duration) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("invalid base url %q", baseURL)
	}

	port := parsed.Port()
	if port == "" {
		port = "443"
		if parsed.Scheme == "http" {
			port = "80"
		}
	}
	addr := net.JoinHostPort(parsed.Hostname(), port)

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return addr, fmt.Errorf("dial %s: %w", addr, err)
	}
	_ = conn.Close()
	return addr, nil
}

func pingRedis(ctx context.Context, cfg config.RedisConfig) error {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	defer rdb.Close() // nolint:errcheck // best effort

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return rdb.Ping(pingCtx).Err()
}

func describeRateLimit(limit config.RateLimitConfig) string {
	if !limit.Enabled {
		return "rate limiting disabled"
	}
	return fmt.Sprintf("%d call(s) per %s", limit.Amount, limit.Unit)
}

func describeStoreFile(cfg config.StoreConfig) string {
	if cfg.URL != "" {
		return fmt.Sprintf("✅ %s (remote)", cfg.URL)
	}
	absPath, _ := filepath.Abs(cfg.Path)
	info, err := os.Stat(absPath)
	switch {
	case err == nil:
		return fmt.Sprintf("✅ %s (%s)", absPath, formatFileSize(info.Size()))
	case os.IsNotExist(err):
		return fmt.Sprintf("➖ %s (not created yet)", absPath)
	default:
		return fmt.Sprintf("⚠️  %s (error: %v)", absPath, err)
	}
}

func removeIfPresent(label, path string) error {
	if path == "" {
		observability.CLILogger.Warn(label + " path not resolved; skipping")
		return nil
	}
	err := os.Remove(path)
	switch {
	case err == nil:
		observability.CLILogger.Info(label+" removed", zap.String("path", path))
	case os.IsNotExist(err):
		observability.CLILogger.Info(label+" already removed", zap.String("path", path))
	default:
		return fmt.Errorf("remove %s: %w", strings.ToLower(label), err)
	}
	return nil
}

// formatFileSize returns a human-readable file size
func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

// initConfigFile is the subset of settings written by doctor init.
type initConfigFile struct {
	API struct {
		BaseURL        string `yaml:"base_url"`
		ConnectTimeout string `yaml:"connect_timeout"`
		ReadTimeout    string `yaml:"read_timeout"`
		RateLimit      struct {
			Enabled bool   `yaml:"enabled"`
			Unit    string `yaml:"unit"`
			Amount  int    `yaml:"amount"`
		} `yaml:"rate_limit"`
	} `yaml:"api"`
	Store struct {
		Journal bool `yaml:"journal"`
	} `yaml:"store"`
	Workers int `yaml:"workers"`
}

func buildInitConfig() ([]byte, error) {
	var file initConfigFile
	file.API.BaseURL = client.DefaultBaseURL
	file.API.ConnectTimeout = "10s"
	file.API.ReadTimeout = "30s"
	file.API.RateLimit.Enabled = true
	file.API.RateLimit.Unit = "second"
	file.API.RateLimit.Amount = 1
	file.Store.Journal = true
	file.Workers = 4

	body, err := yaml.Marshal(&file)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	header := fmt.Sprintf("# %s config - created by '%s doctor init'\n", appIdentity.BinaryName, appIdentity.BinaryName)
	return append([]byte(header), body...), nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
