package cmd

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/docgate/docgate/internal/config"
	"github.com/docgate/docgate/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, effective configuration, and version information.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := observability.CLILogger
		version := crucible.GetVersion()

		log.Info("=== " + appIdentity.BinaryName + " environment ===")
		log.Info("")

		log.Info("Application:")
		log.Info("  Name:       " + appIdentity.BinaryName)
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Built:      " + versionInfo.BuildDate)
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("")

		log.Info("Runtime:")
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		log.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		log.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		log.Info("")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		for _, line := range describeConfig(cfg, viper.ConfigFileUsed()) {
			log.Info(line)
		}
		log.Info("")
		log.Info("Environment:")
		for _, name := range []string{
			config.EnvPrefix + "_API_BASE_URL",
			config.EnvPrefix + "_STORE_AUTH_TOKEN",
			config.EnvPrefix + "_REDIS_PASSWORD",
			config.EnvPrefix + "_ADMIN_TOKEN",
		} {
			log.Info(fmt.Sprintf("  %s: %s", name, envStatus(name)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}

// describeConfig renders the effective settings. Secrets are reported as
// set or unset only.
func describeConfig(cfg *config.Config, configFile string) []string {
	if strings.TrimSpace(configFile) == "" {
		configFile = config.DefaultConfigPath() + " (not loaded)"
	}

	store := cfg.Store.Path
	if cfg.Store.URL != "" {
		store = cfg.Store.URL + " (remote)"
	}

	quota := "in-process"
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		quota = fmt.Sprintf("redis %s (prefix %s)", cfg.Redis.Addr, cfg.Redis.Prefix)
	}

	return []string{
		"Configuration:",
		"  Config File:     " + configFile,
		"  Registry:        " + cfg.API.BaseURL,
		"  Connect Timeout: " + cfg.API.ConnectTimeout.String(),
		"  Read Timeout:    " + cfg.API.ReadTimeout.String(),
		"  Rate Limit:      " + describeRateLimit(cfg.API.RateLimit),
		"  Quota:           " + quota,
		fmt.Sprintf("  Workers:         %d", cfg.Workers),
		"  Store:           " + store,
		fmt.Sprintf("  Journal:         %t", cfg.Store.Journal),
		fmt.Sprintf("  Server:          %s:%d", cfg.Server.Host, cfg.Server.Port),
		fmt.Sprintf("  Metrics:         %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port),
		"  Log Level:       " + cfg.Logging.Level,
		"  Log Profile:     " + cfg.Logging.Profile,
	}
}

func envStatus(name string) string {
	if strings.TrimSpace(os.Getenv(name)) != "" {
		return "(set)"
	}
	return "(not set)"
}
