package cmd

import (
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/docgate/docgate/internal/config"
	"github.com/docgate/docgate/internal/core/invoker"
	"github.com/docgate/docgate/internal/observability"
)

var (
	cfgFile   string
	verbose   bool
	traceFile string

	stopTracing func()

	appIdentity = &appidentity.Identity{
		BinaryName:  config.AppName,
		EnvPrefix:   config.EnvPrefix + "_",
		ConfigName:  config.AppName,
		Description: "Rate-limited client and relay for the document registry API",
	}

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the application identity.
func GetAppIdentity() *appidentity.Identity {
	return appIdentity
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   appIdentity.BinaryName,
	Short: appIdentity.Description,
	Long: fmt.Sprintf(`%s - %s

Documents are submitted one call at a time through a shared quota: at most
api.rate_limit.amount calls per api.rate_limit.unit, across every command,
worker and relay caller in the process.`, appIdentity.BinaryName, appIdentity.Description),
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if stopTracing != nil {
			stopTracing()
			stopTracing = nil
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Disable global telemetry early so one-shot commands never emit metrics
	// to stdout. serve initializes the Prometheus exporter later.
	disabledConfig := &telemetry.Config{Enabled: false}
	if sys, err := telemetry.NewSystem(disabledConfig); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", appIdentity.ConfigName))
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	flags.StringVar(&traceFile, "trace", "", "trace registry requests/responses to NDJSON file")
	flags.String("base-url", "", "registry API base URL")
	flags.String("rate-unit", "", "rate limit window: second|minute|hour|day or a duration like 500ms")
	flags.Int("rate-amount", 0, "maximum calls per rate limit window")
	flags.Bool("no-rate-limit", false, "disable client-side rate limiting")

	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = viper.BindPFlag("api.base_url", flags.Lookup("base-url"))
	_ = viper.BindPFlag("api.rate_limit.unit", flags.Lookup("rate-unit"))
	_ = viper.BindPFlag("api.rate_limit.amount", flags.Lookup("rate-amount"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	observability.InitCLILogger(appIdentity.BinaryName, verbose)

	if traceFile != "" {
		cleanup, err := invoker.EnableTracing(traceFile)
		if err != nil {
			observability.CLILogger.Warn("Failed to enable tracing", zap.Error(err))
		} else {
			observability.CLILogger.Debug("Registry tracing enabled", zap.String("file", traceFile))
			stopTracing = cleanup
		}
	}

	v := viper.GetViper()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if dir := config.DefaultConfigDir(); dir != "" {
			v.AddConfigPath(dir)
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Could not find home directory", err)
			}
			v.AddConfigPath(home)
		}
		v.AddConfigPath("./config")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	config.BindEnv(v)
	config.SetDefaults(v)

	if err := v.ReadInConfig(); err == nil {
		observability.CLILogger.Debug("Using config file", zap.String("path", v.ConfigFileUsed()))
	} else {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			observability.CLILogger.Debug("No config file found, using defaults and environment variables")
		} else if cfgFile != "" {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Failed to read config file", err)
		} else {
			observability.CLILogger.Warn("Error reading config file", zap.Error(err))
		}
	}
}

// loadConfig decodes the merged flag, env and file settings.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if cmd != nil {
		if off, _ := cmd.Flags().GetBool("no-rate-limit"); off {
			cfg.API.RateLimit.Enabled = false
		}
	}
	return cfg, nil
}
