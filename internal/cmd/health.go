package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/docgate/docgate/internal/errors"
	"github.com/docgate/docgate/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify the binary can start: version information, logging and a buildable client configuration. No network calls are made.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := observability.CLILogger
		log.Info("Running health check...")

		if versionInfo.Version == "" {
			log.Error("❌ FAIL: Version information missing")
			return errwrap.NewConfigInvalidError("Version information missing")
		}
		log.Debug("Version check passed", zap.String("version", versionInfo.Version))
		log.Info("✅ Version information available")

		cfg, err := loadConfig(cmd)
		if err != nil {
			log.Error("❌ FAIL: Configuration could not be loaded", zap.Error(err))
			return err
		}
		if err := cfg.Validate(); err != nil {
			log.Error("❌ FAIL: Client configuration is invalid", zap.Error(err))
			return err
		}
		log.Info("✅ Client configuration valid", zap.String("base_url", cfg.API.BaseURL))

		log.Info("")
		log.Info("✅ All health checks passed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
