package cmd

import "github.com/spf13/cobra"

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Inspect and clear recorded quota windows",
	Long: `Inspect and clear recorded quota windows.

Every closed window of the in-process quota is recorded per endpoint, so
list shows how much of the last window each endpoint used.`,
}

func init() {
	rateLimitCmd.AddCommand(rateLimitListCmd)
	rateLimitCmd.AddCommand(rateLimitResetCmd)
	rootCmd.AddCommand(rateLimitCmd)
}
