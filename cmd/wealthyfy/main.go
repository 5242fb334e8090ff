package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version set via ldflags during build
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "wealthyfy",
	Short: "Account aggregation onboarding server",
	Long: `wealthyfy serves the account-setup wizard: PAN and mobile
verification, OTP confirmation, bank consent linking, and realtime
completion events pushed to the browser. Drafts persist across
restarts in an embedded JetStream key-value bucket.`,
	Version: version,
}

func main() {
	rootCmd.AddCommand(serveCmd, initCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
