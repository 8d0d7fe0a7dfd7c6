package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "keywarden",
	Short: "Keywarden - API key pool with quota-aware admission control",
	Long: `Keywarden manages a pool of third-party API keys grouped into
capability tiers, handing out exclusive leases to concurrent workers
while enforcing each key's quota envelope.

It provides:
  - Per-key request and token quotas over rolling minute and UTC-day windows
  - Exclusive checkout/checkin leases (no key used by two workers at once)
  - Escalating cooldowns for keys that hit provider failures
  - Session-scoped retirement of keys the provider rejects outright
  - A persistent key store (SQLite) and an append-only event journal

For more information, visit: https://github.com/workbench-hq/keywarden`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format override: json, text")

	rootCmd.CompletionOptions.DisableDefaultCmd = false
}
