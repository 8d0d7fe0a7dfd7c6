package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"workbench-hq/keywarden/pkg/cli"
	"workbench-hq/keywarden/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file and report every problem found.

Checks tier names against the closed tier set, limit positivity, the
escalation ladder, storage and audit backend settings, and logging
options. All field errors are reported in one pass.

Examples:
  keywarden validate
  keywarden validate --config /etc/keywarden/config.yaml`,
	RunE: validateRun,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			fmt.Printf("✗ %s is invalid:\n", cfgFile)
			for _, fe := range verr.Errors {
				fmt.Printf("  - %s: %s\n", fe.Field, fe.Message)
			}
			return cli.NewCommandError("validate",
				fmt.Errorf("%d problem(s) found", len(verr.Errors)))
		}
		return cli.NewConfigError("", err.Error())
	}

	fmt.Printf("✓ %s is valid\n", cfgFile)
	fmt.Println()
	fmt.Printf("Tiers:           %d configured\n", len(cfg.Pool.Tiers))
	fmt.Printf("Escalation:      %d steps, hard block %s after %d strikes\n",
		len(cfg.Pool.Escalation.Steps), cfg.Pool.Escalation.HardBlock, cfg.Pool.Escalation.MaxStrikes)
	fmt.Printf("Storage:         %s", cfg.Storage.Backend)
	if cfg.Storage.Backend == "sqlite" {
		fmt.Printf(" (%s)", cfg.Storage.SQLite.Path)
	}
	fmt.Println()
	if cfg.Audit.Enabled {
		fmt.Printf("Audit:           %s", cfg.Audit.Backend)
		if cfg.Audit.Backend == "sqlite" {
			fmt.Printf(" (%s)", cfg.Audit.SQLite.Path)
		}
		fmt.Println()
	} else {
		fmt.Println("Audit:           disabled")
	}
	if cfg.Refresh.Enabled {
		fmt.Printf("Refresh:         %s", cfg.Refresh.Schedule)
		if cfg.Refresh.Watch {
			fmt.Print(" + file watch")
		}
		fmt.Println()
	} else if cfg.Refresh.Watch {
		fmt.Println("Refresh:         file watch only")
	} else {
		fmt.Println("Refresh:         disabled")
	}
	fmt.Printf("Logging:         %s/%s\n", cfg.Logging.Level, cfg.Logging.Format)

	return nil
}
