package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"workbench-hq/keywarden/pkg/cli"
	"workbench-hq/keywarden/pkg/keypool"
)

var tiersFlags struct {
	output string
}

var tiersCmd = &cobra.Command{
	Use:   "tiers",
	Short: "Show tier limits and key counts",
	Long: `Show the quota envelope of each served tier together with how many
keys the store currently provides for it.

Counts reflect persisted penalty state: a key inside its cooldown
window is listed as cooling, everything else as available.

Examples:
  keywarden tiers
  keywarden tiers --output json`,
	RunE: tiersRun,
}

func init() {
	rootCmd.AddCommand(tiersCmd)

	tiersCmd.Flags().StringVarP(&tiersFlags.output, "output", "o", "text", "output format: text, json")
}

// tierSummary is one row of tiers output.
type tierSummary struct {
	Tier              string `json:"tier"`
	RequestsPerMinute int    `json:"requests_per_minute"`
	TokensPerMinute   int    `json:"tokens_per_minute"`
	RequestsPerDay    int    `json:"requests_per_day"`
	Keys              int    `json:"keys"`
	Available         int    `json:"available"`
	Cooling           int    `json:"cooling"`
}

func tiersRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store, err := openKeyStore(cfg)
	if err != nil {
		return cli.NewCommandError("tiers", err)
	}
	defer store.Close()

	pool, err := buildPool(cfg, store, nil, nil)
	if err != nil {
		return cli.NewCommandError("tiers", err)
	}
	defer pool.Close()

	tiers, err := buildTiers(cfg)
	if err != nil {
		return cli.NewCommandError("tiers", err)
	}

	statuses := pool.Snapshot()
	summaries := make([]tierSummary, 0, len(tiers))
	for _, tier := range keypool.AllTiers() {
		limits, served := tiers[tier]
		if !served {
			continue
		}

		s := tierSummary{
			Tier:              tier.String(),
			RequestsPerMinute: limits.RequestsPerMinute,
			TokensPerMinute:   limits.TokensPerMinute,
			RequestsPerDay:    limits.RequestsPerDay,
			Keys:              pool.TierKeyCount(tier),
		}
		for _, status := range statuses {
			if status.Tier != tier {
				continue
			}
			switch status.State {
			case keypool.StateAvailable:
				s.Available++
			case keypool.StateCooling:
				s.Cooling++
			}
		}
		summaries = append(summaries, s)
	}

	if cli.OutputFormat(tiersFlags.output) == cli.FormatJSON {
		formatter := &cli.JSONFormatter{Indent: true}
		return formatter.FormatTo(os.Stdout, summaries)
	}

	fmt.Printf("%-16s %-6s %-9s %-6s %-6s %-10s %s\n",
		"TIER", "RPM", "TPM", "RPD", "KEYS", "AVAILABLE", "COOLING")
	for _, s := range summaries {
		fmt.Printf("%-16s %-6d %-9d %-6d %-6d %-10d %d\n",
			s.Tier, s.RequestsPerMinute, s.TokensPerMinute, s.RequestsPerDay,
			s.Keys, s.Available, s.Cooling)
	}
	return nil
}
