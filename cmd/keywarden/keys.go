package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"workbench-hq/keywarden/pkg/cli"
	"workbench-hq/keywarden/pkg/keypool"
	"workbench-hq/keywarden/pkg/keypool/storage"
	"workbench-hq/keywarden/pkg/telemetry/logging"
)

var keysFlags struct {
	tier     string
	output   string
	id       string
	secret   string
	priority int
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the key store",
	Long: `Inspect and administer the persistent key store.

Secrets are never printed in full: listings show only the last four
characters of each credential.

Subcommands:
  list   - List keys with tier, priority, and penalty state
  add    - Add a key to the store
  remove - Remove a key from the store
  reset  - Clear a key's strikes and cooldown

Examples:
  # List all keys
  keywarden keys list

  # List pro-tier keys as JSON
  keywarden keys list --tier pro --output json

  # Add a key
  keywarden keys add --id prod-1 --secret "$API_KEY" --tier pro --priority 1

  # Clear penalties after rotating a credential upstream
  keywarden keys reset prod-1`,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List keys",
	Long:  `List keys in the store with tier, priority, strikes, and cooldown state.`,
	RunE:  listKeysRun,
}

var keysAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a key",
	Long: `Add a key to the store.

The id names the key in listings and logs; the secret is the
credential handed to workers at checkout. Lower priority values are
tried first.`,
	RunE: addKeyRun,
}

var keysRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a key",
	Long: `Remove a key from the store.

A pool serving this key keeps its in-memory entry until its next
refresh; a worker holding a lease on it settles normally.`,
	Args: cobra.ExactArgs(1),
	RunE: removeKeyRun,
}

var keysResetCmd = &cobra.Command{
	Use:   "reset <id>",
	Short: "Clear a key's strikes and cooldown",
	Long: `Clear a key's persisted strikes and cooldown.

Use after resolving the upstream problem (quota raised, credential
rotated). Running pools pick the reset up on their next refresh.`,
	Args: cobra.ExactArgs(1),
	RunE: resetKeyRun,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysListCmd, keysAddCmd, keysRemoveCmd, keysResetCmd)

	keysListCmd.Flags().StringVar(&keysFlags.tier, "tier", "", "filter by tier")
	keysListCmd.Flags().StringVarP(&keysFlags.output, "output", "o", "text", "output format: text, json, csv")

	keysAddCmd.Flags().StringVar(&keysFlags.id, "id", "", "key ID (auto-generated if empty)")
	keysAddCmd.Flags().StringVar(&keysFlags.secret, "secret", "", "credential string (required)")
	keysAddCmd.Flags().StringVar(&keysFlags.tier, "tier", "flash", "capability tier")
	keysAddCmd.Flags().IntVar(&keysFlags.priority, "priority", 1, "checkout priority (lower first)")
	_ = keysAddCmd.MarkFlagRequired("secret")
}

// keyListing is one row of keys list output. The secret appears only
// as its last-4 suffix.
type keyListing struct {
	ID            string `json:"id"`
	Tier          string `json:"tier"`
	Priority      int    `json:"priority"`
	Strikes       int    `json:"strikes"`
	State         string `json:"state"`
	CooldownUntil string `json:"cooldown_until,omitempty"`
	SecretSuffix  string `json:"secret_suffix"`
}

func listKeysRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var tierFilter keypool.Tier
	if keysFlags.tier != "" {
		tierFilter, err = keypool.ParseTier(keysFlags.tier)
		if err != nil {
			return cli.NewUsageError("unknown tier %q (valid: pro, flash, flash-lite-free)", keysFlags.tier)
		}
	}

	store, err := openKeyStore(cfg)
	if err != nil {
		return cli.NewCommandError("keys list", err)
	}
	defer store.Close()

	rows, err := store.LoadAll(context.Background())
	if err != nil {
		return cli.NewCommandError("keys list", err)
	}

	listings := buildListings(rows, tierFilter, time.Now())

	switch cli.OutputFormat(keysFlags.output) {
	case cli.FormatJSON:
		formatter := &cli.JSONFormatter{Indent: true}
		return formatter.FormatTo(os.Stdout, listings)
	case cli.FormatCSV:
		formatter := &cli.CSVFormatter{
			Headers: []string{"id", "tier", "priority", "strikes", "state", "cooldown_until", "secret_suffix"},
		}
		csvRows := make([][]string, 0, len(listings))
		for _, l := range listings {
			csvRows = append(csvRows, []string{
				l.ID, l.Tier, fmt.Sprintf("%d", l.Priority), fmt.Sprintf("%d", l.Strikes),
				l.State, l.CooldownUntil, l.SecretSuffix,
			})
		}
		return formatter.FormatTo(os.Stdout, csvRows)
	default:
		printListings(listings)
		return nil
	}
}

// buildListings converts store rows to display rows, sorted by tier
// then priority then id. State here reflects persisted penalties only;
// live pools additionally track holds and session retirement.
func buildListings(rows []storage.KeyRow, tierFilter keypool.Tier, now time.Time) []keyListing {
	listings := make([]keyListing, 0, len(rows))
	for _, row := range rows {
		if tierFilter != "" && row.Tier != tierFilter.String() {
			continue
		}

		state := "available"
		cooldown := ""
		if row.CooldownUntil.After(now) {
			state = "cooling"
			cooldown = row.CooldownUntil.UTC().Format(time.RFC3339)
		}

		listings = append(listings, keyListing{
			ID:            row.ID,
			Tier:          row.Tier,
			Priority:      row.Priority,
			Strikes:       row.Strikes,
			State:         state,
			CooldownUntil: cooldown,
			SecretSuffix:  logging.KeySuffix(row.Secret),
		})
	}

	sort.Slice(listings, func(i, j int) bool {
		if listings[i].Tier != listings[j].Tier {
			return listings[i].Tier < listings[j].Tier
		}
		if listings[i].Priority != listings[j].Priority {
			return listings[i].Priority < listings[j].Priority
		}
		return listings[i].ID < listings[j].ID
	})
	return listings
}

func printListings(listings []keyListing) {
	if len(listings) == 0 {
		fmt.Println("No keys found.")
		return
	}

	fmt.Printf("%-20s %-16s %-9s %-8s %-10s %-21s %s\n",
		"ID", "TIER", "PRIORITY", "STRIKES", "STATE", "COOLDOWN UNTIL", "SECRET")
	for _, l := range listings {
		cooldown := l.CooldownUntil
		if cooldown == "" {
			cooldown = "-"
		}
		fmt.Printf("%-20s %-16s %-9d %-8d %-10s %-21s %s\n",
			l.ID, l.Tier, l.Priority, l.Strikes, l.State, cooldown, l.SecretSuffix)
	}
	fmt.Println()
	fmt.Printf("%d keys\n", len(listings))
}

func addKeyRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	tier, err := keypool.ParseTier(keysFlags.tier)
	if err != nil {
		return cli.NewUsageError("unknown tier %q (valid: pro, flash, flash-lite-free)", keysFlags.tier)
	}

	id := keysFlags.id
	if id == "" {
		id = fmt.Sprintf("key-%d", time.Now().Unix())
	}

	store, err := openKeyStore(cfg)
	if err != nil {
		return cli.NewCommandError("keys add", err)
	}
	defer store.Close()

	row := storage.KeyRow{
		ID:       id,
		Secret:   keysFlags.secret,
		Tier:     tier.String(),
		Priority: keysFlags.priority,
	}
	if err := store.InsertKey(context.Background(), row); err != nil {
		return cli.NewCommandError("keys add", err)
	}

	fmt.Printf("✓ Key added: %s (tier=%s, priority=%d, secret=%s)\n",
		id, tier, keysFlags.priority, logging.KeySuffix(keysFlags.secret))
	fmt.Println()
	fmt.Println("Running pools pick the key up on their next refresh.")
	return nil
}

func removeKeyRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store, err := openKeyStore(cfg)
	if err != nil {
		return cli.NewCommandError("keys remove", err)
	}
	defer store.Close()

	if err := store.RemoveKey(context.Background(), args[0]); err != nil {
		return cli.NewCommandError("keys remove", err)
	}

	fmt.Printf("✓ Key removed: %s\n", args[0])
	return nil
}

func resetKeyRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store, err := openKeyStore(cfg)
	if err != nil {
		return cli.NewCommandError("keys reset", err)
	}
	defer store.Close()

	if err := store.ResetPenalty(context.Background(), args[0]); err != nil {
		return cli.NewCommandError("keys reset", err)
	}

	fmt.Printf("✓ Penalties cleared: %s\n", args[0])
	return nil
}
