package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"workbench-hq/keywarden/pkg/audit"
	"workbench-hq/keywarden/pkg/cli"
)

var auditFlags struct {
	key    string
	kind   string
	since  string
	until  string
	limit  int
	output string
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the pool journal",
	Long: `Query the journal of pool events: checkouts, misses, usage,
failures, retirements, and refreshes.

Events are returned newest first. Time bounds accept either a relative
duration ("90m", "24h") or an absolute RFC 3339 timestamp.

Examples:
  # The last 100 events
  keywarden audit list

  # Strikes in the last hour
  keywarden audit list --kind failure --since 1h

  # Everything one key did, as JSON
  keywarden audit list --key prod-1 --output json`,
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journal events",
	Long:  `List journal events, newest first, optionally filtered by key, kind, and time.`,
	RunE:  auditListRun,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)

	auditListCmd.Flags().StringVar(&auditFlags.key, "key", "", "filter by key ID")
	auditListCmd.Flags().StringVar(&auditFlags.kind, "kind", "", "filter by event kind")
	auditListCmd.Flags().StringVar(&auditFlags.since, "since", "", "events after this duration ago or RFC 3339 time")
	auditListCmd.Flags().StringVar(&auditFlags.until, "until", "", "events before this duration ago or RFC 3339 time")
	auditListCmd.Flags().IntVar(&auditFlags.limit, "limit", 0, "result cap (0 = default 100)")
	auditListCmd.Flags().StringVarP(&auditFlags.output, "output", "o", "text", "output format: text, json, csv")
}

// auditListing is one row of audit list output.
type auditListing struct {
	Time    string `json:"time"`
	Kind    string `json:"kind"`
	KeyID   string `json:"key_id,omitempty"`
	Tier    string `json:"tier,omitempty"`
	Tokens  int    `json:"tokens,omitempty"`
	Strikes int    `json:"strikes,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

func auditListRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	filter, err := buildAuditFilter(time.Now())
	if err != nil {
		return err
	}

	store, err := openAuditStore(cfg)
	if err != nil {
		return cli.NewCommandError("audit list", err)
	}
	defer store.Close()

	events, err := store.Query(context.Background(), filter)
	if err != nil {
		return cli.NewCommandError("audit list", err)
	}

	listings := buildAuditListings(events)

	switch cli.OutputFormat(auditFlags.output) {
	case cli.FormatJSON:
		formatter := &cli.JSONFormatter{Indent: true}
		return formatter.FormatTo(os.Stdout, listings)
	case cli.FormatCSV:
		formatter := &cli.CSVFormatter{
			Headers: []string{"time", "kind", "key_id", "tier", "tokens", "strikes", "detail"},
		}
		csvRows := make([][]string, 0, len(listings))
		for _, l := range listings {
			csvRows = append(csvRows, []string{
				l.Time, l.Kind, l.KeyID, l.Tier,
				fmt.Sprintf("%d", l.Tokens), fmt.Sprintf("%d", l.Strikes), l.Detail,
			})
		}
		return formatter.FormatTo(os.Stdout, csvRows)
	default:
		printAuditListings(listings)
		return nil
	}
}

// buildAuditListings converts journal events to display rows,
// preserving the store's newest-first order.
func buildAuditListings(events []audit.Event) []auditListing {
	listings := make([]auditListing, 0, len(events))
	for _, e := range events {
		listings = append(listings, auditListing{
			Time:    e.Time.UTC().Format(time.RFC3339),
			Kind:    string(e.Kind),
			KeyID:   e.KeyID,
			Tier:    e.Tier,
			Tokens:  e.Tokens,
			Strikes: e.Strikes,
			Detail:  e.Detail,
		})
	}
	return listings
}

// buildAuditFilter validates the list flags and assembles the query
// filter.
func buildAuditFilter(now time.Time) (audit.Filter, error) {
	filter := audit.Filter{
		KeyID: auditFlags.key,
		Limit: auditFlags.limit,
	}

	if auditFlags.kind != "" {
		kind, err := parseAuditKind(auditFlags.kind)
		if err != nil {
			return audit.Filter{}, err
		}
		filter.Kind = kind
	}

	if auditFlags.since != "" {
		t, err := parseTimeBound(auditFlags.since, now)
		if err != nil {
			return audit.Filter{}, cli.NewUsageError("invalid --since %q: %v", auditFlags.since, err)
		}
		filter.Since = t
	}
	if auditFlags.until != "" {
		t, err := parseTimeBound(auditFlags.until, now)
		if err != nil {
			return audit.Filter{}, cli.NewUsageError("invalid --until %q: %v", auditFlags.until, err)
		}
		filter.Until = t
	}

	return filter, nil
}

// parseAuditKind maps a flag value to an event kind.
func parseAuditKind(s string) (audit.Kind, error) {
	switch kind := audit.Kind(s); kind {
	case audit.KindCheckout, audit.KindCheckoutMiss, audit.KindUsage,
		audit.KindInfoFailure, audit.KindFailure, audit.KindFatal, audit.KindRefresh:
		return kind, nil
	default:
		return "", cli.NewUsageError(
			"unknown kind %q (valid: checkout, checkout_miss, usage, info_failure, failure, fatal, refresh)", s)
	}
}

// parseTimeBound reads a duration ("1h" meaning that long ago) or an
// RFC 3339 timestamp.
func parseTimeBound(s string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("duration must be positive")
		}
		return now.Add(-d), nil
	}
	return time.Parse(time.RFC3339, s)
}

func printAuditListings(listings []auditListing) {
	if len(listings) == 0 {
		fmt.Println("No events found.")
		return
	}

	fmt.Printf("%-21s %-14s %-20s %-16s %-7s %-8s %s\n",
		"TIME", "KIND", "KEY", "TIER", "TOKENS", "STRIKES", "DETAIL")
	for _, l := range listings {
		key := l.KeyID
		if key == "" {
			key = "-"
		}
		tier := l.Tier
		if tier == "" {
			tier = "-"
		}
		fmt.Printf("%-21s %-14s %-20s %-16s %-7d %-8d %s\n",
			l.Time, l.Kind, key, tier, l.Tokens, l.Strikes, l.Detail)
	}
	fmt.Println()
	fmt.Printf("%d events\n", len(listings))
}
