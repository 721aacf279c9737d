package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"meshbase/internal/printer"
	"meshbase/internal/timespec"
	"meshbase/pkg/meshstore"
)

var (
	cleanupDays      int
	cleanupBefore    string
	cleanupCorrupted bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove old or corrupted records",
	Long: `Remove old or corrupted records from the store.

--days removes records older than the given number of days (defaults to the
configured retention). --before removes records older than an absolute cutoff,
given as a duration ("72h" = 72 hours ago) or an RFC3339 timestamp.
--corrupted removes records missing required fields.

Run this while no recorder is active against the same instance: cleanup
rewrites category lists and must not race an appender.

Examples:
  # Apply the configured retention
  meshbase cleanup

  # Remove everything older than a week
  meshbase cleanup --days 7

  # Remove everything before a fixed point in time
  meshbase cleanup --before 2026-08-01T00:00:00Z

  # Drop records that no longer parse
  meshbase cleanup --corrupted`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "Remove records older than this many days (default: configured retention)")
	cleanupCmd.Flags().StringVar(&cleanupBefore, "before", "", "Remove records older than a duration or RFC3339 cutoff")
	cleanupCmd.Flags().BoolVar(&cleanupCorrupted, "corrupted", false, "Remove records missing required fields")
	cleanupCmd.MarkFlagsMutuallyExclusive("days", "before", "corrupted")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, _, store, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()

	if cleanupCorrupted {
		reports, err := store.CleanupCorrupted(ctx)
		if err != nil {
			return err
		}
		printReports(reports, "corrupted")
		printer.Success("corruption sweep complete\n")
		return nil
	}

	if cleanupBefore != "" {
		cutoff, err := timespec.Parse(cleanupBefore)
		if err != nil {
			return printer.Error(
				"invalid --before value",
				fmt.Sprintf("%v", err),
				[]string{"Use a duration like '72h' or an RFC3339 timestamp"},
			)
		}
		reports, err := store.CleanupBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		printReports(reports, "expired")
		printer.Success("cutoff sweep complete (before %s)\n", cutoff.Format("2006-01-02 15:04:05"))
		return nil
	}

	days := cleanupDays
	if days <= 0 {
		days = cfg.Retention.Days
	}
	reports, err := store.CleanupByAge(ctx, days)
	if err != nil {
		return err
	}
	printReports(reports, "expired")
	printer.Success("retention sweep complete (%d days)\n", days)
	return nil
}

func printReports(reports []meshstore.CleanupReport, removedLabel string) {
	for _, r := range reports {
		if r.Malformed > 0 {
			printer.Printf("%s: kept %d, removed %d %s, %d malformed\n", r.Category, r.Kept, r.Removed, removedLabel, r.Malformed)
			continue
		}
		printer.Printf("%s: kept %d, removed %d %s\n", r.Category, r.Kept, r.Removed, removedLabel)
	}
}
