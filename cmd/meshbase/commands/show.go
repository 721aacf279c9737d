package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"meshbase/internal/display"
	"meshbase/internal/printer"
	"meshbase/pkg/meshrecord"
)

var (
	showLimit    int
	showCategory string
)

// categoryTitles maps each category to its listing heading.
var categoryTitles = map[meshrecord.Category]string{
	meshrecord.CategoryMessages:             "Messages",
	meshrecord.CategoryNodes:                "Nodes",
	meshrecord.CategoryDeviceTelemetry:      "Device telemetry",
	meshrecord.CategoryNetworkTelemetry:     "Network telemetry",
	meshrecord.CategoryEnvironmentTelemetry: "Environment telemetry",
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show recorded mesh traffic",
	Long: `Show recorded mesh traffic, newest first.

Lists the most recent records of each category. Message endpoints are resolved
to node display names through the node directory at read time.

Examples:
  # Latest 20 records of every category
  meshbase show

  # Only messages, latest 50
  meshbase show --category messages --limit 50`,
	RunE: runShow,
}

func init() {
	showCmd.Flags().IntVarP(&showLimit, "limit", "l", 20, "Maximum records per category (0 = all)")
	showCmd.Flags().StringVar(&showCategory, "category", "", "Restrict to one category")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	_, log, store, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()

	cats := meshrecord.AllCategories
	if showCategory != "" {
		cat := meshrecord.Category(showCategory)
		if err := cat.Validate(); err != nil {
			return printer.Error(
				"unknown category",
				fmt.Sprintf("%v", err),
				[]string{"Valid categories: messages, nodes, device_telemetry, network_telemetry, environment_telemetry"},
			)
		}
		cats = []meshrecord.Category{cat}
	}

	names, err := store.NodeNames(ctx)
	if err != nil {
		return err
	}
	formatter := display.NewFormatter(log).WithNames(names)

	for _, cat := range cats {
		total, err := store.Length(ctx, cat)
		if err != nil {
			return err
		}
		entries, err := store.Load(ctx, cat, showLimit)
		if err != nil {
			return err
		}

		printer.Header("%s (%d of %d)", categoryTitles[cat], len(entries), total)
		if len(entries) == 0 {
			printer.Println("  (none)")
			continue
		}
		for _, raw := range entries {
			if line := formatter.Line(cat, raw); line != "" {
				printer.Println(" ", line)
			}
		}
	}
	return nil
}
