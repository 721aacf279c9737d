package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"meshbase/internal/display"
	"meshbase/internal/printer"
	"meshbase/pkg/meshrecord"
)

var watchCategory string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream records as they are stored",
	Long: `Stream records as they are stored, via Redis Pub/Sub.

Each record appended by a running recorder is printed as it arrives. Delivery
is best effort: records stored while no watcher is attached are not replayed
(use 'meshbase show' for history).

Examples:
  # Watch everything
  meshbase watch

  # Watch only text messages
  meshbase watch --category messages`,
	RunE: runWatchCmd,
}

func init() {
	watchCmd.Flags().StringVar(&watchCategory, "category", "", "Restrict to one category")
	rootCmd.AddCommand(watchCmd)
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	_, log, store, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cats []meshrecord.Category
	if watchCategory != "" {
		cat := meshrecord.Category(watchCategory)
		if err := cat.Validate(); err != nil {
			return printer.Error(
				"unknown category",
				fmt.Sprintf("%v", err),
				[]string{"Valid categories: messages, nodes, device_telemetry, network_telemetry, environment_telemetry"},
			)
		}
		cats = append(cats, cat)
	}

	sub, err := store.SubscribeEvents(ctx, cats...)
	if err != nil {
		return err
	}
	defer sub.Close()

	names, err := store.NodeNames(ctx)
	if err != nil {
		return err
	}
	formatter := display.NewFormatter(log).WithNames(names)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	printer.Println("Watching for records... (Ctrl+C to stop)")
	for {
		select {
		case <-sigCh:
			return nil
		case err, ok := <-sub.Errors():
			if ok && err != nil {
				log.Warn().Err(err).Msg("subscription error")
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			// Node announcements update the directory, so refresh names
			// before resolving endpoints.
			if ev.Category == meshrecord.CategoryNodes {
				if updated, err := store.NodeNames(ctx); err == nil {
					names = updated
					formatter = formatter.WithNames(names)
				}
			}
			if line := formatter.Line(ev.Category, ev.Payload); line != "" {
				printer.Println(line)
			}
		}
	}
}
