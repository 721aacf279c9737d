package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"meshbase/internal/ingest"
	"meshbase/internal/printer"
)

var runReplayFile string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Record mesh traffic into Redis",
	Long: `Record mesh traffic into Redis.

Reads decoded packet JSON (one object per line) and pushes each packet through
the ingestion pipeline: receive callback, in-memory queue, dispatcher,
normalizer, append-only store. By default packets are read from stdin; --replay
reads a capture file instead.

On SIGINT/SIGTERM the dispatcher drains the queue before exiting so already
received packets are not lost.

Examples:
  # Pipe a live decoder into the recorder
  mesh-decoder --json | meshbase run

  # Replay a captured session
  meshbase run --replay session.jsonl`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runReplayFile, "replay", "", "Read packets from a capture file instead of stdin")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, log, store, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		return printer.Error(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s:%d: %v", cfg.Redis.Host, cfg.Redis.Port, err),
			[]string{"Check that Redis is running and the redis section of the config is correct"},
		)
	}
	if err := store.InitBroadcastNode(ctx); err != nil {
		return fmt.Errorf("failed to seed node directory: %w", err)
	}

	var metrics *ingest.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metrics = ingest.NewMetrics(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Str("addr", cfg.Metrics.Addr).Msg("metrics server failed")
			}
		}()
		defer srv.Close()
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics server listening")
	}

	queue := ingest.NewQueue(cfg.Queue.Size)
	bridge := ingest.NewBridge(queue, log, metrics)
	dispatcher := ingest.NewDispatcher(queue, store, log, metrics, ingest.DispatcherOptions{
		Heartbeat:    cfg.Heartbeat,
		DrainTimeout: cfg.DrainTimeout,
	})

	// Packet source: a capture file, or a live decoder on stdin.
	var source *os.File
	if runReplayFile != "" {
		source, err = os.Open(runReplayFile)
		if err != nil {
			return fmt.Errorf("failed to open replay file: %w", err)
		}
		defer source.Close()
	} else {
		source = os.Stdin
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	dispatchErr := make(chan error, 1)
	go func() {
		dispatchErr <- dispatcher.Run(runCtx)
	}()

	sourceErr := make(chan error, 1)
	go func() {
		sourceErr <- ingest.Replay(runCtx, source, bridge, log)
	}()

	log.Info().Str("instance", cfg.Instance).Msg("recorder started")

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down, draining queue")
		cancel()
	case err := <-sourceErr:
		if err != nil {
			log.Error().Err(err).Msg("packet source failed")
		} else {
			log.Info().Msg("packet source exhausted, draining queue")
		}
		cancel()
	case err := <-dispatchErr:
		// Dispatcher stopping without a cancelled context is a fault.
		if err != nil {
			return fmt.Errorf("dispatcher failed: %w", err)
		}
		return nil
	}

	if err := <-dispatchErr; err != nil {
		return fmt.Errorf("shutdown incomplete: %w", err)
	}
	log.Info().Msg("recorder stopped")
	return nil
}
