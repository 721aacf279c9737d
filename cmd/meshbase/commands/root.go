package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"meshbase/internal/config"
	"meshbase/internal/logging"
	"meshbase/pkg/meshstore"
)

var (
	version string
	commit  string
	date    string

	configPath string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "meshbase",
	Short: "Meshbase - Meshtastic base station recorder",
	Long: `Meshbase records traffic from a Meshtastic mesh into Redis.

A connected radio's packets (text messages, node announcements and telemetry)
are normalized into typed records and appended to per-category lists, where
display front ends and maintenance commands read them back.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no subcommand is specified, show help
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (searches standard locations if omitted)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (trace, debug, info, warn, error)")
}

// setup loads the configuration and builds the logger and store shared by
// every subcommand. Caller must Close() the returned store.
func setup() (*config.Config, zerolog.Logger, *meshstore.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log := logging.New(cfg.Log.Level, nil)

	store, err := meshstore.New(cfg.RedisOptions(), cfg.Instance, log)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	return cfg, log, store, nil
}
