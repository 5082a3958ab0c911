// Package cli provides the command-line interface for triage.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/triage-go/internal/config"
	"github.com/raphaelgruber/triage-go/internal/metrics"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config, logger and metrics
	cfg       config.Config
	logger    *slog.Logger
	logClose  func() error
	collector *metrics.Collector
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Conversational symptom triage client",
	Long: `Triage is a conversational symptom triage client. Describe your
symptoms in an interactive chat and get a streamed assessment with an
urgency rating, optionally by voice.

It is not a diagnostic tool and never replaces professional medical
advice. In an emergency, call your local emergency number.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}

		interactive := cmd.Name() == "chat"
		logger, logClose = config.SetupLogger(cfg.LogFile, cfg.LogLevel, interactive)
		collector = metrics.NewCollector()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if collector != nil && logger != nil {
			snap := collector.Snapshot()
			logger.Debug("runtime metrics",
				"uptime_seconds", snap.UptimeSeconds,
				"generation", snap.Generation,
				"store_upsert", snap.StoreUpsert,
				"voice_capture", snap.VoiceCapture,
			)
		}
		if logClose != nil {
			if err := logClose(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(historyCmd)
}

// requireTTY fails fast when stdout is not an interactive terminal.
func requireTTY() error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("chat requires an interactive terminal")
	}
	return nil
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
