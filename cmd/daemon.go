package cmd

import (
	"fmt"

	"github.com/jfmyers9/crate/internal/config"
	"github.com/jfmyers9/crate/internal/daemon"
	"github.com/spf13/cobra"
)

var daemonDataDir string

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the scan-to-scrobble daemon",
	Long: `Run the daemon that turns tag scans into Last.fm scrobbles.

The daemon will:
- Poll the event table for new scans
- Subscribe to mqtt.topic when mqtt.broker is set
- Read tags from reader.device when it is set
- Serve the HTTP API and live outcome feed when http.listen is set
- Claim each scan once, look up its album and scrobble the whole tracklist
- Handle graceful shutdown on SIGINT/SIGTERM

The daemon runs in the foreground and logs to stderr by default.
Use the --log-file flag to log to a file (useful for launchd or systemd).`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().StringVar(&daemonDataDir, "data-dir", "", "Data directory for the database (default: ~/.local/share/crate)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if daemonDataDir != "" {
		cfg.DataDir = daemonDataDir
	}

	logger.Info().
		Str("version", version).
		Str("data_dir", cfg.DataDir).
		Msg("Starting crate daemon")

	d, err := daemon.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	// Run daemon (blocks until shutdown signal)
	runErr := d.Run()

	if err := d.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
		if runErr == nil {
			runErr = err
		}
	}
	if runErr != nil {
		return fmt.Errorf("daemon error: %w", runErr)
	}

	logger.Info().Msg("Daemon stopped")
	return nil
}
