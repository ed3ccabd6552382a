package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jfmyers9/crate/internal/relay"
	"github.com/jfmyers9/crate/internal/store"
	"github.com/spf13/cobra"
)

var (
	readDevice   string
	readDebounce time.Duration
)

var scanCmd = &cobra.Command{
	Use:   "scan <tag>",
	Short: "Record a scan of a tag",
	Long: `Record a scan of a tag as if it had been read by a reader.

The running daemon picks the scan up on its next poll.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Record scans from a line-oriented tag reader",
	Long: `Read newline-terminated tag IDs from a serial reader device (or stdin
with --device -) and record each as a scan until interrupted.

Repeated reads of the same tag within the debounce window are dropped.`,
	Args: cobra.NoArgs,
	RunE: runRead,
}

func init() {
	rootCmd.AddCommand(scanCmd, readCmd)

	readCmd.Flags().StringVar(&readDevice, "device", "", "Reader device path, or - for stdin (default: reader.device)")
	readCmd.Flags().DurationVar(&readDebounce, "debounce", 0, "Ignore repeats of a tag within this window (default: reader.debounce)")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ev, err := store.NewEvents(st, cfg.AppID).Publish(cmd.Context(), args[0], store.SourceCLI)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Scan of %s recorded (%s)\n", ev.TagID, ev.ID)
	return nil
}

func runRead(cmd *cobra.Command, args []string) error {
	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	device := readDevice
	if device == "" {
		device = cfg.Reader.Device
	}
	if device == "" {
		return fmt.Errorf("no reader device given; use --device or set reader.device")
	}
	debounce := cfg.Reader.Debounce
	if cmd.Flags().Changed("debounce") {
		debounce = readDebounce
	}

	dev, err := relay.OpenDevice(device)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("device", device).Dur("debounce", debounce).Msg("Reading tags")
	reader := relay.NewLineReader(dev, store.NewEvents(st, cfg.AppID), debounce, logger)
	if err := reader.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
