package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/jfmyers9/crate/internal/daemon"
	"github.com/spf13/cobra"
)

// uninstallCmd represents the uninstall command
var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop the crate daemon and remove its login service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch runtime.GOOS {
		case "darwin":
			return uninstallLaunchd()
		case "linux":
			return uninstallSystemd()
		default:
			return fmt.Errorf("uninstall is not supported on %s", runtime.GOOS)
		}
	},
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}

func uninstallLaunchd() error {
	plistPath, err := daemon.GetPlistPath()
	if err != nil {
		return fmt.Errorf("failed to get plist path: %w", err)
	}

	if _, err := os.Stat(plistPath); os.IsNotExist(err) {
		fmt.Println("Daemon is not installed (plist not found)")
		return nil
	}

	fmt.Println("Stopping daemon...")
	if err := unloadLaunchd(); err != nil {
		fmt.Printf("Warning: failed to unload daemon: %v\n", err)
		fmt.Println("Continuing with plist removal...")
	} else {
		fmt.Println("✓ Daemon stopped")
	}

	if err := os.Remove(plistPath); err != nil {
		return fmt.Errorf("failed to remove plist file: %w", err)
	}

	fmt.Printf("✓ Removed plist from %s\n", plistPath)
	fmt.Println("\nThe crate daemon has been uninstalled. To reinstall, run:")
	fmt.Println("  crate install")
	return nil
}

func uninstallSystemd() error {
	unitPath, err := daemon.GetUnitPath()
	if err != nil {
		return fmt.Errorf("failed to get unit path: %w", err)
	}

	if _, err := os.Stat(unitPath); os.IsNotExist(err) {
		fmt.Println("Daemon is not installed (unit not found)")
		return nil
	}

	fmt.Println("Stopping daemon...")
	if err := systemctl("disable", "--now", filepath.Base(unitPath)); err != nil {
		fmt.Printf("Warning: %v\n", err)
		fmt.Println("Continuing with unit removal...")
	} else {
		fmt.Println("✓ Daemon stopped")
	}

	if err := os.Remove(unitPath); err != nil {
		return fmt.Errorf("failed to remove unit file: %w", err)
	}
	_ = systemctl("daemon-reload")

	fmt.Printf("✓ Removed unit from %s\n", unitPath)
	fmt.Println("\nThe crate daemon has been uninstalled. To reinstall, run:")
	fmt.Println("  crate install")
	return nil
}
