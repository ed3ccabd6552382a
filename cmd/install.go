package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/jfmyers9/crate/internal/daemon"
	"github.com/spf13/cobra"
)

// installCmd represents the install command
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the crate daemon as a login service",
	Long: `Install the crate daemon as a service that starts automatically.

On macOS this writes a launchd agent to ~/Library/LaunchAgents/ and loads it
with launchctl. On Linux it writes a systemd user unit to
~/.config/systemd/user/ and enables it with systemctl --user.`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	binaryPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Resolve symlinks to get the actual binary path
	binaryPath, err = filepath.EvalSymlinks(binaryPath)
	if err != nil {
		return fmt.Errorf("failed to resolve executable path: %w", err)
	}

	logPath, err := daemon.GetDefaultLogPath()
	if err != nil {
		return fmt.Errorf("failed to get log path: %w", err)
	}
	if err := os.MkdirAll(logPath, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	config := daemon.ServiceConfig{
		BinaryPath:       binaryPath,
		LogPath:          logPath,
		WorkingDirectory: home,
	}

	switch runtime.GOOS {
	case "darwin":
		err = installLaunchd(config)
	case "linux":
		err = installSystemd(config)
	default:
		return fmt.Errorf("install is not supported on %s; run 'crate daemon' under your own supervisor", runtime.GOOS)
	}
	if err != nil {
		return err
	}

	fmt.Printf("✓ Logs will be written to %s\n", logPath)
	fmt.Println("\nTo uninstall, run:")
	fmt.Println("  crate uninstall")
	return nil
}

func installLaunchd(config daemon.ServiceConfig) error {
	plistContent, err := daemon.GeneratePlist(config)
	if err != nil {
		return fmt.Errorf("failed to generate plist: %w", err)
	}

	plistPath, err := daemon.GetPlistPath()
	if err != nil {
		return fmt.Errorf("failed to get plist path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(plistPath), 0755); err != nil {
		return fmt.Errorf("failed to create LaunchAgents directory: %w", err)
	}

	if _, err := os.Stat(plistPath); err == nil {
		fmt.Println("Daemon is already installed. Uninstalling first...")
		if err := unloadLaunchd(); err != nil {
			fmt.Printf("Warning: failed to unload existing daemon: %v\n", err)
		}
	}

	if err := os.WriteFile(plistPath, []byte(plistContent), 0644); err != nil {
		return fmt.Errorf("failed to write plist file: %w", err)
	}
	fmt.Printf("✓ Installed plist to %s\n", plistPath)

	if err := loadLaunchd(plistPath); err != nil {
		return fmt.Errorf("failed to load daemon: %w", err)
	}

	fmt.Println("✓ Daemon loaded and started successfully")
	fmt.Println("\nYou can check the daemon status with:")
	fmt.Println("  launchctl list | grep crate")
	return nil
}

func installSystemd(config daemon.ServiceConfig) error {
	unitContent, err := daemon.GenerateUnit(config)
	if err != nil {
		return fmt.Errorf("failed to generate unit: %w", err)
	}

	unitPath, err := daemon.GetUnitPath()
	if err != nil {
		return fmt.Errorf("failed to get unit path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(unitPath), 0755); err != nil {
		return fmt.Errorf("failed to create systemd user directory: %w", err)
	}

	if err := os.WriteFile(unitPath, []byte(unitContent), 0644); err != nil {
		return fmt.Errorf("failed to write unit file: %w", err)
	}
	fmt.Printf("✓ Installed unit to %s\n", unitPath)

	if err := systemctl("daemon-reload"); err != nil {
		return err
	}
	if err := systemctl("enable", "--now", filepath.Base(unitPath)); err != nil {
		return err
	}

	fmt.Println("✓ Daemon enabled and started successfully")
	fmt.Println("\nYou can check the daemon status with:")
	fmt.Println("  systemctl --user status crate")
	return nil
}

func systemctl(args ...string) error {
	cmd := exec.Command("systemctl", append([]string{"--user"}, args...)...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("systemctl %s failed: %s", strings.Join(args, " "), strings.TrimSpace(string(output)))
	}
	return nil
}

func launchdDomain() (string, error) {
	uidOutput, err := exec.Command("id", "-u").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get user ID: %w", err)
	}
	return "gui/" + strings.TrimSpace(string(uidOutput)), nil
}

// loadLaunchd loads the daemon using launchctl
func loadLaunchd(plistPath string) error {
	domain, err := launchdDomain()
	if err != nil {
		return err
	}

	output, err := exec.Command("launchctl", "bootstrap", domain, plistPath).CombinedOutput()
	if err != nil {
		if len(output) > 0 {
			return fmt.Errorf("launchctl bootstrap failed: %s", strings.TrimSpace(string(output)))
		}
		return fmt.Errorf("failed to run launchctl bootstrap: %w", err)
	}
	return nil
}

// unloadLaunchd unloads the daemon using launchctl
func unloadLaunchd() error {
	domain, err := launchdDomain()
	if err != nil {
		return err
	}

	// Bootout fails when the agent is not loaded, which is fine
	output, err := exec.Command("launchctl", "bootout", domain+"/"+daemon.Label).CombinedOutput()
	if err != nil && len(output) > 0 {
		fmt.Printf("Warning: %s\n", strings.TrimSpace(string(output)))
	}
	return nil
}
