package daemon

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// Label identifies the daemon to launchd and names its systemd unit.
const Label = "com.crate.daemon"

const plistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>` + Label + `</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{.BinaryPath}}</string>
		<string>daemon</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
	<key>StandardOutPath</key>
	<string>{{.LogPath}}/crate.log</string>
	<key>StandardErrorPath</key>
	<string>{{.LogPath}}/crate.err</string>
	<key>WorkingDirectory</key>
	<string>{{.WorkingDirectory}}</string>
	<key>EnvironmentVariables</key>
	<dict>
		<key>PATH</key>
		<string>/usr/local/bin:/usr/bin:/bin:/usr/sbin:/sbin</string>
	</dict>
</dict>
</plist>
`

// The reader host is usually a small Linux box, so a user unit is offered
// alongside the plist.
const unitTemplate = `[Unit]
Description=crate RFID scrobble daemon
After=network-online.target
Wants=network-online.target

[Service]
ExecStart={{.BinaryPath}} daemon --log-file {{.LogPath}}/crate.log
WorkingDirectory={{.WorkingDirectory}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

// ServiceConfig holds the values substituted into a service definition
type ServiceConfig struct {
	BinaryPath       string
	LogPath          string
	WorkingDirectory string
}

// GeneratePlist generates a launchd plist file from the template
func GeneratePlist(config ServiceConfig) (string, error) {
	return render("plist", plistTemplate, config)
}

// GenerateUnit generates a systemd user unit from the template
func GenerateUnit(config ServiceConfig) (string, error) {
	return render("unit", unitTemplate, config)
}

func render(name, text string, config ServiceConfig) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s template: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, config); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", name, err)
	}

	return buf.String(), nil
}

// GetPlistPath returns the path where the plist should be installed
func GetPlistPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, "Library", "LaunchAgents", Label+".plist"), nil
}

// GetUnitPath returns the path where the systemd user unit should be installed
func GetUnitPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, ".config", "systemd", "user", "crate.service"), nil
}

// GetDefaultLogPath returns the default path for daemon logs
func GetDefaultLogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, ".local", "share", "crate", "logs"), nil
}
