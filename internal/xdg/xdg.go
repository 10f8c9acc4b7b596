// Package xdg provides XDG Base Directory Specification compliant paths for
// remote-workspace.
package xdg

import (
	"os"
	"path/filepath"
)

// ConfigDir returns the XDG config directory.
// Priority: XDG_CONFIG_HOME > ~/.config/remote-workspace
func ConfigDir() (string, error) {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "remote-workspace"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "remote-workspace"), nil
}

// DataDir returns the XDG data directory, the default location for generated
// artifacts and the record store.
// Priority: XDG_DATA_HOME > ~/.local/share/remote-workspace
func DataDir() (string, error) {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "remote-workspace"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".local", "share", "remote-workspace"), nil
}

// StateDir returns the XDG state directory.
// Priority: XDG_STATE_HOME > ~/.local/state/remote-workspace
func StateDir() (string, error) {
	if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
		return filepath.Join(xdgState, "remote-workspace"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".local", "state", "remote-workspace"), nil
}

// LogsDir returns the directory for server log files.
func LogsDir() string {
	stateDir, err := StateDir()
	if err != nil {
		dataDir, _ := DataDir()
		return filepath.Join(dataDir, "logs")
	}
	return filepath.Join(stateDir, "logs")
}
