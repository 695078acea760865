// Package paths resolves aicli's on-disk locations following XDG.
package paths

import (
	"os"
	"path/filepath"
)

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	h, _ := os.UserHomeDir()
	return h
}

// ConfigDir returns the aicli config directory ($XDG_CONFIG_HOME/aicli).
func ConfigDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "aicli")
	}
	return filepath.Join(homeDir(), ".config", "aicli")
}

// ConfigFile returns the path of the main config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.toml")
}
