package config

import (
	"os"
	"path/filepath"
)

// ConfigDir returns the per-user directory for app: $XDG_CONFIG_HOME/<app>,
// else $APPDATA/<app>, else $HOME/.config/<app>.
func ConfigDir(app string) (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, app), nil
	}
	if dir := os.Getenv("APPDATA"); dir != "" {
		return filepath.Join(dir, app), nil
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", app), nil
	}
	return "", ErrNoConfigDir
}
