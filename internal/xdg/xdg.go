// Package xdg resolves the XDG Base Directory locations querygate keeps its
// files in. Directories are created private (0700) on first use and fall back
// to the traditional ~/.config and ~/.local/state locations when the XDG
// variables are unset.
package xdg

import (
	"os"
	"path/filepath"
)

const appDir = "querygate"

// ConfigDir returns $XDG_CONFIG_HOME/querygate, defaulting to ~/.config/querygate.
func ConfigDir() (string, error) {
	return ensure("XDG_CONFIG_HOME", ".config")
}

// StateDir returns $XDG_STATE_HOME/querygate, defaulting to
// ~/.local/state/querygate. The REPL history file lives here.
func StateDir() (string, error) {
	return ensure("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

func ensure(env, fallback string) (string, error) {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, fallback)
	}
	dir := filepath.Join(base, appDir)
	if err := os.MkdirAll(dir, 0o700); err != nil { // private dir
		return "", err
	}
	return dir, nil
}
