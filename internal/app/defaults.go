package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables that override the default locations.
const (
	EnvConfigPath = "SERAC_CONFIG_PATH"
	EnvHome       = "SERAC_HOME"
)

// Defaults holds the default locations used when the config does not set them.
type Defaults struct {
	ConfigPath string // default: ~/.config/serac.toml
	BaseDir    string // default: ~/.local/share/serac
}

// GetDefaults returns application default paths, checking environment variables first.
func GetDefaults() (*Defaults, error) {
	var d Defaults
	var err error

	if d.ConfigPath = os.Getenv(EnvConfigPath); d.ConfigPath == "" {
		if d.ConfigPath, err = underHome(".config", "serac.toml"); err != nil {
			return nil, err
		}
	}
	if d.BaseDir = os.Getenv(EnvHome); d.BaseDir == "" {
		if d.BaseDir, err = underHome(".local", "share", "serac"); err != nil {
			return nil, err
		}
	}
	return &d, nil
}

func underHome(elem ...string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elem...)...), nil
}
