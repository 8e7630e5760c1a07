package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// CLIConfig is the per-developer state saved by `watchrelay pair`.
type CLIConfig struct {
	RelayURL  string `toml:"relay_url,omitempty"`
	PairingID string `toml:"pairing_id,omitempty"`
	WatchID   string `toml:"watch_id,omitempty"`
}

// cliConfigPath resolves ~/.config/watchrelay/config.toml (honoring
// XDG_CONFIG_HOME), creating the directory if needed.
func cliConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, "watchrelay")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

func loadCLIConfig() (CLIConfig, error) {
	path, err := cliConfigPath()
	if err != nil {
		return CLIConfig{}, err
	}
	var cfg CLIConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return CLIConfig{}, nil
		}
		return CLIConfig{}, err
	}
	return cfg, nil
}

func saveCLIConfig(cfg CLIConfig) error {
	path, err := cliConfigPath()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// currentPairingID resolves the pairing in effect: the RELAY_PAIRING_ID env
// var wins, then the saved config.
func currentPairingID() string {
	if id := strings.TrimSpace(os.Getenv("RELAY_PAIRING_ID")); id != "" {
		return id
	}
	cfg, err := loadCLIConfig()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cfg.PairingID)
}
