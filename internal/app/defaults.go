package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// PassphraseEnv names the environment variable that supplies the passphrase
// unlocking Space secrets, for non-interactive use.
const PassphraseEnv = "SAVE_PASSPHRASE"

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - SAVE_CONFIG_PATH: config file location (default: ~/.config/save.toml)
//   - SAVE_HOME: base directory for save data (default: ~/.local/share/save)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
		"content_dir": filepath.Join(baseDir, "content"),
	}, nil
}

// getConfigPath returns the config file path, checking SAVE_CONFIG_PATH env var first,
// then falling back to the default ~/.config/save.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("SAVE_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "save.toml"), nil
}

// getBaseDir returns the base directory for save data, checking SAVE_HOME env var first,
// then falling back to the XDG default ~/.local/share/save.
func getBaseDir() (string, error) {
	if path := os.Getenv("SAVE_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "save"), nil
}
