package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for save.
type Config struct {
	BaseDir       string           `toml:"base_dir"`
	LogDir        string           `toml:"log_dir"`
	ContentDir    string           `toml:"content_dir"`
	SelectedSpace string           `toml:"selected_space"`
	Profile       ProfileConfig    `toml:"profile"`
	Database      DatabaseConfig   `toml:"database"`
	Encryption    EncryptionConfig `toml:"encryption"`
	Upload        UploadConfig     `toml:"upload"`
	Import        ImportConfig     `toml:"import"`
}

// ProfileConfig is the default author information for new assets.
type ProfileConfig struct {
	Alias string `toml:"alias"`
	Role  string `toml:"role"`
	Other string `toml:"other,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used to seal space secrets.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// DatabaseConfig represents configuration for the record database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// UploadConfig tunes the upload coordinator.
type UploadConfig struct {
	Parallelism int `toml:"parallelism"`

	// ProgressIntervalMS is the minimum time between persisted progress
	// updates of one upload.
	ProgressIntervalMS int `toml:"progress_interval_ms"`
}

// ProgressInterval returns ProgressIntervalMS as a duration, defaulting to
// 500ms.
func (u UploadConfig) ProgressInterval() time.Duration {
	if u.ProgressIntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(u.ProgressIntervalMS) * time.Millisecond
}

// ImportConfig holds settings for bulk ingest from directories.
type ImportConfig struct {
	Ignore []string `toml:"ignore"`
}

// NewConfig creates a new Config rooted at baseDir with default paths.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		ContentDir: filepath.Join(baseDir, "content"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "save.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "save.key"),
		},
		Upload: UploadConfig{Parallelism: 2, ProgressIntervalMS: 500},
		Import: ImportConfig{Ignore: []string{".DS_Store", "Thumbs.db", ".*"}},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// WriteToFile replaces the config file at path. The new content is written
// to a temporary file first so a crash never leaves a truncated config.
func WriteToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*")
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	m := &Manager{}
	if err := m.Write(tmp, cfg); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing config file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing config file: %w", err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := WriteToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
