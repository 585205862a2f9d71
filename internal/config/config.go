package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents ~/.sigtui/config.toml.
type Config struct {
	// Account is the default E.164 number; --account overrides it.
	Account         string `toml:"account"`
	SignalCLI       string `toml:"signal_cli"`
	SignalCLIConfig string `toml:"signal_cli_config"`
	AttachmentsDir  string `toml:"attachments_dir"`
	ImagePreviews   bool   `toml:"image_previews"`
	Avatars         bool   `toml:"avatars"`
	MaxImageWidth   int    `toml:"max_image_width"`
	LogLevel        string `toml:"log_level"`
	DeviceName      string `toml:"device_name"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		SignalCLI:      "signal-cli",
		AttachmentsDir: defaultAttachmentsDir(),
		ImagePreviews:  true,
		Avatars:        true,
		MaxImageWidth:  60,
		LogLevel:       "info",
		DeviceName:     "sigtui",
	}
}

func defaultAttachmentsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".local", "share", "signal-cli", "attachments")
}

// Load reads config from the given path. Keys absent from the file keep
// their defaults. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if cfg.MaxImageWidth <= 0 {
		cfg.MaxImageWidth = Default().MaxImageWidth
	}
	return cfg, nil
}

// LoadOrDefault is Load, with defaults when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
