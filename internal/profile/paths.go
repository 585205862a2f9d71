package profile

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.sigtui.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".sigtui")
}

// Dir returns the per-account directory.
func Dir(account string) string {
	return filepath.Join(BaseDir(), "accounts", account)
}

// DBPath returns the account's message store.
func DBPath(account string) string {
	return filepath.Join(Dir(account), "sigtui.db")
}

// LogDir returns the log directory for an account.
func LogDir(account string) string {
	return filepath.Join(Dir(account), "logs")
}

// LogPath returns the log file path.
func LogPath(account string) string {
	return filepath.Join(LogDir(account), "sigtui.log")
}

// LinkLogPath is where runs without an account, such as device linking, log.
func LinkLogPath() string {
	return filepath.Join(BaseDir(), "logs", "link.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// SignalCLIDataDir returns signal-cli's data directory: configDir/data when
// a --config dir is set, else $XDG_DATA_HOME/signal-cli/data.
func SignalCLIDataDir(configDir string) string {
	if configDir != "" {
		return filepath.Join(configDir, "data")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "signal-cli", "data")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "signal-cli", "data")
}

// SignalCLIAvatarDir returns where signal-cli keeps profile and contact
// pictures, next to its data directory.
func SignalCLIAvatarDir(configDir string) string {
	return filepath.Join(filepath.Dir(SignalCLIDataDir(configDir)), "avatars")
}

// EnsureDir creates the account directory tree with proper permissions.
func EnsureDir(account string) error {
	for _, d := range []string{Dir(account), LogDir(account)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
