package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/matheus3301/sigtui/internal/config"
)

// ErrNoAccount means no account was given and signal-cli has none
// registered; the device must be linked first.
var ErrNoAccount = errors.New("no signal account configured")

type accountsFile struct {
	Accounts []struct {
		Number string `json:"number"`
		UUID   string `json:"uuid"`
	} `json:"accounts"`
}

// Resolve determines the active account using precedence:
// 1. flagOverride (--account flag)
// 2. config.toml account
// 3. the first account in signal-cli's accounts.json
func Resolve(flagOverride string, cfg *config.Config) (string, error) {
	account := flagOverride
	if account == "" && cfg != nil {
		account = cfg.Account
	}
	if account == "" {
		configDir := ""
		if cfg != nil {
			configDir = cfg.SignalCLIConfig
		}
		var err error
		if account, err = FirstRegistered(SignalCLIDataDir(configDir)); err != nil {
			return "", err
		}
	}
	if err := ValidateAccount(account); err != nil {
		return "", err
	}
	return account, nil
}

// FirstRegistered returns the first number listed in dataDir/accounts.json.
func FirstRegistered(dataDir string) (string, error) {
	f, err := readAccounts(dataDir)
	if err != nil {
		return "", err
	}
	for _, a := range f.Accounts {
		if a.Number != "" {
			return a.Number, nil
		}
	}
	return "", ErrNoAccount
}

// AccountUUID returns the service uuid signal-cli recorded for number, or
// "" when it is not known yet.
func AccountUUID(dataDir, number string) string {
	f, err := readAccounts(dataDir)
	if err != nil {
		return ""
	}
	for _, a := range f.Accounts {
		if a.Number == number {
			return a.UUID
		}
	}
	return ""
}

func readAccounts(dataDir string) (*accountsFile, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, "accounts.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoAccount
	}
	if err != nil {
		return nil, fmt.Errorf("read accounts.json: %w", err)
	}
	var f accountsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse accounts.json: %w", err)
	}
	return &f, nil
}
