package userconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	configDirName  = "gresst"
	configFileName = "config.json"

	cookiesFileName  = "cookies.json"
	tokensFileName   = "tokens.json"
	debugLogFileName = "api-debug.log"
)

// UserConfig represents the user's local preferences stored in ~/.config/gresst/config.json
type UserConfig struct {
	LastUsername string `json:"last_username,omitempty"`
}

// Dir is the per-user state directory holding preferences, cookies, file-stored
// tokens and the API debug log.
type Dir struct {
	Path string
}

// DefaultDir returns override when set, otherwise ~/.config/gresst
func DefaultDir(override string) (Dir, error) {
	if override != "" {
		return Dir{Path: override}, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Dir{}, fmt.Errorf("failed to get user home directory: %w", err)
	}
	return Dir{Path: filepath.Join(homeDir, ".config", configDirName)}, nil
}

// Ensure creates the directory with owner-only permissions
func (d Dir) Ensure() error {
	if err := os.MkdirAll(d.Path, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	return nil
}

func (d Dir) ConfigPath() string   { return filepath.Join(d.Path, configFileName) }
func (d Dir) CookiesPath() string  { return filepath.Join(d.Path, cookiesFileName) }
func (d Dir) TokensPath() string   { return filepath.Join(d.Path, tokensFileName) }
func (d Dir) DebugLogPath() string { return filepath.Join(d.Path, debugLogFileName) }

// Load reads the user configuration file
func (d Dir) Load() (*UserConfig, error) {
	data, err := os.ReadFile(d.ConfigPath())
	// If config doesn't exist, return empty config
	if errors.Is(err, os.ErrNotExist) {
		return &UserConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user config file: %w", err)
	}

	var cfg UserConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse user config file: %w", err)
	}

	return &cfg, nil
}

// Save writes the user configuration to a file
func (d Dir) Save(cfg *UserConfig) error {
	if err := d.Ensure(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal user config: %w", err)
	}

	if err := os.WriteFile(d.ConfigPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write user config file: %w", err)
	}

	return nil
}

// SetLastUsername remembers the username offered as the login prompt default
func (d Dir) SetLastUsername(username string) error {
	cfg, err := d.Load()
	if err != nil {
		return err
	}

	cfg.LastUsername = username
	return d.Save(cfg)
}

// LastUsername returns the remembered username, or "" if none
func (d Dir) LastUsername() string {
	cfg, err := d.Load()
	if err != nil {
		return ""
	}
	return cfg.LastUsername
}
