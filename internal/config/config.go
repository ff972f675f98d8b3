// Package config manages CIRRUS global configuration.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

const (
	ConfigDirName   = ".cirrus"
	ConfigFileName  = "config.json"
	DefaultLogLevel = "info"
)

// GlobalConfig holds user-level configuration for the CIRRUS CLI.
type GlobalConfig struct {
	DefaultRegion       string `json:"default_region"`
	LogLevel            string `json:"log_level"`
	DataDir             string `json:"data_dir"`              // Where cirrus.db, the audit db and the vault live
	CredentialsFilePath string `json:"credentials_file_path"` // AWS credentials file sessions materialize into
	SessionDurationSecs int32  `json:"session_duration_secs"` // STS session duration for generated credentials
	BrowserOpening      bool   `json:"browser_opening"`       // Open device-flow verification URLs automatically
}

// DefaultGlobalConfig returns sensible defaults.
func DefaultGlobalConfig() GlobalConfig {
	home, _ := os.UserHomeDir()
	return GlobalConfig{
		DefaultRegion:       "us-east-1",
		LogLevel:            DefaultLogLevel,
		DataDir:             filepath.Join(home, ConfigDirName),
		CredentialsFilePath: filepath.Join(home, ".aws", "credentials"),
		SessionDurationSecs: 3600,
		BrowserOpening:      true,
	}
}

// ConfigDir returns the global CIRRUS config directory path.
func ConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ConfigDirName)
}

// LoadGlobalConfig loads the global config from ~/.cirrus/config.json.
func LoadGlobalConfig() (GlobalConfig, error) {
	path := filepath.Join(ConfigDir(), ConfigFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultGlobalConfig(), nil
		}
		return GlobalConfig{}, err
	}

	cfg := DefaultGlobalConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return GlobalConfig{}, err
	}
	return cfg, nil
}

// SaveGlobalConfig persists the global config to ~/.cirrus/config.json.
func SaveGlobalConfig(cfg GlobalConfig) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, ConfigFileName), data, 0600)
}
