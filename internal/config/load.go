package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	expandPaths(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> explicit overrides.
func Resolve(env EnvOverrides, ov Overrides) (*Config, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if ov.ConfigPath != "" {
		cfgPath = ov.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.DriveID != "" {
		cfg.Drive.DriveID = env.DriveID
	}

	if env.TokenFile != "" {
		cfg.Drive.TokenFile = env.TokenFile
	}

	if ov.DriveID != nil {
		cfg.Drive.DriveID = *ov.DriveID
	}

	if ov.TokenFile != nil {
		cfg.Drive.TokenFile = *ov.TokenFile
	}

	if ov.LogLevel != nil {
		cfg.Logging.LogLevel = *ov.LogLevel
	}

	expandPaths(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// expandPaths applies tilde expansion to path-valued settings.
func expandPaths(cfg *Config) {
	cfg.Drive.TokenFile = expandTilde(cfg.Drive.TokenFile)
	cfg.Transfers.StateDir = expandTilde(cfg.Transfers.StateDir)
}
