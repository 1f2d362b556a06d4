// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for the transfer engine. It supports a
// four-layer override chain (defaults -> config file -> environment ->
// explicit overrides).
package config

import "path/filepath"

// ledgerFileName is the SQLite upload ledger inside state_dir.
const ledgerFileName = "uploads.db"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Drive     DriveConfig     `toml:"drive"`
	Transfers TransfersConfig `toml:"transfers"`
	Network   NetworkConfig   `toml:"network"`
	Logging   LoggingConfig   `toml:"logging"`
}

// DriveConfig identifies the drive and where its credentials live.
// An empty drive_id falls back to the id cached in the token file.
type DriveConfig struct {
	DriveID      string `toml:"drive_id"`
	TokenFile    string `toml:"token_file"`
	APIBaseURL   string `toml:"api_base_url"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// TransfersConfig controls part sizes, download concurrency and the
// negotiation policy.
type TransfersConfig struct {
	PartSize          string `toml:"part_size"`
	DownloadChunkSize string `toml:"download_chunk_size"`
	DownloadWorkers   int    `toml:"download_workers"`
	PartTimeout       string `toml:"part_timeout"`
	PrehashThreshold  string `toml:"prehash_threshold"`
	DownloadMode      string `toml:"download_mode"`
	CheckNameMode     string `toml:"check_name_mode"`
	StateDir          string `toml:"state_dir"`
}

// NetworkConfig controls HTTP client behavior. max_retries stays at zero
// unless the caller wants the client to retry throttled and 5xx responses.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
	MaxRetries     int    `toml:"max_retries"`
}

// LoggingConfig controls log level and output format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// Overrides holds explicit values from the embedding application. Pointer
// fields distinguish "not specified" (nil) from "set to the zero value".
type Overrides struct {
	ConfigPath string
	DriveID    *string
	TokenFile  *string
	LogLevel   *string
}

// LedgerPath returns the upload ledger database path.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Transfers.StateDir, ledgerFileName)
}
