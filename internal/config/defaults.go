package config

import "path/filepath"

// Default values for configuration options. These represent "layer 0"
// of the override chain.
const (
	defaultAPIBaseURL        = "https://openapi.alipan.com"
	defaultPartSize          = "64MiB"
	defaultDownloadChunkSize = "10MiB"
	defaultDownloadWorkers   = 10
	defaultPartTimeout       = "10m"
	defaultPrehashThreshold  = "1024000"
	defaultDownloadMode      = "chunked"
	defaultCheckNameMode     = "auto_rename"
	defaultConnectTimeout    = "10s"
	defaultDataTimeout       = "60s"
	defaultLogLevel          = "info"
	defaultLogFormat         = "auto"
	defaultTokenFileName     = "token.json"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Drive:     defaultDriveConfig(),
		Transfers: defaultTransfersConfig(),
		Network:   defaultNetworkConfig(),
		Logging:   defaultLoggingConfig(),
	}
}

func defaultDriveConfig() DriveConfig {
	cfg := DriveConfig{APIBaseURL: defaultAPIBaseURL}

	if dir := DefaultDataDir(); dir != "" {
		cfg.TokenFile = filepath.Join(dir, defaultTokenFileName)
	}

	return cfg
}

func defaultTransfersConfig() TransfersConfig {
	return TransfersConfig{
		PartSize:          defaultPartSize,
		DownloadChunkSize: defaultDownloadChunkSize,
		DownloadWorkers:   defaultDownloadWorkers,
		PartTimeout:       defaultPartTimeout,
		PrehashThreshold:  defaultPrehashThreshold,
		DownloadMode:      defaultDownloadMode,
		CheckNameMode:     defaultCheckNameMode,
		StateDir:          DefaultDataDir(),
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		ConnectTimeout: defaultConnectTimeout,
		DataTimeout:    defaultDataTimeout,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}
