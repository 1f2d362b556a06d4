package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig    = "ADRIVE_GO_CONFIG"
	EnvDriveID   = "ADRIVE_GO_DRIVE_ID"
	EnvTokenFile = "ADRIVE_GO_TOKEN_FILE"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // ADRIVE_GO_CONFIG: override config file path
	DriveID    string // ADRIVE_GO_DRIVE_ID: drive id override
	TokenFile  string // ADRIVE_GO_TOKEN_FILE: token file override
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		DriveID:    os.Getenv(EnvDriveID),
		TokenFile:  os.Getenv(EnvTokenFile),
	}
}
