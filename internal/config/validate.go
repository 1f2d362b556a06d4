package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"
)

// Validation range constants.
const (
	minPartBytes       = 100 * kibibyte
	maxPartBytes       = 5 * gibibyte
	minChunkBytes      = 1 * mebibyte
	minDownloadWorkers = 1
	maxDownloadWorkers = 64
	maxRetriesLimit    = 10
	minConnectTimeout  = 1 * time.Second
	minDataTimeout     = 5 * time.Second
)

// Accepted enum values.
var (
	downloadModes  = []string{"chunked", "resume", "linear"}
	checkNameModes = []string{"auto_rename", "refuse", "ignore", "overwrite"}
	logLevels      = []string{"debug", "info", "warn", "error"}
	logFormats     = []string{"auto", "text", "json"}
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateDrive(&cfg.Drive)...)
	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateDrive(d *DriveConfig) []error {
	var errs []error

	u, err := url.Parse(d.APIBaseURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		errs = append(errs, fmt.Errorf("drive.api_base_url: must be an http(s) URL, got %q", d.APIBaseURL))
	}

	if d.TokenFile == "" {
		errs = append(errs, errors.New("drive.token_file: must not be empty"))
	}

	return errs
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	if n, err := ParseSize(t.PartSize); err != nil {
		errs = append(errs, fmt.Errorf("transfers.part_size: %w", err))
	} else if n < minPartBytes || n > maxPartBytes {
		errs = append(errs, fmt.Errorf("transfers.part_size: must be between 100KiB and 5GiB, got %q", t.PartSize))
	}

	if n, err := ParseSize(t.DownloadChunkSize); err != nil {
		errs = append(errs, fmt.Errorf("transfers.download_chunk_size: %w", err))
	} else if n < minChunkBytes {
		errs = append(errs, fmt.Errorf("transfers.download_chunk_size: must be at least 1MiB, got %q", t.DownloadChunkSize))
	}

	if t.DownloadWorkers < minDownloadWorkers || t.DownloadWorkers > maxDownloadWorkers {
		errs = append(errs, fmt.Errorf("transfers.download_workers: must be between %d and %d, got %d",
			minDownloadWorkers, maxDownloadWorkers, t.DownloadWorkers))
	}

	if _, err := parseDuration(t.PartTimeout, 0); err != nil {
		errs = append(errs, fmt.Errorf("transfers.part_timeout: %w", err))
	}

	if _, err := ParseSize(t.PrehashThreshold); err != nil {
		errs = append(errs, fmt.Errorf("transfers.prehash_threshold: %w", err))
	}

	errs = append(errs, checkEnum("transfers.download_mode", t.DownloadMode, downloadModes)...)
	errs = append(errs, checkEnum("transfers.check_name_mode", t.CheckNameMode, checkNameModes)...)

	if t.StateDir == "" {
		errs = append(errs, errors.New("transfers.state_dir: must not be empty"))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	if _, err := parseDuration(n.ConnectTimeout, minConnectTimeout); err != nil {
		errs = append(errs, fmt.Errorf("network.connect_timeout: %w", err))
	}

	if _, err := parseDuration(n.DataTimeout, minDataTimeout); err != nil {
		errs = append(errs, fmt.Errorf("network.data_timeout: %w", err))
	}

	if n.MaxRetries < 0 || n.MaxRetries > maxRetriesLimit {
		errs = append(errs, fmt.Errorf("network.max_retries: must be between 0 and %d, got %d",
			maxRetriesLimit, n.MaxRetries))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, checkEnum("logging.log_level", l.LogLevel, logLevels)...)
	errs = append(errs, checkEnum("logging.log_format", l.LogFormat, logFormats)...)

	return errs
}

func checkEnum(field, value string, allowed []string) []error {
	if slices.Contains(allowed, value) {
		return nil
	}

	return []error{fmt.Errorf("%s: must be one of %v, got %q", field, allowed, value)}
}

// parseDuration parses a Go duration string and enforces a floor. "0" and
// "" are accepted as zero when floor is zero.
func parseDuration(s string, floor time.Duration) (time.Duration, error) {
	if s == "" || s == "0" {
		if floor > 0 {
			return 0, fmt.Errorf("must be at least %s", floor)
		}

		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	if d < floor || d < 0 {
		return 0, fmt.Errorf("must be at least %s, got %s", max(floor, 0), d)
	}

	return d, nil
}

// Durations returns the parsed timeouts of a validated config.
func (c *Config) Durations() (partTimeout, connectTimeout, dataTimeout time.Duration, err error) {
	if partTimeout, err = parseDuration(c.Transfers.PartTimeout, 0); err != nil {
		return 0, 0, 0, fmt.Errorf("transfers.part_timeout: %w", err)
	}

	if connectTimeout, err = parseDuration(c.Network.ConnectTimeout, minConnectTimeout); err != nil {
		return 0, 0, 0, fmt.Errorf("network.connect_timeout: %w", err)
	}

	if dataTimeout, err = parseDuration(c.Network.DataTimeout, minDataTimeout); err != nil {
		return 0, 0, 0, fmt.Errorf("network.data_timeout: %w", err)
	}

	return partTimeout, connectTimeout, dataTimeout, nil
}
