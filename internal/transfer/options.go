package transfer

import (
	"fmt"
	"time"

	"github.com/tonimelisma/adrive-go/internal/adrive"
	"github.com/tonimelisma/adrive-go/internal/config"
)

// Default transfer tuning.
const (
	DefaultPartSize          = 64 << 20
	DefaultDownloadChunkSize = 10 << 20
	DefaultDownloadWorkers   = 10
	DefaultPartTimeout       = 10 * time.Minute
	DefaultPreHashThreshold  = 1024000
)

// Options tunes a Manager.
type Options struct {
	PartSize          int64
	DownloadChunkSize int64
	DownloadWorkers   int
	PartTimeout       time.Duration // zero disables the per-part deadline
	PreHashThreshold  int64         // files below this skip the pre-hash phase
	DownloadMode      DownloadMode
	CheckNameMode     adrive.CheckNameMode
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		PartSize:          DefaultPartSize,
		DownloadChunkSize: DefaultDownloadChunkSize,
		DownloadWorkers:   DefaultDownloadWorkers,
		PartTimeout:       DefaultPartTimeout,
		PreHashThreshold:  DefaultPreHashThreshold,
		DownloadMode:      ModeChunked,
		CheckNameMode:     adrive.CheckNameAutoRename,
	}
}

// withDefaults fills zero-valued fields. PartTimeout and PreHashThreshold
// keep zero since it is meaningful for both.
func (o Options) withDefaults() Options {
	d := DefaultOptions()

	if o.PartSize <= 0 {
		o.PartSize = d.PartSize
	}

	if o.DownloadChunkSize <= 0 {
		o.DownloadChunkSize = d.DownloadChunkSize
	}

	if o.DownloadWorkers <= 0 {
		o.DownloadWorkers = d.DownloadWorkers
	}

	if o.DownloadMode == "" {
		o.DownloadMode = d.DownloadMode
	}

	if o.CheckNameMode == "" {
		o.CheckNameMode = d.CheckNameMode
	}

	return o
}

// OptionsFromConfig converts the [transfers] section of a validated config.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	t := &cfg.Transfers

	partSize, err := config.ParseSize(t.PartSize)
	if err != nil {
		return Options{}, fmt.Errorf("transfers.part_size: %w", err)
	}

	chunkSize, err := config.ParseSize(t.DownloadChunkSize)
	if err != nil {
		return Options{}, fmt.Errorf("transfers.download_chunk_size: %w", err)
	}

	threshold, err := config.ParseSize(t.PrehashThreshold)
	if err != nil {
		return Options{}, fmt.Errorf("transfers.prehash_threshold: %w", err)
	}

	partTimeout, _, _, err := cfg.Durations()
	if err != nil {
		return Options{}, err
	}

	mode, err := ParseDownloadMode(t.DownloadMode)
	if err != nil {
		return Options{}, err
	}

	nameMode, err := adrive.ParseCheckNameMode(t.CheckNameMode)
	if err != nil {
		return Options{}, err
	}

	return Options{
		PartSize:          partSize,
		DownloadChunkSize: chunkSize,
		DownloadWorkers:   t.DownloadWorkers,
		PartTimeout:       partTimeout,
		PreHashThreshold:  threshold,
		DownloadMode:      mode,
		CheckNameMode:     nameMode,
	}, nil
}
