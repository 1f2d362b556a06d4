package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tonimelisma/adrive-go/internal/adrive"
	"github.com/tonimelisma/adrive-go/internal/config"
	"github.com/tonimelisma/adrive-go/internal/driveid"
	"github.com/tonimelisma/adrive-go/internal/ledger"
	"github.com/tonimelisma/adrive-go/internal/metrics"
	"github.com/tonimelisma/adrive-go/internal/tokenfile"
)

// ErrNoDriveID is returned when neither the config nor the token file
// names a drive.
var ErrNoDriveID = errors.New("transfer: no drive id configured or cached in token file")

// NewFromConfig wires a Manager from a resolved config: an HTTP client with
// the configured timeouts, a refreshing token source backed by the token
// file, the upload ledger under state_dir and metrics on reg (nil keeps them
// private). ctx must outlive the Manager. Call Close when done.
func NewFromConfig(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	_, connectTimeout, dataTimeout, err := cfg.Durations()
	if err != nil {
		return nil, err
	}

	oauthCfg := adrive.OAuthConfig(cfg.Drive.APIBaseURL, cfg.Drive.ClientID, cfg.Drive.ClientSecret)

	ts, err := adrive.TokenSourceFromPath(ctx, cfg.Drive.TokenFile, oauthCfg, logger)
	if err != nil {
		if errors.Is(err, adrive.ErrNotLoggedIn) {
			return nil, fmt.Errorf("transfer: no token at %s: %w", cfg.Drive.TokenFile, err)
		}

		return nil, err
	}

	driveID, err := resolveDriveID(cfg)
	if err != nil {
		return nil, err
	}

	client := adrive.NewClient(cfg.Drive.APIBaseURL, newHTTPClient(connectTimeout, dataTimeout),
		ts, logger, cfg.Network.UserAgent)
	client.SetMaxRetries(cfg.Network.MaxRetries)

	if err := os.MkdirAll(cfg.Transfers.StateDir, dirPerms); err != nil {
		return nil, fmt.Errorf("transfer: creating state dir %s: %w", cfg.Transfers.StateDir, err)
	}

	store, err := ledger.Open(ctx, cfg.LedgerPath(), logger)
	if err != nil {
		return nil, err
	}

	m := NewManager(client, driveID, opts, store, metrics.New(reg), logger)
	m.closer = store

	logger.Debug("transfer manager ready",
		slog.String("drive_id", driveID.String()),
		slog.String("ledger", cfg.LedgerPath()),
	)

	return m, nil
}

func resolveDriveID(cfg *config.Config) (driveid.ID, error) {
	if id := driveid.New(cfg.Drive.DriveID); !id.IsZero() {
		return id, nil
	}

	tf, err := tokenfile.Load(cfg.Drive.TokenFile)
	if err != nil {
		return driveid.ID{}, err
	}

	if tf == nil || tf.DriveID.IsZero() {
		return driveid.ID{}, ErrNoDriveID
	}

	return tf.DriveID, nil
}

// newHTTPClient bounds connection setup and the wait for response headers.
// Bodies have no overall limit; part and chunk deadlines cover them.
func newHTTPClient(connectTimeout, dataTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = connectTimeout
	transport.ResponseHeaderTimeout = dataTimeout

	return &http.Client{Transport: transport}
}
