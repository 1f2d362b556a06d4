//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/adrive-go/internal/config"
	"github.com/tonimelisma/adrive-go/internal/transfer"
	"github.com/tonimelisma/adrive-go/testutil"
)

const (
	driveEnv  = "ADRIVE_GO_TEST_DRIVE"
	parentEnv = "ADRIVE_GO_TEST_PARENT"
)

var (
	testDrive  string
	testParent string
	tokenPath  string
)

func TestMain(m *testing.M) {
	root := testutil.FindModuleRoot(".")
	testutil.LoadDotEnv(filepath.Join(root, ".env"))

	testDrive = testutil.ValidateAllowlist(driveEnv)

	testParent = os.Getenv(parentEnv)
	if testParent == "" {
		testParent = "root"
	}

	tmp, err := os.MkdirTemp("", "adrive-go-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	tokenPath = filepath.Join(tmp, "token.json")
	testutil.CopyFile(filepath.Join(testutil.FindTestCredentialDir(root), "token.json"), tokenPath, 0o600)

	code := m.Run()

	os.RemoveAll(tmp)
	os.Exit(code)
}

func newManager(t *testing.T, mutate func(*config.Config)) *transfer.Manager {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Drive.DriveID = testDrive
	cfg.Drive.TokenFile = tokenPath
	cfg.Transfers.StateDir = t.TempDir()
	cfg.Transfers.PartSize = "1MiB"
	cfg.Transfers.DownloadChunkSize = "1MiB"

	if mutate != nil {
		mutate(cfg)
	}

	require.NoError(t, config.Validate(cfg))

	mgr, err := transfer.NewFromConfig(context.Background(), cfg, nil, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, mgr.Close()) })

	return mgr
}

func randomFile(t *testing.T, size int) (string, []byte) {
	t.Helper()

	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), fmt.Sprintf("e2e-%d-%d.bin", time.Now().UnixNano(), size))
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path, data
}

func TestE2E_MultipartRoundTrip(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, nil)

	path, data := randomFile(t, 3*1024*1024+17)

	up, err := mgr.Upload(ctx, testParent, path)
	require.NoError(t, err)
	assert.False(t, up.Rapid, "random content cannot be deduplicated")

	for _, mode := range []transfer.DownloadMode{transfer.ModeChunked, transfer.ModeLinear, transfer.ModeResume} {
		dir := t.TempDir()

		down, err := mgr.DownloadWithMode(ctx, up.FileID, dir, mode)
		require.NoError(t, err, "mode %s", mode)

		got, err := os.ReadFile(down.Path)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(data, got), "mode %s content mismatch", mode)
	}

	// The same bytes again are aliased server-side.
	again, err := mgr.Upload(ctx, testParent, path)
	require.NoError(t, err)
	assert.True(t, again.Rapid)
}

func TestE2E_ZeroByteFile(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, func(c *config.Config) { c.Transfers.PrehashThreshold = "0" })

	path, _ := randomFile(t, 0)

	up, err := mgr.Upload(ctx, testParent, path)
	require.NoError(t, err)

	down, err := mgr.Download(ctx, up.FileID, t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, down.Size)
}
