package ledger

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/adrive-go/internal/driveid"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), MemoryPath, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })

	return s
}

func sampleRecord() *Record {
	return &Record{
		DriveID:      driveid.New("drive-1"),
		LocalPath:    "/data/movie.mkv",
		ParentFileID: "root",
		Name:         "movie.mkv",
		FileID:       "file-1",
		UploadID:     "upload-1",
		Size:         150 << 20,
		ModTime:      time.Unix(1700000000, 123456789),
		PartSize:     64 << 20,
		ContentHash:  "ABCDEF",
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord()
	require.NoError(t, s.Save(ctx, rec))
	assert.NotEqual(t, uuid.Nil, rec.TransferID, "save assigns a transfer id")

	got, err := s.Load(ctx, rec.DriveID, rec.LocalPath)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, rec.TransferID, got.TransferID)
	assert.Equal(t, "drive-1", got.DriveID.String())
	assert.Equal(t, "file-1", got.FileID)
	assert.Equal(t, "upload-1", got.UploadID)
	assert.Equal(t, int64(64<<20), got.PartSize)
	assert.True(t, got.Matches(150<<20, time.Unix(1700000000, 123456789)))
	assert.False(t, got.Matches(150<<20, time.Unix(1700000001, 0)))
	assert.False(t, got.Matches(1, time.Unix(1700000000, 123456789)))
}

func TestLoad_Missing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Load(context.Background(), driveid.New("d"), "/nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSave_UpsertKeepsCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return base }

	first := sampleRecord()
	require.NoError(t, s.Save(ctx, first))

	s.nowFunc = func() time.Time { return base.Add(time.Hour) }

	loaded, err := s.Load(ctx, first.DriveID, first.LocalPath)
	require.NoError(t, err)

	loaded.UploadID = "upload-2"
	require.NoError(t, s.Save(ctx, loaded))

	got, err := s.Load(ctx, first.DriveID, first.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "upload-2", got.UploadID)
	assert.Equal(t, base, got.CreatedAt)
	assert.Equal(t, base.Add(time.Hour), got.UpdatedAt)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSave_RequiresKey(t *testing.T) {
	s := newTestStore(t)

	rec := sampleRecord()
	rec.LocalPath = ""
	assert.Error(t, s.Save(context.Background(), rec))
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord()
	require.NoError(t, s.Save(ctx, rec))
	require.NoError(t, s.Delete(ctx, rec.DriveID, rec.LocalPath))

	got, err := s.Load(ctx, rec.DriveID, rec.LocalPath)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Idempotent.
	require.NoError(t, s.Delete(ctx, rec.DriveID, rec.LocalPath))
}

func TestCleanStale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	s.nowFunc = func() time.Time { return base }
	old := sampleRecord()
	old.LocalPath = "/old"
	require.NoError(t, s.Save(ctx, old))

	s.nowFunc = func() time.Time { return base.Add(6 * 24 * time.Hour) }
	fresh := sampleRecord()
	fresh.LocalPath = "/fresh"
	require.NoError(t, s.Save(ctx, fresh))

	s.nowFunc = func() time.Time { return base.Add(8 * 24 * time.Hour) }
	n, err := s.CleanStale(ctx, StaleAge)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "/fresh", all[0].LocalPath)
}

func TestOpen_FileBackedPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	s, err := Open(ctx, path, slog.Default())
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, sampleRecord()))
	require.NoError(t, s.Close())

	// Reopening runs migrations again as a no-op.
	s, err = Open(ctx, path, slog.Default())
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Load(ctx, driveid.New("drive-1"), "/data/movie.mkv")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "upload-1", got.UploadID)
}
