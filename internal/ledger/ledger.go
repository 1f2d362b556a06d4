// Package ledger persists in-flight upload sessions in SQLite so an upload
// interrupted in one process can be resumed by the next one. Records are
// keyed by drive and local path; a record only matches a file whose size and
// modification time are unchanged.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/tonimelisma/adrive-go/internal/driveid"
)

// StaleAge is how long an unfinished session is kept. The server drops
// pending uploads well before this.
const StaleAge = 7 * 24 * time.Hour

// cleanThrottle prevents a stale sweep on every Save.
const cleanThrottle = 1 * time.Hour

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const (
	sqlUpsert = `INSERT INTO upload_sessions
		(drive_id, local_path, transfer_id, parent_file_id, name, file_id, upload_id,
		 size, mod_time, part_size, content_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (drive_id, local_path) DO UPDATE SET
		 transfer_id = excluded.transfer_id,
		 parent_file_id = excluded.parent_file_id,
		 name = excluded.name,
		 file_id = excluded.file_id,
		 upload_id = excluded.upload_id,
		 size = excluded.size,
		 mod_time = excluded.mod_time,
		 part_size = excluded.part_size,
		 content_hash = excluded.content_hash,
		 updated_at = excluded.updated_at`

	sqlSelectColumns = `SELECT drive_id, local_path, transfer_id, parent_file_id, name, file_id,
		upload_id, size, mod_time, part_size, content_hash, created_at, updated_at
		FROM upload_sessions`

	sqlLoad       = sqlSelectColumns + ` WHERE drive_id = ? AND local_path = ?`
	sqlList       = sqlSelectColumns + ` ORDER BY updated_at`
	sqlDelete     = `DELETE FROM upload_sessions WHERE drive_id = ? AND local_path = ?`
	sqlCleanStale = `DELETE FROM upload_sessions WHERE updated_at < ?`
)

// Record is one persisted upload session.
type Record struct {
	TransferID   uuid.UUID
	DriveID      driveid.ID
	LocalPath    string
	ParentFileID string
	Name         string
	FileID       string
	UploadID     string
	Size         int64
	ModTime      time.Time
	PartSize     int64
	ContentHash  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Matches reports whether the record still describes a local file with the
// given size and modification time.
func (r *Record) Matches(size int64, modTime time.Time) bool {
	return r.Size == size && r.ModTime.Equal(modTime)
}

// Store is the SQLite-backed session ledger. Safe for concurrent use.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time

	cleanMu   sync.Mutex
	lastClean time.Time
}

// Open opens (creating if needed) the ledger database at dbPath and applies
// migrations. Pass MemoryPath for a throwaway store.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern; also keeps an in-memory database alive on one
	// connection.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("upload ledger initialized", slog.String("db_path", dbPath))

	return &Store{
		db:      db,
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("ledger: closing database: %w", err)
	}

	return nil
}

// Save inserts or replaces the record for rec's drive and local path.
// CreatedAt is preserved across updates. Triggers a throttled stale sweep.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec.DriveID.IsZero() || rec.LocalPath == "" {
		return errors.New("ledger: record needs a drive id and local path")
	}

	if rec.TransferID == uuid.Nil {
		rec.TransferID = uuid.New()
	}

	now := s.nowFunc().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	rec.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, sqlUpsert,
		rec.DriveID, rec.LocalPath, rec.TransferID.String(), rec.ParentFileID, rec.Name,
		rec.FileID, rec.UploadID, rec.Size, rec.ModTime.UnixNano(), rec.PartSize,
		rec.ContentHash, rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("ledger: saving session for %s: %w", rec.LocalPath, err)
	}

	s.logger.Debug("saved upload session",
		slog.String("transfer_id", rec.TransferID.String()),
		slog.String("file_id", rec.FileID),
		slog.String("upload_id", rec.UploadID),
		slog.String("local_path", rec.LocalPath),
	)

	s.cleanIfDue(ctx)

	return nil
}

// Load returns the record for a drive and local path, or nil, nil if none.
func (s *Store) Load(ctx context.Context, driveID driveid.ID, localPath string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, sqlLoad, driveID, localPath)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("ledger: loading session for %s: %w", localPath, err)
	}

	return rec, nil
}

// List returns every record, oldest update first.
func (s *Store) List(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, sqlList)
	if err != nil {
		return nil, fmt.Errorf("ledger: listing sessions: %w", err)
	}
	defer rows.Close()

	var out []*Record

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: scanning session row: %w", err)
		}

		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterating session rows: %w", err)
	}

	return out, nil
}

// Delete removes the record for a drive and local path. Deleting a missing
// record is not an error.
func (s *Store) Delete(ctx context.Context, driveID driveid.ID, localPath string) error {
	if _, err := s.db.ExecContext(ctx, sqlDelete, driveID, localPath); err != nil {
		return fmt.Errorf("ledger: deleting session for %s: %w", localPath, err)
	}

	return nil
}

// CleanStale removes records not updated within maxAge and returns how
// many were deleted.
func (s *Store) CleanStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.nowFunc().Add(-maxAge).UTC().UnixNano()

	res, err := s.db.ExecContext(ctx, sqlCleanStale, cutoff)
	if err != nil {
		return 0, fmt.Errorf("ledger: cleaning stale sessions: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ledger: counting cleaned sessions: %w", err)
	}

	if n > 0 {
		s.logger.Info("cleaned stale upload sessions", slog.Int64("count", n))
	}

	return n, nil
}

// cleanIfDue runs CleanStale with StaleAge at most once per cleanThrottle.
// Failures are logged, never returned.
func (s *Store) cleanIfDue(ctx context.Context) {
	s.cleanMu.Lock()
	now := s.nowFunc()

	if !s.lastClean.IsZero() && now.Sub(s.lastClean) < cleanThrottle {
		s.cleanMu.Unlock()
		return
	}

	s.lastClean = now
	s.cleanMu.Unlock()

	if _, err := s.CleanStale(ctx, StaleAge); err != nil {
		s.logger.Warn("stale session cleanup failed", slog.String("error", err.Error()))
	}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                       Record
		transferID                string
		modTime, created, updated int64
	)

	err := row.Scan(
		&rec.DriveID, &rec.LocalPath, &transferID, &rec.ParentFileID, &rec.Name,
		&rec.FileID, &rec.UploadID, &rec.Size, &modTime, &rec.PartSize,
		&rec.ContentHash, &created, &updated,
	)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(transferID)
	if err != nil {
		return nil, fmt.Errorf("ledger: bad transfer id %q: %w", transferID, err)
	}

	rec.TransferID = id
	rec.ModTime = time.Unix(0, modTime)
	rec.CreatedAt = time.Unix(0, created).UTC()
	rec.UpdatedAt = time.Unix(0, updated).UTC()

	return &rec, nil
}
