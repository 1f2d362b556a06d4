package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/adrive-go/internal/adrive"
	"github.com/tonimelisma/adrive-go/internal/driveid"
	"github.com/tonimelisma/adrive-go/internal/ledger"
	"github.com/tonimelisma/adrive-go/internal/metrics"
)

const dirPerms = 0o700

// UploadResult reports a finished upload.
type UploadResult struct {
	TransferID uuid.UUID
	FileID     string
	FileName   string
	Size       int64
	Rapid      bool              // server aliased existing content
	Resumed    bool              // a stored session was continued
	Entry      *adrive.FileEntry // nil for rapid uploads
}

// DownloadResult reports a finished download.
type DownloadResult struct {
	TransferID uuid.UUID
	Path       string
	Size       int64
	Written    int64 // bytes fetched by this call
	Mode       DownloadMode
}

// Manager uploads and downloads files on one drive.
type Manager struct {
	api        API
	driveID    driveid.ID
	opts       Options
	negotiator *Negotiator
	sender     *partSender
	fetcher    *fetcher
	sessions   SessionLedger // nil = no cross-call resume
	closer     io.Closer
	metrics    *metrics.Transfers
	logger     *slog.Logger
	nowFunc    func() time.Time
}

// NewManager creates a Manager. sessions and m may be nil.
func NewManager(
	api API, driveID driveid.ID, opts Options, sessions SessionLedger, m *metrics.Transfers, logger *slog.Logger,
) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	opts = opts.withDefaults()

	return &Manager{
		api:        api,
		driveID:    driveID,
		opts:       opts,
		negotiator: NewNegotiator(api, driveID, opts, logger),
		sender: &partSender{
			api:         api,
			partTimeout: opts.PartTimeout,
			metrics:     m,
			logger:      logger,
		},
		fetcher: &fetcher{
			api:         api,
			workers:     opts.DownloadWorkers,
			chunkSize:   opts.DownloadChunkSize,
			partTimeout: opts.PartTimeout,
			metrics:     m,
			logger:      logger,
		},
		sessions: sessions,
		metrics:  m,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// DriveID returns the drive the Manager works on.
func (m *Manager) DriveID() driveid.ID {
	return m.driveID
}

// Close releases resources owned by the Manager, such as a ledger opened
// by NewFromConfig.
func (m *Manager) Close() error {
	if m.closer == nil {
		return nil
	}

	return m.closer.Close()
}

// Upload sends localPath into the folder parentFileID. A stored session for
// the same file (same size and modification time) is resumed; otherwise the
// create handshake decides between rapid upload and a multipart transfer.
// A failed multipart upload keeps its session stored so the next call
// continues it.
func (m *Manager) Upload(ctx context.Context, parentFileID, localPath string) (*UploadResult, error) {
	if parentFileID == "" {
		return nil, errors.New("transfer: upload: parent file id must not be empty")
	}

	absPath, err := filepath.Abs(localPath)
	if err != nil {
		return nil, fmt.Errorf("transfer: resolving %s: %w", localPath, err)
	}

	transferID := uuid.New()
	logger := m.logger.With(
		slog.String("transfer_id", transferID.String()),
		slog.String("drive_id", m.driveID.String()),
		slog.String("path", absPath),
	)
	start := m.nowFunc()

	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("transfer: opening %s: %w", absPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("transfer: stat %s: %w", absPath, err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("transfer: %s is a directory", absPath)
	}

	res, handled, err := m.resumeStored(ctx, logger, f, info, absPath, parentFileID)
	if handled {
		m.finishUpload(res, err, start)

		if res != nil {
			res.TransferID = transferID
		}

		return res, err
	}

	res, err = m.negotiateAndSend(ctx, logger, f, info, absPath, parentFileID, transferID)
	m.finishUpload(res, err, start)

	return res, err
}

func (m *Manager) negotiateAndSend(
	ctx context.Context, logger *slog.Logger, f *os.File, info os.FileInfo,
	absPath, parentFileID string, transferID uuid.UUID,
) (*UploadResult, error) {
	outcome, err := m.negotiator.Negotiate(ctx, NegotiateRequest{
		ParentFileID: parentFileID,
		Name:         info.Name(),
		Size:         info.Size(),
		Content:      f,
	})
	if err != nil {
		return nil, err
	}

	m.metrics.Negotiated(outcome.State().String())

	switch o := outcome.(type) {
	case *RapidMatch:
		return &UploadResult{
			TransferID: transferID,
			FileID:     o.FileID,
			FileName:   o.FileName,
			Size:       info.Size(),
			Rapid:      true,
		}, nil
	case *NeedsUpload:
		m.remember(ctx, logger, transferID, absPath, parentFileID, info, o.Session)

		entry, err := m.complete(ctx, logger, o.Session, f)
		if err != nil {
			return nil, err
		}

		m.forget(ctx, logger, absPath)

		return &UploadResult{
			TransferID: transferID,
			FileID:     entry.FileID,
			FileName:   entry.Name,
			Size:       info.Size(),
			Entry:      entry,
		}, nil
	default:
		return nil, fmt.Errorf("transfer: unexpected outcome %T", outcome)
	}
}

// ResumeUpload continues a pending session: parts the server already holds
// are skipped, the rest are sent with fresh URLs, then the upload is
// verified and completed. localPath must still have the planned size. A
// stored session for localPath is dropped once the upload completes.
func (m *Manager) ResumeUpload(ctx context.Context, session *UploadSession, localPath string) (*UploadResult, error) {
	start := m.nowFunc()

	absPath, err := filepath.Abs(localPath)
	if err != nil {
		return nil, fmt.Errorf("transfer: resolving %s: %w", localPath, err)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("transfer: opening %s: %w", absPath, err)
	}
	defer f.Close()

	res, err := m.resumeSession(ctx, m.logger, session, f)
	if err == nil {
		m.forget(ctx, m.logger, absPath)
	}

	m.finishUpload(res, err, start)

	return res, err
}

func (m *Manager) resumeSession(
	ctx context.Context, logger *slog.Logger, session *UploadSession, f *os.File,
) (*UploadResult, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("transfer: stat %s: %w", f.Name(), err)
	}

	if info.Size() != session.Plan.TotalSize() {
		return nil, fmt.Errorf("%w: %s has %d bytes, session planned %d",
			ErrSourceChanged, f.Name(), info.Size(), session.Plan.TotalSize())
	}

	uploaded, err := listUploaded(ctx, m.api, session)
	if err != nil {
		return nil, err
	}

	for n := range uploaded {
		session.MarkUploaded(n)
	}

	session.dropURLs()

	logger.Info("resuming upload",
		slog.String("file_id", session.FileID),
		slog.String("upload_id", session.UploadID),
		slog.Int("uploaded", session.UploadedCount()),
		slog.Int("planned", session.Plan.Len()),
	)

	entry, err := m.complete(ctx, logger, session, f)
	if err != nil {
		return nil, err
	}

	return &UploadResult{
		FileID:   entry.FileID,
		FileName: entry.Name,
		Size:     info.Size(),
		Resumed:  true,
		Entry:    entry,
	}, nil
}

// complete sends the pending parts, verifies the server's part list and
// completes the upload.
func (m *Manager) complete(
	ctx context.Context, logger *slog.Logger, session *UploadSession, content io.ReaderAt,
) (*adrive.FileEntry, error) {
	if err := m.sender.send(ctx, session, content); err != nil {
		return nil, err
	}

	return verifyAndComplete(ctx, m.api, session, logger)
}

// resumeStored continues a stored session for absPath if one matches the
// file. handled is false when the caller should negotiate from scratch.
func (m *Manager) resumeStored(
	ctx context.Context, logger *slog.Logger, f *os.File, info os.FileInfo, absPath, parentFileID string,
) (res *UploadResult, handled bool, err error) {
	if m.sessions == nil {
		return nil, false, nil
	}

	rec, err := m.sessions.Load(ctx, m.driveID, absPath)
	if err != nil {
		logger.Warn("loading stored upload session", slog.String("error", err.Error()))

		return nil, false, nil
	}

	if rec == nil {
		return nil, false, nil
	}

	if !rec.Matches(info.Size(), info.ModTime()) || rec.ParentFileID != parentFileID {
		logger.Info("discarding stored upload session for changed file", slog.String("file_id", rec.FileID))
		m.forget(ctx, logger, absPath)

		return nil, false, nil
	}

	plan, err := NewPlan(rec.Size, rec.PartSize)
	if err != nil {
		m.forget(ctx, logger, absPath)

		return nil, false, nil
	}

	session := NewUploadSession(rec.DriveID, rec.FileID, rec.UploadID, rec.Name, plan)
	session.ContentHash = rec.ContentHash

	res, err = m.resumeSession(ctx, logger, session, f)

	switch {
	case err == nil:
		m.forget(ctx, logger, absPath)

		return res, true, nil
	case errors.Is(err, adrive.ErrNotFound):
		logger.Info("stored upload session expired, starting over", slog.String("file_id", rec.FileID))
		m.forget(ctx, logger, absPath)

		return nil, false, nil
	default:
		return nil, true, err
	}
}

func (m *Manager) remember(
	ctx context.Context, logger *slog.Logger, transferID uuid.UUID,
	absPath, parentFileID string, info os.FileInfo, s *UploadSession,
) {
	if m.sessions == nil {
		return
	}

	err := m.sessions.Save(ctx, &ledger.Record{
		TransferID:   transferID,
		DriveID:      m.driveID,
		LocalPath:    absPath,
		ParentFileID: parentFileID,
		Name:         s.FileName,
		FileID:       s.FileID,
		UploadID:     s.UploadID,
		Size:         info.Size(),
		ModTime:      info.ModTime(),
		PartSize:     s.Plan.PartSize(),
		ContentHash:  s.ContentHash,
	})
	if err != nil {
		logger.Warn("storing upload session", slog.String("error", err.Error()))
	}
}

func (m *Manager) forget(ctx context.Context, logger *slog.Logger, absPath string) {
	if m.sessions == nil {
		return
	}

	if err := m.sessions.Delete(ctx, m.driveID, absPath); err != nil {
		logger.Warn("removing upload session", slog.String("error", err.Error()))
	}
}

func (m *Manager) finishUpload(res *UploadResult, err error, start time.Time) {
	outcome := metrics.OutcomeFailed

	switch {
	case err != nil:
	case res.Rapid:
		outcome = metrics.OutcomeRapid
	case res.Resumed:
		outcome = metrics.OutcomeResumed
	default:
		outcome = metrics.OutcomeUploaded
	}

	m.metrics.UploadFinished(outcome, m.nowFunc().Sub(start))
}

// Download fetches fileID into targetDir using the configured mode.
func (m *Manager) Download(ctx context.Context, fileID, targetDir string) (*DownloadResult, error) {
	return m.DownloadWithMode(ctx, fileID, targetDir, m.opts.DownloadMode)
}

// DownloadWithMode fetches fileID into targetDir under its remote name.
// On failure the partially written file is kept; an
// *IncompleteDownloadError names the ranges still missing.
func (m *Manager) DownloadWithMode(
	ctx context.Context, fileID, targetDir string, mode DownloadMode,
) (*DownloadResult, error) {
	if fileID == "" {
		return nil, errors.New("transfer: download: file id must not be empty")
	}

	start := m.nowFunc()
	transferID := uuid.New()

	entry, url, err := m.resolve(ctx, fileID)
	if err != nil {
		m.metrics.DownloadFinished(string(mode), metrics.OutcomeFailed, m.nowFunc().Sub(start))
		return nil, err
	}

	name, err := localName(entry.Name)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(targetDir, dirPerms); err != nil {
		return nil, fmt.Errorf("transfer: creating %s: %w", targetDir, err)
	}

	path := filepath.Join(targetDir, name)

	m.logger.Debug("download starting",
		slog.String("transfer_id", transferID.String()),
		slog.String("file_id", fileID),
		slog.String("path", path),
		slog.Int64("size", entry.Size),
		slog.String("mode", string(mode)),
	)

	var written int64

	switch mode {
	case ModeChunked:
		written, err = m.fetcher.chunked(ctx, url, path, entry.Size)
	case ModeResume:
		written, err = m.fetcher.resume(ctx, url, path, entry.Size)
	case ModeLinear:
		written, err = m.fetcher.linear(ctx, url, path, entry.Size)
	default:
		err = fmt.Errorf("transfer: unknown download mode %q", mode)
	}

	if err == nil {
		err = checkLength(path, entry.Size)
	}

	if err != nil {
		m.metrics.DownloadFinished(string(mode), metrics.OutcomeFailed, m.nowFunc().Sub(start))
		return nil, err
	}

	m.metrics.DownloadFinished(string(mode), metrics.OutcomeCompleted, m.nowFunc().Sub(start))

	return &DownloadResult{
		TransferID: transferID,
		Path:       path,
		Size:       entry.Size,
		Written:    written,
		Mode:       mode,
	}, nil
}

// RetryRanges re-fetches only the given byte ranges of fileID into
// targetPath, typically the Pending list of an *IncompleteDownloadError.
func (m *Manager) RetryRanges(ctx context.Context, fileID, targetPath string, ranges []Range) (*DownloadResult, error) {
	entry, url, err := m.resolve(ctx, fileID)
	if err != nil {
		return nil, err
	}

	written, err := m.fetcher.retry(ctx, url, targetPath, entry.Size, ranges)
	if err != nil {
		return nil, err
	}

	return &DownloadResult{
		TransferID: uuid.New(),
		Path:       targetPath,
		Size:       entry.Size,
		Written:    written,
		Mode:       ModeChunked,
	}, nil
}

// resolve looks up a file's metadata and a fresh download URL.
func (m *Manager) resolve(ctx context.Context, fileID string) (*adrive.FileEntry, string, error) {
	entry, err := m.api.GetFile(ctx, m.driveID, fileID)
	if err != nil {
		return nil, "", fmt.Errorf("transfer: looking up %s: %w", fileID, err)
	}

	if entry.IsFolder() {
		return nil, "", fmt.Errorf("%w: %s", ErrNotAFile, fileID)
	}

	u, err := m.api.GetDownloadURL(ctx, m.driveID, fileID)
	if err != nil {
		return nil, "", fmt.Errorf("transfer: download url for %s: %w", fileID, err)
	}

	return entry, u.URL, nil
}

// localName turns a remote name into a single NFC path element.
func localName(remote string) (string, error) {
	name := norm.NFC.String(remote)

	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeName, remote)
	}

	return name, nil
}

func checkLength(path string, want int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("transfer: stat %s: %w", path, err)
	}

	if info.Size() != want {
		return fmt.Errorf("transfer: %s has %d bytes, expected %d: %w", path, info.Size(), want, io.ErrUnexpectedEOF)
	}

	return nil
}
