package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/adrive-go/internal/metrics"
)

// DownloadMode selects how a file is fetched.
type DownloadMode string

// Download modes.
const (
	// ModeChunked fetches disjoint ranges concurrently into a pre-sized file.
	ModeChunked DownloadMode = "chunked"
	// ModeResume appends from the length already on disk with one GET.
	ModeResume DownloadMode = "resume"
	// ModeLinear streams the whole file with one GET.
	ModeLinear DownloadMode = "linear"
)

// ParseDownloadMode validates a configured mode name.
func ParseDownloadMode(s string) (DownloadMode, error) {
	switch m := DownloadMode(s); m {
	case ModeChunked, ModeResume, ModeLinear:
		return m, nil
	default:
		return "", fmt.Errorf("transfer: unknown download mode %q", s)
	}
}

const filePerms = 0o600

// lockedWriterAt serializes positional writes on a file shared by the
// chunk workers.
type lockedWriterAt struct {
	mu sync.Mutex
	f  *os.File
}

func (l *lockedWriterAt) WriteAt(p []byte, off int64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.f.WriteAt(p, off)
}

// fetcher writes remote bytes into local files.
type fetcher struct {
	api         RangeFetcher
	workers     int
	chunkSize   int64
	partTimeout time.Duration
	metrics     *metrics.Transfers
	logger      *slog.Logger
}

// chunked sizes path to size and fills it with concurrent ranged GETs.
func (d *fetcher) chunked(ctx context.Context, url, path string, size int64) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, filePerms)
	if err != nil {
		return 0, fmt.Errorf("transfer: opening %s: %w", path, err)
	}
	defer f.Close()

	if err := f.Truncate(size); err != nil {
		return 0, fmt.Errorf("transfer: sizing %s: %w", path, err)
	}

	if size == 0 {
		return 0, closeFile(f, path)
	}

	plan, err := NewPlan(size, d.chunkSize)
	if err != nil {
		return 0, err
	}

	n, err := d.fetchRanges(ctx, url, path, f, plan.Ranges())
	if err != nil {
		return n, err
	}

	return n, closeFile(f, path)
}

// fetchRanges runs one GET per range on at most d.workers goroutines. The
// first failure cancels the rest; ranges that did not finish are reported
// in an *IncompleteDownloadError.
func (d *fetcher) fetchRanges(ctx context.Context, url, path string, f *os.File, ranges []Range) (int64, error) {
	w := &lockedWriterAt{f: f}
	done := make([]bool, len(ranges))

	var (
		mu      sync.Mutex
		written int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(d.workers, 1))

	for i, r := range ranges {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			chunkCtx, cancel := withPartDeadline(gctx, d.partTimeout)
			defer cancel()

			n, err := d.api.DownloadRange(chunkCtx, url, io.NewOffsetWriter(w, r.Start), r.Start, r.End-1)
			d.metrics.BytesDownloaded(n)

			if err != nil {
				return &ChunkError{Range: r, Err: err}
			}

			mu.Lock()
			done[i] = true
			written += n
			mu.Unlock()

			d.logger.Debug("chunk downloaded",
				slog.String("path", path),
				slog.Int64("range_start", r.Start),
				slog.Int64("range_end", r.End),
			)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var pending []Range

		for i, r := range ranges {
			if !done[i] {
				pending = append(pending, r)
			}
		}

		return written, &IncompleteDownloadError{Path: path, Pending: pending, Err: err}
	}

	return written, nil
}

// resume appends to path from its current length with a single open-ended
// GET. A file already as long as size needs no request.
func (d *fetcher) resume(ctx context.Context, url, path string, size int64) (int64, error) {
	var offset int64

	info, err := os.Stat(path)

	switch {
	case err == nil:
		offset = info.Size()
	case !errors.Is(err, fs.ErrNotExist):
		return 0, fmt.Errorf("transfer: stat %s: %w", path, err)
	}

	if offset > size {
		return 0, fmt.Errorf("%w: %s has %d bytes, remote has %d", ErrLocalLarger, path, offset, size)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerms)
	if err != nil {
		return 0, fmt.Errorf("transfer: opening %s: %w", path, err)
	}
	defer f.Close()

	if offset == size {
		d.logger.Info("local file already complete", slog.String("path", path), slog.Int64("size", size))

		return 0, closeFile(f, path)
	}

	d.logger.Debug("resuming download",
		slog.String("path", path),
		slog.Int64("range_start", offset),
	)

	n, err := d.api.DownloadRange(ctx, url, f, offset, -1)
	d.metrics.BytesDownloaded(n)

	if err == nil && offset+n != size {
		err = fmt.Errorf("got %d of %d remaining bytes: %w", n, size-offset, io.ErrUnexpectedEOF)
	}

	if err != nil {
		return n, &IncompleteDownloadError{Path: path, Pending: []Range{{Start: offset + n, End: size}}, Err: err}
	}

	return n, closeFile(f, path)
}

// linear truncates path and streams the whole file into it.
func (d *fetcher) linear(ctx context.Context, url, path string, size int64) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerms)
	if err != nil {
		return 0, fmt.Errorf("transfer: creating %s: %w", path, err)
	}
	defer f.Close()

	if size == 0 {
		return 0, closeFile(f, path)
	}

	n, err := d.api.DownloadRange(ctx, url, f, 0, -1)
	d.metrics.BytesDownloaded(n)

	if err == nil && n != size {
		err = fmt.Errorf("got %d of %d bytes: %w", n, size, io.ErrUnexpectedEOF)
	}

	if err != nil {
		return n, &IncompleteDownloadError{Path: path, Pending: []Range{{Start: n, End: size}}, Err: err}
	}

	return n, closeFile(f, path)
}

// retry re-fetches ranges of an existing file of the given size.
func (d *fetcher) retry(ctx context.Context, url, path string, size int64, ranges []Range) (int64, error) {
	for _, r := range ranges {
		if r.Start < 0 || r.End > size || r.Len() <= 0 {
			return 0, fmt.Errorf("%w: range %s outside file of %d bytes", ErrInvalidPlan, r, size)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY, filePerms)
	if err != nil {
		return 0, fmt.Errorf("transfer: opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("transfer: stat %s: %w", path, err)
	}

	if info.Size() < size {
		if err := f.Truncate(size); err != nil {
			return 0, fmt.Errorf("transfer: sizing %s: %w", path, err)
		}
	}

	n, err := d.fetchRanges(ctx, url, path, f, ranges)
	if err != nil {
		return n, err
	}

	return n, closeFile(f, path)
}

// closeFile flushes f. The deferred Close that follows is then a no-op.
func closeFile(f *os.File, path string) error {
	if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("transfer: closing %s: %w", path, err)
	}

	return nil
}
