package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tonimelisma/adrive-go/internal/metrics"
)

// partSender PUTs the pending parts of a session one at a time. The server
// hashes the byte stream as it arrives, so parts go strictly in ascending
// part-number order.
type partSender struct {
	api         PartUploader
	partTimeout time.Duration
	metrics     *metrics.Transfers
	logger      *slog.Logger
}

// send uploads every part of s not yet acknowledged, reading each part's
// range from content into a single reused buffer. On failure the parts sent
// so far stay recorded on s.
func (p *partSender) send(ctx context.Context, s *UploadSession, content io.ReaderAt) error {
	pending := s.Pending()
	if len(pending) == 0 {
		return nil
	}

	if missing := missingURLs(pending); len(missing) > 0 {
		infos, err := p.api.GetUploadURL(ctx, s.DriveID, s.FileID, s.UploadID, missing)
		if err != nil {
			first, _ := s.Plan.Part(missing[0])

			return &PartError{PartNumber: first.PartNumber, Range: first.Range, Session: s, Err: err}
		}

		s.setURLs(infos)
		pending = s.Pending()

		if still := missingURLs(pending); len(still) > 0 {
			first, _ := s.Plan.Part(still[0])

			return &PartError{
				PartNumber: first.PartNumber, Range: first.Range, Session: s,
				Err: fmt.Errorf("no upload url returned for parts %v", still),
			}
		}
	}

	var largest int64
	for _, part := range pending {
		largest = max(largest, part.Range.Len())
	}

	buf := make([]byte, largest)

	for _, part := range pending {
		if err := ctx.Err(); err != nil {
			return &PartError{PartNumber: part.PartNumber, Range: part.Range, Session: s, Err: err}
		}

		data := buf[:part.Range.Len()]
		if err := readFull(content, data, part.Range.Start); err != nil {
			return &PartError{PartNumber: part.PartNumber, Range: part.Range, Session: s, Err: err}
		}

		if err := p.put(ctx, part, data); err != nil {
			return &PartError{PartNumber: part.PartNumber, Range: part.Range, Session: s, Err: err}
		}

		s.MarkUploaded(part.PartNumber)
		p.metrics.PartUploaded(int64(len(data)))

		p.logger.Debug("part uploaded",
			slog.String("file_id", s.FileID),
			slog.Int("part_number", part.PartNumber),
			slog.Int64("range_start", part.Range.Start),
			slog.Int64("range_end", part.Range.End),
		)
	}

	return nil
}

func (p *partSender) put(ctx context.Context, part PartDescriptor, data []byte) error {
	partCtx, cancel := withPartDeadline(ctx, p.partTimeout)
	defer cancel()

	return p.api.UploadPart(partCtx, part.UploadURL, part.PartNumber, data)
}

// readFull fills buf from r at off. A ReaderAt may report io.EOF together
// with a full read.
func readFull(r io.ReaderAt, buf []byte, off int64) error {
	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}

	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}

	return fmt.Errorf("reading %d bytes at offset %d: %w", len(buf), off, err)
}

// withPartDeadline bounds one part or chunk operation. Zero disables it.
func withPartDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, d)
}
