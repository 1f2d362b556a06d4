package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/tonimelisma/adrive-go/internal/adrive"
)

// maxListPages bounds the uploaded-parts pagination.
const maxListPages = MaxUploadParts + 1

// listUploaded pages through listUploadedParts and returns the set of part
// numbers the server holds.
func listUploaded(ctx context.Context, api PartLister, s *UploadSession) (map[int]bool, error) {
	seen := make(map[int]bool)
	marker := 0

	for range maxListPages {
		page, err := api.ListUploadedParts(ctx, s.DriveID, s.FileID, s.UploadID, marker)
		if err != nil {
			return nil, fmt.Errorf("transfer: listing uploaded parts: %w", err)
		}

		for _, p := range page.UploadedParts {
			seen[p.PartNumber] = true
		}

		next, more, err := page.NextMarker()
		if err != nil {
			return nil, fmt.Errorf("transfer: listing uploaded parts: %w", err)
		}

		if !more {
			return seen, nil
		}

		if next <= marker {
			return nil, fmt.Errorf("transfer: listing uploaded parts: %w: marker went from %d to %d",
				adrive.ErrMalformedResponse, marker, next)
		}

		marker = next
	}

	return nil, fmt.Errorf("transfer: listing uploaded parts: %w: more than %d pages",
		adrive.ErrMalformedResponse, maxListPages)
}

// compareParts checks that uploaded is exactly {1..n} for the session's
// plan. It returns nil when they match.
func compareParts(s *UploadSession, uploaded map[int]bool) *VerificationError {
	var missing, unexpected []int

	for n := 1; n <= s.Plan.Len(); n++ {
		if !uploaded[n] {
			missing = append(missing, n)
		}
	}

	for n := range uploaded {
		if _, ok := s.Plan.Part(n); !ok {
			unexpected = append(unexpected, n)
		}
	}

	if len(missing) == 0 && len(unexpected) == 0 {
		return nil
	}

	slices.Sort(unexpected)

	return &VerificationError{
		Session:    s,
		Planned:    s.Plan.Len(),
		Uploaded:   len(uploaded),
		Missing:    missing,
		Unexpected: unexpected,
	}
}

// verifyAndComplete completes the upload only when the server's part list
// equals the plan.
func verifyAndComplete(
	ctx context.Context, api PartLister, s *UploadSession, logger *slog.Logger,
) (*adrive.FileEntry, error) {
	uploaded, err := listUploaded(ctx, api, s)
	if err != nil {
		return nil, err
	}

	if verr := compareParts(s, uploaded); verr != nil {
		logger.Warn("uploaded parts do not match plan",
			slog.String("file_id", s.FileID),
			slog.String("upload_id", s.UploadID),
			slog.Int("planned", verr.Planned),
			slog.Int("uploaded", verr.Uploaded),
		)

		return nil, verr
	}

	entry, err := api.CompleteUpload(ctx, s.DriveID, s.FileID, s.UploadID)
	if err != nil {
		return nil, fmt.Errorf("transfer: completing %s: %w", s.FileID, err)
	}

	return entry, nil
}
