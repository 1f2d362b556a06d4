package transfer

import (
	"errors"
	"fmt"
)

// Sentinel errors for transfer failures.
var (
	ErrNegotiation          = errors.New("transfer: negotiation failed")
	ErrVerificationMismatch = errors.New("transfer: uploaded parts do not match plan")
	ErrLocalLarger          = errors.New("transfer: local file is larger than remote file")
	ErrSourceChanged        = errors.New("transfer: local file no longer matches upload session")
	ErrInvalidPlan          = errors.New("transfer: invalid plan")
	ErrNotAFile             = errors.New("transfer: remote entry is not a file")
	ErrUnsafeName           = errors.New("transfer: remote name is not a safe local file name")
)

// negotiationError wraps a failure in the phase it happened in.
func negotiationError(phase State, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrNegotiation, phase, err)
}

// PartError reports a failed part upload. Session is still valid: the part
// can be re-sent through Manager.ResumeUpload.
type PartError struct {
	PartNumber int
	Range      Range
	Session    *UploadSession
	Err        error
}

func (e *PartError) Error() string {
	return fmt.Sprintf("transfer: part %d %s: %v", e.PartNumber, e.Range, e.Err)
}

func (e *PartError) Unwrap() error {
	return e.Err
}

// ChunkError reports a failed ranged GET.
type ChunkError struct {
	Range Range
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("transfer: chunk %s: %v", e.Range, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// IncompleteDownloadError lists the byte ranges of Path that were not
// written. Ranges outside Pending hold valid bytes; pass Pending to
// Manager.RetryRanges to fetch only what is missing.
type IncompleteDownloadError struct {
	Path    string
	Pending []Range
	Err     error
}

func (e *IncompleteDownloadError) Error() string {
	return fmt.Sprintf("transfer: download of %s incomplete (%d ranges pending): %v", e.Path, len(e.Pending), e.Err)
}

func (e *IncompleteDownloadError) Unwrap() error {
	return e.Err
}

// VerificationError is returned instead of completing an upload whose
// server-side part list differs from the plan.
type VerificationError struct {
	Session    *UploadSession
	Planned    int
	Uploaded   int
	Missing    []int
	Unexpected []int
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%v: planned %d, server has %d (missing %v, unexpected %v)",
		ErrVerificationMismatch, e.Planned, e.Uploaded, e.Missing, e.Unexpected)
}

func (e *VerificationError) Unwrap() error {
	return ErrVerificationMismatch
}
