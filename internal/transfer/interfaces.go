package transfer

import (
	"context"
	"io"

	"github.com/tonimelisma/adrive-go/internal/adrive"
	"github.com/tonimelisma/adrive-go/internal/driveid"
	"github.com/tonimelisma/adrive-go/internal/ledger"
)

// FileCreator runs the create handshake. Satisfied by *adrive.Client.
type FileCreator interface {
	AccessToken() (string, error)
	CreateFile(ctx context.Context, req *adrive.CreateFileRequest) (adrive.CreateFileResponse, error)
}

// PartUploader sends part bytes to pre-signed URLs. Satisfied by *adrive.Client.
type PartUploader interface {
	GetUploadURL(ctx context.Context, driveID driveid.ID, fileID, uploadID string, partNumbers []int) ([]adrive.PartInfo, error)
	UploadPart(ctx context.Context, uploadURL string, partNumber int, data []byte) error
}

// PartLister reads back and finalizes a pending upload. Satisfied by
// *adrive.Client.
type PartLister interface {
	ListUploadedParts(ctx context.Context, driveID driveid.ID, fileID, uploadID string, marker int) (*adrive.UploadedPartsPage, error)
	CompleteUpload(ctx context.Context, driveID driveid.ID, fileID, uploadID string) (*adrive.FileEntry, error)
}

// RangeFetcher streams byte ranges of a pre-signed download URL.
type RangeFetcher interface {
	DownloadRange(ctx context.Context, downloadURL string, w io.Writer, start, end int64) (int64, error)
}

// RemoteFiles resolves a file id to its metadata and a download URL.
type RemoteFiles interface {
	GetFile(ctx context.Context, driveID driveid.ID, fileID string) (*adrive.FileEntry, error)
	GetDownloadURL(ctx context.Context, driveID driveid.ID, fileID string) (*adrive.DownloadURL, error)
}

// API is everything the Manager needs from the remote side.
type API interface {
	FileCreator
	PartUploader
	PartLister
	RangeFetcher
	RemoteFiles
}

// SessionLedger persists in-flight upload sessions. Satisfied by
// *ledger.Store.
type SessionLedger interface {
	Save(ctx context.Context, rec *ledger.Record) error
	Load(ctx context.Context, driveID driveid.ID, localPath string) (*ledger.Record, error)
	Delete(ctx context.Context, driveID driveid.ID, localPath string) error
}

// Content is a local file opened for upload: hashing reads it sequentially,
// parts and the proof code read it positionally.
type Content interface {
	io.ReadSeeker
	io.ReaderAt
}

var _ API = (*adrive.Client)(nil)
var _ SessionLedger = (*ledger.Store)(nil)
