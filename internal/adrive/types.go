package adrive

import (
	"fmt"
	"strconv"
	"time"

	"github.com/tonimelisma/adrive-go/internal/driveid"
)

// CheckNameMode tells the server what to do when the target name is taken.
type CheckNameMode string

// Name collision policies accepted by the create endpoint.
const (
	CheckNameAutoRename CheckNameMode = "auto_rename"
	CheckNameRefuse     CheckNameMode = "refuse"
	CheckNameIgnore     CheckNameMode = "ignore"
	CheckNameOverwrite  CheckNameMode = "overwrite"
)

// ParseCheckNameMode validates a configured policy name.
func ParseCheckNameMode(s string) (CheckNameMode, error) {
	switch m := CheckNameMode(s); m {
	case CheckNameAutoRename, CheckNameRefuse, CheckNameIgnore, CheckNameOverwrite:
		return m, nil
	default:
		return "", fmt.Errorf("adrive: unknown check_name_mode %q", s)
	}
}

// PartInfo is one entry of a part_info_list. UploadURL is pre-signed and
// single-use; it must never be logged.
type PartInfo struct {
	PartNumber int    `json:"part_number"`
	UploadURL  string `json:"upload_url,omitempty"`
	PartSize   int64  `json:"part_size,omitempty"`
}

// CreateFileRequest is the body of openFile/create. Hash fields are
// filled according to the negotiation phase.
type CreateFileRequest struct {
	DriveID         driveid.ID    `json:"drive_id"`
	ParentFileID    string        `json:"parent_file_id"`
	Name            string        `json:"name"`
	Type            string        `json:"type"`
	CheckNameMode   CheckNameMode `json:"check_name_mode"`
	Size            int64         `json:"size"`
	PreHash         string        `json:"pre_hash,omitempty"`
	ContentHash     string        `json:"content_hash,omitempty"`
	ContentHashName string        `json:"content_hash_name,omitempty"`
	ProofCode       string        `json:"proof_code,omitempty"`
	ProofVersion    string        `json:"proof_version,omitempty"`
	PartInfoList    []PartInfo    `json:"part_info_list,omitempty"`
}

// CreateFileResponse is the result of openFile/create. It is one of
// PreHashMatched or *FileCreated.
type CreateFileResponse interface {
	isCreateFileResponse()
}

// PreHashMatched means another stored object shares the pre-hash; the
// caller should retry create with the full content hash.
type PreHashMatched struct {
	RequestID string
}

func (PreHashMatched) isCreateFileResponse() {}

// FileCreated is a successful create. When RapidUpload is true the object
// already exists server-side and no bytes need to be sent.
type FileCreated struct {
	DriveID      string     `json:"drive_id"`
	FileID       string     `json:"file_id"`
	ParentFileID string     `json:"parent_file_id"`
	FileName     string     `json:"file_name"`
	Status       string     `json:"status"`
	UploadID     string     `json:"upload_id"`
	RapidUpload  bool       `json:"rapid_upload"`
	Exist        bool       `json:"exist"`
	Available    bool       `json:"available"`
	PartInfoList []PartInfo `json:"part_info_list"`
}

func (*FileCreated) isCreateFileResponse() {}

// FileEntry is the file metadata returned by get and complete.
type FileEntry struct {
	DriveID      string    `json:"drive_id"`
	FileID       string    `json:"file_id"`
	ParentFileID string    `json:"parent_file_id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Size         int64     `json:"size"`
	ContentHash  string    `json:"content_hash"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsFolder reports whether the entry is a folder.
func (f *FileEntry) IsFolder() bool {
	return f.Type == "folder"
}

// DownloadURL is a pre-signed download location. URL must never be logged.
type DownloadURL struct {
	URL        string `json:"url"`
	Expiration string `json:"expiration"`
	Method     string `json:"method"`
}

// UploadedPart is one acknowledged part of a pending upload.
type UploadedPart struct {
	PartNumber int    `json:"part_number"`
	ETag       string `json:"etag"`
	PartSize   int64  `json:"part_size"`
}

// UploadedPartsPage is one page of openFile/listUploadedParts.
type UploadedPartsPage struct {
	FileID               string         `json:"file_id"`
	UploadID             string         `json:"upload_id"`
	ParallelUpload       bool           `json:"parallelUpload"` //nolint:tagliatelle // server's casing
	UploadedParts        []UploadedPart `json:"uploaded_parts"`
	NextPartNumberMarker string         `json:"next_part_number_marker"`
}

// NextMarker parses the continuation marker. more is false when the
// listing is exhausted.
func (p *UploadedPartsPage) NextMarker() (marker int, more bool, err error) {
	if p.NextPartNumberMarker == "" {
		return 0, false, nil
	}

	n, err := strconv.Atoi(p.NextPartNumberMarker)
	if err != nil {
		return 0, false, fmt.Errorf("%w: next_part_number_marker %q", ErrMalformedResponse, p.NextPartNumberMarker)
	}

	if n <= 0 {
		return 0, false, nil
	}

	return n, true, nil
}
