package transfer

import (
	"slices"

	"github.com/tonimelisma/adrive-go/internal/adrive"
	"github.com/tonimelisma/adrive-go/internal/driveid"
)

// UploadSession is a pending multipart upload. It records which parts the
// server has acknowledged and the upload URL handed out for each part.
// A session belongs to one transfer attempt at a time and is not safe for
// concurrent use.
type UploadSession struct {
	DriveID  driveid.ID
	FileID   string
	UploadID string
	FileName string
	Plan     *Plan

	// ContentHash is set when the content-hash phase ran.
	ContentHash string

	urls     map[int]string
	uploaded map[int]bool
}

// NewUploadSession returns a session with no parts uploaded.
func NewUploadSession(driveID driveid.ID, fileID, uploadID, fileName string, plan *Plan) *UploadSession {
	return &UploadSession{
		DriveID:  driveID,
		FileID:   fileID,
		UploadID: uploadID,
		FileName: fileName,
		Plan:     plan,
		urls:     make(map[int]string),
		uploaded: make(map[int]bool),
	}
}

// MarkUploaded records part n as acknowledged. Numbers outside the plan
// are ignored.
func (s *UploadSession) MarkUploaded(n int) {
	if _, ok := s.Plan.Part(n); ok {
		s.uploaded[n] = true
	}
}

// IsUploaded reports whether part n has been acknowledged.
func (s *UploadSession) IsUploaded(n int) bool {
	return s.uploaded[n]
}

// UploadedCount returns the number of acknowledged parts.
func (s *UploadSession) UploadedCount() int {
	return len(s.uploaded)
}

// Pending returns the unacknowledged parts in ascending order, with any
// known upload URL filled in.
func (s *UploadSession) Pending() []PartDescriptor {
	var out []PartDescriptor

	for _, part := range s.Plan.parts {
		if s.uploaded[part.PartNumber] {
			continue
		}

		part.UploadURL = s.urls[part.PartNumber]
		out = append(out, part)
	}

	return out
}

// setURLs stores upload URLs from a create or getUploadUrl response.
func (s *UploadSession) setURLs(infos []adrive.PartInfo) {
	for _, info := range infos {
		if _, ok := s.Plan.Part(info.PartNumber); ok && info.UploadURL != "" {
			s.urls[info.PartNumber] = info.UploadURL
		}
	}
}

// dropURLs forgets every stored URL; pre-signed URLs expire.
func (s *UploadSession) dropURLs() {
	clear(s.urls)
}

func missingURLs(parts []PartDescriptor) []int {
	var out []int

	for _, p := range parts {
		if p.UploadURL == "" {
			out = append(out, p.PartNumber)
		}
	}

	return slices.Clip(out)
}
