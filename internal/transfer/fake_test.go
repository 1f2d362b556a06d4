package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/adrive-go/internal/adrive"
	"github.com/tonimelisma/adrive-go/internal/driveid"
	"github.com/tonimelisma/adrive-go/pkg/adrivehash"
)

var testDrive = driveid.New("drive-1")

// fakeDrive is an in-memory stand-in for the open API. The create handler
// is pluggable; everything else models one pending upload and a set of
// downloadable files.
type fakeDrive struct {
	mu sync.Mutex

	token    string
	onCreate func(req *adrive.CreateFileRequest) (adrive.CreateFileResponse, error)
	creates  []adrive.CreateFileRequest

	fileID   string
	uploadID string
	parts    map[int][]byte
	putOrder []int
	refreshs [][]int
	failPart int   // next PUT of this part fails
	dropPart int   // PUTs of this part are accepted but not listed
	extra    []int // listed in addition to real parts
	pageSize int
	lists    []int // markers seen by ListUploadedParts
	complete int

	content   []byte
	fileName  string
	folder    bool
	failStart int64 // ranged GETs starting here fail; -1 disables
	ranges    []string
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{
		token:     "access-token",
		fileID:    "file-1",
		uploadID:  "upload-1",
		parts:     make(map[int][]byte),
		pageSize:  100,
		fileName:  "remote.bin",
		failStart: -1,
	}
}

// matchThenMultipart answers a pre-hash with PreHashMatched and a content
// hash with a pending upload that carries no URLs.
func (f *fakeDrive) matchThenMultipart(req *adrive.CreateFileRequest) (adrive.CreateFileResponse, error) {
	if req.PreHash != "" {
		return adrive.PreHashMatched{}, nil
	}

	return &adrive.FileCreated{FileID: f.fileID, UploadID: f.uploadID, FileName: "up.bin"}, nil
}

func (f *fakeDrive) AccessToken() (string, error) {
	return f.token, nil
}

func (f *fakeDrive) CreateFile(_ context.Context, req *adrive.CreateFileRequest) (adrive.CreateFileResponse, error) {
	f.mu.Lock()
	f.creates = append(f.creates, *req)
	handler := f.onCreate
	f.mu.Unlock()

	if handler == nil {
		handler = f.matchThenMultipart
	}

	return handler(req)
}

func (f *fakeDrive) uploadURL(n int) string {
	return fmt.Sprintf("https://upload.invalid/%s/%s/%d", f.fileID, f.uploadID, n)
}

func (f *fakeDrive) GetUploadURL(_ context.Context, _ driveid.ID, fileID, uploadID string, nums []int) ([]adrive.PartInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if fileID != f.fileID || uploadID != f.uploadID {
		return nil, fmt.Errorf("get upload url: %w", adrive.ErrNotFound)
	}

	f.refreshs = append(f.refreshs, slices.Clone(nums))

	out := make([]adrive.PartInfo, len(nums))
	for i, n := range nums {
		out[i] = adrive.PartInfo{PartNumber: n, UploadURL: f.uploadURL(n)}
	}

	return out, nil
}

func (f *fakeDrive) UploadPart(_ context.Context, url string, n int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if url != f.uploadURL(n) {
		return fmt.Errorf("put part %d: %w", n, adrive.ErrForbidden)
	}

	if f.failPart == n {
		f.failPart = 0
		return fmt.Errorf("put part %d: %w", n, adrive.ErrServerError)
	}

	f.putOrder = append(f.putOrder, n)
	f.parts[n] = bytes.Clone(data)

	return nil
}

func (f *fakeDrive) ListUploadedParts(
	_ context.Context, _ driveid.ID, fileID, uploadID string, marker int,
) (*adrive.UploadedPartsPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if fileID != f.fileID || uploadID != f.uploadID {
		return nil, fmt.Errorf("list parts: %w", adrive.ErrNotFound)
	}

	f.lists = append(f.lists, marker)

	var all []int
	for n := range f.parts {
		if n != f.dropPart {
			all = append(all, n)
		}
	}

	all = append(all, f.extra...)
	slices.Sort(all)

	page := &adrive.UploadedPartsPage{FileID: fileID, UploadID: uploadID}

	for _, n := range all {
		if n <= marker {
			continue
		}

		if len(page.UploadedParts) == f.pageSize {
			last := page.UploadedParts[len(page.UploadedParts)-1].PartNumber
			page.NextPartNumberMarker = strconv.Itoa(last)

			break
		}

		page.UploadedParts = append(page.UploadedParts, adrive.UploadedPart{PartNumber: n, ETag: "etag"})
	}

	return page, nil
}

func (f *fakeDrive) CompleteUpload(_ context.Context, _ driveid.ID, fileID, uploadID string) (*adrive.FileEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if fileID != f.fileID || uploadID != f.uploadID {
		return nil, fmt.Errorf("complete: %w", adrive.ErrNotFound)
	}

	f.complete++

	return &adrive.FileEntry{FileID: fileID, Name: "up.bin", Size: int64(len(f.assembled())), Type: "file"}, nil
}

// assembled concatenates the received parts in part-number order.
func (f *fakeDrive) assembled() []byte {
	var nums []int
	for n := range f.parts {
		nums = append(nums, n)
	}

	slices.Sort(nums)

	var out []byte
	for _, n := range nums {
		out = append(out, f.parts[n]...)
	}

	return out
}

func (f *fakeDrive) GetFile(_ context.Context, _ driveid.ID, fileID string) (*adrive.FileEntry, error) {
	if fileID != f.fileID {
		return nil, fmt.Errorf("get: %w", adrive.ErrNotFound)
	}

	typ := "file"
	if f.folder {
		typ = "folder"
	}

	return &adrive.FileEntry{FileID: fileID, Name: f.fileName, Size: int64(len(f.content)), Type: typ}, nil
}

func (f *fakeDrive) GetDownloadURL(_ context.Context, _ driveid.ID, fileID string) (*adrive.DownloadURL, error) {
	return &adrive.DownloadURL{URL: "https://download.invalid/" + fileID}, nil
}

func (f *fakeDrive) DownloadRange(_ context.Context, _ string, w io.Writer, start, end int64) (int64, error) {
	f.mu.Lock()
	f.ranges = append(f.ranges, adrive.RangeHeader(start, end))
	fail := f.failStart == start
	if fail {
		f.failStart = -1
	}
	f.mu.Unlock()

	if fail {
		return 0, errors.New("connection reset")
	}

	stop := int64(len(f.content))
	if end >= 0 {
		stop = end + 1
	}

	n, err := w.Write(f.content[start:stop])

	return int64(n), err
}

func (f *fakeDrive) seenRanges() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return slices.Clone(f.ranges)
}

// patterned returns n bytes that differ at every position modulo 251.
func patterned(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}

	return b
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

func openTemp(t *testing.T, data []byte) *os.File {
	t.Helper()

	f, err := os.Open(writeTemp(t, "content.bin", data))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	return f
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sha1Of(b []byte) []byte {
	h := adrivehash.New()
	h.Write(b)

	return h.Sum(nil)
}
