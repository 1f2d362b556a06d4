package adrive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/adrive-go/internal/driveid"
)

// Open API endpoints used by the transfer engine.
const (
	pathCreate            = "/adrive/v1.0/openFile/create"
	pathGetUploadURL      = "/adrive/v1.0/openFile/getUploadUrl"
	pathListUploadedParts = "/adrive/v1.0/openFile/listUploadedParts"
	pathComplete          = "/adrive/v1.0/openFile/complete"
	pathGet               = "/adrive/v1.0/openFile/get"
	pathGetDownloadURL    = "/adrive/v1.0/openFile/getDownloadUrl"
)

// downloadURLExpireSec is the lifetime requested for download URLs.
const downloadURLExpireSec = 900

// fileType is the only object type this package creates.
const fileType = "file"

type uploadRef struct {
	DriveID  driveid.ID `json:"drive_id"`
	FileID   string     `json:"file_id"`
	UploadID string     `json:"upload_id"`
}

type getUploadURLRequest struct {
	uploadRef
	PartInfoList []PartInfo `json:"part_info_list"`
}

type getUploadURLResponse struct {
	PartInfoList []PartInfo `json:"part_info_list"`
}

type listUploadedPartsRequest struct {
	uploadRef
	PartNumberMarker int `json:"part_number_marker,omitempty"`
}

type fileRef struct {
	DriveID driveid.ID `json:"drive_id"`
	FileID  string     `json:"file_id"`
}

type getDownloadURLRequest struct {
	fileRef
	ExpireSec int `json:"expire_sec"`
}

// CreateFile submits an openFile/create request. A 409 carrying the
// PreHashMatched code is returned as PreHashMatched, not as an error.
// The name is normalized to NFC before sending.
func (c *Client) CreateFile(ctx context.Context, req *CreateFileRequest) (CreateFileResponse, error) {
	body := *req
	body.Name = norm.NFC.String(req.Name)

	if body.Type == "" {
		body.Type = fileType
	}

	if body.CheckNameMode == "" {
		body.CheckNameMode = CheckNameAutoRename
	}

	c.logger.Info("create file",
		slog.String("drive_id", body.DriveID.String()),
		slog.String("parent_id", body.ParentFileID),
		slog.String("name", body.Name),
		slog.Int64("size", body.Size),
		slog.Bool("pre_hash", body.PreHash != ""),
		slog.Bool("content_hash", body.ContentHash != ""),
		slog.Int("parts", len(body.PartInfoList)),
	)

	created, err := post[FileCreated](ctx, c, pathCreate, &body)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict && apiErr.Code == CodePreHashMatched {
			c.logger.Debug("pre-hash matched",
				slog.String("name", body.Name),
				slog.String("request_id", apiErr.RequestID),
			)

			return PreHashMatched{RequestID: apiErr.RequestID}, nil
		}

		return nil, fmt.Errorf("adrive: creating %q: %w", body.Name, err)
	}

	if created.FileID == "" {
		return nil, fmt.Errorf("%w: create response has no file_id", ErrMalformedResponse)
	}

	return created, nil
}

// GetUploadURL requests fresh pre-signed URLs for the given part numbers of
// a pending upload.
func (c *Client) GetUploadURL(
	ctx context.Context, driveID driveid.ID, fileID, uploadID string, partNumbers []int,
) ([]PartInfo, error) {
	req := getUploadURLRequest{
		uploadRef:    uploadRef{DriveID: driveID, FileID: fileID, UploadID: uploadID},
		PartInfoList: make([]PartInfo, len(partNumbers)),
	}

	for i, n := range partNumbers {
		req.PartInfoList[i] = PartInfo{PartNumber: n}
	}

	c.logger.Debug("refreshing upload urls",
		slog.String("file_id", fileID),
		slog.String("upload_id", uploadID),
		slog.Int("parts", len(partNumbers)),
	)

	resp, err := post[getUploadURLResponse](ctx, c, pathGetUploadURL, &req)
	if err != nil {
		return nil, fmt.Errorf("adrive: refreshing upload urls for %s: %w", fileID, err)
	}

	return resp.PartInfoList, nil
}

// ListUploadedParts returns one page of the parts the server holds for a
// pending upload. marker is zero for the first page.
func (c *Client) ListUploadedParts(
	ctx context.Context, driveID driveid.ID, fileID, uploadID string, marker int,
) (*UploadedPartsPage, error) {
	req := listUploadedPartsRequest{
		uploadRef:        uploadRef{DriveID: driveID, FileID: fileID, UploadID: uploadID},
		PartNumberMarker: marker,
	}

	page, err := post[UploadedPartsPage](ctx, c, pathListUploadedParts, &req)
	if err != nil {
		return nil, fmt.Errorf("adrive: listing uploaded parts of %s: %w", fileID, err)
	}

	c.logger.Debug("listed uploaded parts",
		slog.String("file_id", fileID),
		slog.Int("marker", marker),
		slog.Int("count", len(page.UploadedParts)),
		slog.String("next_marker", page.NextPartNumberMarker),
	)

	return page, nil
}

// CompleteUpload finalizes a pending upload and returns the file metadata.
func (c *Client) CompleteUpload(ctx context.Context, driveID driveid.ID, fileID, uploadID string) (*FileEntry, error) {
	req := uploadRef{DriveID: driveID, FileID: fileID, UploadID: uploadID}

	entry, err := post[FileEntry](ctx, c, pathComplete, &req)
	if err != nil {
		return nil, fmt.Errorf("adrive: completing upload of %s: %w", fileID, err)
	}

	c.logger.Info("upload completed",
		slog.String("file_id", entry.FileID),
		slog.String("name", entry.Name),
		slog.Int64("size", entry.Size),
	)

	return entry, nil
}

// GetFile returns the metadata of a file by id.
func (c *Client) GetFile(ctx context.Context, driveID driveid.ID, fileID string) (*FileEntry, error) {
	entry, err := post[FileEntry](ctx, c, pathGet, &fileRef{DriveID: driveID, FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("adrive: getting file %s: %w", fileID, err)
	}

	return entry, nil
}

// GetDownloadURL returns a pre-signed download URL for a file.
func (c *Client) GetDownloadURL(ctx context.Context, driveID driveid.ID, fileID string) (*DownloadURL, error) {
	req := getDownloadURLRequest{
		fileRef:   fileRef{DriveID: driveID, FileID: fileID},
		ExpireSec: downloadURLExpireSec,
	}

	u, err := post[DownloadURL](ctx, c, pathGetDownloadURL, &req)
	if err != nil {
		return nil, fmt.Errorf("adrive: getting download url for %s: %w", fileID, err)
	}

	if u.URL == "" {
		return nil, fmt.Errorf("%w: empty download url for %s", ErrMalformedResponse, fileID)
	}

	return u, nil
}
