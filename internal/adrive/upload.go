package adrive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// UploadPart PUTs one part's raw bytes to its pre-signed upload URL.
// The request carries the bearer token and no content type: the server
// hashes the byte stream exactly as received.
func (c *Client) UploadPart(ctx context.Context, uploadURL string, partNumber int, data []byte) error {
	if uploadURL == "" {
		return fmt.Errorf("adrive: part %d has no upload url", partNumber)
	}

	req := outbound{
		method:  http.MethodPut,
		url:     uploadURL,
		logName: fmt.Sprintf("upload-url[part %d]", partNumber),
		body:    data,
		auth:    true,
	}

	if req.body == nil {
		req.body = []byte{}
	}

	resp, err := c.send(ctx, &req)
	if err != nil {
		return fmt.Errorf("adrive: uploading part %d: %w", partNumber, err)
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	c.logger.Debug("part uploaded",
		slog.Int("part_number", partNumber),
		slog.Int("bytes", len(data)),
		slog.Int("status", resp.StatusCode),
	)

	return nil
}
