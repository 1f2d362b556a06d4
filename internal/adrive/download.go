package adrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// ErrRangeIgnored is returned when a ranged GET is answered with the full
// body instead of 206 Partial Content.
var ErrRangeIgnored = errors.New("adrive: server ignored range request")

// RangeHeader formats an inclusive byte range. A negative end yields the
// open-ended form "bytes=start-".
func RangeHeader(start, end int64) string {
	if end < 0 {
		return fmt.Sprintf("bytes=%d-", start)
	}

	return fmt.Sprintf("bytes=%d-%d", start, end)
}

// DownloadRange GETs bytes [start, end] (inclusive) of a pre-signed
// download URL and streams them into w. A negative end reads to EOF;
// start 0 with a negative end sends no Range header at all. Returns the
// number of bytes written.
func (c *Client) DownloadRange(ctx context.Context, downloadURL string, w io.Writer, start, end int64) (int64, error) {
	req := outbound{
		method:  http.MethodGet,
		url:     downloadURL,
		logName: "download-url",
	}

	ranged := start > 0 || end >= 0
	if ranged {
		req.rangeHeader = RangeHeader(start, end)
	}

	resp, err := c.send(ctx, &req)
	if err != nil {
		return 0, fmt.Errorf("adrive: downloading %s: %w", RangeHeader(start, end), err)
	}
	defer resp.Body.Close()

	if ranged && resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("%w: %s answered with HTTP %d", ErrRangeIgnored, req.rangeHeader, resp.StatusCode)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("adrive: streaming %s after %d bytes: %w", RangeHeader(start, end), n, err)
	}

	if end >= 0 && n != end-start+1 {
		return n, fmt.Errorf("adrive: %s returned %d bytes: %w", req.rangeHeader, n, io.ErrUnexpectedEOF)
	}

	c.logger.Debug("range downloaded",
		slog.Int64("range_start", start),
		slog.Int64("range_end", end),
		slog.Int64("bytes", n),
	)

	return n, nil
}
