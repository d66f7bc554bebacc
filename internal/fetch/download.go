// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// maxArtifactBytes is the upper bound on a single downloaded artifact (2 GB).
// Scanner release archives run a few hundred megabytes; anything past this
// limit is a broken or hostile server.
const maxArtifactBytes = 2 << 30

type (
	// Downloader retrieves release artifacts over HTTP.
	Downloader struct {
		httpClient *http.Client
		userAgent  string
		logger     *slog.Logger
	}

	// DownloaderOption configures a Downloader during construction.
	DownloaderOption func(*Downloader)
)

// WithHTTPClient sets a custom HTTP client, useful for tests or proxies.
func WithHTTPClient(c *http.Client) DownloaderOption {
	return func(d *Downloader) {
		d.httpClient = c
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) DownloaderOption {
	return func(d *Downloader) {
		d.userAgent = ua
	}
}

// WithLogger sets the logger used for download progress messages.
func WithLogger(l *slog.Logger) DownloaderOption {
	return func(d *Downloader) {
		d.logger = l
	}
}

// NewDownloader creates a Downloader with sensible defaults.
func NewDownloader(opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		httpClient: http.DefaultClient,
		userAgent:  "zapdock/dev",
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download fetches url into destDir and returns the path of the downloaded
// file. The filename comes from the server's Content-Disposition header when
// present, otherwise from the last URL path segment, so an artifact served
// through a redirecting mirror keeps its canonical name.
//
// The body streams into a temp file in destDir and is renamed into place only
// once the full stream has been read.
func (d *Downloader) Download(ctx context.Context, url, destDir string) (_ string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building download request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only HTTP response body

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading %s: unexpected status %s", url, resp.Status)
	}

	filename, err := artifactFilename(resp, url)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("creating download directory: %w", err)
	}

	d.logger.Info("downloading artifact",
		"file", filename,
		"size", resp.ContentLength,
	)

	tmp, err := os.CreateTemp(destDir, ".zapdock-download-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			// Best-effort removal of partially written temp file.
			_ = os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, maxArtifactBytes))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("writing %s: %w", filename, err)
	}
	if n >= maxArtifactBytes {
		return "", fmt.Errorf("downloading %s: artifact exceeds %d byte limit", url, int64(maxArtifactBytes))
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return "", fmt.Errorf("downloading %s: got %d bytes, server advertised %d", url, n, resp.ContentLength)
	}

	// The handle is closed by now; Windows refuses to rename open files.
	destPath := filepath.Join(destDir, filename)
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return "", fmt.Errorf("moving %s into place: %w", filename, err)
	}

	d.logger.Debug("download complete", "path", destPath, "bytes", n)
	return destPath, nil
}

// artifactFilename determines the local filename for a download, preferring
// the Content-Disposition header over the URL path. The result is reduced to
// its base name so a header like "../../etc/passwd" cannot escape destDir.
func artifactFilename(resp *http.Response, url string) (string, error) {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := filepath.Base(filepath.Clean(params["filename"])); validFilename(name) {
				return name, nil
			}
		}
	}

	trimmed := strings.SplitN(url, "?", 2)[0]
	if name := path.Base(trimmed); validFilename(name) {
		return name, nil
	}

	return "", fmt.Errorf("cannot determine filename for %s", url)
}

func validFilename(name string) bool {
	return name != "" && name != "." && name != ".." && name != "/" && name != string(filepath.Separator)
}
