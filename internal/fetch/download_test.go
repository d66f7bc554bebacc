// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestDownload(t *testing.T) {
	t.Parallel()

	const body = "weekly scanner artifact"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte(body)); err != nil {
			t.Errorf("writing response: %v", err)
		}
	}))
	t.Cleanup(srv.Close)

	destDir := t.TempDir()
	d := NewDownloader(WithUserAgent("zapdock-test"))

	got, err := d.Download(context.Background(), srv.URL+"/ZAP_WEEKLY_D-2026-08-24.zip", destDir)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	if filepath.Base(got) != "ZAP_WEEKLY_D-2026-08-24.zip" {
		t.Errorf("Download() filename = %q, want URL basename", filepath.Base(got))
	}

	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if string(data) != body {
		t.Errorf("downloaded content = %q, want %q", data, body)
	}

	// No stray temp files should survive a successful download.
	entries, err := os.ReadDir(destDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("destDir has %d entries after download, want 1", len(entries))
	}
}

func TestDownloadContentDisposition(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="webswing-2.3-distribution.zip"`)
		_, _ = w.Write([]byte("bridge archive"))
	}))
	t.Cleanup(srv.Close)

	d := NewDownloader()
	got, err := d.Download(context.Background(), srv.URL+"/download?id=42", t.TempDir())
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	if filepath.Base(got) != "webswing-2.3-distribution.zip" {
		t.Errorf("Download() filename = %q, want header filename", filepath.Base(got))
	}
}

func TestDownloadRejectsTraversalFilename(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="../../evil.sh"`)
		_, _ = w.Write([]byte("payload"))
	}))
	t.Cleanup(srv.Close)

	destDir := t.TempDir()
	d := NewDownloader()

	got, err := d.Download(context.Background(), srv.URL+"/artifact.zip", destDir)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	// The traversal components must be stripped; the file lands in destDir.
	if filepath.Dir(got) != destDir {
		t.Errorf("Download() wrote outside destDir: %s", got)
	}
}

func TestDownloadServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	d := NewDownloader()
	if _, err := d.Download(context.Background(), srv.URL+"/missing.zip", t.TempDir()); err == nil {
		t.Fatal("Download() error = nil, want error for 404")
	}
}

func TestDownloadTruncatedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Advertise more bytes than we send.
		w.Header().Set("Content-Length", "1024")
		_, _ = w.Write([]byte("short"))
	}))
	t.Cleanup(srv.Close)

	destDir := t.TempDir()
	d := NewDownloader()
	if _, err := d.Download(context.Background(), srv.URL+"/artifact.zip", destDir); err == nil {
		t.Fatal("Download() error = nil, want error for truncated body")
	}

	// The closed temp file must be cleaned up on failure.
	entries, err := os.ReadDir(destDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("destDir has %d entries after failed download, want 0", len(entries))
	}
}
