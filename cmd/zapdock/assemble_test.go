// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"zapdock/internal/fetch"
)

func TestDownloadArtifactReusesCacheByURLName(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("bridge archive bytes"))
	}))
	defer srv.Close()

	destDir := t.TempDir()
	d := fetch.NewDownloader()
	url := srv.URL + "/webswing-bridge.zip"

	first, err := downloadArtifact(context.Background(), d, url, destDir, "", "")
	if err != nil {
		t.Fatalf("first downloadArtifact() error = %v", err)
	}
	second, err := downloadArtifact(context.Background(), d, url, destDir, "", "")
	if err != nil {
		t.Fatalf("second downloadArtifact() error = %v", err)
	}

	if first != second {
		t.Errorf("cached path changed: %q then %q", first, second)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1 (second call should reuse the cache)", got)
	}
}

func TestDownloadArtifactRedownloadsOnChecksumMismatch(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("scanner archive bytes"))
	}))
	defer srv.Close()

	destDir := t.TempDir()
	d := fetch.NewDownloader()
	url := srv.URL + "/scanner.tar.gz"
	staleHash := strings.Repeat("0", 64)

	if _, err := downloadArtifact(context.Background(), d, url, destDir, "scanner.tar.gz", staleHash); err != nil {
		t.Fatalf("first downloadArtifact() error = %v", err)
	}
	if _, err := downloadArtifact(context.Background(), d, url, destDir, "scanner.tar.gz", staleHash); err != nil {
		t.Fatalf("second downloadArtifact() error = %v", err)
	}

	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2 (mismatched checksum must not reuse the cache)", got)
	}
}
