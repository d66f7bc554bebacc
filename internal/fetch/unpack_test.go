// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// writeZip builds a zip archive from name/content pairs. Names ending in "/"
// become directory entries; names listed in executables get mode 0755.
func writeZip(t *testing.T, entries map[string]string, executables ...string) string {
	t.Helper()

	execSet := make(map[string]bool, len(executables))
	for _, name := range executables {
		execSet[name] = true
	}

	path := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range entries {
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
		if execSet[name] {
			hdr.SetMode(0o755)
		} else {
			hdr.SetMode(0o644)
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestUnpackZip(t *testing.T) {
	t.Parallel()

	archive := writeZip(t, map[string]string{
		"ZAP_D-2026-08-24/zap.sh":           "#!/bin/bash\nexec java -jar zap.jar \"$@\"\n",
		"ZAP_D-2026-08-24/zap.jar":          "jar bytes",
		"ZAP_D-2026-08-24/plugin/ascan.zap": "addon bytes",
	}, "ZAP_D-2026-08-24/zap.sh")

	destDir := t.TempDir()
	root, err := Unpack(archive, destDir)
	if err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}

	if filepath.Base(root) != "ZAP_D-2026-08-24" {
		t.Errorf("Unpack() root = %q, want archive top-level dir", root)
	}

	launcher := filepath.Join(root, "zap.sh")
	info, err := os.Stat(launcher)
	if err != nil {
		t.Fatalf("stat launcher: %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		t.Errorf("launcher mode = %v, want executable bits preserved", info.Mode())
	}

	if _, err := os.Stat(filepath.Join(root, "plugin", "ascan.zap")); err != nil {
		t.Errorf("nested entry missing: %v", err)
	}
}

func TestUnpackZipRejectsTraversal(t *testing.T) {
	t.Parallel()

	archive := writeZip(t, map[string]string{
		"../evil.sh": "#!/bin/sh\n",
	})

	if _, err := Unpack(archive, t.TempDir()); err == nil {
		t.Fatal("Unpack() error = nil, want path traversal rejection")
	}
}

func TestUnpackTarGz(t *testing.T) {
	t.Parallel()

	archive := filepath.Join(t.TempDir(), "test.tar.gz")
	f, err := os.Create(archive)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	files := []struct {
		name    string
		mode    int64
		content string
	}{
		{"ZAP_2.16.1/zap.sh", 0o755, "#!/bin/bash\n"},
		{"ZAP_2.16.1/README", 0o644, "readme"},
	}
	for _, file := range files {
		hdr := &tar.Header{
			Name: file.name,
			Mode: file.mode,
			Size: int64(len(file.content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(file.content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	root, err := Unpack(archive, t.TempDir())
	if err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}
	if filepath.Base(root) != "ZAP_2.16.1" {
		t.Errorf("Unpack() root = %q, want ZAP_2.16.1", root)
	}
	if _, err := os.Stat(filepath.Join(root, "README")); err != nil {
		t.Errorf("entry missing after extraction: %v", err)
	}
}

func TestUnpackTarGzRejectsSymlink(t *testing.T) {
	t.Parallel()

	archive := filepath.Join(t.TempDir(), "test.tar.gz")
	f, err := os.Create(archive)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	hdr := &tar.Header{
		Name:     "dist/link",
		Typeflag: tar.TypeSymlink,
		Linkname: "/etc/passwd",
	}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := Unpack(archive, t.TempDir()); err == nil {
		t.Fatal("Unpack() error = nil, want symlink rejection")
	}
}

func TestUnpackUnsupportedFormat(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "artifact.rar")
	if err := os.WriteFile(path, []byte("not an archive"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Unpack(path, t.TempDir()); !errors.Is(err, ErrUnsupportedArchive) {
		t.Fatalf("Unpack() error = %v, want ErrUnsupportedArchive", err)
	}
}
