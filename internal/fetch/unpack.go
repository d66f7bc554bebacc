// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// maxEntryBytes is the upper bound on a single extracted archive entry (1 GB).
// Prevents decompression bombs when unpacking release archives.
const maxEntryBytes = 1 << 30

// ErrUnsupportedArchive indicates the archive extension is not one Unpack
// knows how to extract.
var ErrUnsupportedArchive = errors.New("unsupported archive format")

// Unpack extracts the archive at archivePath into destDir and returns the
// path of the archive's top-level directory inside destDir. Both .zip and
// .tar.gz archives are supported.
//
// Entries whose resolved path would escape destDir are rejected, as are
// symlink and hardlink entries. Regular files keep their executable bits so
// extracted launcher scripts stay runnable.
func Unpack(archivePath, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("creating extraction directory: %w", err)
	}

	switch {
	case strings.HasSuffix(archivePath, ".zip"):
		return unpackZip(archivePath, destDir)
	case strings.HasSuffix(archivePath, ".tar.gz"), strings.HasSuffix(archivePath, ".tgz"):
		return unpackTarGz(archivePath, destDir)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedArchive, filepath.Base(archivePath))
	}
}

func unpackZip(archivePath, destDir string) (string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", fmt.Errorf("opening archive %s: %w", archivePath, err)
	}
	defer func() { _ = zr.Close() }() // read-only archive handle

	var root string
	for _, file := range zr.File {
		if file.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("refusing symlink entry in archive: %s", file.Name)
		}

		destPath, err := entryDestPath(destDir, file.Name)
		if err != nil {
			return "", err
		}
		root = firstSegment(root, file.Name)

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return "", fmt.Errorf("creating directory %s: %w", destPath, err)
			}
			continue
		}

		if err := extractZipFile(file, destPath); err != nil {
			return "", fmt.Errorf("extracting %s: %w", file.Name, err)
		}
	}

	return filepath.Join(destDir, root), nil
}

func unpackTarGz(archivePath string, destDir string) (_ string, err error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("opening archive %s: %w", archivePath, err)
	}
	defer func() {
		// Read-only file handle; close errors are exotic.
		_ = f.Close()
	}()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("creating gzip reader: %w", err)
	}
	defer func() { _ = gz.Close() }() // read-only, wraps the file

	var root string
	tr := tar.NewReader(gz)
	for {
		hdr, nextErr := tr.Next()
		if errors.Is(nextErr, io.EOF) {
			break
		}
		if nextErr != nil {
			return "", fmt.Errorf("reading tar entry: %w", nextErr)
		}

		destPath, pathErr := entryDestPath(destDir, hdr.Name)
		if pathErr != nil {
			return "", pathErr
		}
		root = firstSegment(root, hdr.Name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return "", fmt.Errorf("creating directory %s: %w", destPath, err)
			}
		case tar.TypeReg:
			if err := writeEntry(destPath, tr, hdr.FileInfo().Mode()); err != nil {
				return "", fmt.Errorf("extracting %s: %w", hdr.Name, err)
			}
		case tar.TypeSymlink, tar.TypeLink:
			return "", fmt.Errorf("refusing link entry in archive: %s", hdr.Name)
		default:
			// Char devices, FIFOs and friends have no business in a release
			// archive; skip them.
			continue
		}
	}

	return filepath.Join(destDir, root), nil
}

// entryDestPath resolves an archive entry name inside destDir and rejects any
// entry whose cleaned path would land outside it.
func entryDestPath(destDir, name string) (string, error) {
	destPath := filepath.Join(destDir, filepath.FromSlash(name))

	relPath, err := filepath.Rel(destDir, destPath)
	if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path in archive: %s", name)
	}

	return destPath, nil
}

// firstSegment tracks the archive's top-level directory name across entries.
func firstSegment(current, name string) string {
	if current != "" {
		return current
	}
	seg, _, _ := strings.Cut(strings.TrimPrefix(name, "./"), "/")
	return seg
}

func extractZipFile(file *zip.File, destPath string) error {
	rc, err := file.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }() // read-only entry handle

	return writeEntry(destPath, rc, file.Mode())
}

// writeEntry streams one archive entry to disk, preserving the entry's
// permission bits so launcher scripts stay executable.
func writeEntry(destPath string, r io.Reader, mode os.FileMode) (err error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	dest, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := dest.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	n, err := io.Copy(dest, io.LimitReader(r, maxEntryBytes))
	if err != nil {
		return err
	}
	if n >= maxEntryBytes {
		return fmt.Errorf("entry exceeds %d byte limit", int64(maxEntryBytes))
	}

	return nil
}
