// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
)

// dirHash hashes a directory's file names, sizes, and modification times.
// Content hashing would be exact but the distributions run to hundreds of
// megabytes; metadata is enough to detect a re-download or overlay edit.
func dirHash(dirPath string) (string, error) {
	h := sha256.New()

	var entries []string
	err := filepath.WalkDir(dirPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(dirPath, p)
		if err != nil {
			return err
		}
		entries = append(entries, fmt.Sprintf("%s:%d:%d", relPath, info.Size(), info.ModTime().Unix()))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("hashing directory %s: %w", dirPath, err)
	}

	sort.Strings(entries)
	for _, entry := range entries {
		h.Write([]byte(entry))
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
