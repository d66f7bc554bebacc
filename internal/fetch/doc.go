// SPDX-License-Identifier: MPL-2.0

// Package fetch downloads scanner and bridge artifacts, verifies their SHA-256
// digests, and unpacks release archives into the assembly staging directory.
//
// Downloads stream to a temp file in the destination directory and are moved
// into place with os.Rename only after the stream completes, so a partially
// downloaded artifact never occupies the final path. Checksum verification
// wraps ErrChecksumMismatch in a *ChecksumError carrying both digests, and
// archive extraction guards against path traversal and symlink entries.
package fetch
