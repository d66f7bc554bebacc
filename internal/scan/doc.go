// SPDX-License-Identifier: MPL-2.0

// Package scan drives a passive baseline scan through the scanner's JSON
// API: spider the target, wait for the passive-scan queue to drain, then
// classify every alert against a rule configuration into ignore, info, warn,
// and fail buckets. The overall outcome maps to a process exit code so CI
// pipelines can gate on it.
package scan
