// SPDX-License-Identifier: MPL-2.0

// Package manifest fetches and filters the scanner's version-manifest feed.
//
// The feed is an XML document enumerating release artifacts per channel
// (weekly, stable). Selection is an exact match against the structured
// channel field: zero or multiple matches fail loudly with typed errors
// instead of falling back to a best-effort text filter.
package manifest
