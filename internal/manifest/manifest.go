// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	// maxXMLResponseBytes is the upper bound on feed response size (10 MB).
	// Prevents unbounded memory consumption from malicious or malformed feeds.
	maxXMLResponseBytes = 10 << 20

	// sha256Prefix is the hash-algorithm prefix used by the feed.
	sha256Prefix = "SHA-256:"
)

var (
	// ErrChannelNotFound is the sentinel error wrapped by ChannelNotFoundError.
	ErrChannelNotFound = errors.New("release channel not found")

	// ErrAmbiguousChannel is the sentinel error wrapped by AmbiguousChannelError.
	ErrAmbiguousChannel = errors.New("ambiguous release channel")

	// ErrInvalidManifest indicates the feed decoded but failed schema validation.
	ErrInvalidManifest = errors.New("invalid version manifest")
)

type (
	// Release is one downloadable scanner artifact in the version manifest.
	Release struct {
		Channel string // Release channel name, e.g. "weekly"
		Version string // Artifact version, e.g. "D-2026-08-24"
		URL     string // Direct download URL
		File    string // Artifact filename, e.g. "ZAP_WEEKLY_D-2026-08-24.zip"
		Size    int64  // Artifact size in bytes (0 if the feed omits it)
		SHA256  string // Lowercase hex digest ("" if the feed omits it)
		Date    string // ISO 8601 release date
	}

	// ChannelNotFoundError is returned when no manifest entry matches the
	// requested channel. It wraps ErrChannelNotFound for errors.Is().
	ChannelNotFoundError struct {
		Channel  string
		Channels []string // Channels that were present in the feed
	}

	// AmbiguousChannelError is returned when more than one manifest entry
	// matches the requested channel. It wraps ErrAmbiguousChannel.
	AmbiguousChannelError struct {
		Channel    string
		Candidates []Release
	}

	// Client fetches the version-manifest feed.
	Client struct {
		httpClient *http.Client
		feedURL    string
		userAgent  string
	}

	// ClientOption configures a Client during construction.
	ClientOption func(*Client)

	// xmlManifest is the XML wire format of the feed document.
	xmlManifest struct {
		XMLName  xml.Name     `xml:"releases"`
		Releases []xmlRelease `xml:"release"`
	}

	// xmlRelease is the XML wire format of one feed entry.
	xmlRelease struct {
		Channel string `xml:"channel"`
		Version string `xml:"version"`
		URL     string `xml:"url"`
		File    string `xml:"file"`
		Size    int64  `xml:"size"`
		Hash    string `xml:"hash"`
		Date    string `xml:"date"`
	}
)

// Error formats the missing channel with the channels actually present,
// so a renamed upstream channel is diagnosable from the message alone.
func (e *ChannelNotFoundError) Error() string {
	if len(e.Channels) == 0 {
		return fmt.Sprintf("release channel %q not found: feed contains no releases", e.Channel)
	}
	return fmt.Sprintf("release channel %q not found (feed has: %s)",
		e.Channel, strings.Join(e.Channels, ", "))
}

// Unwrap returns ErrChannelNotFound so callers can use errors.Is.
func (e *ChannelNotFoundError) Unwrap() error { return ErrChannelNotFound }

// Error lists every candidate so the caller can see what made the match ambiguous.
func (e *AmbiguousChannelError) Error() string {
	files := make([]string, len(e.Candidates))
	for i, r := range e.Candidates {
		files[i] = r.File
	}
	return fmt.Sprintf("release channel %q matches %d entries (%s): refusing to guess",
		e.Channel, len(e.Candidates), strings.Join(files, ", "))
}

// Unwrap returns ErrAmbiguousChannel so callers can use errors.Is.
func (e *AmbiguousChannelError) Unwrap() error { return ErrAmbiguousChannel }

// WithHTTPClient sets a custom HTTP client, useful for tests or proxies.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(m *Client) {
		m.httpClient = c
	}
}

// WithFeedURL overrides the version-manifest feed URL.
func WithFeedURL(url string) ClientOption {
	return func(m *Client) {
		m.feedURL = url
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(m *Client) {
		m.userAgent = ua
	}
}

// NewClient creates a manifest client. The feed URL must be supplied via
// WithFeedURL (the config layer carries the default).
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		userAgent:  "zapdock/dev",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves and decodes the version manifest. Entries missing a URL or
// file name fail validation; a feed whose shape changed upstream is reported
// as ErrInvalidManifest rather than silently producing an empty selection.
func (c *Client) Fetch(ctx context.Context) ([]Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building manifest request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/xml, text/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching manifest: unexpected status %s", resp.Status)
	}

	var doc xmlManifest
	dec := xml.NewDecoder(io.LimitReader(resp.Body, maxXMLResponseBytes))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	releases := make([]Release, 0, len(doc.Releases))
	for i, entry := range doc.Releases {
		if entry.Channel == "" {
			return nil, fmt.Errorf("%w: entry %d has no channel", ErrInvalidManifest, i)
		}
		if entry.URL == "" || entry.File == "" {
			return nil, fmt.Errorf("%w: entry %d (channel %q) is missing url or file",
				ErrInvalidManifest, i, entry.Channel)
		}
		releases = append(releases, Release{
			Channel: entry.Channel,
			Version: entry.Version,
			URL:     entry.URL,
			File:    entry.File,
			Size:    entry.Size,
			SHA256:  normalizeHash(entry.Hash),
			Date:    entry.Date,
		})
	}

	return releases, nil
}

// SelectChannel returns the single release whose channel field matches the
// requested channel, compared case-insensitively. Zero matches return a
// ChannelNotFoundError; more than one returns an AmbiguousChannelError.
func SelectChannel(releases []Release, channel string) (Release, error) {
	var matches []Release
	seen := make(map[string]struct{})
	var channels []string

	for _, r := range releases {
		if _, ok := seen[r.Channel]; !ok {
			seen[r.Channel] = struct{}{}
			channels = append(channels, r.Channel)
		}
		if strings.EqualFold(r.Channel, channel) {
			matches = append(matches, r)
		}
	}

	switch len(matches) {
	case 0:
		return Release{}, &ChannelNotFoundError{Channel: channel, Channels: channels}
	case 1:
		return matches[0], nil
	default:
		return Release{}, &AmbiguousChannelError{Channel: channel, Candidates: matches}
	}
}

// normalizeHash strips the feed's algorithm prefix and lowercases the digest.
// Hashes with an unrecognized algorithm prefix are dropped rather than
// carried forward and mistaken for SHA-256.
func normalizeHash(hash string) string {
	if hash == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(hash, sha256Prefix); ok {
		return strings.ToLower(rest)
	}
	if strings.Contains(hash, ":") {
		return ""
	}
	return strings.ToLower(hash)
}
