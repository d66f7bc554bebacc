// SPDX-License-Identifier: MPL-2.0

package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// maxAPIResponseBytes caps JSON API responses (50 MB); alert lists on large
// sites can get big but not unbounded.
const maxAPIResponseBytes = 50 << 20

type (
	// Alert is one finding reported by the scanner.
	Alert struct {
		PluginID   string `json:"pluginId"`
		Name       string `json:"alert"`
		Risk       string `json:"risk"`
		Confidence string `json:"confidence"`
		URL        string `json:"url"`
		Param      string `json:"param"`
	}

	// APIClient talks to the scanner's JSON API on the proxy port.
	APIClient struct {
		baseURL    string
		apiKey     string
		httpClient *http.Client
	}

	// APIClientOption configures an APIClient during construction.
	APIClientOption func(*APIClient)
)

// WithAPIKey sets the API key sent with every request.
func WithAPIKey(key string) APIClientOption {
	return func(c *APIClient) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client, useful for tests or proxies.
func WithHTTPClient(httpClient *http.Client) APIClientOption {
	return func(c *APIClient) {
		c.httpClient = httpClient
	}
}

// NewAPIClient creates a client for the scanner API at baseURL
// (e.g. "http://127.0.0.1:8080").
func NewAPIClient(baseURL string, opts ...APIClientOption) *APIClient {
	c := &APIClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Version returns the scanner's reported version.
func (c *APIClient) Version(ctx context.Context) (string, error) {
	var out struct {
		Version string `json:"version"`
	}
	if err := c.get(ctx, "/JSON/core/view/version/", nil, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// AccessURL makes the scanner proxy the target once, seeding its site tree.
func (c *APIClient) AccessURL(ctx context.Context, target string) error {
	var out map[string]any
	return c.get(ctx, "/JSON/core/action/accessUrl/", url.Values{"url": {target}}, &out)
}

// SpiderScan starts a spider against target and returns the scan ID.
func (c *APIClient) SpiderScan(ctx context.Context, target string) (string, error) {
	var out struct {
		Scan string `json:"scan"`
	}
	if err := c.get(ctx, "/JSON/spider/action/scan/", url.Values{"url": {target}}, &out); err != nil {
		return "", err
	}
	if out.Scan == "" {
		return "", fmt.Errorf("spider scan of %s: no scan ID returned", target)
	}
	return out.Scan, nil
}

// SpiderStatus returns the spider's completion percentage (0-100).
func (c *APIClient) SpiderStatus(ctx context.Context, scanID string) (int, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/JSON/spider/view/status/", url.Values{"scanId": {scanID}}, &out); err != nil {
		return 0, err
	}
	pct, err := strconv.Atoi(out.Status)
	if err != nil {
		return 0, fmt.Errorf("spider status %q is not a percentage: %w", out.Status, err)
	}
	return pct, nil
}

// RecordsToScan returns the passive-scan queue depth.
func (c *APIClient) RecordsToScan(ctx context.Context) (int, error) {
	var out struct {
		Records string `json:"recordsToScan"`
	}
	if err := c.get(ctx, "/JSON/pscan/view/recordsToScan/", nil, &out); err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(out.Records)
	if err != nil {
		return 0, fmt.Errorf("records to scan %q is not a count: %w", out.Records, err)
	}
	return n, nil
}

// Alerts returns every alert recorded for targets under baseURL, paging
// through the API until a short page signals the end.
func (c *APIClient) Alerts(ctx context.Context, baseURL string) ([]Alert, error) {
	const pageSize = 500

	var alerts []Alert
	for start := 0; ; start += pageSize {
		var out struct {
			Alerts []Alert `json:"alerts"`
		}
		params := url.Values{
			"baseurl": {baseURL},
			"start":   {strconv.Itoa(start)},
			"count":   {strconv.Itoa(pageSize)},
		}
		if err := c.get(ctx, "/JSON/core/view/alerts/", params, &out); err != nil {
			return nil, err
		}

		alerts = append(alerts, out.Alerts...)
		if len(out.Alerts) < pageSize {
			return alerts, nil
		}
	}
}

// Shutdown asks the scanner process to exit.
func (c *APIClient) Shutdown(ctx context.Context) error {
	var out map[string]any
	return c.get(ctx, "/JSON/core/action/shutdown/", nil, &out)
}

func (c *APIClient) get(ctx context.Context, apiPath string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}

	reqURL := c.baseURL + apiPath
	if encoded := params.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("building API request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("scanner API %s: %w", apiPath, err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only HTTP response body

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("scanner API %s: unexpected status %s", apiPath, resp.Status)
	}

	body := io.LimitReader(resp.Body, maxAPIResponseBytes)
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("scanner API %s: decoding response: %w", apiPath, err)
	}
	return nil
}
