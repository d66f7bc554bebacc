// SPDX-License-Identifier: MPL-2.0

package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"zapdock/internal/container"
)

type (
	// CLIProbe checks liveness by running the automation CLI's status command
	// inside the container, mirroring the image's own HEALTHCHECK.
	CLIProbe struct {
		engine      container.Engine
		containerID container.ContainerID
		command     []string
	}

	// HTTPProbe checks liveness by asking the scanner's JSON API for its
	// version, useful when the proxy port is published to the host.
	HTTPProbe struct {
		url        string
		httpClient *http.Client
	}
)

// NewCLIProbe creates a probe that execs command in the given container.
// An empty command defaults to the automation CLI status query.
func NewCLIProbe(engine container.Engine, id container.ContainerID, command []string) *CLIProbe {
	if len(command) == 0 {
		command = []string{"zap-cli", "status", "-t", "120"}
	}
	return &CLIProbe{engine: engine, containerID: id, command: command}
}

// Check runs the status command; a non-zero exit is a failed probe.
func (p *CLIProbe) Check(ctx context.Context) error {
	result, err := p.engine.Exec(ctx, p.containerID, p.command, container.RunOptions{})
	if err != nil {
		return fmt.Errorf("status probe: %w", err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("status probe: %s exited %d", strings.Join(p.command, " "), result.ExitCode)
	}
	return nil
}

// NewHTTPProbe creates a probe against the scanner API at baseURL
// (e.g. "http://127.0.0.1:8080").
func NewHTTPProbe(baseURL string, httpClient *http.Client) *HTTPProbe {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPProbe{
		url:        strings.TrimSuffix(baseURL, "/") + "/JSON/core/view/version/",
		httpClient: httpClient,
	}
}

// Check fetches the version view; any non-200 response is a failed probe.
func (p *HTTPProbe) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("version probe: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("version probe: %w", err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only HTTP response body

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("version probe: unexpected status %s", resp.Status)
	}
	return nil
}
