// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"zapdock/internal/overlay"
)

// Default image assembly constants. The scanner tree lives under /zap and the
// runtime identity is the unprivileged zap account.
const (
	DefaultBaseImage = "ubuntu:24.04"
	DefaultUser      = "zap"
	DefaultHome      = "/home/zap"
	DefaultWorkDir   = "/zap"
	DefaultZapPath   = "/zap/zap.sh"

	DefaultProxyPort    = 8080
	DefaultVNCPort      = 5900
	DefaultWebswingPort = 8081
)

var (
	// ErrLiteralCredential indicates a spec tries to bake a password into the
	// image instead of referencing an injected secret file.
	ErrLiteralCredential = errors.New("literal credential in image spec")

	// ErrInvalidSpec indicates the spec failed structural validation.
	ErrInvalidSpec = errors.New("invalid image spec")
)

type (
	// EnvVar is one ordered environment variable declaration.
	EnvVar struct {
		Name  string
		Value string
	}

	// HealthCheck declares the image's periodic liveness probe.
	HealthCheck struct {
		Interval time.Duration
		Retries  int
		Command  string
	}

	// Spec describes everything the generated recipe assembles: base image,
	// OS packages, the runtime account, the unpacked distributions, the
	// overlay file set, environment, ports, and the health check.
	Spec struct {
		BaseImage string
		Channel   string

		// Build-context directory names holding the unpacked distributions.
		ScannerDir string
		BridgeDir  string

		Packages []string

		User    string
		Home    string
		WorkDir string

		Env          []EnvVar
		ExposedPorts []int
		Health       HealthCheck
		Overlay      []overlay.File

		Entrypoint string
	}
)

// basePackages is the fixed OS package set: Java runtime, virtual
// framebuffer and VNC utilities, and the Python runtime that carries the
// automation CLI.
var basePackages = []string{
	"ca-certificates",
	"curl",
	"openjdk-17-jre",
	"xvfb",
	"x11vnc",
	"xterm",
	"net-tools",
	"python3",
	"python3-pip",
}

// DefaultSpec returns the assembly spec for the given release channel with
// the canonical zap layout and environment.
func DefaultSpec(channel string, files []overlay.File) *Spec {
	return &Spec{
		BaseImage:  DefaultBaseImage,
		Channel:    channel,
		ScannerDir: "scanner",
		BridgeDir:  "webswing-2.3",
		Packages:   append([]string(nil), basePackages...),
		User:       DefaultUser,
		Home:       DefaultHome,
		WorkDir:    DefaultWorkDir,
		Env: []EnvVar{
			{Name: "JAVA_HOME", Value: "/usr/lib/jvm/java-17-openjdk-amd64"},
			{Name: "PATH", Value: "/usr/lib/jvm/java-17-openjdk-amd64/bin:/zap:$PATH"},
			{Name: "ZAP_PATH", Value: DefaultZapPath},
			{Name: "ZAP_PORT", Value: fmt.Sprintf("%d", DefaultProxyPort)},
			{Name: "VNC_PORT", Value: fmt.Sprintf("%d", DefaultVNCPort)},
			{Name: "WEBSWING_PORT", Value: fmt.Sprintf("%d", DefaultWebswingPort)},
			{Name: "HOME", Value: DefaultHome + "/"},
		},
		ExposedPorts: []int{DefaultProxyPort, DefaultVNCPort, DefaultWebswingPort},
		Health: HealthCheck{
			Interval: 5 * time.Second,
			Retries:  5,
			Command:  "zap-cli status -t 120",
		},
		Overlay:    files,
		Entrypoint: "/zap/zap-x.sh",
	}
}

// SetPorts moves the image onto non-default ports. The env the launcher
// scripts bind to and the EXPOSE list change together, so a published
// host:container mapping of the same numbers always reaches a listener.
func (s *Spec) SetPorts(proxy, vnc, webswing uint16) {
	s.setEnv("ZAP_PORT", fmt.Sprintf("%d", proxy))
	s.setEnv("VNC_PORT", fmt.Sprintf("%d", vnc))
	s.setEnv("WEBSWING_PORT", fmt.Sprintf("%d", webswing))
	s.ExposedPorts = []int{int(proxy), int(vnc), int(webswing)}
}

// setEnv replaces an existing env entry in place or appends a new one,
// keeping declaration order stable.
func (s *Spec) setEnv(name, value string) {
	for i := range s.Env {
		if s.Env[i].Name == name {
			s.Env[i].Value = value
			return
		}
	}
	s.Env = append(s.Env, EnvVar{Name: name, Value: value})
}

// Validate checks the spec's structural invariants and refuses any literal
// credential. Environment variables whose name suggests a secret must point
// at a file injected at container start, never carry the value itself.
func (s *Spec) Validate() error {
	var errs []error

	if s.BaseImage == "" {
		errs = append(errs, fmt.Errorf("%w: base image is required", ErrInvalidSpec))
	}
	if s.Channel == "" {
		errs = append(errs, fmt.Errorf("%w: release channel is required", ErrInvalidSpec))
	}
	if s.User == "" {
		errs = append(errs, fmt.Errorf("%w: runtime user is required", ErrInvalidSpec))
	}
	if !path.IsAbs(s.WorkDir) {
		errs = append(errs, fmt.Errorf("%w: workdir must be absolute, got %q", ErrInvalidSpec, s.WorkDir))
	}
	if s.ScannerDir == "" || s.BridgeDir == "" {
		errs = append(errs, fmt.Errorf("%w: scanner and bridge directories are required", ErrInvalidSpec))
	}
	if s.Health.Interval <= 0 || s.Health.Retries <= 0 {
		errs = append(errs, fmt.Errorf("%w: health check needs a positive interval and retry budget", ErrInvalidSpec))
	}

	for _, env := range s.Env {
		if isCredentialName(env.Name) && !strings.HasSuffix(env.Name, "_FILE") {
			errs = append(errs, fmt.Errorf("%w: %s must reference a secret file, not carry a value", ErrLiteralCredential, env.Name))
		}
	}

	for _, f := range s.Overlay {
		if !path.IsAbs(f.Dest) {
			errs = append(errs, fmt.Errorf("%w: overlay destination %q is not absolute", ErrInvalidSpec, f.Dest))
		}
	}

	return errors.Join(errs...)
}

func isCredentialName(name string) bool {
	upper := strings.ToUpper(name)
	return strings.Contains(upper, "PASSWORD") || strings.Contains(upper, "SECRET") || strings.Contains(upper, "TOKEN")
}
