// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// ContainerEngineDocker uses the Docker CLI as the container runtime.
	ContainerEngineDocker ContainerEngine = "docker"
	// ContainerEnginePodman uses the Podman CLI as the container runtime.
	ContainerEnginePodman ContainerEngine = "podman"
	// ContainerEngineAPI speaks the Docker Engine API directly over the
	// socket, without shelling out to a CLI binary.
	ContainerEngineAPI ContainerEngine = "api"
)

var (
	// ErrInvalidContainerEngine is returned when a ContainerEngine value is not recognized.
	ErrInvalidContainerEngine = errors.New("invalid container engine")
	// ErrInvalidReleaseChannel is the sentinel error wrapped by InvalidReleaseChannelError.
	ErrInvalidReleaseChannel = errors.New("invalid release channel")
	// ErrInvalidHealthPolicy is the sentinel error wrapped by InvalidHealthPolicyError.
	ErrInvalidHealthPolicy = errors.New("invalid health policy")
)

type (
	// ContainerEngine specifies which container runtime to use.
	ContainerEngine string

	// InvalidContainerEngineError is returned when a ContainerEngine value is
	// not recognized. It wraps ErrInvalidContainerEngine for errors.Is().
	InvalidContainerEngineError struct {
		Value ContainerEngine
	}

	// ReleaseChannel names a scanner release channel in the version manifest.
	// A valid channel is non-empty and contains no whitespace.
	ReleaseChannel string

	// InvalidReleaseChannelError is returned when a ReleaseChannel value is
	// empty or contains whitespace. It wraps ErrInvalidReleaseChannel.
	InvalidReleaseChannelError struct {
		Value ReleaseChannel
	}

	// HealthPolicy carries the liveness probe parameters declared in the
	// generated recipe and used by the local prober.
	HealthPolicy struct {
		// Interval is the delay between consecutive probes.
		Interval time.Duration `mapstructure:"interval"`
		// Retries is the number of consecutive failures before the
		// instance is considered terminally failed.
		Retries int `mapstructure:"retries"`
	}

	// InvalidHealthPolicyError is returned when a HealthPolicy has a
	// non-positive interval or retry budget. It wraps ErrInvalidHealthPolicy.
	InvalidHealthPolicyError struct {
		Value HealthPolicy
	}

	// UIConfig holds user-interface preferences.
	UIConfig struct {
		// Verbose enables debug-level output.
		Verbose bool `mapstructure:"verbose"`
	}

	// Config is the root zapdock configuration.
	Config struct {
		// Channel is the scanner release channel to assemble ("weekly" or "stable").
		Channel ReleaseChannel `mapstructure:"channel"`
		// Engine is the preferred container engine.
		Engine ContainerEngine `mapstructure:"engine"`
		// ManifestURL is the XML version-manifest feed location.
		ManifestURL string `mapstructure:"manifest_url"`
		// BridgeURL is the fixed download URL of the remote-desktop bridge distribution.
		BridgeURL string `mapstructure:"bridge_url"`
		// ProxyPort is the scanner's listen port inside the container.
		ProxyPort uint16 `mapstructure:"proxy_port"`
		// VNCPort is the VNC server port inside the container.
		VNCPort uint16 `mapstructure:"vnc_port"`
		// WebswingPort is the browser remote-desktop bridge port.
		WebswingPort uint16 `mapstructure:"webswing_port"`
		// CacheDir holds downloaded archives and staging directories.
		CacheDir string `mapstructure:"cache_dir"`
		// Health is the liveness probe policy.
		Health HealthPolicy `mapstructure:"health"`
		// UI holds user-interface preferences.
		UI UIConfig `mapstructure:"ui"`
	}
)

// Error implements the error interface.
func (e *InvalidContainerEngineError) Error() string {
	return fmt.Sprintf("invalid container engine %q (valid: docker, podman, api)", e.Value)
}

// Unwrap returns ErrInvalidContainerEngine so callers can use errors.Is.
func (e *InvalidContainerEngineError) Unwrap() error { return ErrInvalidContainerEngine }

// Validate returns an error if the ContainerEngine is not one of the defined engines.
func (c ContainerEngine) Validate() error {
	switch c {
	case ContainerEngineDocker, ContainerEnginePodman, ContainerEngineAPI:
		return nil
	default:
		return &InvalidContainerEngineError{Value: c}
	}
}

// String returns the string representation of the ContainerEngine.
func (c ContainerEngine) String() string { return string(c) }

// Error implements the error interface.
func (e *InvalidReleaseChannelError) Error() string {
	return fmt.Sprintf("invalid release channel %q: must be non-empty without whitespace", e.Value)
}

// Unwrap returns ErrInvalidReleaseChannel so callers can use errors.Is.
func (e *InvalidReleaseChannelError) Unwrap() error { return ErrInvalidReleaseChannel }

// Validate returns an error if the ReleaseChannel is empty or contains whitespace.
func (c ReleaseChannel) Validate() error {
	s := string(c)
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return &InvalidReleaseChannelError{Value: c}
	}
	return nil
}

// String returns the string representation of the ReleaseChannel.
func (c ReleaseChannel) String() string { return string(c) }

// Error implements the error interface.
func (e *InvalidHealthPolicyError) Error() string {
	return fmt.Sprintf("invalid health policy (interval %s, retries %d): both must be positive",
		e.Value.Interval, e.Value.Retries)
}

// Unwrap returns ErrInvalidHealthPolicy so callers can use errors.Is.
func (e *InvalidHealthPolicyError) Unwrap() error { return ErrInvalidHealthPolicy }

// Validate returns an error if the interval or retry budget is non-positive.
func (p HealthPolicy) Validate() error {
	if p.Interval <= 0 || p.Retries <= 0 {
		return &InvalidHealthPolicyError{Value: p}
	}
	return nil
}

// Validate checks every typed field of the Config.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Channel.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Engine.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Health.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
