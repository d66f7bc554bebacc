// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"io"
)

// Engine defines the interface for container operations.
type Engine interface {
	// Name returns the engine name (docker, podman, or api).
	Name() string
	// Available checks if the engine is usable on this system.
	Available() bool
	// Version returns the engine version.
	Version(ctx context.Context) (string, error)

	// Build builds an image from a Dockerfile.
	Build(ctx context.Context, opts BuildOptions) error
	// Run starts a container.
	Run(ctx context.Context, opts RunOptions) (*RunResult, error)
	// Exec runs a command in a running container.
	Exec(ctx context.Context, containerID ContainerID, command []string, opts RunOptions) (*RunResult, error)
	// Remove removes a container.
	Remove(ctx context.Context, containerID ContainerID, force bool) error
	// ImageExists checks if an image exists locally.
	ImageExists(ctx context.Context, image ImageTag) (bool, error)
	// RemoveImage removes an image.
	RemoveImage(ctx context.Context, image ImageTag, force bool) error
	// InspectImage returns raw inspect output for an image.
	InspectImage(ctx context.Context, image ImageTag) (string, error)
}

type (
	// ContainerID identifies a container known to the engine.
	ContainerID string

	// ImageTag is a container image reference (name:tag).
	ImageTag string

	// BuildOptions contains options for building an image.
	BuildOptions struct {
		// ContextDir is the build context directory.
		ContextDir string
		// Dockerfile is the path to the Dockerfile (relative to ContextDir).
		Dockerfile string
		// Tag is the image tag.
		Tag ImageTag
		// BuildArgs are build-time variables.
		BuildArgs map[string]string
		// NoCache disables the build cache.
		NoCache bool
		// Stdout is where to write build output.
		Stdout io.Writer
		// Stderr is where to write build errors.
		Stderr io.Writer
	}

	// RunOptions contains options for running a container.
	RunOptions struct {
		// Image is the image to run.
		Image ImageTag
		// Command overrides the image's default command.
		Command []string
		// Name is the container name.
		Name string
		// User is the identity to run as ("" keeps the image's USER).
		User string
		// WorkDir is the working directory inside the container.
		WorkDir string
		// Env contains environment variables.
		Env map[string]string
		// Volumes are validated volume mounts.
		Volumes []VolumeMount
		// Ports are validated port mappings.
		Ports []PortMapping
		// Detach runs the container in the background and returns its ID.
		Detach bool
		// Remove automatically removes the container after exit.
		Remove bool
		// Stdin is the standard input.
		Stdin io.Reader
		// Stdout is where to write standard output.
		Stdout io.Writer
		// Stderr is where to write standard error.
		Stderr io.Writer
	}

	// RunResult contains the result of running a container or exec.
	RunResult struct {
		// ContainerID is the container ID (set for detached runs and execs).
		ContainerID ContainerID
		// ExitCode is the process exit code.
		ExitCode int
		// Error contains any infrastructure error (not a non-zero exit).
		Error error
	}

	// EngineType identifies the container engine type.
	EngineType string
)

const (
	// EngineTypeDocker selects the Docker CLI engine.
	EngineTypeDocker EngineType = "docker"
	// EngineTypePodman selects the Podman CLI engine.
	EngineTypePodman EngineType = "podman"
	// EngineTypeAPI selects the Docker Engine API client.
	EngineTypeAPI EngineType = "api"
)

// ErrEngineNotAvailable is returned when no container engine is available.
type ErrEngineNotAvailable struct {
	Engine string
	Reason string
}

func (e *ErrEngineNotAvailable) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// Validate checks the typed fields of BuildOptions.
func (o BuildOptions) Validate() error {
	if o.ContextDir == "" {
		return fmt.Errorf("build options: context directory is required")
	}
	return nil
}

// Validate checks every typed field of RunOptions.
func (o RunOptions) Validate() error {
	if o.Image == "" {
		return fmt.Errorf("run options: image is required")
	}
	for _, v := range o.Volumes {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	for _, p := range o.Ports {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NewEngine creates a container engine based on preference, falling back
// through the remaining engines when the preferred one is unavailable.
func NewEngine(preferred EngineType) (Engine, error) {
	order := []EngineType{preferred}
	for _, t := range []EngineType{EngineTypeDocker, EngineTypePodman, EngineTypeAPI} {
		if t != preferred {
			order = append(order, t)
		}
	}

	for _, t := range order {
		var engine Engine
		switch t {
		case EngineTypeDocker:
			engine = NewDockerEngine()
		case EngineTypePodman:
			engine = NewPodmanEngine()
		case EngineTypeAPI:
			apiEngine, err := NewAPIEngine()
			if err != nil {
				continue
			}
			engine = apiEngine
		default:
			return nil, fmt.Errorf("unknown container engine type: %s", t)
		}
		if engine.Available() {
			return engine, nil
		}
	}

	return nil, &ErrEngineNotAvailable{
		Engine: string(preferred),
		Reason: "neither the preferred engine nor any fallback (docker, podman, engine API) is available",
	}
}

// AutoDetectEngine tries to find an available container engine.
// Docker is tried first, then Podman, then the engine API socket.
func AutoDetectEngine() (Engine, error) {
	return NewEngine(EngineTypeDocker)
}
