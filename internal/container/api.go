// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/docker/docker/api/types"
	dockercontainer "github.com/docker/docker/api/types/container"
	dockerimage "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// APIEngine implements the Engine interface by speaking the Docker Engine
// API directly over the socket, without shelling out to a CLI binary.
// It is the last resort in the fallback chain, for hosts where the daemon
// runs but no CLI is installed (e.g. minimal CI runners).
type APIEngine struct {
	cli *client.Client
}

// NewAPIEngine creates an API engine from the environment (DOCKER_HOST etc.).
func NewAPIEngine() (*APIEngine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker API client: %w", err)
	}
	return &APIEngine{cli: cli}, nil
}

// Name returns the engine name.
func (e *APIEngine) Name() string {
	return string(EngineTypeAPI)
}

// Available checks if the engine API answers a ping.
func (e *APIEngine) Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := e.cli.Ping(ctx)
	return err == nil
}

// Version returns the daemon version.
func (e *APIEngine) Version(ctx context.Context) (string, error) {
	v, err := e.cli.ServerVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get daemon version: %w", err)
	}
	return v.Version, nil
}

// Build builds an image from a Dockerfile. The build context directory is
// tarred in memory and streamed to the daemon.
func (e *APIEngine) Build(ctx context.Context, opts BuildOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	buildCtx, err := archive.TarWithOptions(opts.ContextDir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("failed to create build context: %w", err)
	}
	defer buildCtx.Close()

	dockerfile := opts.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	resp, err := e.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       []string{string(opts.Tag)},
		Dockerfile: dockerfile,
		NoCache:    opts.NoCache,
		Remove:     true,
	})
	if err != nil {
		return buildContainerError(e.Name(), opts, err)
	}
	defer resp.Body.Close()

	// The daemon streams JSON messages; a failing step arrives as an
	// in-band error message, not as a transport error.
	if err := drainBuildStream(resp.Body, opts.Stdout); err != nil {
		return buildContainerError(e.Name(), opts, err)
	}

	return nil
}

// buildMessage is the subset of the daemon's build stream format we decode.
type buildMessage struct {
	Stream string `json:"stream"`
	Error  string `json:"error"`
}

// drainBuildStream reads the build output stream to completion, forwarding
// progress to out (when non-nil) and converting in-band errors to Go errors.
func drainBuildStream(r io.Reader, out io.Writer) error {
	dec := json.NewDecoder(r)
	for {
		var msg buildMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading build stream: %w", err)
		}
		if msg.Error != "" {
			return errors.New(msg.Error)
		}
		if out != nil && msg.Stream != "" {
			io.WriteString(out, msg.Stream)
		}
	}
}

// Run creates and starts a container.
func (e *APIEngine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range opts.Ports {
		port := nat.Port(fmt.Sprintf("%d/%s", p.ContainerPort, portProtocolOrTCP(p.Protocol)))
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{HostPort: strconv.Itoa(int(p.HostPort))}}
	}

	env := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}

	binds := make([]string, 0, len(opts.Volumes))
	for _, v := range opts.Volumes {
		binds = append(binds, v.String())
	}

	resp, err := e.cli.ContainerCreate(ctx, &dockercontainer.Config{
		Image:        string(opts.Image),
		Cmd:          opts.Command,
		Env:          env,
		User:         opts.User,
		WorkingDir:   opts.WorkDir,
		ExposedPorts: exposed,
	}, &dockercontainer.HostConfig{
		PortBindings: bindings,
		Binds:        binds,
		AutoRemove:   opts.Remove && opts.Detach,
	}, nil, nil, opts.Name)
	if err != nil {
		return nil, runContainerError(e.Name(), opts, err)
	}

	if err := e.cli.ContainerStart(ctx, resp.ID, dockercontainer.StartOptions{}); err != nil {
		return nil, runContainerError(e.Name(), opts, err)
	}

	result := &RunResult{ContainerID: ContainerID(resp.ID)}
	if opts.Detach {
		return result, nil
	}

	waitCh, errCh := e.cli.ContainerWait(ctx, resp.ID, dockercontainer.WaitConditionNotRunning)
	select {
	case status := <-waitCh:
		result.ExitCode = int(status.StatusCode)
	case err := <-errCh:
		result.ExitCode = 1
		result.Error = err
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return result, nil
}

// Exec runs a command in a running container and waits for it to finish.
func (e *APIEngine) Exec(ctx context.Context, containerID ContainerID, command []string, opts RunOptions) (*RunResult, error) {
	execResp, err := e.cli.ContainerExecCreate(ctx, string(containerID), dockercontainer.ExecOptions{
		Cmd:          command,
		User:         opts.User,
		WorkingDir:   opts.WorkDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	attach, err := e.cli.ContainerExecAttach(ctx, execResp.ID, dockercontainer.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach exec: %w", err)
	}
	defer attach.Close()

	stdout := opts.Stdout
	stderr := opts.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	if _, err := stdcopy.StdCopy(stdout, stderr, attach.Reader); err != nil {
		return nil, fmt.Errorf("failed to read exec output: %w", err)
	}

	inspect, err := e.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect exec: %w", err)
	}

	return &RunResult{ContainerID: containerID, ExitCode: inspect.ExitCode}, nil
}

// Remove removes a container.
func (e *APIEngine) Remove(ctx context.Context, containerID ContainerID, force bool) error {
	return e.cli.ContainerRemove(ctx, string(containerID), dockercontainer.RemoveOptions{Force: force})
}

// ImageExists checks if an image exists locally.
func (e *APIEngine) ImageExists(ctx context.Context, image ImageTag) (bool, error) {
	_, _, err := e.cli.ImageInspectWithRaw(ctx, string(image))
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RemoveImage removes an image.
func (e *APIEngine) RemoveImage(ctx context.Context, image ImageTag, force bool) error {
	_, err := e.cli.ImageRemove(ctx, string(image), dockerimage.RemoveOptions{Force: force})
	return err
}

// InspectImage returns the raw inspect JSON for an image.
func (e *APIEngine) InspectImage(ctx context.Context, image ImageTag) (string, error) {
	_, raw, err := e.cli.ImageInspectWithRaw(ctx, string(image))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// portProtocolOrTCP maps the zero-value protocol to tcp.
func portProtocolOrTCP(p PortProtocol) PortProtocol {
	if p == "" {
		return PortProtocolTCP
	}
	return p
}
