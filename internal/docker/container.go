package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// ErrNoPortBinding is returned when a container publishes no host port for
// the requested container port.
var ErrNoPortBinding = errors.New("no host port binding")

// stopTimeout is how long a container gets to exit after SIGTERM.
const stopTimeout = 10

// Spec describes a container to create.
type Spec struct {
	Name  string
	Image string
	Cmd   []string

	// Network attaches the container to a user-defined network on start.
	Network string

	// Volume is mounted read-write at MountPath.
	Volume    string
	MountPath string

	// Ports maps container TCP ports to host ports. A zero host port
	// publishes on a port picked by the daemon.
	Ports map[int]int
	// HostIP is the host address ports are published on.
	HostIP string
}

// Container provides the programmatic interface for a single container.
type Container struct {
	id   string
	name string
	cli  Client
}

// ID returns the container's id.
func (c *Container) ID() string {
	return c.id
}

// Name returns the container's name.
func (c *Container) Name() string {
	return c.name
}

// Create creates a new container from spec. The created container is not
// running and must be started explicitly.
func Create(ctx context.Context, cli Client, spec Spec) (*Container, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for containerPort, hostPort := range spec.Ports {
		port := tcpPort(containerPort)
		exposed[port] = struct{}{}

		binding := nat.PortBinding{HostIP: spec.HostIP}
		if hostPort != 0 {
			binding.HostPort = strconv.Itoa(hostPort)
		}
		bindings[port] = []nat.PortBinding{binding}
	}

	config := &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Cmd,
		ExposedPorts: exposed,
	}

	hostConfig := &container.HostConfig{PortBindings: bindings}
	if spec.Network != "" {
		hostConfig.NetworkMode = container.NetworkMode(spec.Network)
	}

	if spec.Volume != "" {
		hostConfig.Mounts = []mount.Mount{{
			Type:   mount.TypeVolume,
			Source: spec.Volume,
			Target: spec.MountPath,
		}}
	}

	resp, err := cli.ContainerCreate(ctx, config, hostConfig, nil, nil, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container %s: %w", spec.Name, err)
	}

	return &Container{id: resp.ID, name: spec.Name, cli: cli}, nil
}

// Start starts a non-running container.
func (c *Container) Start(ctx context.Context) error {
	if err := c.cli.ContainerStart(ctx, c.id, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", c.name, err)
	}

	return nil
}

// Stop stops a running container. Stopping a container that is not running
// is not an error.
func (c *Container) Stop(ctx context.Context) error {
	timeout := stopTimeout
	if err := c.cli.ContainerStop(ctx, c.id, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container %s: %w", c.name, err)
	}

	return nil
}

// Remove removes the container along with its anonymous volumes.
func (c *Container) Remove(ctx context.Context) error {
	err := c.cli.ContainerRemove(ctx, c.id, container.RemoveOptions{RemoveVolumes: true, Force: true})
	if err != nil {
		return fmt.Errorf("failed to remove container %s: %w", c.name, err)
	}

	return nil
}

// Wait blocks until the container exits and returns its exit code.
func (c *Container) Wait(ctx context.Context) (int64, error) {
	statusCh, errCh := c.cli.ContainerWait(ctx, c.id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return -1, fmt.Errorf("failed to wait for container %s: %w", c.name, err)
	case status := <-statusCh:
		if status.Error != nil {
			return status.StatusCode, fmt.Errorf("failed to wait for container %s: %s", c.name, status.Error.Message)
		}
		return status.StatusCode, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Logs copies the container's stdout and stderr to w. With follow set it
// keeps streaming until the container stops or ctx is done.
func (c *Container) Logs(ctx context.Context, w io.Writer, follow bool) error {
	rc, err := c.cli.ContainerLogs(ctx, c.id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
	})
	if err != nil {
		return fmt.Errorf("failed to read logs of container %s: %w", c.name, err)
	}
	defer rc.Close()

	// The stream is multiplexed: every frame carries an 8 byte header
	// naming stdout or stderr. Both end up in w.
	if _, err := stdcopy.StdCopy(w, w, rc); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to read logs of container %s: %w", c.name, err)
	}

	return nil
}

// Inspect retrieves detailed info about the container.
func (c *Container) Inspect(ctx context.Context) (container.InspectResponse, error) {
	return c.cli.ContainerInspect(ctx, c.id)
}

// HostPort returns the host port that the container's TCP port is
// published on.
func (c *Container) HostPort(ctx context.Context, containerPort int) (int, error) {
	info, err := c.Inspect(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect container %s: %w", c.name, err)
	}

	if info.NetworkSettings == nil {
		return 0, fmt.Errorf("%w for %s in %s", ErrNoPortBinding, tcpPort(containerPort), c.name)
	}

	bindings := info.NetworkSettings.Ports[tcpPort(containerPort)]
	for _, b := range bindings {
		if port, err := strconv.Atoi(b.HostPort); err == nil && port != 0 {
			return port, nil
		}
	}

	return 0, fmt.Errorf("%w for %s in %s", ErrNoPortBinding, tcpPort(containerPort), c.name)
}

func tcpPort(port int) nat.Port {
	return nat.Port(fmt.Sprintf("%d/tcp", port))
}
