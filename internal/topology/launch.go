package topology

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/st3v3nmw/mirrorcheck/internal/docker"
)

// StorePort is the port every store listens on inside its container.
const StorePort = 6379

// Role identifies one of the four store instances.
type Role string

const (
	Source              Role = "src"
	Destination         Role = "dst"
	SourceExpected      Role = "src-expected"
	DestinationExpected Role = "dst-expected"
)

// Roles lists the store roles in launch order.
func Roles() []Role {
	return []Role{Source, Destination, SourceExpected, DestinationExpected}
}

// Dump returns the name of the dump file the store persists to.
func (r Role) Dump() string {
	return strings.ReplaceAll(string(r), "-", "_") + "_dump.rdb"
}

// Endpoint is a launched container reachable from the host.
type Endpoint struct {
	Container *docker.Container
	// Addr is the host address of the container's main port.
	Addr string
	// HealthAddr is the host address of the proxy's health port, if any.
	HealthAddr string
}

// LaunchStore starts the store for role, persisting to role.Dump() inside the
// shared mount and publishing its port on hostPort (0 picks a free one).
// A non-empty password starts the store with requirepass.
func (t *Topology) LaunchStore(ctx context.Context, role Role, hostPort int, password string) (*Endpoint, error) {
	cmd := []string{"redis-server", "--dir", t.opts.MountPath, "--dbfilename", role.Dump()}
	if password != "" {
		cmd = append(cmd, "--requirepass", password)
	}

	c, err := t.launch(ctx, docker.Spec{
		Name:  t.name("store-" + string(role)),
		Image: t.opts.StoreImage,
		Cmd:   cmd,
		Ports: map[int]int{StorePort: hostPort},
	})
	if err != nil {
		return nil, err
	}

	addr, err := t.hostAddr(ctx, c, StorePort)
	if err != nil {
		return nil, err
	}

	return &Endpoint{Container: c, Addr: addr}, nil
}

// ProxySpec configures the proxy container.
type ProxySpec struct {
	// ConfigPath is the staged configuration file inside the shared mount.
	ConfigPath string
	// ListenPort is the port the proxy binds inside its container.
	ListenPort int
	// HostPort publishes ListenPort on the host; 0 picks a free one.
	HostPort int
	// HealthPort enables the proxy's instrumentation endpoint when non-zero.
	HealthPort int
}

// LaunchProxy starts the proxy under test. The configuration file must be
// staged before this is called.
func (t *Topology) LaunchProxy(ctx context.Context, spec ProxySpec) (*Endpoint, error) {
	cmd := []string{
		"-h", "0.0.0.0",
		"-p", strconv.Itoa(spec.ListenPort),
		"-c", spec.ConfigPath,
	}

	ports := map[int]int{spec.ListenPort: spec.HostPort}
	if spec.HealthPort != 0 {
		cmd = append(cmd, "-i", strconv.Itoa(spec.HealthPort))
		ports[spec.HealthPort] = 0
	}

	c, err := t.launch(ctx, docker.Spec{
		Name:  t.name("proxy"),
		Image: t.opts.ProxyImage,
		Cmd:   cmd,
		Ports: ports,
	})
	if err != nil {
		return nil, err
	}

	ep := &Endpoint{Container: c}
	ep.Addr, err = t.hostAddr(ctx, c, spec.ListenPort)
	if err != nil {
		return nil, err
	}

	if spec.HealthPort != 0 {
		ep.HealthAddr, err = t.hostAddr(ctx, c, spec.HealthPort)
		if err != nil {
			return nil, err
		}
	}

	return ep, nil
}

// RunTool runs cmd in a throwaway tool container, waits for it to exit and
// returns everything it printed.
func (t *Topology) RunTool(ctx context.Context, cmd []string) ([]string, error) {
	c, err := t.launch(ctx, docker.Spec{
		Name:  t.name("rdb-tools"),
		Image: t.opts.ToolImage,
		Cmd:   cmd,
	})
	if err != nil {
		return nil, err
	}

	code, err := c.Wait(ctx)
	if err != nil {
		return nil, err
	}
	slog.Debug("Tool exited", "container", c.Name(), "code", code)

	return c.Lines(ctx)
}

// launch creates and starts a container on the scenario network and volume,
// and forwards its output. The container is owned by the topology as soon
// as it exists, so a failed start is still torn down.
func (t *Topology) launch(ctx context.Context, spec docker.Spec) (*docker.Container, error) {
	spec.Network = t.network.Name()
	spec.Volume = t.volume.Name()
	spec.MountPath = t.opts.MountPath
	spec.HostIP = t.opts.HostIP

	c, err := docker.Create(ctx, t.cli, spec)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.containers = append(t.containers, c)
	t.mu.Unlock()

	if err := c.Start(ctx); err != nil {
		return nil, err
	}

	go t.forward(c)

	return c, nil
}

// forward copies c's output into the captured logs and the sink until the
// container stops or teardown cancels it.
func (t *Topology) forward(c *docker.Container) {
	name := c.Name()
	err := c.Follow(t.logCtx, func(line string) {
		t.logs.Update(name, func(old []string, _ bool) []string {
			return append(old, line)
		})

		if t.opts.Sink != nil {
			t.opts.Sink(name, line)
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Debug("Log forwarding stopped", "container", name, "error", err)
	}
}

func (t *Topology) hostAddr(ctx context.Context, c *docker.Container, port int) (string, error) {
	hostPort, err := c.HostPort(ctx, port)
	if err != nil {
		return "", err
	}

	host := t.opts.HostIP
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, strconv.Itoa(hostPort)), nil
}
