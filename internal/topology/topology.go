// Package topology provisions and tears down the per-scenario container
// universe: one network, one shared volume, a volume-access container, four
// stores, the proxy under test and the verification tool.
package topology

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"sync"

	"github.com/st3v3nmw/mirrorcheck/internal/docker"
	"github.com/st3v3nmw/mirrorcheck/pkg/threadsafe"
)

// ErrUnresolvedAddress is returned when a container has no address on the
// scenario network yet.
var ErrUnresolvedAddress = errors.New("unresolved address")

// Options controls images and placement of the topology's containers.
type Options struct {
	// MountPath is where the shared volume is mounted in every container.
	MountPath string
	// HostIP is the host address published ports bind to.
	HostIP string

	AccessImage string
	StoreImage  string
	ProxyImage  string
	ToolImage   string

	// Sink receives every forwarded container log line. May be nil.
	Sink func(container, line string)
}

// Topology is the set of resources owned by one scenario of one run.
type Topology struct {
	cli        docker.Client
	runID      string
	scenarioID string
	opts       Options

	network *docker.Network
	volume  *docker.Volume
	access  *docker.Container

	// containers holds started containers in creation order.
	containers []*docker.Container
	logs       *threadsafe.Map[string, []string]

	logCtx     context.Context
	cancelLogs context.CancelFunc

	mu   sync.Mutex
	torn bool
}

// Name namespaces a resource by run and scenario.
func Name(kind, runID, scenarioID string) string {
	return fmt.Sprintf("%s-%s-%s", kind, runID, scenarioID)
}

// Provision creates the network, the volume and the volume-access container.
// The access container is created but never started; it only serves as an
// archive-copy target. On failure the partially built topology is returned
// along with the error so that Teardown can release what exists.
func Provision(ctx context.Context, cli docker.Client, runID, scenarioID string, opts Options) (*Topology, error) {
	logCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := &Topology{
		cli:        cli,
		runID:      runID,
		scenarioID: scenarioID,
		opts:       opts,
		logs:       threadsafe.NewMap[string, []string](),
		logCtx:     logCtx,
		cancelLogs: cancel,
	}

	var err error
	t.network, err = docker.CreateNetwork(ctx, cli, t.name("net"))
	if err != nil {
		return t, err
	}

	t.volume, err = docker.CreateVolume(ctx, cli, t.name("vol"))
	if err != nil {
		return t, err
	}

	t.access, err = docker.Create(ctx, cli, docker.Spec{
		Name:      t.name("vol-access"),
		Image:     opts.AccessImage,
		Volume:    t.volume.Name(),
		MountPath: opts.MountPath,
	})
	if err != nil {
		return t, err
	}

	slog.Debug("Provisioned topology", "network", t.network.Name(), "volume", t.volume.Name())

	return t, nil
}

func (t *Topology) name(kind string) string {
	return Name(kind, t.runID, t.scenarioID)
}

// ResolveAddress reloads the network and returns c's IPv4 address on it.
// The container must be running.
func (t *Topology) ResolveAddress(ctx context.Context, c *docker.Container) (string, error) {
	addr, err := t.network.Addr(ctx, c.ID())
	if errors.Is(err, docker.ErrNotAttached) {
		return "", fmt.Errorf("%w: %s on %s", ErrUnresolvedAddress, c.Name(), t.network.Name())
	}
	if err != nil {
		return "", err
	}

	return addr.String(), nil
}

// Stage copies data to file inside the shared volume, where every other
// container of the scenario sees it.
func (t *Topology) Stage(ctx context.Context, data []byte, file string) error {
	return t.access.CopyFile(ctx, path.Dir(file), path.Base(file), data)
}

// MountPath returns where the shared volume is mounted.
func (t *Topology) MountPath() string {
	return t.opts.MountPath
}

// Logs returns the lines captured so far from the named container.
func (t *Topology) Logs(container string) []string {
	lines, _ := t.logs.Get(container)
	return slices.Clone(lines)
}

// Containers returns the names of every container that produced output.
func (t *Topology) Containers() []string {
	return t.logs.Keys()
}

// Teardown stops and removes every started container in reverse creation
// order, then removes the volume-access container, the network and the
// volume. Log forwarders are cancelled, not awaited. It is safe to call on a
// nil or partially provisioned topology and a second call is a no-op.
func (t *Topology) Teardown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.torn {
		return nil
	}
	t.torn = true

	t.cancelLogs()

	var errs []error
	for _, c := range slices.Backward(t.containers) {
		if err := c.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := c.Remove(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if t.access != nil {
		if err := t.access.Remove(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if t.network != nil {
		if err := t.network.Remove(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if t.volume != nil {
		if err := t.volume.Remove(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	slog.Debug("Tore down topology", "run", t.runID, "scenario", t.scenarioID, "errors", len(errs))

	return errors.Join(errs...)
}
