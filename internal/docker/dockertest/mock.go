// Package dockertest provides an in-memory docker.Client for tests.
package dockertest

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/st3v3nmw/mirrorcheck/internal/docker"
)

// ErrNotFound is returned for unknown ids.
var ErrNotFound = errors.New("mock: not found")

// Container is the state the mock keeps per created container.
type Container struct {
	ID         string
	Name       string
	Config     *container.Config
	HostConfig *container.HostConfig
	Running    bool
	Removed    bool
	IP         string
	HostPorts  nat.PortMap
	Files      map[string][]byte
}

// Client records every call and keeps just enough state to answer inspects.
type Client struct {
	mu sync.Mutex

	seq        int
	containers map[string]*Container
	networks   map[string]string
	volumes    map[string]bool
	images     map[string]bool
	calls      []string
	closed     bool

	// Output returns what a container printed, keyed by container name.
	Output func(name string) string
	// ExitCode is reported by ContainerWait.
	ExitCode int64
	// Fail injects errors. Keys are "Method" or "Method name".
	Fail map[string]error
}

var _ docker.Client = (*Client)(nil)

// New returns an empty mock.
func New() *Client {
	return &Client{
		containers: map[string]*Container{},
		networks:   map[string]string{},
		volumes:    map[string]bool{},
		images:     map[string]bool{},
		Fail:       map[string]error{},
	}
}

// Calls returns the calls made so far as "Method name" strings.
func (m *Client) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.calls...)
}

// Count returns how many times call ("Method name") was made.
func (m *Client) Count(call string) int {
	n := 0
	for _, c := range m.Calls() {
		if c == call {
			n++
		}
	}

	return n
}

// Container returns the container named name.
func (m *Client) Container(name string) (*Container, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.containers {
		if c.Name == name {
			return c, true
		}
	}

	return nil, false
}

// Live returns the names of every resource that was created and not yet
// removed.
func (m *Client) Live() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var live []string
	for _, c := range m.containers {
		if !c.Removed {
			live = append(live, "container "+c.Name)
		}
	}
	for _, name := range m.networks {
		live = append(live, "network "+name)
	}
	for name := range m.volumes {
		live = append(live, "volume "+name)
	}

	return live
}

// AddImage marks ref as present locally.
func (m *Client) AddImage(ref string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.images[ref] = true
}

// Closed reports whether Close was called.
func (m *Client) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}

func (m *Client) record(method, name string) error {
	m.calls = append(m.calls, method+" "+name)

	if err, ok := m.Fail[method+" "+name]; ok {
		return err
	}

	return m.Fail[method]
}

func (m *Client) lookup(id string) (*Container, error) {
	c, ok := m.containers[id]
	if !ok || c.Removed {
		return nil, fmt.Errorf("%w: container %s", ErrNotFound, id)
	}

	return c, nil
}

func (m *Client) ContainerCreate(_ context.Context, config *container.Config, hostConfig *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, name string) (container.CreateResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record("ContainerCreate", name); err != nil {
		return container.CreateResponse{}, err
	}

	for _, c := range m.containers {
		if c.Name == name && !c.Removed {
			return container.CreateResponse{}, fmt.Errorf("mock: container name %s already in use", name)
		}
	}

	m.seq++
	c := &Container{
		ID:         "c" + strconv.Itoa(m.seq),
		Name:       name,
		Config:     config,
		HostConfig: hostConfig,
		IP:         fmt.Sprintf("172.28.0.%d/16", m.seq+1),
		HostPorts:  nat.PortMap{},
		Files:      map[string][]byte{},
	}

	if hostConfig != nil {
		for port, bindings := range hostConfig.PortBindings {
			for _, b := range bindings {
				if b.HostPort == "" {
					b.HostPort = strconv.Itoa(32768 + m.seq)
				}
				c.HostPorts[port] = append(c.HostPorts[port], b)
			}
		}
	}

	m.containers[c.ID] = c

	return container.CreateResponse{ID: c.ID}, nil
}

func (m *Client) ContainerStart(_ context.Context, id string, _ container.StartOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.lookup(id)
	if err != nil {
		return err
	}

	if err := m.record("ContainerStart", c.Name); err != nil {
		return err
	}
	c.Running = true

	return nil
}

func (m *Client) ContainerStop(_ context.Context, id string, _ container.StopOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.lookup(id)
	if err != nil {
		return err
	}

	if err := m.record("ContainerStop", c.Name); err != nil {
		return err
	}
	c.Running = false

	return nil
}

func (m *Client) ContainerRemove(_ context.Context, id string, _ container.RemoveOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.lookup(id)
	if err != nil {
		return err
	}

	if err := m.record("ContainerRemove", c.Name); err != nil {
		return err
	}
	c.Running = false
	c.Removed = true

	return nil
}

func (m *Client) ContainerWait(_ context.Context, id string, _ container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	statusCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)

	c, err := m.lookup(id)
	if err == nil {
		err = m.record("ContainerWait", c.Name)
	}
	if err != nil {
		errCh <- err
		return statusCh, errCh
	}

	c.Running = false
	statusCh <- container.WaitResponse{StatusCode: m.ExitCode}

	return statusCh, errCh
}

func (m *Client) ContainerLogs(_ context.Context, id string, _ container.LogsOptions) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	if err := m.record("ContainerLogs", c.Name); err != nil {
		return nil, err
	}

	var out string
	if m.Output != nil {
		out = m.Output(c.Name)
	}

	var buf bytes.Buffer
	if out != "" {
		if _, err := stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(out)); err != nil {
			return nil, err
		}
	}

	return io.NopCloser(&buf), nil
}

func (m *Client) ContainerInspect(_ context.Context, id string) (container.InspectResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.lookup(id)
	if err != nil {
		return container.InspectResponse{}, err
	}

	if err := m.record("ContainerInspect", c.Name); err != nil {
		return container.InspectResponse{}, err
	}

	settings := &container.NetworkSettings{}
	settings.Ports = nat.PortMap{}
	if c.Running {
		for port, bindings := range c.HostPorts {
			settings.Ports[port] = bindings
		}
	}

	return container.InspectResponse{NetworkSettings: settings}, nil
}

func (m *Client) CopyToContainer(_ context.Context, id, dstPath string, content io.Reader, _ container.CopyToContainerOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.lookup(id)
	if err != nil {
		return err
	}

	if err := m.record("CopyToContainer", c.Name); err != nil {
		return err
	}

	tr := tar.NewReader(content)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return err
		}
		c.Files[path.Join(dstPath, hdr.Name)] = data
	}
}

func (m *Client) NetworkCreate(_ context.Context, name string, _ network.CreateOptions) (network.CreateResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record("NetworkCreate", name); err != nil {
		return network.CreateResponse{}, err
	}

	m.seq++
	id := "n" + strconv.Itoa(m.seq)
	m.networks[id] = name

	return network.CreateResponse{ID: id}, nil
}

func (m *Client) NetworkInspect(_ context.Context, id string, _ network.InspectOptions) (network.Inspect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name, ok := m.networks[id]
	if !ok {
		return network.Inspect{}, fmt.Errorf("%w: network %s", ErrNotFound, id)
	}

	if err := m.record("NetworkInspect", name); err != nil {
		return network.Inspect{}, err
	}

	endpoints := map[string]network.EndpointResource{}
	for _, c := range m.containers {
		if c.Removed || !c.Running || c.HostConfig == nil {
			continue
		}
		if string(c.HostConfig.NetworkMode) == name {
			endpoints[c.ID] = network.EndpointResource{Name: c.Name, IPv4Address: c.IP}
		}
	}

	return network.Inspect{ID: id, Name: name, Containers: endpoints}, nil
}

func (m *Client) NetworkRemove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name, ok := m.networks[id]
	if !ok {
		return fmt.Errorf("%w: network %s", ErrNotFound, id)
	}

	if err := m.record("NetworkRemove", name); err != nil {
		return err
	}
	delete(m.networks, id)

	return nil
}

func (m *Client) VolumeCreate(_ context.Context, options volume.CreateOptions) (volume.Volume, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record("VolumeCreate", options.Name); err != nil {
		return volume.Volume{}, err
	}
	m.volumes[options.Name] = true

	return volume.Volume{Name: options.Name}, nil
}

func (m *Client) VolumeRemove(_ context.Context, name string, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.volumes[name] {
		return fmt.Errorf("%w: volume %s", ErrNotFound, name)
	}

	if err := m.record("VolumeRemove", name); err != nil {
		return err
	}
	delete(m.volumes, name)

	return nil
}

func (m *Client) ImageBuild(_ context.Context, _ io.Reader, options build.ImageBuildOptions) (build.ImageBuildResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tag := strings.Join(options.Tags, ",")
	if err := m.record("ImageBuild", tag); err != nil {
		return build.ImageBuildResponse{}, err
	}

	for _, t := range options.Tags {
		m.images[t] = true
	}

	body := `{"stream":"Successfully tagged ` + tag + `\n"}` + "\n"

	return build.ImageBuildResponse{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (m *Client) ImagePull(_ context.Context, ref string, _ image.PullOptions) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record("ImagePull", ref); err != nil {
		return nil, err
	}
	m.images[ref] = true

	body := `{"status":"Status: Downloaded newer image for ` + ref + `"}` + "\n"

	return io.NopCloser(strings.NewReader(body)), nil
}

func (m *Client) ImageList(_ context.Context, options image.ListOptions) ([]image.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record("ImageList", ""); err != nil {
		return nil, err
	}

	var found []image.Summary
	for _, ref := range options.Filters.Get("reference") {
		if m.images[ref] {
			found = append(found, image.Summary{ID: ref, RepoTags: []string{ref}})
		}
	}

	return found, nil
}

func (m *Client) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true

	return nil
}
