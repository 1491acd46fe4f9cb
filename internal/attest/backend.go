package attest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path"
	"strconv"

	"github.com/st3v3nmw/mirrorcheck/internal/docker"
	"github.com/st3v3nmw/mirrorcheck/internal/proxyconf"
	"github.com/st3v3nmw/mirrorcheck/internal/scenario"
	"github.com/st3v3nmw/mirrorcheck/internal/snapshot"
	"github.com/st3v3nmw/mirrorcheck/internal/topology"
)

// PrepareImages builds the proxy and tool images from their build contexts,
// or pulls them when no context is configured, and makes sure the store and
// access images are present. Progress goes to w.
func PrepareImages(ctx context.Context, cli docker.Client, config *Config, w io.Writer) error {
	config = merge(config)
	builds := []struct{ context, image string }{
		{config.ProxyContext, config.ProxyImage},
		{config.ToolContext, config.ToolImage},
	}

	for _, b := range builds {
		if b.context == "" {
			if err := docker.Ensure(ctx, cli, b.image, w); err != nil {
				return err
			}
			continue
		}

		slog.Info("Building image", "image", b.image, "context", b.context)
		if err := docker.Build(ctx, cli, b.context, b.image, w); err != nil {
			return err
		}
	}

	for _, image := range []string{config.StoreImage, config.AccessImage} {
		if err := docker.Ensure(ctx, cli, image, w); err != nil {
			return err
		}
	}

	return nil
}

// Containers returns a BackendFactory that provisions every scenario as real
// containers through cli.
func Containers(cli docker.Client) BackendFactory {
	return func(ctx context.Context, config *Config, sc *scenario.Scenario) (Backend, error) {
		topo, err := topology.Provision(ctx, cli, config.RunID, sc.ID, topology.Options{
			MountPath:   config.MountPath,
			HostIP:      config.HostIP,
			AccessImage: config.AccessImage,
			StoreImage:  config.StoreImage,
			ProxyImage:  config.ProxyImage,
			ToolImage:   config.ToolImage,
			Sink:        config.ContainerLogs,
		})

		return &containerBackend{config: config, topo: topo}, err
	}
}

type containerBackend struct {
	config *Config
	topo   *topology.Topology
}

func (b *containerBackend) hostPort(role topology.Role) int {
	switch role {
	case topology.Source:
		return b.config.SourcePort
	case topology.Destination:
		return b.config.DestinationPort
	case topology.SourceExpected:
		return b.config.SourceExpectedPort
	case topology.DestinationExpected:
		return b.config.DestinationExpectedPort
	default:
		return 0
	}
}

func (b *containerBackend) Launch(ctx context.Context, overrides proxyconf.Options) (*Endpoints, error) {
	options := proxyconf.Merge(b.config.ConfigDefaults, overrides)
	passwords := map[topology.Role]string{
		topology.Source:      options.String(proxyconf.SrcPassword),
		topology.Destination: options.String(proxyconf.DstPassword),
	}

	endpoints := &Endpoints{Stores: map[topology.Role]string{}}
	containers := map[topology.Role]*docker.Container{}

	// Every store runs before any address is resolved.
	for _, role := range topology.Roles() {
		store, err := b.topo.LaunchStore(ctx, role, b.hostPort(role), passwords[role])
		if err != nil {
			return nil, err
		}

		endpoints.Stores[role] = store.Addr
		containers[role] = store.Container
	}

	srcIP, err := b.topo.ResolveAddress(ctx, containers[topology.Source])
	if err != nil {
		return nil, err
	}

	dstIP, err := b.topo.ResolveAddress(ctx, containers[topology.Destination])
	if err != nil {
		return nil, err
	}

	port := strconv.Itoa(topology.StorePort)
	doc, err := proxyconf.Render(b.config.ConfigDefaults, overrides,
		net.JoinHostPort(srcIP, port), net.JoinHostPort(dstIP, port))
	if err != nil {
		return nil, fmt.Errorf("failed to render proxy config: %w", err)
	}

	data, err := doc.Encode()
	if err != nil {
		return nil, err
	}

	configPath := path.Join(b.config.MountPath, b.config.ConfigFile)
	if err := b.topo.Stage(ctx, data, configPath); err != nil {
		return nil, err
	}

	proxy, err := b.topo.LaunchProxy(ctx, topology.ProxySpec{
		ConfigPath: configPath,
		ListenPort: b.config.ProxyListenPort,
		HostPort:   b.config.ProxyPort,
		HealthPort: b.config.HealthPort,
	})
	if err != nil {
		return nil, err
	}

	endpoints.Proxy = proxy.Addr
	endpoints.Health = proxy.HealthAddr

	return endpoints, nil
}

func (b *containerBackend) Verify(ctx context.Context, stores map[string]snapshot.Saver) (*snapshot.Result, error) {
	if err := snapshot.ForceSave(ctx, stores); err != nil {
		return nil, err
	}

	verifier := &snapshot.Verifier{
		Runner:    b.topo,
		MountPath: b.config.MountPath,
		Pairs:     snapshot.DefaultPairs(),
	}

	return verifier.NormalizeAndDiff(ctx)
}

func (b *containerBackend) Logs() map[string][]string {
	logs := map[string][]string{}
	if b.topo == nil {
		return logs
	}

	for _, name := range b.topo.Containers() {
		logs[name] = b.topo.Logs(name)
	}

	return logs
}

func (b *containerBackend) Teardown(ctx context.Context) error {
	return b.topo.Teardown(ctx)
}
