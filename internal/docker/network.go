package docker

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
)

// ErrNotAttached is returned when a container has no address on a network,
// either because it never joined it or because it is not running yet.
var ErrNotAttached = errors.New("container not attached to network")

// Network is a user-defined bridge network.
type Network struct {
	id   string
	name string
	cli  Client
}

// CreateNetwork creates a bridge network named name.
func CreateNetwork(ctx context.Context, cli Client, name string) (*Network, error) {
	resp, err := cli.NetworkCreate(ctx, name, network.CreateOptions{Driver: "bridge"})
	if err != nil {
		return nil, fmt.Errorf("failed to create network %s: %w", name, err)
	}

	return &Network{id: resp.ID, name: name, cli: cli}, nil
}

// ID returns the network's id.
func (n *Network) ID() string {
	return n.id
}

// Name returns the network's name.
func (n *Network) Name() string {
	return n.name
}

// Addr reloads the network and returns the IPv4 address containerID has on
// it.
func (n *Network) Addr(ctx context.Context, containerID string) (netip.Addr, error) {
	info, err := n.cli.NetworkInspect(ctx, n.id, network.InspectOptions{})
	if err != nil {
		return netip.Addr{}, fmt.Errorf("failed to inspect network %s: %w", n.name, err)
	}

	endpoint, ok := info.Containers[containerID]
	if !ok || endpoint.IPv4Address == "" {
		return netip.Addr{}, fmt.Errorf("%w: %s on %s", ErrNotAttached, containerID, n.name)
	}

	prefix, err := netip.ParsePrefix(endpoint.IPv4Address)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("failed to parse address of %s on %s: %w", containerID, n.name, err)
	}

	return prefix.Addr(), nil
}

// Remove removes the network.
func (n *Network) Remove(ctx context.Context) error {
	if err := n.cli.NetworkRemove(ctx, n.id); err != nil {
		return fmt.Errorf("failed to remove network %s: %w", n.name, err)
	}

	return nil
}

// Volume is a named volume.
type Volume struct {
	name string
	cli  Client
}

// CreateVolume creates a named volume.
func CreateVolume(ctx context.Context, cli Client, name string) (*Volume, error) {
	vol, err := cli.VolumeCreate(ctx, volume.CreateOptions{Name: name})
	if err != nil {
		return nil, fmt.Errorf("failed to create volume %s: %w", name, err)
	}

	return &Volume{name: vol.Name, cli: cli}, nil
}

// Name returns the volume's name.
func (v *Volume) Name() string {
	return v.name
}

// Remove removes the volume.
func (v *Volume) Remove(ctx context.Context) error {
	if err := v.cli.VolumeRemove(ctx, v.name, true); err != nil {
		return fmt.Errorf("failed to remove volume %s: %w", v.name, err)
	}

	return nil
}
