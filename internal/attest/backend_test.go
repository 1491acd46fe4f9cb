package attest

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/st3v3nmw/mirrorcheck/internal/docker/dockertest"
	"github.com/st3v3nmw/mirrorcheck/internal/proxyconf"
	"github.com/st3v3nmw/mirrorcheck/internal/scenario"
	"github.com/st3v3nmw/mirrorcheck/internal/snapshot"
	"github.com/st3v3nmw/mirrorcheck/internal/topology"
)

type okSaver struct{}

func (okSaver) Save(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("OK", nil)
}

func savers() map[string]snapshot.Saver {
	stores := map[string]snapshot.Saver{}
	for _, role := range topology.Roles() {
		stores[string(role)] = okSaver{}
	}

	return stores
}

func TestContainerBackend(t *testing.T) {
	ctx := context.Background()
	cli := dockertest.New()
	cli.Output = func(name string) string {
		if strings.HasPrefix(name, "rdb-tools-") {
			return "0\n"
		}
		return "Ready to accept connections\n"
	}

	config := merge(&Config{RunID: "r1", HealthPort: 8888})
	backend, err := Containers(cli)(ctx, config, &scenario.Scenario{ID: "s1"})
	require.NoError(t, err)

	endpoints, err := backend.Launch(ctx, proxyconf.Options{
		proxyconf.SrcPassword: "pw",
		proxyconf.DeleteOnGet: false,
	})
	require.NoError(t, err)

	assert.Len(t, endpoints.Stores, 4)
	assert.True(t, strings.HasPrefix(endpoints.Proxy, "127.0.0.1:"))
	assert.True(t, strings.HasPrefix(endpoints.Health, "127.0.0.1:"))

	src, ok := cli.Container("store-src-r1-s1")
	require.True(t, ok)
	assert.Equal(t, []string{"redis-server", "--dir", "/data", "--dbfilename", "src_dump.rdb", "--requirepass", "pw"},
		[]string(src.Config.Cmd))

	dst, ok := cli.Container("store-dst-r1-s1")
	require.True(t, ok)
	assert.NotContains(t, dst.Config.Cmd, "--requirepass")

	// The configuration is staged with the stores' network addresses.
	access, ok := cli.Container("vol-access-r1-s1")
	require.True(t, ok)
	doc, err := proxyconf.Decode(access.Files["/data/config.toml"])
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSuffix(src.IP, "/16")+":6379", doc.Source.Addr)
	assert.Equal(t, strings.TrimSuffix(dst.IP, "/16")+":6379", doc.Destination.Addr)
	assert.Equal(t, "pw", doc.Source.Password)
	assert.False(t, doc.DeleteOnGet)

	proxy, ok := cli.Container("proxy-r1-s1")
	require.True(t, ok)
	assert.Equal(t, []string{"-h", "0.0.0.0", "-p", "6400", "-c", "/data/config.toml", "-i", "8888"},
		[]string(proxy.Config.Cmd))

	res, err := backend.Verify(ctx, savers())
	require.NoError(t, err)
	assert.True(t, res.Passed)

	require.NoError(t, backend.Teardown(ctx))
	assert.Empty(t, cli.Live())
}

func TestContainerBackendFixedPorts(t *testing.T) {
	ctx := context.Background()
	cli := dockertest.New()

	config := merge(&Config{RunID: "r1", ProxyPort: 6400, SourcePort: 6379, DestinationPort: 6380})
	backend, err := Containers(cli)(ctx, config, &scenario.Scenario{ID: "s1"})
	require.NoError(t, err)
	t.Cleanup(func() { backend.Teardown(ctx) })

	endpoints, err := backend.Launch(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:6379", endpoints.Stores[topology.Source])
	assert.Equal(t, "127.0.0.1:6380", endpoints.Stores[topology.Destination])
	assert.Equal(t, "127.0.0.1:6400", endpoints.Proxy)
	assert.Empty(t, endpoints.Health)
}

func TestContainerBackendRenderFailure(t *testing.T) {
	ctx := context.Background()
	cli := dockertest.New()

	backend, err := Containers(cli)(ctx, merge(&Config{RunID: "r1"}), &scenario.Scenario{ID: "s1"})
	require.NoError(t, err)

	_, err = backend.Launch(ctx, proxyconf.Options{"delete_on_del": true})
	assert.ErrorIs(t, err, proxyconf.ErrUnknownOption)
	assert.Zero(t, cli.Count("ContainerCreate proxy-r1-s1"))

	require.NoError(t, backend.Teardown(ctx))
	assert.Empty(t, cli.Live())
}

func TestPrepareImages(t *testing.T) {
	ctx := context.Background()
	cli := dockertest.New()
	cli.AddImage("redis:5.0.5")

	config := merge(&Config{ProxyContext: t.TempDir()})

	var out bytes.Buffer
	require.NoError(t, PrepareImages(ctx, cli, config, &out))

	assert.Equal(t, 1, cli.Count("ImageBuild remiro:latest"))
	assert.Equal(t, 1, cli.Count("ImagePull rdb-tools:latest"))
	assert.Equal(t, 1, cli.Count("ImagePull hello-world"))
	assert.Zero(t, cli.Count("ImagePull redis:5.0.5"))
}
