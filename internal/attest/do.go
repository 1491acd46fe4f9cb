package attest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/st3v3nmw/mirrorcheck/internal/proxyconf"
	"github.com/st3v3nmw/mirrorcheck/internal/replay"
	"github.com/st3v3nmw/mirrorcheck/internal/scenario"
	"github.com/st3v3nmw/mirrorcheck/internal/snapshot"
	"github.com/st3v3nmw/mirrorcheck/internal/topology"
	"github.com/st3v3nmw/mirrorcheck/pkg/threadsafe"
)

// Endpoints are the host addresses of a launched scenario.
type Endpoints struct {
	Stores map[topology.Role]string
	Proxy  string
	// Health is the proxy's instrumentation address; empty disables the probe.
	Health string
}

// Backend stands up and releases the containers of one scenario.
type Backend interface {
	// Launch starts the four stores, synthesizes and stages the proxy
	// configuration from overrides, and starts the proxy.
	Launch(ctx context.Context, overrides proxyconf.Options) (*Endpoints, error)
	// Verify persists every store and compares the actual dumps with the
	// expected ones.
	Verify(ctx context.Context, stores map[string]snapshot.Saver) (*snapshot.Result, error)
	// Logs returns captured output keyed by container name.
	Logs() map[string][]string
	// Teardown releases everything the backend created.
	Teardown(ctx context.Context) error
}

// BackendFactory provisions the backend of one scenario. On error it may
// still return a partially provisioned backend, which is torn down.
type BackendFactory func(ctx context.Context, config *Config, sc *scenario.Scenario) (Backend, error)

// Do provides the per-scenario harness: store and proxy connections over a
// backend, soft mismatch recording, and guaranteed teardown.
type Do struct {
	config  *Config
	backend Backend

	stores *threadsafe.Map[topology.Role, *redis.Client]
	proxy  *redis.Client

	mu         sync.Mutex
	state      State
	mismatches []Mismatch

	ctx    context.Context
	cancel context.CancelFunc

	doneOnce sync.Once
	doneErr  error
}

// newDo creates a harness over backend, which may be nil when provisioning
// failed before anything was created.
func newDo(ctx context.Context, config *Config, backend Backend) *Do {
	doCtx, cancel := context.WithCancel(ctx)

	return &Do{
		config:  config,
		backend: backend,
		stores:  threadsafe.NewMap[topology.Role, *redis.Client](),
		ctx:     doCtx,
		cancel:  cancel,
	}
}

// Launch starts the topology with the scenario's option overrides and waits
// until every store and the proxy answer.
func (do *Do) Launch(overrides proxyconf.Options) {
	endpoints, err := do.backend.Launch(do.ctx, overrides)
	if err != nil {
		panic(fmt.Errorf("failed to launch scenario containers: %w", err))
	}

	options := proxyconf.Merge(do.config.ConfigDefaults, overrides)
	passwords := map[topology.Role]string{
		topology.Source:      options.String(proxyconf.SrcPassword),
		topology.Destination: options.String(proxyconf.DstPassword),
	}

	for _, role := range topology.Roles() {
		addr, ok := endpoints.Stores[role]
		if !ok {
			panic(fmt.Errorf("no address for %s store", role))
		}

		do.stores.Set(role, redis.NewClient(&redis.Options{
			Addr:            addr,
			Password:        passwords[role],
			Protocol:        2,
			DisableIdentity: true,
			MaxRetries:      -1,
		}))

		do.Store(role, "PING").Eventually().T().
			Reply(Is(scenario.ReplyOf("PONG"))).
			Assert(fmt.Sprintf("The %s store should answer PING once started.\n"+
				"Check that the store image starts redis-server and the password is right.", role))
	}

	// A single connection keeps AUTH state across requests.
	do.proxy = redis.NewClient(&redis.Options{
		Addr:            endpoints.Proxy,
		Protocol:        2,
		DisableIdentity: true,
		MaxRetries:      -1,
		PoolSize:        1,
	})

	do.Proxy(scenario.Cmd("PING")).Eventually().T().
		Responds().
		Assert("The proxy should accept connections once started.\n" +
			"Check the proxy output above for configuration or startup errors.")

	if endpoints.Health != "" {
		do.HTTP("http://"+endpoints.Health+"/health").Eventually().T().
			Status(Is(200)).
			JSON("sourceRedis.status", Is("OK")).
			JSON("destinationRedis.status", Is("OK")).
			Assert("The proxy health endpoint should report both stores as reachable.\n" +
				"Check the Source and Destination addresses in the staged configuration.")
	}

	slog.Debug("Scenario containers ready", "proxy", endpoints.Proxy)
}

// client retrieves a store connection by role or panics if not launched
func (do *Do) client(role topology.Role) *redis.Client {
	if client, ok := do.stores.Get(role); ok {
		return client
	}

	panic(fmt.Errorf("%s store not launched", role))
}

// Store creates a deferred command against the store in role.
func (do *Do) Store(role topology.Role, name string, args ...any) *RedisPromise {
	return do.redis(string(role), do.client(role), scenario.Cmd(name, args...))
}

// Proxy creates a deferred command against the proxy.
func (do *Do) Proxy(cmd scenario.Command) *RedisPromise {
	if do.proxy == nil {
		panic(fmt.Errorf("proxy not launched"))
	}

	return do.redis("proxy", do.proxy, cmd)
}

func (do *Do) redis(target string, conn replay.Doer, cmd scenario.Command) *RedisPromise {
	return &RedisPromise{
		PromiseBase: PromiseBase{
			timing: TimingImmediate,
			ctx:    do.ctx,
			config: do.config,
		},

		do:     do,
		target: target,
		conn:   conn,
		cmd:    cmd,
	}
}

// HTTP creates a deferred GET request.
func (do *Do) HTTP(url string) *HTTPPromise {
	return &HTTPPromise{
		PromiseBase: PromiseBase{
			timing: TimingImmediate,
			ctx:    do.ctx,
			config: do.config,
		},

		url: url,
	}
}

// Load replays fixtures onto the store in role. Any failure aborts the
// scenario.
func (do *Do) Load(role topology.Role, cmds []scenario.Command) {
	if err := replay.All(do.ctx, do.client(role), cmds); err != nil {
		panic(fmt.Errorf("failed to load %s fixtures: %w", role, err))
	}
}

// Verify forces a save on every store and compares the resulting dumps.
func (do *Do) Verify() *snapshot.Result {
	savers := make(map[string]snapshot.Saver, len(topology.Roles()))
	for _, role := range topology.Roles() {
		savers[string(role)] = do.client(role)
	}

	res, err := do.backend.Verify(do.ctx, savers)
	if err != nil {
		panic(fmt.Errorf("failed to verify snapshots: %w", err))
	}

	return res
}

func (do *Do) record(m Mismatch) {
	do.mu.Lock()
	defer do.mu.Unlock()

	do.mismatches = append(do.mismatches, m)
}

// Mismatches returns the mismatches recorded so far.
func (do *Do) Mismatches() []Mismatch {
	do.mu.Lock()
	defer do.mu.Unlock()

	return append([]Mismatch(nil), do.mismatches...)
}

func (do *Do) setState(s State) {
	do.mu.Lock()
	defer do.mu.Unlock()

	do.state = s
}

// State returns the scenario's current state.
func (do *Do) State() State {
	do.mu.Lock()
	defer do.mu.Unlock()

	return do.state
}

// Logs returns captured container output.
func (do *Do) Logs() map[string][]string {
	if do.backend == nil {
		return nil
	}

	return do.backend.Logs()
}

// Done closes every connection and tears the backend down. It runs once;
// later calls return the first result.
func (do *Do) Done() error {
	do.doneOnce.Do(func() {
		do.cancel()

		if do.proxy != nil {
			do.proxy.Close()
		}
		for _, role := range do.stores.Keys() {
			if client, ok := do.stores.Get(role); ok {
				client.Close()
			}
		}

		if do.backend == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), do.config.TeardownTimeout)
		defer cancel()

		do.doneErr = do.backend.Teardown(ctx)
	})

	return do.doneErr
}
