package attest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/alicebob/miniredis/v2/server"
	"github.com/redis/go-redis/v9"

	"github.com/st3v3nmw/mirrorcheck/internal/proxyconf"
	"github.com/st3v3nmw/mirrorcheck/internal/scenario"
	"github.com/st3v3nmw/mirrorcheck/internal/snapshot"
	"github.com/st3v3nmw/mirrorcheck/internal/topology"
)

// testConfig keeps polling tight so failing scenarios finish quickly.
func testConfig() *Config {
	return merge(&Config{
		RunID:               "test",
		ProcessStartTimeout: 2 * time.Second,
		TeardownTimeout:     2 * time.Second,
		RetryPollInterval:   10 * time.Millisecond,
		ExecuteTimeout:      time.Second,
	})
}

// fakeProxy is a small migration proxy over two stores: reads fall back from
// destination to source, writes land on destination.
type fakeProxy struct {
	srv *server.Server
	doc *proxyconf.Document
	src *redis.Client
	dst *redis.Client
}

type peerState struct {
	authed bool
}

func startFakeProxy(t *testing.T, doc *proxyconf.Document) *fakeProxy {
	t.Helper()

	srv, err := server.NewServer("127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start fake proxy: %v", err)
	}

	p := &fakeProxy{
		srv: srv,
		doc: doc,
		src: redis.NewClient(&redis.Options{Addr: doc.Source.Addr, Password: doc.Source.Password, Protocol: 2, DisableIdentity: true}),
		dst: redis.NewClient(&redis.Options{Addr: doc.Destination.Addr, Password: doc.Destination.Password, Protocol: 2, DisableIdentity: true}),
	}
	srv.SetPreHook(p.dispatch)

	return p
}

func (p *fakeProxy) Addr() string {
	return p.srv.Addr().String()
}

func (p *fakeProxy) Close() {
	p.srv.Close()
	p.src.Close()
	p.dst.Close()
}

func (p *fakeProxy) dispatch(c *server.Peer, cmd string, args ...string) bool {
	state, ok := c.Ctx.(*peerState)
	if !ok {
		state = &peerState{}
		c.Ctx = state
	}

	ctx := context.Background()

	switch cmd {
	case "HELLO":
		c.WriteError("ERR unknown command 'HELLO'")
		return true
	case "QUIT":
		c.WriteOK()
		c.Close()
		return true
	case "AUTH":
		switch {
		case len(args) != 1:
			c.WriteError("ERR wrong number of arguments for 'auth' command")
		case p.doc.Password == "":
			c.WriteError("ERR Client sent AUTH, but no password is set")
		case args[0] != p.doc.Password:
			c.WriteError("ERR invalid password")
		default:
			state.authed = true
			c.WriteOK()
		}
		return true
	}

	if p.doc.Password != "" && !state.authed {
		c.WriteError("NOAUTH Authentication required.")
		return true
	}

	switch {
	case cmd == "PING":
		c.WriteInline("PONG")
	case cmd == "GET" && len(args) == 1:
		p.get(ctx, c, args[0])
	case cmd == "SET" && len(args) == 2:
		p.set(ctx, c, args[0], args[1])
	default:
		argv := make([]any, 0, len(args)+1)
		argv = append(argv, cmd)
		for _, a := range args {
			argv = append(argv, a)
		}
		writeResult(c, p.dst.Do(ctx, argv...))
	}

	return true
}

func (p *fakeProxy) get(ctx context.Context, c *server.Peer, key string) {
	v, err := p.dst.Get(ctx, key).Result()
	if err == nil {
		c.WriteBulk(v)
		return
	}
	if !errors.Is(err, redis.Nil) {
		c.WriteError(err.Error())
		return
	}

	v, err = p.src.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		c.WriteNull()
		return
	}
	if err != nil {
		c.WriteError(err.Error())
		return
	}

	if p.doc.DeleteOnGet {
		if err := p.dst.Set(ctx, key, v, 0).Err(); err != nil {
			c.WriteError(err.Error())
			return
		}
		p.src.Del(ctx, key)
	}

	c.WriteBulk(v)
}

func (p *fakeProxy) set(ctx context.Context, c *server.Peer, key, value string) {
	if err := p.dst.Set(ctx, key, value, 0).Err(); err != nil {
		c.WriteError(err.Error())
		return
	}

	if p.doc.DeleteOnSet {
		p.src.Del(ctx, key)
	}

	c.WriteOK()
}

func writeResult(c *server.Peer, cmd *redis.Cmd) {
	v, err := cmd.Result()
	switch {
	case errors.Is(err, redis.Nil):
		c.WriteNull()
	case err != nil:
		c.WriteError(err.Error())
	default:
		writeValue(c, v)
	}
}

func writeValue(c *server.Peer, v any) {
	switch t := v.(type) {
	case nil:
		c.WriteNull()
	case int64:
		c.WriteInt(int(t))
	case []any:
		c.WriteLen(len(t))
		for _, item := range t {
			writeValue(c, item)
		}
	default:
		c.WriteBulk(fmt.Sprint(t))
	}
}

// memoryBackend runs every scenario on in-process stores behind a fakeProxy.
type memoryBackend struct {
	t *testing.T

	// health, when set, is served as both stores' status on /health.
	health string

	launchErr   error
	teardownErr error

	mu        sync.Mutex
	stores    map[topology.Role]*miniredis.Miniredis
	proxy     *fakeProxy
	healthSrv *httptest.Server
	teardowns int
}

func newMemoryBackend(t *testing.T) *memoryBackend {
	return &memoryBackend{t: t}
}

func (b *memoryBackend) Launch(ctx context.Context, overrides proxyconf.Options) (*Endpoints, error) {
	if b.launchErr != nil {
		return nil, b.launchErr
	}

	options := proxyconf.Merge(proxyconf.Defaults(), overrides)
	passwords := map[topology.Role]string{
		topology.Source:      options.String(proxyconf.SrcPassword),
		topology.Destination: options.String(proxyconf.DstPassword),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	endpoints := &Endpoints{Stores: map[topology.Role]string{}}
	b.stores = map[topology.Role]*miniredis.Miniredis{}
	for _, role := range topology.Roles() {
		m := miniredis.NewMiniRedis()
		if err := m.Start(); err != nil {
			return nil, err
		}
		m.RequireAuth(passwords[role])
		if err := m.Server().Register("SAVE", func(c *server.Peer, _ string, _ []string) {
			c.WriteOK()
		}); err != nil {
			return nil, err
		}

		b.stores[role] = m
		endpoints.Stores[role] = m.Addr()
	}

	doc, err := proxyconf.Render(proxyconf.Defaults(), overrides,
		b.stores[topology.Source].Addr(), b.stores[topology.Destination].Addr())
	if err != nil {
		return nil, err
	}

	b.proxy = startFakeProxy(b.t, doc)
	endpoints.Proxy = b.proxy.Addr()

	if b.health != "" {
		body := fmt.Sprintf(`{"sourceRedis":{"status":%q},"destinationRedis":{"status":%q}}`, b.health, b.health)
		b.healthSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/health" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if b.health != "OK" {
				w.WriteHeader(http.StatusInternalServerError)
			}
			w.Write([]byte(body))
		}))
		endpoints.Health = strings.TrimPrefix(b.healthSrv.URL, "http://")
	}

	return endpoints, nil
}

func (b *memoryBackend) Verify(ctx context.Context, stores map[string]snapshot.Saver) (*snapshot.Result, error) {
	if err := snapshot.ForceSave(ctx, stores); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	res := &snapshot.Result{Passed: true}
	for _, pair := range [][2]topology.Role{
		{topology.Source, topology.SourceExpected},
		{topology.Destination, topology.DestinationExpected},
	} {
		actual, expected := b.stores[pair[0]].Dump(), b.stores[pair[1]].Dump()
		if actual != expected {
			res.Passed = false
			res.Log = append(res.Log, fmt.Sprintf("%s differs from %s", pair[0], pair[1]))
		}
	}
	res.Log = append(res.Log, map[bool]string{true: "0", false: "1"}[res.Passed])

	return res, nil
}

func (b *memoryBackend) Logs() map[string][]string {
	return map[string][]string{"proxy": {"listening"}}
}

func (b *memoryBackend) Teardown(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.teardowns++

	if b.proxy != nil {
		b.proxy.Close()
	}
	if b.healthSrv != nil {
		b.healthSrv.Close()
	}
	for _, m := range b.stores {
		m.Close()
	}

	return b.teardownErr
}

func (b *memoryBackend) Teardowns() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.teardowns
}

// memoryFactory hands out one fresh backend per scenario and remembers them
// in order.
type memoryFactory struct {
	t       *testing.T
	prepare func(sc *scenario.Scenario, b *memoryBackend)

	// provisionErr fails provisioning of the named scenario.
	provisionErr map[string]error

	mu       sync.Mutex
	backends []*memoryBackend
}

func (f *memoryFactory) New(ctx context.Context, config *Config, sc *scenario.Scenario) (Backend, error) {
	b := newMemoryBackend(f.t)
	if f.prepare != nil {
		f.prepare(sc, b)
	}

	f.mu.Lock()
	f.backends = append(f.backends, b)
	f.mu.Unlock()

	if err := f.provisionErr[sc.ID]; err != nil {
		return b, err
	}

	return b, nil
}

func (f *memoryFactory) Backends() []*memoryBackend {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]*memoryBackend(nil), f.backends...)
}

// execute runs sc on a fresh memory backend and tears it down.
func execute(t *testing.T, sc scenario.Scenario, prepare func(*memoryBackend)) (*Verdict, *memoryBackend) {
	t.Helper()

	b := newMemoryBackend(t)
	if prepare != nil {
		prepare(b)
	}

	do := newDo(context.Background(), testConfig(), b)
	v := Execute(do, &sc)
	if err := do.Done(); err != nil {
		t.Fatalf("teardown failed: %v", err)
	}

	return v, b
}
