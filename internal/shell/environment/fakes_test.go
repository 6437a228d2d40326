package environment

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dockerbay/dockerbay/internal/core/template"
	"github.com/dockerbay/dockerbay/internal/shell/docker"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fastPoll keeps readiness tests quick.
const fastPoll = time.Millisecond

func newTestFactory(rt *mockRuntime, templates ...template.ServiceTemplate) *Factory {
	return NewFactory(rt,
		WithTemplates(templates...),
		WithLogger(setupTestLogger()),
		WithPollInterval(fastPoll),
		WithProber(&mockProber{}),
	)
}

func makeEnv(t *testing.T, rt *mockRuntime, templates ...template.ServiceTemplate) *Environment {
	t.Helper()
	env, err := newTestFactory(rt, templates...).MakeEnvironment("run")
	require.NoError(t, err)
	return env
}

func tmpl(alias string) template.ServiceTemplate {
	return template.NewBuilder().WithAlias(alias).WithImage(alias + ":latest").MustBuild()
}

// =============================================================================
// Mock Runtime
// =============================================================================

// mockRuntime records every call as "op:name" and fails the ones listed in
// errs.
type mockRuntime struct {
	mu            sync.Mutex
	calls         []string
	errs          map[string]error
	logs          map[string][]string // successive outputs per container
	logFailures   map[string]int      // leading log fetches that fail
	logCalls      map[string]int
	ports         map[string]map[int]int
	networkExists bool
	specs         []docker.ContainerSpec
}

func newMockRuntime() *mockRuntime {
	return &mockRuntime{
		errs:        make(map[string]error),
		logs:        make(map[string][]string),
		logFailures: make(map[string]int),
		logCalls:    make(map[string]int),
		ports:       make(map[string]map[int]int),
	}
}

func (m *mockRuntime) record(op, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := op + ":" + name
	m.calls = append(m.calls, key)
	return m.errs[key]
}

// callsOf returns recorded calls whose op is one of ops, in order.
func (m *mockRuntime) callsOf(ops ...string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.calls {
		op, _, _ := strings.Cut(c, ":")
		for _, want := range ops {
			if op == want {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func (m *mockRuntime) count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == key {
			n++
		}
	}
	return n
}

func (m *mockRuntime) PullImage(ctx context.Context, image string) error {
	return m.record("pull", image)
}

func (m *mockRuntime) CreateContainer(ctx context.Context, spec docker.ContainerSpec) (string, error) {
	if err := m.record("create", spec.Name); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.specs = append(m.specs, spec)
	m.mu.Unlock()
	return "id-" + spec.Name, nil
}

func (m *mockRuntime) StartContainer(ctx context.Context, name string) error {
	return m.record("start", name)
}

func (m *mockRuntime) KillContainer(ctx context.Context, name string) error {
	return m.record("kill", name)
}

func (m *mockRuntime) RemoveContainer(ctx context.Context, name string) error {
	return m.record("remove", name)
}

func (m *mockRuntime) ContainerLogs(ctx context.Context, name string) (string, error) {
	if err := m.record("logs", name); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.logCalls[name]
	m.logCalls[name]++
	if n < m.logFailures[name] {
		return "", docker.NewDockerError("ContainerLogs", "container", name, "daemon busy", docker.ErrConnectionFailed)
	}
	outs := m.logs[name]
	if len(outs) == 0 {
		return "", nil
	}
	if n >= len(outs) {
		return outs[len(outs)-1], nil
	}
	return outs[n], nil
}

func (m *mockRuntime) PortMappings(ctx context.Context, name string) (map[int]int, error) {
	if err := m.record("ports", name); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ports[name], nil
}

func (m *mockRuntime) CreateNetwork(ctx context.Context, spec docker.NetworkSpec) error {
	return m.record("createNetwork", spec.Name)
}

func (m *mockRuntime) RemoveNetwork(ctx context.Context, name string) error {
	return m.record("removeNetwork", name)
}

func (m *mockRuntime) NetworkExists(ctx context.Context, name string) (bool, error) {
	if err := m.record("networkExists", name); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.networkExists, nil
}

func (m *mockRuntime) CreateVolume(ctx context.Context, spec docker.VolumeSpec) error {
	return m.record("createVolume", spec.Name)
}

func (m *mockRuntime) RemoveVolume(ctx context.Context, name string) error {
	return m.record("removeVolume", name)
}

func (m *mockRuntime) Ping(ctx context.Context) error { return nil }
func (m *mockRuntime) Close() error { return nil }

// =============================================================================
// Mock Prober
// =============================================================================

// mockProber answers with statuses in order, repeating the last one.
type mockProber struct {
	mu       sync.Mutex
	statuses []int
	err      error
	urls     []string
	onGet    func()
}

func (p *mockProber) Get(ctx context.Context, baseURL, path string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onGet != nil {
		p.onGet()
	}
	n := len(p.urls)
	p.urls = append(p.urls, baseURL+path)
	if p.err != nil {
		return 0, p.err
	}
	if len(p.statuses) == 0 {
		return 200, nil
	}
	if n >= len(p.statuses) {
		return p.statuses[len(p.statuses)-1], nil
	}
	return p.statuses[n], nil
}

func (p *mockProber) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.urls)
}
