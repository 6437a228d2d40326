// Package dockerbay provisions throwaway container environments for tests.
//
// Declare services with NewBuilder, put them in a Factory, and call Setup
// from a test. Setup names the run after the test, removes anything a
// crashed earlier run with the same name left behind, starts every service
// and registers the teardown with t.Cleanup.
//
//	var factory = dockerbay.MustDockerFactory(
//		dockerbay.WithTemplates(
//			dockerbay.NewBuilder().
//				WithAlias("db").
//				WithImage("postgres:16").
//				WithEnv("POSTGRES_PASSWORD", "secret").
//				WithExposedPort(5432).
//				WaitForLog("ready to accept connections").
//				MustBuild(),
//		),
//	)
//
//	func TestOrders(t *testing.T) {
//		env := dockerbay.Setup(t, factory)
//		port, _ := env.HostPort("db")
//		...
//	}
package dockerbay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/dockerbay/dockerbay/internal/core/compose"
	"github.com/dockerbay/dockerbay/internal/core/template"
	"github.com/dockerbay/dockerbay/internal/shell/docker"
	"github.com/dockerbay/dockerbay/internal/shell/environment"
)

// =============================================================================
// Re-exported Types
// =============================================================================

type (
	Builder         = template.Builder
	ServiceTemplate = template.ServiceTemplate
	Bind            = template.Bind
	Factory         = environment.Factory
	Option          = environment.Option
	Environment     = environment.Environment
	Service         = environment.Service
	TeardownReport  = environment.TeardownReport
	TeardownFailure = environment.TeardownFailure
	Runtime         = docker.Client
)

var (
	NewBuilder       = template.NewBuilder
	NewFactory       = environment.NewFactory
	WithTemplates    = environment.WithTemplates
	WithProber       = environment.WithProber
	WithLogger       = environment.WithLogger
	WithPollInterval = environment.WithPollInterval
)

// =============================================================================
// Construction
// =============================================================================

// NewDockerFactory connects to the Docker daemon at host (the environment
// default when empty) and returns a factory backed by it. The returned
// close function releases the connection.
func NewDockerFactory(ctx context.Context, host string, opts ...Option) (*Factory, func() error, error) {
	cli, err := docker.NewDockerClient(ctx, host)
	if err != nil {
		return nil, nil, err
	}
	if err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, nil, err
	}
	return environment.NewFactory(cli, opts...), cli.Close, nil
}

// MustDockerFactory is NewDockerFactory for package-level variables; it
// panics when the daemon cannot be reached. The connection lives as long as
// the process.
func MustDockerFactory(opts ...Option) *Factory {
	f, _, err := NewDockerFactory(context.Background(), "", opts...)
	if err != nil {
		panic(fmt.Sprintf("dockerbay: %v", err))
	}
	return f
}

// LoadTemplates reads a compose file. Relative bind sources resolve against
// the file's directory and ${VAR} references against env.
func LoadTemplates(path string, env map[string]string) ([]ServiceTemplate, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read compose file: %w", err)
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolve compose file directory: %w", err)
	}
	return compose.ParseTemplates(string(content), compose.Options{WorkingDir: dir, Environment: env})
}

// =============================================================================
// Test Integration
// =============================================================================

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// RunID derives a run id from a test name, e.g. "TestOrders/checkout"
// becomes "TestOrders-checkout".
func RunID(name string) string {
	id := strings.Trim(unsafeNameChars.ReplaceAllString(name, "-"), "-._")
	if id == "" {
		return "dockerbay"
	}
	return id
}

// Setup brings up an environment for t and tears it down when t finishes.
// Any setup failure fails t immediately; the teardown still runs.
func Setup(t testing.TB, factory *Factory) *Environment {
	t.Helper()
	ctx := context.Background()

	env, err := factory.MakeEnvironment(RunID(t.Name()))
	if err != nil {
		t.Fatalf("dockerbay: %v", err)
	}

	if report := env.TryCleanupFromPreviousRun(ctx); !report.OK() {
		t.Logf("dockerbay: cleanup of previous run: %v", report.Err())
	}

	t.Cleanup(func() {
		report, err := env.TearDown(ctx)
		if err != nil {
			t.Errorf("dockerbay: %v", err)
			return
		}
		if err := report.Err(); err != nil {
			t.Errorf("dockerbay: teardown: %v", err)
		}
	})

	if err := env.Initialize(ctx); err != nil {
		t.Fatalf("dockerbay: %v", err)
	}
	if !env.IsInitialized() {
		t.Fatalf("dockerbay: environment %q is not fully running", env.RunID())
	}
	return env
}
