package environment

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockerbay/dockerbay/internal/core/template"
	"github.com/dockerbay/dockerbay/internal/shell/probe"
)

func createdService(t *testing.T, rt *mockRuntime, tm template.ServiceTemplate) *Service {
	t.Helper()
	svc := newTestService(rt, tm)
	require.NoError(t, svc.Create(context.Background()))
	return svc
}

// =============================================================================
// Log Wait Tests
// =============================================================================

func TestWaitForLog_ReadyOnThirdPoll(t *testing.T) {
	rt := newMockRuntime()
	rt.logs["db-run"] = []string{"", "booting", "booting\nready to accept connections"}
	svc := createdService(t, rt, template.NewBuilder().
		WithAlias("db").WithImage("db").WaitForLog("ready to accept connections").MustBuild())

	require.NoError(t, svc.Start(context.Background()))

	assert.GreaterOrEqual(t, rt.count("logs:db-run"), 3)
}

func TestWaitForLog_ErrorsAreNotReady(t *testing.T) {
	rt := newMockRuntime()
	rt.logFailures["db-run"] = 2
	rt.logs["db-run"] = []string{"ready"}
	svc := createdService(t, rt, template.NewBuilder().
		WithAlias("db").WithImage("db").WaitForLog("ready").MustBuild())

	require.NoError(t, svc.Start(context.Background()))

	assert.Equal(t, 3, rt.count("logs:db-run"))
}

func TestWaitForLog_Timeout(t *testing.T) {
	rt := newMockRuntime()
	rt.logs["db-run"] = []string{"still starting"}
	svc := createdService(t, rt, template.NewBuilder().
		WithAlias("db").WithImage("db").WaitForLog("never printed").WithTimeout(time.Second).MustBuild())
	svc.pollInterval = DefaultPollInterval

	start := time.Now()
	err := svc.Start(context.Background())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReadinessTimeout)
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.Less(t, elapsed, 3*time.Second)
}

func TestWaitForLog_ContextCanceled(t *testing.T) {
	rt := newMockRuntime()
	svc := createdService(t, rt, template.NewBuilder().
		WithAlias("db").WithImage("db").WaitForLog("never").MustBuild())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := svc.Start(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrReadinessTimeout)
}

// =============================================================================
// URL Wait Tests
// =============================================================================

func TestWaitForURL_RetriesUntil2xx(t *testing.T) {
	rt := newMockRuntime()
	rt.ports["api-run"] = map[int]int{8080: 40000}
	svc := createdService(t, rt, template.NewBuilder().
		WithAlias("api").WithImage("api").WithExposedPort(8080).WaitForURL("/health").MustBuild())
	prober := &mockProber{statuses: []int{503, 404, 204}}
	svc.prober = prober

	require.NoError(t, svc.Start(context.Background()))

	assert.Equal(t, 3, prober.calls())
	assert.Equal(t, "http://localhost:40000/health", prober.urls[0])
}

func TestWaitForURL_ProbeErrorsAreNotReady(t *testing.T) {
	rt := newMockRuntime()
	rt.ports["api-run"] = map[int]int{8080: 40000}
	svc := createdService(t, rt, template.NewBuilder().
		WithAlias("api").WithImage("api").WithExposedPort(8080).WaitForURL("/").
		WithTimeout(50*time.Millisecond).MustBuild())
	prober := &mockProber{err: errBoom}
	svc.prober = prober

	err := svc.Start(context.Background())

	assert.ErrorIs(t, err, ErrReadinessTimeout)
	assert.Greater(t, prober.calls(), 1)
}

func TestWaitForURL_NoAssignedPortFailsFast(t *testing.T) {
	rt := newMockRuntime()
	svc := createdService(t, rt, template.NewBuilder().
		WithAlias("api").WithImage("api").WithExposedPort(8080).WaitForURL("/health").MustBuild())
	prober := &mockProber{}
	svc.prober = prober

	start := time.Now()
	err := svc.Start(context.Background())

	assert.ErrorIs(t, err, ErrNoAssignedPort)
	assert.NotErrorIs(t, err, ErrReadinessTimeout)
	assert.Zero(t, prober.calls())
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitForURL_AfterLogWait(t *testing.T) {
	rt := newMockRuntime()
	rt.ports["api-run"] = map[int]int{8080: 40000}
	rt.logs["api-run"] = []string{"", "started"}
	svc := createdService(t, rt, template.NewBuilder().
		WithAlias("api").WithImage("api").WithExposedPort(8080).
		WaitForLog("started").WaitForURL("/health").MustBuild())

	var logPollsAtFirstProbe int
	prober := &mockProber{}
	prober.onGet = func() {
		if logPollsAtFirstProbe == 0 {
			logPollsAtFirstProbe = rt.count("logs:api-run")
		}
	}
	svc.prober = prober

	require.NoError(t, svc.Start(context.Background()))

	assert.Equal(t, 2, logPollsAtFirstProbe)
}

func TestWaitForURL_RealHTTPServer(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	rt := newMockRuntime()
	rt.ports["api-run"] = map[int]int{8080: port}
	svc := createdService(t, rt, template.NewBuilder().
		WithAlias("api").WithImage("api").WithExposedPort(8080).WaitForURL("/ready").
		WithTimeout(5*time.Second).MustBuild())
	svc.prober = probe.NewHTTPProber(time.Second)

	require.NoError(t, svc.Start(context.Background()))
	assert.GreaterOrEqual(t, hits.Load(), int32(2))
}
