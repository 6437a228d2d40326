package environment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dockerbay/dockerbay/internal/core/topology"
)

type envState int

const (
	stateNew envState = iota
	stateInitialized
	stateTornDown
)

// Environment is one run: a network, the services attached to it in startup
// order, and the volumes they use.
type Environment struct {
	runID    string
	network  *Network
	services []*Service
	byAlias  map[string]*Service
	volumes  []*Volume
	volumeOf map[string]*Volume
	state    envState
	logger   *slog.Logger
}

func newEnvironment(runID string, network *Network, logger *slog.Logger) *Environment {
	return &Environment{
		runID:    runID,
		network:  network,
		byAlias:  make(map[string]*Service),
		volumeOf: make(map[string]*Volume),
		logger:   logger,
	}
}

// =============================================================================
// Composition
// =============================================================================

// AddService appends svc to the startup order and attaches it to the network.
func (e *Environment) AddService(svc *Service) error {
	alias := svc.Alias()
	if _, exists := e.byAlias[alias]; exists {
		return fmt.Errorf("add service %q: %w", alias, ErrDuplicateAlias)
	}
	e.services = append(e.services, svc)
	e.byAlias[alias] = svc
	e.network.Attach(alias)
	svc.onRemoved = func() { e.network.Detach(alias) }
	return nil
}

// AddVolume adds v unless a volume with the same name is already present.
// It reports whether v was added.
func (e *Environment) AddVolume(v *Volume) bool {
	if _, exists := e.volumeOf[v.Name()]; exists {
		return false
	}
	e.volumes = append(e.volumes, v)
	e.volumeOf[v.Name()] = v
	return true
}

// =============================================================================
// Lookups
// =============================================================================

func (e *Environment) RunID() string     { return e.runID }
func (e *Environment) Network() *Network { return e.network }

// Services returns the services in startup order.
func (e *Environment) Services() []*Service {
	return append([]*Service(nil), e.services...)
}

// Volumes returns the volumes in first-seen order.
func (e *Environment) Volumes() []*Volume {
	return append([]*Volume(nil), e.volumes...)
}

// Service returns the service registered under alias.
func (e *Environment) Service(alias string) (*Service, error) {
	svc, ok := e.byAlias[alias]
	if !ok {
		return nil, fmt.Errorf("service %q: %w", alias, ErrUnknownAlias)
	}
	return svc, nil
}

// HostPort returns the host port mapped to the exposed port of alias.
func (e *Environment) HostPort(alias string) (int, error) {
	svc, err := e.Service(alias)
	if err != nil {
		return 0, err
	}
	if svc.HostPort() == 0 {
		return 0, fmt.Errorf("service %q: %w", alias, ErrNoAssignedPort)
	}
	return svc.HostPort(), nil
}

// DebugHostPort returns the host port mapped to the debug port of alias.
func (e *Environment) DebugHostPort(alias string) (int, error) {
	svc, err := e.Service(alias)
	if err != nil {
		return 0, err
	}
	if svc.DebugHostPort() == 0 {
		return 0, fmt.Errorf("service %q debug port: %w", alias, ErrNoAssignedPort)
	}
	return svc.DebugHostPort(), nil
}

// =============================================================================
// Lifecycle
// =============================================================================

// TryCleanupFromPreviousRun removes what a crashed run with the same id may
// have left behind. It does nothing unless the network exists. Every service
// is assumed running so the full teardown is attempted, and one that cannot be
// killed (exited, or never started) is still removed; afterwards all
// services are reset to NOT_CREATED and reattached. The aggregate state is
// not changed.
func (e *Environment) TryCleanupFromPreviousRun(ctx context.Context) *TeardownReport {
	exists, err := e.network.Exists(ctx)
	if err != nil {
		e.logger.Warn("could not check for a previous run", "run_id", e.runID, "error", err)
		report := &TeardownReport{}
		report.add(KindNetwork, e.network.Name(), "inspect", err)
		return report
	}
	if !exists {
		return &TeardownReport{}
	}

	e.logger.Info("cleaning up previous run", "run_id", e.runID)
	for _, svc := range e.services {
		svc.state = topology.Running
	}

	report := e.teardown(ctx, true)

	for _, svc := range e.services {
		svc.state = topology.NotCreated
		svc.hostPort, svc.debugHostPort = 0, 0
		e.network.Attach(svc.Alias())
	}
	return report
}

// Initialize creates the network and volumes, creates every service, then
// starts every service in order. The first failure aborts and is returned;
// the environment must still be torn down afterwards.
func (e *Environment) Initialize(ctx context.Context) error {
	if e.state != stateNew {
		return fmt.Errorf("initialize run %q: %w", e.runID, ErrAlreadyInitialized)
	}
	e.state = stateInitialized
	e.logger.Info("initializing environment", "run_id", e.runID,
		"services", len(e.services), "volumes", len(e.volumes))

	if err := e.network.Create(ctx); err != nil {
		return fmt.Errorf("initialize run %q: %w", e.runID, err)
	}
	for _, v := range e.volumes {
		if err := v.Create(ctx); err != nil {
			return fmt.Errorf("initialize run %q: %w", e.runID, err)
		}
	}
	for _, svc := range e.services {
		if err := svc.Create(ctx); err != nil {
			return fmt.Errorf("initialize run %q: %w", e.runID, err)
		}
	}
	for _, svc := range e.services {
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("initialize run %q: %w", e.runID, err)
		}
	}

	e.logger.Info("environment initialized", "run_id", e.runID)
	return nil
}

// TearDown releases everything Initialize created. Failures do not stop it;
// they are returned in the report. The error is non-nil only when the
// environment was never initialized or is already torn down.
func (e *Environment) TearDown(ctx context.Context) (*TeardownReport, error) {
	if e.state != stateInitialized {
		return nil, fmt.Errorf("tear down run %q: %w", e.runID, ErrNotInitialized)
	}
	e.state = stateTornDown
	e.logger.Info("tearing down environment", "run_id", e.runID)
	return e.teardown(ctx, false), nil
}

// IsInitialized reports whether Initialize was called and every service is
// running.
func (e *Environment) IsInitialized() bool {
	if e.state != stateInitialized {
		return false
	}
	for _, svc := range e.services {
		if svc.State() != topology.Running {
			return false
		}
	}
	return true
}
