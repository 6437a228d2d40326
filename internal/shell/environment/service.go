package environment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dockerbay/dockerbay/internal/core/template"
	"github.com/dockerbay/dockerbay/internal/core/topology"
	"github.com/dockerbay/dockerbay/internal/shell/docker"
	"github.com/dockerbay/dockerbay/internal/shell/probe"
)

// DefaultPollInterval is the pause between readiness polls.
const DefaultPollInterval = 2 * time.Second

// deps are the collaborators shared by every resource of an environment.
type deps struct {
	runtime      docker.Client
	prober       probe.Prober
	logger       *slog.Logger
	pollInterval time.Duration
}

// Service is one container of a run: a template bound to a run id and a
// network. Lifecycle operations consult the topology transition table; an
// operation that does not apply in the current state is logged and skipped.
type Service struct {
	tmpl    template.ServiceTemplate
	runID   string
	name    string
	network string
	binds   []template.Bind

	state         topology.State
	hostPort      int
	debugHostPort int

	onRemoved func()
	deps
}

func newService(tmpl template.ServiceTemplate, runID, network string, d deps) *Service {
	return &Service{
		tmpl:    tmpl,
		runID:   runID,
		name:    topology.ServiceName(tmpl.Alias(), runID),
		network: network,
		binds:   topology.ResolveBinds(tmpl, runID),
		state:   topology.NotCreated,
		deps:    d,
	}
}

// =============================================================================
// Accessors
// =============================================================================

func (s *Service) Alias() string { return s.tmpl.Alias() }
func (s *Service) Name() string { return s.name }
func (s *Service) Template() template.ServiceTemplate { return s.tmpl }
func (s *Service) State() topology.State { return s.state }

// NetworkName returns the name of the network the service is created on.
func (s *Service) NetworkName() string { return s.network }

// Binds returns the binds resolved for this run.
func (s *Service) Binds() []template.Bind {
	return append([]template.Bind(nil), s.binds...)
}

// HostPort returns the host port mapped to the exposed port, 0 if none.
func (s *Service) HostPort() int { return s.hostPort }

// DebugHostPort returns the host port mapped to the debug port, 0 if none.
func (s *Service) DebugHostPort() int { return s.debugHostPort }

// =============================================================================
// Lifecycle Operations
// =============================================================================

// Create pulls the image and creates the container. A failed pull leaves the
// service NOT_CREATED; a failed create leaves it CREATED_OR_STOPPED so that
// teardown still attempts a removal.
func (s *Service) Create(ctx context.Context) error {
	return s.transition(ctx, topology.OpCreate, s.pull, s.create)
}

// Start starts the container, records the host ports and blocks until the
// readiness checks pass. The service counts as RUNNING even if this fails.
func (s *Service) Start(ctx context.Context) error {
	return s.transition(ctx, topology.OpStart, nil, s.start)
}

// Stop kills the container.
func (s *Service) Stop(ctx context.Context) error {
	return s.transition(ctx, topology.OpStop, nil, s.kill)
}

// Remove removes the container, emitting its output first when the template
// asks for it.
func (s *Service) Remove(ctx context.Context) error {
	err := s.transition(ctx, topology.OpRemove, s.displayLogs, s.remove)
	if err == nil && s.state == topology.NotCreated && s.onRemoved != nil {
		s.onRemoved()
	}
	return err
}

// transition runs op against the lifecycle table. prepare runs before the
// commit point of a commit-before transition and may abort it.
func (s *Service) transition(ctx context.Context, op topology.Op, prepare, effect func(context.Context) error) error {
	tr := topology.Plan(s.state, op)
	switch tr.Action {
	case topology.ActionIgnore:
		s.logger.Info("service already in target state, skipping",
			"service", s.name, "op", string(op), "state", s.state.String())
		return nil
	case topology.ActionRefuse:
		s.logger.Warn("operation not allowed in current state",
			"service", s.name, "op", string(op), "state", s.state.String())
		return nil
	}

	if prepare != nil {
		if err := prepare(ctx); err != nil {
			return err
		}
	}
	if tr.Commit == topology.CommitBefore {
		s.state = tr.Next
	}
	if err := effect(ctx); err != nil {
		return err
	}
	if tr.Commit == topology.CommitAfter {
		s.state = tr.Next
	}
	return nil
}

// =============================================================================
// Runtime Effects
// =============================================================================

func (s *Service) pull(ctx context.Context) error {
	s.logger.Info("pulling image", "service", s.name, "image", s.tmpl.Image())
	if err := s.runtime.PullImage(ctx, s.tmpl.Image()); err != nil {
		return fmt.Errorf("pull image for service %q: %w", s.name, err)
	}
	return nil
}

func (s *Service) create(ctx context.Context) error {
	s.logger.Info("creating service", "service", s.name, "image", s.tmpl.Image(), "network", s.network)
	if _, err := s.runtime.CreateContainer(ctx, s.containerSpec()); err != nil {
		return fmt.Errorf("create service %q: %w", s.name, err)
	}
	return nil
}

func (s *Service) start(ctx context.Context) error {
	s.logger.Info("starting service", "service", s.name)
	if err := s.runtime.StartContainer(ctx, s.name); err != nil {
		return fmt.Errorf("start service %q: %w", s.name, err)
	}

	if s.tmpl.ExposedPort() != 0 || s.tmpl.DebugPort() != 0 {
		mappings, err := s.runtime.PortMappings(ctx, s.name)
		if err != nil {
			return fmt.Errorf("read port mappings of service %q: %w", s.name, err)
		}
		s.hostPort = mappings[s.tmpl.ExposedPort()]
		s.debugHostPort = mappings[s.tmpl.DebugPort()]
		s.logger.Info("service ports assigned", "service", s.name,
			"host_port", s.hostPort, "debug_host_port", s.debugHostPort)
	}

	return s.waitUntilReady(ctx)
}

func (s *Service) kill(ctx context.Context) error {
	s.logger.Info("stopping service", "service", s.name)
	if err := s.runtime.KillContainer(ctx, s.name); err != nil {
		return fmt.Errorf("stop service %q: %w", s.name, err)
	}
	return nil
}

func (s *Service) remove(ctx context.Context) error {
	s.logger.Info("removing service", "service", s.name)
	if err := s.runtime.RemoveContainer(ctx, s.name); err != nil {
		return fmt.Errorf("remove service %q: %w", s.name, err)
	}
	s.hostPort, s.debugHostPort = 0, 0
	return nil
}

// displayLogs never fails; output that cannot be fetched is only reported.
func (s *Service) displayLogs(ctx context.Context) error {
	if !s.tmpl.DisplayLogs() {
		return nil
	}
	out, err := s.runtime.ContainerLogs(ctx, s.name)
	if err != nil {
		s.logger.Warn("failed to fetch service output", "service", s.name, "error", err)
		return nil
	}
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line == "" {
			continue
		}
		s.logger.Info("service output", "service", s.name, "line", line)
	}
	return nil
}

func (s *Service) containerSpec() docker.ContainerSpec {
	spec := docker.ContainerSpec{
		Name:           s.name,
		Image:          s.tmpl.Image(),
		Command:        s.tmpl.Command(),
		Env:            s.tmpl.Env(),
		Labels:         docker.ServiceLabels(s.runID, s.tmpl.Alias()),
		Network:        s.network,
		NetworkAliases: []string{s.tmpl.Alias()},
	}
	if p := s.tmpl.ExposedPort(); p != 0 {
		spec.Ports = append(spec.Ports, docker.PortBinding{ContainerPort: p})
	}
	if p := s.tmpl.DebugPort(); p != 0 {
		spec.Ports = append(spec.Ports, docker.PortBinding{ContainerPort: p})
	}
	for _, b := range s.binds {
		spec.Volumes = append(spec.Volumes, docker.VolumeMount{Source: b.From, Target: b.To})
	}
	return spec
}
