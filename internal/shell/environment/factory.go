package environment

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dockerbay/dockerbay/internal/core/template"
	"github.com/dockerbay/dockerbay/internal/core/topology"
	"github.com/dockerbay/dockerbay/internal/shell/docker"
	"github.com/dockerbay/dockerbay/internal/shell/probe"
)

// =============================================================================
// Factory
// =============================================================================

// Factory turns a fixed set of templates into environments, one per run id.
type Factory struct {
	templates []template.ServiceTemplate
	deps
}

// Option configures a Factory.
type Option func(*Factory)

// WithTemplates appends service templates. Templates without dependencies
// start in the order given.
func WithTemplates(templates ...template.ServiceTemplate) Option {
	return func(f *Factory) {
		f.templates = append(f.templates, templates...)
	}
}

// WithProber replaces the HTTP prober used by URL waits.
func WithProber(p probe.Prober) Option {
	return func(f *Factory) {
		f.prober = p
	}
}

// WithLogger sets the logger. A nil logger selects slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithPollInterval sets the pause between readiness polls.
func WithPollInterval(d time.Duration) Option {
	return func(f *Factory) {
		f.pollInterval = d
	}
}

// NewFactory creates a factory backed by runtime.
func NewFactory(runtime docker.Client, opts ...Option) *Factory {
	f := &Factory{deps: deps{runtime: runtime}}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	f.logger = f.logger.With("component", "environment")
	if f.prober == nil {
		f.prober = probe.NewHTTPProber(probe.DefaultTimeout)
	}
	if f.pollInterval <= 0 {
		f.pollInterval = DefaultPollInterval
	}
	return f
}

// Templates returns the templates in startup order.
func (f *Factory) Templates() ([]template.ServiceTemplate, error) {
	return topology.TopologicalSort(f.templates)
}

// MakeEnvironment lays out a new environment for runID: a network named after
// the run, one service per template, and one volume per distinct volume
// source across all resolved binds. Nothing is created in the runtime yet.
func (f *Factory) MakeEnvironment(runID string) (*Environment, error) {
	if runID == "" {
		return nil, ErrEmptyRunID
	}

	ordered, err := f.Templates()
	if err != nil {
		return nil, fmt.Errorf("order services for run %q: %w", runID, err)
	}

	labels := docker.RunLabels(runID)
	networkName := topology.NetworkName(runID)
	env := newEnvironment(runID, newNetwork(networkName, labels, f.runtime, f.logger), f.logger)

	for _, tmpl := range ordered {
		svc := newService(tmpl, runID, networkName, f.deps)
		if err := env.AddService(svc); err != nil {
			return nil, err
		}
		for _, name := range topology.VolumeSources(svc.Binds()) {
			env.AddVolume(newVolume(name, labels, f.runtime, f.logger))
		}
	}

	f.logger.Debug("environment laid out", "run_id", runID,
		"services", len(env.services), "volumes", len(env.volumes))
	return env, nil
}
