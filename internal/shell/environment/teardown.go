package environment

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/dockerbay/dockerbay/internal/core/topology"
)

// =============================================================================
// Teardown Report
// =============================================================================

// ResourceKind names the kind of resource a teardown failure concerns.
type ResourceKind string

const (
	KindService ResourceKind = "service"
	KindNetwork ResourceKind = "network"
	KindVolume  ResourceKind = "volume"
)

// TeardownFailure is one failed teardown step.
type TeardownFailure struct {
	Kind ResourceKind
	Name string
	Op   string
	Err  error
}

func (f TeardownFailure) Error() string {
	return fmt.Sprintf("%s %s %q: %v", f.Op, f.Kind, f.Name, f.Err)
}

func (f TeardownFailure) Unwrap() error {
	return f.Err
}

// TeardownReport collects every failure of one teardown. A teardown never
// stops at the first failure.
type TeardownReport struct {
	Failures []TeardownFailure
}

// OK reports whether every step succeeded.
func (r *TeardownReport) OK() bool {
	return r == nil || len(r.Failures) == 0
}

// Err combines all failures into one error, nil when there were none.
func (r *TeardownReport) Err() error {
	if r == nil {
		return nil
	}
	var err error
	for _, f := range r.Failures {
		err = multierr.Append(err, f)
	}
	return err
}

func (r *TeardownReport) add(kind ResourceKind, name, op string, err error) {
	r.Failures = append(r.Failures, TeardownFailure{Kind: kind, Name: name, Op: op, Err: err})
}

// =============================================================================
// Teardown Driver
// =============================================================================

// teardown stops and removes services in reverse startup order, then deletes
// the network and the volumes. Every step is attempted. With leftovers set the
// services' states are only assumed, so a service that cannot be stopped is
// taken as already stopped and its removal is still attempted.
func (e *Environment) teardown(ctx context.Context, leftovers bool) *TeardownReport {
	report := &TeardownReport{}

	for i := len(e.services) - 1; i >= 0; i-- {
		svc := e.services[i]
		if err := svc.Stop(ctx); err != nil {
			e.logger.Error("failed to stop service", "service", svc.Name(), "error", err)
			report.add(KindService, svc.Name(), "stop", err)
			if leftovers {
				svc.state = topology.CreatedOrStopped
			}
		}
		if err := svc.Remove(ctx); err != nil {
			e.logger.Error("failed to remove service", "service", svc.Name(), "error", err)
			report.add(KindService, svc.Name(), "remove", err)
		}
		if e.network.IsAttached(svc.Alias()) {
			e.logger.Warn("detaching service that could not be removed",
				"service", svc.Name(), "network", e.network.Name(), "state", svc.State().String())
			e.network.Detach(svc.Alias())
		}
	}

	if err := e.network.Delete(ctx); err != nil {
		e.logger.Error("failed to delete network", "network", e.network.Name(), "error", err)
		report.add(KindNetwork, e.network.Name(), "delete", err)
	}

	for _, v := range e.volumes {
		if err := v.Delete(ctx); err != nil {
			e.logger.Error("failed to delete volume", "volume", v.Name(), "error", err)
			report.add(KindVolume, v.Name(), "delete", err)
		}
	}

	if report.OK() {
		e.logger.Info("environment torn down", "run_id", e.runID)
	} else {
		e.logger.Warn("environment torn down with failures", "run_id", e.runID, "failures", len(report.Failures))
	}
	return report
}
