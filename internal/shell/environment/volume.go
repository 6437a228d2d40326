package environment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dockerbay/dockerbay/internal/shell/docker"
)

// Volume is a named volume used by the services of a run. Its resolved name
// is its identity.
type Volume struct {
	name    string
	labels  map[string]string
	runtime docker.Client
	logger  *slog.Logger
}

func newVolume(name string, labels map[string]string, runtime docker.Client, logger *slog.Logger) *Volume {
	return &Volume{name: name, labels: labels, runtime: runtime, logger: logger}
}

// Name returns the resolved volume name.
func (v *Volume) Name() string { return v.name }

// Create creates the volume in the runtime.
func (v *Volume) Create(ctx context.Context) error {
	v.logger.Info("creating volume", "volume", v.name)
	if err := v.runtime.CreateVolume(ctx, docker.VolumeSpec{Name: v.name, Labels: v.labels}); err != nil {
		return fmt.Errorf("create volume %q: %w", v.name, err)
	}
	return nil
}

// Delete removes the volume from the runtime.
func (v *Volume) Delete(ctx context.Context) error {
	v.logger.Info("deleting volume", "volume", v.name)
	if err := v.runtime.RemoveVolume(ctx, v.name); err != nil {
		return fmt.Errorf("delete volume %q: %w", v.name, err)
	}
	return nil
}
