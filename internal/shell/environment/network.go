package environment

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dockerbay/dockerbay/internal/shell/docker"
)

// Network is the isolated bridge network of one run. Attachment is
// bookkeeping only; containers join the network when they are created.
type Network struct {
	name     string
	labels   map[string]string
	runtime  docker.Client
	logger   *slog.Logger
	attached []string
}

func newNetwork(name string, labels map[string]string, runtime docker.Client, logger *slog.Logger) *Network {
	return &Network{
		name:    name,
		labels:  labels,
		runtime: runtime,
		logger:  logger,
	}
}

// Name returns the network name.
func (n *Network) Name() string { return n.name }

// Attached returns the aliases of attached services in attachment order.
func (n *Network) Attached() []string { return slices.Clone(n.attached) }

// IsAttached reports whether alias is attached.
func (n *Network) IsAttached(alias string) bool {
	return slices.Contains(n.attached, alias)
}

// Attach records alias as attached. Attaching twice is a no-op.
func (n *Network) Attach(alias string) {
	if !n.IsAttached(alias) {
		n.attached = append(n.attached, alias)
	}
}

// Detach forgets alias.
func (n *Network) Detach(alias string) {
	n.attached = slices.DeleteFunc(n.attached, func(a string) bool { return a == alias })
}

// Create creates the network in the runtime.
func (n *Network) Create(ctx context.Context) error {
	n.logger.Info("creating network", "network", n.name)
	if err := n.runtime.CreateNetwork(ctx, docker.NetworkSpec{Name: n.name, Labels: n.labels}); err != nil {
		return fmt.Errorf("create network %q: %w", n.name, err)
	}
	return nil
}

// Delete removes the network from the runtime. It is refused without any
// runtime call while services are still attached.
func (n *Network) Delete(ctx context.Context) error {
	if len(n.attached) > 0 {
		return fmt.Errorf("delete network %q (attached: %v): %w", n.name, n.attached, ErrNetworkInUse)
	}
	n.logger.Info("deleting network", "network", n.name)
	if err := n.runtime.RemoveNetwork(ctx, n.name); err != nil {
		return fmt.Errorf("delete network %q: %w", n.name, err)
	}
	return nil
}

// Exists asks the runtime whether the network exists.
func (n *Network) Exists(ctx context.Context) (bool, error) {
	exists, err := n.runtime.NetworkExists(ctx, n.name)
	if err != nil {
		return false, fmt.Errorf("inspect network %q: %w", n.name, err)
	}
	n.logger.Debug("checked network", "network", n.name, "exists", exists)
	return exists, nil
}
