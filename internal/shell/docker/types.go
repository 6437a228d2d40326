// Package docker adapts the Docker Engine API to the runtime capability the
// environment orchestrator needs.
package docker

import "context"

// =============================================================================
// Labels
// =============================================================================

// Labels attached to every resource dockerbay creates.
const (
	LabelManaged = "com.dockerbay.managed"
	LabelRun     = "com.dockerbay.run"
	LabelAlias   = "com.dockerbay.alias"
)

// RunLabels returns the labels marking a resource as owned by a run.
func RunLabels(runID string) map[string]string {
	return map[string]string{
		LabelManaged: "true",
		LabelRun:     runID,
	}
}

// ServiceLabels returns the run labels plus the service alias.
func ServiceLabels(runID, alias string) map[string]string {
	labels := RunLabels(runID)
	labels[LabelAlias] = alias
	return labels
}

// =============================================================================
// Container Types
// =============================================================================

// ContainerSpec defines the specification for creating a container.
type ContainerSpec struct {
	Name           string
	Image          string
	Command        []string // nil keeps the image default
	Env            map[string]string
	Labels         map[string]string
	Ports          []PortBinding
	Volumes        []VolumeMount
	Network        string
	NetworkAliases []string // DNS names of the container on Network
}

// PortBinding defines a port mapping.
type PortBinding struct {
	ContainerPort int
	HostPort      int    // 0 for auto-assign
	Protocol      string // "tcp" or "udp"
	HostIP        string // "" for 0.0.0.0
}

// VolumeMount defines a volume mount. Sources starting with "/" are host
// paths, anything else names a volume.
type VolumeMount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// =============================================================================
// Network Types
// =============================================================================

// NetworkSpec defines the specification for creating a network.
type NetworkSpec struct {
	Name   string
	Driver string // "bridge" when empty
	Labels map[string]string
}

// =============================================================================
// Volume Types
// =============================================================================

// VolumeSpec defines the specification for creating a volume.
type VolumeSpec struct {
	Name   string
	Driver string // "local" when empty
	Labels map[string]string
}

// =============================================================================
// Client Interface
// =============================================================================

// Client is the container runtime capability. Containers, networks and
// volumes are addressed by name.
type Client interface {
	// Image operations
	PullImage(ctx context.Context, image string) error

	// Container operations
	CreateContainer(ctx context.Context, spec ContainerSpec) (containerID string, err error)
	StartContainer(ctx context.Context, name string) error
	KillContainer(ctx context.Context, name string) error
	RemoveContainer(ctx context.Context, name string) error
	ContainerLogs(ctx context.Context, name string) (string, error)
	PortMappings(ctx context.Context, name string) (map[int]int, error)

	// Network operations
	CreateNetwork(ctx context.Context, spec NetworkSpec) error
	RemoveNetwork(ctx context.Context, name string) error
	NetworkExists(ctx context.Context, name string) (bool, error)

	// Volume operations
	CreateVolume(ctx context.Context, spec VolumeSpec) error
	RemoveVolume(ctx context.Context, name string) error

	// Health operations
	Ping(ctx context.Context) error
	Close() error
}
