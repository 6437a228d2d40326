package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// =============================================================================
// Docker Client Implementation
// =============================================================================

// DockerClient implements the Client interface using the Docker SDK.
type DockerClient struct {
	cli *client.Client
}

var _ Client = (*DockerClient)(nil)

// NewDockerClient creates a new Docker client.
// If host is empty, it uses the default Docker host from environment.
// On macOS with Docker Desktop, it falls back to the per-user socket when the
// default one does not answer.
func NewDockerClient(ctx context.Context, host string) (*DockerClient, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, NewDockerError("NewDockerClient", "", "", err.Error(), ErrConnectionFailed)
	}

	if host != "" {
		return &DockerClient{cli: cli}, nil
	}

	if _, pingErr := cli.Ping(ctx); pingErr != nil {
		homeDir, _ := os.UserHomeDir()
		desktopSocket := "unix://" + homeDir + "/.docker/run/docker.sock"

		alt, altErr := client.NewClientWithOpts(
			client.WithHost(desktopSocket),
			client.WithAPIVersionNegotiation(),
		)
		if altErr == nil {
			if _, err := alt.Ping(ctx); err == nil {
				cli.Close()
				return &DockerClient{cli: alt}, nil
			}
			alt.Close()
		}
	}

	return &DockerClient{cli: cli}, nil
}

// Ping checks if Docker daemon is reachable.
func (d *DockerClient) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return NewDockerError("Ping", "", "", fmt.Sprintf("failed to ping docker: %v", err), ErrConnectionFailed)
	}
	return nil
}

// Close closes the Docker client connection.
func (d *DockerClient) Close() error {
	return d.cli.Close()
}

// =============================================================================
// Image Operations
// =============================================================================

// PullImage pulls an image from the registry and waits for the pull to end.
func (d *DockerClient) PullImage(ctx context.Context, imageName string) error {
	reader, err := d.cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "not found") ||
			strings.Contains(errStr, "manifest unknown") ||
			strings.Contains(errStr, "repository does not exist") ||
			strings.Contains(errStr, "pull access denied") {
			return NewDockerError("PullImage", entityImage, imageName, "image not found", ErrImageNotFound)
		}
		return NewDockerError("PullImage", entityImage, imageName, errStr, ErrImagePullFailed)
	}
	defer reader.Close()

	// Drain the progress stream; the pull completes when it closes.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return NewDockerError("PullImage", entityImage, imageName, err.Error(), ErrImagePullFailed)
	}
	return nil
}

// =============================================================================
// Container Operations
// =============================================================================

// CreateContainer creates a new container from the given spec.
func (d *DockerClient) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	config, hostConfig, networkConfig := buildCreateConfig(spec)

	resp, err := d.cli.ContainerCreate(ctx, config, hostConfig, networkConfig, nil, spec.Name)
	if err != nil {
		return "", classify("CreateContainer", entityContainer, spec.Name, err)
	}
	return resp.ID, nil
}

// StartContainer starts a created or stopped container.
func (d *DockerClient) StartContainer(ctx context.Context, name string) error {
	if err := d.cli.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return classify("StartContainer", entityContainer, name, err)
	}
	return nil
}

// KillContainer sends SIGKILL without a grace period.
func (d *DockerClient) KillContainer(ctx context.Context, name string) error {
	if err := d.cli.ContainerKill(ctx, name, "SIGKILL"); err != nil {
		return classify("KillContainer", entityContainer, name, err)
	}
	return nil
}

// RemoveContainer removes a stopped container.
func (d *DockerClient) RemoveContainer(ctx context.Context, name string) error {
	if err := d.cli.ContainerRemove(ctx, name, container.RemoveOptions{}); err != nil {
		return classify("RemoveContainer", entityContainer, name, err)
	}
	return nil
}

// ContainerLogs returns everything the container wrote so far, stdout and
// stderr combined.
func (d *DockerClient) ContainerLogs(ctx context.Context, name string) (string, error) {
	reader, err := d.cli.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", classify("ContainerLogs", entityContainer, name, err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, reader); err != nil {
		return "", NewDockerError("ContainerLogs", entityContainer, name, err.Error(), err)
	}
	return buf.String(), nil
}

// PortMappings returns container port to host port for every published port.
func (d *DockerClient) PortMappings(ctx context.Context, name string) (map[int]int, error) {
	resp, err := d.cli.ContainerInspect(ctx, name)
	if err != nil {
		return nil, classify("PortMappings", entityContainer, name, err)
	}
	if resp.NetworkSettings == nil {
		return map[int]int{}, nil
	}
	return hostPorts(resp.NetworkSettings.Ports), nil
}

// =============================================================================
// Network Operations
// =============================================================================

// CreateNetwork creates a new Docker network.
func (d *DockerClient) CreateNetwork(ctx context.Context, spec NetworkSpec) error {
	driver := spec.Driver
	if driver == "" {
		driver = "bridge"
	}

	_, err := d.cli.NetworkCreate(ctx, spec.Name, network.CreateOptions{
		Driver: driver,
		Labels: spec.Labels,
	})
	if err != nil {
		return classify("CreateNetwork", entityNetwork, spec.Name, err)
	}
	return nil
}

// RemoveNetwork removes a Docker network.
func (d *DockerClient) RemoveNetwork(ctx context.Context, name string) error {
	if err := d.cli.NetworkRemove(ctx, name); err != nil {
		return classify("RemoveNetwork", entityNetwork, name, err)
	}
	return nil
}

// NetworkExists reports whether a network with the given name exists.
func (d *DockerClient) NetworkExists(ctx context.Context, name string) (bool, error) {
	_, err := d.cli.NetworkInspect(ctx, name, network.InspectOptions{})
	if err == nil {
		return true, nil
	}
	if client.IsErrNotFound(err) {
		return false, nil
	}
	return false, classify("NetworkExists", entityNetwork, name, err)
}

// =============================================================================
// Volume Operations
// =============================================================================

// CreateVolume creates a new Docker volume.
func (d *DockerClient) CreateVolume(ctx context.Context, spec VolumeSpec) error {
	driver := spec.Driver
	if driver == "" {
		driver = "local"
	}

	_, err := d.cli.VolumeCreate(ctx, volume.CreateOptions{
		Name:   spec.Name,
		Driver: driver,
		Labels: spec.Labels,
	})
	if err != nil {
		return classify("CreateVolume", entityVolume, spec.Name, err)
	}
	return nil
}

// RemoveVolume removes a Docker volume.
func (d *DockerClient) RemoveVolume(ctx context.Context, name string) error {
	if err := d.cli.VolumeRemove(ctx, name, false); err != nil {
		return classify("RemoveVolume", entityVolume, name, err)
	}
	return nil
}

// =============================================================================
// Spec Conversion
// =============================================================================

// buildCreateConfig converts a ContainerSpec into Engine API create options.
func buildCreateConfig(spec ContainerSpec) (*container.Config, *container.HostConfig, *network.NetworkingConfig) {
	config := &container.Config{
		Image:  spec.Image,
		Cmd:    spec.Command,
		Labels: spec.Labels,
	}
	for k, v := range spec.Env {
		config.Env = append(config.Env, k+"="+v)
	}

	hostConfig := &container.HostConfig{}

	if len(spec.Ports) > 0 {
		portBindings := nat.PortMap{}
		exposedPorts := nat.PortSet{}

		for _, p := range spec.Ports {
			proto := p.Protocol
			if proto == "" {
				proto = "tcp"
			}
			containerPort := nat.Port(fmt.Sprintf("%d/%s", p.ContainerPort, proto))
			exposedPorts[containerPort] = struct{}{}

			hostPort := ""
			if p.HostPort != 0 {
				hostPort = strconv.Itoa(p.HostPort)
			}
			portBindings[containerPort] = append(portBindings[containerPort], nat.PortBinding{
				HostIP:   p.HostIP,
				HostPort: hostPort,
			})
		}

		config.ExposedPorts = exposedPorts
		hostConfig.PortBindings = portBindings
	}

	for _, v := range spec.Volumes {
		mountType := mount.TypeVolume
		if strings.HasPrefix(v.Source, "/") {
			mountType = mount.TypeBind
		}
		hostConfig.Mounts = append(hostConfig.Mounts, mount.Mount{
			Type:     mountType,
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	var networkConfig *network.NetworkingConfig
	if spec.Network != "" {
		networkConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				spec.Network: {Aliases: spec.NetworkAliases},
			},
		}
	}

	return config, hostConfig, networkConfig
}

// hostPorts flattens an inspect port map into container port to host port.
// When a port is bound on several host interfaces the first binding with a
// parseable host port wins.
func hostPorts(ports nat.PortMap) map[int]int {
	result := make(map[int]int, len(ports))
	for port, bindings := range ports {
		containerPort := port.Int()
		if containerPort == 0 {
			continue
		}
		for _, b := range bindings {
			hostPort, err := strconv.Atoi(b.HostPort)
			if err != nil || hostPort == 0 {
				continue
			}
			if _, seen := result[containerPort]; !seen {
				result[containerPort] = hostPort
			}
		}
	}
	return result
}
