package docker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/docker/docker/client"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Container errors
	ErrContainerNotFound      = errors.New("container not found")
	ErrContainerAlreadyExists = errors.New("container already exists")
	ErrContainerNotRunning    = errors.New("container is not running")

	// Network errors
	ErrNetworkNotFound      = errors.New("network not found")
	ErrNetworkAlreadyExists = errors.New("network already exists")
	ErrNetworkInUse         = errors.New("network has active endpoints")

	// Volume errors
	ErrVolumeNotFound = errors.New("volume not found")
	ErrVolumeInUse    = errors.New("volume is in use")

	// Image errors
	ErrImageNotFound   = errors.New("image not found")
	ErrImagePullFailed = errors.New("image pull failed")

	// Connection errors
	ErrPortAlreadyAllocated = errors.New("port is already allocated")
	ErrConnectionFailed     = errors.New("docker connection failed")
)

// DockerError wraps errors with additional context.
type DockerError struct {
	Op      string // Operation that failed
	Entity  string // Entity type (container, network, volume, image)
	ID      string // Entity name if applicable
	Message string
	Err     error
}

func (e *DockerError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Op, e.Entity, e.ID, e.Message)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *DockerError) Unwrap() error {
	return e.Err
}

// NewDockerError creates a new DockerError.
func NewDockerError(op, entity, id, message string, err error) *DockerError {
	return &DockerError{
		Op:      op,
		Entity:  entity,
		ID:      id,
		Message: message,
		Err:     err,
	}
}

// =============================================================================
// Engine Error Classification
// =============================================================================

// Entity names used in DockerError.Entity.
const (
	entityContainer = "container"
	entityNetwork   = "network"
	entityVolume    = "volume"
	entityImage     = "image"
)

var (
	notFound = map[string]error{
		entityContainer: ErrContainerNotFound,
		entityNetwork:   ErrNetworkNotFound,
		entityVolume:    ErrVolumeNotFound,
		entityImage:     ErrImageNotFound,
	}
	alreadyExists = map[string]error{
		entityContainer: ErrContainerAlreadyExists,
		entityNetwork:   ErrNetworkAlreadyExists,
	}
)

// classify maps an Engine API error onto the package sentinels. Errors that
// match nothing keep the underlying error as cause.
func classify(op, entity, id string, err error) *DockerError {
	msg := err.Error()
	switch {
	case client.IsErrNotFound(err) && notFound[entity] != nil:
		return NewDockerError(op, entity, id, entity+" not found", notFound[entity])
	case strings.Contains(msg, "port is already allocated"):
		return NewDockerError(op, entity, id, msg, ErrPortAlreadyAllocated)
	case strings.Contains(msg, "is not running"):
		return NewDockerError(op, entity, id, "container is not running", ErrContainerNotRunning)
	case (strings.Contains(msg, "Conflict") || strings.Contains(msg, "already exists")) && alreadyExists[entity] != nil:
		return NewDockerError(op, entity, id, entity+" already exists", alreadyExists[entity])
	case strings.Contains(msg, "has active endpoints"):
		return NewDockerError(op, entity, id, "network has active endpoints", ErrNetworkInUse)
	case entity == entityVolume && strings.Contains(msg, "in use"):
		return NewDockerError(op, entity, id, "volume is in use", ErrVolumeInUse)
	case client.IsErrConnectionFailed(err):
		return NewDockerError(op, entity, id, msg, ErrConnectionFailed)
	default:
		return NewDockerError(op, entity, id, msg, err)
	}
}
