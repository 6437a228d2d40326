package environment

import "errors"

// =============================================================================
// Error Types
// =============================================================================

var (
	// Usage errors
	ErrAlreadyInitialized = errors.New("environment already initialized")
	ErrNotInitialized     = errors.New("environment not initialized")
	ErrDuplicateAlias     = errors.New("duplicate service alias")
	ErrUnknownAlias       = errors.New("unknown service alias")
	ErrEmptyRunID         = errors.New("run id is required")

	// Configuration errors
	ErrNoAssignedPort = errors.New("no host port assigned")

	// Readiness errors
	ErrReadinessTimeout = errors.New("service did not become ready in time")

	// Network errors
	ErrNetworkInUse = errors.New("network still has attached services")
)
