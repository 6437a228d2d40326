package template

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrInvalidTemplate is wrapped by every template validation failure.
	ErrInvalidTemplate = errors.New("invalid service template")

	// Required fields
	ErrAliasRequired = errors.New("alias is required")
	ErrImageRequired = errors.New("image is required")

	// Ports and readiness
	ErrInvalidPort        = errors.New("port must be in range 1-65535")
	ErrURLWaitWithoutPort = errors.New("cannot wait for URL without exposing a port")
	ErrInvalidTimeout     = errors.New("readiness timeout must be positive")

	// Env and binds
	ErrInvalidEnv  = errors.New("invalid environment variable")
	ErrInvalidBind = errors.New("bind requires both source and target")
)

// Error describes why a template was rejected.
type Error struct {
	Alias string // Alias of the offending template, may be empty
	Field string // e.g. "exposed_port", "binds[1]"
	Err   error
}

func (e *Error) Error() string {
	if e.Alias != "" {
		return fmt.Sprintf("service template %q: %s: %v", e.Alias, e.Field, e.Err)
	}
	return fmt.Sprintf("service template: %s: %v", e.Field, e.Err)
}

// Unwrap exposes both the specific cause and ErrInvalidTemplate, so callers
// can match either with errors.Is.
func (e *Error) Unwrap() []error {
	return []error{ErrInvalidTemplate, e.Err}
}

func newError(alias, field string, err error) *Error {
	return &Error{Alias: alias, Field: field, Err: err}
}
