package template

import (
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds each readiness wait when a template sets none.
const DefaultTimeout = 60 * time.Second

// =============================================================================
// Binds
// =============================================================================

// BindScope decides whether a bind source is shared across runs or
// namespaced to a single run.
type BindScope string

const (
	ScopePrivate BindScope = "private"
	ScopeShared  BindScope = "shared"
)

// Bind maps a source (named volume or absolute host path) to a path inside
// the container.
type Bind struct {
	From  string
	To    string
	Scope BindScope
}

// IsVolume reports whether the source names a volume rather than a host path.
func (b Bind) IsVolume() bool {
	return !strings.HasPrefix(b.From, "/")
}

// String renders the bind as "from:to".
func (b Bind) String() string {
	return b.From + ":" + b.To
}

// WithFrom returns a copy of the bind with a different source.
func (b Bind) WithFrom(from string) Bind {
	b.From = from
	return b
}

// =============================================================================
// Service Template
// =============================================================================

// ServiceTemplate is an environment-independent declaration of one service.
// It is immutable; accessors return copies.
type ServiceTemplate struct {
	alias       string
	image       string
	command     []string
	exposedPort int
	debugPort   int
	env         map[string]string
	binds       []Bind
	sharedBinds []Bind
	waitForLog  string
	waitForURL  string
	timeout     time.Duration
	displayLogs bool
	dependsOn   []string
}

func (t ServiceTemplate) Alias() string { return t.alias }
func (t ServiceTemplate) Image() string { return t.image }

// Command returns the override command, nil when the image default is used.
func (t ServiceTemplate) Command() []string { return slices.Clone(t.command) }

// ExposedPort returns the container port to publish, 0 when none.
func (t ServiceTemplate) ExposedPort() int { return t.exposedPort }

// DebugPort returns the container debug port to publish, 0 when none.
func (t ServiceTemplate) DebugPort() int { return t.debugPort }

func (t ServiceTemplate) Env() map[string]string { return maps.Clone(t.env) }

// Binds returns the private binds.
func (t ServiceTemplate) Binds() []Bind { return slices.Clone(t.binds) }

// SharedBinds returns binds whose source is not namespaced by run.
func (t ServiceTemplate) SharedBinds() []Bind { return slices.Clone(t.sharedBinds) }

func (t ServiceTemplate) WaitForLog() string { return t.waitForLog }
func (t ServiceTemplate) WaitForURL() string { return t.waitForURL }
func (t ServiceTemplate) Timeout() time.Duration { return t.timeout }
func (t ServiceTemplate) DisplayLogs() bool { return t.displayLogs }
func (t ServiceTemplate) DependsOn() []string { return slices.Clone(t.dependsOn) }
func (t ServiceTemplate) HasReadinessCheck() bool { return t.waitForLog != "" || t.waitForURL != "" }

// =============================================================================
// Builder
// =============================================================================

// Builder accumulates template fields. Validation is deferred to Build.
type Builder struct {
	t ServiceTemplate
}

// NewBuilder returns a builder with the default readiness timeout.
func NewBuilder() *Builder {
	return &Builder{t: ServiceTemplate{
		env:     make(map[string]string),
		timeout: DefaultTimeout,
	}}
}

func (b *Builder) WithAlias(alias string) *Builder {
	b.t.alias = alias
	return b
}

func (b *Builder) WithImage(image string) *Builder {
	b.t.image = image
	return b
}

func (b *Builder) WithCommand(args ...string) *Builder {
	b.t.command = slices.Clone(args)
	return b
}

func (b *Builder) WithExposedPort(port int) *Builder {
	b.t.exposedPort = port
	return b
}

func (b *Builder) WithDebugPort(port int) *Builder {
	b.t.debugPort = port
	return b
}

// WithEnv sets one environment variable. Later calls override earlier ones.
func (b *Builder) WithEnv(key, value string) *Builder {
	b.t.env[key] = value
	return b
}

func (b *Builder) WithEnvs(env map[string]string) *Builder {
	maps.Copy(b.t.env, env)
	return b
}

// AddBind adds a private bind; its source is suffixed with the run id.
func (b *Builder) AddBind(from, to string) *Builder {
	b.t.binds = append(b.t.binds, Bind{From: from, To: to, Scope: ScopePrivate})
	return b
}

// AddSharedBind adds a bind whose source is used as-is by every run.
func (b *Builder) AddSharedBind(from, to string) *Builder {
	b.t.sharedBinds = append(b.t.sharedBinds, Bind{From: from, To: to, Scope: ScopeShared})
	return b
}

// WaitForLog blocks start until the container output contains text.
func (b *Builder) WaitForLog(text string) *Builder {
	b.t.waitForLog = text
	return b
}

// WaitForURL blocks start until GET on path answers 2xx. Requires an
// exposed port.
func (b *Builder) WaitForURL(path string) *Builder {
	b.t.waitForURL = path
	return b
}

func (b *Builder) WithTimeout(d time.Duration) *Builder {
	b.t.timeout = d
	return b
}

func (b *Builder) DisplayLogs(display bool) *Builder {
	b.t.displayLogs = display
	return b
}

// DependsOn records aliases that must be created and started first.
func (b *Builder) DependsOn(aliases ...string) *Builder {
	b.t.dependsOn = append(b.t.dependsOn, aliases...)
	return b
}

// Build validates the accumulated fields and returns an immutable template.
func (b *Builder) Build() (ServiceTemplate, error) {
	t := b.t
	if err := validate(t); err != nil {
		return ServiceTemplate{}, err
	}

	if t.waitForURL != "" && !strings.HasPrefix(t.waitForURL, "/") {
		t.waitForURL = "/" + t.waitForURL
	}

	// Detach from the builder so further builder calls cannot mutate the result.
	t.command = slices.Clone(t.command)
	t.env = maps.Clone(t.env)
	t.binds = slices.Clone(t.binds)
	t.sharedBinds = slices.Clone(t.sharedBinds)
	t.dependsOn = slices.Clone(t.dependsOn)
	return t, nil
}

// MustBuild is Build for statically known templates; it panics on error.
func (b *Builder) MustBuild() ServiceTemplate {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}

func validate(t ServiceTemplate) error {
	if t.alias == "" {
		return newError("", "alias", ErrAliasRequired)
	}
	if t.image == "" {
		return newError(t.alias, "image", ErrImageRequired)
	}
	if t.exposedPort != 0 && !validPort(t.exposedPort) {
		return newError(t.alias, "exposed_port", ErrInvalidPort)
	}
	if t.debugPort != 0 && !validPort(t.debugPort) {
		return newError(t.alias, "debug_port", ErrInvalidPort)
	}
	if t.waitForURL != "" && t.exposedPort == 0 {
		return newError(t.alias, "wait_for_url", ErrURLWaitWithoutPort)
	}
	if t.timeout <= 0 {
		return newError(t.alias, "timeout", ErrInvalidTimeout)
	}
	for key := range t.env {
		if key == "" || strings.Contains(key, "=") {
			return newError(t.alias, "env", ErrInvalidEnv)
		}
	}
	for i, bind := range t.binds {
		if bind.From == "" || bind.To == "" {
			return newError(t.alias, "binds["+strconv.Itoa(i)+"]", ErrInvalidBind)
		}
	}
	for i, bind := range t.sharedBinds {
		if bind.From == "" || bind.To == "" {
			return newError(t.alias, "shared_binds["+strconv.Itoa(i)+"]", ErrInvalidBind)
		}
	}
	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}
