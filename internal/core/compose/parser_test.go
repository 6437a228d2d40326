package compose

import (
	"errors"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockerbay/dockerbay/internal/core/template"
)

// =============================================================================
// Test Fixtures
// =============================================================================

const minimalValidSpec = `
services:
  app:
    image: nginx:latest
`

const stackSpec = `
services:
  web:
    image: nginx:latest
    ports:
      - "80"
    depends_on:
      - api
    x-dockerbay:
      wait_for_url: /
      display_logs: true

  api:
    image: example/api:1.0
    command: ["serve", "--verbose"]
    environment:
      DB_HOST: db
    depends_on:
      - db
    x-dockerbay:
      exposed_port: 8080
      debug_port: 5005
      wait_for_log: "listening"
      timeout: 90s

  db:
    image: postgres:16
    environment:
      POSTGRES_PASSWORD: secret
    volumes:
      - pgdata:/var/lib/postgresql/data
      - m2:/root/.m2
      - /etc/ssl/certs:/certs:ro
    x-dockerbay:
      wait_for_log: ready to accept connections
      timeout: 30

volumes:
  pgdata:
  m2:
    external: true
`

func byAlias(t *testing.T, templates []template.ServiceTemplate, alias string) template.ServiceTemplate {
	t.Helper()
	for _, tm := range templates {
		if tm.Alias() == alias {
			return tm
		}
	}
	t.Fatalf("no template %q", alias)
	return template.ServiceTemplate{}
}

// =============================================================================
// Input Validation Tests
// =============================================================================

func TestParseTemplates_EmptyInput(t *testing.T) {
	_, err := ParseTemplates("  \n\t", Options{})
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestParseTemplates_InvalidYAML(t *testing.T) {
	_, err := ParseTemplates("services: [unclosed", Options{})
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestParseTemplates_YAMLNotObject(t *testing.T) {
	_, err := ParseTemplates("just a string", Options{})
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestParseTemplates_EmptyServices(t *testing.T) {
	_, err := ParseTemplates("services: {}\n", Options{})
	assert.ErrorIs(t, err, ErrNoServices)
}

// =============================================================================
// Conversion Tests
// =============================================================================

func TestParseTemplates_Minimal(t *testing.T) {
	templates, err := ParseTemplates(minimalValidSpec, Options{})
	require.NoError(t, err)
	require.Len(t, templates, 1)

	app := templates[0]
	assert.Equal(t, "app", app.Alias())
	assert.Equal(t, "nginx:latest", app.Image())
	assert.Equal(t, template.DefaultTimeout, app.Timeout())
	assert.Zero(t, app.ExposedPort())
}

func TestParseTemplates_DeclarationOrder(t *testing.T) {
	templates, err := ParseTemplates(stackSpec, Options{})
	require.NoError(t, err)

	var aliases []string
	for _, tm := range templates {
		aliases = append(aliases, tm.Alias())
	}
	assert.Equal(t, []string{"web", "api", "db"}, aliases)
}

func TestParseTemplates_PortsAndExtension(t *testing.T) {
	templates, err := ParseTemplates(stackSpec, Options{})
	require.NoError(t, err)

	web := byAlias(t, templates, "web")
	assert.Equal(t, 80, web.ExposedPort())
	assert.Equal(t, "/", web.WaitForURL())
	assert.True(t, web.DisplayLogs())
	assert.Equal(t, []string{"api"}, web.DependsOn())

	api := byAlias(t, templates, "api")
	assert.Equal(t, 8080, api.ExposedPort())
	assert.Equal(t, 5005, api.DebugPort())
	assert.Equal(t, "listening", api.WaitForLog())
	assert.Equal(t, 90*time.Second, api.Timeout())
	assert.Equal(t, []string{"serve", "--verbose"}, api.Command())
	assert.Equal(t, map[string]string{"DB_HOST": "db"}, api.Env())
}

func TestParseTemplates_Volumes(t *testing.T) {
	templates, err := ParseTemplates(stackSpec, Options{})
	require.NoError(t, err)

	db := byAlias(t, templates, "db")
	assert.Equal(t, 30*time.Second, db.Timeout())
	assert.Equal(t, []template.Bind{
		{From: "pgdata", To: "/var/lib/postgresql/data", Scope: template.ScopePrivate},
	}, db.Binds())
	assert.Equal(t, []template.Bind{
		{From: "m2", To: "/root/.m2", Scope: template.ScopeShared},
		{From: "/etc/ssl/certs", To: "/certs", Scope: template.ScopeShared},
	}, db.SharedBinds())
}

func TestParseTemplates_RelativeBind(t *testing.T) {
	spec := `
services:
  app:
    image: app
    volumes:
      - ./fixtures:/fixtures
`
	templates, err := ParseTemplates(spec, Options{WorkingDir: "/work/project"})
	require.NoError(t, err)
	assert.Equal(t, "/work/project/fixtures", templates[0].SharedBinds()[0].From)

	_, err = ParseTemplates(spec, Options{})
	assert.ErrorIs(t, err, ErrRelativeBind)
}

func TestParseTemplates_HomeBind(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("home directory comes from USERPROFILE")
	}
	home := t.TempDir()
	t.Setenv("HOME", home)

	spec := `
services:
  app:
    image: app
    volumes:
      - ~/data:/data
`
	templates, err := ParseTemplates(spec, Options{WorkingDir: "/work/project"})
	require.NoError(t, err)

	var sources []string
	for _, b := range templates[0].SharedBinds() {
		sources = append(sources, b.From)
	}
	assert.Equal(t, []string{filepath.Join(home, "data")}, sources)
}

func TestExpandHome(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("home directory comes from USERPROFILE")
	}
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		source  string
		want    string
		wantErr bool
	}{
		{"~", home, false},
		{"~/cache/m2", filepath.Join(home, "cache/m2"), false},
		{"/abs/path", "/abs/path", false},
		{"./rel", "./rel", false},
		{"~bob", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			got, err := expandHome(tt.source)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrRelativeBind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTemplates_OtherUsersHomeBind(t *testing.T) {
	spec := `
services:
  app:
    image: app
    volumes:
      - type: bind
        source: ~alice/data
        target: /data
`
	_, err := ParseTemplates(spec, Options{WorkingDir: "/work/project"})
	assert.ErrorIs(t, err, ErrRelativeBind)
}

func TestParseTemplates_Interpolation(t *testing.T) {
	spec := `
services:
  db:
    image: postgres:${PG_VERSION}
`
	templates, err := ParseTemplates(spec, Options{Environment: map[string]string{"PG_VERSION": "16"}})
	require.NoError(t, err)
	assert.Equal(t, "postgres:16", templates[0].Image())
}

// =============================================================================
// Rejection Tests
// =============================================================================

func TestParseTemplates_BuildUnsupported(t *testing.T) {
	spec := `
services:
  app:
    build: .
`
	_, err := ParseTemplates(spec, Options{WorkingDir: "/tmp"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedFeature) || errors.Is(err, ErrServiceNoImage))
}

func TestParseTemplates_UnknownExtensionKey(t *testing.T) {
	spec := `
services:
  app:
    image: app
    x-dockerbay:
      wait_for_logs: typo
`
	_, err := ParseTemplates(spec, Options{})
	assert.ErrorIs(t, err, ErrInvalidExtension)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "services.app.x-dockerbay", perr.Field)
}

func TestParseTemplates_BadTimeout(t *testing.T) {
	spec := `
services:
  app:
    image: app
    x-dockerbay:
      timeout: soon
`
	_, err := ParseTemplates(spec, Options{})
	assert.ErrorIs(t, err, ErrInvalidExtension)
}

func TestParseTemplates_URLWaitWithoutPort(t *testing.T) {
	spec := `
services:
  app:
    image: app
    x-dockerbay:
      wait_for_url: /health
`
	_, err := ParseTemplates(spec, Options{})
	assert.ErrorIs(t, err, template.ErrInvalidTemplate)
	assert.ErrorIs(t, err, template.ErrURLWaitWithoutPort)
}

func TestParseError_Error(t *testing.T) {
	err := NewParseError("services.app", "boom", ErrInvalidYAML)
	assert.Equal(t, "services.app: boom", err.Error())
	assert.ErrorIs(t, err, ErrInvalidYAML)

	err = NewParseError("", "boom", ErrInvalidYAML)
	assert.Equal(t, "boom", err.Error())
}
