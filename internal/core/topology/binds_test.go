package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockerbay/dockerbay/internal/core/template"
)

// =============================================================================
// ResolveBind Tests
// =============================================================================

func TestResolveBind_SharedUnchanged(t *testing.T) {
	b := template.Bind{From: "/from/shared", To: "/to/shared", Scope: template.ScopeShared}
	assert.Equal(t, b, ResolveBind(b, "123"))
}

func TestResolveBind_PrivateSuffixed(t *testing.T) {
	b := template.Bind{From: "data", To: "/data", Scope: template.ScopePrivate}
	got := ResolveBind(b, "123")

	assert.Equal(t, "data_123", got.From)
	assert.Equal(t, "/data", got.To)
	assert.Equal(t, template.ScopePrivate, got.Scope)
}

// =============================================================================
// ResolveBinds Tests
// =============================================================================

func TestResolveBinds_SharedFirstThenPrivate(t *testing.T) {
	tmpl, err := template.NewBuilder().
		WithAlias("alias").
		WithImage("image").
		AddBind("/from/private", "/to/private").
		AddSharedBind("/from/shared", "/to/shared").
		Build()
	require.NoError(t, err)

	got := ResolveBinds(tmpl, "123")

	var rendered []string
	for _, b := range got {
		rendered = append(rendered, b.String())
	}
	assert.Equal(t, []string{"/from/shared:/to/shared", "/from/private_123:/to/private"}, rendered)
}

func TestResolveBinds_Idempotent(t *testing.T) {
	tmpl := template.NewBuilder().
		WithAlias("a").
		WithImage("i").
		AddBind("data", "/d").
		AddSharedBind("cache", "/c").
		MustBuild()

	assert.Equal(t, ResolveBinds(tmpl, "run"), ResolveBinds(tmpl, "run"))
}

func TestResolveBinds_NoBinds(t *testing.T) {
	tmpl := template.NewBuilder().WithAlias("a").WithImage("i").MustBuild()
	assert.Empty(t, ResolveBinds(tmpl, "run"))
}

// =============================================================================
// VolumeSources Tests
// =============================================================================

func TestVolumeSources_SkipsPathsAndDedupes(t *testing.T) {
	binds := []template.Bind{
		{From: "cache", To: "/c"},
		{From: "/host/path", To: "/p"},
		{From: "data_1", To: "/d"},
		{From: "cache", To: "/other"},
	}
	assert.Equal(t, []string{"cache", "data_1"}, VolumeSources(binds))
}

func TestVolumeSources_SkipsSharedBinds(t *testing.T) {
	binds := []template.Bind{
		{From: "m2cache", To: "/root/.m2", Scope: template.ScopeShared},
		{From: "data_1", To: "/d", Scope: template.ScopePrivate},
	}
	assert.Equal(t, []string{"data_1"}, VolumeSources(binds))
}

func TestVolumeSources_Empty(t *testing.T) {
	assert.Empty(t, VolumeSources(nil))
}
