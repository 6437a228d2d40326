package topology

import (
	"github.com/dockerbay/dockerbay/internal/core/template"
)

// =============================================================================
// Bind Resolution
// =============================================================================

// ResolveBind returns the bind as it applies to one run. Shared binds are
// returned unchanged; private binds get their source suffixed with the run id.
func ResolveBind(b template.Bind, runID string) template.Bind {
	if b.Scope == template.ScopeShared {
		return b
	}
	return b.WithFrom(PrivateSourceName(b.From, runID))
}

// ResolveBinds resolves every bind of a template for a run. Shared binds come
// first, followed by private binds, each group in declaration order.
//
// Example:
//
//	// private "/from/private:/to/private", shared "/from/shared:/to/shared"
//	ResolveBinds(tmpl, "123")
//	// returns ["/from/shared:/to/shared", "/from/private_123:/to/private"]
func ResolveBinds(t template.ServiceTemplate, runID string) []template.Bind {
	shared := t.SharedBinds()
	private := t.Binds()

	resolved := make([]template.Bind, 0, len(shared)+len(private))
	for _, b := range shared {
		resolved = append(resolved, ResolveBind(b, runID))
	}
	for _, b := range private {
		resolved = append(resolved, ResolveBind(b, runID))
	}
	return resolved
}

// VolumeSources returns the distinct volume names a run owns among resolved
// binds, in first-seen order. Path-backed binds are skipped, and so are shared
// binds: their volumes outlive every run and are never created or deleted by
// one.
func VolumeSources(binds []template.Bind) []string {
	seen := make(map[string]bool)
	var names []string
	for _, b := range binds {
		if !b.IsVolume() || b.Scope == template.ScopeShared || seen[b.From] {
			continue
		}
		seen[b.From] = true
		names = append(names, b.From)
	}
	return names
}
