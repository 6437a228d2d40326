// Package topology provides pure functions for laying out one run of an
// ephemeral environment.
//
// Everything here is deterministic and free of I/O. The imperative shell
// (internal/shell/environment) asks this package what to name things, how
// binds resolve for a run, in which order services start, and what a
// lifecycle operation means in the current state, then performs the
// runtime calls itself.
//
// # Functions
//
//   - Naming: run-scoped resource names (NetworkName, ServiceName, PrivateSourceName)
//   - Binds: run-specific bind resolution (ResolveBind, ResolveBinds, VolumeSources)
//   - Lifecycle: the service state machine (Plan, State, Op, Transition)
//   - Ordering: dependency-respecting startup order (TopologicalSort)
//
// # Usage
//
//	network := topology.NetworkName(runID)
//	binds := topology.ResolveBinds(tmpl, runID)
//	tr := topology.Plan(topology.Running, topology.OpStop)
package topology
