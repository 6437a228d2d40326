// Package environment drives one ephemeral run: it creates a network, the
// volumes and the services of a run, waits for them to become ready, and
// tears everything down again.
//
// Services follow the lifecycle table of internal/core/topology. Initialize
// creates every service before starting any of them and stops at the first
// failure. TearDown walks the services in reverse, attempts every step, and
// returns the failures in a TeardownReport instead of stopping early.
//
// # Usage
//
//	f := environment.NewFactory(dockerClient, environment.WithTemplates(db, api))
//	env, err := f.MakeEnvironment("OrderTest-checkout")
//	env.TryCleanupFromPreviousRun(ctx)
//	if err := env.Initialize(ctx); err != nil { ... }
//	defer env.TearDown(ctx)
//	port, err := env.HostPort("api")
package environment
