// Package template declares the services an ephemeral environment is built
// from.
//
// A ServiceTemplate is independent of any run: it names an image, an alias,
// optional ports, environment, binds and readiness checks. Templates are
// assembled with a Builder and validated once, at Build time. The package is
// part of the functional core and performs no I/O.
//
// # Usage
//
//	db, err := template.NewBuilder().
//		WithAlias("db").
//		WithImage("postgres:16").
//		WithExposedPort(5432).
//		WithEnv("POSTGRES_PASSWORD", "secret").
//		AddBind("pgdata", "/var/lib/postgresql/data").
//		WaitForLog("ready to accept connections").
//		Build()
package template
