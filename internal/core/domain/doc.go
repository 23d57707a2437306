// Package domain defines the core entities of the table sync pipeline.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - SourceConfig / SourceSet: the ordered set of feeds to synchronise
//   - Table: a fetched header-plus-rows result
//   - Artifact: the local CSV file produced for one source
//   - Credentials: remote store connection secrets
//   - RunReport / SourceResult: per-run and per-source outcomes
//   - TimeOfDay / ScheduledTask: the daily trigger
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
