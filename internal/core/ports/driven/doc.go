// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the pipeline to run:
//
//   - SourceLoader: Loads the ordered source set, once per run
//   - CredentialsProvider: Supplies remote store credentials
//   - Fetcher: Retrieves a table from a remote provider
//   - ArtifactStore: Writes and removes local artifacts
//   - SessionFactory: Opens one TransferSession per run
//
// # Optional Interfaces
//
// These can be nil - the pipeline degrades gracefully:
//
//   - RunStore: Run history persistence
//   - ProgressReporter: User-visible progress output
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
