// Package file provides file and environment backed configuration adapters.
//
// Adapters:
//   - SourceLoader: ordered source definitions from a JSON or YAML file
//   - EnvCredentials: remote store credentials from FTPHOST, FTPUSER, FTPPASS
//   - LoadSettings: layered application settings (defaults, TOML/YAML file,
//     TABLESYNC_* environment, CLI flags)
//   - WatchSources: re-reads the sources file when it changes
package file
