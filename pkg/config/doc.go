// Package config loads service configuration.
//
// Configuration is layered: built-in defaults, then an optional YAML file
// (ROSTER_CONFIG_FILE), then ROSTER_* environment variables. Environment
// always wins, so container deployments can override a mounted file without
// editing it.
//
// The YAML file can also be watched (see Watch) to pick up log-level changes
// without a restart.
package config
