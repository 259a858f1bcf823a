// Package observability bundles the service's structured logging,
// Prometheus metrics, dependency health checks, and optional OpenTelemetry
// tracing.
package observability
