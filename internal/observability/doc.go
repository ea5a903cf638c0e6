// Package observability provides structured logging, Prometheus metrics,
// and OpenTelemetry tracing for the Cortex knowledge engine.
package observability
