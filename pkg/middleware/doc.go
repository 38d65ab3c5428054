// Package middleware provides the observability layer: Prometheus
// metrics recorded by the transport and server through package-level
// Record helpers, and an OpenTelemetry tracing wrapper for request
// handlers. Both follow a functional-options configuration style and
// resolve their backends (registry, tracer provider) from the usual
// globals unless told otherwise.
package middleware
