// Package telemetry wires logging, Prometheus metrics and OpenTelemetry
// tracing to a build.Runner.
//
// Metrics and Tracer are event listeners: Attach subscribes them to every
// runner event and they derive their measurements from event timestamps.
package telemetry
