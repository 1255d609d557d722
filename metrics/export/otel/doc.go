// Package otel provides OpenTelemetry metric exporter bindings for an authctl
// controller.
//
// [NewOTelExporter] registers observable instruments and a single callback that,
// on each collection cycle, reads [authctl.Controller.State] for the state gauges
// (authenticated, initializing, pending, state version, session expiry and a
// kind-attributed last error), [authctl.Controller.MetricsSnapshot] for operation
// counters and the latency histogram, and [authctl.Controller.AuditStats] for
// audit delivery with drops attributed by event_type.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider; callers supply the Meter.
//   - Mutate controller state.
package otel
