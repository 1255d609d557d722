// Package prometheus renders authctl metrics in Prometheus text exposition format.
//
// [NewPrometheusExporter] accepts an [authctl.Controller] and exposes an [http.Handler].
// Each scrape reads three things:
//
//   - state gauges from [authctl.Controller.State]: authctl_authenticated,
//     authctl_initializing, authctl_pending, authctl_state_version,
//     authctl_session_expires_in_seconds and authctl_last_error{kind};
//   - operation counters (authctl_*_total) and authctl_backend_latency_seconds,
//     present only while metrics are enabled;
//   - audit dispatcher counts, with drops labelled by event_type.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the Handler.
//   - Mutate controller state.
package prometheus
