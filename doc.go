// Package authctl provides an authentication session controller for client
// applications: password and OAuth sign-in against a remote identity backend,
// with a single local view of the current session kept consistent with the
// backend's asynchronous auth-event stream.
//
// A [Controller] is created through [Builder.Build] and is safe to use from
// multiple goroutines. Every operation returns a [result.Result]; failures are
// values with a stable [result.Kind] and never escape as panics.
//
// # Architecture boundaries
//
// authctl is the public surface. It exposes [Controller], [Builder], [Config], and
// value types (State, SignUpResult, MetricsSnapshot, AuditEvent). Event
// reconciliation, audit dispatch, and metric storage live under internal/ and are
// never exported. The backend contract lives in package backend; concrete
// backends (backend/gotrue, backend/backendtest) are wired by the caller.
//
// # What this package must NOT do
//
//   - Mutate controller state anywhere except through the session store's Apply.
//   - Log or audit passwords or tokens.
//   - Import a concrete backend or storage driver.
package authctl
