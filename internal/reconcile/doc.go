// Package reconcile keeps a session.Store in step with the identity backend.
//
// A Reconciler performs one bootstrap read of the backend's current session and
// then applies every auth event the backend pushes, for as long as it runs.
//
// # Architecture boundaries
//
//   - The backend stays the source of truth; the reconciler only mirrors it.
//   - Bootstrap and events are applied in arrival order. The later write wins.
//   - The subscription is opened before the bootstrap read so no event emitted
//     during bootstrap is missed.
//
// # What this package must NOT do
//
//   - Retry a failed bootstrap or re-open a closed event stream.
//   - Set operation error state from a bootstrap failure.
//   - Be imported by packages outside the authctl module.
package reconcile
