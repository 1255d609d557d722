// Package session provides the authenticated-session model and the
// process-wide [Store] that holds the controller's single view of "who is
// logged in right now".
//
// # Single mutation funnel
//
// [Store.Apply] is the only way state changes. It merges a partial [Update]
// atomically, bumps [State.Version], and then notifies listeners synchronously
// in subscription order. Readers obtain deep copies through [Store.Get] and
// therefore never observe a torn intermediate state.
//
// # Invariants enforced here
//
//   - A stored session is always complete (user ID and access token present);
//     an incomplete session in an update is rejected and logged.
//   - Initializing starts true and, once false, never returns to true.
//   - A panicking listener does not stop later listeners and does not corrupt
//     state.
//
// # What this package must NOT do
//
//   - Talk to the identity backend or perform any I/O besides logging.
//   - Hold references to caller-owned Session values.
package session
