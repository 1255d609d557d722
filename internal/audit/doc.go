// Package audit implements async event dispatching for auth operations.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher]: buffered async relay. It stamps events, redacts credential
//     metadata, counts drops per event type, and survives a panicking sink.
//   - [Event]: structured record of one facade operation or auth transition.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; the controller does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic. Redaction rewrites values
//     only; every accepted event is delivered.
//   - Import authctl or any sibling internal package.
//   - Record credentials or tokens.
package audit
