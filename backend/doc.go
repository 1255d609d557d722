// Package backend declares the identity-backend contract the controller
// consumes, plus the event fan-out used by backend implementations.
//
// # Architecture boundaries
//
// [Client] is the full required surface; [SessionURLResolver] is an optional
// capability that a client may also implement. Capability detection happens once,
// where a resolver strategy is built, never per call.
//
// [Error] is the declared-error type. It implements the result.Declared and
// result.Coded interfaces so that any caller can normalize it without importing
// a concrete backend.
//
// # What this package must NOT do
//
//   - Hold controller state or import the root authctl package.
//   - Perform network I/O (concrete clients live in sub-packages such as gotrue).
package backend
