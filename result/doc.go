// Package result defines the uniform success/failure envelope returned by every
// authctl operation.
//
// A [Result] carries either a value or a [*Failure]; a [Failure] carries a stable
// [Kind] plus a caller-presentable message and, for declared backend errors, the
// backend status code.
//
// # Architecture boundaries
//
// This package is a leaf: it knows nothing about sessions, backends, or the
// controller. Backend packages participate in normalization only by implementing
// the [Declared] interface on their error types.
//
// # What this package must NOT do
//
//   - Import any other authctl package.
//   - Panic on any input, including nil errors.
package result
