// Package storage defines the key/value persistence used by backend clients to
// keep sessions and PKCE verifiers across process restarts.
//
// Implementations: Memory (process local), redisstore (shared, TTL aware),
// sqlitestore (single file). Sealed wraps any of them with authenticated
// encryption so tokens are never stored in plaintext.
//
// # What this package must NOT do
//
//   - Interpret stored values. Encoding belongs to the caller.
//   - Return partial values on error.
package storage
