// Package jwt reads identity claims out of backend access tokens.
//
// An Inspector verifies tokens when it holds a key (HS256 shared secret or
// Ed25519 public keys) and otherwise only decodes them. Unverified decoding is
// what a client without the backend's signing secret can do; the backend still
// validates every token it receives.
//
// # What this package must NOT do
//
//   - Treat decoded-but-unverified claims as proof of identity.
//   - Issue tokens without an explicitly configured signing key.
package jwt
