// Package gotrue is a backend.Client for GoTrue-compatible identity services.
//
// Two flow types are provided. New returns the implicit-flow Client: OAuth
// redirects carry tokens in the URL fragment and the controller establishes the
// session from that token pair. NewPKCE returns a PKCEClient, which exchanges an
// authorization code for a session and therefore resolves redirect URLs itself.
//
// Sessions are persisted to a storage.Storage as JSON and refreshed when they
// come within the refresh margin of expiry. All outbound requests pass through
// a token-bucket limiter.
//
// # Architecture boundaries
//
//   - The service decides every auth outcome. Declared failures surface as
//     *backend.Error with the service's status, code and message.
//   - Auth events are published after the persisted session has been updated.
//
// # What this package must NOT do
//
//   - Validate passwords or email addresses locally.
//   - Keep a session in memory that is not also in storage.
package gotrue
