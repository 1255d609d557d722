// Package redirect turns an inbound deep-link URI into a session outcome.
//
// [New] picks one strategy when it is called: a direct strategy that delegates to
// the backend when the backend implements backend.SessionURLResolver, or a
// fragment strategy that reads access_token and refresh_token from the URI
// fragment and establishes the session with backend.Client.SetSession.
//
// [Deduper] wraps any [Resolver] so that a URI delivered more than once by the OS
// is resolved at most once.
//
// # What this package must NOT do
//
//   - Mutate controller state. Resolvers return a result; the caller applies it.
//   - Log a missing session as an error. Most inbound URIs are not auth callbacks.
package redirect
