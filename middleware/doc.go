// Package middleware adapts authcore to net/http.
//
// # Chain
//
//   - [Attach] builds one authcore.AuthContext per request, stores it in the
//     request context and writes the cookies it produces before the response
//     header goes out.
//   - [Guard] resolves the caller with given GetUserOptions and rejects the
//     request when resolution fails. [Require] is the strict variant.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into AuthContext calls. Every
// authentication decision is delegated to the engine.
//
// # What this package must NOT do
//
//   - Parse or create tokens.
//   - Touch storage.
//   - Expose raw internal errors to clients; only wire codes leave the process.
package middleware
