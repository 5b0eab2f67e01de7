// Package authcore issues, verifies and revokes session-bound credentials.
//
// An [Engine] is built once per process through [Builder.Build] and owns the
// long-lived collaborators: the password hashing pool, the ES256 signing keys,
// the session registry, the one-time code issuer and the SSO verifiers. Engine
// methods are safe for concurrent use.
//
// Each incoming request gets its own [AuthContext] from [Engine.NewContext].
// The AuthContext resolves who is calling ([AuthContext.GetUser]) and drives the
// signup, signin, refresh and signout transitions. It collects the cookies the
// transport layer must write back ([AuthContext.Cookies]).
//
// # Architecture boundaries
//
// authcore is storage agnostic. Adapters implement [Storage] and live under
// store/. Transport glue lives in middleware/ and internal/httpapi. Domain
// failures are sentinel errors mapped to wire codes by [Code]. Storage outages
// and worker crashes surface as [ErrInternal] and are logged.
//
// # What this package must NOT do
//
//   - Write anything but the User record and its sessions to storage.
//   - Trust token claims over the stored user record.
//   - Run password hashing on the calling goroutine.
package authcore
