// Package token signs and verifies the three credential kinds handed to clients:
// ES256 access tokens, opaque HMAC refresh tokens and HMAC-timestamped CSRF tokens.
//
// Access tokens carry sub = user id and jti = session fingerprint hash. Verification
// always checks the signature and issuer; expiry can be skipped by flows that must
// identify the caller of an expired token (refresh, signout).
//
// # What this package must NOT do
//
//   - Touch storage. Revocation is decided by the Engine against the session list.
//   - Decode refresh tokens. They are compared by equality only.
package token
