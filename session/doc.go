// Package session models one authenticated device/network context of a user and the
// rules for keeping a user's session list bounded.
//
// # Fingerprints
//
// A session's identity is its fingerprint hash, a pure function of
// (ip, browser, device model, device type, device vendor, os). Re-authenticating from
// the same device and network yields the same hash and therefore the same session.
//
// # Binary encoding
//
// Sessions are encoded in a compact versioned binary format for key-value backends.
// The encoder is append-only: new versions add fields but never reinterpret old ones.
//
// # What this package must NOT do
//
//   - Perform storage I/O. Callers fetch the authoritative list, mutate it here and
//     write the result back.
//   - Import authcore or token (no upward imports).
package session
