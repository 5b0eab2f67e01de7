// Package password implements adaptive password hashing and a bounded worker pool
// that keeps hashing off the request-serving goroutines.
//
// # Algorithms
//
//   - [Bcrypt]: default, fixed cost factor.
//   - [Argon2]: Argon2id with PHC string output:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Both implement [Upgrader], so callers can replace digests made with weaker
// parameters after a successful verification.
//
// # Pool
//
// [Pool] runs a fixed number of workers, each executing one hash or verify job at a time.
// Callers submit a job and wait for their own result. A panic inside one job fails that
// job only; the worker survives and keeps serving.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password format rules are enforced
// by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive digests.
//   - Import any other authcore package.
//   - Log plaintext passwords.
package password
