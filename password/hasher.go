package password

import "errors"

var (
	// ErrEmptyInput is returned when a password or digest is missing. It signals a caller
	// bug rather than a credential mismatch.
	ErrEmptyInput = errors.New("password: empty input")
	// ErrWorkerPanic is returned to the caller whose job crashed a worker.
	ErrWorkerPanic = errors.New("password: worker panic")
	// ErrPoolClosed is returned when a job is submitted to a stopped pool.
	ErrPoolClosed = errors.New("password: pool closed")
	// ErrWeakConfig is returned by constructors given parameters below the floors.
	ErrWeakConfig = errors.New("password: parameters too weak")
	// ErrMalformedHash is returned by NeedsUpgrade for a digest it cannot decode.
	ErrMalformedHash = errors.New("password: malformed digest")
)

// Hasher hashes and verifies passwords. Verify reports false for a wrong password or a
// malformed digest; it only returns an error for missing inputs.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// Upgrader is implemented by hashers that can tell whether a stored digest was
// produced with weaker parameters than they currently use.
type Upgrader interface {
	NeedsUpgrade(encodedHash string) (bool, error)
}
