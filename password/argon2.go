package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Prefix = "$argon2id$"

// Floors applied to both configured and stored parameters.
const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
)

var b64 = base64.RawStdEncoding

// Config holds Argon2id cost parameters.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Config returns the parameters used when Argon2id is selected without
// explicit tuning.
func DefaultArgon2Config() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("%w: memory %d KiB below %d", ErrWeakConfig, c.Memory, minMemoryKB)
	case c.Time < minTimeCost:
		return fmt.Errorf("%w: time cost must be >= %d", ErrWeakConfig, minTimeCost)
	case c.Parallelism < minParallelism:
		return fmt.Errorf("%w: parallelism must be >= %d", ErrWeakConfig, minParallelism)
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("%w: salt length must be >= %d", ErrWeakConfig, minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("%w: key length must be >= %d", ErrWeakConfig, minKeyLength)
	}
	return nil
}

// argon2Digest is a decoded $argon2id$ PHC string.
type argon2Digest struct {
	params Config
	salt   []byte
	key    []byte
}

func (d argon2Digest) String() string {
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s", argon2Prefix, argon2.Version,
		d.params.Memory, d.params.Time, d.params.Parallelism,
		b64.EncodeToString(d.salt), b64.EncodeToString(d.key))
}

// parseArgon2 decodes s. Stored parameters must meet the same floors as a
// configured hasher so a crafted digest cannot force a near-free verification.
func parseArgon2(s string) (argon2Digest, error) {
	rest, ok := strings.CutPrefix(s, argon2Prefix)
	if !ok {
		return argon2Digest{}, fmt.Errorf("%w: not argon2id", ErrMalformedHash)
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return argon2Digest{}, fmt.Errorf("%w: want 4 sections, got %d", ErrMalformedHash, len(fields))
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil || version != argon2.Version {
		return argon2Digest{}, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, fields[0])
	}

	var d argon2Digest
	if _, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &d.params.Memory, &d.params.Time, &d.params.Parallelism); err != nil {
		return argon2Digest{}, fmt.Errorf("%w: parameters %q", ErrMalformedHash, fields[1])
	}

	var err error
	if d.salt, err = decodeB64(fields[2]); err != nil {
		return argon2Digest{}, fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	if d.key, err = decodeB64(fields[3]); err != nil {
		return argon2Digest{}, fmt.Errorf("%w: key: %v", ErrMalformedHash, err)
	}
	d.params.SaltLength = uint32(len(d.salt))
	d.params.KeyLength = uint32(len(d.key))

	if err := d.params.validate(); err != nil {
		return argon2Digest{}, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	return d, nil
}

// decodeB64 accepts both padded and unpadded standard base64.
func decodeB64(s string) ([]byte, error) {
	return b64.DecodeString(strings.TrimRight(s, "="))
}

// Argon2 hashes passwords with Argon2id and emits PHC strings.
type Argon2 struct {
	config Config
}

// NewArgon2 returns an Argon2id hasher. Parameters below the package floors
// yield ErrWeakConfig.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

// Hash returns a PHC-encoded digest of the raw password bytes.
func (a *Argon2) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyInput
	}

	d := argon2Digest{params: a.config, salt: make([]byte, a.config.SaltLength)}
	if _, err := rand.Read(d.salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	d.key = d.derive(password)
	return d.String(), nil
}

// Verify recomputes the key with the parameters stored in encodedHash.
func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	if password == "" || encodedHash == "" {
		return false, ErrEmptyInput
	}
	d, err := parseArgon2(encodedHash)
	if err != nil {
		return false, nil
	}
	return subtle.ConstantTimeCompare(d.derive(password), d.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash is weaker than the current
// configuration or uses a different key length.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	d, err := parseArgon2(encodedHash)
	if err != nil {
		return false, err
	}
	p := d.params
	return p.Memory < a.config.Memory ||
		p.Time < a.config.Time ||
		p.Parallelism < a.config.Parallelism ||
		p.KeyLength != a.config.KeyLength, nil
}

func (d argon2Digest) derive(password string) []byte {
	return argon2.IDKey([]byte(password), d.salt, d.params.Time, d.params.Memory, d.params.Parallelism, d.params.KeyLength)
}
