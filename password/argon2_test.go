package password

import (
	"errors"
	"strings"
	"testing"
)

func testArgon2(t *testing.T, mutate ...func(*Config)) *Argon2 {
	t.Helper()
	cfg := Config{Memory: 64 * 1024, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32}
	for _, m := range mutate {
		m(&cfg)
	}
	h, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	return h
}

func TestArgon2HashAndVerify(t *testing.T) {
	h := testArgon2(t)

	digest, err := h.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(digest, "$argon2id$v=19$m=65536,t=3,p=2$") {
		t.Fatalf("unexpected PHC prefix: %s", digest)
	}
	if strings.Contains(digest, "=$") || strings.HasSuffix(digest, "=") {
		t.Fatalf("PHC fields must be unpadded base64: %s", digest)
	}

	cases := []struct {
		name     string
		password string
		want     bool
	}{
		{"correct", "P@ssw0rd-Ascii", true},
		{"wrong", "P@ssw0rd-ascii", false},
		{"prefix", "P@ssw0rd", false},
	}
	for _, tc := range cases {
		ok, err := h.Verify(tc.password, digest)
		if err != nil || ok != tc.want {
			t.Fatalf("%s: ok=%v err=%v, want %v", tc.name, ok, err, tc.want)
		}
	}
}

func TestArgon2VerifiesPaddedDigest(t *testing.T) {
	h := testArgon2(t)
	digest, err := h.Hash("padded-secret1")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	parts := strings.Split(digest, "$")
	for i := 4; i < 6; i++ {
		for len(parts[i])%4 != 0 {
			parts[i] += "="
		}
	}
	if ok, err := h.Verify("padded-secret1", strings.Join(parts, "$")); err != nil || !ok {
		t.Fatalf("padded digest must verify, ok=%v err=%v", ok, err)
	}
}

func TestArgon2RejectsMalformedDigests(t *testing.T) {
	h := testArgon2(t)
	good, err := h.Hash("malformed-test")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	cases := map[string]string{
		"not phc":       "not-a-phc-hash",
		"bcrypt":        "$2a$04$abcdefghijklmnopqrstuu",
		"wrong version": strings.Replace(good, "$v=19$", "$v=18$", 1),
		"weak memory":   strings.Replace(good, "m=65536", "m=1024", 1),
		"bad params":    strings.Replace(good, "m=65536,t=3,p=2", "m=65536;t=3", 1),
		"short salt":    "$argon2id$v=19$m=65536,t=3,p=2$c2FsdA$" + strings.Split(good, "$")[5],
	}
	for name, digest := range cases {
		ok, err := h.Verify("malformed-test", digest)
		if err != nil || ok {
			t.Fatalf("%s: Verify must fail quietly, ok=%v err=%v", name, ok, err)
		}
		if _, err := h.NeedsUpgrade(digest); !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("%s: NeedsUpgrade expected ErrMalformedHash, got %v", name, err)
		}
	}
}

func TestArgon2NeedsUpgrade(t *testing.T) {
	current := testArgon2(t)
	cases := []struct {
		name   string
		mutate func(*Config)
		want   bool
	}{
		{"same", func(*Config) {}, false},
		{"less memory", func(c *Config) { c.Memory = 32 * 1024 }, true},
		{"fewer passes", func(c *Config) { c.Time = 2 }, true},
		{"fewer lanes", func(c *Config) { c.Parallelism = 1 }, true},
		{"other key length", func(c *Config) { c.KeyLength = 64 }, true},
		{"stronger", func(c *Config) { c.Time = 4 }, false},
	}
	for _, tc := range cases {
		digest, err := testArgon2(t, tc.mutate).Hash("upgrade-secret")
		if err != nil {
			t.Fatalf("%s: Hash: %v", tc.name, err)
		}
		got, err := current.NeedsUpgrade(digest)
		if err != nil || got != tc.want {
			t.Fatalf("%s: NeedsUpgrade=%v err=%v, want %v", tc.name, got, err, tc.want)
		}
	}
}

func TestArgon2EmptyInputs(t *testing.T) {
	h := testArgon2(t)

	if _, err := h.Hash(""); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput from Hash, got %v", err)
	}
	if _, err := h.Verify("", "$argon2id$v=19$m=65536,t=3,p=2$x$y"); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput for empty password, got %v", err)
	}
	if _, err := h.Verify("password", ""); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput for empty digest, got %v", err)
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	weak := []func(*Config){
		func(c *Config) { c.Memory = 1024 },
		func(c *Config) { c.Time = 0 },
		func(c *Config) { c.Parallelism = 0 },
		func(c *Config) { c.SaltLength = 8 },
		func(c *Config) { c.KeyLength = 8 },
	}
	for i, mutate := range weak {
		cfg := DefaultArgon2Config()
		mutate(&cfg)
		if _, err := NewArgon2(cfg); !errors.Is(err, ErrWeakConfig) {
			t.Fatalf("case %d: expected ErrWeakConfig, got %v", i, err)
		}
	}
}

func TestPoolNeedsUpgrade(t *testing.T) {
	weak, err := testArgon2(t, func(c *Config) { c.Time = 1 }).Hash("pool-secret1")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	p := NewPool(testArgon2(t), 1)
	if !p.NeedsUpgrade(weak) {
		t.Fatal("weaker digest must need an upgrade")
	}
	if p.NeedsUpgrade("garbage") {
		t.Fatal("undecodable digest must not be reported as upgradable")
	}
}
