package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func newTestManager(t *testing.T, clock *fakeClock) (*Manager, []byte) {
	t.Helper()
	priv, _, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	m, err := NewManager(Config{PrivateKey: priv, Now: clock.Now})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m, priv
}

func TestIssueAndVerifyAccess(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m, _ := newTestManager(t, clock)

	tok, err := m.IssueAccess("user-1", "session-hash", Payload{Email: "a@b.com", Verified: true}, time.Minute)
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	claims, err := m.VerifyAccess(tok, VerifyOptions{})
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if claims.UserID() != "user-1" || claims.SessionHash() != "session-hash" {
		t.Fatalf("unexpected claims: sub=%q jti=%q", claims.Subject, claims.ID)
	}
	if claims.Issuer != DefaultIssuer {
		t.Fatalf("expected issuer %q, got %q", DefaultIssuer, claims.Issuer)
	}
	if claims.Email != "a@b.com" || !claims.Verified {
		t.Fatalf("unexpected payload: %+v", claims)
	}
}

func TestVerifyAccessExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m, _ := newTestManager(t, clock)

	tok, err := m.IssueAccess("user-1", "session-hash", Payload{}, time.Minute)
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	clock.now = clock.now.Add(2 * time.Minute)

	if _, err := m.VerifyAccess(tok, VerifyOptions{}); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	claims, err := m.VerifyAccess(tok, VerifyOptions{IgnoreExpiration: true})
	if err != nil {
		t.Fatalf("expected expired token to verify when expiry is ignored: %v", err)
	}
	if !claims.ExpiredAt(clock.now) {
		t.Fatal("expected claims to report expiry")
	}
}

func TestVerifyAccessRejectsWrongAlgorithm(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m, _ := newTestManager(t, clock)

	claims := Claims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u",
		ID:        "s",
		Issuer:    DefaultIssuer,
		ExpiresAt: gjwt.NewNumericDate(clock.now.Add(time.Minute)),
	}}
	tok, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	for _, opts := range []VerifyOptions{{}, {IgnoreExpiration: true}} {
		if _, err := m.VerifyAccess(tok, opts); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken with %+v, got %v", opts, err)
		}
	}
}

func TestVerifyAccessRejectsForeignKeyAndIssuer(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m, priv := newTestManager(t, clock)
	other, _ := newTestManager(t, clock)

	foreign, err := other.IssueAccess("u", "s", Payload{}, time.Minute)
	if err != nil {
		t.Fatalf("issue foreign: %v", err)
	}
	if _, err := m.VerifyAccess(foreign, VerifyOptions{IgnoreExpiration: true}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected foreign signature to fail, got %v", err)
	}

	wrongIssuer, err := NewManager(Config{PrivateKey: priv, Issuer: "someone.else", Now: clock.Now})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	tok, err := wrongIssuer.IssueAccess("u", "s", Payload{}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	for _, opts := range []VerifyOptions{{}, {IgnoreExpiration: true}} {
		if _, err := m.VerifyAccess(tok, opts); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected issuer mismatch with %+v, got %v", opts, err)
		}
	}
}

func TestVerifyAccessRejectsTampering(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m, _ := newTestManager(t, clock)

	tok, err := m.IssueAccess("u", "s", Payload{}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	parts := strings.Split(tok, ".")
	parts[1] = parts[1] + "x"
	if _, err := m.VerifyAccess(strings.Join(parts, "."), VerifyOptions{}); err == nil {
		t.Fatal("expected tampered payload to fail")
	}
	if _, err := m.VerifyAccess("", VerifyOptions{}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected empty token to fail, got %v", err)
	}
}

func TestCertificateVerifyOnlyManager(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m, _ := newTestManager(t, clock)

	verifier, err := NewManager(Config{PublicKey: []byte(m.Certificate()), Now: clock.Now})
	if err != nil {
		t.Fatalf("verify-only manager: %v", err)
	}
	if _, err := verifier.IssueAccess("u", "s", Payload{}, time.Minute); !errors.Is(err, ErrSigningDisabled) {
		t.Fatalf("expected ErrSigningDisabled, got %v", err)
	}

	tok, err := m.IssueAccess("u", "s", Payload{}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.VerifyAccess(tok, VerifyOptions{}); err != nil {
		t.Fatalf("expected certificate holder to verify token: %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(Config{}); err == nil {
		t.Fatal("expected missing keys to fail")
	}
	if _, err := NewManager(Config{PrivateKey: []byte("not pem")}); err == nil {
		t.Fatal("expected invalid private key to fail")
	}

	privA, _, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	_, pubB, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := NewManager(Config{PrivateKey: privA, PublicKey: pubB}); err == nil {
		t.Fatal("expected mismatched key pair to fail")
	}
}

func TestLeewayAppliesToVerifyAndExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	priv, _, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	m, err := NewManager(Config{PrivateKey: priv, Leeway: 30 * time.Second, Now: clock.Now})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok, err := m.IssueAccess("user-1", "session-hash", Payload{}, time.Minute)
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	clock.now = clock.now.Add(70 * time.Second)
	claims, err := m.VerifyAccess(tok, VerifyOptions{})
	if err != nil {
		t.Fatalf("token inside leeway must verify: %v", err)
	}
	if m.Expired(claims, clock.now) {
		t.Fatal("Expired must honor the leeway")
	}
	if !claims.ExpiredAt(clock.now) {
		t.Fatal("ExpiredAt is the raw check without leeway")
	}

	clock.now = clock.now.Add(20 * time.Second)
	if _, err := m.VerifyAccess(tok, VerifyOptions{}); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired past the leeway, got %v", err)
	}
	if !m.Expired(claims, clock.now) {
		t.Fatal("expected expiry past the leeway")
	}

	if _, err := NewManager(Config{PrivateKey: priv, Leeway: 3 * time.Minute}); err == nil {
		t.Fatal("expected leeway above two minutes to be rejected")
	}
}

func TestKeyIDStampedAndRequired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	priv, _, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	current, err := NewManager(Config{PrivateKey: priv, KeyID: " k2 ", Now: clock.Now})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	previous, err := NewManager(Config{PrivateKey: priv, KeyID: "k1", Now: clock.Now})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if current.KeyID() != "k2" {
		t.Fatalf("expected trimmed kid, got %q", current.KeyID())
	}

	tok, err := current.IssueAccess("user-1", "session-hash", Payload{}, time.Minute)
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	parsed, _, err := gjwt.NewParser().ParseUnverified(tok, &Claims{})
	if err != nil {
		t.Fatalf("parse unverified: %v", err)
	}
	if parsed.Header["kid"] != "k2" {
		t.Fatalf("expected kid header k2, got %v", parsed.Header["kid"])
	}

	if _, err := current.VerifyAccess(tok, VerifyOptions{}); err != nil {
		t.Fatalf("verify with matching kid: %v", err)
	}
	if _, err := previous.VerifyAccess(tok, VerifyOptions{}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for a foreign kid, got %v", err)
	}
}
