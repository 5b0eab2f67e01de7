package token

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is the iss claim stamped on every access token.
const DefaultIssuer = "auth.service"

var (
	// ErrInvalidToken is returned when the signature, algorithm, issuer or audience check fails.
	ErrInvalidToken = errors.New("token: invalid access token")
	// ErrExpired is returned when an otherwise valid access token is past its expiry.
	ErrExpired = errors.New("token: access token expired")
	// ErrSigningDisabled is returned by IssueAccess on a verify-only manager.
	ErrSigningDisabled = errors.New("token: manager has no private key")
)

// Config holds access-token key material and claim constants.
type Config struct {
	// PrivateKey is a PEM encoded P-256 key. Optional for verify-only managers.
	PrivateKey []byte
	// PublicKey is a PEM encoded P-256 public key. Derived from PrivateKey when empty.
	PublicKey []byte
	Issuer    string
	Audience  string
	// Leeway extends expiry to absorb clock skew between issuers and verifiers.
	Leeway time.Duration
	// KeyID is written to the kid header. When set, tokens with another kid are rejected.
	KeyID string
	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

// Payload is the small application payload embedded in access tokens.
type Payload struct {
	Email    string
	Verified bool
}

// Claims are the decoded access-token claims.
type Claims struct {
	Email    string `json:"email,omitempty"`
	Verified bool   `json:"verified"`
	jwt.RegisteredClaims
}

// UserID returns the sub claim.
func (c *Claims) UserID() string {
	return c.Subject
}

// SessionHash returns the jti claim.
func (c *Claims) SessionHash() string {
	return c.ID
}

// ExpiredAt reports whether the token is expired at now. A token without exp is
// treated as expired.
func (c *Claims) ExpiredAt(now time.Time) bool {
	if c == nil || c.ExpiresAt == nil {
		return true
	}
	return !now.Before(c.ExpiresAt.Time)
}

// Expired reports whether c is past its expiry at now, allowing the configured leeway.
func (m *Manager) Expired(c *Claims, now time.Time) bool {
	return c.ExpiredAt(now.Add(-m.config.Leeway))
}

// KeyID returns the kid stamped on issued tokens, if any.
func (m *Manager) KeyID() string {
	return m.config.KeyID
}

// VerifyOptions tunes VerifyAccess.
type VerifyOptions struct {
	IgnoreExpiration bool
}

// Manager issues and verifies ES256 access tokens.
type Manager struct {
	config     Config
	privateKey *ecdsa.PrivateKey
	publicKey  *ecdsa.PublicKey
	certPEM    string
}

// NewManager parses the configured keys and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{config: cfg}

	if len(cfg.PrivateKey) > 0 {
		priv, err := jwt.ParseECPrivateKeyFromPEM(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid ecdsa private key: %w", err)
		}
		if priv.Curve.Params().Name != "P-256" {
			return nil, errors.New("es256 requires a P-256 private key")
		}
		m.privateKey = priv
		m.publicKey = &priv.PublicKey
	}
	if len(cfg.PublicKey) > 0 {
		pub, err := jwt.ParseECPublicKeyFromPEM(cfg.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("invalid ecdsa public key: %w", err)
		}
		if m.privateKey != nil && !m.privateKey.PublicKey.Equal(pub) {
			return nil, errors.New("public key does not match private key")
		}
		m.publicKey = pub
	}
	if m.publicKey == nil {
		return nil, errors.New("es256 requires a private or public key")
	}

	der, err := x509.MarshalPKIXPublicKey(m.publicKey)
	if err != nil {
		return nil, err
	}
	m.certPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	return m, nil
}

// Certificate returns the PEM encoded public key. Collaborators holding only this value
// can verify access tokens.
func (m *Manager) Certificate() string {
	return m.certPEM
}

// Issuer returns the iss claim value.
func (m *Manager) Issuer() string {
	return m.config.Issuer
}

// IssueAccess signs an access token for userID bound to sessionHash.
func (m *Manager) IssueAccess(userID, sessionHash string, payload Payload, ttl time.Duration) (string, error) {
	if m.privateKey == nil {
		return "", ErrSigningDisabled
	}
	if ttl <= 0 {
		return "", errors.New("invalid TTL configuration")
	}

	now := m.config.Now()
	claims := Claims{
		Email:    payload.Email,
		Verified: payload.Verified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        sessionHash,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	if m.config.KeyID != "" {
		tok.Header["kid"] = m.config.KeyID
	}
	return tok.SignedString(m.privateKey)
}

// VerifyAccess checks the signature and issuer of tokenStr, and its expiry unless
// opts.IgnoreExpiration is set.
func (m *Manager) VerifyAccess(tokenStr string, opts VerifyOptions) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithTimeFunc(m.config.Now),
	}
	if opts.IgnoreExpiration {
		options = append(options, jwt.WithoutClaimsValidation())
	} else {
		options = append(options, jwt.WithExpirationRequired(), jwt.WithIssuer(m.config.Issuer))
		if m.config.Leeway > 0 {
			options = append(options, jwt.WithLeeway(m.config.Leeway))
		}
		if m.config.Audience != "" {
			options = append(options, jwt.WithAudience(m.config.Audience))
		}
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodES256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if m.config.KeyID != "" {
			if kid, _ := t.Header["kid"].(string); kid != m.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return m.publicKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if opts.IgnoreExpiration {
		// Claims validation was skipped; issuer and audience still apply.
		if claims.Issuer != m.config.Issuer {
			return nil, fmt.Errorf("%w: issuer mismatch", ErrInvalidToken)
		}
		if m.config.Audience != "" && !slices.Contains(claims.Audience, m.config.Audience) {
			return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
		}
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing sub or jti", ErrInvalidToken)
	}

	return claims, nil
}
