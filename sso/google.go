package sso

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gocache "github.com/patrickmn/go-cache"
)

const (
	// ProviderGoogle is the registry name of the Google verifier.
	ProviderGoogle = "google"

	defaultGoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
	jwksCacheTTL         = time.Hour
	googleLeeway         = 30 * time.Second
)

var defaultGoogleIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

// GoogleConfig configures Google ID-token verification.
type GoogleConfig struct {
	// ClientIDs lists accepted aud values.
	ClientIDs  []string
	JWKSURL    string
	Issuers    []string
	HTTPClient *http.Client
	Now        func() time.Time
}

type jwk struct {
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"`
	jwt.RegisteredClaims
}

// Google verifies Google-issued OpenID Connect ID tokens against Google's JWKS.
type Google struct {
	cfg   GoogleConfig
	keys  *gocache.Cache
	mu    sync.Mutex
	etag  string
	cache *jwks
}

// NewGoogle returns a Google verifier.
func NewGoogle(cfg GoogleConfig) (*Google, error) {
	if len(cfg.ClientIDs) == 0 {
		return nil, errors.New("google verifier requires at least one client id")
	}
	if cfg.JWKSURL == "" {
		cfg.JWKSURL = defaultGoogleJWKSURL
	}
	if len(cfg.Issuers) == 0 {
		cfg.Issuers = defaultGoogleIssuers
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Google{
		cfg:  cfg,
		keys: gocache.New(jwksCacheTTL, 10*time.Minute),
	}, nil
}

// Provider implements Verifier.
func (g *Google) Provider() string {
	return ProviderGoogle
}

// Verify checks the RS256 signature, issuer, audience and expiry of idToken.
func (g *Google) Verify(ctx context.Context, idToken string) (Identity, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(g.cfg.Now),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(googleLeeway),
	)

	claims := &googleClaims{}
	_, err := parser.ParseWithClaims(idToken, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		return g.keyForKid(ctx, kid)
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrGoogleToken, err)
	}

	if !slices.Contains(g.cfg.Issuers, claims.Issuer) {
		return Identity{}, fmt.Errorf("%w: bad iss %q", ErrGoogleToken, claims.Issuer)
	}
	if !slices.ContainsFunc(claims.Audience, func(aud string) bool {
		return slices.Contains(g.cfg.ClientIDs, aud)
	}) {
		return Identity{}, fmt.Errorf("%w: bad aud", ErrGoogleToken)
	}
	if claims.Subject == "" {
		return Identity{}, ErrProviderIDMissing
	}
	if strings.TrimSpace(claims.Email) == "" {
		return Identity{}, ErrProviderEmailMissing
	}

	return Identity{
		Provider:      ProviderGoogle,
		Subject:       claims.Subject,
		Email:         strings.ToLower(strings.TrimSpace(claims.Email)),
		EmailVerified: truthy(claims.EmailVerified),
	}, nil
}

func (g *Google) keyForKid(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if cached, ok := g.keys.Get(kid); ok {
		return cached.(*rsa.PublicKey), nil
	}

	set, err := g.fetchJWKS(ctx)
	if err != nil {
		return nil, err
	}
	for _, k := range set.Keys {
		if !strings.EqualFold(k.Kty, "RSA") {
			continue
		}
		pub, err := rsaKey(k)
		if err != nil {
			continue
		}
		g.keys.SetDefault(k.Kid, pub)
	}

	if cached, ok := g.keys.Get(kid); ok {
		return cached.(*rsa.PublicKey), nil
	}
	return nil, errors.New("kid not found")
}

func (g *Google) fetchJWKS(ctx context.Context) (*jwks, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.JWKSURL, nil)
	if err != nil {
		return nil, err
	}
	if g.etag != "" {
		req.Header.Set("If-None-Match", g.etag)
	}
	resp, err := g.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && g.cache != nil {
		return g.cache, nil
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("jwks http %d", resp.StatusCode)
	}

	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, err
	}
	g.cache = &set
	g.etag = resp.Header.Get("ETag")
	return &set, nil
}

func rsaKey(k jwk) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, err
	}
	e := 0
	for _, b := range eb {
		e = (e << 8) | int(b)
	}
	if len(eb) == 0 {
		e = 65537
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}

// email_verified arrives as a bool or as the string "true".
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true")
	}
	return false
}
