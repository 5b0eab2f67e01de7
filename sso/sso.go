// Package sso verifies identity tokens issued by external identity providers.
//
// A [Verifier] turns a provider token into an [Identity]; the [Registry] maps provider
// names to verifiers. The Engine owns account linking; this package never touches storage.
package sso

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrUnknownProvider is returned for provider names without a registered verifier.
	ErrUnknownProvider = errors.New("sso: unknown provider")
	// ErrGoogleToken is returned when a Google ID token fails verification.
	ErrGoogleToken = errors.New("sso: google token error")
	// ErrProviderIDMissing is returned when the verified token carries no subject.
	ErrProviderIDMissing = errors.New("sso: provider id missing")
	// ErrProviderEmailMissing is returned when the verified token carries no email.
	ErrProviderEmailMissing = errors.New("sso: provider email missing")
)

// Identity is the verified subject of a provider token.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
}

// Verifier verifies one provider's tokens.
type Verifier interface {
	Provider() string
	Verify(ctx context.Context, idToken string) (Identity, error)
}

// Registry resolves verifiers by provider name. It is immutable after construction.
type Registry struct {
	verifiers map[string]Verifier
}

// NewRegistry indexes verifiers by their lower-cased provider name. Nil verifiers are skipped.
func NewRegistry(verifiers ...Verifier) *Registry {
	r := &Registry{verifiers: make(map[string]Verifier, len(verifiers))}
	for _, v := range verifiers {
		if v == nil {
			continue
		}
		r.verifiers[strings.ToLower(v.Provider())] = v
	}
	return r
}

// Lookup returns the verifier for provider.
func (r *Registry) Lookup(provider string) (Verifier, error) {
	if r == nil {
		return nil, ErrUnknownProvider
	}
	v, ok := r.verifiers[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return v, nil
}

// Providers returns the registered provider names.
func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.verifiers))
	for name := range r.verifiers {
		out = append(out, name)
	}
	return out
}
