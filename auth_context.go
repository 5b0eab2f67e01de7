package authcore

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/token"
	"golang.org/x/sync/singleflight"
)

// GetUserOptions relax the checks of [AuthContext.GetUser]. The zero value is
// the strict resolution.
type GetUserOptions struct {
	// CanAccessTokenBeExpired accepts a correctly signed but expired token.
	CanAccessTokenBeExpired bool
	// IgnoreSessionChanges skips re-fingerprinting the current request.
	IgnoreSessionChanges bool
}

func (o GetUserOptions) key() string {
	return strconv.FormatBool(o.CanAccessTokenBeExpired) + "/" + strconv.FormatBool(o.IgnoreSessionChanges)
}

type resolution struct {
	identity *Identity
	err      error
}

// AuthContext is the authentication state of one request. It must not be
// shared across requests. Methods are safe for concurrent use within the
// request.
type AuthContext struct {
	engine *Engine
	req    Request
	from   origin

	group singleflight.Group

	mu       sync.Mutex
	access   string
	refresh  string
	resolved map[GetUserOptions]resolution
	cookies  map[string]*http.Cookie
	csrf     string
}

func newAuthContext(e *Engine, req Request) *AuthContext {
	ac := &AuthContext{
		engine:   e,
		req:      req,
		from:     origin{ip: req.IP, userAgent: req.UserAgent},
		resolved: make(map[GetUserOptions]resolution, 2),
		cookies:  make(map[string]*http.Cookie, 2),
	}
	if e != nil && req.Cookies != nil {
		ac.access = req.Cookies[e.config.Cookie.AccessName]
		ac.refresh = req.Cookies[e.config.Cookie.RefreshName]
	}
	return ac
}

// GetUser resolves the caller. Checks run in order and stop at the first
// failure: cookie present, signature valid, user exists, session exists,
// session matches the current request, token not expired. The outcome is
// computed once per option set for the lifetime of the AuthContext.
func (ac *AuthContext) GetUser(ctx context.Context, opts GetUserOptions) (*Identity, error) {
	if err := ac.engine.ready(); err != nil {
		return nil, err
	}

	ac.mu.Lock()
	if r, ok := ac.resolved[opts]; ok {
		ac.mu.Unlock()
		return r.identity, r.err
	}
	ac.mu.Unlock()

	v, _, _ := ac.group.Do(opts.key(), func() (any, error) {
		ac.mu.Lock()
		if r, ok := ac.resolved[opts]; ok {
			ac.mu.Unlock()
			return r, nil
		}
		access := ac.access
		ac.mu.Unlock()

		id, err := ac.resolve(ctx, access, opts)
		r := resolution{identity: id, err: err}

		ac.mu.Lock()
		// A sign operation may have swapped the token meanwhile; keep the cache
		// only if it still describes the current token.
		if ac.access == access {
			ac.resolved[opts] = r
		}
		ac.mu.Unlock()
		return r, nil
	})
	r := v.(resolution)
	return r.identity, r.err
}

func (ac *AuthContext) resolve(ctx context.Context, access string, opts GetUserOptions) (*Identity, error) {
	e := ac.engine
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.Observe(MetricGetUserLatency, time.Since(start))
		}
	}()

	id, err := ac.resolveSteps(ctx, access, opts)
	if err != nil {
		e.metricInc(MetricGetUserFailure)
		return nil, err
	}
	e.metricInc(MetricGetUserSuccess)
	return id, nil
}

func (ac *AuthContext) resolveSteps(ctx context.Context, access string, opts GetUserOptions) (*Identity, error) {
	e := ac.engine
	now := e.now()

	// NoToken
	if access == "" {
		return nil, ErrCookies
	}

	// BadSignature. Expiry is judged last so a revoked session is reported as such.
	claims, err := e.tokens.VerifyAccess(access, token.VerifyOptions{IgnoreExpiration: true})
	if err != nil {
		return nil, ErrInvalidAccessToken
	}

	// UserMissing
	user, err := e.storage.FindByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, e.fail(ctx, "get_user", claims.UserID(), err)
	}

	// SessionRevoked
	list, err := e.storage.Sessions(ctx, user.ID)
	if err != nil {
		return nil, e.fail(ctx, "get_user", user.ID, err)
	}
	sess, ok := session.FindByHash(list, claims.SessionHash())
	if !ok {
		e.metricInc(MetricSessionRevoked)
		return nil, ErrSession
	}

	// SessionMismatch
	if !opts.IgnoreSessionChanges {
		current, err := e.fingerprint.Fingerprint(ac.req.IP, ac.req.UserAgent, now)
		if err != nil {
			return nil, ErrInvalidUserAgent
		}
		if current.Hash != sess.Hash {
			e.metricInc(MetricSessionMismatch)
			return nil, ErrSession
		}
	}

	// Expired
	expired := e.tokens.Expired(claims, now)
	if expired && !opts.CanAccessTokenBeExpired {
		return nil, ErrSession
	}

	id := &Identity{
		User:    user,
		Session: sess,
		Expired: expired,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// Cookies returns the cookies the transport must write, in a stable order.
func (ac *AuthContext) Cookies() []*http.Cookie {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	out := make([]*http.Cookie, 0, len(ac.cookies))
	for _, name := range []string{ac.engine.config.Cookie.AccessName, ac.engine.config.Cookie.RefreshName} {
		if c, ok := ac.cookies[name]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out
}

// CSRFToken returns the CSRF token issued during this request, if any.
func (ac *AuthContext) CSRFToken() string {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return ac.csrf
}

// Request returns the request descriptor the context was built from.
func (ac *AuthContext) Request() Request {
	return ac.req
}

// setTokens records freshly issued tokens. An empty refresh leaves the refresh
// cookie untouched. Memoized resolutions are dropped.
func (ac *AuthContext) setTokens(access, refresh, csrf string) {
	cfg := ac.engine.config.Cookie

	ac.mu.Lock()
	defer ac.mu.Unlock()

	ac.access = access
	ac.cookies[cfg.AccessName] = ac.cookie(cfg.AccessName, access, false)
	if refresh != "" {
		ac.refresh = refresh
		ac.cookies[cfg.RefreshName] = ac.cookie(cfg.RefreshName, refresh, false)
	}
	ac.csrf = csrf
	ac.resolved = make(map[GetUserOptions]resolution, 2)
}

func (ac *AuthContext) clearTokens() {
	cfg := ac.engine.config.Cookie

	ac.mu.Lock()
	defer ac.mu.Unlock()

	ac.access = ""
	ac.refresh = ""
	ac.csrf = ""
	ac.cookies[cfg.AccessName] = ac.cookie(cfg.AccessName, "", true)
	ac.cookies[cfg.RefreshName] = ac.cookie(cfg.RefreshName, "", true)
	ac.resolved = make(map[GetUserOptions]resolution, 2)
}

func (ac *AuthContext) cookie(name, value string, expire bool) *http.Cookie {
	cfg := ac.engine.config.Cookie
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: cfg.SameSite(),
	}
	switch {
	case expire:
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	case cfg.MaxAge > 0:
		c.MaxAge = int(cfg.MaxAge / time.Second)
	}
	return c
}

func (ac *AuthContext) tokens() (access, refresh string) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return ac.access, ac.refresh
}
