package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/sso"
	"github.com/MrEthical07/authcore/token"
	"go.uber.org/zap"
)

// Signup creates a password account and signs it in from the current request.
//
// Steps: validate format, registration gate, email uniqueness, fingerprint,
// hash, create, establish session.
func (ac *AuthContext) Signup(ctx context.Context, creds Credentials) (*SignResult, error) {
	e := ac.engine
	if err := e.ready(); err != nil {
		return nil, err
	}

	res, err := ac.signup(ctx, creds)
	if err != nil {
		e.metricInc(MetricSignupFailure)
		e.emitAudit(ctx, ac.from, auditEventSignupFailure, false, "", "", err, nil)
		return nil, err
	}
	e.metricInc(MetricSignupSuccess)
	e.emitAudit(ctx, ac.from, auditEventSignupSuccess, true, res.User.ID, res.Session.Hash, nil, nil)
	return res, nil
}

func (ac *AuthContext) signup(ctx context.Context, creds Credentials) (*SignResult, error) {
	e := ac.engine

	creds, err := e.rules.checkCredentials(creds)
	if err != nil {
		return nil, err
	}
	if !e.config.Registration.Enabled {
		return nil, ErrRegistrationDisabled
	}

	if _, err := e.storage.FindByEmail(ctx, creds.Email); err == nil {
		return nil, ErrEmailUsed
	} else if !errors.Is(err, ErrRecordNotFound) {
		return nil, e.fail(ctx, "signup", "", err)
	}

	fp, err := ac.fingerprintRequest()
	if err != nil {
		return nil, err
	}

	hash, err := e.pool.Hash(ctx, creds.Password)
	if err != nil {
		return nil, e.fail(ctx, "signup", "", err)
	}

	user := &User{
		ID:           e.newID(),
		Email:        creds.Email,
		PasswordHash: hash,
		CreatedAt:    e.now().UTC(),
	}
	if err := e.storage.Create(ctx, user); err != nil {
		// Lost a race against a concurrent signup with the same email.
		if errors.Is(err, ErrRecordExists) {
			return nil, ErrEmailUsed
		}
		return nil, e.fail(ctx, "signup", user.ID, err)
	}

	return ac.establish(ctx, "signup", user, fp, true)
}

// Signin verifies a password and signs the user in from the current request. A
// wrong password and an unknown email both yield ErrUserNotFound.
func (ac *AuthContext) Signin(ctx context.Context, creds Credentials) (*SignResult, error) {
	e := ac.engine
	if err := e.ready(); err != nil {
		return nil, err
	}

	res, err := ac.signin(ctx, creds)
	if err != nil {
		if errors.Is(err, ErrTooManyRequests) {
			e.metricInc(MetricSigninRateLimited)
			e.emitAudit(ctx, ac.from, auditEventSigninRateLimited, false, "", "", err, nil)
			return nil, err
		}
		e.metricInc(MetricSigninFailure)
		e.emitAudit(ctx, ac.from, auditEventSigninFailure, false, "", "", err, nil)
		return nil, err
	}
	e.metricInc(MetricSigninSuccess)
	e.emitAudit(ctx, ac.from, auditEventSigninSuccess, true, res.User.ID, res.Session.Hash, nil, func() map[string]string {
		return map[string]string{"new_session": boolString(res.NewSession)}
	})
	return res, nil
}

func (ac *AuthContext) signin(ctx context.Context, creds Credentials) (*SignResult, error) {
	e := ac.engine

	creds, err := e.rules.checkCredentials(creds)
	if err != nil {
		return nil, err
	}
	if err := e.limiterCheck(ctx, creds.Email, ac.req.IP); err != nil {
		return nil, e.fail(ctx, "signin", "", err)
	}

	user, err := e.findByEmail(ctx, creds.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.limiterFail(ctx, creds.Email, ac.req.IP)
		}
		return nil, e.fail(ctx, "signin", "", err)
	}
	if !user.HasPassword() {
		e.limiterFail(ctx, creds.Email, ac.req.IP)
		return nil, ErrUserNotFound
	}

	ok, err := e.pool.Verify(ctx, creds.Password, user.PasswordHash)
	if err != nil {
		return nil, e.fail(ctx, "signin", user.ID, err)
	}
	if !ok {
		e.limiterFail(ctx, creds.Email, ac.req.IP)
		return nil, ErrUserNotFound
	}
	e.limiterReset(ctx, creds.Email, ac.req.IP)
	if e.pool.NeedsUpgrade(user.PasswordHash) {
		e.rehash(ctx, user, creds.Password)
	}

	fp, err := ac.fingerprintRequest()
	if err != nil {
		return nil, err
	}
	return ac.establish(ctx, "signin", user, fp, false)
}

// rehash replaces a digest made with weaker parameters. Failure is logged and
// never fails the signin.
func (e *Engine) rehash(ctx context.Context, user *User, plain string) {
	hash, err := e.pool.Hash(ctx, plain)
	if err == nil {
		err = e.storage.Update(ctx, user.ID, UserPatch{PasswordHash: &hash})
	}
	if err != nil {
		e.logger.Warn("password rehash failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	user.PasswordHash = hash
	e.metricInc(MetricPasswordRehash)
}

// SignWithSSO verifies a provider ID token, then signs in the linked user. An
// unlinked identity is linked to the account with the same email when the
// provider vouches for that email; otherwise a new account is created if
// registration is enabled.
func (ac *AuthContext) SignWithSSO(ctx context.Context, provider, idToken string) (*SignResult, error) {
	e := ac.engine
	if err := e.ready(); err != nil {
		return nil, err
	}

	res, err := ac.signWithSSO(ctx, provider, idToken)
	if err != nil {
		e.metricInc(MetricSSOFailure)
		e.emitAudit(ctx, ac.from, auditEventSSOFailure, false, "", "", err, func() map[string]string {
			return map[string]string{"provider": provider}
		})
		return nil, err
	}
	e.metricInc(MetricSSOSuccess)
	e.emitAudit(ctx, ac.from, auditEventSSOSuccess, true, res.User.ID, res.Session.Hash, nil, func() map[string]string {
		return map[string]string{
			"provider":    provider,
			"new_account": boolString(res.NewAccount),
		}
	})
	return res, nil
}

func (ac *AuthContext) signWithSSO(ctx context.Context, provider, idToken string) (*SignResult, error) {
	e := ac.engine

	verifier, err := e.sso.Lookup(provider)
	if err != nil {
		return nil, e.fail(ctx, "sso", "", err)
	}
	identity, err := verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, e.fail(ctx, "sso", "", err)
	}

	fp, err := ac.fingerprintRequest()
	if err != nil {
		return nil, err
	}

	user, created, err := ac.linkSSO(ctx, identity)
	if err != nil {
		return nil, err
	}
	return ac.establish(ctx, "sso", user, fp, created)
}

func (ac *AuthContext) linkSSO(ctx context.Context, id sso.Identity) (*User, bool, error) {
	e := ac.engine
	link := ProviderLink{Provider: id.Provider, Subject: id.Subject}

	user, err := e.storage.FindByProvider(ctx, id.Provider, id.Subject)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrRecordNotFound) {
		return nil, false, e.fail(ctx, "sso", "", err)
	}

	email := normalizeEmail(id.Email)
	user, err = e.storage.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if !id.EmailVerified {
			return nil, false, ErrEmailUsed
		}
		providers := append(append([]ProviderLink(nil), user.Providers...), link)
		verified := true
		if err := e.storage.Update(ctx, user.ID, UserPatch{Providers: &providers, Verified: &verified}); err != nil {
			return nil, false, e.fail(ctx, "sso", user.ID, err)
		}
		user.Providers = providers
		user.Verified = verified
		return user, false, nil
	case !errors.Is(err, ErrRecordNotFound):
		return nil, false, e.fail(ctx, "sso", "", err)
	}

	if !e.config.Registration.Enabled {
		return nil, false, ErrRegistrationDisabled
	}
	user = &User{
		ID:        e.newID(),
		Email:     email,
		Verified:  id.EmailVerified,
		Providers: []ProviderLink{link},
		CreatedAt: e.now().UTC(),
	}
	if err := e.storage.Create(ctx, user); err != nil {
		if errors.Is(err, ErrRecordExists) {
			return nil, false, ErrEmailUsed
		}
		return nil, false, e.fail(ctx, "sso", user.ID, err)
	}
	return user, true, nil
}

func (ac *AuthContext) fingerprintRequest() (session.Session, error) {
	fp, err := ac.engine.fingerprint.Fingerprint(ac.req.IP, ac.req.UserAgent, ac.engine.now().UTC())
	if err != nil {
		return session.Session{}, ErrInvalidUserAgent
	}
	return fp, nil
}

// establish registers fp on user, issues tokens and records the cookies.
// Storage is written only when the fingerprint is new. The registry works on a
// freshly fetched session list.
func (ac *AuthContext) establish(ctx context.Context, op string, user *User, fp session.Session, newAccount bool) (*SignResult, error) {
	e := ac.engine

	var list []session.Session
	if !newAccount {
		var err error
		list, err = e.storage.Sessions(ctx, user.ID)
		if err != nil {
			return nil, e.fail(ctx, op, user.ID, err)
		}
	}

	reg := e.sessions.Register(list, fp)
	sess := reg.Session
	created := reg.New
	if reg.New {
		refresh, err := token.IssueRefresh(e.config.Token.RefreshSecret, sess.Hash)
		if err != nil {
			return nil, e.fail(ctx, op, user.ID, err)
		}
		sess.RefreshToken = refresh

		for _, old := range reg.Evicted {
			if err := e.storage.DeleteSession(ctx, user.ID, old.Hash); err != nil && !errors.Is(err, ErrRecordNotFound) {
				return nil, e.fail(ctx, op, user.ID, err)
			}
			e.metricInc(MetricSessionEvicted)
			e.emitAudit(ctx, ac.from, auditEventSessionEvicted, true, user.ID, old.Hash, nil, nil)
		}
		switch err := e.storage.CreateSession(ctx, user.ID, sess); {
		case err == nil:
			e.metricInc(MetricSessionCreated)
		case errors.Is(err, ErrRecordExists):
			// A concurrent request from the same device stored it first.
			stored, err := e.storedSession(ctx, op, user.ID, sess.Hash)
			if err != nil {
				return nil, err
			}
			sess, created = stored, false
		default:
			return nil, e.fail(ctx, op, user.ID, err)
		}
	}

	access, err := e.tokens.IssueAccess(user.ID, sess.Hash, token.Payload{
		Email:    user.Email,
		Verified: user.Verified,
	}, e.config.Token.AccessTTL)
	if err != nil {
		return nil, e.fail(ctx, op, user.ID, err)
	}
	csrf, err := e.csrfFor(access)
	if err != nil {
		return nil, e.fail(ctx, op, user.ID, err)
	}

	ac.setTokens(access, sess.RefreshToken, csrf)
	e.logger.Debug("session established",
		zap.String("op", op),
		zap.String("user_id", user.ID),
		zap.Bool("new_session", created),
		zap.Int("evicted", len(reg.Evicted)),
	)

	return &SignResult{
		User:         user,
		Session:      sess,
		NewAccount:   newAccount,
		NewSession:   created,
		AccessToken:  access,
		RefreshToken: sess.RefreshToken,
		CSRFToken:    csrf,
	}, nil
}

func (e *Engine) storedSession(ctx context.Context, op, userID, hash string) (session.Session, error) {
	list, err := e.storage.Sessions(ctx, userID)
	if err != nil {
		return session.Session{}, e.fail(ctx, op, userID, err)
	}
	sess, ok := session.FindByHash(list, hash)
	if !ok {
		// Created and deleted again between our two reads.
		return session.Session{}, ErrSession
	}
	return sess, nil
}

// csrfFor signs a CSRF token bound to access in cross-origin mode.
func (e *Engine) csrfFor(access string) (string, error) {
	if !e.config.Cookie.CrossOrigin {
		return "", nil
	}
	return token.SignCSRF(e.config.Token.CSRFSecret, access, e.now())
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
