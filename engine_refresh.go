package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/token"
	"go.uber.org/zap"
)

// RefreshResult carries the new access token.
type RefreshResult struct {
	AccessToken string
	ExpiresAt   time.Time
	// CSRFToken is set only in cross-origin mode.
	CSRFToken string
}

// Refresh issues a new access token for the current session. The access token
// may be expired but must still be validly signed and bound to a session that
// matches this request. In cross-origin mode the CSRF header must carry a token
// bound to the presented access token. The refresh token is not rotated.
func (ac *AuthContext) Refresh(ctx context.Context) (*RefreshResult, error) {
	e := ac.engine
	if err := e.ready(); err != nil {
		return nil, err
	}

	res, userID, err := ac.refreshAccess(ctx)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, ac.from, auditEventRefreshFailure, false, userID, "", err, nil)
		return nil, err
	}
	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, ac.from, auditEventRefreshSuccess, true, userID, "", nil, nil)
	return res, nil
}

func (ac *AuthContext) refreshAccess(ctx context.Context) (*RefreshResult, string, error) {
	e := ac.engine

	id, err := ac.GetUser(ctx, GetUserOptions{CanAccessTokenBeExpired: true})
	if err != nil {
		return nil, "", err
	}
	user, sess := id.User, id.Session
	if err := ac.checkCSRF(); err != nil {
		return nil, user.ID, err
	}
	_, presented := ac.tokens()

	if presented == "" || !token.RefreshEqual(presented, sess.RefreshToken) {
		return nil, user.ID, ErrInvalidRefreshToken
	}

	now := e.now()
	fresh, err := e.tokens.IssueAccess(user.ID, sess.Hash, token.Payload{
		Email:    user.Email,
		Verified: user.Verified,
	}, e.config.Token.AccessTTL)
	if err != nil {
		return nil, user.ID, e.fail(ctx, "refresh", user.ID, err)
	}

	sess = sess.Touch(now.UTC())
	if err := e.storage.UpdateSession(ctx, user.ID, sess); err != nil {
		return nil, user.ID, e.fail(ctx, "refresh", user.ID, err)
	}

	csrf, err := e.csrfFor(fresh)
	if err != nil {
		return nil, user.ID, e.fail(ctx, "refresh", user.ID, err)
	}
	ac.setTokens(fresh, "", csrf)

	return &RefreshResult{
		AccessToken: fresh,
		ExpiresAt:   now.Add(e.config.Token.AccessTTL),
		CSRFToken:   csrf,
	}, user.ID, nil
}

// checkCSRF requires, in cross-origin mode, a CSRF header bound to the access
// token the request presented. Same-origin deployments pass unconditionally.
func (ac *AuthContext) checkCSRF() error {
	e := ac.engine
	if !e.config.Cookie.CrossOrigin {
		return nil
	}
	access, _ := ac.tokens()
	csrf := ""
	if ac.req.Header != nil {
		csrf = ac.req.Header.Get(e.config.Cookie.CSRFHeader)
	}
	if access == "" || csrf == "" || !token.VerifyCSRF(e.config.Token.CSRFSecret, access, e.config.Token.CSRFMaxAge, csrf, e.now()) {
		e.metricInc(MetricCSRFRejected)
		return ErrCSRF
	}
	return nil
}

// Signout deletes the current session when it can be resolved and always
// clears both token cookies. It never fails from the caller's perspective.
func (ac *AuthContext) Signout(ctx context.Context) {
	e := ac.engine
	defer ac.clearTokens()
	if e.ready() != nil {
		return
	}

	id, err := ac.GetUser(ctx, GetUserOptions{CanAccessTokenBeExpired: true, IgnoreSessionChanges: true})
	if err != nil {
		e.metricInc(MetricSignout)
		e.emitAudit(ctx, ac.from, auditEventSignout, false, "", "", err, nil)
		return
	}

	if err := e.storage.DeleteSession(ctx, id.User.ID, id.Session.Hash); err != nil && !errors.Is(err, ErrRecordNotFound) {
		e.logger.Warn("signout session delete failed",
			zap.String("user_id", id.User.ID),
			zap.Error(err),
		)
	}
	e.metricInc(MetricSignout)
	e.emitAudit(ctx, ac.from, auditEventSignout, true, id.User.ID, id.Session.Hash, nil, nil)
}
