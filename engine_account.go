package authcore

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/authcore/session"
)

// ChangePassword replaces the password of the signed-in user after verifying
// the current one. Every other session is revoked. A wrong current password
// yields ErrUserNotFound.
func (ac *AuthContext) ChangePassword(ctx context.Context, current, next string) error {
	e := ac.engine
	if err := e.ready(); err != nil {
		return err
	}

	userID, revoked, err := ac.changePassword(ctx, current, next)
	if err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, ac.from, auditEventPasswordChangeFailure, false, userID, "", err, nil)
		return err
	}
	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, ac.from, auditEventPasswordChangeSuccess, true, userID, "", nil, func() map[string]string {
		return map[string]string{"revoked_sessions": strconv.Itoa(revoked)}
	})
	return nil
}

func (ac *AuthContext) changePassword(ctx context.Context, current, next string) (string, int, error) {
	e := ac.engine

	id, err := ac.GetUser(ctx, GetUserOptions{})
	if err != nil {
		return "", 0, err
	}
	user := id.User
	if err := ac.checkCSRF(); err != nil {
		return user.ID, 0, err
	}
	if err := e.rules.checkPassword(next); err != nil {
		return user.ID, 0, err
	}
	if !user.HasPassword() {
		return user.ID, 0, ErrUserNotFound
	}

	ok, err := e.pool.Verify(ctx, current, user.PasswordHash)
	if err != nil {
		return user.ID, 0, e.fail(ctx, "change_password", user.ID, err)
	}
	if !ok {
		return user.ID, 0, ErrUserNotFound
	}

	hash, err := e.pool.Hash(ctx, next)
	if err != nil {
		return user.ID, 0, e.fail(ctx, "change_password", user.ID, err)
	}
	if err := e.storage.Update(ctx, user.ID, UserPatch{PasswordHash: &hash}); err != nil {
		return user.ID, 0, e.fail(ctx, "change_password", user.ID, err)
	}
	user.PasswordHash = hash

	revoked, err := e.deleteSessions(ctx, user.ID, id.Session.Hash)
	if err != nil {
		return user.ID, revoked, e.fail(ctx, "change_password", user.ID, err)
	}
	return user.ID, revoked, nil
}

// Sessions lists the sessions of the signed-in user in insertion order.
func (ac *AuthContext) Sessions(ctx context.Context) ([]session.Session, error) {
	e := ac.engine
	id, err := ac.GetUser(ctx, GetUserOptions{})
	if err != nil {
		return nil, err
	}
	list, err := e.storage.Sessions(ctx, id.User.ID)
	if err != nil {
		return nil, e.fail(ctx, "sessions", id.User.ID, err)
	}
	return list, nil
}

// RevokeSession deletes one session of the signed-in user. Revoking the
// current session also clears the token cookies. An unknown hash yields
// ErrSession.
func (ac *AuthContext) RevokeSession(ctx context.Context, hash string) error {
	e := ac.engine
	id, err := ac.GetUser(ctx, GetUserOptions{})
	if err != nil {
		return err
	}
	if err := ac.checkCSRF(); err != nil {
		return err
	}
	list, err := e.storage.Sessions(ctx, id.User.ID)
	if err != nil {
		return e.fail(ctx, "revoke_session", id.User.ID, err)
	}
	if _, ok := session.FindByHash(list, hash); !ok {
		return ErrSession
	}
	if err := e.storage.DeleteSession(ctx, id.User.ID, hash); err != nil && !errors.Is(err, ErrRecordNotFound) {
		return e.fail(ctx, "revoke_session", id.User.ID, err)
	}
	if hash == id.Session.Hash {
		ac.clearTokens()
	}

	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, ac.from, auditEventSessionRevoked, true, id.User.ID, hash, nil, nil)
	return nil
}

// SignoutAll deletes every session of the signed-in user and clears the cookies.
func (ac *AuthContext) SignoutAll(ctx context.Context) error {
	e := ac.engine
	id, err := ac.GetUser(ctx, GetUserOptions{})
	if err != nil {
		return err
	}
	if err := ac.checkCSRF(); err != nil {
		return err
	}
	n, err := e.deleteSessions(ctx, id.User.ID, "")
	if err != nil {
		return e.fail(ctx, "signout_all", id.User.ID, err)
	}
	ac.clearTokens()

	e.metricInc(MetricSignoutAll)
	e.emitAudit(ctx, ac.from, auditEventSignoutAll, true, id.User.ID, id.Session.Hash, nil, func() map[string]string {
		return map[string]string{"revoked_sessions": strconv.Itoa(n)}
	})
	return nil
}
