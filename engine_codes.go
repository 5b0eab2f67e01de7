package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/code"
)

// RequestPasswordReset issues a reset_password code for email. The caller
// delivers IssuedCode.Code out of band.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (*IssuedCode, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	from := originFromContext(ctx)

	issued, err := e.issueFor(ctx, "password_reset_request", normalizeEmail(email), code.KindResetPassword)
	if err != nil {
		if errors.Is(err, ErrTooManyRequests) {
			e.metricInc(MetricCodeRateLimited)
		}
		e.emitAudit(ctx, from, auditEventPasswordResetRequest, false, "", "", err, nil)
		return nil, err
	}
	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, from, auditEventPasswordResetRequest, true, issued.UserID, "", nil, nil)
	return issued, nil
}

// ResetPassword consumes a reset code, stores the new password and revokes
// every session of the user.
func (e *Engine) ResetPassword(ctx context.Context, email, supplied, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	from := originFromContext(ctx)

	userID, err := e.resetPassword(ctx, normalizeEmail(email), supplied, newPassword)
	if err != nil {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, from, auditEventPasswordResetFailure, false, userID, "", err, nil)
		return err
	}
	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, from, auditEventPasswordResetConfirm, true, userID, "", nil, nil)
	return nil
}

func (e *Engine) resetPassword(ctx context.Context, email, supplied, newPassword string) (string, error) {
	if err := e.rules.checkEmail(email); err != nil {
		return "", err
	}
	if err := e.rules.checkPassword(newPassword); err != nil {
		return "", err
	}
	user, err := e.findByEmail(ctx, email)
	if err != nil {
		return "", e.fail(ctx, "password_reset", "", err)
	}

	slot, err := e.codes.Consume(user.Slot(code.KindResetPassword), code.KindResetPassword, supplied)
	if err != nil {
		return user.ID, consumeError(err, ErrResetCodeNotFound, ErrInvalidResetCode)
	}

	hash, err := e.pool.Hash(ctx, newPassword)
	if err != nil {
		return user.ID, e.fail(ctx, "password_reset", user.ID, err)
	}
	patch := UserPatch{
		PasswordHash: &hash,
		Codes:        map[code.Kind]code.Slot{code.KindResetPassword: slot},
	}
	if err := e.storage.Update(ctx, user.ID, patch); err != nil {
		return user.ID, e.fail(ctx, "password_reset", user.ID, err)
	}
	if _, err := e.deleteSessions(ctx, user.ID, ""); err != nil {
		return user.ID, e.fail(ctx, "password_reset", user.ID, err)
	}
	return user.ID, nil
}

// Invite creates a password-less account for email, or re-issues the code of a
// pending invitation, and returns the invite code. Accounts that already have
// a password or a linked provider yield ErrEmailUsed.
func (e *Engine) Invite(ctx context.Context, email string) (*IssuedCode, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	from := originFromContext(ctx)

	issued, err := e.invite(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrTooManyRequests) {
			e.metricInc(MetricCodeRateLimited)
		}
		e.metricInc(MetricInvitationFailure)
		e.emitAudit(ctx, from, auditEventInvitationFailure, false, "", "", err, nil)
		return nil, err
	}
	e.metricInc(MetricInvitationSent)
	e.emitAudit(ctx, from, auditEventInvitationSent, true, issued.UserID, "", nil, nil)
	return issued, nil
}

func (e *Engine) invite(ctx context.Context, email string) (*IssuedCode, error) {
	if err := e.rules.checkEmail(email); err != nil {
		return nil, err
	}

	user, err := e.findByEmail(ctx, email)
	switch {
	case err == nil:
		if user.HasPassword() || len(user.Providers) > 0 {
			return nil, ErrEmailUsed
		}
		return e.issueSlot(ctx, "invite", user, code.KindInvite)
	case !errors.Is(err, ErrUserNotFound):
		return nil, e.fail(ctx, "invite", "", err)
	}

	slot, err := e.codes.Issue(code.Slot{}, code.KindInvite)
	if err != nil {
		return nil, e.fail(ctx, "invite", "", err)
	}
	user = &User{
		ID:        e.newID(),
		Email:     email,
		Codes:     map[code.Kind]code.Slot{code.KindInvite: slot},
		CreatedAt: e.now().UTC(),
	}
	if err := e.storage.Create(ctx, user); err != nil {
		if errors.Is(err, ErrRecordExists) {
			return nil, ErrEmailUsed
		}
		return nil, e.fail(ctx, "invite", user.ID, err)
	}
	return &IssuedCode{UserID: user.ID, Email: user.Email, Kind: code.KindInvite, Code: slot.Value}, nil
}

// AcceptInvitation consumes an invite code, sets the password, marks the email
// verified and signs the user in from the current request.
func (ac *AuthContext) AcceptInvitation(ctx context.Context, email, supplied, newPassword string) (*SignResult, error) {
	e := ac.engine
	if err := e.ready(); err != nil {
		return nil, err
	}

	res, err := ac.acceptInvitation(ctx, Credentials{Email: email, Password: newPassword}, supplied)
	if err != nil {
		e.metricInc(MetricInvitationFailure)
		e.emitAudit(ctx, ac.from, auditEventInvitationFailure, false, "", "", err, nil)
		return nil, err
	}
	e.metricInc(MetricInvitationAccepted)
	e.emitAudit(ctx, ac.from, auditEventInvitationAccepted, true, res.User.ID, res.Session.Hash, nil, nil)
	return res, nil
}

func (ac *AuthContext) acceptInvitation(ctx context.Context, creds Credentials, supplied string) (*SignResult, error) {
	e := ac.engine

	creds, err := e.rules.checkCredentials(creds)
	if err != nil {
		return nil, err
	}
	user, err := e.findByEmail(ctx, creds.Email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, e.fail(ctx, "accept_invitation", "", err)
	}

	slot, err := e.codes.Consume(user.Slot(code.KindInvite), code.KindInvite, supplied)
	if err != nil {
		return nil, consumeError(err, ErrInvitationNotFound, ErrInvalidInvitationCode)
	}

	fp, err := ac.fingerprintRequest()
	if err != nil {
		return nil, err
	}

	hash, err := e.pool.Hash(ctx, creds.Password)
	if err != nil {
		return nil, e.fail(ctx, "accept_invitation", user.ID, err)
	}
	verified := true
	patch := UserPatch{
		PasswordHash: &hash,
		Verified:     &verified,
		Codes:        map[code.Kind]code.Slot{code.KindInvite: slot},
	}
	if err := e.storage.Update(ctx, user.ID, patch); err != nil {
		return nil, e.fail(ctx, "accept_invitation", user.ID, err)
	}
	patch.Apply(user)

	return ac.establish(ctx, "accept_invitation", user, fp, false)
}

// RequestEmailConfirmation issues a confirm_email code for the signed-in user.
func (ac *AuthContext) RequestEmailConfirmation(ctx context.Context) (*IssuedCode, error) {
	e := ac.engine
	if err := e.ready(); err != nil {
		return nil, err
	}

	issued, userID, err := ac.requestEmailConfirmation(ctx)
	if err != nil {
		if errors.Is(err, ErrTooManyRequests) {
			e.metricInc(MetricCodeRateLimited)
		}
		e.emitAudit(ctx, ac.from, auditEventEmailConfirmationRequest, false, userID, "", err, nil)
		return nil, err
	}
	e.metricInc(MetricEmailConfirmationRequest)
	e.emitAudit(ctx, ac.from, auditEventEmailConfirmationRequest, true, userID, "", nil, nil)
	return issued, nil
}

func (ac *AuthContext) requestEmailConfirmation(ctx context.Context) (*IssuedCode, string, error) {
	id, err := ac.GetUser(ctx, GetUserOptions{})
	if err != nil {
		return nil, "", err
	}
	if err := ac.checkCSRF(); err != nil {
		return nil, id.User.ID, err
	}
	if id.User.Verified {
		return nil, id.User.ID, ErrAlreadyVerified
	}
	issued, err := ac.engine.issueSlot(ctx, "email_confirmation_request", id.User, code.KindConfirmEmail)
	return issued, id.User.ID, err
}

// ConfirmEmail consumes a confirm_email code and marks the user verified.
func (ac *AuthContext) ConfirmEmail(ctx context.Context, supplied string) error {
	e := ac.engine
	if err := e.ready(); err != nil {
		return err
	}

	userID, err := ac.confirmEmail(ctx, supplied)
	if err != nil {
		e.metricInc(MetricEmailConfirmationFailure)
		e.emitAudit(ctx, ac.from, auditEventEmailConfirmationFailure, false, userID, "", err, nil)
		return err
	}
	e.metricInc(MetricEmailConfirmationSuccess)
	e.emitAudit(ctx, ac.from, auditEventEmailConfirmationConfirm, true, userID, "", nil, nil)
	return nil
}

func (ac *AuthContext) confirmEmail(ctx context.Context, supplied string) (string, error) {
	e := ac.engine

	id, err := ac.GetUser(ctx, GetUserOptions{})
	if err != nil {
		return "", err
	}
	user := id.User
	if err := ac.checkCSRF(); err != nil {
		return user.ID, err
	}
	if user.Verified {
		return user.ID, ErrAlreadyVerified
	}

	slot, err := e.codes.Consume(user.Slot(code.KindConfirmEmail), code.KindConfirmEmail, supplied)
	if err != nil {
		return user.ID, consumeError(err, ErrConfirmationCodeNotFound, ErrInvalidConfirmationCode)
	}
	verified := true
	patch := UserPatch{
		Verified: &verified,
		Codes:    map[code.Kind]code.Slot{code.KindConfirmEmail: slot},
	}
	if err := e.storage.Update(ctx, user.ID, patch); err != nil {
		return user.ID, e.fail(ctx, "confirm_email", user.ID, err)
	}
	patch.Apply(user)
	return user.ID, nil
}

// issueFor looks up email and issues a code of kind for it.
func (e *Engine) issueFor(ctx context.Context, op, email string, kind code.Kind) (*IssuedCode, error) {
	if err := e.rules.checkEmail(email); err != nil {
		return nil, err
	}
	user, err := e.findByEmail(ctx, email)
	if err != nil {
		return nil, e.fail(ctx, op, "", err)
	}
	return e.issueSlot(ctx, op, user, kind)
}

func (e *Engine) issueSlot(ctx context.Context, op string, user *User, kind code.Kind) (*IssuedCode, error) {
	slot, err := e.codes.Issue(user.Slot(kind), kind)
	if err != nil {
		return nil, e.fail(ctx, op, user.ID, err)
	}
	if err := e.storage.Update(ctx, user.ID, UserPatch{Codes: map[code.Kind]code.Slot{kind: slot}}); err != nil {
		return nil, e.fail(ctx, op, user.ID, err)
	}
	return &IssuedCode{UserID: user.ID, Email: user.Email, Kind: kind, Code: slot.Value}, nil
}
