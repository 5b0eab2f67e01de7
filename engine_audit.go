package authcore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/internal/audit"
)

const (
	auditEventSignupSuccess            audit.Kind = "signup_success"
	auditEventSignupFailure            audit.Kind = "signup_failure"
	auditEventSigninSuccess            audit.Kind = "signin_success"
	auditEventSigninFailure            audit.Kind = "signin_failure"
	auditEventSigninRateLimited        audit.Kind = "signin_rate_limited"
	auditEventSSOSuccess               audit.Kind = "sso_success"
	auditEventSSOFailure               audit.Kind = "sso_failure"
	auditEventRefreshSuccess           audit.Kind = "refresh_success"
	auditEventRefreshFailure           audit.Kind = "refresh_failure"
	auditEventSignout                  audit.Kind = "signout"
	auditEventSignoutAll               audit.Kind = "signout_all"
	auditEventSessionRevoked           audit.Kind = "session_revoked"
	auditEventSessionEvicted           audit.Kind = "session_evicted"
	auditEventPasswordChangeSuccess    audit.Kind = "password_change_success"
	auditEventPasswordChangeFailure    audit.Kind = "password_change_failure"
	auditEventPasswordResetRequest     audit.Kind = "password_reset_request"
	auditEventPasswordResetConfirm     audit.Kind = "password_reset_confirm"
	auditEventPasswordResetFailure     audit.Kind = "password_reset_failure"
	auditEventEmailConfirmationRequest audit.Kind = "email_confirmation_request"
	auditEventEmailConfirmationConfirm audit.Kind = "email_confirmation_confirm"
	auditEventEmailConfirmationFailure audit.Kind = "email_confirmation_failure"
	auditEventInvitationSent           audit.Kind = "invitation_sent"
	auditEventInvitationAccepted       audit.Kind = "invitation_accepted"
	auditEventInvitationFailure        audit.Kind = "invitation_failure"
)

// origin is the request metadata attached to audit events.
type origin struct {
	ip        string
	userAgent string
}

func (e *Engine) emitAudit(
	ctx context.Context,
	from origin,
	kind audit.Kind,
	success bool,
	userID string,
	sessionHash string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		Kind:      kind,
		UserID:    userID,
		Session:   sessionHash,
		IP:        from.ip,
		UserAgent: from.userAgent,
		Success:   success,
		Metadata:  metadata,
	}
	// Only the wire code is recorded; raw errors may carry storage details.
	event.Error = Code(err)

	e.audit.Emit(ctx, event)
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}
