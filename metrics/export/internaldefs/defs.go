package internaldefs

import "github.com/MrEthical07/authcore"

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for exporters.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authcore.MetricSignupSuccess, Name: "authcore_signup_success_total", Help: "Accounts created by password signup."},
	{ID: authcore.MetricSignupFailure, Name: "authcore_signup_failure_total", Help: "Rejected password signups."},
	{ID: authcore.MetricSigninSuccess, Name: "authcore_signin_success_total", Help: "Successful password signins."},
	{ID: authcore.MetricSigninFailure, Name: "authcore_signin_failure_total", Help: "Failed password signins."},
	{ID: authcore.MetricSigninRateLimited, Name: "authcore_signin_rate_limited_total", Help: "Signins refused by the login throttle."},
	{ID: authcore.MetricSSOSuccess, Name: "authcore_sso_success_total", Help: "Successful provider signins."},
	{ID: authcore.MetricSSOFailure, Name: "authcore_sso_failure_total", Help: "Failed provider signins."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Access tokens reissued."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: authcore.MetricCSRFRejected, Name: "authcore_csrf_rejected_total", Help: "Cross-origin mutations with a missing or invalid CSRF token."},
	{ID: authcore.MetricSignout, Name: "authcore_signout_total", Help: "Single-session signouts."},
	{ID: authcore.MetricSignoutAll, Name: "authcore_signout_all_total", Help: "Signouts of every session."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Sessions created."},
	{ID: authcore.MetricSessionEvicted, Name: "authcore_session_evicted_total", Help: "Sessions evicted by the per-user cap."},
	{ID: authcore.MetricSessionRevoked, Name: "authcore_session_revoked_total", Help: "Requests carrying a token of a deleted session, plus explicit revocations."},
	{ID: authcore.MetricSessionMismatch, Name: "authcore_session_mismatch_total", Help: "Requests whose fingerprint differs from the token session."},
	{ID: authcore.MetricGetUserSuccess, Name: "authcore_get_user_success_total", Help: "Successful caller resolutions."},
	{ID: authcore.MetricGetUserFailure, Name: "authcore_get_user_failure_total", Help: "Failed caller resolutions."},
	{ID: authcore.MetricPasswordChangeSuccess, Name: "authcore_password_change_success_total", Help: "Password changes."},
	{ID: authcore.MetricPasswordChangeFailure, Name: "authcore_password_change_failure_total", Help: "Rejected password changes."},
	{ID: authcore.MetricPasswordResetRequest, Name: "authcore_password_reset_request_total", Help: "Reset codes issued."},
	{ID: authcore.MetricPasswordResetSuccess, Name: "authcore_password_reset_success_total", Help: "Passwords reset with a code."},
	{ID: authcore.MetricPasswordResetFailure, Name: "authcore_password_reset_failure_total", Help: "Rejected password resets."},
	{ID: authcore.MetricEmailConfirmationRequest, Name: "authcore_email_confirmation_request_total", Help: "Confirmation codes issued."},
	{ID: authcore.MetricEmailConfirmationSuccess, Name: "authcore_email_confirmation_success_total", Help: "Emails confirmed."},
	{ID: authcore.MetricEmailConfirmationFailure, Name: "authcore_email_confirmation_failure_total", Help: "Rejected email confirmations."},
	{ID: authcore.MetricInvitationSent, Name: "authcore_invitation_sent_total", Help: "Invitation codes issued."},
	{ID: authcore.MetricInvitationAccepted, Name: "authcore_invitation_accepted_total", Help: "Invitations accepted."},
	{ID: authcore.MetricInvitationFailure, Name: "authcore_invitation_failure_total", Help: "Rejected invitations or acceptances."},
	{ID: authcore.MetricCodeRateLimited, Name: "authcore_code_rate_limited_total", Help: "Code requests refused because one was sent recently."},
	{ID: authcore.MetricPasswordRehash, Name: "authcore_password_rehash_total", Help: "Stored digests upgraded to the current hashing parameters at signin."},
	{ID: authcore.MetricInternalError, Name: "authcore_internal_error_total", Help: "Operations that failed on infrastructure."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricGetUserLatency, Name: "authcore_get_user_latency_seconds", Help: "Caller resolution latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The eighth
// engine bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

const (
	AuditDroppedName = "authcore_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full or the caller gave up."

	HashPanicsName = "authcore_hash_worker_panics_total"
	HashPanicsHelp = "Password hashing jobs that panicked."
)

// NormalizeBuckets pads or truncates raw to the engine's eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
