package authcore

import (
	"errors"

	"github.com/MrEthical07/authcore/code"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/sso"
)

var (
	// ErrCookies is returned when the access-token cookie is absent.
	ErrCookies = errors.New("access token cookie missing")
	// ErrInvalidAccessToken is returned when the access token signature or issuer is invalid.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrUserNotFound covers both an unknown user and a credential mismatch.
	ErrUserNotFound = errors.New("user not found")
	// ErrSession is returned for revoked, mismatched or expired sessions.
	ErrSession = errors.New("session error")
	// ErrInvalidRefreshToken is returned when the presented refresh token does not match.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrInvalidUserAgent is returned when no fingerprint can be derived from the request.
	ErrInvalidUserAgent = errors.New("invalid user agent")
	// ErrCSRF is returned when the CSRF token is missing, invalid or expired.
	ErrCSRF = errors.New("csrf token invalid")

	ErrRegistrationDisabled = errors.New("registration disabled")
	ErrEmailUsed            = errors.New("email already used")
	ErrBadPasswordFormat    = errors.New("bad password format")
	ErrBadEmailFormat       = errors.New("bad email format")

	// ErrTooManyRequests is returned when a code or login attempt is rate limited.
	ErrTooManyRequests = errors.New("too many requests")

	ErrUnknownCodeKind          = errors.New("unknown code kind")
	ErrInvalidResetCode         = errors.New("invalid reset code")
	ErrResetCodeNotFound        = errors.New("reset code not found")
	ErrInvalidConfirmationCode  = errors.New("invalid confirmation code")
	ErrConfirmationCodeNotFound = errors.New("confirmation code not found")
	ErrInvalidInvitationCode    = errors.New("invalid invitation code")
	ErrInvitationNotFound       = errors.New("invitation not found")
	// ErrAlreadyVerified is returned when confirmation is requested for a verified email.
	ErrAlreadyVerified = errors.New("email already verified")

	ErrUnknownProvider      = errors.New("unknown sso provider")
	ErrGoogleToken          = errors.New("google token error")
	ErrProviderIDMissing    = errors.New("provider id missing")
	ErrProviderEmailMissing = errors.New("provider email missing")

	// ErrInternal is the only error callers see for storage outages and worker crashes.
	ErrInternal = errors.New("internal error")
	// ErrEngineNotReady is returned when an Engine is used before Build or after Close.
	ErrEngineNotReady = errors.New("engine not ready")

	// ErrRecordNotFound is returned by Storage implementations for missing records.
	ErrRecordNotFound = errors.New("record not found")
	// ErrRecordExists is returned by Storage implementations for unique-key conflicts.
	ErrRecordExists = errors.New("record already exists")
)

// CodeInternal is the wire code of every unexpected failure.
const CodeInternal = "InternalError"

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrCookies, "CookiesError"},
	{ErrInvalidAccessToken, "InvalidAccessToken"},
	{ErrUserNotFound, "UserNotFound"},
	{ErrSession, "SessionError"},
	{ErrInvalidRefreshToken, "InvalidRefreshToken"},
	{ErrInvalidUserAgent, "InvalidUserAgent"},
	{ErrCSRF, "CSRFError"},
	{ErrRegistrationDisabled, "RegistrationDisabled"},
	{ErrEmailUsed, "EmailUsed"},
	{ErrBadPasswordFormat, "BadPasswordFormat"},
	{ErrBadEmailFormat, "BadEmailFormat"},
	{ErrTooManyRequests, "TooManyRequests"},
	{ErrUnknownCodeKind, "UnknownCodeKind"},
	{ErrInvalidResetCode, "InvalidResetCode"},
	{ErrResetCodeNotFound, "ResetCodeNotFound"},
	{ErrInvalidConfirmationCode, "InvalidConfirmationCode"},
	{ErrConfirmationCodeNotFound, "ConfirmationCodeNotFound"},
	{ErrInvalidInvitationCode, "InvalidInvitationCode"},
	{ErrInvitationNotFound, "InvitationNotFound"},
	{ErrAlreadyVerified, "AlreadyVerified"},
	{ErrUnknownProvider, "UnknownProvider"},
	{ErrGoogleToken, "GoogleTokenError"},
	{ErrProviderIDMissing, "ProviderIdMissing"},
	{ErrProviderEmailMissing, "ProviderEmailMissing"},
}

// Code returns the wire code for err. Errors outside the domain taxonomy map to
// [CodeInternal]; a nil error maps to "".
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// IsDomain reports whether err is an expected failure that callers should translate
// rather than log.
func IsDomain(err error) bool {
	c := Code(err)
	return c != "" && c != CodeInternal
}

// domainError maps sub-package sentinels onto the root taxonomy. ok is false for
// errors that are not expected domain failures.
func domainError(err error) (mapped error, ok bool) {
	switch {
	case err == nil:
		return nil, true
	case IsDomain(err):
		return err, true
	case errors.Is(err, session.ErrInvalidUserAgent):
		return ErrInvalidUserAgent, true
	case errors.Is(err, code.ErrTooManyRequests):
		return ErrTooManyRequests, true
	case errors.Is(err, code.ErrUnknownKind):
		return ErrUnknownCodeKind, true
	case errors.Is(err, sso.ErrUnknownProvider):
		return ErrUnknownProvider, true
	case errors.Is(err, sso.ErrGoogleToken):
		return ErrGoogleToken, true
	case errors.Is(err, sso.ErrProviderIDMissing):
		return ErrProviderIDMissing, true
	case errors.Is(err, sso.ErrProviderEmailMissing):
		return ErrProviderEmailMissing, true
	case errors.Is(err, password.ErrEmptyInput):
		return ErrBadPasswordFormat, true
	default:
		return nil, false
	}
}

// consumeError maps code.Issuer.Consume failures for one flow.
func consumeError(err, notIssued, mismatch error) error {
	switch {
	case errors.Is(err, code.ErrNotIssued):
		return notIssued
	case errors.Is(err, code.ErrMismatch):
		return mismatch
	case errors.Is(err, code.ErrUnknownKind):
		return ErrUnknownCodeKind
	default:
		return err
	}
}
