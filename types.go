package authcore

import (
	"context"
	"net/http"
	"time"

	"github.com/MrEthical07/authcore/code"
	"github.com/MrEthical07/authcore/session"
)

// ProviderLink ties a user to an external identity.
type ProviderLink struct {
	Provider string `json:"provider"`
	Subject  string `json:"subject"`
}

// User is the stored identity record. Sessions are kept by the [SessionStore]
// and are never embedded here.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	// PasswordHash is empty for invited users that have not accepted yet and for
	// SSO-only users.
	PasswordHash string                  `json:"password_hash,omitempty"`
	Verified     bool                    `json:"verified"`
	Providers    []ProviderLink          `json:"providers,omitempty"`
	Codes        map[code.Kind]code.Slot `json:"codes,omitempty"`
	CreatedAt    time.Time               `json:"created_at"`
}

// HasPassword reports whether the user can sign in with a password.
func (u *User) HasPassword() bool {
	return u != nil && u.PasswordHash != ""
}

// Slot returns the stored state for a code kind.
func (u *User) Slot(kind code.Kind) code.Slot {
	if u == nil || u.Codes == nil {
		return code.Slot{}
	}
	return u.Codes[kind]
}

// LinkedTo reports whether the user is linked to provider/subject.
func (u *User) LinkedTo(provider, subject string) bool {
	if u == nil {
		return false
	}
	for _, p := range u.Providers {
		if p.Provider == provider && p.Subject == subject {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. Stores hand out clones so callers never share
// mutable state with the backing map or cache.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.Providers != nil {
		out.Providers = append([]ProviderLink(nil), u.Providers...)
	}
	if u.Codes != nil {
		out.Codes = make(map[code.Kind]code.Slot, len(u.Codes))
		for k, v := range u.Codes {
			out.Codes[k] = v
		}
	}
	return &out
}

// UserPatch lists the fields an Update writes. Nil fields are left untouched.
// Codes entries replace the stored slot for their kind only.
type UserPatch struct {
	PasswordHash *string
	Verified     *bool
	Providers    *[]ProviderLink
	Codes        map[code.Kind]code.Slot
}

// Apply writes the patch onto u in place.
func (p UserPatch) Apply(u *User) {
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.Verified != nil {
		u.Verified = *p.Verified
	}
	if p.Providers != nil {
		u.Providers = append([]ProviderLink(nil), (*p.Providers)...)
	}
	if len(p.Codes) > 0 {
		if u.Codes == nil {
			u.Codes = make(map[code.Kind]code.Slot, len(p.Codes))
		}
		for k, v := range p.Codes {
			u.Codes[k] = v
		}
	}
}

// UserStore persists users. Emails are stored lower-cased and unique.
// Missing records yield [ErrRecordNotFound]; a duplicate email on Create yields
// [ErrRecordExists].
type UserStore interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByProvider(ctx context.Context, provider, subject string) (*User, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, id string, patch UserPatch) error
	Delete(ctx context.Context, id string) error
}

// SessionStore persists the sessions of each user keyed by fingerprint hash.
// Sessions returns them in insertion order.
type SessionStore interface {
	Sessions(ctx context.Context, userID string) ([]session.Session, error)
	CreateSession(ctx context.Context, userID string, s session.Session) error
	UpdateSession(ctx context.Context, userID string, s session.Session) error
	DeleteSession(ctx context.Context, userID, hash string) error
}

// Storage is the full persistence contract of the Engine.
type Storage interface {
	UserStore
	SessionStore
}

// Credentials carry an email/password pair.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Request is the transport-neutral view of an incoming call.
type Request struct {
	IP        string
	UserAgent string
	Cookies   map[string]string
	Header    http.Header
}

// RequestFromHTTP extracts a Request from r. ip is supplied by the caller since
// proxy handling is a deployment concern.
func RequestFromHTTP(r *http.Request, ip string) Request {
	cookies := make(map[string]string)
	for _, c := range r.Cookies() {
		cookies[c.Name] = c.Value
	}
	return Request{
		IP:        ip,
		UserAgent: r.UserAgent(),
		Cookies:   cookies,
		Header:    r.Header.Clone(),
	}
}

// Identity is the resolved caller: the stored user plus request-scoped facts
// derived from the access token. Only User is ever written back to storage.
type Identity struct {
	User      *User
	Session   session.Session
	ExpiresAt time.Time
	Expired   bool
}

// SignResult is returned by every operation that establishes a session.
type SignResult struct {
	User         *User
	Session      session.Session
	NewAccount   bool
	NewSession   bool
	AccessToken  string
	RefreshToken string
	// CSRFToken is set only in cross-origin mode.
	CSRFToken string
}

// IssuedCode is a one-time code ready to be handed to the notification layer.
type IssuedCode struct {
	UserID string
	Email  string
	Kind   code.Kind
	Code   string
}
