package authcore

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/token"
)

// Config is the full Engine configuration. Start from [DefaultConfig] and override.
type Config struct {
	Token        TokenConfig
	Session      SessionConfig
	Password     PasswordConfig
	Email        EmailConfig
	Codes        CodesConfig
	Registration RegistrationConfig
	Cookie       CookieConfig
	Security     SecurityConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig holds signing material and token lifetimes.
type TokenConfig struct {
	// PrivateKey and PublicKey are PEM encoded P-256 keys.
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	// Leeway tolerates clock skew when judging access-token expiry. At most two minutes.
	Leeway time.Duration
	// KeyID, when set, is stamped as the kid header and required on verification.
	KeyID string
	// RefreshSecret keys the refresh-token HMAC.
	RefreshSecret []byte
	// CSRFSecret keys the CSRF HMAC. CSRFMaxAge of token.NoExpiry disables the age check.
	CSRFSecret []byte
	CSRFMaxAge time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	MaxPerUser int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the hashing algorithm and the accepted password format.
type PasswordConfig struct {
	Algorithm  string // "bcrypt" (default) or "argon2id"
	BcryptCost int
	Argon2     password.Config
	// Workers sizes the hashing pool; <= 0 uses every CPU.
	Workers       int
	MinLength     int
	MaxLength     int
	RequireLetter bool
	RequireDigit  bool
}

const (
	PasswordBcrypt   = "bcrypt"
	PasswordArgon2id = "argon2id"
)

/*
====================================
EMAIL CONFIG
====================================
*/

type EmailConfig struct {
	Pattern string
}

/*
====================================
CODES CONFIG
====================================
*/

// CodesConfig sets the minimum delay between two sends of the same code kind.
type CodesConfig struct {
	ResetDelay   time.Duration
	ConfirmDelay time.Duration
	InviteDelay  time.Duration
}

/*
====================================
REGISTRATION CONFIG
====================================
*/

type RegistrationConfig struct {
	Enabled bool
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig controls the token cookies. CrossOrigin relaxes SameSite to None
// and turns on CSRF enforcement for Refresh.
type CookieConfig struct {
	AccessName  string
	RefreshName string
	Domain      string
	Path        string
	Secure      bool
	CrossOrigin bool
	CSRFHeader  string
	MaxAge      time.Duration
}

// SameSite returns the SameSite mode for token cookies.
func (c CookieConfig) SameSite() http.SameSite {
	if c.CrossOrigin {
		return http.SameSiteNoneMode
	}
	return http.SameSiteStrictMode
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig tunes failed-login throttling.
type SecurityConfig struct {
	LoginThrottle         bool
	ThrottleByIP          bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultEmailPattern accepts anything shaped like local@domain.tld.
const DefaultEmailPattern = `^[^\s@]+@[^\s@]+\.[^\s@]+$`

// DefaultConfig returns the baseline configuration. Keys and secrets are empty.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			Issuer:     token.DefaultIssuer,
			AccessTTL:  15 * time.Minute,
			CSRFMaxAge: time.Hour,
		},
		Session: SessionConfig{
			MaxPerUser: session.DefaultMaxPerUser,
		},
		Password: PasswordConfig{
			Algorithm:     PasswordBcrypt,
			BcryptCost:    password.DefaultBcryptCost,
			Argon2:        password.DefaultArgon2Config(),
			MinLength:     6,
			MaxLength:     72,
			RequireLetter: true,
			RequireDigit:  true,
		},
		Email: EmailConfig{
			Pattern: DefaultEmailPattern,
		},
		Codes: CodesConfig{
			ResetDelay:   time.Minute,
			ConfirmDelay: time.Minute,
			InviteDelay:  time.Minute,
		},
		Registration: RegistrationConfig{
			Enabled: true,
		},
		Cookie: CookieConfig{
			AccessName:  "access_token",
			RefreshName: "refresh_token",
			Path:        "/",
			Secure:      true,
			CSRFHeader:  "x-csrf-token",
			MaxAge:      30 * 24 * time.Hour,
		},
		Security: SecurityConfig{
			LoginThrottle:         false,
			ThrottleByIP:          true,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	out.Token.RefreshSecret = cloneBytes(cfg.Token.RefreshSecret)
	out.Token.CSRFSecret = cloneBytes(cfg.Token.CSRFSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Token
	if len(c.Token.PrivateKey) == 0 {
		return errors.New("Token PrivateKey is required")
	}
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be within [0, 2m]")
	}
	if c.Token.Issuer == "" {
		return errors.New("Token Issuer is required")
	}
	if len(c.Token.RefreshSecret) < 32 {
		return errors.New("Token RefreshSecret must be at least 32 bytes")
	}
	if c.Cookie.CrossOrigin && len(c.Token.CSRFSecret) < 32 {
		return errors.New("Token CSRFSecret must be at least 32 bytes in cross-origin mode")
	}
	if c.Token.CSRFMaxAge <= 0 && c.Token.CSRFMaxAge != token.NoExpiry {
		return errors.New("Token CSRFMaxAge must be > 0 or token.NoExpiry")
	}

	// Session
	if c.Session.MaxPerUser <= 0 {
		return errors.New("Session MaxPerUser must be > 0")
	}

	// Password
	switch c.Password.Algorithm {
	case PasswordBcrypt, PasswordArgon2id:
	default:
		return fmt.Errorf("unsupported password algorithm %q", c.Password.Algorithm)
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}
	if c.Password.Algorithm == PasswordBcrypt && c.Password.MaxLength > 72 {
		return errors.New("Password MaxLength must be <= 72 with bcrypt")
	}

	// Email
	if _, err := regexp.Compile(c.Email.Pattern); err != nil || c.Email.Pattern == "" {
		return errors.New("Email Pattern must be a valid regular expression")
	}

	// Codes
	if c.Codes.ResetDelay < 0 || c.Codes.ConfirmDelay < 0 || c.Codes.InviteDelay < 0 {
		return errors.New("Codes delays must be >= 0")
	}

	// Cookie
	if c.Cookie.AccessName == "" || c.Cookie.RefreshName == "" {
		return errors.New("Cookie names are required")
	}
	if c.Cookie.AccessName == c.Cookie.RefreshName {
		return errors.New("Cookie AccessName and RefreshName must differ")
	}
	if c.Cookie.CrossOrigin && !c.Cookie.Secure {
		return errors.New("Cookie Secure is required in cross-origin mode")
	}
	if c.Cookie.CrossOrigin && c.Cookie.CSRFHeader == "" {
		return errors.New("Cookie CSRFHeader is required in cross-origin mode")
	}
	if c.Cookie.MaxAge < 0 {
		return errors.New("Cookie MaxAge must be >= 0")
	}

	// Security
	if c.Security.LoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return errors.New("Security MaxLoginAttempts must be > 0")
		}
		if c.Security.LoginCooldownDuration <= 0 {
			return errors.New("Security LoginCooldownDuration must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
