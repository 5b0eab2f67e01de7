// Package config loads the service configuration of authctl: a YAML file
// overlaid with AUTHCORE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "AUTHCORE_"

const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

type Config struct {
	Env      string `yaml:"env" env:"ENV"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	Server       ServerConfig       `yaml:"server" envPrefix:"SERVER_"`
	Storage      StorageConfig      `yaml:"storage" envPrefix:"STORAGE_"`
	Redis        RedisConfig        `yaml:"redis" envPrefix:"REDIS_"`
	Keys         KeysConfig         `yaml:"keys" envPrefix:"KEYS_"`
	Token        TokenConfig        `yaml:"token" envPrefix:"TOKEN_"`
	Session      SessionConfig      `yaml:"session" envPrefix:"SESSION_"`
	Password     PasswordConfig     `yaml:"password" envPrefix:"PASSWORD_"`
	Email        EmailConfig        `yaml:"email" envPrefix:"EMAIL_"`
	Codes        CodesConfig        `yaml:"codes" envPrefix:"CODES_"`
	Registration RegistrationConfig `yaml:"registration" envPrefix:"REGISTRATION_"`
	Cookie       CookieConfig       `yaml:"cookie" envPrefix:"COOKIE_"`
	Security     SecurityConfig     `yaml:"security" envPrefix:"SECURITY_"`
	Audit        AuditConfig        `yaml:"audit" envPrefix:"AUDIT_"`
	Metrics      MetricsConfig      `yaml:"metrics" envPrefix:"METRICS_"`
	Google       GoogleConfig       `yaml:"google" envPrefix:"GOOGLE_"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr" env:"ADDR"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// TrustProxy makes the router take the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxy bool `yaml:"trust_proxy" env:"TRUST_PROXY"`
	// AdminToken enables the invitation endpoint for bearers of this token.
	AdminToken string `yaml:"admin_token" env:"ADMIN_TOKEN"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`
	// DSN is the PostgreSQL connection string.
	DSN     string `yaml:"dsn" env:"DSN"`
	Migrate bool   `yaml:"migrate" env:"MIGRATE"`
}

// RedisConfig is used by the redis storage driver and, when Addr is set, by
// login throttling.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	Prefix   string `yaml:"prefix" env:"PREFIX"`
}

// KeysConfig locates the signing material. Inline PEM wins over files.
type KeysConfig struct {
	PrivateKeyFile string `yaml:"private_key_file" env:"PRIVATE_KEY_FILE"`
	PublicKeyFile  string `yaml:"public_key_file" env:"PUBLIC_KEY_FILE"`
	PrivateKeyPEM  string `yaml:"private_key_pem" env:"PRIVATE_KEY_PEM"`
	PublicKeyPEM   string `yaml:"public_key_pem" env:"PUBLIC_KEY_PEM"`
	RefreshSecret  string `yaml:"refresh_secret" env:"REFRESH_SECRET"`
	CSRFSecret     string `yaml:"csrf_secret" env:"CSRF_SECRET"`
}

type TokenConfig struct {
	Issuer     string        `yaml:"issuer" env:"ISSUER"`
	Audience   string        `yaml:"audience" env:"AUDIENCE"`
	AccessTTL  time.Duration `yaml:"access_ttl" env:"ACCESS_TTL"`
	CSRFMaxAge time.Duration `yaml:"csrf_max_age" env:"CSRF_MAX_AGE"`
	Leeway     time.Duration `yaml:"leeway" env:"LEEWAY"`
	KeyID      string        `yaml:"key_id" env:"KEY_ID"`
}

type SessionConfig struct {
	MaxPerUser int `yaml:"max_per_user" env:"MAX_PER_USER"`
}

type PasswordConfig struct {
	Algorithm     string `yaml:"algorithm" env:"ALGORITHM"`
	BcryptCost    int    `yaml:"bcrypt_cost" env:"BCRYPT_COST"`
	Workers       int    `yaml:"workers" env:"WORKERS"`
	MinLength     int    `yaml:"min_length" env:"MIN_LENGTH"`
	MaxLength     int    `yaml:"max_length" env:"MAX_LENGTH"`
	RequireLetter bool   `yaml:"require_letter" env:"REQUIRE_LETTER"`
	RequireDigit  bool   `yaml:"require_digit" env:"REQUIRE_DIGIT"`
}

type EmailConfig struct {
	Pattern string `yaml:"pattern" env:"PATTERN"`
}

type CodesConfig struct {
	ResetDelay   time.Duration `yaml:"reset_delay" env:"RESET_DELAY"`
	ConfirmDelay time.Duration `yaml:"confirm_delay" env:"CONFIRM_DELAY"`
	InviteDelay  time.Duration `yaml:"invite_delay" env:"INVITE_DELAY"`
}

type RegistrationConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

type CookieConfig struct {
	AccessName  string        `yaml:"access_name" env:"ACCESS_NAME"`
	RefreshName string        `yaml:"refresh_name" env:"REFRESH_NAME"`
	Domain      string        `yaml:"domain" env:"DOMAIN"`
	Path        string        `yaml:"path" env:"PATH"`
	Secure      bool          `yaml:"secure" env:"SECURE"`
	CrossOrigin bool          `yaml:"cross_origin" env:"CROSS_ORIGIN"`
	CSRFHeader  string        `yaml:"csrf_header" env:"CSRF_HEADER"`
	MaxAge      time.Duration `yaml:"max_age" env:"MAX_AGE"`
}

type SecurityConfig struct {
	LoginThrottle    bool          `yaml:"login_throttle" env:"LOGIN_THROTTLE"`
	ThrottleByIP     bool          `yaml:"throttle_by_ip" env:"THROTTLE_BY_IP"`
	MaxLoginAttempts int           `yaml:"max_login_attempts" env:"MAX_LOGIN_ATTEMPTS"`
	LoginCooldown    time.Duration `yaml:"login_cooldown" env:"LOGIN_COOLDOWN"`
}

// AuditConfig routes audit events. Sink is "log" (zap), "stdout" (JSON lines)
// or "none".
type AuditConfig struct {
	Sink       string `yaml:"sink" env:"SINK"`
	BufferSize int    `yaml:"buffer_size" env:"BUFFER_SIZE"`
	DropIfFull bool   `yaml:"drop_if_full" env:"DROP_IF_FULL"`
}

type MetricsConfig struct {
	Enabled           bool `yaml:"enabled" env:"ENABLED"`
	LatencyHistograms bool `yaml:"latency_histograms" env:"LATENCY_HISTOGRAMS"`
}

// GoogleConfig enables Google sign-in when ClientIDs is non-empty.
type GoogleConfig struct {
	ClientIDs []string `yaml:"client_ids" env:"CLIENT_IDS" envSeparator:","`
	JWKSURL   string   `yaml:"jwks_url" env:"JWKS_URL"`
}

// Default mirrors authcore.DefaultConfig plus service defaults.
func Default() Config {
	d := authcore.DefaultConfig()
	return Config{
		Env:      "dev",
		LogLevel: "info",
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Storage: StorageConfig{Driver: DriverMemory},
		Redis:   RedisConfig{Prefix: "ac"},
		Token: TokenConfig{
			Issuer:     d.Token.Issuer,
			Audience:   d.Token.Audience,
			AccessTTL:  d.Token.AccessTTL,
			CSRFMaxAge: d.Token.CSRFMaxAge,
			Leeway:     d.Token.Leeway,
			KeyID:      d.Token.KeyID,
		},
		Session: SessionConfig{MaxPerUser: d.Session.MaxPerUser},
		Password: PasswordConfig{
			Algorithm:     d.Password.Algorithm,
			BcryptCost:    d.Password.BcryptCost,
			Workers:       d.Password.Workers,
			MinLength:     d.Password.MinLength,
			MaxLength:     d.Password.MaxLength,
			RequireLetter: d.Password.RequireLetter,
			RequireDigit:  d.Password.RequireDigit,
		},
		Email: EmailConfig{Pattern: d.Email.Pattern},
		Codes: CodesConfig{
			ResetDelay:   d.Codes.ResetDelay,
			ConfirmDelay: d.Codes.ConfirmDelay,
			InviteDelay:  d.Codes.InviteDelay,
		},
		Registration: RegistrationConfig{Enabled: d.Registration.Enabled},
		Cookie: CookieConfig{
			AccessName:  d.Cookie.AccessName,
			RefreshName: d.Cookie.RefreshName,
			Domain:      d.Cookie.Domain,
			Path:        d.Cookie.Path,
			Secure:      d.Cookie.Secure,
			CrossOrigin: d.Cookie.CrossOrigin,
			CSRFHeader:  d.Cookie.CSRFHeader,
			MaxAge:      d.Cookie.MaxAge,
		},
		Security: SecurityConfig{
			LoginThrottle:    d.Security.LoginThrottle,
			ThrottleByIP:     d.Security.ThrottleByIP,
			MaxLoginAttempts: d.Security.MaxLoginAttempts,
			LoginCooldown:    d.Security.LoginCooldownDuration,
		},
		Audit: AuditConfig{
			Sink:       "log",
			BufferSize: d.Audit.BufferSize,
			DropIfFull: d.Audit.DropIfFull,
		},
		Metrics: MetricsConfig{
			Enabled:           d.Metrics.Enabled,
			LatencyHistograms: d.Metrics.EnableLatencyHistograms,
		},
	}
}

// Load reads path (optional; "" skips the file) over [Default] and then applies
// environment overrides.
func Load(path string) (*Config, error) {
	return load(path, nil)
}

// load takes an explicit environment map for tests; nil means the process
// environment.
func load(path string, environ map[string]string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks service-level settings. Engine settings are checked by
// authcore.Config.Validate once keys are loaded.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr required")
	}
	switch strings.ToLower(c.Storage.Driver) {
	case DriverMemory:
	case DriverRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis.addr required by the redis storage driver")
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn required by the postgres storage driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Audit.Sink {
	case "log", "stdout", "none":
	default:
		return fmt.Errorf("unknown audit sink %q", c.Audit.Sink)
	}
	return nil
}

// Engine converts c into an authcore.Config, reading key files as needed.
func (c *Config) Engine() (authcore.Config, error) {
	out := authcore.DefaultConfig()

	priv, err := pemSource(c.Keys.PrivateKeyPEM, c.Keys.PrivateKeyFile)
	if err != nil {
		return out, fmt.Errorf("private key: %w", err)
	}
	pub, err := pemSource(c.Keys.PublicKeyPEM, c.Keys.PublicKeyFile)
	if err != nil {
		return out, fmt.Errorf("public key: %w", err)
	}

	out.Token.PrivateKey = priv
	out.Token.PublicKey = pub
	out.Token.RefreshSecret = []byte(c.Keys.RefreshSecret)
	out.Token.CSRFSecret = []byte(c.Keys.CSRFSecret)
	out.Token.Issuer = c.Token.Issuer
	out.Token.Audience = c.Token.Audience
	out.Token.AccessTTL = c.Token.AccessTTL
	out.Token.CSRFMaxAge = c.Token.CSRFMaxAge
	out.Token.Leeway = c.Token.Leeway
	out.Token.KeyID = c.Token.KeyID

	out.Session.MaxPerUser = c.Session.MaxPerUser

	out.Password.Algorithm = c.Password.Algorithm
	out.Password.BcryptCost = c.Password.BcryptCost
	out.Password.Workers = c.Password.Workers
	out.Password.MinLength = c.Password.MinLength
	out.Password.MaxLength = c.Password.MaxLength
	out.Password.RequireLetter = c.Password.RequireLetter
	out.Password.RequireDigit = c.Password.RequireDigit

	out.Email.Pattern = c.Email.Pattern

	out.Codes.ResetDelay = c.Codes.ResetDelay
	out.Codes.ConfirmDelay = c.Codes.ConfirmDelay
	out.Codes.InviteDelay = c.Codes.InviteDelay

	out.Registration.Enabled = c.Registration.Enabled

	out.Cookie = authcore.CookieConfig{
		AccessName:  c.Cookie.AccessName,
		RefreshName: c.Cookie.RefreshName,
		Domain:      c.Cookie.Domain,
		Path:        c.Cookie.Path,
		Secure:      c.Cookie.Secure,
		CrossOrigin: c.Cookie.CrossOrigin,
		CSRFHeader:  c.Cookie.CSRFHeader,
		MaxAge:      c.Cookie.MaxAge,
	}

	out.Security = authcore.SecurityConfig{
		LoginThrottle:         c.Security.LoginThrottle,
		ThrottleByIP:          c.Security.ThrottleByIP,
		MaxLoginAttempts:      c.Security.MaxLoginAttempts,
		LoginCooldownDuration: c.Security.LoginCooldown,
	}

	out.Audit = authcore.AuditConfig{
		Enabled:    c.Audit.Sink != "none",
		BufferSize: c.Audit.BufferSize,
		DropIfFull: c.Audit.DropIfFull,
	}
	out.Metrics = authcore.MetricsConfig{
		Enabled:                 c.Metrics.Enabled,
		EnableLatencyHistograms: c.Metrics.LatencyHistograms,
	}

	if err := out.Validate(); err != nil {
		return out, err
	}
	return out, nil
}

func pemSource(inline, file string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	if file == "" {
		return nil, errors.New("not configured")
	}
	return os.ReadFile(file)
}
