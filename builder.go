package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/code"
	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/sso"
	"github.com/MrEthical07/authcore/token"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. A Builder can be used for one Build only.
type Builder struct {
	config    Config
	storage   Storage
	logger    *zap.Logger
	auditSink AuditSink
	verifiers []sso.Verifier
	limiter   LoginLimiter
	redis     redis.UniversalClient
	hasher    password.Hasher
	clock     func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStorage sets the persistence backend. Required.
func (b *Builder) WithStorage(s Storage) *Builder {
	b.storage = s
	return b
}

func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets where audit events go when Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithSSO registers provider verifiers.
func (b *Builder) WithSSO(verifiers ...sso.Verifier) *Builder {
	b.verifiers = append(b.verifiers, verifiers...)
	return b
}

// WithLoginLimiter overrides the limiter chosen from Config.Security.
func (b *Builder) WithLoginLimiter(l LoginLimiter) *Builder {
	b.limiter = l
	return b
}

// WithRedis makes login throttling share counters through client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithHasher replaces the hasher selected by Config.Password.Algorithm.
func (b *Builder) WithHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

// WithClock overrides the time source of tokens, sessions and codes.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// Build validates the configuration and wires the Engine. Call Start on the
// result before serving.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.storage == nil {
		return nil, errors.New("storage required")
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}
	log := b.logger
	if log == nil {
		log = zap.NewNop()
	}

	hasher := b.hasher
	if hasher == nil {
		var err error
		hasher, err = newHasher(cfg.Password)
		if err != nil {
			return nil, err
		}
	}

	tokens, err := token.NewManager(token.Config{
		PrivateKey: cfg.Token.PrivateKey,
		PublicKey:  cfg.Token.PublicKey,
		Issuer:     cfg.Token.Issuer,
		Audience:   cfg.Token.Audience,
		Leeway:     cfg.Token.Leeway,
		KeyID:      cfg.Token.KeyID,
		Now:        clock,
	})
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}

	rules, err := newFormatRules(cfg)
	if err != nil {
		return nil, err
	}

	limiter := b.limiter
	if limiter == nil && cfg.Security.LoginThrottle {
		rc := rate.Config{
			EnableIPThrottle:      cfg.Security.ThrottleByIP,
			MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
		}
		if b.redis != nil {
			limiter = rate.NewRedis(b.redis, rc)
		} else {
			limiter = rate.NewMemory(rc)
		}
	}

	e := &Engine{
		config:      cfg,
		storage:     b.storage,
		pool:        password.NewPool(hasher, cfg.Password.Workers),
		tokens:      tokens,
		fingerprint: session.NewFingerprinter(),
		sessions:    session.NewRegistry(cfg.Session.MaxPerUser),
		codes: code.NewIssuer(code.Delays{
			code.KindResetPassword: cfg.Codes.ResetDelay,
			code.KindConfirmEmail:  cfg.Codes.ConfirmDelay,
			code.KindInvite:        cfg.Codes.InviteDelay,
		}, code.WithClock(clock)),
		sso:     sso.NewRegistry(b.verifiers...),
		limiter: limiter,
		rules:   rules,
		metrics: NewMetrics(cfg.Metrics),
		logger:  log.Named("authcore"),
		clock:   clock,
		newID:   uuid.NewString,
	}

	auditLog := e.logger.Named("audit")
	e.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     auditLog,
		OnDrop: func(ev AuditEvent) {
			auditLog.Debug("audit event dropped", zap.String("event", string(ev.Kind)))
		},
	}, b.auditSink)

	b.built = true
	return e, nil
}

func newHasher(cfg PasswordConfig) (password.Hasher, error) {
	switch cfg.Algorithm {
	case PasswordArgon2id:
		return password.NewArgon2(cfg.Argon2)
	default:
		return password.NewBcrypt(cfg.BcryptCost)
	}
}
