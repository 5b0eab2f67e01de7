package authcore

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authcore/code"
	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/logger"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/sso"
	"github.com/MrEthical07/authcore/token"
	"go.uber.org/zap"
)

// LoginLimiter throttles failed sign-ins per email and IP. Check returns an
// error wrapping rate.ErrRateLimited once the budget is spent.
type LoginLimiter interface {
	Check(ctx context.Context, email, ip string) error
	Fail(ctx context.Context, email, ip string) error
	Reset(ctx context.Context, email, ip string) error
}

// Engine is the process-lifetime authentication service. Build it with [New],
// call Start before serving and Close on shutdown.
type Engine struct {
	config      Config
	storage     Storage
	pool        *password.Pool
	tokens      *token.Manager
	fingerprint *session.Fingerprinter
	sessions    *session.Registry
	codes       *code.Issuer
	sso         *sso.Registry
	limiter     LoginLimiter
	rules       *formatRules
	audit       *audit.Dispatcher
	metrics     *Metrics
	logger      *zap.Logger
	clock       func() time.Time
	newID       func() string

	started atomic.Bool
	closed  atomic.Bool
}

// Start launches the hashing workers. Calling it twice has no effect.
func (e *Engine) Start() {
	if e == nil || e.closed.Load() {
		return
	}
	e.pool.Start()
	e.started.Store(true)
	e.logger.Info("engine started",
		zap.Int("hash_workers", e.pool.Workers()),
		zap.Int("max_sessions", e.sessions.MaxPerUser()),
		zap.Strings("sso_providers", e.sso.Providers()),
	)
}

// Close stops the hashing pool and flushes the audit dispatcher. In-flight hash
// jobs complete first.
func (e *Engine) Close() {
	if e == nil || !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.pool.Close()
	if e.audit != nil {
		e.audit.Close()
	}
	_ = e.logger.Sync()
}

func (e *Engine) ready() error {
	if e == nil || !e.started.Load() || e.closed.Load() {
		return ErrEngineNotReady
	}
	return nil
}

// Certificate returns the PEM public key that verifies access tokens.
func (e *Engine) Certificate() string {
	if e == nil || e.tokens == nil {
		return ""
	}
	return e.tokens.Certificate()
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// SSOProviders lists the configured provider names.
func (e *Engine) SSOProviders() []string {
	return e.sso.Providers()
}

// HashWorkerPanics reports hashing jobs that crashed since Start.
func (e *Engine) HashWorkerPanics() uint64 {
	if e == nil || e.pool == nil {
		return 0
	}
	return e.pool.Panics()
}

// AuditDropped reports audit events dropped because the dispatcher was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// fail converts err into what the caller may see. Expected domain failures pass
// through translated. Anything else is logged with op and userID and hidden
// behind ErrInternal. An abandoned request keeps its context error.
func (e *Engine) fail(ctx context.Context, op, userID string, err error) error {
	if mapped, ok := domainError(err); ok {
		return mapped
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	e.metricInc(MetricInternalError)
	logger.From(ctx, e.logger).Error("operation failed",
		logger.Op(op),
		logger.UserID(userID),
		zap.Error(err),
	)
	return ErrInternal
}

// limiterCheck maps limiter outcomes; a limiter outage is an internal failure.
func (e *Engine) limiterCheck(ctx context.Context, email, ip string) error {
	if e.limiter == nil {
		return nil
	}
	if err := e.limiter.Check(ctx, email, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return ErrTooManyRequests
		}
		return err
	}
	return nil
}

func (e *Engine) limiterFail(ctx context.Context, email, ip string) {
	if e.limiter == nil {
		return
	}
	if err := e.limiter.Fail(ctx, email, ip); err != nil {
		e.logger.Warn("login limiter update failed", zap.Error(err))
	}
}

func (e *Engine) limiterReset(ctx context.Context, email, ip string) {
	if e.limiter == nil {
		return
	}
	if err := e.limiter.Reset(ctx, email, ip); err != nil {
		e.logger.Warn("login limiter reset failed", zap.Error(err))
	}
}

// NewContext returns the per-request AuthContext for req.
func (e *Engine) NewContext(req Request) *AuthContext {
	return newAuthContext(e, req)
}

func (e *Engine) findByEmail(ctx context.Context, email string) (*User, error) {
	u, err := e.storage.FindByEmail(ctx, email)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// deleteSessions removes every session of userID except keep.
func (e *Engine) deleteSessions(ctx context.Context, userID, keep string) (int, error) {
	list, err := e.storage.Sessions(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range list {
		if s.Hash == keep {
			continue
		}
		if err := e.storage.DeleteSession(ctx, userID, s.Hash); err != nil && !errors.Is(err, ErrRecordNotFound) {
			return n, err
		}
		n++
	}
	return n, nil
}
