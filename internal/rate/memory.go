package rate

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLimiter is the single-process counterpart of [RedisLimiter]. Counters
// live in a go-cache whose expiry gives the fixed window.
type MemoryLimiter struct {
	cache  *gocache.Cache
	config Config
}

// NewMemory returns a limiter that keeps counters in process memory.
func NewMemory(cfg Config) *MemoryLimiter {
	cleanup := cfg.LoginCooldownDuration
	if cleanup <= 0 {
		cleanup = time.Minute
	}
	return &MemoryLimiter{
		cache:  gocache.New(cfg.LoginCooldownDuration, cleanup),
		config: cfg,
	}
}

func (l *MemoryLimiter) Check(_ context.Context, email, ip string) error {
	for _, key := range l.keys(email, ip) {
		if v, ok := l.cache.Get(key); ok && v.(int) >= l.config.MaxLoginAttempts {
			return ErrRateLimited
		}
	}
	return nil
}

func (l *MemoryLimiter) Fail(_ context.Context, email, ip string) error {
	for _, key := range l.keys(email, ip) {
		// Add only succeeds for the first hit, which fixes the window start.
		if err := l.cache.Add(key, 1, l.config.LoginCooldownDuration); err == nil {
			continue
		}
		if _, err := l.cache.IncrementInt(key, 1); err != nil {
			l.cache.Set(key, 1, l.config.LoginCooldownDuration)
		}
	}
	return nil
}

func (l *MemoryLimiter) Reset(_ context.Context, email, ip string) error {
	for _, key := range l.keys(email, ip) {
		l.cache.Delete(key)
	}
	return nil
}

func (l *MemoryLimiter) keys(email, ip string) []string {
	keys := []string{loginEmailKey(email)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, loginIPKey(ip))
	}
	return keys
}
