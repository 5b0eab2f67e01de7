package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type loginLimiter interface {
	Check(ctx context.Context, email, ip string) error
	Fail(ctx context.Context, email, ip string) error
	Reset(ctx context.Context, email, ip string) error
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func testConfig() Config {
	return Config{
		EnableIPThrottle:      true,
		MaxLoginAttempts:      3,
		LoginCooldownDuration: time.Minute,
	}
}

func exerciseBudget(t *testing.T, l loginLimiter) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Check(ctx, "a@b.com", "10.0.0.1"); err != nil {
			t.Fatalf("attempt %d should be allowed: %v", i, err)
		}
		if err := l.Fail(ctx, "a@b.com", "10.0.0.1"); err != nil {
			t.Fatalf("Fail: %v", err)
		}
	}
	if err := l.Check(ctx, "a@b.com", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	// The IP budget is spent as well, whatever the email.
	if err := l.Check(ctx, "other@b.com", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP throttle, got %v", err)
	}
	if err := l.Check(ctx, "other@b.com", "10.0.0.2"); err != nil {
		t.Fatalf("unrelated email/IP must pass: %v", err)
	}

	if err := l.Reset(ctx, "a@b.com", "10.0.0.1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := l.Check(ctx, "a@b.com", "10.0.0.1"); err != nil {
		t.Fatalf("Reset should clear counters: %v", err)
	}
}

func TestRedisLimiterBudget(t *testing.T) {
	_, rdb := newTestRedis(t)
	exerciseBudget(t, NewRedis(rdb, testConfig()))
}

func TestMemoryLimiterBudget(t *testing.T) {
	exerciseBudget(t, NewMemory(testConfig()))
}

func TestRedisLimiterWindowExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewRedis(rdb, testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = l.Fail(ctx, "A@B.com", "")
	}
	if n, _ := l.Attempts(ctx, "a@b.com"); n != 3 {
		t.Fatalf("expected 3 attempts under lower-cased key, got %d", n)
	}
	if ttl := mr.TTL("al:a@b.com"); ttl != time.Minute {
		t.Fatalf("expected window TTL of 1m, got %v", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.Check(ctx, "a@b.com", ""); err != nil {
		t.Fatalf("window should have expired: %v", err)
	}
}

func TestRedisLimiterUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewRedis(rdb, testConfig())
	mr.Close()

	if err := l.Check(context.Background(), "a@b.com", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
