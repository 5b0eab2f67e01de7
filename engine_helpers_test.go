package authcore_test

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/sso"
	"github.com/MrEthical07/authcore/store/memstore"
	"github.com/MrEthical07/authcore/token"
	"golang.org/x/crypto/bcrypt"
)

const (
	chromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	firefoxLinux  = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeVerifier struct {
	identities map[string]sso.Identity
}

func (f *fakeVerifier) Provider() string { return "google" }

func (f *fakeVerifier) Verify(_ context.Context, idToken string) (sso.Identity, error) {
	id, ok := f.identities[idToken]
	if !ok {
		return sso.Identity{}, sso.ErrGoogleToken
	}
	id.Provider = "google"
	return id, nil
}

type testEnv struct {
	engine *authcore.Engine
	store  *memstore.Store
	clock  *testClock
	audit  *authcore.ChannelSink
	cfg    authcore.Config
}

type envOption func(*authcore.Config, *authcore.Builder)

func withConfig(mutate func(*authcore.Config)) envOption {
	return func(c *authcore.Config, _ *authcore.Builder) { mutate(c) }
}

func withSSO(v sso.Verifier) envOption {
	return func(_ *authcore.Config, b *authcore.Builder) { b.WithSSO(v) }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	priv, pub, err := token.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}
	cfg := authcore.DefaultConfig()
	cfg.Token.PrivateKey = priv
	cfg.Token.PublicKey = pub
	cfg.Token.RefreshSecret = bytes.Repeat([]byte("r"), 32)
	cfg.Token.CSRFSecret = bytes.Repeat([]byte("c"), 32)
	cfg.Password.Workers = 2
	cfg.Audit.Enabled = true

	hasher, err := password.NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	env := &testEnv{
		store: memstore.New(),
		clock: newTestClock(),
		audit: authcore.NewChannelSink(256),
	}
	b := authcore.New().
		WithStorage(env.store).
		WithHasher(hasher).
		WithClock(env.clock.Now).
		WithAuditSink(env.audit)
	for _, opt := range opts {
		opt(&cfg, b)
	}
	b.WithConfig(cfg)

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	engine.Start()
	t.Cleanup(engine.Close)

	env.engine = engine
	env.cfg = cfg
	return env
}

// request builds a Request carrying the cookies the previous context produced.
func (env *testEnv) request(ip, ua string, prev *authcore.AuthContext) authcore.Request {
	req := authcore.Request{
		IP:        ip,
		UserAgent: ua,
		Cookies:   map[string]string{},
		Header:    http.Header{},
	}
	if prev != nil {
		written := make(map[string]bool)
		for _, c := range prev.Cookies() {
			written[c.Name] = true
			if c.MaxAge >= 0 {
				req.Cookies[c.Name] = c.Value
			}
		}
		// Cookies prev did not touch stay as the browser had them.
		for name, value := range prev.Request().Cookies {
			if !written[name] {
				req.Cookies[name] = value
			}
		}
	}
	return req
}

func (env *testEnv) signup(t *testing.T, email, pw string) (*authcore.AuthContext, *authcore.SignResult) {
	t.Helper()

	ac := env.engine.NewContext(env.request("10.0.0.1", chromeWindows, nil))
	res, err := ac.Signup(context.Background(), authcore.Credentials{Email: email, Password: pw})
	if err != nil {
		t.Fatalf("signup %s: %v", email, err)
	}
	return ac, res
}

func (env *testEnv) next(prev *authcore.AuthContext) *authcore.AuthContext {
	r := prev.Request()
	return env.engine.NewContext(env.request(r.IP, r.UserAgent, prev))
}

func (env *testEnv) drainAudit() []authcore.AuditEvent {
	var out []authcore.AuditEvent
	for {
		select {
		case ev := <-env.audit.Events():
			out = append(out, ev)
		case <-time.After(100 * time.Millisecond):
			return out
		}
	}
}
