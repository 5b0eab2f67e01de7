package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/store/redisstore"
	"github.com/MrEthical07/authcore/token"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Measure GetUser and Refresh throughput against Redis storage",
	Long: `Seed users through Signup, then run two phases over random users:
get_user (strict resolution) and refresh. Without --redis-addr an embedded
miniredis is used.`,
	Args: cobra.NoArgs,
	RunE: runLoadtest,
}

func init() {
	f := loadtestCmd.Flags()
	f.Int("users", 1000, "number of users to seed")
	f.Int("concurrency", 64, "number of concurrent workers")
	f.Int("ops", 20000, "operations per phase")
	f.String("redis-addr", "", "redis address; empty starts miniredis")
	f.String("prefix", "lt", "storage key prefix")
}

const loadtestUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// seeded is one signed-in user: the request that established the session
// and the cookies it received.
type seeded struct {
	ip      string
	cookies map[string]string
}

func runLoadtest(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	users, _ := f.GetInt("users")
	concurrency, _ := f.GetInt("concurrency")
	ops, _ := f.GetInt("ops")
	addr, _ := f.GetString("redis-addr")
	prefix, _ := f.GetString("prefix")
	out := cmd.OutOrStdout()

	if users <= 0 || concurrency <= 0 || ops <= 0 {
		return errors.New("users, concurrency and ops must be > 0")
	}

	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Fprintf(out, "using miniredis at %s\n", addr)
	} else {
		fmt.Fprintf(out, "using redis at %s\n", addr)
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	engine, err := loadtestEngine(redisstore.New(client, redisstore.WithPrefix(prefix)))
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := cmd.Context()
	states := make([]seeded, users)
	fmt.Fprintf(out, "seeding %d users...\n", users)
	startSeed := time.Now()
	for i := range states {
		ip := fmt.Sprintf("10.%d.%d.%d", (i>>16)&0xff, (i>>8)&0xff, i&0xff)
		ac := engine.NewContext(authcore.Request{IP: ip, UserAgent: loadtestUA})
		_, err := ac.Signup(ctx, authcore.Credentials{
			Email:    fmt.Sprintf("user%d@loadtest.local", i),
			Password: "loadtest1",
		})
		if err != nil {
			return fmt.Errorf("seed user %d: %w", i, err)
		}
		states[i] = seeded{ip: ip, cookies: cookieMap(ac)}
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	getUser := runPhase(states, ops, concurrency, func(s seeded) error {
		ac := engine.NewContext(authcore.Request{IP: s.ip, UserAgent: loadtestUA, Cookies: s.cookies})
		_, err := ac.GetUser(ctx, authcore.GetUserOptions{})
		return err
	})
	refresh := runPhase(states, ops, concurrency, func(s seeded) error {
		ac := engine.NewContext(authcore.Request{IP: s.ip, UserAgent: loadtestUA, Cookies: s.cookies})
		_, err := ac.Refresh(ctx)
		return err
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "get_user", getUser)
	printStats(out, "refresh", refresh)
	return nil
}

func loadtestEngine(store authcore.Storage) (*authcore.Engine, error) {
	priv, pub, err := token.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	cfg := authcore.DefaultConfig()
	cfg.Token.PrivateKey = priv
	cfg.Token.PublicKey = pub
	cfg.Token.RefreshSecret = bytes.Repeat([]byte("l"), 32)
	cfg.Token.CSRFSecret = bytes.Repeat([]byte("t"), 32)
	cfg.Metrics.Enabled = false

	hasher, err := password.NewBcrypt(bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	engine, err := authcore.New().
		WithConfig(cfg).
		WithStorage(store).
		WithHasher(hasher).
		Build()
	if err != nil {
		return nil, err
	}
	engine.Start()
	return engine, nil
}

func cookieMap(ac *authcore.AuthContext) map[string]string {
	out := make(map[string]string, 2)
	for _, c := range ac.Cookies() {
		out[c.Name] = c.Value
	}
	return out
}

func runPhase(states []seeded, ops, concurrency int, op func(seeded) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(states[r.Intn(len(states))])
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	switch {
	case len(samples) == 0:
		return 0
	case p <= 0:
		return samples[0]
	case p >= 100:
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(w io.Writer, name string, s phaseStats) {
	fmt.Fprintf(w, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

