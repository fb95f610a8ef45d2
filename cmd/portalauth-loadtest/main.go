// Command portalauth-loadtest drives one portalAuth engine with concurrent
// logins and concurrent code verification, then prints latency percentiles,
// outcome counts and the engine's counters in Prometheus text format.
//
// Without -redis-addr or REDIS_ADDR it runs against an embedded miniredis.
package main

import (
	"context"
	"crypto/ed25519"
	crand "crypto/rand"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	portalAuth "github.com/MrEthical07/portalAuth"
	"github.com/MrEthical07/portalAuth/accountstore"
	"github.com/MrEthical07/portalAuth/metrics/export/prometheus"
	"github.com/MrEthical07/portalAuth/notify"
	"github.com/MrEthical07/portalAuth/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type seededAccount struct {
	identifier string
	secret     string
}

func main() {
	cfg, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	client, cleanup, err := openRedis(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	engineCfg, err := buildEngineConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	accounts := accountstore.NewMemory()
	fmt.Printf("seeding %d accounts...\n", cfg.Accounts)
	startSeed := time.Now()
	seeded, err := seedAccounts(ctx, accounts, engineCfg.Password, cfg.Accounts, cfg.Concurrency)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	inbox := newInbox()
	builder := portalAuth.New().
		WithConfig(engineCfg).
		WithRedis(client).
		WithAccountStore(accounts).
		WithNotifier(inbox).
		WithLogger(logger).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true)
	if cfg.SQLitePath != "" {
		builder = builder.WithSQLiteAttemptTracker(cfg.SQLitePath)
	}
	engine, err := builder.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	for _, w := range engineCfg.Lint() {
		fmt.Printf("config warning: %s\n", w.Message)
	}

	loginStats, outcomes := runLoginPhase(ctx, engine, seeded, cfg.Ops, cfg.Concurrency, cfg.WrongRatio)
	codeStats, violations := runCodeRacePhase(ctx, engine, inbox, seeded, cfg.Concurrency)

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	for _, o := range []portalAuth.Outcome{
		portalAuth.OutcomeAuthenticated,
		portalAuth.OutcomeRejected,
		portalAuth.OutcomeLocked,
		portalAuth.OutcomeAwaitingSecondFactor,
	} {
		fmt.Printf("  %-24s %d\n", o, outcomes[o])
	}
	printStats("code-race", codeStats)
	fmt.Printf("  single-use violations   %d\n", violations)

	fmt.Println("---- metrics ----")
	fmt.Print(prometheus.NewPrometheusExporter(engine).Render())

	if violations > 0 {
		os.Exit(1)
	}
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{mr.Addr()},
		})
		fmt.Printf("using miniredis at %s\n", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{addr},
	})
	fmt.Printf("using redis at %s\n", addr)
	return client, func() { _ = client.Close() }, nil
}

func buildEngineConfig(rc runConfig) (portalAuth.Config, error) {
	var cfg portalAuth.Config
	if rc.Surface == portalAuth.SurfaceAdmin {
		cfg = portalAuth.AdminConfig()
	} else {
		cfg = portalAuth.MemberConfig()
		cfg.Surface = rc.Surface
	}

	cfg.Password.Pepper = rc.Password.Pepper
	cfg.Password.Iterations = rc.Password.Iterations

	if rc.Lockout.MaxAttempts > 0 {
		cfg.Lockout.MaxAttempts = rc.Lockout.MaxAttempts
	}
	if rc.Lockout.Window != "" {
		window, err := rc.lockoutWindow()
		if err != nil {
			return cfg, err
		}
		cfg.Lockout.AttemptWindow = window
	}
	if d, err := rc.lockoutDuration(); err != nil {
		return cfg, err
	} else if d > 0 {
		cfg.Lockout.LockoutDuration = d
	}

	pub, priv, err := ed25519.GenerateKey(crand.Reader)
	if err != nil {
		return cfg, err
	}
	cfg.Assertion.PrivateKey = priv
	cfg.Assertion.PublicKey = pub
	cfg.Assertion.Issuer = "portalauth-loadtest"

	return cfg, cfg.Validate()
}

func seedAccounts(
	ctx context.Context,
	store *accountstore.Memory,
	pc portalAuth.PasswordConfig,
	n, concurrency int,
) ([]seededAccount, error) {
	hasher, err := password.NewPBKDF2(password.Config{
		Pepper:     pc.Pepper,
		Iterations: pc.Iterations,
		KeyLength:  pc.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	out := make([]seededAccount, n)
	var (
		wg       sync.WaitGroup
		cursor   int64
		firstErr error
		errOnce  sync.Once
	)
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= n {
					return
				}
				acct := seededAccount{
					identifier: fmt.Sprintf("member-%d@loadtest.local", i),
					secret:     fmt.Sprintf("Correct-horse-%d", i),
				}
				hash, err := hasher.Hash(acct.secret, acct.identifier)
				if err == nil {
					err = store.Create(ctx, accountstore.Account{
						Identifier:   acct.identifier,
						PasswordHash: hash,
						Status:       accountstore.StatusActive,
					})
				}
				if err != nil {
					errOnce.Do(func() { firstErr = err })
					return
				}
				out[i] = acct
			}
		}()
	}
	wg.Wait()
	return out, firstErr
}

func runLoginPhase(
	ctx context.Context,
	engine *portalAuth.Engine,
	accounts []seededAccount,
	ops, concurrency int,
	wrongRatio float64,
) (phaseStats, map[portalAuth.Outcome]int64) {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		outcomes  = make(map[portalAuth.Outcome]int64)
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
				acct := accounts[r.Intn(len(accounts))]
				secret := acct.secret
				if r.Float64() < wrongRatio {
					secret = "wrong-" + secret
				}

				t0 := time.Now()
				res, err := engine.Login(ctx, acct.identifier, secret)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}

				mu.Lock()
				latencies = append(latencies, d)
				if res != nil {
					outcomes[res.Outcome]++
				}
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures), outcomes
}

// runCodeRacePhase issues a step-up code per account and verifies it from
// every worker at once. More than one acceptance per code is a violation.
func runCodeRacePhase(
	ctx context.Context,
	engine *portalAuth.Engine,
	inbox *inbox,
	accounts []seededAccount,
	concurrency int,
) (phaseStats, int64) {
	var (
		violations int64
		failures   int64
		latencies  []time.Duration
		mu         sync.Mutex
	)

	start := time.Now()
	for _, acct := range accounts {
		if err := engine.IssueCode(ctx, acct.identifier, notify.PurposeStepUp); err != nil {
			failures++
			continue
		}
		code, ok := inbox.wait(acct.identifier, 2*time.Second)
		if !ok {
			failures++
			continue
		}

		var (
			wg   sync.WaitGroup
			wins int64
		)
		for w := 0; w < concurrency; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				t0 := time.Now()
				ok, err := engine.VerifyCode(ctx, acct.identifier, notify.PurposeStepUp, code)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				if ok {
					atomic.AddInt64(&wins, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}()
		}
		wg.Wait()
		if wins != 1 {
			violations++
		}
	}
	return computeStats(time.Since(start), latencies, failures), violations
}

// inbox captures delivered codes by identifier.
type inbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func newInbox() *inbox {
	return &inbox{codes: make(map[string]string)}
}

func (b *inbox) Send(_ context.Context, identifier, code string, _ notify.Purpose) error {
	b.mu.Lock()
	b.codes[identifier] = code
	b.mu.Unlock()
	return nil
}

func (b *inbox) wait(identifier string, timeout time.Duration) (string, bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		code, ok := b.codes[identifier]
		if ok {
			delete(b.codes, identifier)
		}
		b.mu.Unlock()
		if ok {
			return code, true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return "", false
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
		return phaseStats{total: total, failures: failures}
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
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d errors=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
