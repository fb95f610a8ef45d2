package portalAuth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/portalAuth/accountstore"
	"github.com/MrEthical07/portalAuth/notify"
	"github.com/MrEthical07/portalAuth/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	testPepper     = "portal-test-pepper-0001"
	testIterations = 100_000
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type delivery struct {
	identifier string
	code       string
	purpose    Purpose
}

// codeInbox collects codes handed to the notifier by background delivery.
type codeInbox struct {
	ch chan delivery
}

func newCodeInbox() *codeInbox {
	return &codeInbox{ch: make(chan delivery, 16)}
}

func (b *codeInbox) notifier() Notifier {
	return notify.Func(func(_ context.Context, identifier, code string, purpose Purpose) error {
		b.ch <- delivery{identifier: identifier, code: code, purpose: purpose}
		return nil
	})
}

func (b *codeInbox) next(t testing.TB) delivery {
	t.Helper()
	select {
	case d := <-b.ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for code delivery")
		return delivery{}
	}
}

func (b *codeInbox) empty(t testing.TB) {
	t.Helper()
	select {
	case d := <-b.ch:
		t.Fatalf("unexpected delivery: %+v", d)
	case <-time.After(50 * time.Millisecond):
	}
}

func testConfig(t testing.TB, base Config) Config {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("ed25519 key: %v", err)
	}
	base.Password.Pepper = testPepper
	base.Password.Iterations = testIterations
	base.Assertion.PrivateKey = priv
	base.Assertion.PublicKey = pub
	return base
}

func newTestRedis(t testing.TB) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

type testEnv struct {
	engine   *Engine
	accounts *accountstore.Memory
	clock    *testClock
	inbox    *codeInbox
}

type envOption func(b *Builder)

func withRedis(rdb redis.UniversalClient) envOption {
	return func(b *Builder) { b.WithRedis(rdb) }
}

func withSink(sink AuditSink) envOption {
	return func(b *Builder) { b.WithAuditSink(sink) }
}

func newTestEnv(t testing.TB, cfg Config, opts ...envOption) *testEnv {
	t.Helper()
	env := &testEnv{
		accounts: accountstore.NewMemory(),
		clock:    newTestClock(),
		inbox:    newCodeInbox(),
	}

	b := New().
		WithConfig(cfg).
		WithAccountStore(env.accounts).
		WithNotifier(env.inbox.notifier()).
		WithClock(env.clock.Now)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) addAccount(t testing.TB, identifier, secret string) {
	t.Helper()
	hasher, err := password.NewPBKDF2(password.Config{Pepper: testPepper, Iterations: testIterations})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	hash, err := hasher.Hash(secret, identifier)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := env.accounts.Create(context.Background(), Account{
		Identifier:   identifier,
		PasswordHash: hash,
	}); err != nil {
		t.Fatalf("create account: %v", err)
	}
}
