package flows

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/portalAuth/internal/stores"
)

var (
	errPurpose     = errors.New("invalid purpose")
	errCodeBackend = errors.New("code unavailable")
	errThrottled   = errors.New("throttled")
)

type codeHarness struct {
	now       time.Time
	store     *stores.MemoryOTPStore
	delivered map[string]string
	nextCode  string
	throttle  error
}

func newCodeHarness() *codeHarness {
	return &codeHarness{
		now:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		store:     stores.NewMemoryOTPStore(),
		delivered: map[string]string{},
		nextCode:  "482913",
	}
}

func (h *codeHarness) deps() CodeDeps {
	return CodeDeps{
		Digits:       6,
		TTL:          10 * time.Minute,
		MaxAttempts:  5,
		Now:          func() time.Time { return h.now },
		ValidPurpose: func(p string) bool { return p == "password_reset" || p == "step_up" },
		AllowIssue: func(context.Context, string, string, time.Time) error {
			return h.throttle
		},
		IsRateLimited: func(err error) bool { return errors.Is(err, errThrottled) },
		NewCode:       func(int) (string, error) { return h.nextCode, nil },
		HashCode:      func(c string) [32]byte { return sha256.Sum256([]byte(c)) },
		SaveCode: func(ctx context.Context, id, purpose string, r CodeRecord, ttl time.Duration) error {
			return h.store.Save(ctx, stores.OTPKey(purpose, id), &stores.OTPRecord{
				Identifier: id,
				Purpose:    purpose,
				CodeHash:   r.CodeHash,
				ExpiresAt:  r.ExpiresAt.UnixMilli(),
			}, ttl)
		},
		ConsumeCode: func(ctx context.Context, id, purpose string, hash [32]byte, now time.Time, max int) error {
			return h.store.Consume(ctx, stores.OTPKey(purpose, id), hash, now, max)
		},
		IsVerifyFailure: func(err error) bool { return !errors.Is(err, stores.ErrOTPBackend) },
		Deliver: func(id, code, purpose string) {
			h.delivered[purpose+":"+id] = code
		},
		Errors: CodeErrors{
			EngineNotReady:    errNotReady,
			InvalidIdentifier: errInvalidID,
			InvalidPurpose:    errPurpose,
			CodeUnavailable:   errCodeBackend,
			CodeRateLimited:   errThrottled,
		},
	}
}

func TestCodeIssueVerifySingleUse(t *testing.T) {
	h := newCodeHarness()
	deps := h.deps()
	ctx := context.Background()

	if err := RunIssueCode(ctx, "a@b.com", "password_reset", deps); err != nil {
		t.Fatalf("issue: %v", err)
	}
	code := h.delivered["password_reset:a@b.com"]
	if code != "482913" {
		t.Fatalf("expected delivered code, got %q", code)
	}

	ok, err := RunVerifyCode(ctx, "a@b.com", "password_reset", code, deps)
	if err != nil || !ok {
		t.Fatalf("first verify: ok=%v err=%v", ok, err)
	}
	ok, err = RunVerifyCode(ctx, "a@b.com", "password_reset", code, deps)
	if err != nil || ok {
		t.Fatalf("second verify must fail: ok=%v err=%v", ok, err)
	}
}

func TestCodeExpiry(t *testing.T) {
	h := newCodeHarness()
	deps := h.deps()
	ctx := context.Background()

	if err := RunIssueCode(ctx, "a@b.com", "password_reset", deps); err != nil {
		t.Fatalf("issue: %v", err)
	}
	h.now = h.now.Add(11 * time.Minute)
	ok, err := RunVerifyCode(ctx, "a@b.com", "password_reset", "482913", deps)
	if err != nil || ok {
		t.Fatalf("expired code must fail: ok=%v err=%v", ok, err)
	}
}

func TestCodePurposeIsolation(t *testing.T) {
	h := newCodeHarness()
	deps := h.deps()
	ctx := context.Background()

	if err := RunIssueCode(ctx, "a@b.com", "step_up", deps); err != nil {
		t.Fatalf("issue: %v", err)
	}
	ok, err := RunVerifyCode(ctx, "a@b.com", "password_reset", "482913", deps)
	if err != nil || ok {
		t.Fatalf("code for another purpose must fail: ok=%v err=%v", ok, err)
	}
	if _, err := RunVerifyCode(ctx, "a@b.com", "bogus", "482913", deps); !errors.Is(err, errPurpose) {
		t.Fatalf("expected invalid purpose, got %v", err)
	}
}

func TestCodeMalformedRejectedBeforeStore(t *testing.T) {
	h := newCodeHarness()
	deps := h.deps()
	deps.ConsumeCode = func(context.Context, string, string, [32]byte, time.Time, int) error {
		t.Fatal("malformed code must not reach the store")
		return nil
	}
	for _, code := range []string{"", "12345", "1234567", "12a456", " 123456"} {
		ok, err := RunVerifyCode(context.Background(), "a@b.com", "step_up", code, deps)
		if err != nil || ok {
			t.Fatalf("code %q: ok=%v err=%v", code, ok, err)
		}
	}
}

func TestCodeIssueThrottled(t *testing.T) {
	h := newCodeHarness()
	h.throttle = errThrottled
	if err := RunIssueCode(context.Background(), "a@b.com", "step_up", h.deps()); !errors.Is(err, errThrottled) {
		t.Fatalf("expected throttled, got %v", err)
	}
	if len(h.delivered) != 0 {
		t.Fatal("throttled issue must not deliver")
	}
}

