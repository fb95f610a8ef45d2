package portalAuth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIssueAndVerifyCodeSingleUse(t *testing.T) {
	env := newTestEnv(t, testConfig(t, MemberConfig()))
	ctx := context.Background()

	if err := env.engine.IssueCode(ctx, "A@B.com", PurposeStepUp); err != nil {
		t.Fatalf("IssueCode: %v", err)
	}
	d := env.inbox.next(t)
	if d.identifier != "a@b.com" || d.purpose != PurposeStepUp || len(d.code) != 6 {
		t.Fatalf("unexpected delivery: %+v", d)
	}

	ok, err := env.engine.VerifyCode(ctx, "a@b.com", PurposeStepUp, d.code)
	if err != nil || !ok {
		t.Fatalf("first verify: ok=%v err=%v", ok, err)
	}
	ok, err = env.engine.VerifyCode(ctx, "a@b.com", PurposeStepUp, d.code)
	if err != nil || ok {
		t.Fatalf("second verify must fail: ok=%v err=%v", ok, err)
	}
}

func TestCodeExpiresAfterTTL(t *testing.T) {
	env := newTestEnv(t, testConfig(t, MemberConfig()))
	ctx := context.Background()

	if err := env.engine.IssueCode(ctx, "a@b.com", PurposeStepUp); err != nil {
		t.Fatalf("IssueCode: %v", err)
	}
	d := env.inbox.next(t)

	env.clock.Advance(11 * time.Minute)
	ok, err := env.engine.VerifyCode(ctx, "a@b.com", PurposeStepUp, d.code)
	if err != nil || ok {
		t.Fatalf("expired code must fail: ok=%v err=%v", ok, err)
	}
}

func TestCodeWrongGuessesBurnCode(t *testing.T) {
	env := newTestEnv(t, testConfig(t, MemberConfig()))
	ctx := context.Background()

	if err := env.engine.IssueCode(ctx, "a@b.com", PurposeStepUp); err != nil {
		t.Fatalf("IssueCode: %v", err)
	}
	d := env.inbox.next(t)
	wrong := "000000"
	if d.code == wrong {
		wrong = "111111"
	}
	for i := 0; i < 5; i++ {
		if ok, err := env.engine.VerifyCode(ctx, "a@b.com", PurposeStepUp, wrong); err != nil || ok {
			t.Fatalf("guess %d: ok=%v err=%v", i+1, ok, err)
		}
	}
	if ok, _ := env.engine.VerifyCode(ctx, "a@b.com", PurposeStepUp, d.code); ok {
		t.Fatal("code must be burned after max attempts")
	}
}

func TestIssueCodeRejectsUnknownPurpose(t *testing.T) {
	env := newTestEnv(t, testConfig(t, MemberConfig()))
	if err := env.engine.IssueCode(context.Background(), "a@b.com", Purpose("login")); !errors.Is(err, ErrInvalidPurpose) {
		t.Fatalf("expected ErrInvalidPurpose, got %v", err)
	}
	env.inbox.empty(t)
}

func TestIssueCodeThrottled(t *testing.T) {
	for name, opts := range map[string][]envOption{
		"memory": nil,
		"redis":  {withRedis(newTestRedis(t))},
	} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, testConfig(t, MemberConfig()), opts...)
			ctx := context.Background()

			for i := 0; i < 5; i++ {
				if err := env.engine.IssueCode(ctx, "a@b.com", PurposeStepUp); err != nil {
					t.Fatalf("issue %d: %v", i+1, err)
				}
				env.inbox.next(t)
			}
			if err := env.engine.IssueCode(ctx, "a@b.com", PurposeStepUp); !errors.Is(err, ErrCodeRateLimited) {
				t.Fatalf("expected ErrCodeRateLimited, got %v", err)
			}
			// Other identifiers keep their own budget.
			if err := env.engine.IssueCode(ctx, "c@d.com", PurposeStepUp); err != nil {
				t.Fatalf("other identifier: %v", err)
			}
			env.inbox.next(t)
		})
	}
}
