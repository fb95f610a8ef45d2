package portalAuth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/portalAuth/totp"
)

func TestLoginEndToEnd(t *testing.T) {
	env := newTestEnv(t, testConfig(t, MemberConfig()))
	env.addAccount(t, "member@example.org", "Str0ng!Pass")
	ctx := context.Background()

	res, err := env.engine.Login(ctx, "Member@Example.org", "Str0ng!Pass")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Outcome != OutcomeAuthenticated || res.Assertion == "" {
		t.Fatalf("expected authenticated with assertion, got %+v", res)
	}
	if res.Identifier != "member@example.org" {
		t.Fatalf("expected normalized identifier, got %q", res.Identifier)
	}

	for i := 1; i <= 2; i++ {
		res, err = env.engine.Login(ctx, "member@example.org", "wrong")
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if res.Outcome != OutcomeRejected || res.RemainingAttempts != 3-i {
			t.Fatalf("attempt %d: unexpected %+v", i, res)
		}
	}
	res, err = env.engine.Login(ctx, "member@example.org", "wrong")
	if err != nil {
		t.Fatalf("third attempt: %v", err)
	}
	if res.Outcome != OutcomeLocked || res.RemainingMinutes != 15 {
		t.Fatalf("expected locked for 15 minutes, got %+v", res)
	}

	// A correct password does not get through a lockout.
	res, err = env.engine.Login(ctx, "member@example.org", "Str0ng!Pass")
	if err != nil || res.Outcome != OutcomeLocked {
		t.Fatalf("expected locked, got %+v err=%v", res, err)
	}

	env.clock.Advance(15 * time.Minute)
	res, err = env.engine.Login(ctx, "member@example.org", "Str0ng!Pass")
	if err != nil || res.Outcome != OutcomeAuthenticated {
		t.Fatalf("expected authenticated after lockout expiry, got %+v err=%v", res, err)
	}
}

func TestLoginUnknownAccountMatchesWrongPassword(t *testing.T) {
	env := newTestEnv(t, testConfig(t, MemberConfig()))
	env.addAccount(t, "member@example.org", "Str0ng!Pass")
	ctx := context.Background()

	known, err := env.engine.Login(ctx, "member@example.org", "wrong")
	if err != nil {
		t.Fatalf("known: %v", err)
	}
	unknown, err := env.engine.Login(ctx, "ghost@example.org", "wrong")
	if err != nil {
		t.Fatalf("unknown: %v", err)
	}
	if known.Outcome != unknown.Outcome || known.RemainingAttempts != unknown.RemainingAttempts {
		t.Fatalf("results differ: known=%+v unknown=%+v", known, unknown)
	}
}

func TestLoginEmptyInputs(t *testing.T) {
	env := newTestEnv(t, testConfig(t, MemberConfig()))
	ctx := context.Background()

	if _, err := env.engine.Login(ctx, "  ", "x"); !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("expected ErrInvalidIdentifier, got %v", err)
	}
	res, err := env.engine.Login(ctx, "a@b.com", "")
	if err != nil || res.Outcome != OutcomeRejected {
		t.Fatalf("expected rejected for empty secret, got %+v err=%v", res, err)
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	env := newTestEnv(t, testConfig(t, MemberConfig()))
	env.addAccount(t, "member@example.org", "Str0ng!Pass")
	if err := env.accounts.SetStatus(context.Background(), "member@example.org", AccountDisabled); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	if _, err := env.engine.Login(context.Background(), "member@example.org", "Str0ng!Pass"); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestAdminSurfaceAllowsFiveAttemptsWithoutWindow(t *testing.T) {
	env := newTestEnv(t, testConfig(t, AdminConfig()))
	env.addAccount(t, "root@example.org", "Adm1n!Secret")
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		res, err := env.engine.Login(ctx, "root@example.org", "wrong")
		if err != nil || res.Outcome != OutcomeRejected {
			t.Fatalf("attempt %d: %+v err=%v", i, res, err)
		}
		// No window: failures an hour apart still accumulate.
		env.clock.Advance(time.Hour)
	}
	res, err := env.engine.Login(ctx, "root@example.org", "wrong")
	if err != nil || res.Outcome != OutcomeLocked {
		t.Fatalf("expected lockout on fifth failure, got %+v err=%v", res, err)
	}
}

func TestLockoutKeyByClient(t *testing.T) {
	cfg := testConfig(t, MemberConfig())
	cfg.Lockout.KeyByClient = true
	env := newTestEnv(t, cfg)
	env.addAccount(t, "member@example.org", "Str0ng!Pass")

	attacker := WithClientIP(context.Background(), "203.0.113.9")
	owner := WithClientIP(context.Background(), "198.51.100.4")

	for i := 0; i < 3; i++ {
		if _, err := env.engine.Login(attacker, "member@example.org", "wrong"); err != nil {
			t.Fatalf("attacker attempt: %v", err)
		}
	}
	res, err := env.engine.Login(attacker, "member@example.org", "Str0ng!Pass")
	if err != nil || res.Outcome != OutcomeLocked {
		t.Fatalf("expected attacker locked, got %+v err=%v", res, err)
	}
	res, err = env.engine.Login(owner, "member@example.org", "Str0ng!Pass")
	if err != nil || res.Outcome != OutcomeAuthenticated {
		t.Fatalf("expected owner authenticated, got %+v err=%v", res, err)
	}
}

func TestUnlockClearsLockout(t *testing.T) {
	env := newTestEnv(t, testConfig(t, MemberConfig()))
	env.addAccount(t, "member@example.org", "Str0ng!Pass")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = env.engine.Login(ctx, "member@example.org", "wrong")
	}
	if err := env.engine.Unlock(ctx, "MEMBER@example.org"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	res, err := env.engine.Login(ctx, "member@example.org", "Str0ng!Pass")
	if err != nil || res.Outcome != OutcomeAuthenticated {
		t.Fatalf("expected authenticated after unlock, got %+v err=%v", res, err)
	}
	if err := env.engine.Unlock(ctx, ""); !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("expected ErrInvalidIdentifier, got %v", err)
	}
}

func TestLoginUpgradesLegacyHash(t *testing.T) {
	env := newTestEnv(t, testConfig(t, MemberConfig()))
	env.addAccount(t, "member@example.org", "Str0ng!Pass")
	ctx := context.Background()

	account, _ := env.accounts.GetByIdentifier(ctx, "member@example.org")
	// Older deployments stored the bare hex digest.
	legacy := env.engine.hasher.Derive("Str0ng!Pass", "member@example.org")
	if err := env.accounts.UpdatePasswordHash(ctx, account.Identifier, legacy); err != nil {
		t.Fatalf("UpdatePasswordHash: %v", err)
	}

	res, err := env.engine.Login(ctx, "member@example.org", "Str0ng!Pass")
	if err != nil || res.Outcome != OutcomeAuthenticated {
		t.Fatalf("expected legacy hash to verify, got %+v err=%v", res, err)
	}
	account, _ = env.accounts.GetByIdentifier(ctx, "member@example.org")
	if account.PasswordHash == legacy {
		t.Fatal("expected hash to be upgraded to the versioned form")
	}
}

func enrollTOTP(t *testing.T, env *testEnv, identifier string) string {
	t.Helper()
	ctx := context.Background()
	setup, err := env.engine.GenerateTOTPSetup(ctx, identifier)
	if err != nil {
		t.Fatalf("GenerateTOTPSetup: %v", err)
	}
	code, err := totp.CurrentCode(setup.Secret, env.clock.Now(), totp.DefaultParams())
	if err != nil {
		t.Fatalf("CurrentCode: %v", err)
	}
	if err := env.engine.ConfirmTOTPSetup(ctx, identifier, code); err != nil {
		t.Fatalf("ConfirmTOTPSetup: %v", err)
	}
	// Move to a fresh step so the enrollment code's step is in the past.
	env.clock.Advance(30 * time.Second)
	return setup.Secret
}

func TestLoginSecondFactorEndToEnd(t *testing.T) {
	env := newTestEnv(t, testConfig(t, MemberConfig()))
	env.addAccount(t, "member@example.org", "Str0ng!Pass")
	secret := enrollTOTP(t, env, "member@example.org")
	ctx := context.Background()

	res, err := env.engine.Login(ctx, "member@example.org", "Str0ng!Pass")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Outcome != OutcomeAwaitingSecondFactor || res.Challenge == "" || res.Assertion != "" {
		t.Fatalf("expected awaiting second factor, got %+v", res)
	}

	code, _ := totp.CurrentCode(secret, env.clock.Now(), totp.DefaultParams())
	done, err := env.engine.ConfirmSecondFactor(ctx, res.Challenge, code)
	if err != nil {
		t.Fatalf("ConfirmSecondFactor: %v", err)
	}
	if done.Outcome != OutcomeAuthenticated || done.Assertion == "" {
		t.Fatalf("expected authenticated, got %+v", done)
	}
	claims, err := env.engine.ParseAssertion(done.Assertion)
	if err != nil {
		t.Fatalf("ParseAssertion: %v", err)
	}
	if claims.Identifier != "member@example.org" || len(claims.Methods) != 2 {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	// The challenge is single use.
	if _, err := env.engine.ConfirmSecondFactor(ctx, res.Challenge, code); !errors.Is(err, ErrSecondFactorExpired) {
		t.Fatalf("expected ErrSecondFactorExpired on reuse, got %v", err)
	}

	// A fresh login: a code two skew windows ahead is rejected, and so is
	// a replay of the step that was just accepted.
	res, err = env.engine.Login(ctx, "member@example.org", "Str0ng!Pass")
	if err != nil || res.Outcome != OutcomeAwaitingSecondFactor {
		t.Fatalf("second login: %+v err=%v", res, err)
	}
	future, _ := totp.CurrentCode(secret, env.clock.Now().Add(120*time.Second), totp.DefaultParams())
	rejected, err := env.engine.ConfirmSecondFactor(ctx, res.Challenge, future)
	if err != nil {
		t.Fatalf("future code: %v", err)
	}
	if rejected.Outcome != OutcomeRejected || rejected.Challenge != res.Challenge {
		t.Fatalf("expected retryable rejection, got %+v", rejected)
	}
	replayed, err := env.engine.ConfirmSecondFactor(ctx, res.Challenge, code)
	if err != nil || replayed.Outcome != OutcomeRejected {
		t.Fatalf("expected replay rejected, got %+v err=%v", replayed, err)
	}
}

func TestSecondFactorFailuresDoNotLockPassword(t *testing.T) {
	cfg := testConfig(t, MemberConfig())
	cfg.SecondFactor.MaxAttempts = 2
	env := newTestEnv(t, cfg)
	env.addAccount(t, "member@example.org", "Str0ng!Pass")
	enrollTOTP(t, env, "member@example.org")
	ctx := context.Background()

	res, _ := env.engine.Login(ctx, "member@example.org", "Str0ng!Pass")
	first, err := env.engine.ConfirmSecondFactor(ctx, res.Challenge, "000000")
	if err != nil || first.Challenge == "" {
		t.Fatalf("first wrong code: %+v err=%v", first, err)
	}
	second, err := env.engine.ConfirmSecondFactor(ctx, res.Challenge, "000000")
	if err != nil || second.Outcome != OutcomeRejected || second.Challenge != "" {
		t.Fatalf("expected exhausted challenge, got %+v err=%v", second, err)
	}
	if _, err := env.engine.ConfirmSecondFactor(ctx, res.Challenge, "000000"); !errors.Is(err, ErrSecondFactorExpired) {
		t.Fatalf("expected burned challenge, got %v", err)
	}

	res, err = env.engine.Login(ctx, "member@example.org", "Str0ng!Pass")
	if err != nil || res.Outcome != OutcomeAwaitingSecondFactor {
		t.Fatalf("password step must stay open, got %+v err=%v", res, err)
	}
}

func TestSecondFactorChallengeExpires(t *testing.T) {
	env := newTestEnv(t, testConfig(t, MemberConfig()))
	env.addAccount(t, "member@example.org", "Str0ng!Pass")
	secret := enrollTOTP(t, env, "member@example.org")
	ctx := context.Background()

	res, _ := env.engine.Login(ctx, "member@example.org", "Str0ng!Pass")
	env.clock.Advance(5*time.Minute + time.Second)
	code, _ := totp.CurrentCode(secret, env.clock.Now(), totp.DefaultParams())
	if _, err := env.engine.ConfirmSecondFactor(ctx, res.Challenge, code); !errors.Is(err, ErrSecondFactorExpired) {
		t.Fatalf("expected ErrSecondFactorExpired, got %v", err)
	}
	if _, err := env.engine.ConfirmSecondFactor(ctx, "not-a-challenge", code); !errors.Is(err, ErrSecondFactorExpired) {
		t.Fatalf("expected malformed challenge rejected, got %v", err)
	}
}

func TestLoginWithRedisBackends(t *testing.T) {
	rdb := newTestRedis(t)
	env := newTestEnv(t, testConfig(t, MemberConfig()), withRedis(rdb))
	env.addAccount(t, "member@example.org", "Str0ng!Pass")
	secret := enrollTOTP(t, env, "member@example.org")
	ctx := context.Background()

	res, err := env.engine.Login(ctx, "member@example.org", "Str0ng!Pass")
	if err != nil || res.Outcome != OutcomeAwaitingSecondFactor {
		t.Fatalf("Login: %+v err=%v", res, err)
	}
	code, _ := totp.CurrentCode(secret, env.clock.Now(), totp.DefaultParams())
	done, err := env.engine.ConfirmSecondFactor(ctx, res.Challenge, code)
	if err != nil || done.Outcome != OutcomeAuthenticated {
		t.Fatalf("ConfirmSecondFactor: %+v err=%v", done, err)
	}

	for i := 0; i < 3; i++ {
		res, err = env.engine.Login(ctx, "member@example.org", "wrong")
		if err != nil {
			t.Fatalf("wrong attempt: %v", err)
		}
	}
	if res.Outcome != OutcomeLocked || res.RemainingMinutes != 15 {
		t.Fatalf("expected redis-backed lockout, got %+v", res)
	}
	if !env.engine.SecurityReport().SharedState {
		t.Fatal("expected report to show shared state")
	}
}

func TestLoginFailsClosedWhenTrackerUnavailable(t *testing.T) {
	rdb := newTestRedis(t)
	env := newTestEnv(t, testConfig(t, MemberConfig()), withRedis(rdb))
	env.addAccount(t, "member@example.org", "Str0ng!Pass")
	_ = rdb.Close()

	if _, err := env.engine.Login(context.Background(), "member@example.org", "Str0ng!Pass"); !errors.Is(err, ErrAuthUnavailable) {
		t.Fatalf("expected ErrAuthUnavailable, got %v", err)
	}
}
