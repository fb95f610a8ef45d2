package flows

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrEthical07/portalAuth/internal/limiters"
)

var (
	errNotReady      = errors.New("not ready")
	errInvalidID     = errors.New("invalid identifier")
	errUnavailable   = errors.New("unavailable")
	errDisabled      = errors.New("disabled")
	errExpired       = errors.New("second factor expired")
	errNotFound      = errors.New("not found")
	errChallengeGone = errors.New("challenge gone")
)

type loginHarness struct {
	now        time.Time
	tracker    *limiters.MemoryAttemptTracker
	accounts   map[string]LoginAccount
	challenges map[string]*ChallengeRecord
	attempts   map[string]int
	usedCounts map[string]bool
	dummyCalls int
	lookups    int
	nextID     int
	trackerErr error
}

func newLoginHarness(maxAttempts int) *loginHarness {
	return &loginHarness{
		now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		tracker: limiters.NewMemoryAttemptTracker(limiters.AttemptConfig{
			MaxAttempts:     maxAttempts,
			Window:          time.Minute,
			LockoutDuration: 15 * time.Minute,
		}),
		accounts:   map[string]LoginAccount{},
		challenges: map[string]*ChallengeRecord{},
		attempts:   map[string]int{},
		usedCounts: map[string]bool{},
	}
}

func (h *loginHarness) deps(maxAttempts int) LoginDeps {
	return LoginDeps{
		Surface:                 "member",
		MaxAttempts:             maxAttempts,
		SecondFactorTTL:         5 * time.Minute,
		SecondFactorMaxAttempts: 3,
		Now:                     func() time.Time { return h.now },
		AttemptKey:              func(_ context.Context, id string) string { return "member:" + id },
		IsLocked: func(ctx context.Context, key string, now time.Time) (bool, time.Time, error) {
			if h.trackerErr != nil {
				return false, time.Time{}, h.trackerErr
			}
			return h.tracker.IsLocked(ctx, key, now)
		},
		RecordFailure: func(ctx context.Context, key string, now time.Time) (AttemptStatus, error) {
			st, err := h.tracker.RecordFailure(ctx, key, now)
			return AttemptStatus{Failures: st.Failures, Locked: st.Locked, UnlockAt: st.UnlockAt}, err
		},
		ResetAttempts: func(ctx context.Context, key string) error { return h.tracker.Reset(ctx, key) },
		GetAccount: func(_ context.Context, id string) (LoginAccount, error) {
			h.lookups++
			a, ok := h.accounts[id]
			if !ok {
				return LoginAccount{}, errNotFound
			}
			return a, nil
		},
		IsNotFound: func(err error) bool { return errors.Is(err, errNotFound) },
		VerifyPassword: func(secret, _ string, hash string) (bool, error) {
			return "h:"+secret == hash, nil
		},
		DummyVerify: func(string, string) { h.dummyCalls++ },
		VerifyTOTP: func(secret, code string, _ time.Time) (bool, int64) {
			return code == "123456", 42
		},
		MarkCounterUsed: func(_ context.Context, id string, counter int64) (bool, error) {
			k := fmt.Sprintf("%s:%d", id, counter)
			if h.usedCounts[k] {
				return false, nil
			}
			h.usedCounts[k] = true
			return true, nil
		},
		NewChallengeID: func() (string, error) {
			h.nextID++
			return fmt.Sprintf("c%d", h.nextID), nil
		},
		SaveChallenge: func(_ context.Context, id string, r ChallengeRecord, _ time.Duration) error {
			h.challenges[id] = &r
			return nil
		},
		GetChallenge: func(_ context.Context, id string, now time.Time) (ChallengeRecord, error) {
			r, ok := h.challenges[id]
			if !ok || !now.Before(r.ExpiresAt) {
				delete(h.challenges, id)
				return ChallengeRecord{}, errChallengeGone
			}
			return *r, nil
		},
		DeleteChallenge: func(_ context.Context, id string) (bool, error) {
			_, ok := h.challenges[id]
			delete(h.challenges, id)
			return ok, nil
		},
		RecordChallengeFailure: func(_ context.Context, id string, _ time.Time, max int) (bool, error) {
			if _, ok := h.challenges[id]; !ok {
				return false, errChallengeGone
			}
			h.attempts[id]++
			if h.attempts[id] >= max {
				delete(h.challenges, id)
				return true, nil
			}
			return false, nil
		},
		IsChallengeGone: func(err error) bool { return errors.Is(err, errChallengeGone) },
		IssueAssertion: func(id string, methods []string) (string, error) {
			return fmt.Sprintf("assert:%s:%d", id, len(methods)), nil
		},
		Errors: LoginErrors{
			EngineNotReady:      errNotReady,
			InvalidIdentifier:   errInvalidID,
			AuthUnavailable:     errUnavailable,
			AccountDisabled:     errDisabled,
			SecondFactorExpired: errExpired,
		},
	}
}

func TestRunLoginAuthenticates(t *testing.T) {
	h := newLoginHarness(3)
	h.accounts["a@b.com"] = LoginAccount{Identifier: "a@b.com", PasswordHash: "h:Str0ng!Pass"}

	res, err := RunLogin(context.Background(), "a@b.com", "Str0ng!Pass", h.deps(3))
	if err != nil {
		t.Fatalf("RunLogin error: %v", err)
	}
	if res.Outcome != OutcomeAuthenticated || res.Assertion != "assert:a@b.com:1" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRunLoginLocksOnThirdFailure(t *testing.T) {
	h := newLoginHarness(3)
	h.accounts["a@b.com"] = LoginAccount{Identifier: "a@b.com", PasswordHash: "h:Str0ng!Pass"}
	deps := h.deps(3)
	ctx := context.Background()

	for i, wantRemaining := range []int{2, 1} {
		res, err := RunLogin(ctx, "a@b.com", "wrong", deps)
		if err != nil {
			t.Fatalf("attempt %d error: %v", i+1, err)
		}
		if res.Outcome != OutcomeRejected || res.RemainingAttempts != wantRemaining {
			t.Fatalf("attempt %d: unexpected result %+v", i+1, res)
		}
	}

	res, err := RunLogin(ctx, "a@b.com", "wrong", deps)
	if err != nil {
		t.Fatalf("third attempt error: %v", err)
	}
	if res.Outcome != OutcomeLocked || res.RemainingMinutes != 15 {
		t.Fatalf("expected locked with 15 minutes, got %+v", res)
	}

	lookups := h.lookups
	h.now = h.now.Add(90 * time.Second)
	res, err = RunLogin(ctx, "a@b.com", "Str0ng!Pass", deps)
	if err != nil {
		t.Fatalf("locked login error: %v", err)
	}
	if res.Outcome != OutcomeLocked || res.RemainingMinutes != 14 {
		t.Fatalf("expected locked with 14 minutes, got %+v", res)
	}
	if h.lookups != lookups {
		t.Fatal("locked login must not look up the account")
	}

	h.now = h.now.Add(15 * time.Minute)
	res, err = RunLogin(ctx, "a@b.com", "Str0ng!Pass", deps)
	if err != nil || res.Outcome != OutcomeAuthenticated {
		t.Fatalf("expected login after lockout expiry, got %+v err=%v", res, err)
	}
}

func TestRunLoginUnknownAccountMatchesWrongPassword(t *testing.T) {
	h := newLoginHarness(3)
	h.accounts["a@b.com"] = LoginAccount{Identifier: "a@b.com", PasswordHash: "h:Str0ng!Pass"}
	deps := h.deps(3)

	known, err := RunLogin(context.Background(), "a@b.com", "wrong", deps)
	if err != nil {
		t.Fatalf("known error: %v", err)
	}
	unknown, err := RunLogin(context.Background(), "ghost@b.com", "wrong", deps)
	if err != nil {
		t.Fatalf("unknown error: %v", err)
	}
	if *known != (LoginResult{Outcome: OutcomeRejected, RemainingAttempts: 2, Identifier: "a@b.com"}) {
		t.Fatalf("unexpected known result: %+v", known)
	}
	if unknown.Outcome != known.Outcome || unknown.RemainingAttempts != known.RemainingAttempts {
		t.Fatalf("unknown account result differs: %+v vs %+v", unknown, known)
	}
	if h.dummyCalls != 1 {
		t.Fatalf("expected one dummy verification, got %d", h.dummyCalls)
	}
}

func TestRunLoginEmptySecretCountsWithoutLookup(t *testing.T) {
	h := newLoginHarness(3)
	res, err := RunLogin(context.Background(), "a@b.com", "", h.deps(3))
	if err != nil || res.Outcome != OutcomeRejected || res.RemainingAttempts != 2 {
		t.Fatalf("unexpected result %+v err=%v", res, err)
	}
	if h.lookups != 0 || h.dummyCalls != 0 {
		t.Fatal("empty secret must not reach the account store or hasher")
	}
}

func TestRunLoginTrackerFailureFailsClosed(t *testing.T) {
	h := newLoginHarness(3)
	h.trackerErr = errors.New("redis down")
	if _, err := RunLogin(context.Background(), "a@b.com", "x", h.deps(3)); !errors.Is(err, errUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestRunLoginDisabledAccount(t *testing.T) {
	h := newLoginHarness(3)
	h.accounts["a@b.com"] = LoginAccount{Identifier: "a@b.com", PasswordHash: "h:pw", Disabled: true}
	if _, err := RunLogin(context.Background(), "a@b.com", "pw", h.deps(3)); !errors.Is(err, errDisabled) {
		t.Fatalf("expected disabled error, got %v", err)
	}
}

func TestRunLoginMissingDeps(t *testing.T) {
	if _, err := RunLogin(context.Background(), "a@b.com", "x", LoginDeps{Errors: LoginErrors{EngineNotReady: errNotReady}}); !errors.Is(err, errNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
}

func TestSecondFactorFlow(t *testing.T) {
	h := newLoginHarness(3)
	h.accounts["a@b.com"] = LoginAccount{Identifier: "a@b.com", PasswordHash: "h:pw", TOTPEnabled: true, TOTPSecret: "S"}
	deps := h.deps(3)
	ctx := context.Background()

	// Seed one password failure; the second factor must not clear or bump it
	// until the login completes.
	if _, err := RunLogin(ctx, "a@b.com", "wrong", deps); err != nil {
		t.Fatalf("seed failure: %v", err)
	}

	res, err := RunLogin(ctx, "a@b.com", "pw", deps)
	if err != nil || res.Outcome != OutcomeAwaitingSecondFactor || res.Challenge == "" {
		t.Fatalf("expected awaiting second factor, got %+v err=%v", res, err)
	}
	challenge := res.Challenge

	res, err = RunConfirmSecondFactor(ctx, challenge, "000000", deps)
	if err != nil || res.Outcome != OutcomeRejected || res.Challenge != challenge {
		t.Fatalf("expected retryable rejection, got %+v err=%v", res, err)
	}
	st, _ := h.tracker.State(ctx, "member:a@b.com", h.now)
	if st.Failures != 1 {
		t.Fatalf("wrong code must not touch password counter, failures=%d", st.Failures)
	}

	res, err = RunConfirmSecondFactor(ctx, challenge, "123456", deps)
	if err != nil || res.Outcome != OutcomeAuthenticated || res.Assertion != "assert:a@b.com:2" {
		t.Fatalf("expected authenticated, got %+v err=%v", res, err)
	}
	st, _ = h.tracker.State(ctx, "member:a@b.com", h.now)
	if st.Failures != 0 {
		t.Fatalf("success must reset password counter, failures=%d", st.Failures)
	}

	if _, err := RunConfirmSecondFactor(ctx, challenge, "123456", deps); !errors.Is(err, errExpired) {
		t.Fatalf("completed challenge must be gone, got %v", err)
	}
}

func TestSecondFactorReplayRejected(t *testing.T) {
	h := newLoginHarness(3)
	h.accounts["a@b.com"] = LoginAccount{Identifier: "a@b.com", PasswordHash: "h:pw", TOTPEnabled: true, TOTPSecret: "S"}
	deps := h.deps(3)
	ctx := context.Background()

	first, _ := RunLogin(ctx, "a@b.com", "pw", deps)
	if res, err := RunConfirmSecondFactor(ctx, first.Challenge, "123456", deps); err != nil || res.Outcome != OutcomeAuthenticated {
		t.Fatalf("first login: %+v err=%v", res, err)
	}

	second, _ := RunLogin(ctx, "a@b.com", "pw", deps)
	res, err := RunConfirmSecondFactor(ctx, second.Challenge, "123456", deps)
	if err != nil || res.Outcome != OutcomeRejected {
		t.Fatalf("expected replayed code to be rejected, got %+v err=%v", res, err)
	}
}

func TestSecondFactorBurnedAfterMaxAttempts(t *testing.T) {
	h := newLoginHarness(3)
	h.accounts["a@b.com"] = LoginAccount{Identifier: "a@b.com", PasswordHash: "h:pw", TOTPEnabled: true, TOTPSecret: "S"}
	deps := h.deps(3)
	ctx := context.Background()

	res, _ := RunLogin(ctx, "a@b.com", "pw", deps)
	challenge := res.Challenge
	for i := 0; i < 3; i++ {
		res, err := RunConfirmSecondFactor(ctx, challenge, "000000", deps)
		if err != nil || res.Outcome != OutcomeRejected {
			t.Fatalf("attempt %d: %+v err=%v", i+1, res, err)
		}
		if i == 2 && res.Challenge != "" {
			t.Fatal("burned challenge must not be offered for retry")
		}
	}
	if _, err := RunConfirmSecondFactor(ctx, challenge, "123456", deps); !errors.Is(err, errExpired) {
		t.Fatalf("expected burned challenge, got %v", err)
	}
}

func TestSecondFactorExpiredChallenge(t *testing.T) {
	h := newLoginHarness(3)
	h.accounts["a@b.com"] = LoginAccount{Identifier: "a@b.com", PasswordHash: "h:pw", TOTPEnabled: true, TOTPSecret: "S"}
	deps := h.deps(3)
	ctx := context.Background()

	res, _ := RunLogin(ctx, "a@b.com", "pw", deps)
	h.now = h.now.Add(5 * time.Minute)
	if _, err := RunConfirmSecondFactor(ctx, res.Challenge, "123456", deps); !errors.Is(err, errExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
}

func TestRemainingMinutes(t *testing.T) {
	now := time.Unix(0, 0)
	cases := map[time.Duration]int{
		0:                               0,
		-time.Second:                    0,
		time.Second:                     1,
		15 * time.Minute:                15,
		14*time.Minute + 30*time.Second: 15,
	}
	for left, want := range cases {
		if got := RemainingMinutes(now.Add(left), now); got != want {
			t.Fatalf("RemainingMinutes(%v) = %d, want %d", left, got, want)
		}
	}
}
