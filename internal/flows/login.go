package flows

import (
	"context"
	"time"
)

// Outcome values shared with the root package.
const (
	OutcomeAuthenticated        = "authenticated"
	OutcomeLocked               = "locked"
	OutcomeRejected             = "rejected"
	OutcomeAwaitingSecondFactor = "awaiting_second_factor"
)

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	Outcome           string
	RemainingMinutes  int
	RemainingAttempts int
	Challenge         string
	Assertion         string
	Identifier        string
}

// LoginAccount is the flow-local view of an account record.
type LoginAccount struct {
	Identifier   string
	PasswordHash string
	TOTPSecret   string
	TOTPEnabled  bool
	Disabled     bool
}

// AttemptStatus mirrors the tracker state after a recorded failure.
type AttemptStatus struct {
	Failures int
	Locked   bool
	UnlockAt time.Time
}

// ChallengeRecord is a flow-local pending second-factor record.
type ChallengeRecord struct {
	Identifier string
	Surface    string
	ExpiresAt  time.Time
}

// LoginMetrics carries metric IDs needed by login flows.
type LoginMetrics struct {
	LoginSuccess          int
	LoginRejected         int
	LoginLocked           int
	LockoutTriggered      int
	SecondFactorRequired  int
	SecondFactorSuccess   int
	SecondFactorFailure   int
	SecondFactorExhausted int
	TOTPReplay            int
	PasswordUpgraded      int
}

// LoginEvents carries audit event names used by login flows.
type LoginEvents struct {
	LoginSuccess          string
	LoginFailure          string
	LoginLocked           string
	LockoutTriggered      string
	SecondFactorRequired  string
	SecondFactorSuccess   string
	SecondFactorFailure   string
	SecondFactorExhausted string
}

// LoginErrors carries root sentinel errors used by login flows.
type LoginErrors struct {
	EngineNotReady      error
	InvalidIdentifier   error
	AuthUnavailable     error
	AccountDisabled     error
	SecondFactorExpired error
}

// LoginDeps captures login and second-factor dependencies.
type LoginDeps struct {
	Surface                 string
	MaxAttempts             int
	PasswordUpgradeOnLogin  bool
	SecondFactorTTL         time.Duration
	SecondFactorMaxAttempts int

	Now        func() time.Time
	AttemptKey func(ctx context.Context, identifier string) string

	IsLocked      func(ctx context.Context, key string, now time.Time) (bool, time.Time, error)
	RecordFailure func(ctx context.Context, key string, now time.Time) (AttemptStatus, error)
	ResetAttempts func(ctx context.Context, key string) error

	GetAccount      func(ctx context.Context, identifier string) (LoginAccount, error)
	IsNotFound      func(error) bool
	UpdateHash      func(ctx context.Context, identifier, hash string) error
	VerifyPassword  func(secret, identifier, hash string) (bool, error)
	DummyVerify     func(secret, identifier string)
	NeedsUpgrade    func(hash string) (bool, error)
	HashPassword    func(secret, identifier string) (string, error)
	VerifyTOTP      func(secret, code string, now time.Time) (bool, int64)
	MarkCounterUsed func(ctx context.Context, identifier string, counter int64) (bool, error)

	NewChallengeID         func() (string, error)
	SaveChallenge          func(ctx context.Context, id string, record ChallengeRecord, ttl time.Duration) error
	GetChallenge           func(ctx context.Context, id string, now time.Time) (ChallengeRecord, error)
	DeleteChallenge        func(ctx context.Context, id string) (bool, error)
	RecordChallengeFailure func(ctx context.Context, id string, now time.Time, maxAttempts int) (bool, error)
	IsChallengeGone        func(error) bool

	IssueAssertion func(identifier string, methods []string) (string, error)

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, identifier, outcome string, err error, metadata func() map[string]string)
	Warn      func(msg string, args ...any)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

func normalizeLoginDeps(deps *LoginDeps) bool {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.IsChallengeGone == nil {
		deps.IsChallengeGone = func(error) bool { return false }
	}
	if deps.AttemptKey == nil {
		deps.AttemptKey = func(_ context.Context, identifier string) string { return identifier }
	}
	return deps.IsLocked != nil &&
		deps.RecordFailure != nil &&
		deps.ResetAttempts != nil &&
		deps.GetAccount != nil &&
		deps.VerifyPassword != nil &&
		deps.DummyVerify != nil &&
		deps.IssueAssertion != nil
}

// RunLogin executes the password step of the login state machine.
//
// A locked key short-circuits before any account lookup or hashing. Unknown
// identifiers run a dummy verification and record a failure so their result
// has the same shape and cost as a wrong password.
func RunLogin(ctx context.Context, identifier, secret string, deps LoginDeps) (*LoginResult, error) {
	if !normalizeLoginDeps(&deps) {
		return nil, deps.Errors.EngineNotReady
	}
	if identifier == "" {
		return nil, deps.Errors.InvalidIdentifier
	}

	now := deps.Now()
	key := deps.AttemptKey(ctx, identifier)

	locked, unlockAt, err := deps.IsLocked(ctx, key, now)
	if err != nil {
		deps.Warn("portalauth: attempt tracker check failed", "surface", deps.Surface, "err", err)
		return nil, deps.Errors.AuthUnavailable
	}
	if locked {
		deps.MetricInc(deps.Metrics.LoginLocked)
		deps.EmitAudit(ctx, deps.Events.LoginLocked, false, identifier, OutcomeLocked, nil, nil)
		return lockedResult(identifier, unlockAt, now), nil
	}

	// Empty secrets are a policy rejection: no hashing, but the attempt counts.
	if secret == "" {
		return runPasswordFailure(ctx, identifier, key, now, "empty_secret", deps)
	}

	account, err := deps.GetAccount(ctx, identifier)
	if err != nil {
		if !deps.IsNotFound(err) {
			deps.Warn("portalauth: account lookup failed", "surface", deps.Surface, "err", err)
			return nil, deps.Errors.AuthUnavailable
		}
		deps.DummyVerify(secret, identifier)
		return runPasswordFailure(ctx, identifier, key, now, "unknown_account", deps)
	}

	ok, err := deps.VerifyPassword(secret, identifier, account.PasswordHash)
	if err != nil {
		deps.Warn("portalauth: stored password hash is malformed", "surface", deps.Surface, "identifier", identifier)
	}
	if err != nil || !ok {
		return runPasswordFailure(ctx, identifier, key, now, "password_mismatch", deps)
	}

	if account.Disabled {
		deps.MetricInc(deps.Metrics.LoginRejected)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, identifier, OutcomeRejected, deps.Errors.AccountDisabled, func() map[string]string {
			return map[string]string{"reason": "account_disabled"}
		})
		return nil, deps.Errors.AccountDisabled
	}

	if deps.PasswordUpgradeOnLogin {
		runPasswordUpgrade(ctx, identifier, secret, account.PasswordHash, deps)
	}

	if account.TOTPEnabled && account.TOTPSecret != "" {
		return runStartSecondFactor(ctx, identifier, now, deps)
	}

	return runAuthenticate(ctx, identifier, key, []string{"pwd"}, deps.Metrics.LoginSuccess, deps.Events.LoginSuccess, deps)
}

func runPasswordFailure(
	ctx context.Context,
	identifier string,
	key string,
	now time.Time,
	reason string,
	deps LoginDeps,
) (*LoginResult, error) {
	state, err := deps.RecordFailure(ctx, key, now)
	if err != nil {
		deps.Warn("portalauth: attempt tracker record failed", "surface", deps.Surface, "err", err)
		return nil, deps.Errors.AuthUnavailable
	}

	if state.Locked {
		deps.MetricInc(deps.Metrics.LoginLocked)
		deps.MetricInc(deps.Metrics.LockoutTriggered)
		deps.EmitAudit(ctx, deps.Events.LockoutTriggered, false, identifier, OutcomeLocked, nil, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return lockedResult(identifier, state.UnlockAt, now), nil
	}

	remaining := deps.MaxAttempts - state.Failures
	if remaining < 0 {
		remaining = 0
	}
	deps.MetricInc(deps.Metrics.LoginRejected)
	deps.EmitAudit(ctx, deps.Events.LoginFailure, false, identifier, OutcomeRejected, nil, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return &LoginResult{
		Outcome:           OutcomeRejected,
		RemainingAttempts: remaining,
		Identifier:        identifier,
	}, nil
}

func runPasswordUpgrade(ctx context.Context, identifier, secret, hash string, deps LoginDeps) {
	if deps.NeedsUpgrade == nil || deps.HashPassword == nil || deps.UpdateHash == nil {
		return
	}
	needsUpgrade, err := deps.NeedsUpgrade(hash)
	if err != nil || !needsUpgrade {
		return
	}
	upgraded, err := deps.HashPassword(secret, identifier)
	if err != nil {
		deps.Warn("portalauth: password hash upgrade generation failed", "err", err)
		return
	}
	if err := deps.UpdateHash(ctx, identifier, upgraded); err != nil {
		deps.Warn("portalauth: password hash upgrade update failed", "err", err)
		return
	}
	deps.MetricInc(deps.Metrics.PasswordUpgraded)
}

func runStartSecondFactor(ctx context.Context, identifier string, now time.Time, deps LoginDeps) (*LoginResult, error) {
	if deps.NewChallengeID == nil || deps.SaveChallenge == nil {
		return nil, deps.Errors.EngineNotReady
	}

	ttl := deps.SecondFactorTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	challengeID, err := deps.NewChallengeID()
	if err != nil {
		return nil, deps.Errors.AuthUnavailable
	}
	record := ChallengeRecord{
		Identifier: identifier,
		Surface:    deps.Surface,
		ExpiresAt:  now.Add(ttl),
	}
	if err := deps.SaveChallenge(ctx, challengeID, record, ttl); err != nil {
		deps.Warn("portalauth: second factor challenge save failed", "err", err)
		return nil, deps.Errors.AuthUnavailable
	}

	deps.MetricInc(deps.Metrics.SecondFactorRequired)
	deps.EmitAudit(ctx, deps.Events.SecondFactorRequired, true, identifier, OutcomeAwaitingSecondFactor, nil, nil)
	return &LoginResult{
		Outcome:    OutcomeAwaitingSecondFactor,
		Challenge:  challengeID,
		Identifier: identifier,
	}, nil
}

func runAuthenticate(
	ctx context.Context,
	identifier string,
	key string,
	methods []string,
	metric int,
	event string,
	deps LoginDeps,
) (*LoginResult, error) {
	if err := deps.ResetAttempts(ctx, key); err != nil {
		deps.Warn("portalauth: attempt tracker reset failed", "surface", deps.Surface, "err", err)
	}

	assertion, err := deps.IssueAssertion(identifier, methods)
	if err != nil {
		deps.Warn("portalauth: assertion signing failed", "err", err)
		return nil, deps.Errors.AuthUnavailable
	}

	deps.MetricInc(metric)
	deps.EmitAudit(ctx, event, true, identifier, OutcomeAuthenticated, nil, nil)
	return &LoginResult{
		Outcome:    OutcomeAuthenticated,
		Assertion:  assertion,
		Identifier: identifier,
	}, nil
}

func lockedResult(identifier string, unlockAt, now time.Time) *LoginResult {
	return &LoginResult{
		Outcome:          OutcomeLocked,
		RemainingMinutes: RemainingMinutes(unlockAt, now),
		Identifier:       identifier,
	}
}

// RemainingMinutes rounds the time left until unlockAt up to whole minutes.
func RemainingMinutes(unlockAt, now time.Time) int {
	left := unlockAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int((left + time.Minute - 1) / time.Minute)
}
