package portalAuth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/portalAuth/accountstore"
	"github.com/MrEthical07/portalAuth/internal"
	internalflows "github.com/MrEthical07/portalAuth/internal/flows"
	"github.com/MrEthical07/portalAuth/internal/stores"
	"github.com/MrEthical07/portalAuth/totp"
)

// Login runs the password step for identifier on this surface.
//
// The result is OutcomeLocked while the attempt key is locked (no password
// is checked), OutcomeRejected for a wrong password or unknown account,
// OutcomeAwaitingSecondFactor when the account has TOTP enabled, and
// OutcomeAuthenticated otherwise. Unknown identifiers and wrong passwords
// produce identical results. A disabled account with a correct password
// returns ErrAccountDisabled.
func (e *Engine) Login(ctx context.Context, identifier, secret string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	res, err := internalflows.RunLogin(ctx, accountstore.Normalize(identifier), secret, e.flows.Login)
	e.metrics.Observe(MetricLoginLatency, time.Since(start))
	return toLoginResult(res), err
}

// ConfirmSecondFactor completes a login awaiting a TOTP code. A wrong code
// returns OutcomeRejected with the same challenge until the challenge's
// attempt budget is spent; unknown, expired and used challenges return
// ErrSecondFactorExpired.
func (e *Engine) ConfirmSecondFactor(ctx context.Context, challenge, code string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	res, err := internalflows.RunConfirmSecondFactor(ctx, challenge, code, e.flows.Login)
	return toLoginResult(res), err
}

func toLoginResult(res *internalflows.LoginResult) *LoginResult {
	if res == nil {
		return nil
	}
	return &LoginResult{
		Outcome:           Outcome(res.Outcome),
		RemainingMinutes:  res.RemainingMinutes,
		RemainingAttempts: res.RemainingAttempts,
		Challenge:         res.Challenge,
		Assertion:         res.Assertion,
		Identifier:        res.Identifier,
	}
}

func toLoginAccount(a Account) internalflows.LoginAccount {
	return internalflows.LoginAccount{
		Identifier:   a.Identifier,
		PasswordHash: a.PasswordHash,
		TOTPSecret:   a.TOTPSecret,
		TOTPEnabled:  a.TOTPEnabled,
		Disabled:     a.Status == AccountDisabled,
	}
}

func (e *Engine) getLoginAccount(ctx context.Context, identifier string) (internalflows.LoginAccount, error) {
	account, err := e.accounts.GetByIdentifier(ctx, identifier)
	if err != nil {
		return internalflows.LoginAccount{}, err
	}
	return toLoginAccount(account), nil
}

func (e *Engine) verifyTOTP(secret, code string, now time.Time) (bool, int64) {
	key, err := totp.DecodeSecret(secret)
	if err != nil {
		return false, 0
	}
	return totp.VerifyCounter(key, code, now, e.config.TOTP.params())
}

// markCounterUsed records counter as the newest accepted TOTP step for
// identifier. The record outlives every step the skew window can accept.
func (e *Engine) markCounterUsed(ctx context.Context, identifier string, counter int64) (bool, error) {
	p := e.config.TOTP
	ttl := time.Duration((2*p.Skew+1)*p.Period) * time.Second
	return e.counters.Mark(ctx, identifier, counter, e.now(), ttl)
}

func (e *Engine) loginFlowDeps() internalflows.LoginDeps {
	deps := internalflows.LoginDeps{
		Surface:                 e.config.Surface,
		MaxAttempts:             e.config.Lockout.MaxAttempts,
		PasswordUpgradeOnLogin:  e.config.Password.UpgradeOnLogin,
		SecondFactorTTL:         e.config.SecondFactor.TTL,
		SecondFactorMaxAttempts: e.config.SecondFactor.MaxAttempts,

		Now:        e.now,
		AttemptKey: e.attemptKey,

		IsLocked: e.tracker.IsLocked,
		RecordFailure: func(ctx context.Context, key string, now time.Time) (internalflows.AttemptStatus, error) {
			st, err := e.tracker.RecordFailure(ctx, key, now)
			return internalflows.AttemptStatus{
				Failures: st.Failures,
				Locked:   st.Locked,
				UnlockAt: st.UnlockAt,
			}, err
		},
		ResetAttempts: e.tracker.Reset,

		GetAccount: e.getLoginAccount,
		IsNotFound: func(err error) bool { return errors.Is(err, ErrAccountNotFound) },
		UpdateHash: e.accounts.UpdatePasswordHash,
		VerifyPassword: func(secret, identifier, hash string) (bool, error) {
			return e.hasher.Verify(secret, identifier, hash)
		},
		DummyVerify: func(secret, identifier string) {
			_ = e.hasher.Derive(secret, identifier)
		},
		NeedsUpgrade: e.hasher.NeedsUpgrade,
		HashPassword: e.hasher.Hash,
		VerifyTOTP:   e.verifyTOTP,

		NewChallengeID: func() (string, error) {
			id, err := internal.NewChallengeID()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		},
		SaveChallenge: func(ctx context.Context, id string, record internalflows.ChallengeRecord, ttl time.Duration) error {
			return e.pending.Save(ctx, id, &stores.PendingChallenge{
				Identifier: record.Identifier,
				Surface:    record.Surface,
				ExpiresAt:  record.ExpiresAt.UnixMilli(),
			}, ttl)
		},
		GetChallenge: func(ctx context.Context, id string, now time.Time) (internalflows.ChallengeRecord, error) {
			if _, err := internal.ParseChallengeID(id); err != nil {
				return internalflows.ChallengeRecord{}, stores.ErrPendingNotFound
			}
			record, err := e.pending.Get(ctx, id, now)
			if err != nil {
				return internalflows.ChallengeRecord{}, err
			}
			return internalflows.ChallengeRecord{
				Identifier: record.Identifier,
				Surface:    record.Surface,
				ExpiresAt:  time.UnixMilli(record.ExpiresAt),
			}, nil
		},
		DeleteChallenge:        e.pending.Delete,
		RecordChallengeFailure: e.pending.RecordFailure,
		IsChallengeGone: func(err error) bool {
			return errors.Is(err, stores.ErrPendingNotFound) || errors.Is(err, stores.ErrPendingExpired)
		},

		IssueAssertion: func(identifier string, methods []string) (string, error) {
			return e.assertions.Issue(identifier, e.config.Surface, methods)
		},

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,
		Warn:      e.warn,

		Metrics: internalflows.LoginMetrics{
			LoginSuccess:          int(MetricLoginSuccess),
			LoginRejected:         int(MetricLoginRejected),
			LoginLocked:           int(MetricLoginLocked),
			LockoutTriggered:      int(MetricLockoutTriggered),
			SecondFactorRequired:  int(MetricSecondFactorRequired),
			SecondFactorSuccess:   int(MetricSecondFactorSuccess),
			SecondFactorFailure:   int(MetricSecondFactorFailure),
			SecondFactorExhausted: int(MetricSecondFactorExhausted),
			TOTPReplay:            int(MetricTOTPReplay),
			PasswordUpgraded:      int(MetricPasswordUpgraded),
		},
		Events: internalflows.LoginEvents{
			LoginSuccess:          auditEventLoginSuccess,
			LoginFailure:          auditEventLoginFailure,
			LoginLocked:           auditEventLoginLocked,
			LockoutTriggered:      auditEventLockoutTriggered,
			SecondFactorRequired:  auditEventSecondFactorRequired,
			SecondFactorSuccess:   auditEventSecondFactorSuccess,
			SecondFactorFailure:   auditEventSecondFactorFailure,
			SecondFactorExhausted: auditEventSecondFactorExhausted,
		},
		Errors: internalflows.LoginErrors{
			EngineNotReady:      ErrEngineNotReady,
			InvalidIdentifier:   ErrInvalidIdentifier,
			AuthUnavailable:     ErrAuthUnavailable,
			AccountDisabled:     ErrAccountDisabled,
			SecondFactorExpired: ErrSecondFactorExpired,
		},
	}
	if e.config.TOTP.ReplayProtection {
		deps.MarkCounterUsed = e.markCounterUsed
	}
	return deps
}
