package flows

import (
	"context"
)

// RunConfirmSecondFactor completes a login that is awaiting a TOTP code.
//
// A wrong code never touches the password failure counter. It counts
// against the challenge instead, and the challenge is burned once
// SecondFactorMaxAttempts is reached.
func RunConfirmSecondFactor(ctx context.Context, challengeID, code string, deps LoginDeps) (*LoginResult, error) {
	if !normalizeLoginDeps(&deps) {
		return nil, deps.Errors.EngineNotReady
	}
	if deps.GetChallenge == nil ||
		deps.DeleteChallenge == nil ||
		deps.RecordChallengeFailure == nil ||
		deps.VerifyTOTP == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if challengeID == "" {
		return nil, deps.Errors.SecondFactorExpired
	}

	now := deps.Now()
	record, err := deps.GetChallenge(ctx, challengeID, now)
	if err != nil {
		if deps.IsChallengeGone(err) {
			deps.MetricInc(deps.Metrics.SecondFactorFailure)
			deps.EmitAudit(ctx, deps.Events.SecondFactorFailure, false, "", OutcomeRejected, deps.Errors.SecondFactorExpired, nil)
			return nil, deps.Errors.SecondFactorExpired
		}
		deps.Warn("portalauth: second factor challenge load failed", "err", err)
		return nil, deps.Errors.AuthUnavailable
	}
	if record.Surface != deps.Surface {
		return nil, deps.Errors.SecondFactorExpired
	}

	identifier := record.Identifier
	key := deps.AttemptKey(ctx, identifier)

	locked, unlockAt, err := deps.IsLocked(ctx, key, now)
	if err != nil {
		deps.Warn("portalauth: attempt tracker check failed", "surface", deps.Surface, "err", err)
		return nil, deps.Errors.AuthUnavailable
	}
	if locked {
		_, _ = deps.DeleteChallenge(ctx, challengeID)
		deps.MetricInc(deps.Metrics.LoginLocked)
		deps.EmitAudit(ctx, deps.Events.LoginLocked, false, identifier, OutcomeLocked, nil, nil)
		return lockedResult(identifier, unlockAt, now), nil
	}

	account, err := deps.GetAccount(ctx, identifier)
	if err != nil {
		if deps.IsNotFound(err) {
			_, _ = deps.DeleteChallenge(ctx, challengeID)
			return nil, deps.Errors.SecondFactorExpired
		}
		deps.Warn("portalauth: account lookup failed", "surface", deps.Surface, "err", err)
		return nil, deps.Errors.AuthUnavailable
	}
	if account.Disabled {
		_, _ = deps.DeleteChallenge(ctx, challengeID)
		return nil, deps.Errors.AccountDisabled
	}
	if !account.TOTPEnabled || account.TOTPSecret == "" {
		_, _ = deps.DeleteChallenge(ctx, challengeID)
		return nil, deps.Errors.SecondFactorExpired
	}

	ok, counter := deps.VerifyTOTP(account.TOTPSecret, code, now)
	if !ok {
		return runSecondFactorFailure(ctx, challengeID, identifier, "code_mismatch", deps)
	}

	if deps.MarkCounterUsed != nil {
		fresh, err := deps.MarkCounterUsed(ctx, identifier, counter)
		if err != nil {
			deps.Warn("portalauth: totp replay guard failed", "err", err)
			return nil, deps.Errors.AuthUnavailable
		}
		if !fresh {
			deps.MetricInc(deps.Metrics.TOTPReplay)
			return runSecondFactorFailure(ctx, challengeID, identifier, "code_replayed", deps)
		}
	}

	deleted, err := deps.DeleteChallenge(ctx, challengeID)
	if err != nil {
		deps.Warn("portalauth: second factor challenge delete failed", "err", err)
		return nil, deps.Errors.AuthUnavailable
	}
	if !deleted {
		// A concurrent request completed this challenge first.
		return nil, deps.Errors.SecondFactorExpired
	}

	return runAuthenticate(ctx, identifier, key, []string{"pwd", "otp"}, deps.Metrics.SecondFactorSuccess, deps.Events.SecondFactorSuccess, deps)
}

func runSecondFactorFailure(ctx context.Context, challengeID, identifier, reason string, deps LoginDeps) (*LoginResult, error) {
	exceeded, err := deps.RecordChallengeFailure(ctx, challengeID, deps.Now(), deps.SecondFactorMaxAttempts)
	if err != nil {
		if deps.IsChallengeGone(err) {
			return nil, deps.Errors.SecondFactorExpired
		}
		deps.Warn("portalauth: second factor failure record failed", "err", err)
		return nil, deps.Errors.AuthUnavailable
	}

	deps.MetricInc(deps.Metrics.SecondFactorFailure)
	if exceeded {
		deps.MetricInc(deps.Metrics.SecondFactorExhausted)
		deps.EmitAudit(ctx, deps.Events.SecondFactorExhausted, false, identifier, OutcomeRejected, nil, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return &LoginResult{
			Outcome:    OutcomeRejected,
			Identifier: identifier,
		}, nil
	}

	deps.EmitAudit(ctx, deps.Events.SecondFactorFailure, false, identifier, OutcomeRejected, nil, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return &LoginResult{
		Outcome:    OutcomeRejected,
		Challenge:  challengeID,
		Identifier: identifier,
	}, nil
}
