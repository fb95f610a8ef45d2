package portalAuth

import (
	"context"
	"errors"

	"github.com/MrEthical07/portalAuth/accountstore"
	internalflows "github.com/MrEthical07/portalAuth/internal/flows"
)

// RequestPasswordReset issues a reset code to identifier when the account
// exists and is active. The result is nil for unknown accounts and throttled
// requests alike; only a cancelled context is reported.
func (e *Engine) RequestPasswordReset(ctx context.Context, identifier string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return internalflows.RunRequestPasswordReset(ctx, accountstore.Normalize(identifier), e.flows.PasswordReset)
}

// ConfirmPasswordReset consumes a reset code and stores newSecret. On
// success the attempt key is cleared, so a locked-out member can recover.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, identifier, code, newSecret string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return internalflows.RunConfirmPasswordReset(ctx, accountstore.Normalize(identifier), code, newSecret, e.flows.PasswordReset)
}

func (e *Engine) passwordResetFlowDeps() internalflows.PasswordResetDeps {
	return internalflows.PasswordResetDeps{
		MinLength: e.config.Password.MinLength,
		MaxLength: e.config.Password.MaxLength,
		Purpose:   string(PurposePasswordReset),

		Now:        e.now,
		GetAccount: e.getLoginAccount,
		IsNotFound: func(err error) bool { return errors.Is(err, ErrAccountNotFound) },
		IssueCode: func(ctx context.Context, identifier, purpose string) error {
			return internalflows.RunIssueCode(ctx, identifier, purpose, e.flows.Code)
		},
		VerifyCode: func(ctx context.Context, identifier, purpose, code string) (bool, error) {
			return internalflows.RunVerifyCode(ctx, identifier, purpose, code, e.flows.Code)
		},
		HashPassword: e.hasher.Hash,
		UpdateHash:   e.accounts.UpdatePasswordHash,
		ResetAttempts: func(ctx context.Context, identifier string) error {
			return e.tracker.Reset(ctx, e.attemptKey(ctx, identifier))
		},

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,
		Warn:      e.warn,

		Metrics: internalflows.PasswordResetMetrics{
			ResetRequested:      int(MetricPasswordResetRequest),
			ResetConfirmSuccess: int(MetricPasswordResetConfirmSuccess),
			ResetConfirmFailure: int(MetricPasswordResetConfirmFailure),
		},
		Events: internalflows.PasswordResetEvents{
			ResetRequest: auditEventPasswordResetRequest,
			ResetConfirm: auditEventPasswordResetConfirm,
		},
		Errors: internalflows.PasswordResetErrors{
			EngineNotReady:    ErrEngineNotReady,
			InvalidIdentifier: ErrInvalidIdentifier,
			ResetInvalid:      ErrPasswordResetInvalid,
			PasswordPolicy:    ErrPasswordPolicy,
			ResetUnavailable:  ErrPasswordResetUnavailable,
		},
	}
}
