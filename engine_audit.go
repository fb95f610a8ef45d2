package portalAuth

import (
	"context"
	"errors"

	"github.com/MrEthical07/portalAuth/internal/audit"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginLocked           = "login_locked"
	auditEventLockoutTriggered      = "lockout_triggered"
	auditEventSecondFactorRequired  = "second_factor_required"
	auditEventSecondFactorSuccess   = "second_factor_success"
	auditEventSecondFactorFailure   = "second_factor_failure"
	auditEventSecondFactorExhausted = "second_factor_exhausted"
	auditEventPasswordResetRequest  = "password_reset_request"
	auditEventPasswordResetConfirm  = "password_reset_confirm"
	auditEventPasswordChange        = "password_change"
	auditEventTOTPEnabled           = "totp_enabled"
	auditEventTOTPDisabled          = "totp_disabled"
	auditEventUnlock                = "unlock"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	identifier string,
	outcome string,
	err error,
	metadata func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := audit.Event{
		Timestamp:  e.now().UTC(),
		EventType:  eventType,
		Identifier: identifier,
		Surface:    e.config.Surface,
		ClientIP:   clientIPFromContext(ctx),
		Success:    success,
		Outcome:    outcome,
	}
	if err != nil {
		event.Error = auditErrorCode(err)
	}
	if metadata != nil {
		event.Metadata = metadata()
	}
	e.audit.Emit(ctx, event)
}

// auditErrorCode maps sentinel errors to stable codes so raw backend
// messages never reach audit sinks.
func auditErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAccountDisabled):
		return "account_disabled"
	case errors.Is(err, ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrSecondFactorExpired):
		return "second_factor_expired"
	case errors.Is(err, ErrAuthUnavailable):
		return "auth_unavailable"
	case errors.Is(err, ErrPasswordResetInvalid):
		return "reset_invalid"
	case errors.Is(err, ErrPasswordResetUnavailable):
		return "reset_unavailable"
	case errors.Is(err, ErrPasswordPolicy):
		return "password_policy"
	case errors.Is(err, ErrPasswordReuse):
		return "password_reuse"
	case errors.Is(err, ErrTOTPInvalid):
		return "totp_invalid"
	case errors.Is(err, ErrTOTPUnavailable):
		return "totp_unavailable"
	default:
		return "internal_error"
	}
}
