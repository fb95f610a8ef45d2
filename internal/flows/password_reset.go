package flows

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"
)

// PasswordResetMetrics carries metric IDs needed by reset flows.
type PasswordResetMetrics struct {
	ResetRequested      int
	ResetConfirmSuccess int
	ResetConfirmFailure int
}

// PasswordResetEvents carries audit event names used by reset flows.
type PasswordResetEvents struct {
	ResetRequest string
	ResetConfirm string
}

// PasswordResetErrors carries root sentinel errors used by reset flows.
type PasswordResetErrors struct {
	EngineNotReady    error
	InvalidIdentifier error
	ResetInvalid      error
	PasswordPolicy    error
	ResetUnavailable  error
}

// PasswordResetDeps captures the reset request and confirmation steps.
type PasswordResetDeps struct {
	MinLength int
	MaxLength int
	Purpose   string

	Now           func() time.Time
	GetAccount    func(ctx context.Context, identifier string) (LoginAccount, error)
	IsNotFound    func(error) bool
	IssueCode     func(ctx context.Context, identifier, purpose string) error
	VerifyCode    func(ctx context.Context, identifier, purpose, code string) (bool, error)
	HashPassword  func(secret, identifier string) (string, error)
	UpdateHash    func(ctx context.Context, identifier, hash string) error
	ResetAttempts func(ctx context.Context, identifier string) error

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, identifier, outcome string, err error, metadata func() map[string]string)
	Warn      func(msg string, args ...any)

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

func normalizePasswordResetDeps(deps *PasswordResetDeps) bool {
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
	if deps.MinLength <= 0 {
		deps.MinLength = 8
	}
	return deps.GetAccount != nil &&
		deps.IssueCode != nil &&
		deps.VerifyCode != nil &&
		deps.HashPassword != nil &&
		deps.UpdateHash != nil
}

// RunRequestPasswordReset issues a reset code when the account exists.
//
// The caller always gets nil for unknown accounts, lookup failures,
// throttling and delivery failures, so the response cannot be used to
// enumerate accounts. Only context cancellation and an unwired engine
// surface as errors.
func RunRequestPasswordReset(ctx context.Context, identifier string, deps PasswordResetDeps) error {
	if !normalizePasswordResetDeps(&deps) {
		return deps.Errors.EngineNotReady
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deps.MetricInc(deps.Metrics.ResetRequested)
	reason := "issued"
	defer func() {
		deps.EmitAudit(ctx, deps.Events.ResetRequest, reason == "issued", identifier, "", nil, func() map[string]string {
			return map[string]string{"reason": reason}
		})
	}()

	if identifier == "" {
		reason = "invalid_identifier"
		return nil
	}

	account, err := deps.GetAccount(ctx, identifier)
	if err != nil {
		if deps.IsNotFound(err) {
			reason = "unknown_account"
		} else {
			reason = "lookup_failed"
			deps.Warn("portalauth: reset account lookup failed", "err", err)
		}
		return nil
	}
	if account.Disabled {
		reason = "account_disabled"
		return nil
	}

	if err := deps.IssueCode(ctx, identifier, deps.Purpose); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		reason = "issue_failed"
		deps.Warn("portalauth: reset code issue failed", "err", err)
		return nil
	}
	return nil
}

// RunConfirmPasswordReset consumes a reset code and stores the new password.
// The password policy is checked before the code is touched so a rejected
// password does not burn the code.
func RunConfirmPasswordReset(ctx context.Context, identifier, code, newSecret string, deps PasswordResetDeps) error {
	if !normalizePasswordResetDeps(&deps) {
		return deps.Errors.EngineNotReady
	}
	if identifier == "" {
		return deps.Errors.InvalidIdentifier
	}

	fail := func(err error, reason string) error {
		deps.MetricInc(deps.Metrics.ResetConfirmFailure)
		deps.EmitAudit(ctx, deps.Events.ResetConfirm, false, identifier, "", err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return err
	}

	if err := CheckPasswordPolicy(newSecret, deps.MinLength, deps.MaxLength); err != nil {
		return fail(deps.Errors.PasswordPolicy, "password_policy")
	}

	ok, err := deps.VerifyCode(ctx, identifier, deps.Purpose, code)
	if err != nil {
		return fail(deps.Errors.ResetUnavailable, "code_backend")
	}
	if !ok {
		return fail(deps.Errors.ResetInvalid, "code_invalid")
	}

	if _, err := deps.GetAccount(ctx, identifier); err != nil {
		if deps.IsNotFound(err) {
			return fail(deps.Errors.ResetInvalid, "unknown_account")
		}
		return fail(deps.Errors.ResetUnavailable, "lookup_failed")
	}

	hash, err := deps.HashPassword(newSecret, identifier)
	if err != nil {
		return fail(deps.Errors.ResetUnavailable, "hash_failed")
	}
	if err := deps.UpdateHash(ctx, identifier, hash); err != nil {
		deps.Warn("portalauth: reset password update failed", "err", err)
		return fail(deps.Errors.ResetUnavailable, "update_failed")
	}
	if deps.ResetAttempts != nil {
		if err := deps.ResetAttempts(ctx, identifier); err != nil {
			deps.Warn("portalauth: attempt tracker reset failed", "err", err)
		}
	}

	deps.MetricInc(deps.Metrics.ResetConfirmSuccess)
	deps.EmitAudit(ctx, deps.Events.ResetConfirm, true, identifier, "", nil, nil)
	return nil
}

var errPolicy = errors.New("password policy")

// CheckPasswordPolicy enforces length bounds counted in runes. maxLength 0
// means no upper bound.
func CheckPasswordPolicy(secret string, minLength, maxLength int) error {
	n := utf8.RuneCountInString(secret)
	if n < minLength {
		return errPolicy
	}
	if maxLength > 0 && n > maxLength {
		return errPolicy
	}
	return nil
}
