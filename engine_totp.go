package portalAuth

import (
	"context"
	"errors"

	"github.com/MrEthical07/portalAuth/accountstore"
	internalflows "github.com/MrEthical07/portalAuth/internal/flows"
	"github.com/MrEthical07/portalAuth/totp"
)

const qrCodeSize = 256

// GenerateTOTPSetup provisions a new authenticator secret for identifier.
// The secret is stored disabled; Login keeps skipping the second factor
// until ConfirmTOTPSetup succeeds.
func (e *Engine) GenerateTOTPSetup(ctx context.Context, identifier string) (*TOTPSetup, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}
	identifier = accountstore.Normalize(identifier)
	if identifier == "" {
		return nil, ErrInvalidIdentifier
	}

	account, err := e.accounts.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, e.accountLookupError(err)
	}
	if account.TOTPEnabled {
		return nil, ErrTOTPAlreadyEnabled
	}

	key, err := totp.GenerateKey(e.config.TOTP.Issuer, identifier, e.config.TOTP.params())
	if err != nil {
		e.warn("portalauth: totp key generation failed", "err", err)
		return nil, ErrTOTPUnavailable
	}
	qr, err := key.QRCode(qrCodeSize, qrCodeSize)
	if err != nil {
		e.warn("portalauth: totp qr render failed", "err", err)
		return nil, ErrTOTPUnavailable
	}
	if err := e.accounts.UpdateTOTP(ctx, identifier, false, key.Secret); err != nil {
		e.warn("portalauth: totp secret store failed", "err", err)
		return nil, ErrTOTPUnavailable
	}

	return &TOTPSetup{
		Secret: key.Secret,
		URI:    key.URI,
		QRCode: qr,
	}, nil
}

// ConfirmTOTPSetup enables TOTP once code verifies against the pending
// secret. The accepted step is marked used, so the enrollment code cannot
// also complete a login.
func (e *Engine) ConfirmTOTPSetup(ctx context.Context, identifier, code string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	identifier = accountstore.Normalize(identifier)
	if identifier == "" {
		return ErrInvalidIdentifier
	}

	account, err := e.accounts.GetByIdentifier(ctx, identifier)
	if err != nil {
		return e.accountLookupError(err)
	}
	if account.TOTPEnabled {
		return ErrTOTPAlreadyEnabled
	}
	if account.TOTPSecret == "" {
		return ErrTOTPNotConfigured
	}
	if err := totp.CheckEnrollable(account.TOTPSecret); err != nil {
		return ErrTOTPNotConfigured
	}

	ok, counter := e.verifyTOTP(account.TOTPSecret, code, e.now())
	if !ok {
		return ErrTOTPInvalid
	}
	if e.config.TOTP.ReplayProtection {
		if _, err := e.markCounterUsed(ctx, identifier, counter); err != nil {
			e.warn("portalauth: totp replay guard failed", "err", err)
			return ErrTOTPUnavailable
		}
	}

	if err := e.accounts.UpdateTOTP(ctx, identifier, true, account.TOTPSecret); err != nil {
		e.warn("portalauth: totp enable failed", "err", err)
		return ErrTOTPUnavailable
	}
	e.metricInc(MetricTOTPEnabled)
	e.emitAudit(ctx, auditEventTOTPEnabled, true, identifier, "", nil, nil)
	return nil
}

// DisableTOTP turns the second factor off after re-checking the current
// password. Wrong passwords count toward the lockout like a failed login.
func (e *Engine) DisableTOTP(ctx context.Context, identifier, secret string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	identifier = accountstore.Normalize(identifier)
	if identifier == "" {
		return ErrInvalidIdentifier
	}

	if _, err := e.verifyCurrentPassword(ctx, identifier, secret); err != nil {
		return err
	}
	if err := e.accounts.UpdateTOTP(ctx, identifier, false, ""); err != nil {
		e.warn("portalauth: totp disable failed", "err", err)
		return ErrTOTPUnavailable
	}
	e.metricInc(MetricTOTPDisabled)
	e.emitAudit(ctx, auditEventTOTPDisabled, true, identifier, "", nil, nil)
	return nil
}

// ChangePassword replaces the password of a signed-in member. The current
// password is required; the new one must satisfy the length policy and
// differ from the current one.
func (e *Engine) ChangePassword(ctx context.Context, identifier, oldSecret, newSecret string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	identifier = accountstore.Normalize(identifier)
	if identifier == "" {
		return ErrInvalidIdentifier
	}

	fail := func(err error) error {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChange, false, identifier, "", err, nil)
		return err
	}

	if err := internalflows.CheckPasswordPolicy(newSecret, e.config.Password.MinLength, e.config.Password.MaxLength); err != nil {
		return fail(ErrPasswordPolicy)
	}
	account, err := e.verifyCurrentPassword(ctx, identifier, oldSecret)
	if err != nil {
		return fail(err)
	}
	if same, _ := e.hasher.Verify(newSecret, identifier, account.PasswordHash); same {
		return fail(ErrPasswordReuse)
	}

	hash, err := e.hasher.Hash(newSecret, identifier)
	if err != nil {
		return fail(ErrAuthUnavailable)
	}
	if err := e.accounts.UpdatePasswordHash(ctx, identifier, hash); err != nil {
		e.warn("portalauth: password change update failed", "err", err)
		return fail(ErrAuthUnavailable)
	}
	if err := e.tracker.Reset(ctx, e.attemptKey(ctx, identifier)); err != nil {
		e.warn("portalauth: attempt tracker reset failed", "err", err)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChange, true, identifier, "", nil, nil)
	return nil
}

// verifyCurrentPassword re-authenticates identifier for a sensitive account
// operation. It honours an active lockout and records a failure on mismatch.
func (e *Engine) verifyCurrentPassword(ctx context.Context, identifier, secret string) (Account, error) {
	now := e.now()
	key := e.attemptKey(ctx, identifier)

	locked, _, err := e.tracker.IsLocked(ctx, key, now)
	if err != nil {
		e.warn("portalauth: attempt tracker check failed", "err", err)
		return Account{}, ErrAuthUnavailable
	}
	if locked {
		return Account{}, ErrAccountLocked
	}

	account, err := e.accounts.GetByIdentifier(ctx, identifier)
	if err != nil {
		return Account{}, e.accountLookupError(err)
	}
	if account.Status == AccountDisabled {
		return Account{}, ErrAccountDisabled
	}

	ok, err := e.hasher.Verify(secret, identifier, account.PasswordHash)
	if err != nil || !ok {
		state, recErr := e.tracker.RecordFailure(ctx, key, now)
		if recErr != nil {
			e.warn("portalauth: attempt tracker record failed", "err", recErr)
			return Account{}, ErrAuthUnavailable
		}
		if state.Locked {
			e.metricInc(MetricLockoutTriggered)
			e.emitAudit(ctx, auditEventLockoutTriggered, false, identifier, string(OutcomeLocked), nil, func() map[string]string {
				return map[string]string{"reason": "reauth_mismatch"}
			})
			return Account{}, ErrAccountLocked
		}
		return Account{}, ErrInvalidCredentials
	}
	return account, nil
}

func (e *Engine) accountLookupError(err error) error {
	if errors.Is(err, ErrAccountNotFound) {
		return ErrAccountNotFound
	}
	e.warn("portalauth: account lookup failed", "err", err)
	return ErrAuthUnavailable
}
