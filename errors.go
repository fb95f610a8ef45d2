package portalAuth

import (
	"errors"

	"github.com/MrEthical07/portalAuth/accountstore"
)

var (
	// ErrEngineNotReady is returned when an Engine is used before Build wired its dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidIdentifier is returned for empty or malformed account identifiers.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrAccountNotFound is returned by AccountStore implementations for unknown identifiers.
	ErrAccountNotFound = accountstore.ErrNotFound
	// ErrAccountDisabled is returned when a disabled account presents a correct password.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrAccountLocked is returned by account operations while the attempt key is locked.
	ErrAccountLocked = errors.New("account locked")
	// ErrInvalidCredentials is returned by account operations that require the current password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAuthUnavailable is returned when a backend needed to decide a login is unreachable.
	// Login fails closed: no assertion is issued while the tracker or store is down.
	ErrAuthUnavailable = errors.New("authentication backend unavailable")
	// ErrSecondFactorExpired is returned for unknown, expired, exhausted or already used challenges.
	ErrSecondFactorExpired = errors.New("second factor challenge expired")

	// ErrInvalidPurpose is returned for code purposes other than the declared ones.
	ErrInvalidPurpose = errors.New("invalid code purpose")
	// ErrCodeRateLimited is returned when an identifier requested too many codes.
	ErrCodeRateLimited = errors.New("code issue rate limited")
	// ErrCodeUnavailable is returned when the code store is unreachable.
	ErrCodeUnavailable = errors.New("code backend unavailable")

	// ErrPasswordResetInvalid is returned for wrong, expired or consumed reset codes.
	ErrPasswordResetInvalid = errors.New("password reset code invalid")
	// ErrPasswordResetUnavailable is returned when a reset cannot be completed because of a backend failure.
	ErrPasswordResetUnavailable = errors.New("password reset backend unavailable")
	// ErrPasswordPolicy is returned when a new password violates the length policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when a password change keeps the current password.
	ErrPasswordReuse = errors.New("new password must be different from current password")

	// ErrTOTPNotConfigured is returned when confirming enrollment without a pending secret.
	ErrTOTPNotConfigured = errors.New("totp not configured")
	// ErrTOTPAlreadyEnabled is returned when enrolling an account that already has TOTP on.
	ErrTOTPAlreadyEnabled = errors.New("totp already enabled")
	// ErrTOTPInvalid is returned when an enrollment code does not verify.
	ErrTOTPInvalid = errors.New("invalid totp code")
	// ErrTOTPUnavailable is returned when enrollment cannot be persisted.
	ErrTOTPUnavailable = errors.New("totp backend unavailable")

	// ErrAssertionInvalid is returned for assertions that fail signature or claim validation.
	ErrAssertionInvalid = errors.New("assertion invalid")
	// ErrAssertionSurface is returned when an assertion was issued for another login surface.
	ErrAssertionSurface = errors.New("assertion issued for another surface")
)
