package portalAuth

import (
	"github.com/MrEthical07/portalAuth/internal/security"
)

// SecurityReport is the posture of this Engine's surface. See
// Config.Lint for findings about the same configuration.
type SecurityReport = security.Report

// PasswordConfigReport summarizes password hashing cost.
type PasswordConfigReport = security.PasswordReport

// SecurityReport returns the posture derived from the built configuration.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	cfg := e.config

	return security.BuildReport(security.ReportInput{
		Surface:          cfg.Surface,
		SigningAlgorithm: cfg.Assertion.SigningMethod,
		AssertionTTL:     cfg.Assertion.TTL,
		Password: security.PasswordReport{
			Algorithm:      "pbkdf2-sha256",
			Iterations:     cfg.Password.Iterations,
			KeyLength:      cfg.Password.KeyLength,
			PepperSet:      cfg.Password.Pepper != "",
			MinLength:      cfg.Password.MinLength,
			UpgradeOnLogin: cfg.Password.UpgradeOnLogin,
		},
		MaxAttempts:          cfg.Lockout.MaxAttempts,
		AttemptWindow:        cfg.Lockout.AttemptWindow,
		LockoutDuration:      cfg.Lockout.LockoutDuration,
		KeyByClient:          cfg.Lockout.KeyByClient,
		TOTPReplayProtection: cfg.TOTP.ReplayProtection,
		TOTPSkew:             cfg.TOTP.Skew,
		SecondFactorTTL:      cfg.SecondFactor.TTL,
		CodeTTL:              cfg.OTP.TTL,
		CodeMaxAttempts:      cfg.OTP.MaxAttempts,
		CodeIssuesPerHr:      cfg.OTP.IssuesPerHour,
		ResetRequestsPer:     cfg.PasswordReset.RequestsPerHour,
		RedisBacked:          e.redisBacked,
		AuditEnabled:         cfg.Audit.Enabled,
	})
}
