package security

import "time"

// PasswordReport summarizes password hashing cost.
type PasswordReport struct {
	Algorithm      string
	Iterations     int
	KeyLength      int
	PepperSet      bool
	MinLength      int
	UpgradeOnLogin bool
}

// Report is the security posture of one configured login surface.
type Report struct {
	Surface          string
	SigningAlgorithm string
	AssertionTTL     time.Duration
	Password         PasswordReport

	LockoutActive      bool
	LockoutThreshold   int
	LockoutDuration    time.Duration
	AttemptWindow      time.Duration
	LockoutKeyByClient bool

	TOTPReplayProtection bool
	TOTPSkewSteps        int
	SecondFactorTTL      time.Duration

	CodeTTL          time.Duration
	CodeMaxAttempts  int
	CodeIssueLimited bool
	ResetLimited     bool

	SharedState  bool
	AuditEnabled bool
}

// ReportInput carries the raw configuration values a Report is derived from.
type ReportInput struct {
	Surface          string
	SigningAlgorithm string
	AssertionTTL     time.Duration
	Password         PasswordReport

	MaxAttempts     int
	AttemptWindow   time.Duration
	LockoutDuration time.Duration
	KeyByClient     bool

	TOTPReplayProtection bool
	TOTPSkew             int
	SecondFactorTTL      time.Duration

	CodeTTL          time.Duration
	CodeMaxAttempts  int
	CodeIssuesPerHr  int
	ResetRequestsPer int

	RedisBacked  bool
	AuditEnabled bool
}

// BuildReport derives the posture flags from input.
func BuildReport(input ReportInput) Report {
	return Report{
		Surface:          input.Surface,
		SigningAlgorithm: input.SigningAlgorithm,
		AssertionTTL:     input.AssertionTTL,
		Password:         input.Password,

		LockoutActive:      input.MaxAttempts > 0 && input.LockoutDuration > 0,
		LockoutThreshold:   input.MaxAttempts,
		LockoutDuration:    input.LockoutDuration,
		AttemptWindow:      input.AttemptWindow,
		LockoutKeyByClient: input.KeyByClient,

		TOTPReplayProtection: input.TOTPReplayProtection,
		TOTPSkewSteps:        input.TOTPSkew,
		SecondFactorTTL:      input.SecondFactorTTL,

		CodeTTL:          input.CodeTTL,
		CodeMaxAttempts:  input.CodeMaxAttempts,
		CodeIssueLimited: input.CodeIssuesPerHr > 0,
		ResetLimited:     input.ResetRequestsPer > 0,

		SharedState:  input.RedisBacked,
		AuditEnabled: input.AuditEnabled,
	}
}
