package portalAuth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/portalAuth/password"
	"github.com/MrEthical07/portalAuth/totp"
)

// Login surfaces served by the portal. Each surface builds its own Engine;
// attempt keys and pending challenges are scoped to the surface.
const (
	SurfaceAdmin        = "admin"
	SurfaceMemberDialog = "member_dialog"
	SurfaceMemberPortal = "member_portal"
)

// Config is the policy of one login surface. Start from MemberConfig or
// AdminConfig and adjust; Build validates the result.
type Config struct {
	Surface       string
	Lockout       LockoutConfig
	TOTP          TOTPConfig
	OTP           OTPConfig
	SecondFactor  SecondFactorConfig
	Password      PasswordConfig
	PasswordReset PasswordResetConfig
	Assertion     AssertionConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig is the brute-force policy applied to password attempts.
type LockoutConfig struct {
	// MaxAttempts failures inside AttemptWindow lock the key.
	MaxAttempts int
	// AttemptWindow bounds how far back failures count. Zero counts every
	// failure since the last reset or lockout expiry.
	AttemptWindow   time.Duration
	LockoutDuration time.Duration
	// KeyByClient folds a fingerprint of the caller's IP and User-Agent into
	// the attempt key, so one client cannot lock an account for everyone.
	KeyByClient bool
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig controls second-factor code derivation and enrollment.
type TOTPConfig struct {
	Issuer    string
	Period    int
	Digits    int
	Skew      int
	Algorithm string
	// ReplayProtection rejects a code whose time step was already accepted
	// for the account.
	ReplayProtection bool
}

func (c TOTPConfig) params() totp.Params {
	return totp.Params{
		Period:    c.Period,
		Digits:    c.Digits,
		Skew:      c.Skew,
		Algorithm: c.Algorithm,
	}
}

/*
====================================
ONE-TIME CODE CONFIG
====================================
*/

// OTPConfig controls server-issued one-time codes.
type OTPConfig struct {
	Digits int
	// TTL is fixed at issuance and may not exceed ten minutes.
	TTL time.Duration
	// MaxAttempts wrong guesses burn the live code.
	MaxAttempts int
	// IssuesPerHour bounds step-up codes per identifier. Zero disables the limit.
	IssuesPerHour int
	// DeliveryTimeout bounds one background Notifier.Send call.
	DeliveryTimeout time.Duration
}

// SecondFactorConfig controls the pending state between a correct password
// and the TOTP code.
type SecondFactorConfig struct {
	TTL         time.Duration
	MaxAttempts int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig controls hashing cost and the new-password policy.
//
// Pepper is the application-level salt constant. Together with the
// normalized identifier it forms the PBKDF2 salt, so it must stay stable for
// the lifetime of the stored hashes.
type PasswordConfig struct {
	Pepper         string
	Iterations     int
	KeyLength      int
	MinLength      int
	MaxLength      int
	UpgradeOnLogin bool
}

// PasswordResetConfig controls the reset request throttle.
type PasswordResetConfig struct {
	// RequestsPerHour bounds reset codes per identifier. Zero disables the limit.
	RequestsPerHour int
}

/*
====================================
ASSERTION CONFIG
====================================
*/

// AssertionConfig controls the signed marker returned on authentication.
type AssertionConfig struct {
	TTL           time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
PRESETS
====================================
*/

func defaultConfig() Config {
	return Config{
		Surface: SurfaceMemberPortal,
		Lockout: LockoutConfig{
			MaxAttempts:     3,
			AttemptWindow:   60 * time.Second,
			LockoutDuration: 15 * time.Minute,
		},
		TOTP: TOTPConfig{
			Issuer:           "Portal",
			Period:           totp.DefaultPeriod,
			Digits:           totp.DefaultDigits,
			Skew:             totp.DefaultSkew,
			Algorithm:        "SHA1",
			ReplayProtection: true,
		},
		OTP: OTPConfig{
			Digits:          6,
			TTL:             10 * time.Minute,
			MaxAttempts:     5,
			IssuesPerHour:   5,
			DeliveryTimeout: 10 * time.Second,
		},
		SecondFactor: SecondFactorConfig{
			TTL:         5 * time.Minute,
			MaxAttempts: 5,
		},
		Password: PasswordConfig{
			Iterations:     password.DefaultIterations,
			KeyLength:      password.DefaultKeyLength,
			MinLength:      8,
			MaxLength:      128,
			UpgradeOnLogin: true,
		},
		PasswordReset: PasswordResetConfig{
			RequestsPerHour: 3,
		},
		Assertion: AssertionConfig{
			TTL:           15 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "portalauth",
			Leeway:        30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

// MemberConfig returns the member-facing policy: three failures inside a
// 60 second window lock the account for 15 minutes.
func MemberConfig() Config {
	return defaultConfig()
}

// AdminConfig returns the administrator policy: five failures with no
// window (every failure since the last success counts) lock the account
// for 15 minutes.
func AdminConfig() Config {
	cfg := defaultConfig()
	cfg.Surface = SurfaceAdmin
	cfg.Lockout.MaxAttempts = 5
	cfg.Lockout.AttemptWindow = 0
	return cfg
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Assertion.PrivateKey = cloneBytes(cfg.Assertion.PrivateKey)
	out.Assertion.PublicKey = cloneBytes(cfg.Assertion.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Surface) == "" {
		return errors.New("Surface must be set")
	}

	if c.Lockout.MaxAttempts < 1 {
		return errors.New("Lockout MaxAttempts must be >= 1")
	}
	if c.Lockout.AttemptWindow < 0 {
		return errors.New("Lockout AttemptWindow must be >= 0")
	}
	if c.Lockout.LockoutDuration <= 0 {
		return errors.New("Lockout LockoutDuration must be > 0")
	}

	if err := c.TOTP.params().Validate(); err != nil {
		return fmt.Errorf("TOTP: %w", err)
	}
	if strings.TrimSpace(c.TOTP.Issuer) == "" {
		return errors.New("TOTP Issuer must be set")
	}

	if c.OTP.Digits < 6 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be within [6,10]")
	}
	if c.OTP.TTL <= 0 || c.OTP.TTL > 10*time.Minute {
		return errors.New("OTP TTL must be within (0,10m]")
	}
	if c.OTP.MaxAttempts < 1 || c.OTP.MaxAttempts > 5 {
		return errors.New("OTP MaxAttempts must be within [1,5]")
	}
	if c.OTP.IssuesPerHour < 0 {
		return errors.New("OTP IssuesPerHour must be >= 0")
	}
	if c.OTP.DeliveryTimeout <= 0 {
		return errors.New("OTP DeliveryTimeout must be > 0")
	}

	if c.SecondFactor.TTL <= 0 || c.SecondFactor.TTL > 5*time.Minute {
		return errors.New("SecondFactor TTL must be within (0,5m]")
	}
	if c.SecondFactor.MaxAttempts < 1 {
		return errors.New("SecondFactor MaxAttempts must be >= 1")
	}

	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength != 0 && c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be 0 or >= MinLength")
	}
	if _, err := password.NewPBKDF2(c.passwordHasherConfig()); err != nil {
		return fmt.Errorf("Password: %w", err)
	}

	if c.PasswordReset.RequestsPerHour < 0 {
		return errors.New("PasswordReset RequestsPerHour must be >= 0")
	}

	if c.Assertion.TTL <= 0 {
		return errors.New("Assertion TTL must be > 0")
	}
	switch c.Assertion.SigningMethod {
	case "ed25519":
		if len(c.Assertion.PrivateKey) == 0 || len(c.Assertion.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	case "hs256":
		if len(c.Assertion.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
	default:
		return errors.New("unsupported Assertion signing method")
	}
	if c.Assertion.Leeway < 0 || c.Assertion.Leeway > 2*time.Minute {
		return errors.New("Assertion Leeway must be within [0,2m]")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func (c *Config) passwordHasherConfig() password.Config {
	return password.Config{
		Pepper:     c.Password.Pepper,
		Iterations: c.Password.Iterations,
		KeyLength:  c.Password.KeyLength,
	}
}
