package portalAuth

import (
	"fmt"
	"time"
)

// LintSeverity ranks configuration warnings.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "info"
	case LintWarn:
		return "warn"
	case LintHigh:
		return "high"
	default:
		return "unknown"
	}
}

// LintWarning is one configuration trade-off worth surfacing to whoever
// deploys the Engine. Warnings never block Build.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the ordered list of warnings produced by Config.Lint.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	codes := make([]string, len(r))
	for i, w := range r {
		codes[i] = w.Code
	}
	return codes
}

// AtLeast returns warnings with severity >= min.
func (r LintResult) AtLeast(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// Lint reports valid but risky settings. Call it after Validate.
func (c Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, format string, args ...any) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	add("deterministic_salt", LintWarn,
		"password salt is Pepper plus the normalized identifier; a leaked Pepper allows cracking every hash in one batch")
	if c.Password.Pepper == "" {
		add("pepper_empty", LintHigh, "Password.Pepper is empty; salts reduce to the identifier alone")
	} else if len(c.Password.Pepper) < 16 {
		add("pepper_short", LintWarn, "Password.Pepper is %d bytes; use at least 16", len(c.Password.Pepper))
	}
	if c.Password.MinLength < 8 {
		add("password_min_short", LintWarn, "Password.MinLength %d is below 8", c.Password.MinLength)
	}

	if c.Lockout.AttemptWindow == 0 {
		add("attempt_window_unbounded", LintInfo,
			"Lockout.AttemptWindow is 0; failures count until the next success or lockout expiry")
	}
	if c.Lockout.MaxAttempts > 10 {
		add("lockout_threshold_high", LintWarn, "Lockout.MaxAttempts %d allows many guesses per lockout", c.Lockout.MaxAttempts)
	}
	if c.Lockout.KeyByClient {
		add("lockout_keyed_by_client", LintInfo,
			"Lockout.KeyByClient lets a client that rotates addresses reset its own attempt budget")
	}

	if c.TOTP.Skew > 1 {
		add("totp_skew_wide", LintWarn, "TOTP.Skew %d accepts codes up to %s away", c.TOTP.Skew,
			time.Duration(c.TOTP.Skew*c.TOTP.Period)*time.Second)
	}
	if !c.TOTP.ReplayProtection {
		add("totp_replay_allowed", LintWarn, "TOTP.ReplayProtection is off; an observed code can be reused inside the skew window")
	}

	if c.Assertion.TTL > time.Hour {
		add("assertion_ttl_long", LintWarn, "Assertion.TTL %s exceeds one hour", c.Assertion.TTL)
	}
	if c.Assertion.Leeway > time.Minute {
		add("leeway_large", LintWarn, "Assertion.Leeway %s exceeds one minute", c.Assertion.Leeway)
	}

	if c.PasswordReset.RequestsPerHour == 0 {
		add("reset_unthrottled", LintWarn, "PasswordReset.RequestsPerHour is 0; reset codes can be requested without limit")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "audit events are not dispatched")
	}

	return ws
}
