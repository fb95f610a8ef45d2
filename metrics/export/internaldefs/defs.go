package internaldefs

import (
	portalAuth "github.com/MrEthical07/portalAuth"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   portalAuth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   portalAuth.MetricID
	Name string
	Help string
}

// SurfaceLabel is the label or attribute carrying the login surface.
const SurfaceLabel = "surface"

// AuditDroppedName is the counter for events dropped under dispatcher backpressure.
const AuditDroppedName = "portalauth_audit_dropped_total"

// CounterDefs lists every counter in MetricID order.
var CounterDefs = []CounterDef{
	{ID: portalAuth.MetricLoginSuccess, Name: "portalauth_login_success_total", Help: "Logins authenticated by password alone."},
	{ID: portalAuth.MetricLoginRejected, Name: "portalauth_login_rejected_total", Help: "Password steps rejected without locking."},
	{ID: portalAuth.MetricLoginLocked, Name: "portalauth_login_locked_total", Help: "Login attempts answered with a lockout."},
	{ID: portalAuth.MetricLockoutTriggered, Name: "portalauth_lockout_triggered_total", Help: "Failures that started a new lockout."},
	{ID: portalAuth.MetricSecondFactorRequired, Name: "portalauth_second_factor_required_total", Help: "Correct passwords that moved to the TOTP step."},
	{ID: portalAuth.MetricSecondFactorSuccess, Name: "portalauth_second_factor_success_total", Help: "Logins completed with a TOTP code."},
	{ID: portalAuth.MetricSecondFactorFailure, Name: "portalauth_second_factor_failure_total", Help: "Rejected TOTP codes."},
	{ID: portalAuth.MetricSecondFactorExhausted, Name: "portalauth_second_factor_exhausted_total", Help: "Challenges burned after too many wrong codes."},
	{ID: portalAuth.MetricTOTPReplay, Name: "portalauth_totp_replay_total", Help: "TOTP codes rejected because their step was already used."},
	{ID: portalAuth.MetricPasswordUpgraded, Name: "portalauth_password_upgraded_total", Help: "Stored hashes rewritten with current parameters on login."},
	{ID: portalAuth.MetricCodeIssued, Name: "portalauth_code_issued_total", Help: "One-time codes issued."},
	{ID: portalAuth.MetricCodeThrottled, Name: "portalauth_code_throttled_total", Help: "Code requests denied by the issue limit."},
	{ID: portalAuth.MetricCodeVerified, Name: "portalauth_code_verified_total", Help: "One-time codes consumed successfully."},
	{ID: portalAuth.MetricCodeRejected, Name: "portalauth_code_rejected_total", Help: "One-time code verifications that failed."},
	{ID: portalAuth.MetricCodeDeliveryFailed, Name: "portalauth_code_delivery_failed_total", Help: "Codes the notifier failed to deliver."},
	{ID: portalAuth.MetricPasswordResetRequest, Name: "portalauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: portalAuth.MetricPasswordResetConfirmSuccess, Name: "portalauth_password_reset_confirm_success_total", Help: "Completed password resets."},
	{ID: portalAuth.MetricPasswordResetConfirmFailure, Name: "portalauth_password_reset_confirm_failure_total", Help: "Rejected password reset confirmations."},
	{ID: portalAuth.MetricPasswordChangeSuccess, Name: "portalauth_password_change_success_total", Help: "Completed password changes."},
	{ID: portalAuth.MetricPasswordChangeFailure, Name: "portalauth_password_change_failure_total", Help: "Rejected password changes."},
	{ID: portalAuth.MetricTOTPEnabled, Name: "portalauth_totp_enabled_total", Help: "TOTP enrollments confirmed."},
	{ID: portalAuth.MetricTOTPDisabled, Name: "portalauth_totp_disabled_total", Help: "TOTP enrollments removed."},
	{ID: portalAuth.MetricUnlock, Name: "portalauth_unlock_total", Help: "Administrative unlocks."},
}

// HistogramDefs lists every histogram.
var HistogramDefs = []HistogramDef{
	{ID: portalAuth.MetricLoginLatency, Name: "portalauth_login_latency_seconds", Help: "Password step latency, dominated by PBKDF2."},
}

// HistogramBounds are the upper bucket bounds in seconds, matching the
// engine's millisecond buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are HistogramBounds in instrument-name-safe form.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array; missing buckets are zero.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form both
// exposition formats expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
