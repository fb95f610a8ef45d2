package flows

import (
	"context"
	"time"
)

// CodeRecord is the flow-local view of one issued code.
type CodeRecord struct {
	Identifier string
	Purpose    string
	CodeHash   [32]byte
	ExpiresAt  time.Time
}

// CodeMetrics carries metric IDs needed by code flows.
type CodeMetrics struct {
	CodeIssued     int
	CodeThrottled  int
	CodeVerified   int
	CodeRejected   int
	DeliveryFailed int
}

// CodeErrors carries root sentinel errors used by code flows.
type CodeErrors struct {
	EngineNotReady    error
	InvalidIdentifier error
	InvalidPurpose    error
	CodeUnavailable   error
	CodeRateLimited   error
}

// CodeDeps captures issuance and verification of one-time codes.
type CodeDeps struct {
	Digits      int
	TTL         time.Duration
	MaxAttempts int

	Now           func() time.Time
	ValidPurpose  func(purpose string) bool
	AllowIssue    func(ctx context.Context, identifier, purpose string, now time.Time) error
	IsRateLimited func(error) bool
	NewCode       func(digits int) (string, error)
	HashCode      func(code string) [32]byte
	SaveCode      func(ctx context.Context, identifier, purpose string, record CodeRecord, ttl time.Duration) error
	ConsumeCode   func(ctx context.Context, identifier, purpose string, codeHash [32]byte, now time.Time, maxAttempts int) error
	// IsVerifyFailure reports whether a ConsumeCode error is an ordinary
	// verification failure (mismatch, expired, consumed, burned, missing).
	IsVerifyFailure func(error) bool
	Deliver         func(identifier, code, purpose string)

	MetricInc func(int)
	Warn      func(msg string, args ...any)

	Metrics CodeMetrics
	Errors  CodeErrors
}

func normalizeCodeDeps(deps *CodeDeps) bool {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.IsRateLimited == nil {
		deps.IsRateLimited = func(error) bool { return false }
	}
	if deps.IsVerifyFailure == nil {
		deps.IsVerifyFailure = func(error) bool { return false }
	}
	if deps.ValidPurpose == nil {
		deps.ValidPurpose = func(string) bool { return true }
	}
	if deps.Digits <= 0 {
		deps.Digits = 6
	}
	return deps.NewCode != nil &&
		deps.HashCode != nil &&
		deps.SaveCode != nil &&
		deps.ConsumeCode != nil &&
		deps.Deliver != nil
}

// RunIssueCode generates a code, stores its hash and hands the plaintext to
// Deliver. The previous live code for (identifier, purpose) is replaced.
// Delivery runs off the request path; its outcome is not reported here.
func RunIssueCode(ctx context.Context, identifier, purpose string, deps CodeDeps) error {
	if !normalizeCodeDeps(&deps) {
		return deps.Errors.EngineNotReady
	}
	if identifier == "" {
		return deps.Errors.InvalidIdentifier
	}
	if !deps.ValidPurpose(purpose) {
		return deps.Errors.InvalidPurpose
	}

	now := deps.Now()
	if deps.AllowIssue != nil {
		if err := deps.AllowIssue(ctx, identifier, purpose, now); err != nil {
			if deps.IsRateLimited(err) {
				deps.MetricInc(deps.Metrics.CodeThrottled)
				return deps.Errors.CodeRateLimited
			}
			deps.Warn("portalauth: code issue limiter failed", "err", err)
			return deps.Errors.CodeUnavailable
		}
	}

	code, err := deps.NewCode(deps.Digits)
	if err != nil {
		return deps.Errors.CodeUnavailable
	}

	ttl := deps.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	record := CodeRecord{
		Identifier: identifier,
		Purpose:    purpose,
		CodeHash:   deps.HashCode(code),
		ExpiresAt:  now.Add(ttl),
	}
	if err := deps.SaveCode(ctx, identifier, purpose, record, ttl); err != nil {
		deps.Warn("portalauth: code save failed", "purpose", purpose, "err", err)
		return deps.Errors.CodeUnavailable
	}

	deps.MetricInc(deps.Metrics.CodeIssued)
	deps.Deliver(identifier, code, purpose)
	return nil
}

// RunVerifyCode checks code and consumes it on a match. Verification
// failures are a false result, never an error; only backend failures and
// invalid arguments return errors.
func RunVerifyCode(ctx context.Context, identifier, purpose, code string, deps CodeDeps) (bool, error) {
	if !normalizeCodeDeps(&deps) {
		return false, deps.Errors.EngineNotReady
	}
	if identifier == "" {
		return false, deps.Errors.InvalidIdentifier
	}
	if !deps.ValidPurpose(purpose) {
		return false, deps.Errors.InvalidPurpose
	}
	if !IsDigits(code, deps.Digits) {
		deps.MetricInc(deps.Metrics.CodeRejected)
		return false, nil
	}

	err := deps.ConsumeCode(ctx, identifier, purpose, deps.HashCode(code), deps.Now(), deps.MaxAttempts)
	if err == nil {
		deps.MetricInc(deps.Metrics.CodeVerified)
		return true, nil
	}
	if deps.IsVerifyFailure(err) {
		deps.MetricInc(deps.Metrics.CodeRejected)
		return false, nil
	}
	deps.Warn("portalauth: code consume failed", "purpose", purpose, "err", err)
	return false, deps.Errors.CodeUnavailable
}

// IsDigits reports whether s is exactly n ASCII digits.
func IsDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
