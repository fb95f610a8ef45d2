package portalAuth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/portalAuth/accountstore"
	"github.com/MrEthical07/portalAuth/internal"
	internalflows "github.com/MrEthical07/portalAuth/internal/flows"
	"github.com/MrEthical07/portalAuth/internal/rate"
	"github.com/MrEthical07/portalAuth/internal/stores"
)

// IssueCode generates a one-time code for (identifier, purpose), replacing
// any live code for the pair, and hands it to the Notifier in the
// background. Delivery failures are logged and counted, never returned.
func (e *Engine) IssueCode(ctx context.Context, identifier string, purpose Purpose) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return internalflows.RunIssueCode(ctx, accountstore.Normalize(identifier), string(purpose), e.flows.Code)
}

// VerifyCode consumes a matching live code. Wrong, expired, consumed and
// burned codes all return false with a nil error.
func (e *Engine) VerifyCode(ctx context.Context, identifier string, purpose Purpose, code string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	return internalflows.RunVerifyCode(ctx, accountstore.Normalize(identifier), string(purpose), code, e.flows.Code)
}

func (e *Engine) allowIssue(ctx context.Context, identifier, purpose string, now time.Time) error {
	limiter, ok := e.limits[Purpose(purpose)]
	if !ok || limiter == nil {
		return nil
	}
	return limiter.Allow(ctx, purpose+":"+identifier, now)
}

// deliver sends code outside the request path. The request context is not
// reused: the caller may return before the notifier finishes. After Close
// the code is dropped and counted as a delivery failure.
func (e *Engine) deliver(identifier, code, purpose string) {
	timeout := e.config.OTP.DeliveryTimeout

	e.deliverMu.Lock()
	if e.closed {
		e.deliverMu.Unlock()
		e.metricInc(MetricCodeDeliveryFailed)
		e.warn("portalauth: code delivery after close dropped", "purpose", purpose)
		return
	}
	e.deliveries.Add(1)
	e.deliverMu.Unlock()

	go func() {
		defer e.deliveries.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := e.notifier.Send(ctx, identifier, code, Purpose(purpose)); err != nil {
			e.metricInc(MetricCodeDeliveryFailed)
			e.warn("portalauth: code delivery failed", "purpose", purpose, "err", err)
		}
	}()
}

func (e *Engine) codeFlowDeps() internalflows.CodeDeps {
	return internalflows.CodeDeps{
		Digits:      e.config.OTP.Digits,
		TTL:         e.config.OTP.TTL,
		MaxAttempts: e.config.OTP.MaxAttempts,

		Now:          e.now,
		ValidPurpose: func(purpose string) bool { return Purpose(purpose).Valid() },
		AllowIssue:   e.allowIssue,
		IsRateLimited: func(err error) bool {
			return errors.Is(err, rate.ErrRateLimited)
		},
		NewCode:  internal.NewOTP,
		HashCode: internal.HashCode,
		SaveCode: func(ctx context.Context, identifier, purpose string, record internalflows.CodeRecord, ttl time.Duration) error {
			return e.codes.Save(ctx, stores.OTPKey(purpose, identifier), &stores.OTPRecord{
				Identifier: record.Identifier,
				Purpose:    record.Purpose,
				CodeHash:   record.CodeHash,
				ExpiresAt:  record.ExpiresAt.UnixMilli(),
			}, ttl)
		},
		ConsumeCode: func(ctx context.Context, identifier, purpose string, codeHash [32]byte, now time.Time, maxAttempts int) error {
			return e.codes.Consume(ctx, stores.OTPKey(purpose, identifier), codeHash, now, maxAttempts)
		},
		IsVerifyFailure: func(err error) bool {
			return !errors.Is(err, stores.ErrOTPBackend)
		},
		Deliver: e.deliver,

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		Warn:      e.warn,

		Metrics: internalflows.CodeMetrics{
			CodeIssued:     int(MetricCodeIssued),
			CodeThrottled:  int(MetricCodeThrottled),
			CodeVerified:   int(MetricCodeVerified),
			CodeRejected:   int(MetricCodeRejected),
			DeliveryFailed: int(MetricCodeDeliveryFailed),
		},
		Errors: internalflows.CodeErrors{
			EngineNotReady:    ErrEngineNotReady,
			InvalidIdentifier: ErrInvalidIdentifier,
			InvalidPurpose:    ErrInvalidPurpose,
			CodeUnavailable:   ErrCodeUnavailable,
			CodeRateLimited:   ErrCodeRateLimited,
		},
	}
}
