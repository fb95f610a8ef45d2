package portalAuth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/portalAuth/accountstore"
	"github.com/MrEthical07/portalAuth/internal/audit"
	internalflows "github.com/MrEthical07/portalAuth/internal/flows"
	"github.com/MrEthical07/portalAuth/internal/rate"
	"github.com/MrEthical07/portalAuth/internal/stores"
	"github.com/MrEthical07/portalAuth/jwt"
	"github.com/MrEthical07/portalAuth/password"
)

type otpStore interface {
	Save(ctx context.Context, key string, record *stores.OTPRecord, ttl time.Duration) error
	Consume(ctx context.Context, key string, codeHash [32]byte, now time.Time, maxAttempts int) error
}

type pendingStore interface {
	Save(ctx context.Context, challengeID string, record *stores.PendingChallenge, ttl time.Duration) error
	Get(ctx context.Context, challengeID string, now time.Time) (*stores.PendingChallenge, error)
	Delete(ctx context.Context, challengeID string) (bool, error)
	RecordFailure(ctx context.Context, challengeID string, now time.Time, maxAttempts int) (bool, error)
}

type counterStore interface {
	Mark(ctx context.Context, identifier string, counter int64, now time.Time, ttl time.Duration) (bool, error)
}

// Engine is the authentication core of one login surface.
//
// Engine is immutable after Build and safe for concurrent use. Call Close on
// shutdown to drain background code deliveries and audit events.
type Engine struct {
	config Config
	now    func() time.Time
	logger *slog.Logger

	accounts AccountStore
	notifier Notifier
	tracker  AttemptTracker
	codes    otpStore
	pending  pendingStore
	counters counterStore
	limits   map[Purpose]rate.Limiter

	// redisBacked reports whether transient state is shared across instances.
	redisBacked bool

	hasher     *password.PBKDF2
	assertions *jwt.Manager
	audit      *audit.Dispatcher
	metrics    *Metrics

	flows     internalflows.Deps
	closers   []func() error
	closeOnce sync.Once

	// deliverMu orders deliveries.Add against Close.
	deliverMu  sync.Mutex
	closed     bool
	deliveries sync.WaitGroup
}

// Close waits for in-flight code deliveries, flushes audit events and
// releases backends opened by the Builder.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.deliverMu.Lock()
		e.closed = true
		e.deliverMu.Unlock()

		e.deliveries.Wait()
		if e.audit != nil {
			e.audit.Close()
		}
		for _, closeFn := range e.closers {
			if err := closeFn(); err != nil {
				e.logger.Warn("portalauth: backend close failed", "err", err)
			}
		}
	})
}

// Surface returns the login surface this Engine serves.
func (e *Engine) Surface() string {
	if e == nil {
		return ""
	}
	return e.config.Surface
}

// AuditDropped returns how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) warn(msg string, args ...any) {
	e.logger.Warn(msg, append(args, "surface", e.config.Surface)...)
}

// attemptKey scopes tracker state to the surface and, with KeyByClient, to
// the caller's fingerprint.
func (e *Engine) attemptKey(ctx context.Context, identifier string) string {
	key := e.config.Surface + ":" + identifier
	if e.config.Lockout.KeyByClient {
		if fp := clientFingerprint(ctx); fp != "" {
			key += ":" + fp
		}
	}
	return key
}

// Unlock clears the failure history and any lockout for identifier on this
// surface. It is the administrator moderation hook; with KeyByClient only
// the key of the client attached to ctx is cleared.
func (e *Engine) Unlock(ctx context.Context, identifier string) error {
	if e == nil || e.tracker == nil {
		return ErrEngineNotReady
	}
	identifier = accountstore.Normalize(identifier)
	if identifier == "" {
		return ErrInvalidIdentifier
	}
	if err := e.tracker.Reset(ctx, e.attemptKey(ctx, identifier)); err != nil {
		e.warn("portalauth: attempt tracker reset failed", "err", err)
		return ErrAuthUnavailable
	}
	e.metricInc(MetricUnlock)
	e.emitAudit(ctx, auditEventUnlock, true, identifier, "", nil, nil)
	return nil
}

// ParseAssertion validates an assertion issued by this surface and returns
// its claims.
func (e *Engine) ParseAssertion(token string) (*AssertionClaims, error) {
	if e == nil || e.assertions == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.assertions.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssertionInvalid, err)
	}
	if claims.Surface != e.config.Surface {
		return nil, ErrAssertionSurface
	}

	out := &AssertionClaims{
		Identifier: claims.Subject,
		Surface:    claims.Surface,
		Methods:    claims.Methods,
		ID:         claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
