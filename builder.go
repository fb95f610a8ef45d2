package portalAuth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/portalAuth/internal/audit"
	"github.com/MrEthical07/portalAuth/internal/limiters"
	"github.com/MrEthical07/portalAuth/internal/rate"
	"github.com/MrEthical07/portalAuth/internal/stores"
	"github.com/MrEthical07/portalAuth/jwt"
	"github.com/MrEthical07/portalAuth/notify"
	"github.com/MrEthical07/portalAuth/password"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Configure it during initialization, call
// Build once, and discard it.
//
// Without WithRedis every transient store is in-process, which is only
// correct for a single instance. With WithRedis the attempt tracker, codes,
// pending challenges, TOTP steps and issue throttles are shared.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts   AccountStore
	notifier   Notifier
	auditSinks []AuditSink
	logger     *slog.Logger
	now        func() time.Time

	tracker    AttemptTracker
	sqlitePath string

	built bool
}

// New returns a Builder preloaded with MemberConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis shares engine state through client. Accepts a single-node,
// cluster or failover client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the member record store. Required.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithNotifier sets the out-of-band code delivery channel. Defaults to
// discarding codes.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink adds a sink. Events reach sinks only when Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSinks = append(b.auditSinks, sink)
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for every time-dependent decision: lockout
// windows, code and challenge expiry, TOTP steps and assertion timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithAttemptTracker overrides the failed-attempt backend. It takes
// precedence over WithSQLiteAttemptTracker and WithRedis.
func (b *Builder) WithAttemptTracker(t AttemptTracker) *Builder {
	b.tracker = t
	return b
}

// WithSQLiteAttemptTracker persists attempt history in a SQLite file so
// lockouts survive restarts of a single-instance deployment. The file is
// opened by Build and closed by Engine.Close.
func (b *Builder) WithSQLiteAttemptTracker(path string) *Builder {
	b.sqlitePath = path
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}

	engine := &Engine{
		config:   cfg,
		now:      b.now,
		logger:   b.logger,
		accounts: b.accounts,
		notifier: b.notifier,
	}
	if engine.now == nil {
		engine.now = time.Now
	}
	if engine.logger == nil {
		engine.logger = slog.Default()
	}
	if engine.notifier == nil {
		engine.notifier = notify.Nop{}
	}

	// -------- PASSWORD HASHER --------
	hasher, err := password.NewPBKDF2(cfg.passwordHasherConfig())
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher

	// -------- ASSERTIONS --------
	jm, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.Assertion.TTL,
		SigningMethod: jwt.SigningMethod(cfg.Assertion.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Assertion.PrivateKey),
		PublicKey:     cloneBytes(cfg.Assertion.PublicKey),
		Issuer:        cfg.Assertion.Issuer,
		Audience:      cfg.Assertion.Audience,
		Leeway:        cfg.Assertion.Leeway,
		KeyID:         cfg.Assertion.KeyID,
	})
	if err != nil {
		return nil, fmt.Errorf("assertion: %w", err)
	}
	engine.assertions = jm.WithClock(engine.now)

	// -------- ATTEMPT TRACKER --------
	attempts := limiters.AttemptConfig{
		MaxAttempts:     cfg.Lockout.MaxAttempts,
		Window:          cfg.Lockout.AttemptWindow,
		LockoutDuration: cfg.Lockout.LockoutDuration,
	}
	switch {
	case b.tracker != nil:
		engine.tracker = b.tracker
	case b.sqlitePath != "":
		st, err := limiters.OpenSQLiteAttemptTracker(context.Background(), b.sqlitePath, attempts)
		if err != nil {
			return nil, fmt.Errorf("attempt tracker: %w", err)
		}
		engine.tracker = st
		engine.closers = append(engine.closers, st.Close)
	case b.redis != nil:
		engine.tracker = limiters.NewRedisAttemptTracker(b.redis, attempts, "")
	default:
		engine.tracker = limiters.NewMemoryAttemptTracker(attempts)
	}

	// -------- TRANSIENT STORES --------
	stepUp := rate.Config{Limit: cfg.OTP.IssuesPerHour, Window: time.Hour}
	reset := rate.Config{Limit: cfg.PasswordReset.RequestsPerHour, Window: time.Hour}
	if b.redis != nil {
		engine.redisBacked = true
		engine.codes = stores.NewRedisOTPStore(b.redis, "")
		engine.pending = stores.NewRedisPendingStore(b.redis, "")
		engine.counters = stores.NewRedisCounterStore(b.redis, "")
		engine.limits = map[Purpose]rate.Limiter{
			PurposeStepUp:        rate.NewRedis(b.redis, stepUp, "pcl"),
			PurposePasswordReset: rate.NewRedis(b.redis, reset, "pcl"),
		}
	} else {
		engine.codes = stores.NewMemoryOTPStore()
		engine.pending = stores.NewMemoryPendingStore()
		engine.counters = stores.NewMemoryCounterStore()
		engine.limits = map[Purpose]rate.Limiter{
			PurposeStepUp:        rate.NewLocal(stepUp),
			PurposePasswordReset: rate.NewLocal(reset),
		}
	}

	// -------- OBSERVABILITY --------
	sinks := make([]audit.Sink, 0, len(b.auditSinks))
	for _, s := range b.auditSinks {
		sinks = append(sinks, s)
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sinks...)
	engine.metrics = NewMetrics(cfg.Metrics)

	engine.flows.Login = engine.loginFlowDeps()
	engine.flows.Code = engine.codeFlowDeps()
	engine.flows.PasswordReset = engine.passwordResetFlowDeps()

	b.built = true
	return engine, nil
}
