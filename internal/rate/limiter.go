package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	xrate "golang.org/x/time/rate"
)

// Config describes a per-key request budget: at most Limit requests per Window.
type Config struct {
	Limit  int
	Window time.Duration
}

// Limiter admits or rejects one request for a key.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) error
}

// RedisLimiter enforces fixed-window counters shared across instances.
type RedisLimiter struct {
	redis  redis.UniversalClient
	config Config
	prefix string
}

// NewRedis creates a Redis fixed-window limiter. prefix defaults to "prl".
func NewRedis(redisClient redis.UniversalClient, cfg Config, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "prl"
	}
	return &RedisLimiter{
		redis:  redisClient,
		config: cfg,
		prefix: prefix,
	}
}

// Allow increments the counter for key and rejects once Limit is exceeded
// inside the current window.
func (l *RedisLimiter) Allow(ctx context.Context, key string, now time.Time) error {
	if l == nil || l.config.Limit <= 0 {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.prefix+":"+key, l.config.Window)
	if err != nil {
		return err
	}
	if count > int64(l.config.Limit) {
		return ErrRateLimited
	}
	return nil
}

func (l *RedisLimiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := incrementLua.Run(ctx, l.redis, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}

// incrementLua counts one hit and starts the window on the first hit. A
// counter found without a TTL is given one, so no key is throttled forever.
//
// KEYS[1] = counter key, ARGV[1] = window ms. Returns the new count.
var incrementLua = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 or redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

type bucket struct {
	limiter  *xrate.Limiter
	lastSeen time.Time
}

// LocalLimiter keeps one token bucket per key in process memory. Buckets
// refill continuously at Limit per Window and start full.
type LocalLimiter struct {
	config Config
	every  xrate.Limit

	mu      sync.Mutex
	buckets map[string]*bucket
}

// sweepThreshold bounds how many idle buckets accumulate before a sweep.
const sweepThreshold = 4096

// NewLocal creates an in-process token bucket limiter.
func NewLocal(cfg Config) *LocalLimiter {
	l := &LocalLimiter{
		config:  cfg,
		buckets: make(map[string]*bucket),
	}
	if cfg.Limit > 0 && cfg.Window > 0 {
		l.every = xrate.Every(cfg.Window / time.Duration(cfg.Limit))
	}
	return l
}

// Allow takes one token from key's bucket at now.
func (l *LocalLimiter) Allow(ctx context.Context, key string, now time.Time) error {
	if l == nil || l.config.Limit <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.buckets) >= sweepThreshold {
		l.sweep(now)
	}

	b := l.buckets[key]
	if b == nil {
		b = &bucket{limiter: xrate.NewLimiter(l.every, l.config.Limit)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	if !b.limiter.AllowN(now, 1) {
		return ErrRateLimited
	}
	return nil
}

func (l *LocalLimiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.config.Window {
			delete(l.buckets, key)
		}
	}
}
