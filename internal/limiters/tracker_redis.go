package limiters

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// recordFailureLua appends one failure and evaluates the lockout atomically.
//
// KEYS[1] = failure sorted set (score = unix ms)
// KEYS[2] = lockout key (value = unlock unix ms)
// ARGV[1] = now unix ms
// ARGV[2] = window ms (0 = unbounded)
// ARGV[3] = max attempts
// ARGV[4] = lockout ms
// ARGV[5] = unique member id
//
// Returns {failures, unlockAtMs} where unlockAtMs is 0 when not locked.
var recordFailureLua = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local maxAttempts = tonumber(ARGV[3])
local lockout = tonumber(ARGV[4])

local unlockAt = tonumber(redis.call('GET', KEYS[2]) or '0')
if unlockAt > 0 and now >= unlockAt then
  redis.call('DEL', KEYS[1], KEYS[2])
  unlockAt = 0
elseif unlockAt == 0 and redis.call('ZCARD', KEYS[1]) >= maxAttempts then
  -- lockout key expired in Redis before the history was cleared
  redis.call('DEL', KEYS[1])
end

redis.call('ZADD', KEYS[1], now, ARGV[5])
if window > 0 then
  redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. (now - window))
end

local count = redis.call('ZCARD', KEYS[1])
if count > maxAttempts then
  redis.call('ZREMRANGEBYRANK', KEYS[1], 0, count - maxAttempts - 1)
  count = maxAttempts
end

if unlockAt == 0 and count >= maxAttempts then
  unlockAt = now + lockout
  redis.call('SET', KEYS[2], unlockAt, 'PX', lockout)
end

-- An unbounded window keeps history until success, except while locked:
-- then it expires together with the lockout.
local ttl = window
if unlockAt > 0 and unlockAt - now > ttl then
  ttl = unlockAt - now
end
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
end

return {count, unlockAt}
`)

// inspectLua evaluates the lockout and prunes the window without recording.
//
// KEYS as recordFailureLua; ARGV[1] = now unix ms, ARGV[2] = window ms,
// ARGV[3] = max attempts. Returns {failures, unlockAtMs}.
var inspectLua = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local maxAttempts = tonumber(ARGV[3])

local unlockAt = tonumber(redis.call('GET', KEYS[2]) or '0')
if unlockAt > 0 then
  if now < unlockAt then
    return {redis.call('ZCARD', KEYS[1]), unlockAt}
  end
  redis.call('DEL', KEYS[1], KEYS[2])
  return {0, 0}
end

if window > 0 then
  redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. (now - window))
end
local count = redis.call('ZCARD', KEYS[1])
if count >= maxAttempts then
  redis.call('DEL', KEYS[1])
  return {0, 0}
end
return {count, 0}
`)

// RedisAttemptTracker shares attempt records across instances through Redis.
// Every operation is a single Lua script, so concurrent failures for one key
// are neither lost nor double counted.
type RedisAttemptTracker struct {
	redis  redis.UniversalClient
	config AttemptConfig
	prefix string
}

// NewRedisAttemptTracker creates a Redis-backed tracker. prefix defaults to "paf".
func NewRedisAttemptTracker(redisClient redis.UniversalClient, cfg AttemptConfig, prefix string) *RedisAttemptTracker {
	if prefix == "" {
		prefix = "paf"
	}
	return &RedisAttemptTracker{
		redis:  redisClient,
		config: cfg.normalize(),
		prefix: prefix,
	}
}

func (t *RedisAttemptTracker) keys(key string) []string {
	// Hash tag keeps both keys in one cluster slot.
	tagged := "{" + key + "}"
	return []string{
		t.prefix + ":f:" + tagged,
		t.prefix + ":l:" + tagged,
	}
}

// RecordFailure appends a failure at now and returns the resulting state.
func (t *RedisAttemptTracker) RecordFailure(ctx context.Context, key string, now time.Time) (AttemptState, error) {
	if key == "" {
		return AttemptState{}, ErrInvalidKey
	}

	res, err := recordFailureLua.Run(ctx, t.redis, t.keys(key),
		now.UnixMilli(),
		t.config.Window.Milliseconds(),
		t.config.MaxAttempts,
		t.config.LockoutDuration.Milliseconds(),
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return AttemptState{}, fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
	}
	return stateFromReply(res, now)
}

// IsLocked reports whether key is locked at now, clearing an expired lockout.
func (t *RedisAttemptTracker) IsLocked(ctx context.Context, key string, now time.Time) (bool, time.Time, error) {
	state, err := t.State(ctx, key, now)
	if err != nil {
		return false, time.Time{}, err
	}
	return state.Locked, state.UnlockAt, nil
}

// State returns failures inside the window and any active lockout.
func (t *RedisAttemptTracker) State(ctx context.Context, key string, now time.Time) (AttemptState, error) {
	if key == "" {
		return AttemptState{}, ErrInvalidKey
	}

	res, err := inspectLua.Run(ctx, t.redis, t.keys(key),
		now.UnixMilli(),
		t.config.Window.Milliseconds(),
		t.config.MaxAttempts,
	).Int64Slice()
	if err != nil {
		return AttemptState{}, fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
	}
	return stateFromReply(res, now)
}

// Reset clears failures and lockout for key.
func (t *RedisAttemptTracker) Reset(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if err := t.redis.Del(ctx, t.keys(key)...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
	}
	return nil
}

func stateFromReply(res []int64, now time.Time) (AttemptState, error) {
	if len(res) != 2 {
		return AttemptState{}, fmt.Errorf("%w: unexpected script reply length %d", ErrTrackerUnavailable, len(res))
	}
	state := AttemptState{Failures: int(res[0])}
	if res[1] > 0 {
		unlockAt := time.UnixMilli(res[1])
		if now.Before(unlockAt) {
			state.Locked = true
			state.UnlockAt = unlockAt
		}
	}
	return state, nil
}
