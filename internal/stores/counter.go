package stores

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCounterBackend wraps used-counter storage failures.
var ErrCounterBackend = errors.New("totp counter backend unavailable")

// markCounterScript stores counter only when it is newer than the last
// accepted one for the key.
var markCounterScript = redis.NewScript(`
local last = redis.call("GET", KEYS[1])
local counter = tonumber(ARGV[1])
if last and tonumber(last) >= counter then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// RedisCounterStore remembers the last accepted TOTP time step per account.
type RedisCounterStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisCounterStore creates a Redis counter store. prefix defaults to "totpc".
func NewRedisCounterStore(redisClient redis.UniversalClient, prefix string) *RedisCounterStore {
	if prefix == "" {
		prefix = "totpc"
	}
	return &RedisCounterStore{redis: redisClient, prefix: prefix}
}

// Mark records counter as used for identifier. It returns false when the
// counter, or a later one, was already accepted within ttl.
func (s *RedisCounterStore) Mark(ctx context.Context, identifier string, counter int64, now time.Time, ttl time.Duration) (bool, error) {
	res, err := markCounterScript.Run(ctx, s.redis, []string{s.prefix + ":" + identifier}, counter, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCounterBackend, err)
	}
	return res == 1, nil
}

type usedCounter struct {
	counter   int64
	expiresAt time.Time
}

// MemoryCounterStore is the in-process equivalent of RedisCounterStore.
// Expired steps are swept by Mark once the map grows.
type MemoryCounterStore struct {
	mu   sync.Mutex
	last map[string]usedCounter
}

// NewMemoryCounterStore creates an empty in-memory counter store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{last: make(map[string]usedCounter)}
}

func (s *MemoryCounterStore) Mark(ctx context.Context, identifier string, counter int64, now time.Time, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.last[identifier]; ok && now.Before(prev.expiresAt) && prev.counter >= counter {
		return false, nil
	}
	if len(s.last) >= sweepThreshold {
		for id, used := range s.last {
			if !now.Before(used.expiresAt) {
				delete(s.last, id)
			}
		}
	}
	s.last[identifier] = usedCounter{counter: counter, expiresAt: now.Add(ttl)}
	return true, nil
}
