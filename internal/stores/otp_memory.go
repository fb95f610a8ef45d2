package stores

import (
	"context"
	"sync"
	"time"
)

// MemoryOTPStore keeps issued codes in process memory. Expired records are
// removed lazily when touched and by Save when the map grows.
type MemoryOTPStore struct {
	mu      sync.Mutex
	records map[string]OTPRecord
}

// NewMemoryOTPStore creates an empty in-memory code store.
func NewMemoryOTPStore() *MemoryOTPStore {
	return &MemoryOTPStore{records: make(map[string]OTPRecord)}
}

// Save stores record under key, replacing any previous code.
func (s *MemoryOTPStore) Save(ctx context.Context, key string, record *OTPRecord, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) >= sweepThreshold {
		now := savedAt(record.ExpiresAt, ttl)
		for k, r := range s.records {
			if r.Expired(now) {
				delete(s.records, k)
			}
		}
	}
	s.records[key] = *record
	return nil
}

// Consume applies the same check-and-consume transition as RedisOTPStore
// under the store mutex.
func (s *MemoryOTPStore) Consume(
	ctx context.Context,
	key string,
	codeHash [32]byte,
	now time.Time,
	maxAttempts int,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.records[key]
	if !ok {
		return ErrOTPNotFound
	}

	record := stored
	next, del, result := applyConsume(&record, codeHash, now, maxAttempts)
	switch {
	case del:
		delete(s.records, key)
	case next != nil:
		s.records[key] = *next
	}
	return result
}

// Delete removes any code stored under key.
func (s *MemoryOTPStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}
