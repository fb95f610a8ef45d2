package stores

import (
	"context"
	"sync"
	"time"
)

// MemoryPendingStore keeps pending second-factor challenges in process memory.
// Abandoned challenges are swept by Save once the map grows.
type MemoryPendingStore struct {
	mu      sync.Mutex
	records map[string]PendingChallenge
}

// NewMemoryPendingStore creates an empty in-memory challenge store.
func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{records: make(map[string]PendingChallenge)}
}

func (s *MemoryPendingStore) Save(ctx context.Context, challengeID string, record *PendingChallenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) >= sweepThreshold {
		now := savedAt(record.ExpiresAt, ttl)
		for id, r := range s.records {
			if r.Expired(now) {
				delete(s.records, id)
			}
		}
	}
	s.records[challengeID] = *record
	return nil
}

func (s *MemoryPendingStore) Get(ctx context.Context, challengeID string, now time.Time) (*PendingChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[challengeID]
	if !ok {
		return nil, ErrPendingNotFound
	}
	if record.Expired(now) {
		delete(s.records, challengeID)
		return nil, ErrPendingExpired
	}
	return &record, nil
}

func (s *MemoryPendingStore) Delete(ctx context.Context, challengeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.records[challengeID]
	delete(s.records, challengeID)
	return ok, nil
}

func (s *MemoryPendingStore) RecordFailure(ctx context.Context, challengeID string, now time.Time, maxAttempts int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[challengeID]
	if !ok {
		return false, ErrPendingNotFound
	}
	if record.Expired(now) {
		delete(s.records, challengeID)
		return false, ErrPendingExpired
	}

	record.Attempts++
	if maxAttempts > 0 && int(record.Attempts) >= maxAttempts {
		delete(s.records, challengeID)
		return true, nil
	}
	s.records[challengeID] = record
	return false, nil
}
