package limiters

import (
	"context"
	"sync"
	"time"
)

type attemptRecord struct {
	failures []time.Time
	unlockAt time.Time
}

// MemoryAttemptTracker keeps attempt records in a process-local map.
//
// It satisfies the tracker contract for a single process only; instances
// behind a load balancer each enforce their own counts.
type MemoryAttemptTracker struct {
	config AttemptConfig

	mu      sync.Mutex
	records map[string]*attemptRecord
}

// NewMemoryAttemptTracker creates an in-memory tracker for cfg.
func NewMemoryAttemptTracker(cfg AttemptConfig) *MemoryAttemptTracker {
	return &MemoryAttemptTracker{
		config:  cfg.normalize(),
		records: make(map[string]*attemptRecord),
	}
}

// RecordFailure appends a failure at now, prunes failures outside the window
// and starts a lockout once MaxAttempts failures remain. An active lockout is
// never shortened or extended by later failures.
func (t *MemoryAttemptTracker) RecordFailure(ctx context.Context, key string, now time.Time) (AttemptState, error) {
	if key == "" {
		return AttemptState{}, ErrInvalidKey
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.records[key]
	if rec != nil && !rec.unlockAt.IsZero() && !now.Before(rec.unlockAt) {
		rec = nil
	}
	if rec == nil {
		rec = &attemptRecord{}
		t.records[key] = rec
	}

	rec.failures = append(rec.failures, now)
	rec.prune(t.config.pruneBefore(now))
	if len(rec.failures) > t.config.MaxAttempts {
		rec.failures = rec.failures[len(rec.failures)-t.config.MaxAttempts:]
	}

	if rec.unlockAt.IsZero() && len(rec.failures) >= t.config.MaxAttempts {
		rec.unlockAt = now.Add(t.config.LockoutDuration)
	}

	return rec.state(now), nil
}

// IsLocked reports whether key is locked at now. An expired lockout is
// cleared together with the failure history.
func (t *MemoryAttemptTracker) IsLocked(ctx context.Context, key string, now time.Time) (bool, time.Time, error) {
	if key == "" {
		return false, time.Time{}, ErrInvalidKey
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.records[key]
	if rec == nil {
		return false, time.Time{}, nil
	}
	if !rec.unlockAt.IsZero() {
		if now.Before(rec.unlockAt) {
			return true, rec.unlockAt, nil
		}
		delete(t.records, key)
		return false, time.Time{}, nil
	}

	rec.prune(t.config.pruneBefore(now))
	if len(rec.failures) == 0 {
		delete(t.records, key)
	}
	return false, time.Time{}, nil
}

// State returns the current failure count and lockout for key without
// recording anything.
func (t *MemoryAttemptTracker) State(ctx context.Context, key string, now time.Time) (AttemptState, error) {
	if key == "" {
		return AttemptState{}, ErrInvalidKey
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.records[key]
	if rec == nil {
		return AttemptState{}, nil
	}
	if !rec.unlockAt.IsZero() && !now.Before(rec.unlockAt) {
		delete(t.records, key)
		return AttemptState{}, nil
	}
	rec.prune(t.config.pruneBefore(now))
	return rec.state(now), nil
}

// Reset clears failures and any lockout for key.
func (t *MemoryAttemptTracker) Reset(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	t.mu.Lock()
	delete(t.records, key)
	t.mu.Unlock()
	return nil
}

func (r *attemptRecord) prune(cutoff time.Time) {
	if cutoff.IsZero() {
		return
	}
	kept := r.failures[:0]
	for _, ts := range r.failures {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	r.failures = kept
}

func (r *attemptRecord) state(now time.Time) AttemptState {
	s := AttemptState{Failures: len(r.failures)}
	if !r.unlockAt.IsZero() && now.Before(r.unlockAt) {
		s.Locked = true
		s.UnlockAt = r.unlockAt
	}
	return s
}
