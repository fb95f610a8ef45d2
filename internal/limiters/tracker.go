package limiters

import (
	"errors"
	"time"
)

var (
	// ErrTrackerUnavailable indicates the attempt tracker backend is unreachable.
	ErrTrackerUnavailable = errors.New("attempt tracker backend unavailable")
	// ErrInvalidKey is returned for empty tracker keys.
	ErrInvalidKey = errors.New("attempt tracker key must not be empty")
)

// AttemptConfig is the lockout policy applied by every tracker backend.
type AttemptConfig struct {
	// MaxAttempts is the number of failures inside Window that triggers a lockout.
	MaxAttempts int
	// Window bounds how far back failures count. Zero counts every failure
	// since the last reset or lockout expiry.
	Window time.Duration
	// LockoutDuration is how long a triggered lockout lasts.
	LockoutDuration time.Duration
}

// AttemptState is the tracker's view of one key after an operation.
type AttemptState struct {
	Failures int
	Locked   bool
	UnlockAt time.Time
}

// Remaining returns how many more failures are tolerated before lockout.
func (s AttemptState) Remaining(maxAttempts int) int {
	if s.Locked {
		return 0
	}
	if left := maxAttempts - s.Failures; left > 0 {
		return left
	}
	return 0
}

func (c AttemptConfig) normalize() AttemptConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.Window < 0 {
		c.Window = 0
	}
	return c
}

// pruneBefore returns the cutoff before which failures no longer count, or
// the zero time when the window is unbounded.
func (c AttemptConfig) pruneBefore(now time.Time) time.Time {
	if c.Window <= 0 {
		return time.Time{}
	}
	return now.Add(-c.Window)
}
