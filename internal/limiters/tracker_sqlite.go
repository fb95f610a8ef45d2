package limiters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

var sqliteTrackerSchema = []string{
	`CREATE TABLE IF NOT EXISTS attempt_failures (
  attempt_key TEXT    NOT NULL,
  failed_at   INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS attempt_failures_key_idx ON attempt_failures (attempt_key, failed_at)`,
	`CREATE TABLE IF NOT EXISTS attempt_locks (
  attempt_key TEXT PRIMARY KEY,
  unlock_at   INTEGER NOT NULL
)`,
}

// SQLiteAttemptTracker persists attempt records in a small SQLite database so
// lockouts survive a process restart on a single host.
type SQLiteAttemptTracker struct {
	db     *sql.DB
	config AttemptConfig
	owned  bool

	// SQLite allows one writer; serializing here avoids SQLITE_BUSY retries.
	mu sync.Mutex
}

// OpenSQLiteAttemptTracker opens (or creates) the database at path and
// prepares the schema. Use ":memory:" for an ephemeral store.
func OpenSQLiteAttemptTracker(ctx context.Context, path string, cfg AttemptConfig) (*SQLiteAttemptTracker, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	t, err := NewSQLiteAttemptTracker(ctx, db, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	t.owned = true
	return t, nil
}

// NewSQLiteAttemptTracker uses an existing handle and prepares the schema.
func NewSQLiteAttemptTracker(ctx context.Context, db *sql.DB, cfg AttemptConfig) (*SQLiteAttemptTracker, error) {
	if db == nil {
		return nil, errors.New("sqlite attempt tracker requires a database handle")
	}
	for _, stmt := range sqliteTrackerSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
		}
	}
	return &SQLiteAttemptTracker{db: db, config: cfg.normalize()}, nil
}

// Close releases the database if it was opened by OpenSQLiteAttemptTracker.
func (t *SQLiteAttemptTracker) Close() error {
	if t == nil || !t.owned {
		return nil
	}
	return t.db.Close()
}

// RecordFailure appends a failure at now and evaluates the lockout in one transaction.
func (t *SQLiteAttemptTracker) RecordFailure(ctx context.Context, key string, now time.Time) (AttemptState, error) {
	if key == "" {
		return AttemptState{}, ErrInvalidKey
	}

	var state AttemptState
	err := t.withTx(ctx, func(tx *sql.Tx) error {
		unlockAt, err := t.clearExpiredLock(ctx, tx, key, now)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO attempt_failures (attempt_key, failed_at) VALUES (?, ?)`,
			key, now.UnixMilli()); err != nil {
			return err
		}
		if err := t.prune(ctx, tx, key, now); err != nil {
			return err
		}

		count, err := countFailures(ctx, tx, key)
		if err != nil {
			return err
		}
		if unlockAt == 0 && count >= t.config.MaxAttempts {
			unlockAt = now.Add(t.config.LockoutDuration).UnixMilli()
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO attempt_locks (attempt_key, unlock_at) VALUES (?, ?)
				 ON CONFLICT (attempt_key) DO UPDATE SET unlock_at = excluded.unlock_at`,
				key, unlockAt); err != nil {
				return err
			}
		}

		state = buildState(count, unlockAt, now)
		return nil
	})
	if err != nil {
		return AttemptState{}, err
	}
	return state, nil
}

// IsLocked reports whether key is locked at now.
func (t *SQLiteAttemptTracker) IsLocked(ctx context.Context, key string, now time.Time) (bool, time.Time, error) {
	state, err := t.State(ctx, key, now)
	if err != nil {
		return false, time.Time{}, err
	}
	return state.Locked, state.UnlockAt, nil
}

// State returns failures inside the window and any active lockout.
func (t *SQLiteAttemptTracker) State(ctx context.Context, key string, now time.Time) (AttemptState, error) {
	if key == "" {
		return AttemptState{}, ErrInvalidKey
	}

	var state AttemptState
	err := t.withTx(ctx, func(tx *sql.Tx) error {
		unlockAt, err := t.clearExpiredLock(ctx, tx, key, now)
		if err != nil {
			return err
		}
		if unlockAt == 0 {
			if err := t.prune(ctx, tx, key, now); err != nil {
				return err
			}
		}
		count, err := countFailures(ctx, tx, key)
		if err != nil {
			return err
		}
		state = buildState(count, unlockAt, now)
		return nil
	})
	if err != nil {
		return AttemptState{}, err
	}
	return state, nil
}

// Reset clears failures and lockout for key.
func (t *SQLiteAttemptTracker) Reset(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return t.withTx(ctx, func(tx *sql.Tx) error {
		return deleteKey(ctx, tx, key)
	})
}

func (t *SQLiteAttemptTracker) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
	}
	return nil
}

// clearExpiredLock returns the active unlock time in unix ms, or 0. An
// expired lockout is removed with the failure history.
func (t *SQLiteAttemptTracker) clearExpiredLock(ctx context.Context, tx *sql.Tx, key string, now time.Time) (int64, error) {
	var unlockAt int64
	err := tx.QueryRowContext(ctx,
		`SELECT unlock_at FROM attempt_locks WHERE attempt_key = ?`, key).Scan(&unlockAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if now.UnixMilli() < unlockAt {
		return unlockAt, nil
	}
	return 0, deleteKey(ctx, tx, key)
}

func (t *SQLiteAttemptTracker) prune(ctx context.Context, tx *sql.Tx, key string, now time.Time) error {
	cutoff := t.config.pruneBefore(now)
	if cutoff.IsZero() {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`DELETE FROM attempt_failures WHERE attempt_key = ? AND failed_at < ?`,
		key, cutoff.UnixMilli())
	return err
}

func countFailures(ctx context.Context, tx *sql.Tx, key string) (int, error) {
	var count int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempt_failures WHERE attempt_key = ?`, key).Scan(&count)
	return count, err
}

func deleteKey(ctx context.Context, tx *sql.Tx, key string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM attempt_failures WHERE attempt_key = ?`, key); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM attempt_locks WHERE attempt_key = ?`, key)
	return err
}

func buildState(count int, unlockAt int64, now time.Time) AttemptState {
	state := AttemptState{Failures: count}
	if unlockAt > 0 && now.UnixMilli() < unlockAt {
		state.Locked = true
		state.UnlockAt = time.UnixMilli(unlockAt)
	}
	return state
}
