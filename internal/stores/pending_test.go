package stores

import (
	"context"
	"errors"
	"testing"
	"time"
)

type pendingStore interface {
	Save(ctx context.Context, challengeID string, record *PendingChallenge, ttl time.Duration) error
	Get(ctx context.Context, challengeID string, now time.Time) (*PendingChallenge, error)
	Delete(ctx context.Context, challengeID string) (bool, error)
	RecordFailure(ctx context.Context, challengeID string, now time.Time, maxAttempts int) (bool, error)
}

func pendingBackends(t *testing.T) map[string]pendingStore {
	return map[string]pendingStore{
		"memory": NewMemoryPendingStore(),
		"redis":  NewRedisPendingStore(newTestRedis(t), ""),
	}
}

func savePending(t *testing.T, store pendingStore, id string) {
	t.Helper()
	record := &PendingChallenge{
		Identifier: "a@b.com",
		Surface:    "member",
		ExpiresAt:  issuedAt.Add(5 * time.Minute).UnixMilli(),
	}
	if err := store.Save(context.Background(), id, record, 5*time.Minute); err != nil {
		t.Fatalf("Save error: %v", err)
	}
}

func TestPendingGetAndExpiry(t *testing.T) {
	for name, store := range pendingBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			savePending(t, store, "c1")

			got, err := store.Get(ctx, "c1", issuedAt.Add(time.Minute))
			if err != nil {
				t.Fatalf("Get error: %v", err)
			}
			if got.Identifier != "a@b.com" || got.Surface != "member" {
				t.Fatalf("unexpected record: %+v", got)
			}

			if _, err := store.Get(ctx, "c1", issuedAt.Add(5*time.Minute)); !errors.Is(err, ErrPendingExpired) {
				t.Fatalf("expected ErrPendingExpired, got %v", err)
			}
			if _, err := store.Get(ctx, "c1", issuedAt); !errors.Is(err, ErrPendingNotFound) {
				t.Fatalf("expected expired challenge to be deleted, got %v", err)
			}
		})
	}
}

func TestPendingRecordFailure(t *testing.T) {
	for name, store := range pendingBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			savePending(t, store, "c2")
			now := issuedAt.Add(time.Minute)

			for i := 0; i < 4; i++ {
				exceeded, err := store.RecordFailure(ctx, "c2", now, 5)
				if err != nil || exceeded {
					t.Fatalf("failure %d: exceeded=%v err=%v", i+1, exceeded, err)
				}
			}
			got, err := store.Get(ctx, "c2", now)
			if err != nil || got.Attempts != 4 {
				t.Fatalf("expected 4 attempts, got %+v err=%v", got, err)
			}

			exceeded, err := store.RecordFailure(ctx, "c2", now, 5)
			if err != nil || !exceeded {
				t.Fatalf("expected fifth failure to exceed, exceeded=%v err=%v", exceeded, err)
			}
			if _, err := store.Get(ctx, "c2", now); !errors.Is(err, ErrPendingNotFound) {
				t.Fatalf("expected challenge removed, got %v", err)
			}
		})
	}
}

func TestPendingDeleteReportsExistence(t *testing.T) {
	for name, store := range pendingBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			savePending(t, store, "c3")

			deleted, err := store.Delete(ctx, "c3")
			if err != nil || !deleted {
				t.Fatalf("first delete: deleted=%v err=%v", deleted, err)
			}
			deleted, err = store.Delete(ctx, "c3")
			if err != nil || deleted {
				t.Fatalf("second delete: deleted=%v err=%v", deleted, err)
			}
		})
	}
}

func TestPendingRecordFailureUnknown(t *testing.T) {
	for name, store := range pendingBackends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.RecordFailure(context.Background(), "missing", issuedAt, 5); !errors.Is(err, ErrPendingNotFound) {
				t.Fatalf("expected ErrPendingNotFound, got %v", err)
			}
		})
	}
}
