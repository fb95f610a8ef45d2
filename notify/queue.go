package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueKey is the Redis list used as the outbound code queue.
const DefaultQueueKey = "portalauth:notify:queue"

// DefaultMaxQueueSize caps the queue when the mail server is down.
const DefaultMaxQueueSize int64 = 1000

// ErrQueueFull is returned by Send when the queue is at its cap.
var ErrQueueFull = errors.New("notification queue full")

// Job is the payload pushed onto the queue.
type Job struct {
	Identifier string  `json:"identifier"`
	Code       string  `json:"code"`
	Purpose    Purpose `json:"purpose"`
	QueuedAt   int64   `json:"queued_at"`
}

// QueuedNotifier enqueues codes in Redis so the caller returns without
// waiting for delivery. StartWorker drains the queue into the inner Notifier.
type QueuedNotifier struct {
	inner        Notifier
	rdb          redis.UniversalClient
	key          string
	maxQueueSize int64
	logger       *slog.Logger
}

// QueueOption customizes a QueuedNotifier.
type QueueOption func(*QueuedNotifier)

func WithQueueKey(key string) QueueOption {
	return func(q *QueuedNotifier) {
		if key != "" {
			q.key = key
		}
	}
}

// WithMaxQueueSize sets the queue cap; 0 disables it.
func WithMaxQueueSize(n int64) QueueOption {
	return func(q *QueuedNotifier) { q.maxQueueSize = n }
}

func WithLogger(logger *slog.Logger) QueueOption {
	return func(q *QueuedNotifier) {
		if logger != nil {
			q.logger = logger
		}
	}
}

func NewQueuedNotifier(inner Notifier, rdb redis.UniversalClient, opts ...QueueOption) *QueuedNotifier {
	q := &QueuedNotifier{
		inner:        inner,
		rdb:          rdb,
		key:          DefaultQueueKey,
		maxQueueSize: DefaultMaxQueueSize,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// enqueueScript pushes ARGV[2] only while LLEN is under ARGV[1] (0 = no cap).
var enqueueScript = redis.NewScript(`
local max = tonumber(ARGV[1])
if max > 0 and redis.call('LLEN', KEYS[1]) >= max then
    return 0
end
redis.call('RPUSH', KEYS[1], ARGV[2])
return 1
`)

// Send enqueues the code. It returns once Redis has accepted the job.
func (q *QueuedNotifier) Send(ctx context.Context, identifier, code string, purpose Purpose) error {
	data, err := json.Marshal(Job{
		Identifier: identifier,
		Code:       code,
		Purpose:    purpose,
		QueuedAt:   time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshaling notification job: %w", err)
	}
	ok, err := enqueueScript.Run(ctx, q.rdb, []string{q.key}, q.maxQueueSize, data).Int64()
	if err != nil {
		return fmt.Errorf("enqueuing notification job: %w", err)
	}
	if ok == 0 {
		return ErrQueueFull
	}
	return nil
}

// StartWorker drains the queue until ctx is cancelled. Call in a goroutine.
func (q *QueuedNotifier) StartWorker(ctx context.Context) {
	for {
		if !q.drainOne(ctx, 2*time.Second) && ctx.Err() != nil {
			return
		}
	}
}

// drainOne waits up to timeout for one job and dispatches it. It reports
// whether a job was taken off the queue.
func (q *QueuedNotifier) drainOne(ctx context.Context, timeout time.Duration) bool {
	res, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, redis.Nil) {
			return false
		}
		q.logger.Error("notify worker: queue pop failed", "err", err)
		return false
	}

	// res[0] = key name, res[1] = payload
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		q.logger.Error("notify worker: bad job payload", "err", err)
		return true
	}
	q.dispatch(ctx, job)
	return true
}

// dispatch hands job to the inner notifier. Failures are logged and dropped.
func (q *QueuedNotifier) dispatch(ctx context.Context, job Job) {
	if !job.Purpose.Valid() {
		q.logger.Error("notify worker: unknown purpose", "purpose", job.Purpose)
		return
	}
	if err := q.inner.Send(ctx, job.Identifier, job.Code, job.Purpose); err != nil {
		q.logger.Error("notify worker: send failed", "purpose", job.Purpose, "identifier", job.Identifier, "err", err)
	}
}
