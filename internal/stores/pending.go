package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	pendingRecordVersion1 = 1
)

var (
	ErrPendingNotFound = errors.New("second factor challenge not found")
	ErrPendingExpired  = errors.New("second factor challenge expired")
	ErrPendingBackend  = errors.New("second factor challenge backend unavailable")
)

// PendingChallenge is the half-authenticated state held between a correct
// password and the second factor. It never carries password material.
type PendingChallenge struct {
	Identifier string
	Surface    string
	ExpiresAt  int64 // unix milliseconds
	Attempts   uint16
}

// Expired reports whether the challenge is past its expiry at now.
func (c *PendingChallenge) Expired(now time.Time) bool {
	return now.UnixMilli() >= c.ExpiresAt
}

// RedisPendingStore keeps pending second-factor challenges in Redis.
type RedisPendingStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisPendingStore creates a Redis challenge store. prefix defaults to "p2f".
func NewRedisPendingStore(redisClient redis.UniversalClient, prefix string) *RedisPendingStore {
	if prefix == "" {
		prefix = "p2f"
	}
	return &RedisPendingStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisPendingStore) key(challengeID string) string {
	return s.prefix + ":" + challengeID
}

// Save stores record under challengeID for ttl.
func (s *RedisPendingStore) Save(
	ctx context.Context,
	challengeID string,
	record *PendingChallenge,
	ttl time.Duration,
) error {
	encoded, err := encodePendingChallenge(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(challengeID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingBackend, err)
	}
	return nil
}

// Get loads the challenge, deleting and rejecting it once expired at now.
func (s *RedisPendingStore) Get(ctx context.Context, challengeID string, now time.Time) (*PendingChallenge, error) {
	data, err := s.redis.Get(ctx, s.key(challengeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPendingNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPendingBackend, err)
	}

	record, err := decodePendingChallenge(data)
	if err != nil {
		return nil, err
	}
	if record.Expired(now) {
		_, _ = s.redis.Del(ctx, s.key(challengeID)).Result()
		return nil, ErrPendingExpired
	}
	return record, nil
}

// Delete removes the challenge and reports whether it existed. A false
// result on the success path means another request already completed it.
func (s *RedisPendingStore) Delete(ctx context.Context, challengeID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(challengeID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPendingBackend, err)
	}
	return n > 0, nil
}

// RecordFailure counts one wrong second-factor code. It returns true when
// maxAttempts is reached, in which case the challenge is deleted.
func (s *RedisPendingStore) RecordFailure(
	ctx context.Context,
	challengeID string,
	now time.Time,
	maxAttempts int,
) (bool, error) {
	const maxRetries = 4
	key := s.key(challengeID)

	for i := 0; i < maxRetries; i++ {
		var exceeded bool
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodePendingChallenge(data)
			if err != nil {
				return err
			}
			if record.Expired(now) {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrPendingExpired
			}

			record.Attempts++
			if maxAttempts > 0 && int(record.Attempts) >= maxAttempts {
				exceeded = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			updated, err := encodePendingChallenge(record)
			if err != nil {
				return err
			}
			ttl := time.Duration(record.ExpiresAt-now.UnixMilli()) * time.Millisecond
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, ErrPendingNotFound
			}
			if errors.Is(err, ErrPendingExpired) {
				return false, err
			}
			return false, fmt.Errorf("%w: %v", ErrPendingBackend, err)
		}
		return exceeded, nil
	}

	return false, ErrPendingNotFound
}

func encodePendingChallenge(record *PendingChallenge) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(pendingRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := writeString(&buf, record.Identifier); err != nil {
		return nil, err
	}
	if err := writeString(&buf, record.Surface); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodePendingChallenge(data []byte) (*PendingChallenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != pendingRecordVersion1 {
		return nil, errors.New("invalid second factor challenge version")
	}

	record := &PendingChallenge{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if record.Identifier, err = readString(reader); err != nil {
		return nil, err
	}
	if record.Surface, err = readString(reader); err != nil {
		return nil, err
	}
	return record, nil
}
