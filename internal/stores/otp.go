package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	otpRecordVersion1 = 1
)

var (
	ErrOTPNotFound         = errors.New("otp not found")
	ErrOTPExpired          = errors.New("otp expired")
	ErrOTPConsumed         = errors.New("otp already consumed")
	ErrOTPMismatch         = errors.New("otp mismatch")
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	ErrOTPBackend          = errors.New("otp backend unavailable")
)

// OTPRecord is one issued code. Only the SHA-256 of the code is stored.
type OTPRecord struct {
	Identifier string
	Purpose    string
	CodeHash   [32]byte
	ExpiresAt  int64 // unix milliseconds
	Attempts   uint16
	Consumed   bool
}

// Expired reports whether the record is past its expiry at now.
func (r *OTPRecord) Expired(now time.Time) bool {
	return now.UnixMilli() >= r.ExpiresAt
}

// OTPKey derives the storage key for an identifier and purpose. There is at
// most one live record per key, so saving a new code replaces the old one.
func OTPKey(purpose, identifier string) string {
	return purpose + ":" + identifier
}

// RedisOTPStore keeps issued codes in Redis with a TTL matching their expiry.
type RedisOTPStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisOTPStore creates a Redis code store. prefix defaults to "potp".
func NewRedisOTPStore(redisClient redis.UniversalClient, prefix string) *RedisOTPStore {
	if prefix == "" {
		prefix = "potp"
	}
	return &RedisOTPStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisOTPStore) key(k string) string {
	return s.prefix + ":" + k
}

// Save stores record under key, replacing any previous code.
func (s *RedisOTPStore) Save(ctx context.Context, key string, record *OTPRecord, ttl time.Duration) error {
	encoded, err := encodeOTPRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(key), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPBackend, err)
	}
	return nil
}

// Consume compares codeHash against the stored record and marks it consumed
// on a match. Check and consume happen in one optimistic transaction, so of
// several concurrent callers presenting the right code exactly one succeeds.
//
// A mismatch increments the attempt counter; reaching maxAttempts deletes
// the record and returns ErrOTPAttemptsExceeded.
func (s *RedisOTPStore) Consume(
	ctx context.Context,
	key string,
	codeHash [32]byte,
	now time.Time,
	maxAttempts int,
) error {
	const maxRetries = 4
	redisKey := s.key(key)

	for i := 0; i < maxRetries; i++ {
		var outcome error
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, redisKey).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeOTPRecord(data)
			if err != nil {
				return err
			}

			next, del, result := applyConsume(record, codeHash, now, maxAttempts)
			outcome = result
			if errors.Is(result, ErrOTPConsumed) {
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if del {
					pipe.Del(ctx, redisKey)
					return nil
				}
				updated, err := encodeOTPRecord(next)
				if err != nil {
					return err
				}
				pipe.Set(ctx, redisKey, updated, time.Duration(next.ExpiresAt-now.UnixMilli())*time.Millisecond)
				return nil
			})
			return err
		}, redisKey)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrOTPNotFound
			}
			return fmt.Errorf("%w: %v", ErrOTPBackend, err)
		}
		return outcome
	}

	// Lost every race; another caller changed the record each time.
	return ErrOTPConsumed
}

// Delete removes any code stored under key.
func (s *RedisOTPStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPBackend, err)
	}
	return nil
}

// applyConsume is the pure state transition shared by every OTP backend. It
// returns the updated record, whether the record must be deleted instead of
// rewritten, and the outcome for the caller.
func applyConsume(record *OTPRecord, codeHash [32]byte, now time.Time, maxAttempts int) (*OTPRecord, bool, error) {
	if record.Consumed {
		if record.Expired(now) {
			return nil, true, ErrOTPExpired
		}
		return record, false, ErrOTPConsumed
	}
	if record.Expired(now) {
		return nil, true, ErrOTPExpired
	}

	if subtle.ConstantTimeCompare(record.CodeHash[:], codeHash[:]) != 1 {
		record.Attempts++
		if maxAttempts > 0 && int(record.Attempts) >= maxAttempts {
			return nil, true, ErrOTPAttemptsExceeded
		}
		return record, false, ErrOTPMismatch
	}

	record.Consumed = true
	return record, false, nil
}

func encodeOTPRecord(record *OTPRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(otpRecordVersion1)

	var consumed byte
	if record.Consumed {
		consumed = 1
	}
	buf.WriteByte(consumed)
	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	if err := writeString(&buf, record.Identifier); err != nil {
		return nil, err
	}
	if err := writeString(&buf, record.Purpose); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeOTPRecord(data []byte) (*OTPRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != otpRecordVersion1 {
		return nil, errors.New("invalid otp record version")
	}

	record := &OTPRecord{}
	consumed, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	record.Consumed = consumed == 1
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}
	if record.Identifier, err = readString(reader); err != nil {
		return nil, err
	}
	if record.Purpose, err = readString(reader); err != nil {
		return nil, err
	}
	return record, nil
}
